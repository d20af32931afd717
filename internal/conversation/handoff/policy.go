// Package handoff scores inbound messages for human-takeover necessity. The
// policy runs independently of stage resolution: a message can trigger a
// handoff without any stage change and vice versa.
package handoff

import (
	"regexp"
	"time"
)

// Priority tiers, highest first.
const (
	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// handoverThreshold is the minimum score that triggers a handover.
const handoverThreshold = 50

// Weighted signal categories. Each counts at most once per message no matter
// how many of its patterns match.
const (
	weightBuyIntent       = 50
	weightHumanRequest    = 50
	weightUrgency         = 45
	weightDissatisfaction = 40
	weightHighValue       = 40
	weightNegotiation     = 35
	weightComplexQuestion = 30
)

// Context bonuses layered on top of category matches.
const (
	bonusQualified    = 10
	bonusHighScore    = 15
	bonusHighBudget   = 20
	bonusManyAITurns  = 25
	bonusLongDuration = 15
	bonusProposalSent = 20
)

// Context carries the conversation/lead state the bonuses read.
type Context struct {
	Qualified    bool
	LeadScore    int
	Budget       float64
	AITurns      int
	StartedAt    time.Time
	ProposalSent bool
	Now          time.Time
}

// Decision is the policy's verdict for one message.
type Decision struct {
	Score          int
	ShouldHandover bool
	Priority       string
	Reasons        []string
}

type signalCategory struct {
	weight   int
	reason   string
	patterns []*regexp.Regexp
}

// Policy evaluates messages against the weighted category tables. Stateless
// apart from the configured high-value threshold; safe for concurrent use.
type Policy struct {
	categories      []signalCategory
	highValueBudget float64
}

// New builds the policy. highValueBudget is the budget above which a lead is
// treated as high value for the context bonus (HANDOFF_HIGH_VALUE_BUDGET).
func New(highValueBudget float64) *Policy {
	return &Policy{
		highValueBudget: highValueBudget,
		categories: []signalCategory{
			{
				weight: weightBuyIntent,
				reason: "intenção de compra",
				patterns: compile(
					`(?i)\bquero\s+(?:comprar|fechar|reservar|garantir)\b`,
					`(?i)\b(?:vamos|pode)\s+fechar\b`,
					`(?i)\bcomo\s+(?:pago|fa[çc]o\s+o\s+pagamento)\b`,
					`(?i)\bformas?\s+de\s+pagamento\b`,
					`(?i)\bpode\s+emitir\b`,
				),
			},
			{
				weight: weightHumanRequest,
				reason: "solicitou atendimento humano",
				patterns: compile(
					`(?i)\b(?:falar|conversar)\s+com\s+(?:um[a]?\s+)?(?:consultor|consultora|atendente|humano|pessoa)\b`,
					`(?i)\batendimento\s+humano\b`,
					`(?i)\bquero\s+um\s+humano\b`,
				),
			},
			{
				weight: weightUrgency,
				reason: "urgência",
				patterns: compile(
					`(?i)\burgente?\b`,
					`(?i)\b(?:pra|para)\s+(?:hoje|amanh[ãa]|ontem)\b`,
					`(?i)\bo\s+quanto\s+antes\b`,
					`(?i)\bimediat[oa]\b`,
					`(?i)\bviajo\s+(?:essa|esta)\s+semana\b`,
				),
			},
			{
				weight: weightDissatisfaction,
				reason: "insatisfação",
				patterns: compile(
					`(?i)\bn[ãa]o\s+gostei\b`,
					`(?i)\b(?:p[ée]ssimo|horr[íi]vel|absurdo|rid[íi]culo)\b`,
					`(?i)\b(?:reclama[çc][ãa]o|reclamar|insatisfeit[oa])\b`,
					`(?i)\bdemora(?:ndo)?\s+(?:muito|demais)\b`,
				),
			},
			{
				weight: weightHighValue,
				reason: "viagem de alto valor",
				patterns: compile(
					`(?i)\b(?:primeira\s+classe|classe\s+executiva)\b`,
					`(?i)\b(?:luxo|luxuos[oa])\b`,
					`(?i)\bresort\b`,
					`(?i)\blua\s+de\s+mel\b`,
					`(?i)\bgrupo\s+de\s+\d{2,}\b`,
				),
			},
			{
				weight: weightNegotiation,
				reason: "negociação de preço",
				patterns: compile(
					`(?i)\bdesconto\b`,
					`(?i)\b(?:baixar|melhorar|abaixar)\s+o\s+(?:pre[çc]o|valor)\b`,
					`(?i)\bparcelar?\b`,
					`(?i)\bcondi[çc][õo]es\s+de\s+pagamento\b`,
					`(?i)\bnegociar\b`,
				),
			},
			{
				weight: weightComplexQuestion,
				reason: "dúvida complexa",
				patterns: compile(
					`(?i)\b(?:visto|passaporte|vacina|documenta[çc][ãa]o)\b`,
					`(?i)\bseguro\s+viagem\b`,
					`(?i)\bpol[íi]tica\s+de\s+cancelamento\b`,
					`(?i)\bremarca[çc][ãa]o\b`,
					`(?i)\bbagagem\b`,
				),
			},
		},
	}
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

// Evaluate scores the message. Categories count once each; context bonuses
// stack on top. Reasons come back in evaluation order for audit text.
func (p *Policy) Evaluate(text string, cctx Context) Decision {
	var d Decision

	for _, cat := range p.categories {
		for _, re := range cat.patterns {
			if re.MatchString(text) {
				d.Score += cat.weight
				d.Reasons = append(d.Reasons, cat.reason)
				break
			}
		}
	}

	d.Score += p.contextBonuses(&d, cctx)

	d.ShouldHandover = d.Score >= handoverThreshold
	d.Priority = tierFor(d.Score)
	return d
}

func (p *Policy) contextBonuses(d *Decision, cctx Context) int {
	total := 0

	if cctx.Qualified {
		total += bonusQualified
		d.Reasons = append(d.Reasons, "lead qualificado")
	}
	if cctx.LeadScore > 70 {
		total += bonusHighScore
		d.Reasons = append(d.Reasons, "score alto")
	}
	if p.highValueBudget > 0 && cctx.Budget > p.highValueBudget {
		total += bonusHighBudget
		d.Reasons = append(d.Reasons, "orçamento alto")
	}
	if cctx.AITurns > 2 {
		total += bonusManyAITurns
		d.Reasons = append(d.Reasons, "muitas interações sem resolução")
	}
	if !cctx.StartedAt.IsZero() && cctx.Now.Sub(cctx.StartedAt) > 10*time.Minute {
		total += bonusLongDuration
		d.Reasons = append(d.Reasons, "conversa longa")
	}
	if cctx.ProposalSent {
		total += bonusProposalSent
		d.Reasons = append(d.Reasons, "proposta já enviada")
	}

	return total
}

func tierFor(score int) string {
	switch {
	case score >= 80:
		return PriorityUrgent
	case score >= 60:
		return PriorityHigh
	case score >= 40:
		return PriorityMedium
	default:
		return PriorityLow
	}
}
