// Package trigger evaluates inbound message text against categorized pattern
// families and extracts qualification data. This is pure text classification:
// deterministic, no side effects, no storage or network access. False
// positives and negatives are an accepted trade-off; high-impact transitions
// require agreement from multiple families downstream.
package trigger

import (
	"regexp"
	"strconv"
	"strings"
)

// Category labels the disjoint pattern families.
type Category string

const (
	CategoryDestination   Category = "qualification-destination"
	CategoryDates         Category = "qualification-dates"
	CategoryBudget        Category = "qualification-budget"
	CategoryProposal      Category = "generate-proposal"
	CategoryCancellation  Category = "cancellation"
	CategoryNotQualified  Category = "not-qualified"
	CategoryHumanHandover Category = "human-handover-request"
)

// Result holds the matched categories and any captured values. At most one
// capture per family per message (first match wins within a family).
type Result struct {
	Categories         []Category
	Destination        string
	TravelWindow       string
	BudgetRaw          string
	Budget             float64
	CancellationReason string
}

// Has reports whether the given family matched.
func (r Result) Has(cat Category) bool {
	for _, c := range r.Categories {
		if c == cat {
			return true
		}
	}
	return false
}

// family is an ordered list of compiled patterns sharing one category.
// Evaluation stops at the first matching pattern.
type family struct {
	category Category
	patterns []*regexp.Regexp
}

// Matcher evaluates message text against all pattern families.
type Matcher struct {
	families            []family
	cancellationReasons []reasonPattern
}

type reasonPattern struct {
	re     *regexp.Regexp
	reason string
}

// Messages arrive predominantly in Brazilian Portuguese; the tables mirror
// the phrasing leads actually use on WhatsApp.
func New() *Matcher {
	return &Matcher{
		families: []family{
			{
				category: CategoryCancellation,
				patterns: compile(
					`(?i)\b(?:cancelar|cancela|cancelamento|desistir|desisto|desisti)\b`,
					`(?i)\bn[ãa]o\s+quero\s+mais\b`,
					`(?i)\bdeixa\s+pra\s+pr[óo]xima\b`,
				),
			},
			{
				category: CategoryHumanHandover,
				patterns: compile(
					`(?i)\b(?:falar|conversar)\s+com\s+(?:um[a]?\s+)?(?:consultor|consultora|atendente|humano|pessoa)\b`,
					`(?i)\batendimento\s+humano\b`,
					`(?i)\bquero\s+um\s+humano\b`,
				),
			},
			{
				category: CategoryProposal,
				patterns: compile(
					`(?i)\b(?:manda|mandar|enviar|envia|gerar|fazer|quero)\s+(?:um[a]?\s+)?(?:proposta|cota[çc][ãa]o)\b`,
					`(?i)\bproposta\b`,
					`(?i)\bcota[çc][ãa]o\b`,
					`(?i)\bfechar\s+(?:o\s+)?(?:pacote|roteiro)\b`,
				),
			},
			{
				category: CategoryNotQualified,
				patterns: compile(
					`(?i)\b(?:s[óo]|apenas|somente)\s+(?:pesquisando|olhando|curiosidade)\b`,
					`(?i)\bsem\s+condi[çc][õo]es\b`,
					`(?i)\bn[ãa]o\s+tenho\s+(?:dinheiro|or[çc]amento|verba)\b`,
					`(?i)\bmuito\s+caro\s+pra\s+mim\b`,
				),
			},
			{
				category: CategoryDestination,
				patterns: compile(
					`(?i)\b(?:viajar|viagem|ir|conhecer)\s+(?:para|pra|a)\s+([\p{L}][\p{L} ]*?)(?:\s+(?:de|em|no|na|dia|com|entre|saindo|por)\b|\s*[,.!?;]|\s*$)`,
					`(?i)\bdestino\s*(?::|[ée])?\s*([\p{L}][\p{L} ]*?)(?:\s*[,.!?;]|\s*$)`,
				),
			},
			{
				category: CategoryDates,
				patterns: compile(
					`(?i)\bde\s+(\d{1,2}/\d{1,2}(?:/\d{2,4})?\s+(?:a|at[ée])\s+\d{1,2}/\d{1,2}(?:/\d{2,4})?)`,
					`(?i)\b(?:em|para|pra)\s+(janeiro|fevereiro|mar[çc]o|abril|maio|junho|julho|agosto|setembro|outubro|novembro|dezembro)\b`,
					`(?i)\b(pr[óo]xim[ao]s?\s+(?:semana|m[êe]s|feriado|f[ée]rias))\b`,
				),
			},
			{
				category: CategoryBudget,
				patterns: compile(
					`(?i)\bor[çc]amento\s*(?:de|:)?\s*(?:r\$\s*)?([\d][\d.,]*)`,
					`(?i)\b(?:at[ée]|investir|gastar)\s+(?:r\$\s*)?([\d][\d.,]{3,})`,
					`(?i)r\$\s*([\d][\d.,]*)`,
				),
			},
		},
		cancellationReasons: []reasonPattern{
			{regexp.MustCompile(`(?i)\bmudei\s+de\s+ideia\b`), "Mudou de ideia"},
			{regexp.MustCompile(`(?i)\b(?:muito\s+caro|pre[çc]o|caro\s+demais)\b`), "Preço alto"},
			{regexp.MustCompile(`(?i)\boutra\s+ag[êe]ncia\b`), "Fechou com concorrente"},
			{regexp.MustCompile(`(?i)\b(?:sem\s+tempo|n[ãa]o\s+posso\s+(?:mais\s+)?viajar|imprevisto)\b`), "Sem disponibilidade"},
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

// Match evaluates the text against every family. First match wins per family;
// a family contributes at most one category label and one capture.
func (m *Matcher) Match(text string) Result {
	var res Result
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return res
	}

	for _, fam := range m.families {
		for _, re := range fam.patterns {
			groups := re.FindStringSubmatch(trimmed)
			if groups == nil {
				continue
			}

			res.Categories = append(res.Categories, fam.category)
			if len(groups) > 1 {
				m.recordCapture(&res, fam.category, groups[1])
			}
			break
		}
	}

	if res.Has(CategoryCancellation) {
		res.CancellationReason = m.cancellationReason(trimmed)
	}

	return res
}

func (m *Matcher) recordCapture(res *Result, cat Category, raw string) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return
	}

	switch cat {
	case CategoryDestination:
		res.Destination = value
	case CategoryDates:
		res.TravelWindow = value
	case CategoryBudget:
		res.BudgetRaw = value
		res.Budget = parseAmount(value)
	}
}

// cancellationReason consults the secondary reason-keyword table. Best-effort:
// falls back to a generic reason when no keyword matches.
func (m *Matcher) cancellationReason(text string) string {
	for _, rp := range m.cancellationReasons {
		if rp.re.MatchString(text) {
			return rp.reason
		}
	}
	return "Não informado"
}

// parseAmount converts Brazilian-formatted money text ("15000", "15.000",
// "15.000,50") to a float. Returns 0 when unparseable.
func parseAmount(raw string) float64 {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, ".")
	s = strings.TrimSuffix(s, ",")

	if strings.Contains(s, ",") {
		// Dots are thousands separators when a decimal comma is present.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	} else if parts := strings.Split(s, "."); len(parts) > 1 {
		// "15.000" style grouping: every group after the first has 3 digits.
		grouped := true
		for _, p := range parts[1:] {
			if len(p) != 3 {
				grouped = false
				break
			}
		}
		if grouped {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
