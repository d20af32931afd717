package handoff

import (
	"testing"
	"time"
)

const testHighValueBudget = 10000

func TestHumanRequestWithUrgencyIsUrgent(t *testing.T) {
	p := New(testHighValueBudget)
	d := p.Evaluate("Quero falar com um consultor urgente", Context{})

	if !d.ShouldHandover {
		t.Error("explicit human request must hand over")
	}
	if d.Priority != PriorityUrgent {
		t.Errorf("priority = %s, want urgent (score %d)", d.Priority, d.Score)
	}
	if d.Score != weightHumanRequest+weightUrgency {
		t.Errorf("score = %d, want %d", d.Score, weightHumanRequest+weightUrgency)
	}
}

func TestCategoryCountsOnceDespiteRepeatedKeywords(t *testing.T) {
	p := New(testHighValueBudget)

	single := p.Evaluate("quero um desconto", Context{})
	repeated := p.Evaluate("quero um desconto, desconto, e mais desconto pra negociar", Context{})

	if single.Score != weightNegotiation {
		t.Fatalf("single score = %d, want %d", single.Score, weightNegotiation)
	}
	if repeated.Score != single.Score {
		t.Errorf("repeated keywords changed score: %d vs %d", repeated.Score, single.Score)
	}
}

func TestNeutralMessageDoesNotHandover(t *testing.T) {
	p := New(testHighValueBudget)
	d := p.Evaluate("bom dia, tudo bem?", Context{})

	if d.ShouldHandover {
		t.Errorf("neutral message handed over with score %d (%v)", d.Score, d.Reasons)
	}
	if d.Priority != PriorityLow {
		t.Errorf("priority = %s, want low", d.Priority)
	}
}

// Adding context bonuses must never lower the score.
func TestScoreMonotonicUnderContextBonuses(t *testing.T) {
	p := New(testHighValueBudget)
	msg := "tem desconto nesse pacote?"
	now := time.Now()

	contexts := []Context{
		{},
		{Qualified: true},
		{Qualified: true, LeadScore: 80},
		{Qualified: true, LeadScore: 80, Budget: 15000},
		{Qualified: true, LeadScore: 80, Budget: 15000, AITurns: 3},
		{Qualified: true, LeadScore: 80, Budget: 15000, AITurns: 3, StartedAt: now.Add(-15 * time.Minute), Now: now},
		{Qualified: true, LeadScore: 80, Budget: 15000, AITurns: 3, StartedAt: now.Add(-15 * time.Minute), Now: now, ProposalSent: true},
	}

	prev := -1
	for i, cctx := range contexts {
		d := p.Evaluate(msg, cctx)
		if d.Score < prev {
			t.Errorf("score decreased at context %d: %d < %d", i, d.Score, prev)
		}
		prev = d.Score
	}
}

func TestContextBonusValues(t *testing.T) {
	p := New(testHighValueBudget)
	now := time.Now()

	d := p.Evaluate("mensagem neutra", Context{
		Qualified:    true,
		LeadScore:    75,
		Budget:       12000,
		AITurns:      4,
		StartedAt:    now.Add(-11 * time.Minute),
		Now:          now,
		ProposalSent: true,
	})

	want := bonusQualified + bonusHighScore + bonusHighBudget + bonusManyAITurns + bonusLongDuration + bonusProposalSent
	if d.Score != want {
		t.Errorf("score = %d, want %d (%v)", d.Score, want, d.Reasons)
	}
}

func TestBudgetAtThresholdDoesNotCount(t *testing.T) {
	p := New(testHighValueBudget)

	at := p.Evaluate("ok", Context{Budget: testHighValueBudget})
	above := p.Evaluate("ok", Context{Budget: testHighValueBudget + 1})

	if at.Score != 0 {
		t.Errorf("budget exactly at threshold scored %d", at.Score)
	}
	if above.Score != bonusHighBudget {
		t.Errorf("budget above threshold scored %d, want %d", above.Score, bonusHighBudget)
	}
}

func TestTierBoundaries(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{0, PriorityLow},
		{39, PriorityLow},
		{40, PriorityMedium},
		{59, PriorityMedium},
		{60, PriorityHigh},
		{79, PriorityHigh},
		{80, PriorityUrgent},
		{120, PriorityUrgent},
	}
	for _, tc := range cases {
		if got := tierFor(tc.score); got != tc.want {
			t.Errorf("tierFor(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestReasonsFollowEvaluationOrder(t *testing.T) {
	p := New(testHighValueBudget)
	d := p.Evaluate("quero fechar, mas preciso de um desconto urgente", Context{Qualified: true})

	want := []string{"intenção de compra", "urgência", "negociação de preço", "lead qualificado"}
	if len(d.Reasons) != len(want) {
		t.Fatalf("reasons = %v, want %v", d.Reasons, want)
	}
	for i := range want {
		if d.Reasons[i] != want[i] {
			t.Errorf("reason[%d] = %q, want %q", i, d.Reasons[i], want[i])
		}
	}
}

func TestComplexQuestionAloneIsBelowThreshold(t *testing.T) {
	p := New(testHighValueBudget)
	d := p.Evaluate("precisa de visto para esse destino?", Context{})

	if d.ShouldHandover {
		t.Error("a lone complex question must not hand over")
	}
	if d.Score != weightComplexQuestion {
		t.Errorf("score = %d, want %d", d.Score, weightComplexQuestion)
	}
}
