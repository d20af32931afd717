package trigger

import (
	"testing"
)

func TestQualificationMessageCapturesAllThree(t *testing.T) {
	m := New()
	res := m.Match("Quero viajar para Paris de 10/12 a 20/12, orçamento 15000")

	if !res.Has(CategoryDestination) {
		t.Error("destination family did not match")
	}
	if res.Destination != "Paris" {
		t.Errorf("destination = %q, want Paris", res.Destination)
	}
	if !res.Has(CategoryDates) {
		t.Error("dates family did not match")
	}
	if res.TravelWindow != "10/12 a 20/12" {
		t.Errorf("travel window = %q, want 10/12 a 20/12", res.TravelWindow)
	}
	if !res.Has(CategoryBudget) {
		t.Error("budget family did not match")
	}
	if res.Budget != 15000 {
		t.Errorf("budget = %v, want 15000", res.Budget)
	}
}

func TestCancellationWithReason(t *testing.T) {
	m := New()
	res := m.Match("quero cancelar, mudei de ideia")

	if !res.Has(CategoryCancellation) {
		t.Fatal("cancellation family did not match")
	}
	if res.CancellationReason != "Mudou de ideia" {
		t.Errorf("reason = %q, want Mudou de ideia", res.CancellationReason)
	}
}

func TestCancellationWithoutKeywordFallsBack(t *testing.T) {
	m := New()
	res := m.Match("pode cancelar tudo por favor")

	if !res.Has(CategoryCancellation) {
		t.Fatal("cancellation family did not match")
	}
	if res.CancellationReason != "Não informado" {
		t.Errorf("reason = %q, want fallback", res.CancellationReason)
	}
}

func TestHumanHandoverRequest(t *testing.T) {
	m := New()
	res := m.Match("Quero falar com um consultor urgente")

	if !res.Has(CategoryHumanHandover) {
		t.Error("human-handover family did not match")
	}
}

func TestProposalRequest(t *testing.T) {
	m := New()

	for _, msg := range []string{
		"pode mandar a proposta?",
		"quero uma cotação pra esse roteiro",
	} {
		if res := m.Match(msg); !res.Has(CategoryProposal) {
			t.Errorf("proposal family did not match %q", msg)
		}
	}
}

func TestNotQualified(t *testing.T) {
	m := New()
	res := m.Match("estou só pesquisando por enquanto")

	if !res.Has(CategoryNotQualified) {
		t.Error("not-qualified family did not match")
	}
}

func TestFirstMatchWinsWithinFamily(t *testing.T) {
	m := New()
	// Both destination patterns could fire; only one capture is recorded.
	res := m.Match("quero viajar para Lisboa, destino: Porto")

	if res.Destination != "Lisboa" {
		t.Errorf("destination = %q, want first capture Lisboa", res.Destination)
	}
	count := 0
	for _, c := range res.Categories {
		if c == CategoryDestination {
			count++
		}
	}
	if count != 1 {
		t.Errorf("destination family recorded %d times, want 1", count)
	}
}

func TestEmptyAndNeutralTextMatchNothing(t *testing.T) {
	m := New()

	for _, msg := range []string{"", "   ", "bom dia, tudo bem?"} {
		if res := m.Match(msg); len(res.Categories) != 0 {
			t.Errorf("expected no matches for %q, got %v", msg, res.Categories)
		}
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{"15000", 15000},
		{"15.000", 15000},
		{"15.000,50", 15000.50},
		{"1.234.567", 1234567},
		{"8000,", 8000},
		{"3.14", 3.14},
	}
	for _, tc := range cases {
		if got := parseAmount(tc.raw); got != tc.want {
			t.Errorf("parseAmount(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestBudgetFromCurrencyPrefix(t *testing.T) {
	m := New()
	res := m.Match("posso gastar R$ 8.000 nessa viagem")

	if !res.Has(CategoryBudget) {
		t.Fatal("budget family did not match")
	}
	if res.Budget != 8000 {
		t.Errorf("budget = %v, want 8000", res.Budget)
	}
}
