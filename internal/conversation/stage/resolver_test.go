package stage

import (
	"testing"

	"tripflow_backend/internal/conversation/trigger"
	leaddomain "tripflow_backend/internal/leads/domain"
)

func TestFullQualificationMessageAdvancesToQualifying(t *testing.T) {
	// End-to-end fixture: New-stage lead with no prior data.
	match := trigger.New().Match("Quero viajar para Paris de 10/12 a 20/12, orçamento 15000")
	prop := New().Resolve(leaddomain.StageNew, leaddomain.Qualification{}, match)

	if prop.Stage != leaddomain.StageQualifying {
		t.Fatalf("stage = %q, want Qualifying", prop.Stage)
	}
	if !prop.Qualified {
		t.Error("qualified flag not set")
	}
	if prop.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", prop.Confidence)
	}
	if prop.Captured.Destination != "Paris" {
		t.Errorf("captured destination = %q, want Paris", prop.Captured.Destination)
	}
	if prop.Captured.Budget != 15000 {
		t.Errorf("captured budget = %v, want 15000", prop.Captured.Budget)
	}
}

func TestCancellationWinsOverQualification(t *testing.T) {
	// A message carrying both cancellation and a complete qualification triple
	// must still resolve to Cancelled.
	match := trigger.New().Match("quero cancelar, mudei de ideia, era uma viagem para Paris de 10/12 a 20/12, orçamento 15000")
	prop := New().Resolve(leaddomain.StageNew, leaddomain.Qualification{}, match)

	if prop.Stage != leaddomain.StageCancelled {
		t.Fatalf("stage = %q, want Cancelled", prop.Stage)
	}
	if prop.Confidence != 0.8 {
		t.Errorf("confidence = %v, want 0.8", prop.Confidence)
	}
	if prop.Reason != "Mudou de ideia" {
		t.Errorf("reason = %q, want Mudou de ideia", prop.Reason)
	}
	if prop.Qualified {
		t.Error("qualified must not be set on cancellation")
	}
}

func TestProposalRequestWhileQualifyingMandatesHandoff(t *testing.T) {
	match := trigger.New().Match("pode mandar a proposta?")
	prop := New().Resolve(leaddomain.StageQualifying, leaddomain.Qualification{}, match)

	if prop.Stage != leaddomain.StageProposalRequested {
		t.Fatalf("stage = %q, want Proposal_Requested", prop.Stage)
	}
	if !prop.RequestHandoff {
		t.Error("proposal request must mandate a handoff")
	}
	if prop.HandoffReason == "" {
		t.Error("handoff reason missing")
	}
}

func TestProposalRequestOutsideQualifyingIsIgnored(t *testing.T) {
	match := trigger.New().Match("pode mandar a proposta?")
	prop := New().Resolve(leaddomain.StageNew, leaddomain.Qualification{}, match)

	if prop.Transitions() {
		t.Errorf("unexpected transition to %q from New", prop.Stage)
	}
}

func TestNotQualifiedDisqualifies(t *testing.T) {
	match := trigger.New().Match("estou só pesquisando mesmo")
	prop := New().Resolve(leaddomain.StageNew, leaddomain.Qualification{}, match)

	if prop.Stage != leaddomain.StageDisqualified {
		t.Fatalf("stage = %q, want Disqualified", prop.Stage)
	}
}

func TestPartialCaptureIsPersistedWithoutTransition(t *testing.T) {
	match := trigger.New().Match("quero viajar para Roma")
	prop := New().Resolve(leaddomain.StageNew, leaddomain.Qualification{}, match)

	if prop.Transitions() {
		t.Errorf("unexpected transition to %q", prop.Stage)
	}
	if prop.Captured.Destination != "Roma" {
		t.Errorf("captured destination = %q, want Roma", prop.Captured.Destination)
	}
}

func TestStoredFieldsCompleteTheTriple(t *testing.T) {
	// Destination and window already known; only the budget arrives now.
	known := leaddomain.Qualification{Destination: "Roma", TravelWindow: "janeiro"}
	match := trigger.New().Match("meu orçamento é de R$ 12.000")
	prop := New().Resolve(leaddomain.StageNew, known, match)

	if prop.Stage != leaddomain.StageQualifying {
		t.Fatalf("stage = %q, want Qualifying", prop.Stage)
	}
	if !prop.Qualified {
		t.Error("qualified flag not set")
	}
}

func TestNoRegressionFromLaterStages(t *testing.T) {
	known := leaddomain.Qualification{Destination: "Roma", TravelWindow: "janeiro", Budget: 9000}
	match := trigger.New().Match("meu orçamento é de R$ 12.000")
	prop := New().Resolve(leaddomain.StageProposalSent, known, match)

	if prop.Transitions() {
		t.Errorf("lead in Proposal_Sent must not regress, got %q", prop.Stage)
	}
}

func TestTerminalStageProposesNothing(t *testing.T) {
	for _, stg := range []string{leaddomain.StageClosed, leaddomain.StageCancelled, leaddomain.StageDisqualified} {
		match := trigger.New().Match("quero cancelar")
		prop := New().Resolve(stg, leaddomain.Qualification{}, match)
		if prop.Transitions() {
			t.Errorf("terminal stage %s produced transition to %q", stg, prop.Stage)
		}
	}
}

func TestNeutralMessageProposesNothing(t *testing.T) {
	match := trigger.New().Match("bom dia, tudo bem?")
	prop := New().Resolve(leaddomain.StageNew, leaddomain.Qualification{}, match)

	if prop.Transitions() {
		t.Errorf("unexpected transition to %q", prop.Stage)
	}
	if prop.Captured != (leaddomain.Qualification{}) {
		t.Errorf("unexpected captures: %+v", prop.Captured)
	}
}
