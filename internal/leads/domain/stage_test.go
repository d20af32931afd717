package domain

import "testing"

func TestIsTerminal(t *testing.T) {
	terminal := []string{StageClosed, StageCancelled, StageDisqualified}
	for _, stage := range terminal {
		if !IsTerminal(stage) {
			t.Errorf("expected %s to be terminal", stage)
		}
	}

	open := []string{StageNew, StageQualifying, StageProposalRequested, StageProposalSent, StageNegotiating}
	for _, stage := range open {
		if IsTerminal(stage) {
			t.Errorf("expected %s to be non-terminal", stage)
		}
	}
}

func TestIsKnownStage(t *testing.T) {
	if !IsKnownStage(StageNegotiating) {
		t.Error("Negotiating should be a known stage")
	}
	if IsKnownStage("Estimation") {
		t.Error("Estimation is not part of this pipeline")
	}
	if IsKnownStage(StageUnchanged) {
		t.Error("the unchanged sentinel is not a stage")
	}
}

func TestQualificationTripleComplete(t *testing.T) {
	cases := []struct {
		name string
		q    Qualification
		want bool
	}{
		{"empty", Qualification{}, false},
		{"destination only", Qualification{Destination: "Paris"}, false},
		{"missing budget", Qualification{Destination: "Paris", TravelWindow: "10/12 a 20/12"}, false},
		{"complete", Qualification{Destination: "Paris", TravelWindow: "10/12 a 20/12", Budget: 15000}, true},
		{"zero budget", Qualification{Destination: "Paris", TravelWindow: "10/12 a 20/12", Budget: 0}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.q.TripleComplete(); got != tc.want {
				t.Errorf("TripleComplete() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestQualificationMergeKeepsExisting(t *testing.T) {
	stored := Qualification{Destination: "Paris", Budget: 12000}
	captured := Qualification{TravelWindow: "janeiro", Budget: 0}

	merged := stored.Merge(captured)

	if merged.Destination != "Paris" {
		t.Errorf("destination lost in merge: %q", merged.Destination)
	}
	if merged.TravelWindow != "janeiro" {
		t.Errorf("travel window not merged: %q", merged.TravelWindow)
	}
	if merged.Budget != 12000 {
		t.Errorf("budget overwritten by empty capture: %v", merged.Budget)
	}
}

func TestClampScore(t *testing.T) {
	if got := ClampScore(130); got != 100 {
		t.Errorf("ClampScore(130) = %d", got)
	}
	if got := ClampScore(-10); got != 0 {
		t.Errorf("ClampScore(-10) = %d", got)
	}
	if got := ClampScore(55); got != 55 {
		t.Errorf("ClampScore(55) = %d", got)
	}
}
