package domain

const (
	// StageUnchanged is a sentinel indicating that a resolver intentionally
	// does not prescribe a stage. The caller must keep the lead's current stage.
	StageUnchanged = ""

	StageNew               = "New"
	StageQualifying        = "Qualifying"
	StageProposalRequested = "Proposal_Requested"
	StageProposalSent      = "Proposal_Sent"
	StageNegotiating       = "Negotiating"
	StageClosed            = "Closed"
	StageCancelled         = "Cancelled"
	StageDisqualified      = "Disqualified"
)

// stageOrder reflects pipeline progression. Terminal stages share the
// highest rank since nothing follows them.
var stageOrder = map[string]int{
	StageNew:               0,
	StageQualifying:        1,
	StageProposalRequested: 2,
	StageProposalSent:      3,
	StageNegotiating:       4,
	StageClosed:            5,
	StageCancelled:         5,
	StageDisqualified:      5,
}

var terminalStages = map[string]bool{
	StageClosed:       true,
	StageCancelled:    true,
	StageDisqualified: true,
}

// IsKnownStage reports whether stage is part of the pipeline enum.
func IsKnownStage(stage string) bool {
	_, ok := stageOrder[stage]
	return ok
}

// IsTerminal reports whether the stage ends the pipeline. Terminal leads must
// not receive further stage transitions or AI processing.
func IsTerminal(stage string) bool {
	return terminalStages[stage]
}

// StageRank returns the progression rank of a stage, or -1 for unknown
// stages. Used to prevent automated transitions from moving a lead backwards.
func StageRank(stage string) int {
	rank, ok := stageOrder[stage]
	if !ok {
		return -1
	}
	return rank
}

// Qualification holds the lead's accumulated qualification data. Fields stay
// empty until captured from the conversation.
type Qualification struct {
	Destination  string
	TravelWindow string
	Budget       float64
	PartySize    int
}

// TripleComplete reports whether destination, travel window, and budget are
// all known. A lead may only enter Qualifying once the triple is complete,
// unless manually advanced.
func (q Qualification) TripleComplete() bool {
	return q.Destination != "" && q.TravelWindow != "" && q.Budget > 0
}

// Merge overlays newly captured fields onto the stored qualification,
// keeping existing values when the capture is empty.
func (q Qualification) Merge(captured Qualification) Qualification {
	out := q
	if captured.Destination != "" {
		out.Destination = captured.Destination
	}
	if captured.TravelWindow != "" {
		out.TravelWindow = captured.TravelWindow
	}
	if captured.Budget > 0 {
		out.Budget = captured.Budget
	}
	if captured.PartySize > 0 {
		out.PartySize = captured.PartySize
	}
	return out
}

// ClampScore keeps a lead score inside [0,100].
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
