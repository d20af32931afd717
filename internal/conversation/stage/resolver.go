// Package stage decides pipeline stage transitions from matched triggers and
// accumulated qualification data. The resolver proposes at most one transition
// per message; the orchestrator applies it.
package stage

import (
	"fmt"

	"tripflow_backend/internal/conversation/trigger"
	leaddomain "tripflow_backend/internal/leads/domain"
)

// Proposal is the resolver's verdict for one inbound message. Stage is
// StageUnchanged when no transition applies; Captured always carries any
// newly extracted qualification fields so partial data is persisted even
// without a transition.
type Proposal struct {
	Stage      string
	Confidence float64
	Reason     string

	// Qualified is set when the qualification triple completed on this message.
	Qualified bool

	// RequestHandoff marks transitions that mandate a human, independent of
	// the handoff scoring policy.
	RequestHandoff bool
	HandoffReason  string

	Captured leaddomain.Qualification
}

// Transitions reports whether the proposal prescribes a stage change.
func (p Proposal) Transitions() bool {
	return p.Stage != leaddomain.StageUnchanged
}

// Resolver combines trigger output with the lead's stored qualification data.
// Stateless; safe for concurrent use.
type Resolver struct{}

func New() *Resolver {
	return &Resolver{}
}

// Resolve applies the priority rules in order, first match wins:
//
//  1. cancellation → Cancelled. Cancellation intent is never overridden by
//     co-occurring qualification data.
//  2. generate-proposal while Qualifying → Proposal_Requested; a human must
//     author the proposal, so this always requests a handoff.
//  3. not-qualified → Disqualified.
//  4. qualification triple complete (stored + this message) → Qualifying.
//
// Terminal leads receive no transition; captures are still returned.
func (r *Resolver) Resolve(currentStage string, known leaddomain.Qualification, match trigger.Result) Proposal {
	prop := Proposal{
		Stage: leaddomain.StageUnchanged,
		Captured: leaddomain.Qualification{
			Destination:  match.Destination,
			TravelWindow: match.TravelWindow,
			Budget:       match.Budget,
		},
	}

	if leaddomain.IsTerminal(currentStage) {
		return prop
	}

	if match.Has(trigger.CategoryCancellation) {
		prop.Stage = leaddomain.StageCancelled
		prop.Confidence = 0.8
		prop.Reason = match.CancellationReason
		return prop
	}

	if currentStage == leaddomain.StageQualifying && match.Has(trigger.CategoryProposal) {
		prop.Stage = leaddomain.StageProposalRequested
		prop.Confidence = 0.85
		prop.Reason = "proposta solicitada pelo lead"
		prop.RequestHandoff = true
		prop.HandoffReason = "Lead solicitou proposta"
		return prop
	}

	if match.Has(trigger.CategoryNotQualified) {
		prop.Stage = leaddomain.StageDisqualified
		prop.Confidence = 0.8
		prop.Reason = "lead sem perfil de compra"
		return prop
	}

	merged := known.Merge(prop.Captured)
	if merged.TripleComplete() && leaddomain.StageRank(currentStage) < leaddomain.StageRank(leaddomain.StageQualifying) {
		prop.Stage = leaddomain.StageQualifying
		prop.Confidence = 0.9
		prop.Qualified = true
		prop.Reason = fmt.Sprintf("qualificação completa: %s, %s, orçamento %.0f",
			merged.Destination, merged.TravelWindow, merged.Budget)
		return prop
	}

	return prop
}
