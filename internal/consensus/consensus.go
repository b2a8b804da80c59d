// Package consensus implements the multi-agent Consensus Orchestrator
// (spec §4.6): proposer/verifier/integrator roles under sequential
// isolation, stakes-derived agreement thresholds, anti-gaming checks,
// and a bounded deadlock ladder.
//
// Grounded on internal/roles/ggs/ggs.go's bus-driven round/state-map
// shape (there: replan rounds keyed by task ID; here: discussion rounds
// keyed by proposal ID) and internal/roles/metaval/metaval.go's
// code-enforced (never model-enforced) gate logic.
package consensus

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/haricheung/ace/internal/bus"
	"github.com/haricheung/ace/internal/classifier"
	"github.com/haricheung/ace/internal/types"
)

const (
	maxDiscussionRounds  = 3
	hardRoundCap         = 10
	minJustificationLen  = 15
	keywordOverlapMin    = 0.2
	defaultRoundTimeout  = 120 * time.Second
)

// DeriveStakes infers a Stakes level from an action class when the
// caller supplied none (spec §4.6): low for read/list/search/observe,
// high for delete/deploy/architecture/external-comms or anything
// hard-ceiling-adjacent, medium otherwise.
func DeriveStakes(class string, hasHardCeiling bool) types.Stakes {
	if hasHardCeiling {
		return types.StakesHigh
	}
	segs := strings.Split(class, ":")
	if len(segs) == 0 {
		return types.StakesMedium
	}
	if segs[0] == "comm" || segs[0] == "external" {
		return types.StakesHigh
	}
	verb := segs[0]
	if len(segs) > 1 {
		verb = segs[1]
	}
	switch verb {
	case "read", "list", "search", "observe", "view":
		return types.StakesLow
	case "delete", "deploy", "architecture", "comm", "external":
		return types.StakesHigh
	default:
		return types.StakesMedium
	}
}

// ThresholdFor maps Stakes to the agreement bar a proposal must clear
// (spec §4.6). A hard-ceiling-adjacent class always requires human
// confirmation regardless of the stakes level supplied.
func ThresholdFor(stakes types.Stakes, hardCeiling bool) types.ConsensusThreshold {
	if hardCeiling {
		return types.ThresholdUnanimousAndHuman
	}
	switch stakes {
	case types.StakesLow:
		return types.Threshold2of3
	case types.StakesHigh:
		return types.ThresholdUnanimousAndHuman
	default:
		return types.ThresholdUnanimous
	}
}

// ValidateProposal rejects value-washing proposals: missing actions,
// missing value justifications, or generic one-word justifications
// (spec §4.6 step 1).
func ValidateProposal(p types.Proposal) error {
	if len(p.Actions) == 0 {
		return fmt.Errorf("proposal %s: no actions", p.ID)
	}
	if len(p.ValueJustification) == 0 {
		return fmt.Errorf("proposal %s: missing value justification", p.ID)
	}
	for value, justification := range p.ValueJustification {
		trimmed := strings.TrimSpace(justification)
		if len(trimmed) < minJustificationLen || !strings.Contains(trimmed, " ") {
			return fmt.Errorf("proposal %s: value-washing justification for %q: %q", p.ID, value, justification)
		}
	}
	if len(p.ExpectedOutcomes) == 0 {
		return fmt.Errorf("proposal %s: no expected outcomes", p.ID)
	}
	return nil
}

// AntiGamingResult is the verifier's anti-gaming check outcome (spec
// §4.6).
type AntiGamingResult struct {
	Flagged bool
	Reasons []string
}

// AntiGamingChecks runs the four checks the verifier must apply before
// voting: generic justifications, keyword-overlap implausibility,
// undeclared tools, and a repeated class+detail within cooldown. The
// four checks are independent of each other, so they run concurrently
// via errgroup; results are collected into fixed slots so the returned
// Reasons order never depends on goroutine scheduling.
func AntiGamingChecks(p types.Proposal, declaredTools map[string]bool, invokedTools []string, recentApproved []types.Proposal, cooldown time.Duration, now time.Time) AntiGamingResult {
	slots := make([][]string, 4)
	var g errgroup.Group

	g.Go(func() error {
		if err := ValidateProposal(p); err != nil {
			slots[0] = []string{"generic or missing value justification: " + err.Error()}
		}
		return nil
	})

	g.Go(func() error {
		var out []string
		actions := strings.Join(actionDescriptions(p), " ")
		for value, justification := range p.ValueJustification {
			if overlapScore(justification, actions) < keywordOverlapMin {
				out = append(out, fmt.Sprintf("claimed value %q not plausibly served by the proposed actions", value))
			}
		}
		slots[1] = out
		return nil
	})

	g.Go(func() error {
		var out []string
		for _, invoked := range invokedTools {
			if !declaredTools[invoked] {
				out = append(out, "hidden step: undeclared tool invoked: "+invoked)
			}
		}
		slots[2] = out
		return nil
	})

	g.Go(func() error {
		for _, prior := range recentApproved {
			if prior.ID == p.ID {
				continue
			}
			if now.Sub(prior.CreatedAt) > cooldown {
				continue
			}
			if sameActionClasses(prior.Actions, p.Actions) {
				slots[3] = []string{"repetitive pattern: same action classes approved within the cooldown window"}
				break
			}
		}
		return nil
	})

	_ = g.Wait()

	var reasons []string
	for _, s := range slots {
		reasons = append(reasons, s...)
	}
	return AntiGamingResult{Flagged: len(reasons) > 0, Reasons: reasons}
}

func actionDescriptions(p types.Proposal) []string {
	out := make([]string, 0, len(p.Actions))
	for _, a := range p.Actions {
		out = append(out, a.Class, a.Motivation)
	}
	return out
}

func sameActionClasses(a, b []types.ActionDescriptor) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Class != b[i].Class {
			return false
		}
	}
	return true
}

// overlapScore is the simple keyword-overlap ratio used by the
// keyword-overlap anti-gaming check: the fraction of b's distinct words
// also present in a.
func overlapScore(a, b string) float64 {
	aWords := wordSet(a)
	bWords := wordSet(b)
	if len(bWords) == 0 {
		return 0
	}
	hits := 0
	for w := range bWords {
		if aWords[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(bWords))
}

func wordSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if w != "" {
			out[w] = true
		}
	}
	return out
}

// VerifierFunc votes on a proposal without seeing the integrator's
// decision (sequential isolation, spec §4.6).
type VerifierFunc func(ctx context.Context, p types.Proposal) (types.Vote, error)

// IntegratorFunc votes having seen the verifier's vote.
type IntegratorFunc func(ctx context.Context, p types.Proposal, verifierVote types.Vote, round int) (types.Vote, error)

// WeightedValue is one agent's stance on one declared value, used only
// by the weight-based tiebreak stage of the deadlock ladder.
type WeightedValue struct {
	Value  string
	Weight float64
}

// Orchestrate runs the verifier→integrator round loop for one proposal
// to its terminal Consensus outcome (spec §4.6 lifecycle steps 2-4).
// The caller is expected to have already populated p.Votes[RoleProposer]
// and the proposal body before calling.
func Orchestrate(ctx context.Context, b *bus.Bus, p *types.Proposal, threshold types.ConsensusThreshold, verifier VerifierFunc, integrator IntegratorFunc, tiebreakWeights []WeightedValue, now func() time.Time) (types.Consensus, error) {
	if p.Votes == nil {
		p.Votes = map[types.ConsensusRole]types.Vote{}
	}

	round := 0
	for {
		round++
		if round > hardRoundCap {
			return escalate(p, threshold, "hard round cap exceeded"), nil
		}

		roundCtx, cancel := context.WithTimeout(ctx, defaultRoundTimeout)
		verdict, err := verifier(roundCtx, *p)
		cancel()
		if err != nil {
			return types.Consensus{}, fmt.Errorf("verifier round %d: %w", round, err)
		}
		p.Votes[types.RoleVerifier] = verdict
		if b != nil {
			b.Publish(bus.Event{Type: bus.EventVote, From: string(types.RoleVerifier), Payload: verdict, Timestamp: now()})
		}

		// Sequential isolation: the integrator sees the verifier's vote,
		// but the verifier never sees the integrator's decision.
		roundCtx, cancel = context.WithTimeout(ctx, defaultRoundTimeout)
		integratorVote, err := integrator(roundCtx, *p, verdict, round)
		cancel()
		if err != nil {
			return types.Consensus{}, fmt.Errorf("integrator round %d: %w", round, err)
		}
		p.Votes[types.RoleIntegrator] = integratorVote
		if b != nil {
			b.Publish(bus.Event{Type: bus.EventIntegration, From: string(types.RoleIntegrator), Payload: integratorVote, Timestamp: now()})
		}

		// A proposal can clear its threshold (e.g. 2-of-3) even when one
		// of the two role votes individually reads as a reject.
		if satisfiesThreshold(threshold, verdict, integratorVote) {
			result := integratorVote.Decision
			if result == types.DecisionReject {
				result = verdict.Decision
			}
			return types.Consensus{Reached: true, Threshold: threshold, Stakes: p.Actions[0].Stakes, Result: result}, nil
		}

		if integratorVote.Decision == types.DecisionEscalateToHuman {
			return escalate(p, threshold, "integrator escalated directly"), nil
		}

		if round <= maxDiscussionRounds {
			continue
		}
		if len(tiebreakWeights) > 0 {
			if result, ok := weightTiebreak(tiebreakWeights); ok {
				return types.Consensus{Reached: true, Threshold: threshold, Stakes: p.Actions[0].Stakes, Result: result}, nil
			}
		}
		return escalate(p, threshold, "deadlock ladder exhausted without a tiebreak"), nil
	}
}

// satisfiesThreshold reports whether the accumulated votes clear the
// stakes-derived bar. unanimous+human additionally requires an
// out-of-band human confirmation, which Orchestrate cannot itself
// supply — callers needing that confirmation gate it before accepting
// a Reached=true, Threshold=unanimous+human consensus.
func satisfiesThreshold(threshold types.ConsensusThreshold, verifierVote, integratorVote types.Vote) bool {
	approves := func(v types.Vote) bool {
		return v.Decision == types.DecisionApprove || v.Decision == types.DecisionApproveWithConcern
	}
	switch threshold {
	case types.Threshold2of3:
		return approves(verifierVote) || approves(integratorVote)
	case types.ThresholdUnanimous, types.ThresholdUnanimousAndHuman:
		return approves(verifierVote) && approves(integratorVote)
	default:
		return false
	}
}

// weightTiebreak sums per-value weights and breaks the tie toward
// approval when the net weight is positive (spec §4.6 step 4c).
func weightTiebreak(weights []WeightedValue) (types.VoteDecision, bool) {
	var sum float64
	for _, w := range weights {
		sum += w.Weight
	}
	if sum == 0 {
		return "", false
	}
	if sum > 0 {
		return types.DecisionApprove, true
	}
	return types.DecisionReject, true
}

func escalate(p *types.Proposal, threshold types.ConsensusThreshold, reason string) types.Consensus {
	log.Printf("[CONSENSUS] proposal=%s escalating to human: %s", p.ID, reason)
	p.Status = types.ProposalRejected
	stakes := types.StakesMedium
	if len(p.Actions) > 0 {
		stakes = p.Actions[0].Stakes
	}
	return types.Consensus{
		Reached:   false,
		Threshold: threshold,
		Stakes:    stakes,
		Result:    types.DecisionEscalateToHuman,
	}
}

// NewProposalID mints a proposal identifier.
func NewProposalID() string { return uuid.New().String() }

// HasHardCeilingAction reports whether any action in the proposal
// matches a hard-ceiling pattern, forcing unanimous+human regardless of
// derived stakes.
func HasHardCeilingAction(p types.Proposal) bool {
	for _, a := range p.Actions {
		if classifier.HasHardCeiling(a.Class) {
			return true
		}
	}
	return false
}
