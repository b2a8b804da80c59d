package consensus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haricheung/ace/internal/types"
)

func TestDeriveStakes(t *testing.T) {
	assert.Equal(t, types.StakesLow, DeriveStakes("filesystem:read:local", false))
	assert.Equal(t, types.StakesHigh, DeriveStakes("fs:delete:local", false))
	assert.Equal(t, types.StakesHigh, DeriveStakes("anything:anything:anything", true))
	assert.Equal(t, types.StakesMedium, DeriveStakes("git:commit:local", false))
}

func TestThresholdFor(t *testing.T) {
	assert.Equal(t, types.Threshold2of3, ThresholdFor(types.StakesLow, false))
	assert.Equal(t, types.ThresholdUnanimous, ThresholdFor(types.StakesMedium, false))
	assert.Equal(t, types.ThresholdUnanimousAndHuman, ThresholdFor(types.StakesHigh, false))
	assert.Equal(t, types.ThresholdUnanimousAndHuman, ThresholdFor(types.StakesLow, true))
}

func validProposal() types.Proposal {
	return types.Proposal{
		ID:     "p1",
		Status: types.ProposalPending,
		Goal:   "fix failing test",
		Actions: []types.ActionDescriptor{
			{Class: "git:commit:local", Motivation: "apply the fix", Stakes: types.StakesMedium},
		},
		ValueJustification: map[string]string{"correctness": "fixes the failing assertion in the test suite"},
		ExpectedOutcomes:   []string{"test suite passes"},
		CreatedAt:          time.Now(),
	}
}

func TestValidateProposal_RejectsGenericJustification(t *testing.T) {
	p := validProposal()
	p.ValueJustification = map[string]string{"correctness": "good"}
	err := ValidateProposal(p)
	assert.Error(t, err)
}

func TestValidateProposal_AcceptsSubstantiveJustification(t *testing.T) {
	err := ValidateProposal(validProposal())
	assert.NoError(t, err)
}

func TestAntiGamingChecks_FlagsHiddenTool(t *testing.T) {
	p := validProposal()
	declared := map[string]bool{"shell": true}
	result := AntiGamingChecks(p, declared, []string{"shell", "network"}, nil, time.Hour, time.Now())
	assert.True(t, result.Flagged)
	assert.Contains(t, result.Reasons[len(result.Reasons)-1], "undeclared tool")
}

func TestAntiGamingChecks_FlagsRepetitionWithinCooldown(t *testing.T) {
	now := time.Now()
	p := validProposal()
	prior := validProposal()
	prior.ID = "p0"
	prior.CreatedAt = now.Add(-time.Minute)

	result := AntiGamingChecks(p, map[string]bool{}, nil, []types.Proposal{prior}, time.Hour, now)
	assert.True(t, result.Flagged)
}

func TestAntiGamingChecks_CleanProposalNotFlagged(t *testing.T) {
	p := validProposal()
	result := AntiGamingChecks(p, map[string]bool{}, nil, nil, time.Hour, time.Now())
	assert.False(t, result.Flagged)
}

func approveVote() types.Vote {
	return types.Vote{Decision: types.DecisionApprove, Rationale: "looks correct", Timestamp: time.Now()}
}

func rejectVote(concern string) types.Vote {
	return types.Vote{Decision: types.DecisionReject, Rationale: concern, Concerns: []string{concern}, Timestamp: time.Now()}
}

func TestOrchestrate_UnanimousApproveReachesConsensus(t *testing.T) {
	p := validProposal()
	threshold := ThresholdFor(types.StakesMedium, false)

	verifier := func(ctx context.Context, prop types.Proposal) (types.Vote, error) { return approveVote(), nil }
	integrator := func(ctx context.Context, prop types.Proposal, v types.Vote, round int) (types.Vote, error) {
		return approveVote(), nil
	}

	c, err := Orchestrate(context.Background(), nil, &p, threshold, verifier, integrator, nil, time.Now)
	require.NoError(t, err)
	assert.True(t, c.Reached)
	assert.Equal(t, types.DecisionApprove, c.Result)
}

// TestOrchestrate_S7Deadlock mirrors spec scenario S7: two rounds of
// disagreement on a medium-stakes action, integrator proposes
// compromise, verifier keeps rejecting over a safety concern past the
// discussion window; with no tiebreak weights supplied the result must
// be escalate_to_human.
func TestOrchestrate_S7Deadlock(t *testing.T) {
	p := validProposal()
	threshold := ThresholdFor(types.StakesMedium, false)

	verifier := func(ctx context.Context, prop types.Proposal) (types.Vote, error) {
		return rejectVote("safety concern unresolved"), nil
	}
	integrator := func(ctx context.Context, prop types.Proposal, v types.Vote, round int) (types.Vote, error) {
		return types.Vote{Decision: types.DecisionProposeCompromise, Rationale: "offering a compromise"}, nil
	}

	c, err := Orchestrate(context.Background(), nil, &p, threshold, verifier, integrator, nil, time.Now)
	require.NoError(t, err)
	assert.False(t, c.Reached)
	assert.Equal(t, types.DecisionEscalateToHuman, c.Result)
	assert.Equal(t, types.ProposalRejected, p.Status)
}

func TestOrchestrate_TwoOfThreeSatisfiedByEitherApproval(t *testing.T) {
	p := validProposal()
	p.Actions[0].Stakes = types.StakesLow
	threshold := ThresholdFor(types.StakesLow, false)

	verifier := func(ctx context.Context, prop types.Proposal) (types.Vote, error) {
		return types.Vote{Decision: types.DecisionApproveWithConcern, Rationale: "minor nit"}, nil
	}
	integrator := func(ctx context.Context, prop types.Proposal, v types.Vote, round int) (types.Vote, error) {
		return types.Vote{Decision: types.DecisionReject, Rationale: "disagree"}, nil
	}

	c, err := Orchestrate(context.Background(), nil, &p, threshold, verifier, integrator, nil, time.Now)
	require.NoError(t, err)
	assert.True(t, c.Reached)
}

func TestWeightTiebreak_PositiveSumApproves(t *testing.T) {
	decision, ok := weightTiebreak([]WeightedValue{{Value: "safety", Weight: 0.6}, {Value: "speed", Weight: -0.2}})
	require.True(t, ok)
	assert.Equal(t, types.DecisionApprove, decision)
}

func TestHasHardCeilingAction(t *testing.T) {
	p := validProposal()
	p.Actions = append(p.Actions, types.ActionDescriptor{Class: "credentials:read:local"})
	assert.True(t, HasHardCeilingAction(p))
}
