package goals

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haricheung/ace/internal/adapter"
	"github.com/haricheung/ace/internal/clock"
	"github.com/haricheung/ace/internal/types"
)

func newTestManager() *Manager {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	values := ValueKeywords{"correctness": {"fix", "bug", "test", "correct"}}
	conflicts := ValueKeywords{"stability": {"breaking", "risky"}}
	return New(fc, values, conflicts)
}

func TestCheckValueAlignment_AlignedGoal(t *testing.T) {
	m := newTestManager()
	g := types.Goal{ID: "g1", Description: "fix the failing test", Priority: types.PriorityMedium}
	res := m.CheckValueAlignment(g)
	assert.True(t, res.Aligned)
	assert.Contains(t, res.Supporting, "correctness")
}

func TestCheckValueAlignment_ConflictingGoal(t *testing.T) {
	m := newTestManager()
	g := types.Goal{ID: "g1", Description: "apply a risky breaking change", Priority: types.PriorityMedium}
	res := m.CheckValueAlignment(g)
	assert.False(t, res.Aligned)
	assert.Contains(t, res.Conflicting, "stability")
}

func TestAddGoal_RejectsBelowAlignmentWithoutForce(t *testing.T) {
	m := newTestManager()
	g := types.Goal{ID: "g1", Description: "do something unrelated entirely", Priority: types.PriorityMedium}
	err := m.AddGoal(g, false)
	assert.Error(t, err)

	err = m.AddGoal(g, true)
	assert.NoError(t, err)
}

func TestAddGoal_EnforcesCriticalCap(t *testing.T) {
	m := newTestManager()
	m.maxCritical = 1
	g1 := types.Goal{ID: "c1", Description: "fix a critical bug", Priority: types.PriorityCritical}
	require.NoError(t, m.AddGoal(g1, false))

	g2 := types.Goal{ID: "c2", Description: "fix another critical bug", Priority: types.PriorityCritical}
	err := m.AddGoal(g2, false)
	assert.Error(t, err)
}

func TestAddGoal_RejectsMissingDependency(t *testing.T) {
	m := newTestManager()
	g := types.Goal{ID: "g1", Description: "fix bug", Priority: types.PriorityMedium, Dependencies: []string{"nonexistent"}}
	err := m.AddGoal(g, true)
	assert.Error(t, err)
}

func TestUpdateProgress_RejectsOutOfRange(t *testing.T) {
	m := newTestManager()
	require.NoError(t, m.AddGoal(types.Goal{ID: "g1", Description: "fix bug", Priority: types.PriorityLow}, true))
	assert.Error(t, m.UpdateProgress("g1", 150))
	assert.NoError(t, m.UpdateProgress("g1", 50))
}

func TestFailGoal_ProducesFiveWhysAndGatesRetryOnPriority(t *testing.T) {
	m := newTestManager()
	require.NoError(t, m.AddGoal(types.Goal{ID: "g1", Description: "fix bug", Priority: types.PriorityLow}, true))

	fw, err := m.FailGoal("g1", "test still failing after the fix")
	require.NoError(t, err)
	assert.Len(t, fw.WhyChain, 5)
	assert.NotEmpty(t, fw.RootCauses)
	assert.False(t, fw.RetryRecommended)

	require.NoError(t, m.AddGoal(types.Goal{ID: "g2", Description: "fix critical bug", Priority: types.PriorityCritical}, true))
	fw2, err := m.FailGoal("g2", "regression reappeared")
	require.NoError(t, err)
	assert.True(t, fw2.RetryRecommended)
}

func TestFailGoal_NotifiesOnNoRetryButNotOnRetryRecommended(t *testing.T) {
	m := newTestManager()
	var buf bytes.Buffer
	m.SetNotifier(adapter.NewStdioAdapter(&buf), "ops")

	require.NoError(t, m.AddGoal(types.Goal{ID: "g1", Description: "fix bug", Priority: types.PriorityLow}, true))
	_, err := m.FailGoal("g1", "test still failing")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "g1")

	buf.Reset()
	require.NoError(t, m.AddGoal(types.Goal{ID: "g2", Description: "fix critical bug", Priority: types.PriorityCritical}, true))
	_, err = m.FailGoal("g2", "regression reappeared")
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestCheckActionServesGoals_FlagsRelevantGoal(t *testing.T) {
	m := newTestManager()
	require.NoError(t, m.AddGoal(types.Goal{ID: "g1", Description: "fix the failing login test", Priority: types.PriorityMedium}, true))

	check := m.CheckActionServesGoals("run the login test suite to fix it")
	assert.True(t, check.ShouldExecute)
	assert.Contains(t, check.RelevantGoals, "g1")
}

func TestGetPrioritized_OrdersByWeightAndMomentum(t *testing.T) {
	m := newTestManager()
	require.NoError(t, m.AddGoal(types.Goal{ID: "low", Description: "fix bug", Priority: types.PriorityLow}, true))
	require.NoError(t, m.AddGoal(types.Goal{ID: "crit", Description: "fix critical bug", Priority: types.PriorityCritical}, true))
	require.NoError(t, m.UpdateProgress("low", 50))

	ordered := m.GetPrioritized()
	require.Len(t, ordered, 2)
	assert.Equal(t, "crit", ordered[0].ID)
}

func TestGetPrioritized_PenalizesUnmetDependency(t *testing.T) {
	m := newTestManager()
	require.NoError(t, m.AddGoal(types.Goal{ID: "dep", Description: "fix bug", Priority: types.PriorityLow}, true))
	require.NoError(t, m.AddGoal(types.Goal{ID: "g1", Description: "fix bug too", Priority: types.PriorityLow, Dependencies: []string{"dep"}}, true))
	require.NoError(t, m.AddGoal(types.Goal{ID: "g2", Description: "fix bug three", Priority: types.PriorityLow}, true))

	ordered := m.GetPrioritized()
	var g1Score, g2Score float64
	for i, g := range ordered {
		if g.ID == "g1" {
			g1Score = float64(len(ordered) - i)
		}
		if g.ID == "g2" {
			g2Score = float64(len(ordered) - i)
		}
	}
	assert.Less(t, g1Score, g2Score)
}
