package bypassaudit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haricheung/ace/internal/clock"
)

func TestParseDuration_CapsAt24h(t *testing.T) {
	d, err := ParseDuration("48h")
	require.NoError(t, err)
	assert.Equal(t, maxBypassDuration, d)
}

func TestParseDuration_ParsesEachUnit(t *testing.T) {
	cases := map[string]time.Duration{
		"30s": 30 * time.Second,
		"5m":  5 * time.Minute,
		"2h":  2 * time.Hour,
		"1d":  24 * time.Hour,
	}
	for token, want := range cases {
		d, err := ParseDuration(token)
		require.NoError(t, err)
		assert.Equal(t, want, d)
	}
}

func TestParseDuration_RejectsMalformed(t *testing.T) {
	_, err := ParseDuration("tomorrow")
	assert.Error(t, err)
}

// TestIsBypassed_HardCeilingNeverBypassable mirrors spec scenario S5:
// a bypass window is active, but a hard-ceiling class must still be
// blocked.
func TestIsBypassed_HardCeilingNeverBypassable(t *testing.T) {
	fc := clock.NewFake(time.Now())
	m := New(fc, nil)
	m.SetBypass(ModeDisabled, time.Hour)

	result := m.IsBypassed("credentials:read:local")
	assert.False(t, result.Bypassed)
	assert.True(t, result.HardCeilingBlocked)
}

func TestIsBypassed_NonCeilingClassBypassedDuringWindow(t *testing.T) {
	fc := clock.NewFake(time.Now())
	m := New(fc, nil)
	m.SetBypass(ModeLogOnly, time.Hour)

	result := m.IsBypassed("git:commit:local")
	assert.True(t, result.Bypassed)
}

func TestGetBypassMode_ExpiresLazily(t *testing.T) {
	fc := clock.NewFake(time.Now())
	m := New(fc, nil)
	m.SetBypass(ModeLogOnly, time.Minute)

	fc.Advance(2 * time.Minute)
	assert.Equal(t, ModeOff, m.GetBypassMode())
}

func TestIsPermanentlyBlocked_SelfModify(t *testing.T) {
	assert.True(t, IsPermanentlyBlocked("self:modify:ace-core"))
	assert.False(t, IsPermanentlyBlocked("git:commit:local"))
}

func TestRecordApproval_RubberStampThreshold(t *testing.T) {
	fc := clock.NewFake(time.Now())
	m := New(fc, nil)
	var notified bool
	for i := 0; i < defaultRubberStampLimit; i++ {
		notified = m.RecordApproval(false)
	}
	assert.True(t, notified)

	notified = m.RecordApproval(true)
	assert.False(t, notified)
	assert.Equal(t, 0, m.stats.ConsecutiveUnmodified)
}

func TestDriftRate_WarnsAboveThreshold(t *testing.T) {
	fc := clock.NewFake(time.Now())
	m := New(fc, nil)
	m.RecordScoreChange(0.3)
	m.RecordScoreChange(0.25)

	rate, warn := m.DriftRate()
	assert.True(t, warn)
	assert.Greater(t, rate, driftWarningThreshold)
}

func TestGenerateReport_ResetsScoreChanges(t *testing.T) {
	fc := clock.NewFake(time.Now())
	m := New(fc, nil)
	m.RecordScoreChange(0.5)

	report := m.GenerateReport()
	assert.True(t, report.DriftWarning)
	assert.Empty(t, m.stats.ScoreChanges)
}
