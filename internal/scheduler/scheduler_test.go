package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haricheung/ace/internal/bus"
	"github.com/haricheung/ace/internal/bypassaudit"
	"github.com/haricheung/ace/internal/clock"
	"github.com/haricheung/ace/internal/precedent"
	"github.com/haricheung/ace/internal/types"
)

func TestSweep_ExpiresBypassWithPrecedentWired(t *testing.T) {
	dir := t.TempDir()
	fc := clock.NewFake(time.Now())
	p, err := precedent.New(filepath.Join(dir, "ace_precedent.json"), fc, 0.01, 0.20)
	require.NoError(t, err)

	idx := p.RecordAction("git:commit:local", types.TierAct, "x")
	_, err = p.RecordOutcome("git:commit:local", idx, types.OutcomePositive, 0, "", "")
	require.NoError(t, err)

	ba := bypassaudit.New(fc, nil)
	ba.SetBypass(bypassaudit.ModeLogOnly, time.Minute)

	var reports int
	s := New(fc, bus.New(), p, ba, time.Hour, func(r bypassaudit.Report) { reports++ })

	fc.Advance(2 * time.Minute)
	s.sweep(fc.Now())

	assert.Equal(t, bypassaudit.ModeOff, ba.GetBypassMode())
}

func TestSweep_PublishesSchedulerTick(t *testing.T) {
	fc := clock.NewFake(time.Now())
	b := bus.New()
	tap := b.NewTap()
	s := New(fc, b, nil, nil, 0, nil)

	s.sweep(fc.Now())

	select {
	case ev := <-tap:
		assert.Equal(t, bus.EventSchedulerTick, ev.Type)
	default:
		t.Fatal("expected a scheduler tick event")
	}
}

func TestSweep_TriggersAuditAfterInterval(t *testing.T) {
	fc := clock.NewFake(time.Now())
	ba := bypassaudit.New(fc, nil)
	var reports int
	s := New(fc, nil, nil, ba, time.Hour, func(r bypassaudit.Report) { reports++ })

	s.sweep(fc.Now())
	assert.Equal(t, 0, reports)

	fc.Advance(2 * time.Hour)
	s.sweep(fc.Now())
	assert.Equal(t, 1, reports)
}
