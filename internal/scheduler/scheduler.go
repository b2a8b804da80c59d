// Package scheduler runs the periodic background sweeps spec §5 calls
// for: precedent decay, bypass expiry, and the weekly audit report,
// published onto the bus so other components (event log, CLI) can
// observe each tick.
//
// Grounded on internal/roles/memory/memory.go's Dreamer background
// goroutine (a ticker-driven sweep over persisted state) and
// cmd/agsh/main.go's goroutine wiring in main().
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/haricheung/ace/internal/bus"
	"github.com/haricheung/ace/internal/bypassaudit"
	"github.com/haricheung/ace/internal/clock"
	"github.com/haricheung/ace/internal/precedent"
)

const sweepInterval = 30 * time.Second

// AuditReporter generates and persists a weekly audit report.
type AuditReporter interface {
	GenerateReport() bypassaudit.Report
}

// Scheduler drives the sweep ticker described in spec §5.
type Scheduler struct {
	clock       clock.Clock
	bus         *bus.Bus
	precedent   *precedent.Store
	bypass      *bypassaudit.Manager
	auditEvery  time.Duration
	lastAudit   time.Time
	onAudit     func(bypassaudit.Report)
}

// New creates a Scheduler. onAudit, if non-nil, is invoked with each
// generated weekly audit report (e.g. to append it to
// ace_audit_log.jsonl).
func New(c clock.Clock, b *bus.Bus, p *precedent.Store, ba *bypassaudit.Manager, auditEvery time.Duration, onAudit func(bypassaudit.Report)) *Scheduler {
	return &Scheduler{
		clock:      c,
		bus:        b,
		precedent:  p,
		bypass:     ba,
		auditEvery: auditEvery,
		lastAudit:  c.Now(),
		onAudit:    onAudit,
	}
}

// Run blocks, sweeping every 30s until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-ticker.C():
			if !ok {
				return
			}
			s.sweep(tick)
		}
	}
}

func (s *Scheduler) sweep(now time.Time) {
	if s.bus != nil {
		s.bus.Publish(bus.Event{Type: bus.EventSchedulerTick, From: "scheduler", Timestamp: now})
	}
	if s.precedent != nil {
		s.precedent.DecayAll()
		if err := s.precedent.Flush(); err != nil {
			log.Printf("[SCHEDULER] precedent flush error: %v", err)
		}
	}
	if s.bypass != nil {
		s.bypass.SweepExpired()
	}
	if s.auditEvery > 0 && now.Sub(s.lastAudit) >= s.auditEvery {
		s.lastAudit = now
		if s.bypass != nil && s.onAudit != nil {
			s.onAudit(s.bypass.GenerateReport())
		}
	}
}
