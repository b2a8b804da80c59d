// Package bypassaudit implements the operator Bypass & Audit layer
// (spec §4.8): temporary bypass windows that can never override a hard
// ceiling, rubber-stamp detection, drift-rate tracking, and the
// permanent self-modification block.
//
// Grounded on internal/roles/auditor/auditor.go's window-stat
// accumulation (tasksObserved/totalCorrections reset per reporting
// window) and persisted-stats-across-restart shape, generalized from
// task convergence stats to bypass/approval stats.
package bypassaudit

import (
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haricheung/ace/internal/aceerr"
	"github.com/haricheung/ace/internal/classifier"
	"github.com/haricheung/ace/internal/clock"
)

// Mode is the global bypass posture (spec §4.8).
type Mode string

const (
	ModeOff      Mode = "off"
	ModeLogOnly  Mode = "log-only"
	ModeDisabled Mode = "disabled"
)

const (
	maxBypassDuration        = 24 * time.Hour
	defaultRubberStampLimit  = 10
	driftWarningThreshold    = 0.20
	selfModifyPattern        = "self:modify:ace-*"
)

var durationToken = regexp.MustCompile(`^(\d+)(s|m|h|d)$`)

// ParseDuration parses a duration token (spec §4.8): `\d+(s|m|h|d)`,
// capped at 24h.
func ParseDuration(token string) (time.Duration, error) {
	m := durationToken.FindStringSubmatch(token)
	if m == nil {
		return 0, aceerr.New(aceerr.KindValidationFailure, fmt.Sprintf("invalid bypass duration token %q", token))
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, aceerr.New(aceerr.KindValidationFailure, fmt.Sprintf("invalid bypass duration token %q", token))
	}
	var unit time.Duration
	switch m[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}
	d := time.Duration(n) * unit
	if d > maxBypassDuration {
		d = maxBypassDuration
	}
	return d, nil
}

// IsBypassedResult is IsBypassed's output (spec §4.8).
type IsBypassedResult struct {
	Bypassed           bool
	HardCeilingBlocked bool
}

// Stats tracks the bypass/audit window counters (spec §4.8).
type Stats struct {
	TemporaryBypassCount     int
	ActionsWhileBypassed     int
	HardCeilingBlocks        int
	LastBypassTimestamp      time.Time
	LastBypassDuration       time.Duration
	ConsecutiveUnmodified    int
	RubberStampNoticeCount   int
	ScoreChanges             []float64
}

// Metrics are the Prometheus gauges/counters exported for the
// Statistics block (spec §4.8), kept alongside the in-memory Stats
// struct rather than replacing it, so CLI `audit` output never depends
// on a scrape.
type Metrics struct {
	TemporaryBypassCount prometheus.Counter
	ActionsWhileBypassed prometheus.Counter
	HardCeilingBlocks    prometheus.Counter
	DriftRate            prometheus.Gauge
}

// NewMetrics registers and returns the bypass/audit Prometheus metrics
// against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TemporaryBypassCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ace_bypass_temporary_total",
			Help: "Number of temporary bypass windows opened.",
		}),
		ActionsWhileBypassed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ace_bypass_actions_total",
			Help: "Number of actions taken while a bypass was active.",
		}),
		HardCeilingBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ace_bypass_hard_ceiling_blocks_total",
			Help: "Number of times a hard-ceiling class was blocked despite an active bypass.",
		}),
		DriftRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ace_audit_drift_rate",
			Help: "Average score-change magnitude per week.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.TemporaryBypassCount, m.ActionsWhileBypassed, m.HardCeilingBlocks, m.DriftRate)
	}
	return m
}

// Manager enforces bypass mode, tracks audit statistics, and produces
// weekly audit reports (spec §4.8).
type Manager struct {
	mu                 sync.Mutex
	mode               Mode
	bypassUntil        time.Time
	clock              clock.Clock
	stats              Stats
	rubberStampLimit   int
	metrics            *Metrics
	permanentlyBlocked map[string]bool
}

// New creates a Manager starting in ModeOff.
func New(c clock.Clock, metrics *Metrics) *Manager {
	return &Manager{
		mode:               ModeOff,
		clock:              c,
		rubberStampLimit:   defaultRubberStampLimit,
		metrics:            metrics,
		permanentlyBlocked: map[string]bool{},
	}
}

// SetBypass opens a temporary bypass window of duration d in the given
// mode (spec §4.8).
func (m *Manager) SetBypass(mode Mode, d time.Duration) {
	if d > maxBypassDuration {
		d = maxBypassDuration
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	m.bypassUntil = m.clock.Now().Add(d)
	m.stats.TemporaryBypassCount++
	m.stats.LastBypassTimestamp = m.clock.Now()
	m.stats.LastBypassDuration = d
	if m.metrics != nil {
		m.metrics.TemporaryBypassCount.Inc()
	}
}

// ClearBypass ends any active bypass window immediately.
func (m *Manager) ClearBypass() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = ModeOff
	m.bypassUntil = time.Time{}
}

// GetBypassMode evaluates expiry lazily and returns the current mode
// (spec §5: "Bypass expiry is evaluated lazily on every IsBypassed()
// and GetBypassMode() call").
func (m *Manager) GetBypassMode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked()
	return m.mode
}

func (m *Manager) expireLocked() {
	if m.mode != ModeOff && !m.bypassUntil.IsZero() && m.clock.Now().After(m.bypassUntil) {
		m.mode = ModeOff
	}
}

// SweepExpired is invoked by the scheduler's 30s background ticker
// (spec §5) as a second, time-driven path to expiry alongside the lazy
// checks in IsBypassed/GetBypassMode.
func (m *Manager) SweepExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked()
}

// IsBypassed reports whether class is currently bypassed. Hard-ceiling
// classes can never be bypassed, regardless of mode (spec §4.8).
func (m *Manager) IsBypassed(class string) IsBypassedResult {
	if classifier.HasHardCeiling(class) {
		m.mu.Lock()
		m.stats.HardCeilingBlocks++
		if m.metrics != nil {
			m.metrics.HardCeilingBlocks.Inc()
		}
		m.mu.Unlock()
		return IsBypassedResult{Bypassed: false, HardCeilingBlocked: true}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked()
	bypassed := m.mode != ModeOff
	if bypassed {
		m.stats.ActionsWhileBypassed++
		if m.metrics != nil {
			m.metrics.ActionsWhileBypassed.Inc()
		}
	}
	return IsBypassedResult{Bypassed: bypassed}
}

// IsPermanentlyBlocked reports whether class matches the permanent
// self-modification block (spec §4.8): any class matching
// self:modify:ace-* is blocked from autonomous execution forever,
// independent of bypass mode.
func IsPermanentlyBlocked(class string) bool {
	return classifier.Matches(class, selfModifyPattern)
}

// RecordApproval updates the rubber-stamp streak: an unmodified plain
// approve advances the counter; any modify/deny resets it. Crossing the
// threshold emits a notice by returning notify=true.
func (m *Manager) RecordApproval(modified bool) (notify bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if modified {
		m.stats.ConsecutiveUnmodified = 0
		return false
	}
	m.stats.ConsecutiveUnmodified++
	if m.stats.ConsecutiveUnmodified >= m.rubberStampLimit {
		m.stats.RubberStampNoticeCount++
		return true
	}
	return false
}

// RecordScoreChange accumulates one score-change magnitude for the
// weekly drift-rate calculation.
func (m *Manager) RecordScoreChange(delta float64) {
	if delta < 0 {
		delta = -delta
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.ScoreChanges = append(m.stats.ScoreChanges, delta)
}

// DriftRate is the average score-change magnitude accumulated since
// the last report (spec §4.8); warn=true when it exceeds 20%.
func (m *Manager) DriftRate() (rate float64, warn bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stats.ScoreChanges) == 0 {
		return 0, false
	}
	var sum float64
	for _, d := range m.stats.ScoreChanges {
		sum += d
	}
	rate = sum / float64(len(m.stats.ScoreChanges))
	if m.metrics != nil {
		m.metrics.DriftRate.Set(rate)
	}
	return rate, rate > driftWarningThreshold
}

// Report is the weekly structured audit report (spec §4.8), appended to
// ace_audit_log.jsonl by the caller.
type Report struct {
	GeneratedAt            time.Time `json:"generatedAt"`
	TemporaryBypassCount   int       `json:"temporaryBypassCount"`
	ActionsWhileBypassed   int       `json:"actionsWhileBypassed"`
	HardCeilingBlocks      int       `json:"hardCeilingBlocks"`
	RubberStampNotices     int       `json:"rubberStampNotices"`
	DriftRate              float64   `json:"driftRate"`
	DriftWarning           bool      `json:"driftWarning"`
}

// GenerateReport snapshots the current window's stats into a Report and
// resets the drift-rate accumulator, matching the teacher's
// reset-window-after-report discipline.
func (m *Manager) GenerateReport() Report {
	drift, warn := m.DriftRate()

	m.mu.Lock()
	defer m.mu.Unlock()
	r := Report{
		GeneratedAt:          m.clock.Now(),
		TemporaryBypassCount: m.stats.TemporaryBypassCount,
		ActionsWhileBypassed: m.stats.ActionsWhileBypassed,
		HardCeilingBlocks:    m.stats.HardCeilingBlocks,
		RubberStampNotices:   m.stats.RubberStampNoticeCount,
		DriftRate:            drift,
		DriftWarning:         warn,
	}
	m.stats.ScoreChanges = nil
	return r
}
