// Package goals implements the Goal/Value Manager (spec §4.7):
// keyword-overlap value alignment, goal lifecycle management, a 5-Whys
// failure diagnostic, action-to-goal relevance checks, and priority
// ordering.
//
// Grounded on internal/roles/planner/planner.go's bounded-collection +
// sort.Slice priority ordering and mutex-guarded in-memory state shape,
// generalized from subtasks to goals.
package goals

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/haricheung/ace/internal/aceerr"
	"github.com/haricheung/ace/internal/adapter"
	"github.com/haricheung/ace/internal/clock"
	"github.com/haricheung/ace/internal/types"
)

const (
	defaultMaxActive    = 10
	defaultMaxCritical  = 3
	defaultMinAlignment = 0.3
	relevanceThreshold  = 0.1
	conflictPenalty     = 0.5
)

// ValueKeywords maps a declared value name to the keywords that count
// as evidence a goal serves (or, in a conflict table, undermines) it.
type ValueKeywords map[string][]string

var priorityWeight = map[types.GoalPriority]float64{
	types.PriorityCritical: 100,
	types.PriorityHigh:     70,
	types.PriorityMedium:   40,
	types.PriorityLow:      10,
}

// Event is one lifecycle event appended to a goal's history.
type Event struct {
	GoalID    string    `json:"goalId"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"ts"`
}

// Manager holds the active goal set and the value keyword tables used
// for alignment scoring.
type Manager struct {
	mu               sync.Mutex
	goals            map[string]*types.Goal
	values           ValueKeywords
	conflicts        ValueKeywords
	maxActive        int
	maxCritical      int
	minAlignment     float64
	clock            clock.Clock
	events           []Event
	notifier         adapter.Adapter
	notifyChannel    string
}

// SetNotifier wires an Adapter this Manager calls AdapterSend on when
// a failed goal gets no retry recommendation (medium or low priority;
// critical and high-priority failures always get one) — the
// operator-facing signal that 5-Whys alone won't surface.
func (m *Manager) SetNotifier(a adapter.Adapter, channel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = a
	m.notifyChannel = channel
}

// New creates a Manager with the given value/conflict keyword tables.
func New(c clock.Clock, values, conflicts ValueKeywords) *Manager {
	return &Manager{
		goals:        make(map[string]*types.Goal),
		values:       values,
		conflicts:    conflicts,
		maxActive:    defaultMaxActive,
		maxCritical:  defaultMaxCritical,
		minAlignment: defaultMinAlignment,
		clock:        c,
	}
}

// AlignmentResult is CheckValueAlignment's output (spec §4.7).
type AlignmentResult struct {
	Aligned         bool     `json:"aligned"`
	Score           float64  `json:"score"`
	Supporting      []string `json:"supporting"`
	Conflicting     []string `json:"conflicting"`
	Recommendations []string `json:"recommendations"`
}

// CheckValueAlignment scores a goal's description and success criteria
// against the declared value keyword map, deducting a fixed penalty
// per conflict hit (spec §4.7).
func (m *Manager) CheckValueAlignment(g types.Goal) AlignmentResult {
	text := strings.ToLower(g.Description + " " + strings.Join(g.SuccessCriteria, " "))
	words := wordSet(text)

	var supporting, conflicting []string
	var score float64
	for value, keywords := range m.values {
		if overlaps(words, keywords) {
			supporting = append(supporting, value)
			score += 1.0 / float64(max(1, len(m.values)))
		}
	}
	for value, keywords := range m.conflicts {
		if overlaps(words, keywords) {
			conflicting = append(conflicting, value)
			score -= conflictPenalty
		}
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	var recs []string
	if len(supporting) == 0 {
		recs = append(recs, "state which declared value this goal serves explicitly in its description")
	}
	if len(conflicting) > 0 {
		recs = append(recs, "resolve the conflict with: "+strings.Join(conflicting, ", "))
	}

	return AlignmentResult{
		Aligned:         score >= m.minAlignment && len(conflicting) == 0,
		Score:           score,
		Supporting:      supporting,
		Conflicting:     conflicting,
		Recommendations: recs,
	}
}

func overlaps(words map[string]bool, keywords []string) bool {
	for _, k := range keywords {
		if words[strings.ToLower(k)] {
			return true
		}
	}
	return false
}

func wordSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(s) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if w != "" {
			out[w] = true
		}
	}
	return out
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (m *Manager) countActiveLocked() int {
	n := 0
	for _, g := range m.goals {
		if g.Status == types.GoalActive {
			n++
		}
	}
	return n
}

func (m *Manager) countCriticalActiveLocked() int {
	n := 0
	for _, g := range m.goals {
		if g.Status == types.GoalActive && g.Priority == types.PriorityCritical {
			n++
		}
	}
	return n
}

// AddGoal enforces the active/critical caps and dependency existence,
// and (unless forceAdd) the minimum alignment score, before admitting a
// new active goal (spec §4.7).
func (m *Manager) AddGoal(g types.Goal, forceAdd bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.goals[g.ID]; exists {
		return aceerr.New(aceerr.KindValidationFailure, fmt.Sprintf("goal %s already exists", g.ID))
	}
	if m.countActiveLocked() >= m.maxActive {
		return aceerr.New(aceerr.KindValidationFailure, fmt.Sprintf("active goal cap reached (%d)", m.maxActive))
	}
	if g.Priority == types.PriorityCritical && m.countCriticalActiveLocked() >= m.maxCritical {
		return aceerr.New(aceerr.KindValidationFailure, fmt.Sprintf("critical goal cap reached (%d)", m.maxCritical))
	}
	for _, dep := range g.Dependencies {
		if _, ok := m.goals[dep]; !ok {
			return aceerr.New(aceerr.KindValidationFailure, fmt.Sprintf("dependency %s does not exist", dep))
		}
	}
	if !forceAdd {
		alignment := m.CheckValueAlignment(g)
		if !alignment.Aligned {
			return aceerr.New(aceerr.KindValidationFailure, fmt.Sprintf("goal %s does not meet minimum alignment (score=%.2f)", g.ID, alignment.Score))
		}
		g.AlignmentScore = alignment.Score
	}

	g.Status = types.GoalActive
	if g.Metadata == nil {
		g.Metadata = map[string]any{}
	}
	g.Metadata["sessionCreated"] = m.clock.Now()
	stored := g
	m.goals[g.ID] = &stored
	m.appendEventLocked(g.ID, "added", fmt.Sprintf("priority=%s", g.Priority))
	return nil
}

func (m *Manager) appendEventLocked(goalID, kind, detail string) {
	m.events = append(m.events, Event{GoalID: goalID, Kind: kind, Detail: detail, Timestamp: m.clock.Now()})
}

// UpdateProgress sets a goal's progress, requiring 0 <= p <= 100.
func (m *Manager) UpdateProgress(id string, p int) error {
	if p < 0 || p > 100 {
		return aceerr.New(aceerr.KindValidationFailure, "progress must be between 0 and 100")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.goals[id]
	if !ok {
		return aceerr.New(aceerr.KindValidationFailure, fmt.Sprintf("goal %s not found", id))
	}
	g.Progress = p
	g.Metadata["sessionLastProgress"] = m.clock.Now()
	m.appendEventLocked(id, "progress", fmt.Sprintf("progress=%d", p))
	return nil
}

// CompleteGoal marks a goal completed.
func (m *Manager) CompleteGoal(id string) error {
	return m.transition(id, types.GoalCompleted, "completed", "")
}

// AbandonGoal marks a goal abandoned.
func (m *Manager) AbandonGoal(id string) error {
	return m.transition(id, types.GoalAbandoned, "abandoned", "")
}

// DeferGoal marks a goal deferred.
func (m *Manager) DeferGoal(id string) error {
	return m.transition(id, types.GoalDeferred, "deferred", "")
}

// ReactivateGoal returns a deferred or abandoned goal to active status.
func (m *Manager) ReactivateGoal(id string) error {
	return m.transition(id, types.GoalActive, "reactivated", "")
}

func (m *Manager) transition(id string, status types.GoalStatus, kind, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.goals[id]
	if !ok {
		return aceerr.New(aceerr.KindValidationFailure, fmt.Sprintf("goal %s not found", id))
	}
	g.Status = status
	m.appendEventLocked(id, kind, detail)
	return nil
}

// FiveWhys is a failure diagnostic reflection: a chain of 5 why-entries,
// root-cause hypotheses, and a retry recommendation gated on priority
// (spec §4.7).
type FiveWhys struct {
	GoalID           string   `json:"goalId"`
	WhyChain         []string `json:"whyChain"`
	RootCauses       []string `json:"rootCauses"`
	RetryRecommended bool     `json:"retryRecommended"`
}

// FailGoal marks a goal failed and produces a 5-Whys diagnostic.
// Retry is only recommended for priority in {critical, high}.
func (m *Manager) FailGoal(id, reason string) (FiveWhys, error) {
	m.mu.Lock()
	g, ok := m.goals[id]
	if !ok {
		m.mu.Unlock()
		return FiveWhys{}, aceerr.New(aceerr.KindValidationFailure, fmt.Sprintf("goal %s not found", id))
	}
	g.Status = types.GoalFailed
	priority := g.Priority
	desc := g.Description
	m.appendEventLocked(id, "failed", reason)
	notifier := m.notifier
	channel := m.notifyChannel
	m.mu.Unlock()

	retry := priority == types.PriorityCritical || priority == types.PriorityHigh
	chain := buildWhyChain(desc, reason)
	result := FiveWhys{
		GoalID:           id,
		WhyChain:         chain,
		RootCauses:       rootCauseHypotheses(chain),
		RetryRecommended: retry,
	}

	if notifier != nil && !retry {
		_ = notifier.AdapterSend(channel, fmt.Sprintf("goal %s failed with no retry recommended: %s", id, reason))
	}

	return result, nil
}

// buildWhyChain produces exactly 5 successive "why" entries, each
// narrowing from the stated failure reason toward a root cause
// hypothesis. Deterministic by construction so the diagnostic is
// reproducible given the same goal and reason.
func buildWhyChain(description, reason string) []string {
	chain := make([]string, 0, 5)
	chain = append(chain, fmt.Sprintf("why did %q fail: %s", description, reason))
	chain = append(chain, fmt.Sprintf("why did %q occur: an upstream precondition or assumption did not hold", reason))
	chain = append(chain, "why did the precondition not hold: it was not verified before the goal was pursued")
	chain = append(chain, "why was it not verified: no explicit success criterion covered it")
	chain = append(chain, "why was no criterion written: the goal's success criteria were underspecified at creation time")
	return chain
}

func rootCauseHypotheses(chain []string) []string {
	return []string{
		"underspecified success criteria at goal creation",
		"missing or unmet dependency not surfaced before pursuit",
	}
}

// ActionGoalCheck is CheckActionServesGoals's output (spec §4.7).
type ActionGoalCheck struct {
	ShouldExecute  bool     `json:"should_execute"`
	Relevance      float64  `json:"relevance"`
	RelevantGoals  []string `json:"relevant_goals"`
}

// CheckActionServesGoals scores an action description's word-overlap
// against every active goal's text; a goal is relevant when overlap
// exceeds 0.1 (spec §4.7).
func (m *Manager) CheckActionServesGoals(actionDescription string) ActionGoalCheck {
	m.mu.Lock()
	defer m.mu.Unlock()

	actionWords := wordSet(strings.ToLower(actionDescription))
	var relevant []string
	var best float64
	for _, g := range m.goals {
		if g.Status != types.GoalActive {
			continue
		}
		goalText := strings.ToLower(g.Description + " " + strings.Join(g.SuccessCriteria, " "))
		score := overlapRatio(actionWords, wordSet(goalText))
		if score > relevanceThreshold {
			relevant = append(relevant, g.ID)
		}
		if score > best {
			best = score
		}
	}
	sort.Strings(relevant)
	return ActionGoalCheck{ShouldExecute: len(relevant) > 0, Relevance: best, RelevantGoals: relevant}
}

func overlapRatio(a, b map[string]bool) float64 {
	if len(b) == 0 {
		return 0
	}
	hits := 0
	for w := range b {
		if a[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(b))
}

// GetPrioritized orders active goals by priority weight, plus deadline
// urgency (overdue +50, <24h +30, <7d +15, derived from
// Metadata["deadline"] when present), plus a momentum bonus up to +20
// for goals with progress strictly between 0 and 100, minus 10 per
// unmet dependency (spec §4.7).
func (m *Manager) GetPrioritized() []types.Goal {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	type scored struct {
		goal  types.Goal
		score float64
	}
	var list []scored
	for _, g := range m.goals {
		if g.Status != types.GoalActive {
			continue
		}
		score := priorityWeight[g.Priority]
		score += deadlineUrgency(g, now)
		if g.Progress > 0 && g.Progress < 100 {
			score += float64(g.Progress) / 100.0 * 20.0
		}
		unmet := 0
		for _, dep := range g.Dependencies {
			if d, ok := m.goals[dep]; !ok || d.Status != types.GoalCompleted {
				unmet++
			}
		}
		score -= float64(unmet) * 10
		list = append(list, scored{goal: *g, score: score})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].score > list[j].score })

	out := make([]types.Goal, len(list))
	for i, s := range list {
		out[i] = s.goal
	}
	return out
}

func deadlineUrgency(g *types.Goal, now time.Time) float64 {
	raw, ok := g.Metadata["deadline"]
	if !ok {
		return 0
	}
	deadline, ok := raw.(time.Time)
	if !ok {
		return 0
	}
	remaining := deadline.Sub(now)
	switch {
	case remaining < 0:
		return 50
	case remaining < 24*time.Hour:
		return 30
	case remaining < 7*24*time.Hour:
		return 15
	default:
		return 0
	}
}
