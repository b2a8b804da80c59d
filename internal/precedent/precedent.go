// Package precedent implements the Precedent Memory (spec §4.3): one
// learned trust score per action class, asymmetric positive/negative
// learning, time-decay toward a baseline, and cross-class propagation
// to parent and sibling classes on negative outcomes.
//
// Grounded on internal/roles/memory/memory.go's decay formula
// (math.Exp(-k*deltaDays)) and background-sweep/debounced-write shape,
// adapted from a LevelDB record store to the single atomic JSON file
// spec §4.3 requires.
package precedent

import (
	"encoding/json"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haricheung/ace/internal/aceerr"
	"github.com/haricheung/ace/internal/classifier"
	"github.com/haricheung/ace/internal/clock"
	"github.com/haricheung/ace/internal/types"
)

// Bounds from spec §3/§4.3.
const (
	Floor           = 0.0
	Ceiling         = 0.95
	historyCap      = 50
	instancesCap    = 100
	minPersistDelta = 0.001
)

// NEGATIVE_MULT, named per spec §4.3, indexed by severity 1..3.
var negativeMult = map[int]float64{1: 0.20, 2: 0.40, 3: 0.60}

const (
	parentPenalty  = 0.10
	siblingPenalty = 0.05
)

// OutcomeResult reports what RecordOutcome changed.
type OutcomeResult struct {
	OldScore   float64
	NewScore   float64
	Propagated []string
}

// Store is the process-wide precedent memory: an in-memory cache of
// PrecedentEntry keyed by class, backed by an atomically-written JSON
// snapshot file. The cache is the source of truth during the process
// lifetime; writes are debounced in memory and flushed on Flush/Close
// (spec §4.3).
type Store struct {
	mu       sync.Mutex
	classMu  map[string]*sync.Mutex // per-class lock, spec §5 ordering
	entries  map[string]*types.PrecedentEntry
	path     string
	clock    clock.Clock
	lambda   float64
	baseline float64
	dirty    bool
	log      *log.Logger
}

type snapshot struct {
	Entries map[string]*types.PrecedentEntry `json:"entries"`
}

// New loads (or initializes) the precedent store from path.
func New(path string, c clock.Clock, lambda, baseline float64) (*Store, error) {
	s := &Store{
		classMu:  make(map[string]*sync.Mutex),
		entries:  make(map[string]*types.PrecedentEntry),
		path:     path,
		clock:    c,
		lambda:   lambda,
		baseline: baseline,
		log:      log.New(os.Stderr, "[precedent] ", log.LstdFlags),
	}
	if data, err := os.ReadFile(path); err == nil {
		var snap snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, aceerr.Wrap(aceerr.KindPersistence, "", "parse precedent snapshot", err)
		}
		if snap.Entries != nil {
			s.entries = snap.Entries
		}
	} else if !os.IsNotExist(err) {
		return nil, aceerr.Wrap(aceerr.KindPersistence, "", "read precedent snapshot", err)
	}
	return s, nil
}

func (s *Store) lockFor(class string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.classMu[class]
	if !ok {
		m = &sync.Mutex{}
		s.classMu[class] = m
	}
	return m
}

func clamp(v, floor, ceiling float64) float64 {
	if v < floor {
		return floor
	}
	if v > ceiling {
		return ceiling
	}
	return v
}

func (s *Store) entryLocked(class string) *types.PrecedentEntry {
	e, ok := s.entries[class]
	if !ok {
		e = &types.PrecedentEntry{Class: class, DecayAnchor: s.clock.Now()}
		s.entries[class] = e
	}
	return e
}

// RecordAction appends a pending instance for class, creating the
// entry if absent, and returns the instance's index in the window.
func (s *Store) RecordAction(class string, tier types.Tier, detail string) int {
	lock := s.lockFor(class)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(class)
	e.Instances = append(e.Instances, types.Instance{
		Timestamp: s.clock.Now(),
		Detail:    detail,
		Tier:      tier,
		Outcome:   types.OutcomePending,
	})
	if len(e.Instances) > instancesCap {
		e.Instances = e.Instances[len(e.Instances)-instancesCap:]
	}
	s.dirty = true
	return len(e.Instances) - 1
}

// decayedScoreLocked computes the decayed value of a raw score given
// how long it has sat since decayAnchor, per spec §4.3:
// decayed = baseline + (score-baseline)*e^(-lambda*deltaDays), which
// is monotonic toward baseline from either side (spec §8 property 2).
func (s *Store) decayedScoreLocked(raw float64, anchor time.Time) float64 {
	deltaDays := s.clock.Now().Sub(anchor).Hours() / 24.0
	if deltaDays <= 0 {
		return raw
	}
	decayed := s.baseline + (raw-s.baseline)*math.Exp(-s.lambda*deltaDays)
	return clamp(decayed, Floor, Ceiling)
}

// Get returns the (optionally decayed) score for class and whether
// this is the first time the class has been seen (spec §4.3).
func (s *Store) Get(class string, applyDecay bool) (score float64, isFirstAction bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[class]
	if !ok {
		return 0, true
	}
	if !applyDecay {
		return e.Score, false
	}
	return s.decayedScoreLocked(e.Score, e.DecayAnchor), false
}

// GetEntry returns a copy of the full entry for class, or nil if absent.
func (s *Store) GetEntry(class string) *types.PrecedentEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[class]
	if !ok {
		return nil
	}
	cp := *e
	return &cp
}

// knownClassesLocked returns every class currently tracked, used to compute
// siblings for propagation.
func (s *Store) knownClassesLocked() []string {
	out := make([]string, 0, len(s.entries))
	for c := range s.entries {
		out = append(out, c)
	}
	return out
}

// applyDeltaLocked adjusts one class entry's score by delta (positive
// or negative), clamping to [Floor, Ceiling], and records history.
func (s *Store) applyDeltaLocked(class string, delta float64, now time.Time) (oldScore, newScore float64) {
	e := s.entryLocked(class)
	oldScore = e.Score
	e.Score = clamp(e.Score+delta, Floor, Ceiling)
	e.ScoreHistory = append(e.ScoreHistory, e.Score)
	if len(e.ScoreHistory) > historyCap {
		e.ScoreHistory = e.ScoreHistory[len(e.ScoreHistory)-historyCap:]
	}
	e.DecayAnchor = now
	return oldScore, e.Score
}

// RecordOutcome applies asymmetric learning for class and, on a
// negative outcome, propagates a scaled penalty to the parent and
// every sibling class (spec §4.3, §8 property 6). Propagation
// acquires locks deepest-class-first then lexicographically, matching
// spec §5's deadlock-avoidance ordering.
func (s *Store) RecordOutcome(class string, instanceIndex int, result types.Outcome, severity int, operatorResponse, note string) (OutcomeResult, error) {
	if result != types.OutcomePositive && result != types.OutcomeNegative {
		return OutcomeResult{}, aceerr.NewForClass(aceerr.KindValidationFailure, class, "result must be positive or negative")
	}

	parent, hasParent := classifier.Parent(class)

	s.mu.Lock()
	known := s.knownClassesLocked()
	s.mu.Unlock()
	siblings := classifier.Siblings(class, known)

	toLock := []string{class}
	if hasParent {
		toLock = append(toLock, parent)
	}
	toLock = append(toLock, siblings...)
	sort.Strings(toLock[1:]) // class first (deepest/most specific), rest lexicographic

	locks := make([]*sync.Mutex, 0, len(toLock))
	seen := map[string]bool{}
	for _, c := range toLock {
		if seen[c] {
			continue
		}
		seen[c] = true
		locks = append(locks, s.lockFor(c))
	}
	for _, l := range locks {
		l.Lock()
	}
	defer func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	e := s.entryLocked(class)
	if instanceIndex >= 0 && instanceIndex < len(e.Instances) {
		e.Instances[instanceIndex].Outcome = result
		e.Instances[instanceIndex].OperatorResponse = operatorResponse
		e.Instances[instanceIndex].Note = note
	}

	var res OutcomeResult
	switch result {
	case types.OutcomePositive:
		old, newScore := s.applyDeltaLocked(class, 0.15, now)
		e.Approved++
		e.LastPositive = &now
		res = OutcomeResult{OldScore: old, NewScore: newScore}
	case types.OutcomeNegative:
		if severity < 1 || severity > 3 {
			severity = 2
		}
		dec := negativeMult[severity]
		old, newScore := s.applyDeltaLocked(class, -dec, now)
		e.Corrected++
		e.LastNegative = &now
		res = OutcomeResult{OldScore: old, NewScore: newScore}

		if hasParent {
			s.applyDeltaLocked(parent, -parentPenalty*float64(severity), now)
			res.Propagated = append(res.Propagated, parent)
		}
		for _, sib := range siblings {
			s.applyDeltaLocked(sib, -siblingPenalty*float64(severity), now)
			res.Propagated = append(res.Propagated, sib)
		}
	}

	s.dirty = true
	return res, nil
}

// DecayAll sweeps every entry, applies decay, and persists if any
// score moved by more than minPersistDelta.
func (s *Store) DecayAll() error {
	s.mu.Lock()
	now := s.clock.Now()
	changed := false
	for _, e := range s.entries {
		decayed := s.decayedScoreLocked(e.Score, e.DecayAnchor)
		if math.Abs(decayed-e.Score) > minPersistDelta {
			e.Score = decayed
			e.DecayAnchor = now
			e.ScoreHistory = append(e.ScoreHistory, e.Score)
			if len(e.ScoreHistory) > historyCap {
				e.ScoreHistory = e.ScoreHistory[len(e.ScoreHistory)-historyCap:]
			}
			changed = true
		}
	}
	if changed {
		s.dirty = true
	}
	s.mu.Unlock()
	if changed {
		return s.Flush()
	}
	return nil
}

// Reset sets class's score to the floor, keeping history for audit.
func (s *Store) Reset(class string) {
	lock := s.lockFor(class)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(class)
	e.Score = Floor
	e.DecayAnchor = s.clock.Now()
	s.dirty = true
}

// NewInstanceID is a convenience for callers that need a fresh
// identifier for an event or proposal tied to a precedent mutation.
func NewInstanceID() string { return uuid.New().String() }

// Flush persists the in-memory cache to disk atomically (temp file +
// rename), matching the teacher's own atomic-durability discipline in
// internal/roles/memory/memory.go.
func (s *Store) Flush() error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	snap := snapshot{Entries: s.entries}
	s.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return aceerr.Wrap(aceerr.KindPersistence, "", "marshal precedent snapshot", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return aceerr.Wrap(aceerr.KindPersistence, "", "mkdir precedent dir", err)
	}
	tmp, err := os.CreateTemp(dir, ".ace_precedent-*.tmp")
	if err != nil {
		return aceerr.Wrap(aceerr.KindPersistence, "", "create temp precedent file", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return aceerr.Wrap(aceerr.KindPersistence, "", "write temp precedent file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return aceerr.Wrap(aceerr.KindPersistence, "", "fsync temp precedent file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return aceerr.Wrap(aceerr.KindPersistence, "", "close temp precedent file", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return aceerr.Wrap(aceerr.KindPersistence, "", "rename precedent snapshot", err)
	}

	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()
	s.log.Printf("flushed precedent snapshot (%d classes)", len(snap.Entries))
	return nil
}

// Close flushes any pending writes on clean shutdown (spec §4.3: "must
// flush on clean shutdown").
func (s *Store) Close() error {
	return s.Flush()
}
