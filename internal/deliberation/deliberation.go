// Package deliberation implements the five-step Deliberation Protocol
// (spec §4.5): context check, precedent review, source audit,
// counterfactual, and reversibility confirmation, aggregated into a
// Promote/Maintain/Demote outcome.
//
// Grounded on internal/roles/metaval/metaval.go's hard-gate,
// code-enforced decision logic (the code decides, never the model)
// and internal/roles/ggs/ggs.go's step/concern/rationale accumulation.
package deliberation

import (
	"time"

	"github.com/haricheung/ace/internal/precedent"
	"github.com/haricheung/ace/internal/types"
)

// StepResult is one of the five steps' findings (spec §4.5).
type StepResult struct {
	Step     string   `json:"step"`
	Passed   bool     `json:"passed"`
	Details  string   `json:"details"`
	Concerns []string `json:"concerns,omitempty"`
}

// Outcome is the aggregate deliberation verdict.
type Outcome string

const (
	Promote  Outcome = "promote"
	Maintain Outcome = "maintain"
	Demote   Outcome = "demote"
)

// Result is the full output of one deliberation pass.
type Result struct {
	Steps       []StepResult `json:"steps"`
	Adjusted    float64      `json:"adjusted"`
	FailedSteps int          `json:"failedSteps"`
	Outcome     Outcome      `json:"outcome"`
	FinalTier   types.Tier   `json:"finalTier"`
}

// contextCheck is step 1: concerns if motivation is missing or
// externally sourced; passes iff concerns ≤ 1.
func contextCheck(desc types.ActionDescriptor) StepResult {
	var concerns []string
	if desc.Motivation == "" {
		concerns = append(concerns, "no motivation recorded")
	}
	if desc.MotivationSource == types.MotivationExternal {
		concerns = append(concerns, "motivation sourced externally")
	}
	details := "reactive"
	if desc.GoalID != "" {
		details = "part of an active goal"
	}
	return StepResult{Step: "context_check", Passed: len(concerns) <= 1, Details: details, Concerns: concerns}
}

// precedentReview is step 2: concerns on first action, recent
// negative, low score, or a high correction rate; passes iff no
// concerns.
func precedentReview(class string, entry *types.PrecedentEntry, now time.Time) StepResult {
	var concerns []string
	if entry == nil {
		concerns = append(concerns, "no precedent on file (first action)")
		return StepResult{Step: "precedent_review", Passed: false, Details: "first action", Concerns: concerns}
	}
	if entry.LastNegative != nil && now.Sub(*entry.LastNegative) < 7*24*time.Hour {
		concerns = append(concerns, "negative outcome within the last 7 days")
	}
	if entry.Score < 0.3 {
		concerns = append(concerns, "precedent score below 0.3")
	}
	total := entry.Approved + entry.Corrected
	if total > 3 {
		correctionRate := float64(entry.Corrected) / float64(total)
		if correctionRate > 0.20 {
			concerns = append(concerns, "correction rate above 20%")
		}
	}
	return StepResult{Step: "precedent_review", Passed: len(concerns) == 0, Details: "precedent reviewed", Concerns: concerns}
}

// sourceAudit is step 3: concerns if source is missing, untrusted, or
// hostile, plus chain-degradation; passes iff no concerns.
func sourceAudit(desc types.ActionDescriptor) StepResult {
	var concerns []string
	ts := desc.TrustSource
	switch {
	case ts.Origin == "" && ts.Type == "":
		concerns = append(concerns, "trust source missing")
	case ts.Level == types.TrustHostile:
		concerns = append(concerns, "hostile trust source")
	case ts.Level == types.TrustUntrusted:
		concerns = append(concerns, "untrusted trust source")
	}
	if ts.Level != types.TrustHostile {
		lowest := ts.Level
		for _, origin := range ts.Chain {
			if l := chainLevel(origin); levelBelow(l, lowest) {
				lowest = l
			}
		}
		if levelBelow(lowest, ts.Level) {
			concerns = append(concerns, "chain degradation: a link in the chain is less trusted than the declared level")
		}
	}
	return StepResult{Step: "source_audit", Passed: len(concerns) == 0, Details: string(ts.Level), Concerns: concerns}
}

var chainRank = map[types.TrustLevel]int{
	types.TrustHostile:   0,
	types.TrustUntrusted: 1,
	types.TrustVerified:  2,
	types.TrustTrusted:   3,
}

func chainLevel(origin string) types.TrustLevel {
	switch origin {
	case "user", "internal", "telegram":
		return types.TrustTrusted
	case "skill", "plugin", "agent":
		return types.TrustVerified
	case "web", "post", "external":
		return types.TrustUntrusted
	default:
		return types.TrustUntrusted
	}
}

func levelBelow(a, b types.TrustLevel) bool { return chainRank[a] < chainRank[b] }

// counterfactual is step 4: reports deadline proximity and urgency;
// passes iff the action can wait, or there are no other concerns.
func counterfactual(desc types.ActionDescriptor, now time.Time) StepResult {
	details := "no deadline"
	canWait := true
	isUrgent := false
	if desc.Deadline != nil {
		remaining := desc.Deadline.Sub(now)
		isUrgent = remaining < time.Hour
		canWait = remaining > 0 && !isUrgent
		details = "deadline set"
	}
	var concerns []string
	if isUrgent {
		concerns = append(concerns, "urgent: less than 1 hour remains before deadline")
	}
	return StepResult{Step: "counterfactual", Passed: canWait || len(concerns) == 0, Details: details, Concerns: concerns}
}

// reversibilityConfirmation is step 5: concerns on unconfirmed backup
// for destructive classes, unmet dependencies, or external effects;
// passes iff no concerns.
func reversibilityConfirmation(desc types.ActionDescriptor, destructive bool) StepResult {
	var concerns []string
	if destructive && !desc.BackupExists {
		concerns = append(concerns, "destructive action without a confirmed backup")
	}
	for _, dep := range desc.Dependencies {
		if !dep.Met {
			concerns = append(concerns, "unmet dependency: "+dep.Name)
		}
	}
	if desc.AffectsExternal {
		concerns = append(concerns, "action affects external systems")
	}
	return StepResult{Step: "reversibility_confirmation", Passed: len(concerns) == 0, Details: "reversibility checked", Concerns: concerns}
}

// ShouldSkipDeliberation implements the fast-path of spec §4.5: skip
// straight to Escalate when the class has a hard ceiling, the source
// is hostile, or this is the first action of its class.
func ShouldSkipDeliberation(hasHardCeiling, isHostile, isFirstAction bool) (skip bool, tier types.Tier) {
	if hasHardCeiling || isHostile || isFirstAction {
		return true, types.TierEscalate
	}
	return false, ""
}

// Deliberate runs the five-step protocol and aggregates the outcome
// (spec §4.5): Δ = -0.10*failedSteps - 0.03*totalConcerns; adjusted =
// clamp(composite+Δ); hostile concern demotes outright; adjusted
// reaching the act threshold with zero failures promotes; adjusted
// below escalate or ≥3 failed steps demotes; otherwise maintain.
func Deliberate(desc types.ActionDescriptor, score types.Score, entry *types.PrecedentEntry, destructive bool, actThreshold, escalateThreshold float64, now time.Time) Result {
	steps := []StepResult{
		contextCheck(desc),
		precedentReview(desc.Class, entry, now),
		sourceAudit(desc),
		counterfactual(desc, now),
		reversibilityConfirmation(desc, destructive),
	}

	failedSteps := 0
	totalConcerns := 0
	hostileConcern := false
	for _, st := range steps {
		if !st.Passed {
			failedSteps++
		}
		totalConcerns += len(st.Concerns)
		for _, c := range st.Concerns {
			if c == "hostile trust source" {
				hostileConcern = true
			}
		}
	}

	delta := -0.10*float64(failedSteps) - 0.03*float64(totalConcerns)
	adjusted := clamp01(score.Composite + delta)

	var outcome Outcome
	finalTier := score.Tier
	switch {
	case hostileConcern:
		// Hostile source demotes straight to Escalate regardless of
		// the starting tier (spec §4.5, §8 property 5).
		outcome = Demote
		finalTier = types.TierEscalate
	case adjusted >= actThreshold && failedSteps == 0:
		outcome = Promote
		finalTier = types.TierAct
	case adjusted < escalateThreshold || failedSteps >= 3:
		outcome = Demote
		finalTier = demoteOneTier(finalTier)
	default:
		outcome = Maintain
	}

	return Result{
		Steps:       steps,
		Adjusted:    adjusted,
		FailedSteps: failedSteps,
		Outcome:     outcome,
		FinalTier:   finalTier,
	}
}

// demoteOneTier drops a tier by one step: Act→Deliberate,
// Deliberate→Escalate, Escalate stays Escalate.
func demoteOneTier(t types.Tier) types.Tier {
	switch t {
	case types.TierAct:
		return types.TierDeliberate
	default:
		return types.TierEscalate
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// entryFromPrecedent is a convenience for callers wiring a live
// *precedent.Store into Deliberate.
func entryFromPrecedent(store *precedent.Store, class string) *types.PrecedentEntry {
	return store.GetEntry(class)
}
