// Package scorer implements the Three-axis Scorer (spec §4.2):
// composite R/P/B scoring, the trust modifier table, and the ordered
// ceiling/floor application that assigns a final Tier.
//
// Grounded on internal/roles/ggs/ggs.go's computeLoss/buildRationale
// shape — a weighted composite followed by an ordered table of
// ceiling checks, with a human-readable rationale trail.
package scorer

import (
	"github.com/haricheung/ace/internal/classifier"
	"github.com/haricheung/ace/internal/config"
	"github.com/haricheung/ace/internal/types"
)

// PrecedentSource is the narrow slice of internal/precedent the
// scorer depends on, kept as an interface so scorer tests don't need
// a real on-disk precedent store.
type PrecedentSource interface {
	Get(class string, applyDecay bool) (score float64, isFirstAction bool)
}

// ApplyTrustModifier adjusts a blast-radius value by trust level, per
// spec §4.2: hostile clamps to ≤0.10, untrusted subtracts 0.30 (floor
// 0), verified is unchanged, trusted adds 0.10 (ceiling 1).
func ApplyTrustModifier(b float64, level types.TrustLevel) float64 {
	switch level {
	case types.TrustHostile:
		return min(b, 0.10)
	case types.TrustUntrusted:
		return max(0, b-0.30)
	case types.TrustTrusted:
		return min(1, b+0.10)
	default: // verified, or anything unrecognized left unchanged
		return b
	}
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// tierByThreshold maps a composite score to a tier using the
// configured act/escalate thresholds (spec §3).
func tierByThreshold(composite float64, cfg *config.Config) types.Tier {
	if composite >= cfg.ActThreshold {
		return types.TierAct
	}
	if composite < cfg.EscalateThreshold {
		return types.TierEscalate
	}
	return types.TierDeliberate
}

// Score computes R, P, B and the final tier for a candidate action,
// applying the ceilings and floors in the order spec §4.2 requires:
// hard ceiling, then hostile source, then deliberate-minimum clamp,
// then threshold mapping.
func Score(desc types.ActionDescriptor, precedent PrecedentSource, cfg *config.Config) types.Score {
	var explanations []string

	r := classifier.DefaultReversibility(desc.Class)
	if desc.ReversibilityOverride != nil {
		r = *desc.ReversibilityOverride
		explanations = append(explanations, "reversibility overridden by descriptor")
	}

	p, isFirst := precedent.Get(desc.Class, true)
	if isFirst {
		explanations = append(explanations, "no precedent on file for class; precedent score is 0")
	}

	b := classifier.DefaultBlastRadius(desc.Class)
	bModified := ApplyTrustModifier(b, desc.TrustSource.Level)
	if bModified != b {
		explanations = append(explanations, "blast radius adjusted for trust level "+string(desc.TrustSource.Level))
	}
	b = bModified

	composite := cfg.Weights.R*r + cfg.Weights.P*p + cfg.Weights.B*b

	var tier types.Tier
	switch {
	case classifier.HasHardCeiling(desc.Class):
		tier = types.TierEscalate
		explanations = append(explanations, "hard ceiling pattern matched class; tier forced to escalate")
	case desc.TrustSource.Level == types.TrustHostile:
		tier = types.TierEscalate
		explanations = append(explanations, "hostile trust source; tier forced to escalate")
	default:
		tier = tierByThreshold(composite, cfg)
		// Deliberate-minimum classes may never auto-act (spec §3, §8
		// property 4): an action that would otherwise clear the act
		// threshold is clamped down to deliberate. A naturally
		// escalated action stays escalated — the clamp only ever
		// removes the "act" outcome, never adds privilege.
		if tier == types.TierAct && classifier.RequiresDeliberation(desc.Class) && composite > cfg.EscalateThreshold {
			tier = types.TierDeliberate
			explanations = append(explanations, "deliberate-minimum pattern matched class; tier clamped to deliberate")
		}
	}

	return types.Score{
		R:            r,
		P:            p,
		B:            b,
		Composite:    composite,
		Tier:         tier,
		Explanations: explanations,
	}
}
