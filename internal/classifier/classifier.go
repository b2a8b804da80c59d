// Package classifier implements the Action Classifier & pattern
// matcher (spec §4.1): parsing colon-separated action classes,
// wildcard pattern matching, parent/sibling derivation, and the
// static hard-ceiling / deliberate-minimum pattern tables.
//
// Grounded on internal/roles/ggs/ggs.go's exact-match →
// most-specific-match → wildcard-fallback resolution shape.
package classifier

import (
	"fmt"
	"strings"

	"github.com/haricheung/ace/internal/aceerr"
)

// HardCeilingPatterns are action classes that always escalate and can
// never be bypassed (spec §3, §4.1, §4.8).
var HardCeilingPatterns = []string{
	"*:credentials:*",
	"credentials:*",
	"self:modify:ace-*",
	"code:execute:external",
	"skill:load:external",
	"plugin:load:external",
}

// DeliberateMinimumPatterns are action classes that may never auto-act
// (spec §3, §4.1).
var DeliberateMinimumPatterns = []string{
	"git:push:remote",
	"comm:send:*",
	"config:write:*",
	"skill:create:*",
	"plugin:create:*",
	"web:fetch:*",
}

// defaultReversibility and defaultBlastRadius are keyed by pattern,
// most-specific (largest segment count) match wins, falling back to
// the "*" catch-all (0.5), per spec §4.1.
var defaultReversibility = map[string]float64{
	"filesystem:read:*":  1.0,
	"filesystem:write:*": 0.6,
	"git:commit:local":   0.8,
	"git:commit:*":       0.7,
	"git:push:remote":    0.3,
	"comm:send:*":        0.1,
	"code:execute:*":     0.4,
	"*":                  0.5,
}

var defaultBlastRadius = map[string]float64{
	"filesystem:read:*":  1.0,
	"filesystem:write:*": 0.7,
	"git:commit:local":   0.8,
	"git:push:remote":    0.4,
	"comm:send:*":        0.2,
	"code:execute:*":     0.3,
	"*":                  0.5,
}

func isToken(s string) bool {
	if s == "*" {
		return true
	}
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
			return false
		}
	}
	return true
}

// Parse splits a class into its segments and, by convention, names the
// first three as category/subcategory/specific (empty string if the
// class has fewer segments).
func Parse(class string) (segments []string, category, subcategory, specific string, err error) {
	if class == "" {
		return nil, "", "", "", aceerr.NewForClass(aceerr.KindInvalidClass, class, "empty class")
	}
	segments = strings.Split(class, ":")
	for _, seg := range segments {
		if !isToken(seg) {
			return nil, "", "", "", aceerr.NewForClass(aceerr.KindInvalidClass, class, fmt.Sprintf("illegal segment %q", seg))
		}
	}
	if len(segments) > 0 {
		category = segments[0]
	}
	if len(segments) > 1 {
		subcategory = segments[1]
	}
	if len(segments) > 2 {
		specific = segments[2]
	}
	return segments, category, subcategory, specific, nil
}

// Parent returns the parent of class. For a non-wildcard path, the
// parent is the same path with its last segment replaced by "*". For
// a path already ending in "*" (e.g. "git:commit:*"), replacing the
// last segment would be a no-op, so the parent instead drops the last
// two segments and wildcards what remains — parent("git:commit:*") is
// "git:*" (spec §9 open question 2, codified: return "git:*", not
// nil). The parent of the top-level wildcard "*" is "", ok=false.
func Parent(class string) (parent string, ok bool) {
	if class == "*" {
		return "", false
	}
	segs := strings.Split(class, ":")
	if segs[len(segs)-1] == "*" {
		if len(segs) == 1 {
			return "", false
		}
		rest := segs[:len(segs)-2]
		return strings.Join(append(append([]string{}, rest...), "*"), ":"), true
	}
	parentSegs := append(append([]string{}, segs[:len(segs)-1]...), "*")
	return strings.Join(parentSegs, ":"), true
}

// Siblings returns every class in known with the same length and same
// parent prefix as class, excluding class itself and its parent wildcard.
func Siblings(class string, known []string) []string {
	segs := strings.Split(class, ":")
	parent, _ := Parent(class)
	var out []string
	for _, k := range known {
		if k == class || k == parent {
			continue
		}
		ksegs := strings.Split(k, ":")
		if len(ksegs) != len(segs) {
			continue
		}
		samePrefix := true
		for i := 0; i < len(segs)-1; i++ {
			if ksegs[i] != segs[i] {
				samePrefix = false
				break
			}
		}
		if samePrefix {
			out = append(out, k)
		}
	}
	return out
}

// Matches reports whether pattern matches class (spec §8 property 7:
// Matches("a:b:c","a:*")=true, Matches("a:b:c","a:b")=false,
// Matches("a:b:c","a:b:*")=true, Matches("a","a:*")=true).
//
// A pattern ending in "*" matches class if every segment before that
// trailing "*" matches the corresponding class segment (literal
// segments equal, "*" segments matching anything) — the trailing "*"
// stands for "this segment and everything after it", so it can match
// zero additional class segments (class exactly as long as the
// pattern's literal prefix) just as well as many. A pattern NOT ending
// in "*" requires an exact segment-count match.
func Matches(class, pattern string) bool {
	csegs := strings.Split(class, ":")
	psegs := strings.Split(pattern, ":")

	if psegs[len(psegs)-1] == "*" {
		prefix := psegs[:len(psegs)-1]
		if len(prefix) > len(csegs) {
			return false
		}
		for i, p := range prefix {
			if p == "*" {
				continue
			}
			if p != csegs[i] {
				return false
			}
		}
		return true
	}

	if len(psegs) != len(csegs) {
		return false
	}
	for i, p := range psegs {
		if p == "*" {
			continue
		}
		if p != csegs[i] {
			return false
		}
	}
	return true
}

func matchesAny(class string, patterns []string) bool {
	for _, p := range patterns {
		if Matches(class, p) {
			return true
		}
	}
	return false
}

// HasHardCeiling reports whether class matches any HardCeilingPatterns
// entry (spec §4.1, §8 property 3).
func HasHardCeiling(class string) bool {
	return matchesAny(class, HardCeilingPatterns)
}

// RequiresDeliberation reports whether class matches any
// DeliberateMinimumPatterns entry (spec §4.1, §8 property 4).
func RequiresDeliberation(class string) bool {
	return matchesAny(class, DeliberateMinimumPatterns)
}

// mostSpecific picks, among patterns matching class, the one with the
// most segments (most specific). Among equally long matching patterns
// the first one seen in map iteration order wins, so such ties are not
// resolved deterministically.
func mostSpecific(class string, table map[string]float64) (float64, bool) {
	bestLen := -1
	var best float64
	found := false
	for pattern, v := range table {
		if pattern == "*" {
			continue
		}
		if Matches(class, pattern) {
			n := len(strings.Split(pattern, ":"))
			if n > bestLen {
				bestLen = n
				best = v
				found = true
			}
		}
	}
	return best, found
}

// DefaultReversibility returns the configured default reversibility
// for class: exact match wins, else the most-specific matching
// pattern, else the "*" fallback (spec §4.1).
func DefaultReversibility(class string) float64 {
	if v, ok := defaultReversibility[class]; ok {
		return v
	}
	if v, ok := mostSpecific(class, defaultReversibility); ok {
		return v
	}
	return defaultReversibility["*"]
}

// DefaultBlastRadius returns the configured default blast radius for
// class, using the same exact→most-specific→wildcard resolution as
// DefaultReversibility.
func DefaultBlastRadius(class string) float64 {
	if v, ok := defaultBlastRadius[class]; ok {
		return v
	}
	if v, ok := mostSpecific(class, defaultBlastRadius); ok {
		return v
	}
	return defaultBlastRadius["*"]
}
