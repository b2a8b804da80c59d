// Package aceerr declares the Action Confidence Engine's error kinds
// as a typed enum rather than ad-hoc sentinel strings, so callers can
// branch on Kind with errors.As instead of string-matching messages.
package aceerr

import "fmt"

// Kind enumerates the distinct error conditions the core can raise.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidClass
	KindInvalidThreshold
	KindHardCeilingBlocked
	KindHostileSource
	KindNoPrecedent
	KindConsensusDeadlock
	KindBypassExpired
	KindPersistence
	KindToolTimeout
	KindToolTruncated
	KindValidationFailure
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindInvalidClass:
		return "invalid_class"
	case KindInvalidThreshold:
		return "invalid_threshold"
	case KindHardCeilingBlocked:
		return "hard_ceiling_blocked"
	case KindHostileSource:
		return "hostile_source"
	case KindNoPrecedent:
		return "no_precedent"
	case KindConsensusDeadlock:
		return "consensus_deadlock"
	case KindBypassExpired:
		return "bypass_expired"
	case KindPersistence:
		return "persistence"
	case KindToolTimeout:
		return "tool_timeout"
	case KindToolTruncated:
		return "tool_truncated"
	case KindValidationFailure:
		return "validation_failure"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the ACE core's single error type. Class carries the action
// class involved, if any, so user-visible failures can always include
// it alongside a one-sentence reason (spec §7).
type Error struct {
	Kind  Kind
	Class string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Class != "" {
		return fmt.Sprintf("ace: %s: %s (class=%s)", e.Kind, e.Msg, e.Class)
	}
	return fmt.Sprintf("ace: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with no class context.
func New(k Kind, msg string) *Error {
	return &Error{Kind: k, Msg: msg}
}

// NewForClass builds an *Error tagged with the action class involved.
func NewForClass(k Kind, class, msg string) *Error {
	return &Error{Kind: k, Class: class, Msg: msg}
}

// Wrap builds an *Error carrying an underlying cause.
func Wrap(k Kind, class, msg string, err error) *Error {
	return &Error{Kind: k, Class: class, Msg: msg, Err: err}
}
