package domain

import (
	"errors"
	"fmt"
)

// Outcome reports whether a command changed state.
type Outcome string

const (
	// OutcomeApplied means the command mutated the session.
	OutcomeApplied Outcome = "applied"
	// OutcomeIgnored means the command had no target (e.g. no active event)
	// and the session is unchanged.
	OutcomeIgnored Outcome = "ignored"
)

// Sentinel errors usable with errors.Is.
var (
	ErrInvalidDoseInput = errors.New("invalid dose input")
	ErrProtocolNotFound = errors.New("species protocol not found")
)

// ValidationError reports a missing or malformed input. The operation that
// returns it performs no state change.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError is returned when a referenced record does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Is lets errors.Is(err, ErrProtocolNotFound) match protocol misses.
func (e NotFoundError) Is(target error) bool {
	return e.Entity == EntityProtocol && target == ErrProtocolNotFound
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}
