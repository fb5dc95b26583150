package automation

import "errors"

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, automation.ErrRuleNotFound) {
//	    // handle not found case
//	}
var (
	// ErrRuleNotFound is returned when a rule name does not exist.
	ErrRuleNotFound = errors.New("schedule: rule not found")

	// ErrRuleExists is returned when adding a rule whose name is taken.
	ErrRuleExists = errors.New("schedule: rule already exists")

	// ErrInvalidRule is returned when rule validation fails.
	ErrInvalidRule = errors.New("schedule: invalid rule")

	// ErrInvalidTime is returned for a time of day that is not HH:MM.
	ErrInvalidTime = errors.New("schedule: invalid time of day")

	// ErrAlreadyRunning is returned by Run when the loop is already active.
	ErrAlreadyRunning = errors.New("schedule: already running")
)
