package automation

import (
	"fmt"
	"strconv"
	"strings"
)

const maxRuleNameLength = 100

// ParseTimeOfDay parses "HH:MM" (24-hour clock).
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(mm) != 2 || hh == "" || len(hh) > 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	hour, err = strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	minute, err = strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return hour, minute, nil
}

// ValidateRule checks a rule before it is stored. The angle is not range
// checked; group commands clamp it.
func ValidateRule(r *Rule) error {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if len(name) > maxRuleNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidRule, maxRuleNameLength)
	}
	if r.Hour < 0 || r.Hour > 23 || r.Minute < 0 || r.Minute > 59 {
		return fmt.Errorf("%w: time %02d:%02d out of range", ErrInvalidRule, r.Hour, r.Minute)
	}
	switch r.TargetType {
	case TargetAll:
	case TargetRoom, TargetFloor:
		if r.Target == "" {
			return fmt.Errorf("%w: %s rule needs a target", ErrInvalidRule, r.TargetType)
		}
	default:
		return fmt.Errorf("%w: unknown target type %q", ErrInvalidRule, r.TargetType)
	}
	return nil
}
