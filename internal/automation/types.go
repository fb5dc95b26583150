package automation

import "fmt"

// Target types a rule can address.
const (
	TargetAll   = "all"
	TargetRoom  = "room"
	TargetFloor = "floor"
)

// Rule sets a group of vents to an angle at a fixed time of day.
//
// A rule matches a tick when it is enabled and the tick's hour and minute
// equal Hour and Minute exactly.
type Rule struct {
	Name       string `json:"name"`
	Hour       int    `json:"hour"`
	Minute     int    `json:"minute"`
	TargetType string `json:"target_type"`
	Target     string `json:"target,omitempty"` // room or floor label; empty for "all"
	Angle      int    `json:"angle"`
	Enabled    bool   `json:"enabled"`
}

// TimeOfDay formats the rule's trigger time as HH:MM.
func (r Rule) TimeOfDay() string {
	return fmt.Sprintf("%02d:%02d", r.Hour, r.Minute)
}

// Matches reports whether the rule fires at hour:minute.
func (r Rule) Matches(hour, minute int) bool {
	return r.Enabled && r.Hour == hour && r.Minute == minute
}
