package rules

import (
	"fmt"
)

// Clock is an intraday time as minutes since midnight
type Clock int

// Before reports whether c is strictly earlier than other
func (c Clock) Before(other Clock) bool {
	return c < other
}

// String formats the clock as HH:MM:SS for parameter binding
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d:00", int(c)/60, int(c)%60)
}

// ParseClock parses an "HH:MM" string
func ParseClock(s string) (Clock, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return Clock(h*60 + m), nil
}
