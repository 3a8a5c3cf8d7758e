package action

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidTime = errors.New("invalid time of day")

// TimeOfDay is a wall-clock time parsed from "HH:MM" or "HH:MM:SS".
type TimeOfDay struct {
	Hour, Minute, Second int
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return TimeOfDay{}, fmt.Errorf("%w: %q (want HH:MM[:SS])", ErrInvalidTime, s)
	}
	limits := [3]int{23, 59, 59}
	var v [3]int
	for i, p := range parts {
		if len(p) == 0 || len(p) > 2 || !allDigits(p) {
			return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n > limits[i] {
			return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
		}
		v[i] = n
	}
	return TimeOfDay{Hour: v[0], Minute: v[1], Second: v[2]}, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}
