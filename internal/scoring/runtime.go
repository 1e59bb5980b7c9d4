package scoring

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidRunTime indicates a run-time string is not in M:SS or MM:SS form.
var ErrInvalidRunTime = errors.New("scoring: invalid run time")

// RunTime is a 2.4 km run duration. Scoresheets record it as "MM:SS" while
// the scoring table thresholds are plain seconds; both views must round-trip
// without loss.
type RunTime struct {
	seconds int
}

// RunTimeFromSeconds builds a RunTime from a non-negative seconds count.
func RunTimeFromSeconds(seconds int) (RunTime, error) {
	if seconds < 0 {
		return RunTime{}, fmt.Errorf("%w: %d seconds", ErrInvalidRunTime, seconds)
	}
	return RunTime{seconds: seconds}, nil
}

// ParseRunTime parses an "MM:SS" string as scanned from a scoresheet.
func ParseRunTime(raw string) (RunTime, error) {
	trimmed := strings.TrimSpace(raw)
	parts := strings.Split(trimmed, ":")
	if len(parts) != 2 {
		return RunTime{}, fmt.Errorf("%w: %q", ErrInvalidRunTime, raw)
	}
	minutes, err := strconv.Atoi(parts[0])
	if err != nil || minutes < 0 {
		return RunTime{}, fmt.Errorf("%w: %q", ErrInvalidRunTime, raw)
	}
	seconds, err := strconv.Atoi(parts[1])
	if err != nil || seconds < 0 || seconds > 59 {
		return RunTime{}, fmt.Errorf("%w: %q", ErrInvalidRunTime, raw)
	}
	return RunTime{seconds: minutes*60 + seconds}, nil
}

// Seconds returns the duration as a seconds count.
func (rt RunTime) Seconds() int {
	return rt.seconds
}

// String formats the duration as "MM:SS".
func (rt RunTime) String() string {
	return fmt.Sprintf("%02d:%02d", rt.seconds/60, rt.seconds%60)
}

// IsZero reports whether the run time is unset.
func (rt RunTime) IsZero() bool {
	return rt.seconds == 0
}
