package scheduler

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// JitterFunc returns a bounded offset added to a user's nominal local time
// so quantized schedules do not hit the portal simultaneously.
type JitterFunc func() time.Duration

// QuantizedJitter picks one of the 15-minute slot offsets.
func QuantizedJitter() time.Duration {
	offsets := []int{0, 15, 30, 45}
	return time.Duration(offsets[rand.Intn(len(offsets))]) * time.Minute
}

// NextFire computes the next UTC fire instant for a local "HH:MM" preference
// in the named timezone. The local→UTC conversion happens here on every call,
// so daylight-saving shifts are picked up each time a timer is re-armed; no
// UTC offset is ever reused across days.
func NextFire(nowUTC time.Time, clock, tz string, jitter time.Duration) (time.Time, error) {
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("load timezone %q: %w", tz, err)
	}

	localNow := nowUTC.In(loc)
	candidate := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), hour, minute, 0, 0, loc).Add(jitter)
	if !candidate.After(localNow) {
		candidate = time.Date(localNow.Year(), localNow.Month(), localNow.Day()+1, hour, minute, 0, 0, loc).Add(jitter)
	}
	return candidate.UTC(), nil
}

// ParseClock parses "HH:MM" into hour and minute.
func ParseClock(s string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, errors.New("expected HH:MM")
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, errors.New("invalid hour")
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, errors.New("invalid minute")
	}
	return hour, minute, nil
}

// ValidateTimezone checks that tz is a known IANA location and returns its
// canonical name.
func ValidateTimezone(tz string) (string, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", fmt.Errorf("unknown timezone %q: %w", tz, err)
	}
	return loc.String(), nil
}
