package model

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseClock converts HH:MM or HH:MM:SS to seconds since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("clock %q: want HH:MM or HH:MM:SS", s)
	}
	limits := []int{23, 59, 59}
	mult := []int{3600, 60, 1}
	total := 0
	for i, p := range parts {
		if len(p) != 2 {
			return 0, fmt.Errorf("clock %q: field %d must have two digits", s, i+1)
		}
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > limits[i] {
			return 0, fmt.Errorf("clock %q: field %d out of range", s, i+1)
		}
		total += v * mult[i]
	}
	return total, nil
}

// Bounds returns the window in seconds since midnight.
func (tw TimeWindow) Bounds() (earliest, latest int, err error) {
	if earliest, err = ParseClock(tw.Start); err != nil {
		return 0, 0, err
	}
	if latest, err = ParseClock(tw.End); err != nil {
		return 0, 0, err
	}
	return earliest, latest, nil
}
