package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration extends time.ParseDuration to support days (d) and weeks (w).
// A bare number is read as minutes, which is what moderators usually mean.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative duration: %s", s)
		}
		return time.Duration(n) * time.Minute, nil
	}

	multipliers := map[string]time.Duration{
		"d": 24 * time.Hour,
		"w": 7 * 24 * time.Hour,
	}
	for suffix, unit := range multipliers {
		if strings.HasSuffix(s, suffix) {
			numStr := strings.TrimSuffix(s, suffix)
			n, err := strconv.Atoi(numStr)
			if err != nil {
				return 0, fmt.Errorf("invalid %s value: %s", suffix, numStr)
			}
			return time.Duration(n) * unit, nil
		}
	}

	return time.ParseDuration(s)
}
