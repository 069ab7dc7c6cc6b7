package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"30", 30 * time.Minute},
		{"0", 0},
		{" 15 ", 15 * time.Minute},
		{"45m", 45 * time.Minute},
		{"2h", 2 * time.Hour},
		{"1h30m", 90 * time.Minute},
		{"1d", 24 * time.Hour},
		{"3d", 72 * time.Hour},
		{"2w", 14 * 24 * time.Hour},
	}
	for _, tc := range cases {
		got, err := ParseDuration(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestParseDurationErrors(t *testing.T) {
	for _, in := range []string{"", "   ", "-5", "xd", "soon"} {
		_, err := ParseDuration(in)
		assert.Error(t, err, "input %q", in)
	}
}
