package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScore(t *testing.T) {
	for input, want := range map[string]float64{
		"0.75":   0.75,
		" 0.3\n": 0.3,
		`"0.9"`:  0.9,
		"0.42.":  0.42,
		"1":      1,
		"0":      0,
	} {
		got, err := parseScore(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	for _, bad := range []string{"", "pretty good", "0.5 out of 1"} {
		_, err := parseScore(bad)
		assert.Error(t, err, bad)
	}
}
