package patient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCheckinTime(t *testing.T) {
	h, m, err := ParseCheckinTime("19:30")
	require.NoError(t, err)
	assert.Equal(t, 19, h)
	assert.Equal(t, 30, m)

	h, m, err = ParseCheckinTime("7:05")
	require.NoError(t, err)
	assert.Equal(t, 7, h)
	assert.Equal(t, 5, m)

	for _, bad := range []string{"24:00", "12:60", "-1:30", "noon", ""} {
		_, _, err := ParseCheckinTime(bad)
		assert.Error(t, err, bad)
	}
}

func TestLooksLikeClock(t *testing.T) {
	assert.True(t, LooksLikeClock("19:30"))
	assert.True(t, LooksLikeClock(" 8:15 "))
	assert.False(t, LooksLikeClock("I'll do 19:30 tomorrow"))
	assert.False(t, LooksLikeClock("1930"))
	assert.False(t, LooksLikeClock("25:00"))
	assert.False(t, LooksLikeClock("feeling ok"))
}

func TestFirstName(t *testing.T) {
	u := User{Name: "Ada Lovelace"}
	assert.Equal(t, "Ada", u.FirstName())

	u.Name = ""
	assert.Equal(t, "there", u.FirstName())
}
