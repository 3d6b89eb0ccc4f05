package checkin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0.0, ClampScore(-0.2))
	assert.Equal(t, 1.0, ClampScore(1.7))
	assert.Equal(t, 0.42, ClampScore(0.42))
}

func TestRoundScore(t *testing.T) {
	assert.Equal(t, 0.67, RoundScore(0.666666))
	assert.Equal(t, 0.5, RoundScore(0.5))
	assert.Equal(t, 0.13, RoundScore(0.125))
}

func TestSessionScore(t *testing.T) {
	assert.Equal(t, 0.5, SessionScore(nil), "no scored messages keeps the neutral placeholder")
	assert.Equal(t, 0.7, SessionScore([]float64{0.6, 0.8}))
	assert.Equal(t, 0.8, SessionScore([]float64{0.8}))
}

func TestComputeAggregatesFirstDay(t *testing.T) {
	today := day("2026-03-10")
	agg := ComputeAggregates([]DayScore{{Date: today, Score: 0.8}}, today)

	assert.Equal(t, 0.8, agg.CumulativeScore)
	assert.Equal(t, 0.8, agg.DayOverDayDelta, "missing yesterday counts as zero")
	assert.Equal(t, 0.8, agg.ThreeDayDelta, "empty prior window counts as zero")
}

func TestComputeAggregatesDayOverDay(t *testing.T) {
	today := day("2026-03-11")
	days := []DayScore{
		{Date: day("2026-03-10"), Score: 0.4},
		{Date: today, Score: 0.7},
	}
	agg := ComputeAggregates(days, today)

	assert.Equal(t, 0.55, agg.CumulativeScore)
	assert.Equal(t, 0.3, agg.DayOverDayDelta)
}

func TestComputeAggregatesThreeDayWindows(t *testing.T) {
	today := day("2026-03-12")
	days := []DayScore{
		{Date: day("2026-03-07"), Score: 0.9}, // today-5
		{Date: day("2026-03-08"), Score: 0.7}, // today-4
		{Date: day("2026-03-09"), Score: 0.8}, // today-3
		{Date: day("2026-03-10"), Score: 0.5}, // today-2
		{Date: day("2026-03-11"), Score: 0.4}, // today-1
		{Date: today, Score: 0.3},
	}
	agg := ComputeAggregates(days, today)

	// recent window mean 0.4, prior window mean 0.8
	assert.Equal(t, -0.4, agg.ThreeDayDelta)
	assert.Equal(t, -0.1, agg.DayOverDayDelta)
	assert.Equal(t, 0.6, agg.CumulativeScore)
}

func TestComputeAggregatesIgnoresDaysOutsideWindows(t *testing.T) {
	today := day("2026-03-12")
	days := []DayScore{
		{Date: day("2026-02-01"), Score: 0.1}, // far past, cumulative only
		{Date: today, Score: 0.6},
	}
	agg := ComputeAggregates(days, today)

	assert.Equal(t, 0.35, agg.CumulativeScore)
	assert.Equal(t, 0.6, agg.DayOverDayDelta)
	assert.Equal(t, 0.6, agg.ThreeDayDelta)
}

func TestDateOf(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	assert.NoError(t, err)

	// 01:30 UTC on the 11th is still the 10th in New York
	instant := time.Date(2026, 3, 11, 1, 30, 0, 0, time.UTC)
	assert.Equal(t, day("2026-03-10"), DateOf(instant, loc))
	assert.Equal(t, day("2026-03-11"), DateOf(instant, time.UTC))
}
