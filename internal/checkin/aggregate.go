package checkin

import (
	"math"
	"time"
)

// ClampScore forces a sentiment score into the [0, 1] range.
func ClampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// RoundScore rounds a score to two decimal places.
func RoundScore(s float64) float64 {
	return math.Round(s*100) / 100
}

// DayScore pairs a session's calendar date with its score.
type DayScore struct {
	Date  time.Time
	Score float64
}

// Aggregates holds the per-patient rollups derived from session scores.
type Aggregates struct {
	CumulativeScore float64
	DayOverDayDelta float64
	ThreeDayDelta   float64
}

// ComputeAggregates derives the patient-level rollups from the full set of
// session day scores. today anchors the delta windows and must be a
// normalized calendar date (see DateOf).
//
// A day or window with no sessions contributes a score of 0, so a patient's
// first-ever day reads as a delta equal to today's score. The three-day delta
// compares the mean over [today-2, today] against the mean over
// [today-5, today-3].
func ComputeAggregates(days []DayScore, today time.Time) Aggregates {
	var agg Aggregates

	sum := 0.0
	for _, d := range days {
		sum += d.Score
	}
	if len(days) > 0 {
		agg.CumulativeScore = RoundScore(sum / float64(len(days)))
	}

	todayScore, _ := scoreOn(days, today)
	yesterdayScore, _ := scoreOn(days, today.AddDate(0, 0, -1))
	agg.DayOverDayDelta = RoundScore(todayScore - yesterdayScore)

	recent, _ := windowMean(days, today.AddDate(0, 0, -2), today)
	prior, _ := windowMean(days, today.AddDate(0, 0, -5), today.AddDate(0, 0, -3))
	agg.ThreeDayDelta = RoundScore(recent - prior)

	return agg
}

// SessionScore computes a session's score as the mean of its scored messages.
// A session with no scored messages keeps the neutral placeholder.
func SessionScore(scores []float64) float64 {
	if len(scores) == 0 {
		return 0.5
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return RoundScore(sum / float64(len(scores)))
}

func scoreOn(days []DayScore, date time.Time) (float64, bool) {
	for _, d := range days {
		if d.Date.Equal(date) {
			return d.Score, true
		}
	}
	return 0, false
}

func windowMean(days []DayScore, from, to time.Time) (float64, bool) {
	sum := 0.0
	n := 0
	for _, d := range days {
		if d.Date.Before(from) || d.Date.After(to) {
			continue
		}
		sum += d.Score
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
