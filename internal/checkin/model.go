package checkin

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// AwaitingResponse is the sentinel response value a question carries from the
// moment it is sent until a reply is correlated to it.
const AwaitingResponse = "Awaiting Response"

// NoResponse marks a question that was abandoned because a newer one was sent
// while it was still pending. Abandoned messages never receive a score.
const NoResponse = "No response"

var (
	// ErrNoPendingMessage is returned when a reply arrives with no
	// outstanding question to correlate it to.
	ErrNoPendingMessage = errors.New("checkin: no pending message")
)

// Session is one patient's check-in activity for one calendar day. Its score
// is the mean of its scored messages and is recomputed by the store, never set
// directly.
type Session struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	Date      time.Time `json:"date"`
	Score     float64   `json:"score"`
	// MessageCount is the number of answered messages in the session,
	// maintained transactionally alongside each reply. It drives the
	// question-bank position for the next prompt.
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Message is an ordered (question, response) pair belonging to exactly one
// session.
type Message struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	PatientID uuid.UUID `json:"patient_id"`
	Question  string    `json:"question"`
	Response  string    `json:"response"`
	Score     *float64  `json:"score,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Pending reports whether the message is still awaiting a reply.
func (m *Message) Pending() bool {
	return m.Response == AwaitingResponse
}

// DateOf truncates t to its calendar date in loc, normalized to UTC midnight
// so dates compare and subtract cleanly.
func DateOf(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}
