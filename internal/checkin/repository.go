package checkin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is the durable store for sessions and messages. All mutating
// operations serialize per patient by locking the patient row, so the
// scheduler and the reply handler never interleave aggregate writes.
type Repository interface {
	// GetOrCreateSession returns the single session for (patient, date),
	// creating it with a neutral placeholder score when absent.
	GetOrCreateSession(ctx context.Context, patientID uuid.UUID, date time.Time) (*Session, error)
	// RecordQuestion appends a message awaiting a response to the session
	// for date. Any previously pending message for the patient is marked
	// abandoned in the same transaction, so at most one message is ever
	// awaiting a reply.
	RecordQuestion(ctx context.Context, patientID uuid.UUID, date time.Time, question string) (uuid.UUID, error)
	// RecordReply fills the patient's most recent pending message with the
	// response and score, then recomputes the session score and all
	// patient aggregates atomically. Returns ErrNoPendingMessage when no
	// question is outstanding.
	RecordReply(ctx context.Context, patientID uuid.UUID, response string, score float64) (*Message, error)
	// PendingQuestion returns the patient's current outstanding question,
	// or ErrNoPendingMessage.
	PendingQuestion(ctx context.Context, patientID uuid.UUID) (*Message, error)
	// RecentScored returns the patient's latest scored exchanges, newest
	// first, up to limit.
	RecentScored(ctx context.Context, patientID uuid.UUID, limit int) ([]Message, error)
	// SessionHistory returns all of a patient's sessions ordered by date
	// ascending.
	SessionHistory(ctx context.Context, patientID uuid.UUID) ([]Session, error)
	// RecentMessages returns the patient's latest messages regardless of
	// state, newest first, up to limit.
	RecentMessages(ctx context.Context, patientID uuid.UUID, limit int) ([]Message, error)
	// SessionOn returns the session for (patient, date) or nil when the
	// patient has no session that day.
	SessionOn(ctx context.Context, patientID uuid.UUID, date time.Time) (*Session, error)
}

type postgresRepo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &postgresRepo{db: db}
}

const sessionColumns = "id, patient_id, session_date, score, message_count, created_at"

const messageColumns = "id, session_id, patient_id, question, response, score, created_at"

func (r *postgresRepo) GetOrCreateSession(ctx context.Context, patientID uuid.UUID, date time.Time) (*Session, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockPatient(ctx, tx, patientID); err != nil {
		return nil, err
	}
	sess, err := getOrCreateSessionTx(ctx, tx, patientID, date)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return sess, nil
}

func (r *postgresRepo) RecordQuestion(ctx context.Context, patientID uuid.UUID, date time.Time, question string) (uuid.UUID, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockPatient(ctx, tx, patientID); err != nil {
		return uuid.Nil, err
	}
	sess, err := getOrCreateSessionTx(ctx, tx, patientID, date)
	if err != nil {
		return uuid.Nil, err
	}

	// A newer question supersedes any outstanding one.
	_, err = tx.ExecContext(ctx,
		"UPDATE messages SET response = $1 WHERE patient_id = $2 AND response = $3",
		NoResponse, patientID, AwaitingResponse)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to abandon pending messages: %w", err)
	}

	id := uuid.New()
	_, err = tx.ExecContext(ctx,
		"INSERT INTO messages (id, session_id, patient_id, question, response) VALUES ($1, $2, $3, $4, $5)",
		id, sess.ID, patientID, question, AwaitingResponse)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

func (r *postgresRepo) RecordReply(ctx context.Context, patientID uuid.UUID, response string, score float64) (*Message, error) {
	score = RoundScore(ClampScore(score))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockPatient(ctx, tx, patientID); err != nil {
		return nil, err
	}

	row := tx.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE patient_id = $1 AND response = $2 ORDER BY created_at DESC LIMIT 1",
		patientID, AwaitingResponse)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoPendingMessage
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending message: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE messages SET response = $1, score = $2 WHERE id = $3",
		response, score, msg.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update message: %w", err)
	}
	msg.Response = response
	msg.Score = &score

	if err := recomputeAggregatesTx(ctx, tx, patientID, msg.SessionID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return msg, nil
}

func (r *postgresRepo) PendingQuestion(ctx context.Context, patientID uuid.UUID) (*Message, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE patient_id = $1 AND response = $2 ORDER BY created_at DESC LIMIT 1",
		patientID, AwaitingResponse)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoPendingMessage
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending message: %w", err)
	}
	return msg, nil
}

func (r *postgresRepo) RecentScored(ctx context.Context, patientID uuid.UUID, limit int) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE patient_id = $1 AND score IS NOT NULL ORDER BY created_at DESC LIMIT $2",
		patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scored messages: %w", err)
	}
	return collectMessages(rows)
}

func (r *postgresRepo) RecentMessages(ctx context.Context, patientID uuid.UUID, limit int) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2",
		patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	return collectMessages(rows)
}

func (r *postgresRepo) SessionHistory(ctx context.Context, patientID uuid.UUID) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE patient_id = $1 ORDER BY session_date ASC",
		patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.PatientID, &s.Date, &s.Score, &s.MessageCount, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *postgresRepo) SessionOn(ctx context.Context, patientID uuid.UUID, date time.Time) (*Session, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE patient_id = $1 AND session_date = $2",
		patientID, date)
	var s Session
	err := row.Scan(&s.ID, &s.PatientID, &s.Date, &s.Score, &s.MessageCount, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

func lockPatient(ctx context.Context, tx *sql.Tx, patientID uuid.UUID) error {
	var id uuid.UUID
	err := tx.QueryRowContext(ctx,
		"SELECT patient_id FROM patients WHERE patient_id = $1 FOR UPDATE", patientID).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to lock patient row: %w", err)
	}
	return nil
}

func getOrCreateSessionTx(ctx context.Context, tx *sql.Tx, patientID uuid.UUID, date time.Time) (*Session, error) {
	row := tx.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE patient_id = $1 AND session_date = $2",
		patientID, date)
	var s Session
	err := row.Scan(&s.ID, &s.PatientID, &s.Date, &s.Score, &s.MessageCount, &s.CreatedAt)
	if err == nil {
		return &s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	row = tx.QueryRowContext(ctx,
		"INSERT INTO sessions (id, patient_id, session_date) VALUES ($1, $2, $3) RETURNING "+sessionColumns,
		uuid.New(), patientID, date)
	if err := row.Scan(&s.ID, &s.PatientID, &s.Date, &s.Score, &s.MessageCount, &s.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &s, nil
}

// recomputeAggregatesTx rebuilds the affected session's score from its scored
// messages, bumps its answered-message counter, and rederives the patient's
// cumulative and delta metrics from the full session history.
func recomputeAggregatesTx(ctx context.Context, tx *sql.Tx, patientID, sessionID uuid.UUID) error {
	rows, err := tx.QueryContext(ctx,
		"SELECT score FROM messages WHERE session_id = $1 AND score IS NOT NULL", sessionID)
	if err != nil {
		return fmt.Errorf("failed to query message scores: %w", err)
	}
	var scores []float64
	for rows.Next() {
		var s float64
		if err := rows.Scan(&s); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan message score: %w", err)
		}
		scores = append(scores, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read message scores: %w", err)
	}

	var today time.Time
	err = tx.QueryRowContext(ctx,
		"UPDATE sessions SET score = $1, message_count = message_count + 1 WHERE id = $2 RETURNING session_date",
		SessionScore(scores), sessionID).Scan(&today)
	if err != nil {
		return fmt.Errorf("failed to update session score: %w", err)
	}

	rows, err = tx.QueryContext(ctx,
		"SELECT session_date, score FROM sessions WHERE patient_id = $1", patientID)
	if err != nil {
		return fmt.Errorf("failed to query session scores: %w", err)
	}
	var days []DayScore
	for rows.Next() {
		var d DayScore
		if err := rows.Scan(&d.Date, &d.Score); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan session score: %w", err)
		}
		d.Date = d.Date.UTC().Truncate(24 * time.Hour)
		days = append(days, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read session scores: %w", err)
	}

	agg := ComputeAggregates(days, today.UTC().Truncate(24*time.Hour))
	_, err = tx.ExecContext(ctx,
		"UPDATE patients SET cumulative_score = $1, day_over_day_delta = $2, three_day_delta = $3 WHERE patient_id = $4",
		agg.CumulativeScore, agg.DayOverDayDelta, agg.ThreeDayDelta, patientID)
	if err != nil {
		return fmt.Errorf("failed to update patient aggregates: %w", err)
	}
	return nil
}

func scanMessage(row *sql.Row) (*Message, error) {
	var m Message
	var score sql.NullFloat64
	if err := row.Scan(&m.ID, &m.SessionID, &m.PatientID, &m.Question, &m.Response, &score, &m.CreatedAt); err != nil {
		return nil, err
	}
	if score.Valid {
		m.Score = &score.Float64
	}
	return &m, nil
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	defer rows.Close()
	var messages []Message
	for rows.Next() {
		var m Message
		var score sql.NullFloat64
		if err := rows.Scan(&m.ID, &m.SessionID, &m.PatientID, &m.Question, &m.Response, &score, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if score.Valid {
			m.Score = &score.Float64
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
