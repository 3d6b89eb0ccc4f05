package alert

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Alert) error
	// PendingForDoctor returns persisted pending alerts for the doctor's
	// assigned patients, newest first.
	PendingForDoctor(ctx context.Context, doctorID uuid.UUID) ([]Alert, error)
	// PatientsAlertedSince lists patients with a persisted pending
	// professional_help alert created at or after the cutoff; used to
	// dedupe synthetic low-score entries.
	PatientsAlertedSince(ctx context.Context, doctorID uuid.UUID, since time.Time) (map[uuid.UUID]bool, error)
	// LowScoreSessions returns synthetic entries for the doctor's patients
	// whose session on date scored below threshold.
	LowScoreSessions(ctx context.Context, doctorID uuid.UUID, date time.Time, threshold float64) ([]Alert, error)
	// Declining lists assigned patients whose three-day trend fell below
	// the (negative) threshold.
	Declining(ctx context.Context, doctorID uuid.UUID, threshold float64) ([]AtRiskPatient, error)
	// Missed lists assigned patients with no session on or after the
	// cutoff date.
	Missed(ctx context.Context, doctorID uuid.UUID, cutoff time.Time) ([]AtRiskPatient, error)
	// Resolve marks a pending alert resolved with a timestamp. Resolution
	// is one-way; resolving an already-resolved or unknown alert returns
	// ErrNotFound.
	Resolve(ctx context.Context, alertID uuid.UUID) error
}

type postgresRepo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &postgresRepo{db: db}
}

func (r *postgresRepo) Create(ctx context.Context, a *Alert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := r.db.QueryRowContext(ctx,
		"INSERT INTO alerts (id, patient_id, alert_type, message) VALUES ($1, $2, $3, $4) RETURNING created_at",
		a.ID, a.PatientID, a.Type, a.Message).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	a.Status = StatusPending
	return nil
}

func (r *postgresRepo) PendingForDoctor(ctx context.Context, doctorID uuid.UUID) ([]Alert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.patient_id, u.name, a.alert_type, a.message, a.status, a.created_at, a.resolved_at
		FROM alerts a
		JOIN users u ON u.id = a.patient_id
		JOIN doctor_patients dp ON dp.patient_id = a.patient_id
		WHERE dp.doctor_id = $1 AND a.status = 'pending'
		ORDER BY a.created_at DESC`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		var resolvedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.PatientID, &a.PatientName, &a.Type, &a.Message, &a.Status, &a.CreatedAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		if resolvedAt.Valid {
			a.ResolvedAt = &resolvedAt.Time
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (r *postgresRepo) PatientsAlertedSince(ctx context.Context, doctorID uuid.UUID, since time.Time) (map[uuid.UUID]bool, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT a.patient_id
		FROM alerts a
		JOIN doctor_patients dp ON dp.patient_id = a.patient_id
		WHERE dp.doctor_id = $1 AND a.alert_type = $2 AND a.status = 'pending' AND a.created_at >= $3`,
		doctorID, TypeProfessionalHelp, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerted patients: %w", err)
	}
	defer rows.Close()

	alerted := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan patient id: %w", err)
		}
		alerted[id] = true
	}
	return alerted, rows.Err()
}

func (r *postgresRepo) LowScoreSessions(ctx context.Context, doctorID uuid.UUID, date time.Time, threshold float64) ([]Alert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.patient_id, u.name, s.score, s.created_at
		FROM sessions s
		JOIN users u ON u.id = s.patient_id
		JOIN doctor_patients dp ON dp.patient_id = s.patient_id
		WHERE dp.doctor_id = $1 AND s.session_date = $2 AND s.message_count > 0 AND s.score < $3
		ORDER BY s.score ASC`, doctorID, date, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to query low-score sessions: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		var score float64
		if err := rows.Scan(&a.PatientID, &a.PatientName, &score, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan low-score session: %w", err)
		}
		a.Type = TypeLowScore
		a.Status = StatusPending
		a.Synthetic = true
		a.Message = fmt.Sprintf("Today's check-in score is %.2f", score)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (r *postgresRepo) Declining(ctx context.Context, doctorID uuid.UUID, threshold float64) ([]AtRiskPatient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.patient_id, u.name, p.three_day_delta
		FROM patients p
		JOIN users u ON u.id = p.patient_id
		JOIN doctor_patients dp ON dp.patient_id = p.patient_id
		WHERE dp.doctor_id = $1 AND p.three_day_delta < $2
		ORDER BY p.three_day_delta ASC`, doctorID, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to query declining patients: %w", err)
	}
	defer rows.Close()

	var patients []AtRiskPatient
	for rows.Next() {
		var p AtRiskPatient
		if err := rows.Scan(&p.PatientID, &p.PatientName, &p.ThreeDayDelta); err != nil {
			return nil, fmt.Errorf("failed to scan declining patient: %w", err)
		}
		p.Reason = "declining trend"
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

func (r *postgresRepo) Missed(ctx context.Context, doctorID uuid.UUID, cutoff time.Time) ([]AtRiskPatient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.patient_id, u.name, p.three_day_delta, MAX(s.session_date)
		FROM patients p
		JOIN users u ON u.id = p.patient_id
		JOIN doctor_patients dp ON dp.patient_id = p.patient_id
		LEFT JOIN sessions s ON s.patient_id = p.patient_id
		WHERE dp.doctor_id = $1
		GROUP BY p.patient_id, u.name, p.three_day_delta
		HAVING MAX(s.session_date) IS NULL OR MAX(s.session_date) < $2`,
		doctorID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query missed check-ins: %w", err)
	}
	defer rows.Close()

	var patients []AtRiskPatient
	for rows.Next() {
		var p AtRiskPatient
		var last sql.NullTime
		if err := rows.Scan(&p.PatientID, &p.PatientName, &p.ThreeDayDelta, &last); err != nil {
			return nil, fmt.Errorf("failed to scan missed check-in: %w", err)
		}
		if last.Valid {
			p.LastSession = &last.Time
		}
		p.Reason = "missed check-in"
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

func (r *postgresRepo) Resolve(ctx context.Context, alertID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE alerts SET status = 'resolved', resolved_at = now() WHERE id = $1 AND status = 'pending'",
		alertID)
	if err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
