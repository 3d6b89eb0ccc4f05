package patient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("patient: not found")
	ErrInvalidCode = errors.New("patient: invalid or expired verification code")
)

type Repository interface {
	CreateDoctor(ctx context.Context, d *Doctor) error
	CreatePatient(ctx context.Context, p *Patient, doctorID uuid.UUID) error
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetDoctorByEmail(ctx context.Context, email string) (*Doctor, error)
	GetUserByChatID(ctx context.Context, chatID int64) (*User, error)
	PatientsForDoctor(ctx context.Context, doctorID uuid.UUID) ([]Patient, error)
	DoctorsForPatient(ctx context.Context, patientID uuid.UUID) ([]Doctor, error)
	SchedulablePatients(ctx context.Context) ([]Patient, error)
	SetVerificationCode(ctx context.Context, userID uuid.UUID, code string) error
	ConsumeVerificationCode(ctx context.Context, code string, chatID int64) (*User, error)
	UpdatePreferences(ctx context.Context, patientID uuid.UUID, timezone, checkinTime string) error
	UpdateCheckinTime(ctx context.Context, patientID uuid.UUID, checkinTime string) error
}

type postgresRepo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &postgresRepo{db: db}
}

func (r *postgresRepo) CreateDoctor(ctx context.Context, d *Doctor) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, name, email, role, created_at) VALUES ($1, $2, $3, $4, $5)`,
		d.ID, d.Name, d.Email, RoleDoctor, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO doctors (doctor_id, specialty, license_number, institution) VALUES ($1, $2, $3, $4)`,
		d.ID, d.Specialty, d.LicenseNumber, d.Institution)
	if err != nil {
		return fmt.Errorf("insert doctor: %w", err)
	}
	return tx.Commit()
}

// CreatePatient inserts the user and patient rows and the doctor assignment in
// one transaction. The assignment is created at registration and not otherwise
// mutated by the core.
func (r *postgresRepo) CreatePatient(ctx context.Context, p *Patient, doctorID uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, name, email, role, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Name, p.Email, RolePatient, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO patients (patient_id, condition, timezone, checkin_time) VALUES ($1, $2, $3, $4)`,
		p.ID, p.Condition, p.Timezone, p.CheckinTime)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	if doctorID != uuid.Nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO doctor_patients (doctor_id, patient_id) VALUES ($1, $2)`,
			doctorID, p.ID)
		if err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
	}
	return tx.Commit()
}

const patientColumns = `u.id, u.name, u.email, u.chat_id, u.created_at,
	p.condition, p.timezone, p.checkin_time,
	p.cumulative_score, p.day_over_day_delta, p.three_day_delta`

func scanPatient(row interface{ Scan(...any) error }) (*Patient, error) {
	var p Patient
	var chatID sql.NullInt64
	var checkinTime sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.Email, &chatID, &p.CreatedAt,
		&p.Condition, &p.Timezone, &checkinTime,
		&p.CumulativeScore, &p.DayOverDayDelta, &p.ThreeDayDelta)
	if err != nil {
		return nil, err
	}
	p.Role = RolePatient
	if chatID.Valid {
		p.ChatID = &chatID.Int64
	}
	if checkinTime.Valid {
		p.CheckinTime = checkinTime.String
	}
	return &p, nil
}

func (r *postgresRepo) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+patientColumns+` FROM users u JOIN patients p ON u.id = p.patient_id WHERE u.id = $1`, id)
	p, err := scanPatient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *postgresRepo) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT u.id, u.name, u.email, u.chat_id, u.created_at, d.specialty, d.license_number, d.institution
		 FROM users u JOIN doctors d ON u.id = d.doctor_id WHERE u.id = $1`, id)
	return scanDoctor(row)
}

func (r *postgresRepo) GetDoctorByEmail(ctx context.Context, email string) (*Doctor, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT u.id, u.name, u.email, u.chat_id, u.created_at, d.specialty, d.license_number, d.institution
		 FROM users u JOIN doctors d ON u.id = d.doctor_id WHERE u.email = $1`, email)
	return scanDoctor(row)
}

func scanDoctor(row *sql.Row) (*Doctor, error) {
	var d Doctor
	var chatID sql.NullInt64
	err := row.Scan(&d.ID, &d.Name, &d.Email, &chatID, &d.CreatedAt, &d.Specialty, &d.LicenseNumber, &d.Institution)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.Role = RoleDoctor
	if chatID.Valid {
		d.ChatID = &chatID.Int64
	}
	return &d, nil
}

func (r *postgresRepo) GetUserByChatID(ctx context.Context, chatID int64) (*User, error) {
	var u User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, role, created_at FROM users WHERE chat_id = $1`, chatID).
		Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.ChatID = &chatID
	return &u, nil
}

func (r *postgresRepo) PatientsForDoctor(ctx context.Context, doctorID uuid.UUID) ([]Patient, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+patientColumns+`
		 FROM users u
		 JOIN patients p ON u.id = p.patient_id
		 JOIN doctor_patients dp ON dp.patient_id = p.patient_id
		 WHERE dp.doctor_id = $1
		 ORDER BY u.name`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, *p)
	}
	return patients, rows.Err()
}

// DoctorsForPatient returns the providers assigned to a patient, used to route
// alerts and reports.
func (r *postgresRepo) DoctorsForPatient(ctx context.Context, patientID uuid.UUID) ([]Doctor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id, u.name, u.email, u.chat_id, u.created_at, d.specialty, d.license_number, d.institution
		 FROM users u
		 JOIN doctors d ON u.id = d.doctor_id
		 JOIN doctor_patients dp ON dp.doctor_id = d.doctor_id
		 WHERE dp.patient_id = $1`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var doctors []Doctor
	for rows.Next() {
		var d Doctor
		var chatID sql.NullInt64
		if err := rows.Scan(&d.ID, &d.Name, &d.Email, &chatID, &d.CreatedAt,
			&d.Specialty, &d.LicenseNumber, &d.Institution); err != nil {
			return nil, err
		}
		d.Role = RoleDoctor
		if chatID.Valid {
			d.ChatID = &chatID.Int64
		}
		doctors = append(doctors, d)
	}
	return doctors, rows.Err()
}

// SchedulablePatients returns patients with both a bound channel and a
// configured check-in time, the candidates for each scheduler tick.
func (r *postgresRepo) SchedulablePatients(ctx context.Context) ([]Patient, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+patientColumns+`
		 FROM users u
		 JOIN patients p ON u.id = p.patient_id
		 WHERE u.chat_id IS NOT NULL AND p.checkin_time IS NOT NULL AND p.checkin_time <> ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, *p)
	}
	return patients, rows.Err()
}

func (r *postgresRepo) SetVerificationCode(ctx context.Context, userID uuid.UUID, code string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET verification_code = $1 WHERE id = $2`, code, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ConsumeVerificationCode binds a chat id to the user holding the code and
// clears the code so it cannot be reused.
func (r *postgresRepo) ConsumeVerificationCode(ctx context.Context, code string, chatID int64) (*User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var u User
	err = tx.QueryRowContext(ctx,
		`SELECT id, name, email, role, created_at FROM users WHERE verification_code = $1 FOR UPDATE`, code).
		Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE users SET chat_id = $1, verification_code = NULL WHERE id = $2`, chatID, u.ID)
	if err != nil {
		return nil, fmt.Errorf("bind channel: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	u.ChatID = &chatID
	return &u, nil
}

func (r *postgresRepo) UpdatePreferences(ctx context.Context, patientID uuid.UUID, timezone, checkinTime string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE patients SET timezone = $1, checkin_time = $2 WHERE patient_id = $3`,
		timezone, checkinTime, patientID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepo) UpdateCheckinTime(ctx context.Context, patientID uuid.UUID, checkinTime string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE patients SET checkin_time = $1 WHERE patient_id = $2`, checkinTime, patientID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
