package patient

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type RegisterPatientInput struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Condition   string `json:"condition"`
	Timezone    string `json:"timezone"`
	CheckinTime string `json:"checkin_time"`
	DoctorEmail string `json:"doctor_email"`
}

type RegisterDoctorInput struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Specialty     string `json:"specialty"`
	LicenseNumber string `json:"license_number"`
	Institution   string `json:"institution"`
}

type Service interface {
	RegisterPatient(ctx context.Context, in RegisterPatientInput) (*Patient, error)
	RegisterDoctor(ctx context.Context, in RegisterDoctorInput) (*Doctor, error)
	IssueVerificationCode(ctx context.Context, userID uuid.UUID) (string, error)
	LinkChannel(ctx context.Context, code string, chatID int64) (*User, error)
	UpdateCheckinTime(ctx context.Context, patientID uuid.UUID, checkinTime string) error
	UpdatePreferences(ctx context.Context, patientID uuid.UUID, timezone, checkinTime string) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) RegisterPatient(ctx context.Context, in RegisterPatientInput) (*Patient, error) {
	if in.Name == "" || in.Email == "" {
		return nil, fmt.Errorf("name and email are required")
	}
	tz := in.Timezone
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	if in.CheckinTime != "" {
		if _, _, err := ParseCheckinTime(in.CheckinTime); err != nil {
			return nil, err
		}
	}

	doctorID := uuid.Nil
	if in.DoctorEmail != "" {
		doctor, err := s.repo.GetDoctorByEmail(ctx, in.DoctorEmail)
		if err != nil {
			return nil, fmt.Errorf("assigned doctor: %w", err)
		}
		doctorID = doctor.ID
	}

	p := &Patient{
		User: User{
			ID:    uuid.New(),
			Name:  in.Name,
			Email: in.Email,
			Role:  RolePatient,
		},
		Condition:   in.Condition,
		Timezone:    tz,
		CheckinTime: in.CheckinTime,
	}
	if err := s.repo.CreatePatient(ctx, p, doctorID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *service) RegisterDoctor(ctx context.Context, in RegisterDoctorInput) (*Doctor, error) {
	if in.Name == "" || in.Email == "" || in.LicenseNumber == "" || in.Institution == "" {
		return nil, fmt.Errorf("name, email, license number and institution are required")
	}
	d := &Doctor{
		User: User{
			ID:    uuid.New(),
			Name:  in.Name,
			Email: in.Email,
			Role:  RoleDoctor,
		},
		Specialty:     in.Specialty,
		LicenseNumber: in.LicenseNumber,
		Institution:   in.Institution,
	}
	if err := s.repo.CreateDoctor(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// IssueVerificationCode generates a short single-use code the user sends to
// the bot ("/start CODE") to bind their chat channel.
func (s *service) IssueVerificationCode(ctx context.Context, userID uuid.UUID) (string, error) {
	code, err := randomCode(6)
	if err != nil {
		return "", err
	}
	if err := s.repo.SetVerificationCode(ctx, userID, code); err != nil {
		return "", err
	}
	return code, nil
}

func (s *service) LinkChannel(ctx context.Context, code string, chatID int64) (*User, error) {
	return s.repo.ConsumeVerificationCode(ctx, code, chatID)
}

func (s *service) UpdateCheckinTime(ctx context.Context, patientID uuid.UUID, checkinTime string) error {
	if _, _, err := ParseCheckinTime(checkinTime); err != nil {
		return err
	}
	return s.repo.UpdateCheckinTime(ctx, patientID, checkinTime)
}

func (s *service) UpdatePreferences(ctx context.Context, patientID uuid.UUID, timezone, checkinTime string) error {
	if _, err := time.LoadLocation(timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	if _, _, err := ParseCheckinTime(checkinTime); err != nil {
		return err
	}
	return s.repo.UpdatePreferences(ctx, patientID, timezone, checkinTime)
}

func randomCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
