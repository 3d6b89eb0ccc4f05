package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"echomind/internal/patient"
)

// Notifier pushes alert notifications to a provider's chat.
type Notifier interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// DoctorDirectory resolves the providers assigned to a patient. Satisfied by
// patient.Repository.
type DoctorDirectory interface {
	DoctorsForPatient(ctx context.Context, patientID uuid.UUID) ([]patient.Doctor, error)
}

type Service interface {
	// RequestHelp persists a professional_help alert for the patient and
	// notifies every assigned provider with a channel binding. Notification
	// failures are logged; the alert row always survives.
	RequestHelp(ctx context.Context, p *patient.Patient) (*Alert, error)
	// Dashboard merges persisted pending alerts with synthetic low-score
	// entries for today, deduplicating patients who already have a
	// persisted help request today.
	Dashboard(ctx context.Context, doctorID uuid.UUID) ([]Alert, error)
	// AtRisk combines the declining-trend and missed-check-in queries into
	// one provider-facing list.
	AtRisk(ctx context.Context, doctorID uuid.UUID) ([]AtRiskPatient, error)
	// Resolve marks a persisted alert resolved.
	Resolve(ctx context.Context, alertID uuid.UUID) error
}

type service struct {
	repo              Repository
	patients          DoctorDirectory
	notifier          Notifier
	logger            *slog.Logger
	lowScoreThreshold float64
	declineThreshold  float64
	missedDays        int
	now               func() time.Time
}

func NewService(repo Repository, patients DoctorDirectory, notifier Notifier, logger *slog.Logger,
	lowScoreThreshold, declineThreshold float64, missedDays int) Service {
	return &service{
		repo:              repo,
		patients:          patients,
		notifier:          notifier,
		logger:            logger,
		lowScoreThreshold: lowScoreThreshold,
		declineThreshold:  declineThreshold,
		missedDays:        missedDays,
		now:               time.Now,
	}
}

func (s *service) RequestHelp(ctx context.Context, p *patient.Patient) (*Alert, error) {
	a := &Alert{
		PatientID:   p.ID,
		PatientName: p.Name,
		Type:        TypeProfessionalHelp,
		Message:     fmt.Sprintf("%s has requested to speak with a professional.", p.Name),
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	doctors, err := s.patients.DoctorsForPatient(ctx, p.ID)
	if err != nil {
		s.logger.Error("failed to list assigned doctors for alert", "patient_id", p.ID, "error", err)
		return a, nil
	}
	for _, d := range doctors {
		if !d.HasChannel() {
			continue
		}
		text := fmt.Sprintf("🚨 Alert: %s", a.Message)
		if err := s.notifier.SendMessage(ctx, *d.ChatID, text); err != nil {
			s.logger.Error("failed to notify doctor", "doctor_id", d.ID, "error", err)
		}
	}
	return a, nil
}

func (s *service) Dashboard(ctx context.Context, doctorID uuid.UUID) ([]Alert, error) {
	alerts, err := s.repo.PendingForDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	lows, err := s.repo.LowScoreSessions(ctx, doctorID, today, s.lowScoreThreshold)
	if err != nil {
		return nil, err
	}
	alerted, err := s.repo.PatientsAlertedSince(ctx, doctorID, today)
	if err != nil {
		return nil, err
	}
	for _, low := range lows {
		if alerted[low.PatientID] {
			continue
		}
		alerts = append(alerts, low)
	}
	return alerts, nil
}

func (s *service) AtRisk(ctx context.Context, doctorID uuid.UUID) ([]AtRiskPatient, error) {
	declining, err := s.repo.Declining(ctx, doctorID, s.declineThreshold)
	if err != nil {
		return nil, err
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	cutoff := today.AddDate(0, 0, -s.missedDays+1)
	missed, err := s.repo.Missed(ctx, doctorID, cutoff)
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]bool, len(declining))
	for _, p := range declining {
		seen[p.PatientID] = true
	}
	atRisk := declining
	for _, p := range missed {
		if seen[p.PatientID] {
			continue
		}
		atRisk = append(atRisk, p)
	}
	return atRisk, nil
}

func (s *service) Resolve(ctx context.Context, alertID uuid.UUID) error {
	return s.repo.Resolve(ctx, alertID)
}
