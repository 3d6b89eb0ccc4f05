package report

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/signintech/gopdf"

	"echomind/internal/checkin"
	"echomind/internal/patient"
)

const transcriptLimit = 20

// DocumentSender delivers the rendered report to a provider's chat.
type DocumentSender interface {
	SendDocument(ctx context.Context, chatID int64, filename string, data []byte, caption string) error
}

// Service renders a patient's progress report as a PDF and pushes it to the
// requesting doctor over their chat channel.
type Service struct {
	patients patient.Repository
	checkins checkin.Repository
	sender   DocumentSender
	logger   *slog.Logger
}

func NewService(patients patient.Repository, checkins checkin.Repository, sender DocumentSender, logger *slog.Logger) *Service {
	return &Service{
		patients: patients,
		checkins: checkins,
		sender:   sender,
		logger:   logger,
	}
}

// SendProgressReport builds the PDF for patientID and sends it to the
// doctor's chat. The doctor must have a channel binding.
func (s *Service) SendProgressReport(ctx context.Context, doctorChatID int64, patientID uuid.UUID) error {
	p, err := s.patients.GetPatient(ctx, patientID)
	if err != nil {
		return fmt.Errorf("failed to load patient: %w", err)
	}
	sessions, err := s.checkins.SessionHistory(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("failed to load session history: %w", err)
	}
	messages, err := s.checkins.RecentMessages(ctx, p.ID, transcriptLimit)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}

	data, err := render(p, sessions, messages)
	if err != nil {
		return err
	}

	fileName := fmt.Sprintf("progress_%s.pdf", p.ID)
	caption := fmt.Sprintf("Progress report for %s", p.Name)
	if err := s.sender.SendDocument(ctx, doctorChatID, fileName, data, caption); err != nil {
		return fmt.Errorf("failed to send report: %w", err)
	}
	s.logger.Info("progress report sent", "patient_id", p.ID, "doctor_chat_id", doctorChatID)
	return nil
}

func render(p *patient.Patient, sessions []checkin.Session, messages []checkin.Message) ([]byte, error) {
	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	// Try multiple common paths for Alpine and Debian images
	fontPaths := []string{
		"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
		"/usr/share/fonts/dejavu/DejaVuSans.ttf",
		"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	}
	var fontErr error
	fontLoaded := false
	for _, path := range fontPaths {
		if err := pdf.AddTTFFont("DejaVu", path); err == nil {
			fontLoaded = true
			break
		} else {
			fontErr = err
		}
	}
	if !fontLoaded {
		return nil, fmt.Errorf("failed to load font for PDF, ensure ttf-dejavu is installed: %w", fontErr)
	}

	if err := pdf.SetFont("DejaVu", "", 20); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "EchoMind Progress Report")
	pdf.Br(30)

	if err := pdf.SetFont("DejaVu", "", 12); err != nil {
		return nil, err
	}
	pdf.Cell(nil, fmt.Sprintf("Patient: %s", p.Name))
	pdf.Br(15)
	pdf.Cell(nil, fmt.Sprintf("Condition: %s", p.Condition))
	pdf.Br(15)
	pdf.Cell(nil, fmt.Sprintf("Generated: %s", time.Now().Format("02.01.2006 15:04")))
	pdf.Br(15)
	pdf.Cell(nil, fmt.Sprintf("Cumulative score: %.2f   Day-over-day: %+.2f   3-day trend: %+.2f",
		p.CumulativeScore, p.DayOverDayDelta, p.ThreeDayDelta))
	pdf.Br(25)

	if err := pdf.SetFont("DejaVu", "", 14); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Session scores:")
	pdf.Br(15)

	if err := pdf.SetFont("DejaVu", "", 11); err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		pdf.Cell(nil, "- No check-in sessions recorded yet.")
		pdf.Br(15)
	}
	for _, sess := range sessions {
		pdf.Cell(nil, fmt.Sprintf("- %s: %.2f (%d answers)", sess.Date.Format("2006-01-02"), sess.Score, sess.MessageCount))
		pdf.Br(12)
	}
	pdf.Br(15)

	if err := pdf.SetFont("DejaVu", "", 14); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Recent conversation:")
	pdf.Br(15)

	if err := pdf.SetFont("DejaVu", "", 11); err != nil {
		return nil, err
	}
	// messages arrive newest first; print chronologically
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		line := fmt.Sprintf("Q: %s  A: %s", m.Question, m.Response)
		if m.Score != nil {
			line = fmt.Sprintf("%s (%.2f)", line, *m.Score)
		}
		lines, _ := pdf.SplitText(line, 500)
		for _, l := range lines {
			pdf.Cell(nil, l)
			pdf.Br(12)
		}
		pdf.Br(5)
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}
