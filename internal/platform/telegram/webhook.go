package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"echomind/internal/alert"
	"echomind/internal/checkin"
	"echomind/internal/patient"
)

// update is the subset of Telegram's Update payload the bot cares about.
type update struct {
	Message struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// Directory resolves inbound chats to known users. Satisfied by
// patient.Repository.
type Directory interface {
	GetUserByChatID(ctx context.Context, chatID int64) (*patient.User, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

// Linker binds chats to accounts and updates check-in preferences. Satisfied
// by patient.Service.
type Linker interface {
	LinkChannel(ctx context.Context, code string, chatID int64) (*patient.User, error)
	UpdateCheckinTime(ctx context.Context, patientID uuid.UUID, checkinTime string) error
}

// AlertService escalates explicit help requests. Satisfied by alert.Service.
type AlertService interface {
	RequestHelp(ctx context.Context, p *patient.Patient) (*alert.Alert, error)
}

// Sender delivers outbound replies. Satisfied by *Client.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Webhook routes inbound Telegram messages: account linking, check-in time
// changes, help requests, and check-in replies.
type Webhook struct {
	patients Directory
	linker   Linker
	checkins checkin.Service
	alerts   AlertService
	sender   Sender
	logger   *slog.Logger
}

func NewWebhook(patients Directory, linker Linker, checkins checkin.Service,
	alerts AlertService, sender Sender, logger *slog.Logger) *Webhook {
	return &Webhook{
		patients: patients,
		linker:   linker,
		checkins: checkins,
		alerts:   alerts,
		sender:   sender,
		logger:   logger,
	}
}

func (w *Webhook) RegisterRoutes(r chi.Router) {
	r.Post("/telegram/webhook", w.handleUpdate)
}

// handleUpdate always answers 200: Telegram retries non-2xx responses, and a
// retry storm helps nobody.
func (w *Webhook) handleUpdate(rw http.ResponseWriter, req *http.Request) {
	var u update
	if err := json.NewDecoder(req.Body).Decode(&u); err != nil {
		w.logger.Warn("undecodable telegram update", "error", err)
		rw.WriteHeader(http.StatusOK)
		return
	}

	text := strings.TrimSpace(u.Message.Text)
	chatID := u.Message.Chat.ID
	if text == "" || chatID == 0 {
		rw.WriteHeader(http.StatusOK)
		return
	}

	w.route(req, chatID, text)
	rw.WriteHeader(http.StatusOK)
}

func (w *Webhook) route(req *http.Request, chatID int64, text string) {
	ctx := req.Context()

	if code, ok := strings.CutPrefix(text, "/start"); ok {
		w.handleStart(req, chatID, strings.TrimSpace(code))
		return
	}

	user, err := w.patients.GetUserByChatID(ctx, chatID)
	if errors.Is(err, patient.ErrNotFound) {
		w.reply(req, chatID, "I don't recognize this chat yet. Send /start with the verification code from your care team to link your account.")
		return
	}
	if err != nil {
		w.logger.Error("failed to look up chat binding", "chat_id", chatID, "error", err)
		return
	}

	if user.Role == patient.RoleDoctor {
		w.reply(req, chatID, "You're linked as a provider. Alerts and reports for your patients arrive here automatically.")
		return
	}

	p, err := w.patients.GetPatient(ctx, user.ID)
	if err != nil {
		w.logger.Error("failed to load patient", "user_id", user.ID, "error", err)
		return
	}

	switch {
	case text == ProfessionalHelpLabel:
		if _, err := w.alerts.RequestHelp(ctx, p); err != nil {
			w.logger.Error("failed to create help alert", "patient_id", p.ID, "error", err)
			return
		}
		w.reply(req, chatID, "Your care team has been notified and someone will reach out to you soon. If you are in immediate danger, please call your local emergency number.")
	case patient.LooksLikeClock(text):
		if err := w.linker.UpdateCheckinTime(ctx, p.ID, text); err != nil {
			w.reply(req, chatID, "I couldn't read that time. Send it as HH:MM, for example 19:30.")
			return
		}
		w.reply(req, chatID, "Got it! I'll check in with you daily at "+text+".")
	default:
		err := w.checkins.HandleReply(ctx, p, text)
		if errors.Is(err, checkin.ErrNoPendingMessage) {
			w.logger.Info("reply with no pending question", "patient_id", p.ID)
			return
		}
		if err != nil {
			w.logger.Error("failed to handle reply", "patient_id", p.ID, "error", err)
		}
	}
}

func (w *Webhook) handleStart(req *http.Request, chatID int64, code string) {
	if code == "" {
		w.reply(req, chatID, "Welcome to EchoMind! Send /start followed by the verification code from your care team to link your account.")
		return
	}

	user, err := w.linker.LinkChannel(req.Context(), code, chatID)
	if errors.Is(err, patient.ErrInvalidCode) {
		w.reply(req, chatID, "That verification code isn't valid. Codes are single-use; ask your care team for a fresh one.")
		return
	}
	if err != nil {
		w.logger.Error("failed to link channel", "chat_id", chatID, "error", err)
		return
	}

	if user.Role == patient.RoleDoctor {
		w.reply(req, chatID, "Welcome, Dr. "+user.Name+"! You'll receive alerts and progress reports for your patients here.")
		return
	}
	w.reply(req, chatID, "Welcome, "+user.FirstName()+"! You're all set. I'll message you daily for your check-in. You can change the time any moment by sending HH:MM.")
}

func (w *Webhook) reply(req *http.Request, chatID int64, text string) {
	if err := w.sender.SendMessage(req.Context(), chatID, text); err != nil {
		w.logger.Error("failed to send telegram reply", "chat_id", chatID, "error", err)
	}
}
