package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echomind/internal/alert"
	"echomind/internal/checkin"
	"echomind/internal/patient"
)

type fakeDirectory struct {
	user *patient.User
	p    *patient.Patient
}

func (f *fakeDirectory) GetUserByChatID(ctx context.Context, chatID int64) (*patient.User, error) {
	if f.user == nil {
		return nil, patient.ErrNotFound
	}
	return f.user, nil
}

func (f *fakeDirectory) GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error) {
	if f.p == nil {
		return nil, patient.ErrNotFound
	}
	return f.p, nil
}

type fakeLinker struct {
	linkedCode  string
	linkedUser  *patient.User
	linkErr     error
	updatedTime string
}

func (f *fakeLinker) LinkChannel(ctx context.Context, code string, chatID int64) (*patient.User, error) {
	f.linkedCode = code
	if f.linkErr != nil {
		return nil, f.linkErr
	}
	return f.linkedUser, nil
}

func (f *fakeLinker) UpdateCheckinTime(ctx context.Context, patientID uuid.UUID, checkinTime string) error {
	f.updatedTime = checkinTime
	return nil
}

type fakeCheckins struct {
	replies  []string
	replyErr error
}

func (f *fakeCheckins) Checkin(ctx context.Context, p *patient.Patient) error {
	return nil
}

func (f *fakeCheckins) HandleReply(ctx context.Context, p *patient.Patient, reply string) error {
	if f.replyErr != nil {
		return f.replyErr
	}
	f.replies = append(f.replies, reply)
	return nil
}

type fakeAlerts struct {
	requests int
}

func (f *fakeAlerts) RequestHelp(ctx context.Context, p *patient.Patient) (*alert.Alert, error) {
	f.requests++
	return &alert.Alert{ID: uuid.New(), PatientID: p.ID, Type: alert.TypeProfessionalHelp}, nil
}

type fakeSender struct {
	sent []string
}

func (f *fakeSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	f.sent = append(f.sent, text)
	return nil
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

type webhookFixture struct {
	dir      *fakeDirectory
	linker   *fakeLinker
	checkins *fakeCheckins
	alerts   *fakeAlerts
	sender   *fakeSender
	router   chi.Router
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	f := &webhookFixture{
		dir:      &fakeDirectory{},
		linker:   &fakeLinker{},
		checkins: &fakeCheckins{},
		alerts:   &fakeAlerts{},
		sender:   &fakeSender{},
	}
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	w := NewWebhook(f.dir, f.linker, f.checkins, f.alerts, f.sender, logger)
	f.router = chi.NewRouter()
	w.RegisterRoutes(f.router)
	return f
}

func (f *webhookFixture) post(t *testing.T, chatID int64, text string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"message": map[string]any{
			"text": text,
			"chat": map[string]any{"id": chatID},
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func linkedPatient(chatID int64) (*patient.User, *patient.Patient) {
	u := &patient.User{ID: uuid.New(), Name: "Ada Lovelace", Role: patient.RolePatient, ChatID: &chatID}
	p := &patient.Patient{User: *u, Timezone: "UTC"}
	return u, p
}

func TestWebhookStartLinksAccount(t *testing.T) {
	f := newWebhookFixture(t)
	f.linker.linkedUser = &patient.User{ID: uuid.New(), Name: "Ada Lovelace", Role: patient.RolePatient}

	rec := f.post(t, 100, "/start ABC123")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ABC123", f.linker.linkedCode)
	require.Len(t, f.sender.sent, 1)
	assert.Contains(t, f.sender.sent[0], "Welcome, Ada!")
}

func TestWebhookStartInvalidCode(t *testing.T) {
	f := newWebhookFixture(t)
	f.linker.linkErr = patient.ErrInvalidCode

	rec := f.post(t, 100, "/start BADCODE")

	assert.Equal(t, http.StatusOK, rec.Code, "Telegram must never see an error status")
	require.Len(t, f.sender.sent, 1)
	assert.Contains(t, f.sender.sent[0], "isn't valid")
}

func TestWebhookUnknownChat(t *testing.T) {
	f := newWebhookFixture(t)

	f.post(t, 100, "hello")

	require.Len(t, f.sender.sent, 1)
	assert.Contains(t, f.sender.sent[0], "verification code")
	assert.Empty(t, f.checkins.replies)
}

func TestWebhookHelpRequest(t *testing.T) {
	f := newWebhookFixture(t)
	f.dir.user, f.dir.p = linkedPatient(100)

	f.post(t, 100, ProfessionalHelpLabel)

	assert.Equal(t, 1, f.alerts.requests)
	require.Len(t, f.sender.sent, 1)
	assert.Contains(t, f.sender.sent[0], "care team has been notified")
	assert.Empty(t, f.checkins.replies, "the help button is not a check-in answer")
}

func TestWebhookClockUpdatesCheckinTime(t *testing.T) {
	f := newWebhookFixture(t)
	f.dir.user, f.dir.p = linkedPatient(100)

	f.post(t, 100, "19:30")

	assert.Equal(t, "19:30", f.linker.updatedTime)
	assert.Empty(t, f.checkins.replies)
}

func TestWebhookReplyRoutesToCheckin(t *testing.T) {
	f := newWebhookFixture(t)
	f.dir.user, f.dir.p = linkedPatient(100)

	f.post(t, 100, "I slept much better last night")

	assert.Equal(t, []string{"I slept much better last night"}, f.checkins.replies)
}

func TestWebhookReplyWithoutPendingQuestion(t *testing.T) {
	f := newWebhookFixture(t)
	f.dir.user, f.dir.p = linkedPatient(100)
	f.checkins.replyErr = checkin.ErrNoPendingMessage

	rec := f.post(t, 100, "hello again")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.sender.sent, "uncorrelated replies are logged, not answered")
}

func TestWebhookDoctorChat(t *testing.T) {
	f := newWebhookFixture(t)
	chatID := int64(200)
	f.dir.user = &patient.User{ID: uuid.New(), Name: "Dr. Smith", Role: patient.RoleDoctor, ChatID: &chatID}

	f.post(t, 200, "anything")

	require.Len(t, f.sender.sent, 1)
	assert.Contains(t, f.sender.sent[0], "provider")
	assert.Empty(t, f.checkins.replies)
}
