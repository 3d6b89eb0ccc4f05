package alert

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echomind/internal/patient"
)

type fakeRepo struct {
	created  []Alert
	pending  []Alert
	lows     []Alert
	alerted  map[uuid.UUID]bool
	resolved []uuid.UUID
}

func (f *fakeRepo) Create(ctx context.Context, a *Alert) error {
	a.ID = uuid.New()
	a.Status = StatusPending
	a.CreatedAt = time.Now()
	f.created = append(f.created, *a)
	return nil
}

func (f *fakeRepo) PendingForDoctor(ctx context.Context, doctorID uuid.UUID) ([]Alert, error) {
	return f.pending, nil
}

func (f *fakeRepo) PatientsAlertedSince(ctx context.Context, doctorID uuid.UUID, since time.Time) (map[uuid.UUID]bool, error) {
	if f.alerted == nil {
		return map[uuid.UUID]bool{}, nil
	}
	return f.alerted, nil
}

func (f *fakeRepo) LowScoreSessions(ctx context.Context, doctorID uuid.UUID, date time.Time, threshold float64) ([]Alert, error) {
	return f.lows, nil
}

func (f *fakeRepo) Declining(ctx context.Context, doctorID uuid.UUID, threshold float64) ([]AtRiskPatient, error) {
	return nil, nil
}

func (f *fakeRepo) Missed(ctx context.Context, doctorID uuid.UUID, cutoff time.Time) ([]AtRiskPatient, error) {
	return nil, nil
}

func (f *fakeRepo) Resolve(ctx context.Context, alertID uuid.UUID) error {
	f.resolved = append(f.resolved, alertID)
	return nil
}

type fakeDirectory struct {
	doctors []patient.Doctor
}

func (f *fakeDirectory) DoctorsForPatient(ctx context.Context, patientID uuid.UUID) ([]patient.Doctor, error) {
	return f.doctors, nil
}

type fakeNotifier struct {
	sent []int64
}

func (f *fakeNotifier) SendMessage(ctx context.Context, chatID int64, text string) error {
	f.sent = append(f.sent, chatID)
	return nil
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func newTestService(t *testing.T, repo *fakeRepo, dir *fakeDirectory, n *fakeNotifier) Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	return NewService(repo, dir, n, logger, 0.30, -0.10, 1)
}

func helpPatient() *patient.Patient {
	return &patient.Patient{
		User: patient.User{ID: uuid.New(), Name: "Grace Hopper", Role: patient.RolePatient},
	}
}

func boundDoctor(chatID int64) patient.Doctor {
	return patient.Doctor{
		User: patient.User{ID: uuid.New(), Name: "Dr. Smith", Role: patient.RoleDoctor, ChatID: &chatID},
	}
}

func TestRequestHelpNotifiesOnlyBoundDoctors(t *testing.T) {
	repo := &fakeRepo{}
	unbound := patient.Doctor{User: patient.User{ID: uuid.New(), Role: patient.RoleDoctor}}
	dir := &fakeDirectory{doctors: []patient.Doctor{boundDoctor(42), unbound}}
	notifier := &fakeNotifier{}
	svc := newTestService(t, repo, dir, notifier)

	a, err := svc.RequestHelp(context.Background(), helpPatient())
	require.NoError(t, err)

	assert.Equal(t, TypeProfessionalHelp, a.Type)
	assert.Equal(t, StatusPending, a.Status)
	require.Len(t, repo.created, 1, "exactly one alert row")
	assert.Equal(t, []int64{42}, notifier.sent)
}

func TestRequestHelpWithNoBindings(t *testing.T) {
	repo := &fakeRepo{}
	unbound := patient.Doctor{User: patient.User{ID: uuid.New(), Role: patient.RoleDoctor}}
	dir := &fakeDirectory{doctors: []patient.Doctor{unbound}}
	notifier := &fakeNotifier{}
	svc := newTestService(t, repo, dir, notifier)

	_, err := svc.RequestHelp(context.Background(), helpPatient())
	require.NoError(t, err)

	assert.Len(t, repo.created, 1, "the alert persists even when nobody can be notified")
	assert.Empty(t, notifier.sent)
}

func TestDashboardMergesSyntheticLowScores(t *testing.T) {
	alertedPatient := uuid.New()
	quietPatient := uuid.New()
	repo := &fakeRepo{
		pending: []Alert{{
			ID:        uuid.New(),
			PatientID: alertedPatient,
			Type:      TypeProfessionalHelp,
			Status:    StatusPending,
		}},
		lows: []Alert{
			{PatientID: alertedPatient, Type: TypeLowScore, Synthetic: true},
			{PatientID: quietPatient, Type: TypeLowScore, Synthetic: true},
		},
		alerted: map[uuid.UUID]bool{alertedPatient: true},
	}
	svc := newTestService(t, repo, &fakeDirectory{}, &fakeNotifier{})

	alerts, err := svc.Dashboard(context.Background(), uuid.New())
	require.NoError(t, err)

	require.Len(t, alerts, 2, "synthetic entry for the already-alerted patient is deduplicated")
	assert.Equal(t, TypeProfessionalHelp, alerts[0].Type)
	assert.Equal(t, quietPatient, alerts[1].PatientID)
	assert.True(t, alerts[1].Synthetic)
}

func TestDashboardSyntheticOnly(t *testing.T) {
	low := uuid.New()
	repo := &fakeRepo{
		lows: []Alert{{PatientID: low, Type: TypeLowScore, Synthetic: true}},
	}
	svc := newTestService(t, repo, &fakeDirectory{}, &fakeNotifier{})

	alerts, err := svc.Dashboard(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].Synthetic)
}
