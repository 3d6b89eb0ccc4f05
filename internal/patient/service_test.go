package patient

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	doctorsByEmail map[string]*Doctor
	patients       []*Patient
	assignments    []uuid.UUID
	codes          map[uuid.UUID]string
	consumedCode   string
	linkedChat     int64
	linkedUser     *User
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		doctorsByEmail: make(map[string]*Doctor),
		codes:          make(map[uuid.UUID]string),
	}
}

func (f *fakeRepo) CreateDoctor(ctx context.Context, d *Doctor) error {
	f.doctorsByEmail[d.Email] = d
	return nil
}

func (f *fakeRepo) CreatePatient(ctx context.Context, p *Patient, doctorID uuid.UUID) error {
	f.patients = append(f.patients, p)
	if doctorID != uuid.Nil {
		f.assignments = append(f.assignments, doctorID)
	}
	return nil
}

func (f *fakeRepo) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	for _, p := range f.patients {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeRepo) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	for _, d := range f.doctorsByEmail {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeRepo) GetDoctorByEmail(ctx context.Context, email string) (*Doctor, error) {
	if d, ok := f.doctorsByEmail[email]; ok {
		return d, nil
	}
	return nil, ErrNotFound
}

func (f *fakeRepo) GetUserByChatID(ctx context.Context, chatID int64) (*User, error) {
	return nil, ErrNotFound
}

func (f *fakeRepo) PatientsForDoctor(ctx context.Context, doctorID uuid.UUID) ([]Patient, error) {
	return nil, nil
}

func (f *fakeRepo) DoctorsForPatient(ctx context.Context, patientID uuid.UUID) ([]Doctor, error) {
	return nil, nil
}

func (f *fakeRepo) SchedulablePatients(ctx context.Context) ([]Patient, error) {
	return nil, nil
}

func (f *fakeRepo) SetVerificationCode(ctx context.Context, userID uuid.UUID, code string) error {
	f.codes[userID] = code
	return nil
}

func (f *fakeRepo) ConsumeVerificationCode(ctx context.Context, code string, chatID int64) (*User, error) {
	f.consumedCode = code
	f.linkedChat = chatID
	if f.linkedUser == nil {
		return nil, ErrInvalidCode
	}
	return f.linkedUser, nil
}

func (f *fakeRepo) UpdatePreferences(ctx context.Context, patientID uuid.UUID, timezone, checkinTime string) error {
	return nil
}

func (f *fakeRepo) UpdateCheckinTime(ctx context.Context, patientID uuid.UUID, checkinTime string) error {
	return nil
}

func TestRegisterPatientAssignsDoctor(t *testing.T) {
	repo := newFakeRepo()
	doctor := &Doctor{User: User{ID: uuid.New(), Name: "Dr. Smith", Email: "smith@clinic.org", Role: RoleDoctor}}
	repo.doctorsByEmail[doctor.Email] = doctor

	svc := NewService(repo)
	p, err := svc.RegisterPatient(context.Background(), RegisterPatientInput{
		Name:        "Ada Lovelace",
		Email:       "ada@example.com",
		Condition:   "generalized anxiety",
		Timezone:    "Europe/London",
		CheckinTime: "19:30",
		DoctorEmail: doctor.Email,
	})
	require.NoError(t, err)

	assert.Equal(t, RolePatient, p.Role)
	assert.Equal(t, "Europe/London", p.Timezone)
	require.Len(t, repo.assignments, 1)
	assert.Equal(t, doctor.ID, repo.assignments[0])
}

func TestRegisterPatientDefaultsTimezone(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	p, err := svc.RegisterPatient(context.Background(), RegisterPatientInput{
		Name:  "Ada Lovelace",
		Email: "ada@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "UTC", p.Timezone)
	assert.Empty(t, repo.assignments)
}

func TestRegisterPatientValidation(t *testing.T) {
	svc := NewService(newFakeRepo())

	_, err := svc.RegisterPatient(context.Background(), RegisterPatientInput{Email: "ada@example.com"})
	assert.Error(t, err, "name is required")

	_, err = svc.RegisterPatient(context.Background(), RegisterPatientInput{
		Name: "Ada", Email: "ada@example.com", Timezone: "Mars/Olympus",
	})
	assert.Error(t, err, "timezone must be a known location")

	_, err = svc.RegisterPatient(context.Background(), RegisterPatientInput{
		Name: "Ada", Email: "ada@example.com", CheckinTime: "25:99",
	})
	assert.Error(t, err, "check-in time must parse")

	_, err = svc.RegisterPatient(context.Background(), RegisterPatientInput{
		Name: "Ada", Email: "ada@example.com", DoctorEmail: "nobody@clinic.org",
	})
	assert.ErrorIs(t, err, ErrNotFound, "unknown doctor fails registration")
}

func TestIssueVerificationCode(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	userID := uuid.New()

	code, err := svc.IssueVerificationCode(context.Background(), userID)
	require.NoError(t, err)

	assert.Len(t, code, 6)
	for _, r := range code {
		assert.Contains(t, codeAlphabet, string(r))
	}
	assert.Equal(t, code, repo.codes[userID])
}

func TestLinkChannel(t *testing.T) {
	repo := newFakeRepo()
	repo.linkedUser = &User{ID: uuid.New(), Name: "Ada Lovelace", Role: RolePatient}
	svc := NewService(repo)

	u, err := svc.LinkChannel(context.Background(), "ABC123", 42)
	require.NoError(t, err)
	assert.Equal(t, repo.linkedUser.ID, u.ID)
	assert.Equal(t, "ABC123", repo.consumedCode)
	assert.Equal(t, int64(42), repo.linkedChat)

	repo.linkedUser = nil
	_, err = svc.LinkChannel(context.Background(), "STALE1", 42)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestUpdateCheckinTimeValidates(t *testing.T) {
	svc := NewService(newFakeRepo())
	assert.NoError(t, svc.UpdateCheckinTime(context.Background(), uuid.New(), "08:00"))
	assert.Error(t, svc.UpdateCheckinTime(context.Background(), uuid.New(), "8 in the morning"))
}
