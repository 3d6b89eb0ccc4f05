package alert

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	// TypeProfessionalHelp is the only alert type persisted today: the
	// patient explicitly asked to be contacted.
	TypeProfessionalHelp Type = "professional_help"
	// TypeLowScore marks the synthetic dashboard entries derived from
	// today's session scores. Never written to storage.
	TypeLowScore Type = "low_score"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
)

var ErrNotFound = errors.New("alert: not found")

type Alert struct {
	ID          uuid.UUID  `json:"id"`
	PatientID   uuid.UUID  `json:"patient_id"`
	PatientName string     `json:"patient_name"`
	Type        Type       `json:"alert_type"`
	Message     string     `json:"message"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	// Synthetic entries are computed on read and carry a zero ID; they
	// cannot be resolved, they disappear when the underlying score does.
	Synthetic bool `json:"synthetic"`
}

// AtRiskPatient is one row of the provider's "at risk" list: a declining
// trend or a run of missed check-ins.
type AtRiskPatient struct {
	PatientID     uuid.UUID  `json:"patient_id"`
	PatientName   string     `json:"patient_name"`
	ThreeDayDelta float64    `json:"three_day_delta"`
	LastSession   *time.Time `json:"last_session,omitempty"`
	Reason        string     `json:"reason"`
}
