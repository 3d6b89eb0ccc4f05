package checkin

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"echomind/internal/patient"
)

const transcriptLimit = 50

// Handler serves the provider dashboard's read side: per-patient score
// overviews and session transcripts.
type Handler struct {
	repo     Repository
	patients patient.Repository
}

func NewHandler(repo Repository, patients patient.Repository) *Handler {
	return &Handler{repo: repo, patients: patients}
}

// PatientOverview is one row of a doctor's patient list.
type PatientOverview struct {
	PatientID       uuid.UUID  `json:"patient_id"`
	Name            string     `json:"name"`
	Condition       string     `json:"condition"`
	CumulativeScore float64    `json:"cumulative_score"`
	DayOverDayDelta float64    `json:"day_over_day_delta"`
	ThreeDayDelta   float64    `json:"three_day_delta"`
	LatestScore     *float64   `json:"latest_score,omitempty"`
	SevenDayAverage *float64   `json:"seven_day_average,omitempty"`
	LastCheckin     *time.Time `json:"last_checkin,omitempty"`
}

func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid doctor ID", http.StatusBadRequest)
		return
	}

	patients, err := h.patients.PatientsForDoctor(r.Context(), doctorID)
	if err != nil {
		http.Error(w, "Failed to list patients", http.StatusInternalServerError)
		return
	}

	overviews := make([]PatientOverview, 0, len(patients))
	for _, p := range patients {
		o := PatientOverview{
			PatientID:       p.ID,
			Name:            p.Name,
			Condition:       p.Condition,
			CumulativeScore: p.CumulativeScore,
			DayOverDayDelta: p.DayOverDayDelta,
			ThreeDayDelta:   p.ThreeDayDelta,
		}

		sessions, err := h.repo.SessionHistory(r.Context(), p.ID)
		if err != nil {
			http.Error(w, "Failed to load session history", http.StatusInternalServerError)
			return
		}
		if n := len(sessions); n > 0 {
			latest := sessions[n-1]
			o.LatestScore = &latest.Score
			o.LastCheckin = &latest.Date

			cutoff := latest.Date.AddDate(0, 0, -6)
			var scores []float64
			for _, s := range sessions {
				if !s.Date.Before(cutoff) {
					scores = append(scores, s.Score)
				}
			}
			avg := SessionScore(scores)
			o.SevenDayAverage = &avg
		}
		overviews = append(overviews, o)
	}

	json.NewEncoder(w).Encode(overviews)
}

// PatientDetail is the dashboard's drill-down view: the full score series
// plus the recent conversation transcript.
type PatientDetail struct {
	Patient  *patient.Patient `json:"patient"`
	Sessions []Session        `json:"sessions"`
	Messages []Message        `json:"messages"`
}

func (h *Handler) GetPatientDetail(w http.ResponseWriter, r *http.Request) {
	patientID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid patient ID", http.StatusBadRequest)
		return
	}

	p, err := h.patients.GetPatient(r.Context(), patientID)
	if errors.Is(err, patient.ErrNotFound) {
		http.Error(w, "Patient not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to load patient", http.StatusInternalServerError)
		return
	}

	sessions, err := h.repo.SessionHistory(r.Context(), patientID)
	if err != nil {
		http.Error(w, "Failed to load session history", http.StatusInternalServerError)
		return
	}
	messages, err := h.repo.RecentMessages(r.Context(), patientID, transcriptLimit)
	if err != nil {
		http.Error(w, "Failed to load messages", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(PatientDetail{
		Patient:  p,
		Sessions: sessions,
		Messages: messages,
	})
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/doctors/{id}/patients", h.ListPatients)
	r.Get("/patients/{id}", h.GetPatientDetail)
}
