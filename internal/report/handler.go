package report

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"echomind/internal/patient"
)

type Handler struct {
	svc      *Service
	patients patient.Repository
}

func NewHandler(svc *Service, patients patient.Repository) *Handler {
	return &Handler{svc: svc, patients: patients}
}

// SendReport renders a patient's progress PDF and delivers it to the
// requesting doctor's chat.
func (h *Handler) SendReport(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid doctor ID", http.StatusBadRequest)
		return
	}
	patientID, err := uuid.Parse(chi.URLParam(r, "patientID"))
	if err != nil {
		http.Error(w, "Invalid patient ID", http.StatusBadRequest)
		return
	}

	doctor, err := h.patients.GetDoctor(r.Context(), doctorID)
	if errors.Is(err, patient.ErrNotFound) {
		http.Error(w, "Doctor not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to load doctor", http.StatusInternalServerError)
		return
	}
	if !doctor.HasChannel() {
		http.Error(w, "Doctor has no linked chat to deliver the report to", http.StatusConflict)
		return
	}

	if err := h.svc.SendProgressReport(r.Context(), *doctor.ChatID, patientID); err != nil {
		http.Error(w, "Failed to send report: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/doctors/{id}/patients/{patientID}/report", h.SendReport)
}
