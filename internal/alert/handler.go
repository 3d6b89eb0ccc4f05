package alert

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid doctor ID", http.StatusBadRequest)
		return
	}

	alerts, err := h.svc.Dashboard(r.Context(), doctorID)
	if err != nil {
		http.Error(w, "Failed to load alerts", http.StatusInternalServerError)
		return
	}
	if alerts == nil {
		alerts = []Alert{}
	}
	json.NewEncoder(w).Encode(alerts)
}

func (h *Handler) ListAtRisk(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid doctor ID", http.StatusBadRequest)
		return
	}

	patients, err := h.svc.AtRisk(r.Context(), doctorID)
	if err != nil {
		http.Error(w, "Failed to load at-risk patients", http.StatusInternalServerError)
		return
	}
	if patients == nil {
		patients = []AtRiskPatient{}
	}
	json.NewEncoder(w).Encode(patients)
}

func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	alertID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid alert ID", http.StatusBadRequest)
		return
	}

	err = h.svc.Resolve(r.Context(), alertID)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Alert not found or already resolved", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to resolve alert", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/doctors/{id}/alerts", h.ListAlerts)
	r.Get("/doctors/{id}/at-risk", h.ListAtRisk)
	r.Post("/alerts/{id}/resolve", h.ResolveAlert)
}
