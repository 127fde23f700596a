package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crewshift-bot/internal/service"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// ReminderRunner runs one reminder sweep on demand.
type ReminderRunner interface {
	Run(ctx context.Context) service.SweepReport
}

// OpsHandler serves health, readiness, metrics and the external reminder trigger.
type OpsHandler struct {
	db           Pinger
	reminders    ReminderRunner
	triggerToken string
}

func NewOpsHandler(db Pinger, reminders ReminderRunner, triggerToken string) *OpsHandler {
	return &OpsHandler{db: db, reminders: reminders, triggerToken: triggerToken}
}

func (h *OpsHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *OpsHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		log.Printf("WARN readiness: %v", err)
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// HandleRunReminders runs one sweep for an external timer. It is disabled without a trigger token.
func (h *OpsHandler) HandleRunReminders(w http.ResponseWriter, r *http.Request) {
	if h.triggerToken == "" {
		writeError(w, http.StatusNotFound, "disabled")
		return
	}
	if bearerToken(r.Header.Get("Authorization")) != h.triggerToken {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, h.reminders.Run(r.Context()))
}

func (h *OpsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReady)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/api/reminders/run", h.HandleRunReminders)
}
