// Package api HTTP handlers.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fieldcrm/callgate/internal/models"
)

// callRequest is the "place call" action payload. Lead arrives as the
// loose shape the shell has; normalization happens at the controller
// boundary.
type callRequest struct {
	PhoneNumber string         `json:"phone_number"`
	Lead        map[string]any `json:"lead"`
}

func (s *Server) callHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("callHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	err := s.controller.HandleCall(r.Context(), req.PhoneNumber, req.Lead)
	switch {
	case errors.Is(err, models.ErrObligationExists):
		writeJSONResponse(w, http.StatusConflict, models.Error("Complete the pending call feedback before placing a new call"))
	case errors.Is(err, models.ErrMissingPhone):
		writeJSONResponse(w, http.StatusBadRequest, models.Error("This lead does not have a phone number"))
	case err != nil:
		slog.Error("callHandler: call initiation failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Unable to open dialer"))
	default:
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Call initiated", nil))
	}
}

func (s *Server) feedbackHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.FeedbackSubmission
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("feedbackHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	err := s.controller.HandleSaveFeedback(r.Context(), req.Outcome, req.Remarks, req.StageID)
	switch {
	case errors.Is(err, models.ErrNoObligation), errors.Is(err, models.ErrNoCallLog):
		writeJSONResponse(w, http.StatusConflict, models.Error("No call is awaiting feedback"))
	case errors.Is(err, models.ErrEmptyOutcome), errors.Is(err, models.ErrEmptyRemarks):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
	case err != nil:
		slog.Error("feedbackHandler: submission failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save feedback"))
	default:
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Feedback recorded", nil))
	}
}

func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.controller.Snapshot()))
}

func (s *Server) foregroundHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.controller.HandleForeground(r.Context())
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

func (s *Server) focusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.controller.Reconcile(r.Context())
	writeJSONResponse(w, http.StatusOK, models.Success(s.controller.Snapshot()))
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.history.GlobalHistory()))
}

func (s *Server) leadHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	leadID := r.URL.Query().Get("leadId")
	if leadID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("leadId is required"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.history.LeadHistory(leadID)))
}

// messageRequest is the WhatsApp contact action payload.
type messageRequest struct {
	LeadID      string `json:"lead_id"`
	LeadName    string `json:"lead_name"`
	PhoneNumber string `json:"phone_number"`
	Body        string `json:"body"`
}

func (s *Server) messageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.messenger == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("WhatsApp channel not configured"))
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("messageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.PhoneNumber == "" || req.Body == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("phone_number and body are required"))
		return
	}

	if err := s.messenger.SendMessage(r.Context(), req.PhoneNumber, req.Body); err != nil {
		slog.Error("messageHandler: send failed", "error", err, "to", req.PhoneNumber)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to send message"))
		return
	}

	now := time.Now()
	interaction := models.Interaction{
		ID:        uuid.NewString(),
		LeadID:    req.LeadID,
		LeadName:  req.LeadName,
		Type:      models.InteractionWhatsApp,
		Status:    "Sent",
		Remarks:   req.Body,
		Timestamp: now,
		Date:      now.UTC().Format(time.RFC3339),
	}
	if err := s.history.AddInteraction(interaction); err != nil {
		slog.Error("messageHandler: history append failed", "error", err, "lead_id", req.LeadID)
	}

	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Message sent", nil))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}
