// Package store provides the ObligationRepo for the singleton pending
// feedback obligation and the transient active-call marker.
package store

import (
	"encoding/json"
	"log/slog"

	"github.com/fieldcrm/callgate/internal/models"
)

// Durable map keys owned by the ObligationRepo.
const (
	keyPendingObligation = "pending_call_feedback"
	keyActiveCallNumber  = "active_call_number"
)

// ObligationRepo persists the single outstanding feedback obligation.
// Reads fail open: missing, corrupt or unreadable state is reported as
// "no obligation" rather than an error, so the gate never wedges the app.
type ObligationRepo struct {
	kv KV
}

// NewObligationRepo creates an ObligationRepo over the given KV.
func NewObligationRepo(kv KV) *ObligationRepo {
	return &ObligationRepo{kv: kv}
}

// SetPending writes the obligation, overwriting any prior one. The
// obligation is a singleton by key.
func (r *ObligationRepo) SetPending(ob models.PendingObligation) error {
	payload, err := json.Marshal(ob)
	if err != nil {
		slog.Error("ObligationRepo SetPending marshal failed", "error", err, "lead_id", ob.LeadID)
		return err
	}
	if err := r.kv.Set(keyPendingObligation, string(payload)); err != nil {
		// A lost write means the gate may not re-arm after a restart;
		// accepted risk, not escalated to the user.
		slog.Error("ObligationRepo SetPending write failed", "error", err, "lead_id", ob.LeadID)
		return err
	}
	slog.Debug("ObligationRepo SetPending", "lead_id", ob.LeadID, "phone", ob.PhoneNumber)
	return nil
}

// GetPending returns the outstanding obligation, or nil when absent or
// unreadable.
func (r *ObligationRepo) GetPending() *models.PendingObligation {
	raw, ok, err := r.kv.Get(keyPendingObligation)
	if err != nil {
		slog.Error("ObligationRepo GetPending read failed, treating as absent", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var ob models.PendingObligation
	if err := json.Unmarshal([]byte(raw), &ob); err != nil {
		slog.Warn("ObligationRepo GetPending corrupt record, treating as absent", "error", err)
		return nil
	}
	return &ob
}

// ClearPending removes the obligation. Clearing when absent is a no-op.
func (r *ObligationRepo) ClearPending() {
	if err := r.kv.Delete(keyPendingObligation); err != nil {
		slog.Error("ObligationRepo ClearPending failed", "error", err)
		return
	}
	slog.Debug("ObligationRepo ClearPending")
}

// SetActiveCallNumber records which number to correlate on the next
// foreground transition. Separate from the obligation: the marker is
// consumed by exactly one correlation attempt, the obligation survives
// until feedback is recorded.
func (r *ObligationRepo) SetActiveCallNumber(number string) error {
	if err := r.kv.Set(keyActiveCallNumber, number); err != nil {
		slog.Error("ObligationRepo SetActiveCallNumber failed", "error", err, "number", number)
		return err
	}
	return nil
}

// ActiveCallNumber returns the marker, or "" when absent or unreadable.
func (r *ObligationRepo) ActiveCallNumber() string {
	raw, ok, err := r.kv.Get(keyActiveCallNumber)
	if err != nil {
		slog.Error("ObligationRepo ActiveCallNumber read failed, treating as absent", "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	return raw
}

// ClearActiveCallNumber removes the marker. Idempotent.
func (r *ObligationRepo) ClearActiveCallNumber() {
	if err := r.kv.Delete(keyActiveCallNumber); err != nil {
		slog.Error("ObligationRepo ClearActiveCallNumber failed", "error", err)
	}
}
