// Package store provides the HistoryRepo for append-only interaction history.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/fieldcrm/callgate/internal/models"
)

const (
	keyGlobalHistory  = "global_history_list"
	leadHistoryPrefix = "interactions_"

	// MaxGlobalHistory caps the global most-recent-first list.
	MaxGlobalHistory = 100
)

// HistoryRepo stores interaction records: an unbounded most-recent-first
// list per lead, plus a global list capped at MaxGlobalHistory entries.
// Reads fail open (empty list); write failures are logged, not escalated.
type HistoryRepo struct {
	kv KV
}

// NewHistoryRepo creates a HistoryRepo over the given KV.
func NewHistoryRepo(kv KV) *HistoryRepo {
	return &HistoryRepo{kv: kv}
}

// AddInteraction prepends the interaction to the lead's history and to
// the capped global list.
func (r *HistoryRepo) AddInteraction(in models.Interaction) error {
	leadKey := leadHistoryPrefix + in.LeadID

	leadList := r.readList(leadKey)
	leadList = append([]models.Interaction{in}, leadList...)
	if err := r.writeList(leadKey, leadList); err != nil {
		slog.Error("HistoryRepo AddInteraction lead list write failed", "error", err, "lead_id", in.LeadID)
		return err
	}

	global := r.readList(keyGlobalHistory)
	global = append([]models.Interaction{in}, global...)
	if len(global) > MaxGlobalHistory {
		global = global[:MaxGlobalHistory]
	}
	if err := r.writeList(keyGlobalHistory, global); err != nil {
		slog.Error("HistoryRepo AddInteraction global list write failed", "error", err, "lead_id", in.LeadID)
		return err
	}

	slog.Debug("HistoryRepo AddInteraction", "lead_id", in.LeadID, "type", in.Type, "status", in.Status)
	return nil
}

// GlobalHistory returns the capped global list, most recent first.
func (r *HistoryRepo) GlobalHistory() []models.Interaction {
	return r.readList(keyGlobalHistory)
}

// LeadHistory returns all interactions recorded for one lead, most recent first.
func (r *HistoryRepo) LeadHistory(leadID string) []models.Interaction {
	return r.readList(leadHistoryPrefix + leadID)
}

func (r *HistoryRepo) readList(key string) []models.Interaction {
	raw, ok, err := r.kv.Get(key)
	if err != nil {
		slog.Error("HistoryRepo read failed, treating as empty", "error", err, "key", key)
		return nil
	}
	if !ok {
		return nil
	}
	var list []models.Interaction
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		slog.Warn("HistoryRepo corrupt list, treating as empty", "error", err, "key", key)
		return nil
	}
	return list
}

func (r *HistoryRepo) writeList(key string, list []models.Interaction) error {
	payload, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to marshal history list %s: %w", key, err)
	}
	return r.kv.Set(key, string(payload))
}
