// Package models defines lead shapes and the boundary normalization for
// the loosely-typed lead payloads the backend and UI shell exchange.
package models

import (
	"log/slog"
	"strconv"
)

// Stage is one step of the lead pipeline.
type Stage struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// AssignedTo identifies the agent a lead is assigned to.
type AssignedTo struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Lead mirrors the backend lead shape.
type Lead struct {
	ID          string     `json:"_id"`
	LeadID      int64      `json:"leadId"`
	Name        string     `json:"name"`
	Phone       string     `json:"phone"`
	Email       string     `json:"email"`
	Source      string     `json:"source"`
	StageID     Stage      `json:"stageId"`
	Status      string     `json:"status"`
	HealthScore int        `json:"healthScore"`
	IsActive    bool       `json:"isActive"`
	AssignedTo  AssignedTo `json:"assignedTo"`
	CreatedAt   string     `json:"createdAt"`
	UpdatedAt   string     `json:"updatedAt"`
}

// LeadMeta is the paging envelope returned with lead listings.
type LeadMeta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// LeadPage is one page of leads.
type LeadPage struct {
	Data []Lead   `json:"data"`
	Meta LeadMeta `json:"meta"`
}

// AssignableUser is a user a lead can be assigned to.
type AssignableUser struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// LeadRef is the canonical flat reference produced at every boundary
// crossing. Upstream payloads carry the lead id under leadId, id or _id,
// the numeric id as a number or a string, and the stage as a string or a
// nested object; NormalizeLead coalesces all of those once so call sites
// never need to.
type LeadRef struct {
	ID        string
	NumericID int64 // 0 when absent or unparseable
	StageID   string
	Name      string
}

// NormalizeLead produces a canonical LeadRef from a loosely-typed lead payload.
func NormalizeLead(raw map[string]any) LeadRef {
	var ref LeadRef

	ref.ID = firstString(raw, "_id", "id", "leadId")
	if ref.ID == "" {
		ref.ID = "unknown"
	}

	ref.Name = firstString(raw, "name", "leadName")
	if ref.Name == "" {
		ref.Name = "Unknown Lead"
	}

	ref.NumericID = coerceInt64(pick(raw, "leadId", "id"))
	ref.StageID = coerceStageID(raw["stageId"])

	slog.Debug("NormalizeLead", "id", ref.ID, "numeric_id", ref.NumericID, "stage_id", ref.StageID)
	return ref
}

// pick returns the first non-nil value under the given keys.
func pick(raw map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// firstString returns the first non-empty string value under the given keys.
func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// coerceInt64 flattens a numeric id that may arrive as a JSON number or a
// string. Unparseable values yield 0, which downstream treats as "no
// backend-facing id".
func coerceInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			slog.Warn("NormalizeLead: numeric lead id not parseable", "value", n)
			return 0
		}
		return parsed
	default:
		return 0
	}
}

// coerceStageID flattens a stage that may arrive as a plain id string or
// as a nested stage object with an _id field.
func coerceStageID(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case map[string]any:
		if id, ok := s["_id"].(string); ok {
			return id
		}
		if id, ok := s["id"].(string); ok {
			return id
		}
		return ""
	default:
		return ""
	}
}
