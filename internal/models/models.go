// Package models defines the core data structures for callgate.
//
// It includes the pending feedback obligation, device call log records,
// interaction history entries, and the session state shared across modules.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// CallType classifies a device call log record.
type CallType string

const (
	// CallTypeIncoming marks a call received by the device.
	CallTypeIncoming CallType = "INCOMING"
	// CallTypeOutgoing marks a call placed from the device.
	CallTypeOutgoing CallType = "OUTGOING"
	// CallTypeMissed marks a call that was not answered.
	CallTypeMissed CallType = "MISSED"
	// CallTypeUnknown is used for unrecognized records and synthetic fallback entries.
	CallTypeUnknown CallType = "UNKNOWN"
)

// ParseCallType maps a raw device call type string to a CallType.
// Unrecognized values map to CallTypeUnknown rather than failing.
func ParseCallType(raw string) CallType {
	switch CallType(strings.ToUpper(strings.TrimSpace(raw))) {
	case CallTypeIncoming:
		return CallTypeIncoming
	case CallTypeOutgoing:
		return CallTypeOutgoing
	case CallTypeMissed:
		return CallTypeMissed
	default:
		return CallTypeUnknown
	}
}

// Validation error variables for better error handling and testability
var (
	ErrEmptyOutcome     = errors.New("outcome cannot be empty")
	ErrEmptyRemarks     = errors.New("remarks cannot be empty")
	ErrMissingPhone     = errors.New("lead has no phone number")
	ErrNoObligation     = errors.New("no pending feedback obligation")
	ErrNoCallLog        = errors.New("no call log entry resolved")
	ErrObligationExists = errors.New("a feedback obligation is already pending")
)

// PendingObligation is the single outstanding feedback debt. It is created
// when a call is initiated and destroyed only when feedback is recorded.
// At most one instance exists at any time; it is serialized into the
// durable key-value map so a killed-and-relaunched process re-arms the gate.
type PendingObligation struct {
	LeadID        string    `json:"lead_id"`
	LeadName      string    `json:"lead_name"`
	PhoneNumber   string    `json:"phone_number"`
	NumericLeadID int64     `json:"numeric_lead_id,omitempty"` // backend-facing id, 0 when absent
	StageID       string    `json:"stage_id,omitempty"`        // last known pipeline stage
	CreatedAt     time.Time `json:"created_at"`
}

// CallLogEntry is a normalized view of one device call record. Entries are
// read-only snapshots fetched on demand; they are never persisted beyond
// the current session's use.
type CallLogEntry struct {
	PhoneNumber     string    `json:"phone_number"` // raw, may include formatting
	Type            CallType  `json:"type"`
	DurationSeconds int       `json:"duration_seconds"`
	Timestamp       time.Time `json:"timestamp"`
	DateTime        string    `json:"date_time,omitempty"` // ISO datetime as reported by the device
}

// FormatDuration renders the call duration as "1m 5s" for display.
func (e CallLogEntry) FormatDuration() string {
	m := e.DurationSeconds / 60
	s := e.DurationSeconds % 60
	return fmt.Sprintf("%dm %ds", m, s)
}

// StartedAt derives the call start timestamp for backend submission,
// preferring the device-reported ISO datetime, then the epoch timestamp,
// then the provided fallback.
func (e CallLogEntry) StartedAt(fallback time.Time) string {
	if e.DateTime != "" {
		return e.DateTime
	}
	if !e.Timestamp.IsZero() {
		return e.Timestamp.UTC().Format(time.RFC3339)
	}
	return fallback.UTC().Format(time.RFC3339)
}

// SyntheticCallLog builds the fallback entry substituted when no real log
// record can be correlated, so the feedback form always has data to show.
func SyntheticCallLog(ob PendingObligation) CallLogEntry {
	return CallLogEntry{
		PhoneNumber: ob.PhoneNumber,
		Type:        CallTypeUnknown,
		Timestamp:   ob.CreatedAt,
		DateTime:    ob.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// CallSessionState is the controller's view derived from the durable
// obligation plus the most recently correlated call log entry.
// FeedbackRequired is true iff an obligation exists and a log entry
// (possibly synthetic) has been resolved.
type CallSessionState struct {
	Obligation       *PendingObligation `json:"obligation,omitempty"`
	CallLog          *CallLogEntry      `json:"call_log,omitempty"`
	FeedbackRequired bool               `json:"feedback_required"`
	Submitting       bool               `json:"submitting"`
}

// InteractionType classifies a lead contact event.
type InteractionType string

const (
	InteractionCall     InteractionType = "CALL"
	InteractionWhatsApp InteractionType = "WHATSAPP"
	InteractionEmail    InteractionType = "EMAIL"
	InteractionMeeting  InteractionType = "MEETING"
)

// Interaction is an append-only history record of a lead contact. Records
// are never mutated after creation.
type Interaction struct {
	ID              string          `json:"id"`
	LeadID          string          `json:"lead_id"`
	LeadName        string          `json:"lead_name"`
	Type            InteractionType `json:"type"`
	DurationSeconds int             `json:"duration_seconds,omitempty"`
	Status          string          `json:"status,omitempty"` // e.g. "Connected | OUTGOING"
	Remarks         string          `json:"remarks,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
	Date            string          `json:"date"` // ISO string of when the record was created
}

// FeedbackSubmission carries the agent's form input for a completed call.
type FeedbackSubmission struct {
	Outcome string `json:"outcome"`
	Remarks string `json:"remarks"`
	StageID string `json:"stage_id,omitempty"`
}

// Validate checks that the required feedback fields are non-empty after trimming.
func (f *FeedbackSubmission) Validate() error {
	if strings.TrimSpace(f.Outcome) == "" {
		return ErrEmptyOutcome
	}
	if strings.TrimSpace(f.Remarks) == "" {
		return ErrEmptyRemarks
	}
	return nil
}

// ScheduleReminder is an out-of-band follow-up reminder pushed by the
// backend over the realtime channel.
type ScheduleReminder struct {
	LeadID  int64  `json:"leadId"`
	Message string `json:"message"`
}

// Body renders the reminder text, falling back to a generic message when
// the backend sent none.
func (r ScheduleReminder) Body() string {
	if r.Message != "" {
		return r.Message
	}
	return fmt.Sprintf("Upcoming follow-up for Lead #%d", r.LeadID)
}
