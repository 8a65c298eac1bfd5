// Package session implements the call session controller: the state
// machine that gates every new call behind feedback for the last one.
//
// Lifecycle: intent to call -> dialer launch (obligation persisted) ->
// app suspends during the phone call -> on resume the device log is
// correlated after a settling delay -> the feedback form is surfaced ->
// submission records the outcome and clears the obligation. The durable
// store is the single source of truth: focus and foreground events both
// re-derive state from it, so a killed-and-relaunched process re-enters
// the correct state without in-memory continuity.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldcrm/callgate/internal/calllog"
	"github.com/fieldcrm/callgate/internal/dialer"
	"github.com/fieldcrm/callgate/internal/models"
	"github.com/fieldcrm/callgate/internal/store"
)

// Timing constants.
const (
	// SettlingDelay is how long to wait after a foreground transition
	// before trusting the device call log; log writes lag call
	// termination on some devices.
	SettlingDelay = 1500 * time.Millisecond
	// DedupWindow suppresses a re-trigger for a number whose feedback
	// was handled moments ago, guarding against the focus and
	// foreground reconciliation paths both firing for the same call.
	DedupWindow = 10 * time.Second
)

// CallLogSubmitter is the feedback submission gateway boundary.
type CallLogSubmitter interface {
	CreateCallLog(ctx context.Context, req models.CallLogRequest) error
}

// UserSource supplies the authenticated agent, or nil when logged out.
type UserSource interface {
	User() *models.AuthUser
}

// Deps carries the controller's collaborators. Timer, Presenter and
// Clock default when unset.
type Deps struct {
	Obligations *store.ObligationRepo
	History     *store.HistoryRepo
	Correlator  *calllog.Correlator
	Launcher    dialer.Launcher
	Gateway     CallLogSubmitter
	Users       UserSource
	Presenter   Presenter
	Timer       Timer
	Clock       func() time.Time

	// OnFeedbackSuccess is an optional refresh callback invoked after a
	// successful submission (for example to reload a lead list).
	OnFeedbackSuccess func()
}

// Controller orchestrates the call-feedback blocking workflow. All state
// that must survive a process kill lives in the obligation repo; the
// in-memory fields only cache the resolved log entry and form visibility
// for the current process.
type Controller struct {
	deps Deps

	mu              sync.Mutex
	callLog         *models.CallLogEntry
	feedbackVisible bool
	submitting      bool
	lastProcessedNo string    // normalized digits
	lastProcessedAt time.Time // zero when nothing processed yet
}

// NewController creates a Controller from its dependencies.
func NewController(deps Deps) *Controller {
	if deps.Timer == nil {
		deps.Timer = NewSimpleTimer()
	}
	if deps.Presenter == nil {
		deps.Presenter = LogPresenter{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Controller{deps: deps}
}

// HandleCall is the "place call" action. It refuses to dial while an
// obligation is outstanding, persists the new obligation and the
// active-call marker, and launches the dialer. A dialer failure rolls
// both back so the agent is not gated on a call that never happened.
func (c *Controller) HandleCall(ctx context.Context, phoneNumber string, lead map[string]any) error {
	if pending := c.deps.Obligations.GetPending(); pending != nil {
		slog.Info("HandleCall refused: obligation pending", "blocked_by", pending.LeadName)
		if c.deps.Presenter.ShowBlocked(pending.LeadName) == DecisionCompleteNow {
			c.Reconcile(ctx)
		}
		return models.ErrObligationExists
	}

	if phoneNumber == "" {
		c.deps.Presenter.Notice("No Number", "This lead does not have a phone number.")
		return models.ErrMissingPhone
	}

	ref := models.NormalizeLead(lead)
	ob := models.PendingObligation{
		LeadID:        ref.ID,
		LeadName:      ref.Name,
		PhoneNumber:   phoneNumber,
		NumericLeadID: ref.NumericID,
		StageID:       ref.StageID,
		CreatedAt:     c.deps.Clock(),
	}

	if err := c.deps.Obligations.SetPending(ob); err != nil {
		// The gate may not re-arm after a restart; accepted, the call
		// still proceeds.
		slog.Warn("HandleCall: obligation write failed, continuing", "error", err)
	}
	if err := c.deps.Obligations.SetActiveCallNumber(phoneNumber); err != nil {
		slog.Warn("HandleCall: active call marker write failed, continuing", "error", err)
	}

	if err := c.deps.Launcher.OpenDialer(ctx, phoneNumber); err != nil {
		slog.Error("HandleCall: dialer launch failed, rolling back", "error", err, "number", phoneNumber)
		c.deps.Obligations.ClearPending()
		c.deps.Obligations.ClearActiveCallNumber()
		c.deps.Presenter.Notice("Error", "Unable to open dialer")
		return fmt.Errorf("failed to open dialer: %w", err)
	}

	slog.Info("HandleCall: call initiated", "lead", ref.Name, "number", phoneNumber)
	return nil
}

// HandleForeground is invoked when the app returns to the foreground.
// If an active-call marker exists, correlation runs once after the
// settling delay; the marker is cleared regardless of outcome.
func (c *Controller) HandleForeground(ctx context.Context) {
	number := c.deps.Obligations.ActiveCallNumber()
	if number == "" {
		return
	}

	slog.Debug("HandleForeground: scheduling correlation", "number", number, "delay", SettlingDelay)
	if _, err := c.deps.Timer.ScheduleAfter(SettlingDelay, func() {
		// The foreground event outlives its trigger; correlation runs
		// against a fresh context.
		c.checkLastCall(context.Background(), number)
	}); err != nil {
		slog.Error("HandleForeground: failed to schedule correlation", "error", err)
	}
}

// checkLastCall correlates the device log against the tracked number and
// surfaces the feedback form on a match.
func (c *Controller) checkLastCall(ctx context.Context, number string) {
	defer c.deps.Obligations.ClearActiveCallNumber()

	entry := c.deps.Correlator.FindRecentCall(ctx, number)
	if entry == nil {
		// Obligation stays durable; the next focus event re-offers the
		// form with a fallback entry.
		slog.Debug("checkLastCall: no match, obligation remains", "number", number)
		return
	}

	now := c.deps.Clock()
	matched := calllog.NormalizeNumber(entry.PhoneNumber)

	c.mu.Lock()
	if c.lastProcessedNo != "" &&
		calllog.SameNumber(c.lastProcessedNo, matched) &&
		now.Sub(c.lastProcessedAt) < DedupWindow {
		c.mu.Unlock()
		slog.Debug("checkLastCall: duplicate within dedup window, suppressed", "number", matched)
		return
	}
	c.callLog = entry
	c.feedbackVisible = true
	c.mu.Unlock()

	c.deps.Presenter.ShowFeedbackForm(c.Snapshot())
}

// Reconcile re-derives the blocking state purely from the durable store.
// It is the single entry point for screen-focus and launch events: if an
// obligation exists and no form is visible, a log entry is resolved
// (real when correlatable, synthetic otherwise) and the form is shown.
func (c *Controller) Reconcile(ctx context.Context) {
	pending := c.deps.Obligations.GetPending()
	if pending == nil {
		return
	}

	c.mu.Lock()
	if c.feedbackVisible {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	entry := c.deps.Correlator.FindRecentCall(ctx, pending.PhoneNumber)
	if entry == nil {
		fallback := models.SyntheticCallLog(*pending)
		entry = &fallback
		slog.Debug("Reconcile: using synthetic fallback log", "number", pending.PhoneNumber)
	}

	c.mu.Lock()
	c.callLog = entry
	c.feedbackVisible = true
	c.mu.Unlock()

	slog.Info("Reconcile: feedback form required", "lead", pending.LeadName)
	c.deps.Presenter.ShowFeedbackForm(c.Snapshot())
}

// HandleSaveFeedback finalizes the obligation. Backend submission,
// history append and state clearance are independent best-effort steps:
// a gateway failure is surfaced as a notice but never re-blocks the
// agent once a valid form was submitted.
func (c *Controller) HandleSaveFeedback(ctx context.Context, outcome, remarks, stageID string) error {
	pending := c.deps.Obligations.GetPending()
	if pending == nil {
		return models.ErrNoObligation
	}

	c.mu.Lock()
	entry := c.callLog
	c.mu.Unlock()
	if entry == nil {
		return models.ErrNoCallLog
	}

	sub := models.FeedbackSubmission{Outcome: outcome, Remarks: remarks, StageID: stageID}
	if err := sub.Validate(); err != nil {
		// Form stays open, nothing mutated.
		return err
	}

	c.setSubmitting(true)
	defer c.setSubmitting(false)

	now := c.deps.Clock()

	finalStageID := stageID
	if finalStageID == "" {
		finalStageID = pending.StageID
	}

	var user *models.AuthUser
	if c.deps.Users != nil {
		user = c.deps.Users.User()
	}

	if c.deps.Gateway != nil && user != nil && user.UserID != "" && pending.NumericLeadID != 0 {
		req := models.CallLogRequest{
			LeadID:    pending.NumericLeadID,
			UserID:    user.UserID,
			Duration:  entry.DurationSeconds,
			Outcome:   outcome,
			StageID:   finalStageID,
			Remark:    remarks,
			StartedAt: entry.StartedAt(now),
		}
		if err := c.deps.Gateway.CreateCallLog(ctx, req); err != nil {
			slog.Error("HandleSaveFeedback: gateway submission failed, clearing gate anyway", "error", err, "lead_id", pending.NumericLeadID)
			c.deps.Presenter.Notice("Error", "Failed to submit call log")
		} else {
			c.deps.Presenter.Notice("Success", "Call log created successfully.")
		}
	} else {
		slog.Debug("HandleSaveFeedback: no backend id or user, recording locally only", "lead_id", pending.LeadID)
	}

	interaction := models.Interaction{
		ID:              uuid.NewString(),
		LeadID:          pending.LeadID,
		LeadName:        pending.LeadName,
		Type:            models.InteractionCall,
		DurationSeconds: entry.DurationSeconds,
		Status:          outcome + " | " + string(entry.Type),
		Remarks:         remarks,
		Timestamp:       entry.Timestamp,
		Date:            now.UTC().Format(time.RFC3339),
	}
	if err := c.deps.History.AddInteraction(interaction); err != nil {
		slog.Error("HandleSaveFeedback: history append failed", "error", err, "lead_id", pending.LeadID)
	}

	c.deps.Obligations.ClearPending()
	c.deps.Obligations.ClearActiveCallNumber()

	c.mu.Lock()
	c.lastProcessedNo = calllog.NormalizeNumber(pending.PhoneNumber)
	c.lastProcessedAt = now
	c.callLog = nil
	c.feedbackVisible = false
	c.mu.Unlock()

	slog.Info("HandleSaveFeedback: obligation cleared", "lead", pending.LeadName, "outcome", outcome)

	if c.deps.OnFeedbackSuccess != nil {
		c.deps.OnFeedbackSuccess()
	}
	return nil
}

// Snapshot returns the current session state. The obligation is re-read
// from the durable store so every consumer sees the same truth.
func (c *Controller) Snapshot() models.CallSessionState {
	pending := c.deps.Obligations.GetPending()

	c.mu.Lock()
	defer c.mu.Unlock()
	return models.CallSessionState{
		Obligation:       pending,
		CallLog:          c.callLog,
		FeedbackRequired: c.feedbackVisible && pending != nil,
		Submitting:       c.submitting,
	}
}

// Stop cancels any scheduled correlation.
func (c *Controller) Stop() {
	c.deps.Timer.Stop()
}

func (c *Controller) setSubmitting(v bool) {
	c.mu.Lock()
	c.submitting = v
	c.mu.Unlock()
}
