// Package session presenter boundary.
package session

import (
	"log/slog"

	"github.com/fieldcrm/callgate/internal/models"
)

// Decision is the agent's choice when a call is refused because an
// obligation is outstanding.
type Decision int

const (
	// DecisionCancel abandons the new call attempt.
	DecisionCancel Decision = iota
	// DecisionCompleteNow resumes the blocked feedback flow immediately.
	DecisionCompleteNow
)

// Presenter is the boundary to the UI shell. Implementations must make
// ShowFeedbackForm idempotent: showing an already-shown form is a no-op.
type Presenter interface {
	// ShowFeedbackForm surfaces the blocking feedback form with the
	// resolved session state.
	ShowFeedbackForm(state models.CallSessionState)

	// ShowBlocked tells the agent a call is refused while feedback for
	// leadName is owed, and returns their choice.
	ShowBlocked(leadName string) Decision

	// Notice surfaces a transient user-visible message.
	Notice(title, body string)
}

// LogPresenter is the default Presenter: it logs every surface request.
// Headless deployments and tests run with it; the real shell polls
// GET /session instead of being pushed to.
type LogPresenter struct{}

func (LogPresenter) ShowFeedbackForm(state models.CallSessionState) {
	phone := ""
	if state.Obligation != nil {
		phone = state.Obligation.PhoneNumber
	}
	slog.Info("Presenter: feedback form required", "phone", phone, "feedback_required", state.FeedbackRequired)
}

func (LogPresenter) ShowBlocked(leadName string) Decision {
	slog.Info("Presenter: call blocked by pending feedback", "lead_name", leadName)
	return DecisionCancel
}

func (LogPresenter) Notice(title, body string) {
	slog.Info("Presenter: notice", "title", title, "body", body)
}
