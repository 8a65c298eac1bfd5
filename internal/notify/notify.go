// Package notify surfaces lead schedule reminders as local notifications.
package notify

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/fieldcrm/callgate/internal/models"
	"github.com/fieldcrm/callgate/internal/realtime"
)

// Notifier is the opaque local notification dispatcher.
type Notifier interface {
	DisplayNotification(ctx context.Context, title, body string, data map[string]string) error
}

// NotifierFunc adapts a function (for example a bridge into the platform
// notification tray) into a Notifier.
type NotifierFunc func(ctx context.Context, title, body string, data map[string]string) error

func (f NotifierFunc) DisplayNotification(ctx context.Context, title, body string, data map[string]string) error {
	return f(ctx, title, body, data)
}

// LogNotifier is the default Notifier for headless runs: it logs.
type LogNotifier struct{}

func (LogNotifier) DisplayNotification(ctx context.Context, title, body string, data map[string]string) error {
	slog.Info("notification", "title", title, "body", body)
	return nil
}

// ReminderTitle is the fixed title for schedule reminder notifications.
const ReminderTitle = "Lead Schedule Reminder"

// Bridge owns a realtime subscription and fans each reminder out to an
// in-app alert callback plus the system notifier.
type Bridge struct {
	sub      *realtime.Subscription
	notifier Notifier
	alert    func(title, body string)
	done     chan struct{}
}

// NewBridge starts consuming reminders from conn. The alert callback may
// be nil for headless runs.
func NewBridge(conn *realtime.Conn, notifier Notifier, alert func(title, body string)) *Bridge {
	b := &Bridge{
		sub:      conn.Subscribe(),
		notifier: notifier,
		alert:    alert,
		done:     make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Bridge) run() {
	defer close(b.done)
	for reminder := range b.sub.Reminders() {
		b.handle(reminder)
	}
}

func (b *Bridge) handle(reminder models.ScheduleReminder) {
	body := reminder.Body()

	if b.alert != nil {
		b.alert(ReminderTitle, body)
	}

	data := map[string]string{"leadId": strconv.FormatInt(reminder.LeadID, 10)}
	if err := b.notifier.DisplayNotification(context.Background(), ReminderTitle, body, data); err != nil {
		slog.Error("notify: failed to display notification", "error", err, "lead_id", reminder.LeadID)
	}
}

// Close tears the bridge down, releasing its subscription.
func (b *Bridge) Close() {
	b.sub.Unsubscribe()
	<-b.done
}
