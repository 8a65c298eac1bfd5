// Package calllog wraps the device call history capability and correlates
// completed calls with the lead the agent intended to dial.
//
// The device log reader is treated as an opaque capability: platforms
// without it, or without the runtime permission, degrade to "no log
// found" rather than an error.
package calllog

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/fieldcrm/callgate/internal/models"
)

// Correlation tuning constants.
const (
	// DefaultRecentCount is how many records to read from the device log.
	// A handful, not one: log writes can lag call termination.
	DefaultRecentCount = 5
	// RecentCallWindow bounds how old a record may be to still count as
	// the just-completed call. Too tight misses slow log writes; too
	// loose correlates a stale call to the same number.
	RecentCallWindow = 2 * time.Minute
	// MatchSuffixDigits is the number of trailing digits compared, which
	// tolerates country-code prefix differences.
	MatchSuffixDigits = 10
)

// Reader is the opaque device call-log capability.
type Reader interface {
	// HasPermission reports whether call history may be read. Denied or
	// absent capability is a normal outcome, not an error.
	HasPermission() bool

	// LoadRecent returns up to n records, most recent first.
	LoadRecent(ctx context.Context, n int) ([]models.CallLogEntry, error)
}

// Correlator finds the device log record for a just-completed call.
type Correlator struct {
	reader Reader
	now    func() time.Time
}

// NewCorrelator creates a Correlator over the given reader.
func NewCorrelator(reader Reader) *Correlator {
	return &Correlator{reader: reader, now: time.Now}
}

// NewCorrelatorWithClock creates a Correlator with an injected clock for tests.
func NewCorrelatorWithClock(reader Reader, now func() time.Time) *Correlator {
	return &Correlator{reader: reader, now: now}
}

// FindRecentCall returns the most recent record matching the target
// number within the recency window, or nil when nothing correlates.
// All failure paths resolve to nil: permission denial, read errors and
// empty logs are expected conditions here.
func (c *Correlator) FindRecentCall(ctx context.Context, targetNumber string) *models.CallLogEntry {
	if !c.reader.HasPermission() {
		slog.Info("Correlator: call log permission not granted")
		return nil
	}

	logs, err := c.reader.LoadRecent(ctx, DefaultRecentCount)
	if err != nil {
		slog.Error("Correlator: failed to read call log", "error", err)
		return nil
	}
	if len(logs) == 0 {
		slog.Debug("Correlator: call log empty")
		return nil
	}

	target := NormalizeNumber(targetNumber)
	now := c.now()

	for _, entry := range logs {
		if now.Sub(entry.Timestamp) >= RecentCallWindow {
			continue
		}
		if !SameNumber(NormalizeNumber(entry.PhoneNumber), target) {
			continue
		}
		matched := entry
		slog.Debug("Correlator: matched call log entry",
			"number", entry.PhoneNumber, "type", entry.Type, "duration_s", entry.DurationSeconds)
		return &matched
	}

	slog.Debug("Correlator: no matching entry within window", "target", target)
	return nil
}

// NormalizeNumber strips every non-digit character from a phone number.
func NormalizeNumber(number string) string {
	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SameNumber compares two already-normalized numbers on their last
// MatchSuffixDigits digits, ignoring country-code prefixes.
func SameNumber(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return suffix(a, MatchSuffixDigits) == suffix(b, MatchSuffixDigits)
}

func suffix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
