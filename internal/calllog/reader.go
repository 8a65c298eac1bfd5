// Package calllog reader implementations.
package calllog

import (
	"context"

	"github.com/fieldcrm/callgate/internal/models"
)

// NopReader is the reader used on platforms without a call-log
// capability. It reports no permission, so correlation degrades to the
// synthetic fallback entry.
type NopReader struct{}

func (NopReader) HasPermission() bool { return false }

func (NopReader) LoadRecent(ctx context.Context, n int) ([]models.CallLogEntry, error) {
	return nil, nil
}

// ReaderFunc adapts a load function (for example a bridge into the
// platform shell) into a Reader with permission always granted.
type ReaderFunc func(ctx context.Context, n int) ([]models.CallLogEntry, error)

func (f ReaderFunc) HasPermission() bool { return true }

func (f ReaderFunc) LoadRecent(ctx context.Context, n int) ([]models.CallLogEntry, error) {
	return f(ctx, n)
}
