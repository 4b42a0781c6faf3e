package repository

import (
	"context"
	"strings"
	"time"

	"github.com/arkan-dev/bugtrace-api/internal/models"
)

// AuditLogFilter narrows audit log queries. All field filters are exact
// matches; Search is a case-insensitive substring match over description,
// actor name and action. Start and End are inclusive instants, already
// normalized to day boundaries by the caller.
type AuditLogFilter struct {
	Action   string
	Severity string
	Status   string
	ActorID  *uint
	Start    *time.Time
	End      *time.Time
	Search   string

	// Page/PageSize paginate the sorted result; PageSize <= 0 disables
	// pagination. Limit caps the number of returned rows without affecting
	// the reported total and only applies when pagination is disabled.
	Page     int
	PageSize int
	Limit    int
}

// Matches is the canonical filter predicate. The in-memory store evaluates it
// directly; the SQL store translates each clause into an equivalent WHERE
// condition. Both backends must return the same entry set for the same
// filter and data.
func (f AuditLogFilter) Matches(entry models.AuditLogEntry) bool {
	if f.Action != "" && entry.Action != f.Action {
		return false
	}
	if f.Severity != "" && entry.Severity != f.Severity {
		return false
	}
	if f.Status != "" && entry.Status != f.Status {
		return false
	}
	if f.ActorID != nil && entry.ActorID != *f.ActorID {
		return false
	}
	if f.Start != nil && entry.CreatedAt.Before(*f.Start) {
		return false
	}
	if f.End != nil && entry.CreatedAt.After(*f.End) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(entry.Description), needle) &&
			!strings.Contains(strings.ToLower(entry.ActorName), needle) &&
			!strings.Contains(strings.ToLower(entry.Action), needle) {
			return false
		}
	}
	return true
}

// AuditLogRepository abstracts where audit entries live. Implementations are
// interchangeable: an ephemeral in-process store and a durable SQL store
// must produce equivalent results for equivalent inputs.
type AuditLogRepository interface {
	// Append persists one entry, assigning ID and timestamps when absent.
	Append(ctx context.Context, entry *models.AuditLogEntry) error
	// List returns the filtered entries sorted by created_at descending,
	// paginated per the filter, together with the unpaginated total.
	List(ctx context.Context, filter AuditLogFilter) ([]models.AuditLogEntry, int64, error)
	// DeleteOlderThan removes every entry created strictly before cutoff
	// and reports how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// Reset drops all entries. Meant for tests and explicit teardown.
	Reset(ctx context.Context) error
}
