package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arkan-dev/bugtrace-api/internal/models"
)

type memoryAuditLogRepository struct {
	mu      sync.RWMutex
	entries []models.AuditLogEntry
	nextID  uint
}

// NewMemoryAuditLogRepository constructs the ephemeral in-process audit log
// store. Entries are lost on restart; all filtering and sorting happens in
// application code via the shared filter predicate.
func NewMemoryAuditLogRepository() AuditLogRepository {
	return &memoryAuditLogRepository{nextID: 1}
}

func (r *memoryAuditLogRepository) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ID == 0 {
		entry.ID = r.nextID
	}
	if entry.ID >= r.nextID {
		r.nextID = entry.ID + 1
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = entry.CreatedAt
	}

	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memoryAuditLogRepository) List(ctx context.Context, filter AuditLogFilter) ([]models.AuditLogEntry, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]models.AuditLogEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		if filter.Matches(entry) {
			matched = append(matched, entry)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		offset := (page - 1) * filter.PageSize
		if offset >= len(matched) {
			return []models.AuditLogEntry{}, total, nil
		}
		end := offset + filter.PageSize
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[offset:end]
	} else if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	return append([]models.AuditLogEntry(nil), matched...), total, nil
}

func (r *memoryAuditLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.entries[:0]
	var deleted int64
	for _, entry := range r.entries {
		if entry.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, entry)
	}
	// Zero the compacted tail so purged entries are not kept alive by the
	// backing array.
	tail := r.entries[len(kept):]
	for i := range tail {
		tail[i] = models.AuditLogEntry{}
	}
	r.entries = kept
	return deleted, nil
}

func (r *memoryAuditLogRepository) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = nil
	r.nextID = 1
	return nil
}
