package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/arkan-dev/bugtrace-api/internal/models"
)

// likeEscaper neutralizes LIKE metacharacters so Search stays a literal
// substring match, exactly like AuditLogFilter.Matches.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type gormAuditLogRepository struct {
	db *gorm.DB
}

// NewGormAuditLogRepository constructs the durable audit log store backed by
// a relational database.
func NewGormAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &gormAuditLogRepository{db: db}
}

func (r *gormAuditLogRepository) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *gormAuditLogRepository) List(ctx context.Context, filter AuditLogFilter) ([]models.AuditLogEntry, int64, error) {
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.AuditLogEntry{}), filter)

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	} else if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var entries []models.AuditLogEntry
	if err := query.Order("created_at DESC").Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// applyFilter mirrors AuditLogFilter.Matches clause for clause; keep the two
// in sync when adding filters.
func (r *gormAuditLogRepository) applyFilter(query *gorm.DB, filter AuditLogFilter) *gorm.DB {
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ActorID != nil {
		query = query.Where("actor_id = ?", *filter.ActorID)
	}
	if filter.Start != nil {
		query = query.Where("created_at >= ?", *filter.Start)
	}
	if filter.End != nil {
		query = query.Where("created_at <= ?", *filter.End)
	}
	if filter.Search != "" {
		needle := "%" + likeEscaper.Replace(strings.ToLower(filter.Search)) + "%"
		query = query.Where(
			`LOWER(description) LIKE ? ESCAPE '\' OR LOWER(actor_name) LIKE ? ESCAPE '\' OR LOWER(action) LIKE ? ESCAPE '\'`,
			needle, needle, needle,
		)
	}
	return query
}

func (r *gormAuditLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.AuditLogEntry{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *gormAuditLogRepository) Reset(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&models.AuditLogEntry{}).Error
}
