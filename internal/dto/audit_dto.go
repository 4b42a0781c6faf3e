package dto

import (
	"time"

	"github.com/arkan-dev/bugtrace-api/internal/models"
)

// PaginationMeta captures pagination metadata for list responses.
type PaginationMeta struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// AuditLogRecordRequest is the service-to-service ingestion payload. Actor
// identity and request provenance are filled in by the HTTP layer, not the
// caller.
type AuditLogRecordRequest struct {
	Action       string                 `json:"action" validate:"required,min=1,max=64"`
	Description  string                 `json:"description" validate:"required,min=1"`
	Details      map[string]interface{} `json:"details"`
	ResourceType string                 `json:"resource_type" validate:"omitempty,max=64"`
	ResourceID   string                 `json:"resource_id" validate:"omitempty,max=64"`
	Severity     string                 `json:"severity" validate:"omitempty,oneof=low medium high critical"`
	Status       string                 `json:"status" validate:"omitempty,oneof=success failure pending"`
}

// AuditLogResponse serializes one audit entry for API clients.
type AuditLogResponse struct {
	ID           uint                   `json:"id"`
	ActorID      uint                   `json:"actor_id"`
	ActorName    string                 `json:"actor_name"`
	Action       string                 `json:"action"`
	Description  string                 `json:"description"`
	Details      map[string]interface{} `json:"details,omitempty"`
	ResourceType string                 `json:"resource_type,omitempty"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	Severity     string                 `json:"severity"`
	Status       string                 `json:"status"`
	IPAddress    string                 `json:"ip_address,omitempty"`
	UserAgent    string                 `json:"user_agent,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// NewAuditLogResponse converts a model into its API representation.
func NewAuditLogResponse(entry models.AuditLogEntry) AuditLogResponse {
	return AuditLogResponse{
		ID:           entry.ID,
		ActorID:      entry.ActorID,
		ActorName:    entry.ActorName,
		Action:       entry.Action,
		Description:  entry.Description,
		Details:      map[string]interface{}(entry.Details),
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Severity:     entry.Severity,
		Status:       entry.Status,
		IPAddress:    entry.IPAddress,
		UserAgent:    entry.UserAgent,
		CreatedAt:    entry.CreatedAt,
	}
}

// AuditLogListRequest defines the query filters for listing audit entries.
// StartDate and EndDate are calendar days (YYYY-MM-DD), inclusive on both
// ends.
type AuditLogListRequest struct {
	Page      int
	Limit     int
	Action    string
	Severity  string
	Status    string
	ActorID   uint
	StartDate string
	EndDate   string
	Search    string
}

// AuditLogListResponse wraps a paginated audit log page.
type AuditLogListResponse struct {
	Logs       []AuditLogResponse `json:"logs"`
	Pagination PaginationMeta     `json:"pagination"`
	CacheHit   bool               `json:"-"`
}

// AuditActionCount is one action tally within a daily stats bucket.
type AuditActionCount struct {
	Action string `json:"action"`
	Count  int64  `json:"count"`
}

// AuditLogDayStats is one calendar-day bucket of audit activity.
type AuditLogDayStats struct {
	Date       string             `json:"date"`
	TotalCount int64              `json:"total_count"`
	Actions    []AuditActionCount `json:"actions"`
}

// AuditLogStatsResponse carries the trailing-window daily statistics.
type AuditLogStatsResponse struct {
	Days     int                `json:"days"`
	Buckets  []AuditLogDayStats `json:"buckets"`
	CacheHit bool               `json:"-"`
}

// AuditLogExportRequest selects and bounds a CSV export. The filter fields
// mirror AuditLogListRequest; pagination does not apply.
type AuditLogExportRequest struct {
	Format    string
	Limit     int
	Action    string
	Severity  string
	Status    string
	ActorID   uint
	StartDate string
	EndDate   string
	Search    string
}

// AuditLogExport is a rendered CSV document plus the counts callers need to
// detect truncation: TotalCount is the true filtered count, ExportedCount the
// number of rows actually serialized.
type AuditLogExport struct {
	FileName      string
	Content       []byte
	TotalCount    int64
	ExportedCount int64
}

// AuditLogCleanupResponse reports the outcome of a retention purge.
type AuditLogCleanupResponse struct {
	DeletedCount int64 `json:"deleted_count"`
}
