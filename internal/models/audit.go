package models

import (
	"time"

	"gorm.io/datatypes"
)

// Severity levels accepted for an audit entry.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Status values accepted for an audit entry.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusPending = "pending"
)

// AuditLogEntry is one immutable record of a significant mutation performed
// somewhere in the platform. Entries are append-only: after creation the only
// permitted operation is an age-based purge.
type AuditLogEntry struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	ActorID      uint              `gorm:"index" json:"actor_id"`
	ActorName    string            `gorm:"size:120;not null" json:"actor_name"`
	Action       string            `gorm:"size:64;not null;index" json:"action"`
	Description  string            `gorm:"type:text;not null" json:"description"`
	Details      datatypes.JSONMap `gorm:"type:json" json:"details"`
	ResourceType string            `gorm:"size:64" json:"resource_type"`
	ResourceID   string            `gorm:"size:64" json:"resource_id"`
	Severity     string            `gorm:"size:16;not null;default:low" json:"severity"`
	Status       string            `gorm:"size:16;not null;default:success" json:"status"`
	IPAddress    string            `gorm:"size:64" json:"ip_address"`
	UserAgent    string            `gorm:"size:256" json:"user_agent"`
	CreatedAt    time.Time         `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// ValidSeverity reports whether s is one of the known severity levels.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ValidStatus reports whether s is one of the known status values.
func ValidStatus(s string) bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusPending:
		return true
	}
	return false
}
