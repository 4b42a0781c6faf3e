package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/arkan-dev/bugtrace-api/internal/dto"
	"github.com/arkan-dev/bugtrace-api/internal/models"
	"github.com/arkan-dev/bugtrace-api/internal/observability"
	"github.com/arkan-dev/bugtrace-api/internal/repository"
)

const (
	// DefaultRetentionDays is the purge threshold used when a cleanup call
	// does not specify one.
	DefaultRetentionDays = 15
	// DefaultExportLimit bounds an export when the caller does not ask for
	// a specific row count.
	DefaultExportLimit = 10000
	// ExportHardCap is the absolute upper bound on rows serialized by one
	// export, regardless of what the caller requested.
	ExportHardCap = 50000

	defaultPageSize = 20
	maxPageSize     = 200
	asyncTimeout    = 5 * time.Second
	anonymousActor  = "anonymous"

	cacheVersionKey = "audit:ver"
)

var (
	// ErrUnsupportedFormat rejects export formats other than CSV.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrInvalidDateRange rejects malformed startDate/endDate values.
	ErrInvalidDateRange = errors.New("invalid date range")
	// ErrInvalidRetention rejects negative retention windows.
	ErrInvalidRetention = errors.New("retention window must not be negative")
)

var exportColumns = []string{
	"id", "actorId", "actorName", "action", "description",
	"resourceType", "resourceId", "severity", "status",
	"ipAddress", "userAgent", "createdAt",
}

// RecordInput captures everything needed to persist one audit entry. Actor
// identity and request provenance come from the HTTP layer; the rest from the
// mutation being audited.
type RecordInput struct {
	ActorID      uint
	ActorName    string
	Action       string
	Description  string
	Details      map[string]interface{}
	ResourceType string
	ResourceID   string
	Severity     string
	Status       string
	IPAddress    string
	UserAgent    string
}

// AuditRecorder is the ingestion interface handed to the CRUD subsystems.
// RecordAsync never surfaces an error: audit logging is best-effort relative
// to the business mutation that triggered it.
type AuditRecorder interface {
	Record(ctx context.Context, input RecordInput) (dto.AuditLogResponse, error)
	RecordAsync(input RecordInput)
}

// AuditService is the full audit log engine: ingestion, filtered queries,
// daily statistics, bounded CSV export and retention cleanup.
type AuditService interface {
	AuditRecorder
	List(ctx context.Context, req dto.AuditLogListRequest) (dto.AuditLogListResponse, error)
	Stats(ctx context.Context, days int) (dto.AuditLogStatsResponse, error)
	Export(ctx context.Context, req dto.AuditLogExportRequest) (dto.AuditLogExport, error)
	Cleanup(ctx context.Context, daysToKeep int) (int64, error)
}

type auditService struct {
	repo     repository.AuditLogRepository
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewAuditService constructs the audit log engine. The cache client is
// optional; a nil client disables response caching.
func NewAuditService(repo repository.AuditLogRepository, cache *redis.Client, cacheTTL time.Duration, logger zerolog.Logger) AuditService {
	if cacheTTL <= 0 {
		cacheTTL = 45 * time.Second
	}
	return &auditService{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger.With().Str("component", "audit_service").Logger(),
		now:      time.Now,
	}
}

func (s *auditService) Record(ctx context.Context, input RecordInput) (dto.AuditLogResponse, error) {
	if strings.TrimSpace(input.Action) == "" {
		return dto.AuditLogResponse{}, fmt.Errorf("action is required")
	}

	severity := strings.ToLower(strings.TrimSpace(input.Severity))
	if severity == "" {
		severity = models.SeverityLow
	}
	if !models.ValidSeverity(severity) {
		return dto.AuditLogResponse{}, fmt.Errorf("unknown severity %q", input.Severity)
	}

	status := strings.ToLower(strings.TrimSpace(input.Status))
	if status == "" {
		status = models.StatusSuccess
	}
	if !models.ValidStatus(status) {
		return dto.AuditLogResponse{}, fmt.Errorf("unknown status %q", input.Status)
	}

	actorName := strings.TrimSpace(input.ActorName)
	if actorName == "" {
		actorName = anonymousActor
	}

	entry := models.AuditLogEntry{
		ActorID:      input.ActorID,
		ActorName:    actorName,
		Action:       strings.TrimSpace(input.Action),
		Description:  strings.TrimSpace(input.Description),
		Details:      sanitizeDetails(input.Details),
		ResourceType: strings.TrimSpace(input.ResourceType),
		ResourceID:   strings.TrimSpace(input.ResourceID),
		Severity:     severity,
		Status:       status,
		IPAddress:    strings.TrimSpace(input.IPAddress),
		UserAgent:    strings.TrimSpace(input.UserAgent),
	}

	if err := s.repo.Append(ctx, &entry); err != nil {
		observability.AuditIngest().WithLabelValues("error").Inc()
		s.logger.Error().Err(err).Str("action", entry.Action).Msg("failed to persist audit entry")
		return dto.AuditLogResponse{}, err
	}

	observability.AuditIngest().WithLabelValues("ok").Inc()
	s.bumpCacheVersion(ctx)
	return dto.NewAuditLogResponse(entry), nil
}

// RecordAsync detaches from the caller's request lifecycle so an audit
// failure can never turn a completed business mutation into a failed
// response. Errors are logged and swallowed.
func (s *auditService) RecordAsync(input RecordInput) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), asyncTimeout)
		defer cancel()

		if _, err := s.Record(ctx, input); err != nil {
			s.logger.Warn().Err(err).Str("action", input.Action).Msg("audit entry dropped")
		}
	}()
}

func (s *auditService) List(ctx context.Context, req dto.AuditLogListRequest) (dto.AuditLogListResponse, error) {
	page := req.Page
	if page <= 0 {
		page = 1
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultPageSize
	} else if limit > maxPageSize {
		limit = maxPageSize
	}

	filter, err := s.buildFilter(req.Action, req.Severity, req.Status, req.ActorID, req.StartDate, req.EndDate, req.Search)
	if err != nil {
		return dto.AuditLogListResponse{}, err
	}
	filter.Page = page
	filter.PageSize = limit

	cacheKey := s.listCacheKey(ctx, filter)
	if cacheKey != "" {
		var cached dto.AuditLogListResponse
		if s.cacheGet(ctx, cacheKey, &cached) {
			cached.CacheHit = true
			return cached, nil
		}
	}

	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.AuditLogListResponse{}, err
	}

	logs := make([]dto.AuditLogResponse, 0, len(entries))
	for _, entry := range entries {
		logs = append(logs, dto.NewAuditLogResponse(entry))
	}

	response := dto.AuditLogListResponse{
		Logs: logs,
		Pagination: dto.PaginationMeta{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: pageCount(total, limit),
		},
	}

	if cacheKey != "" {
		s.cacheSet(ctx, cacheKey, response)
	}

	return response, nil
}

func (s *auditService) Stats(ctx context.Context, days int) (dto.AuditLogStatsResponse, error) {
	if days <= 0 {
		days = 7
	} else if days > 365 {
		days = 365
	}

	cacheKey := ""
	if version, ok := s.cacheVersion(ctx); ok {
		cacheKey = fmt.Sprintf("audit:v%d:stats:%d", version, days)
	}
	var cached dto.AuditLogStatsResponse
	if s.cacheGet(ctx, cacheKey, &cached) {
		cached.CacheHit = true
		return cached, nil
	}

	since := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	entries, _, err := s.repo.List(ctx, repository.AuditLogFilter{Start: &since})
	if err != nil {
		return dto.AuditLogStatsResponse{}, err
	}

	// Bucketing runs here, in one place, so both storage backends share
	// identical day-boundary semantics.
	type bucket struct {
		total   int64
		actions map[string]int64
	}
	buckets := make(map[string]*bucket)
	for _, entry := range entries {
		day := entry.CreatedAt.Format("2006-01-02")
		b, ok := buckets[day]
		if !ok {
			b = &bucket{actions: make(map[string]int64)}
			buckets[day] = b
		}
		b.total++
		b.actions[entry.Action]++
	}

	dates := make([]string, 0, len(buckets))
	for day := range buckets {
		dates = append(dates, day)
	}
	sort.Strings(dates)

	result := make([]dto.AuditLogDayStats, 0, len(dates))
	for _, day := range dates {
		b := buckets[day]
		actions := make([]dto.AuditActionCount, 0, len(b.actions))
		for action, count := range b.actions {
			actions = append(actions, dto.AuditActionCount{Action: action, Count: count})
		}
		sort.Slice(actions, func(i, j int) bool { return actions[i].Action < actions[j].Action })
		result = append(result, dto.AuditLogDayStats{Date: day, TotalCount: b.total, Actions: actions})
	}

	response := dto.AuditLogStatsResponse{Days: days, Buckets: result}
	s.cacheSet(ctx, cacheKey, response)

	return response, nil
}

func (s *auditService) Export(ctx context.Context, req dto.AuditLogExportRequest) (dto.AuditLogExport, error) {
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" {
		format = "csv"
	}
	if format != "csv" {
		return dto.AuditLogExport{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.Format)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultExportLimit
	}
	if limit > ExportHardCap {
		limit = ExportHardCap
	}

	filter, err := s.buildFilter(req.Action, req.Severity, req.Status, req.ActorID, req.StartDate, req.EndDate, req.Search)
	if err != nil {
		return dto.AuditLogExport{}, err
	}
	filter.Limit = limit

	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.AuditLogExport{}, err
	}

	var buf bytes.Buffer
	writeCSVRow(&buf, exportColumns)
	for _, entry := range entries {
		writeCSVRow(&buf, []string{
			fmt.Sprintf("%d", entry.ID),
			fmt.Sprintf("%d", entry.ActorID),
			entry.ActorName,
			entry.Action,
			entry.Description,
			entry.ResourceType,
			entry.ResourceID,
			entry.Severity,
			entry.Status,
			entry.IPAddress,
			entry.UserAgent,
			entry.CreatedAt.Format(time.RFC3339),
		})
	}

	observability.AuditExportedRows().Add(float64(len(entries)))

	return dto.AuditLogExport{
		FileName:      fmt.Sprintf("audit-logs-%s.csv", s.now().Format("2006-01-02")),
		Content:       buf.Bytes(),
		TotalCount:    total,
		ExportedCount: int64(len(entries)),
	}, nil
}

func (s *auditService) Cleanup(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep < 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := s.now().AddDate(0, 0, -daysToKeep)
	deleted, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		s.bumpCacheVersion(ctx)
	}
	observability.AuditPurged().Add(float64(deleted))
	s.logger.Info().
		Int64("deleted", deleted).
		Int("days_to_keep", daysToKeep).
		Time("cutoff", cutoff).
		Msg("retention cleanup completed")

	return deleted, nil
}

func (s *auditService) buildFilter(action, severity, status string, actorID uint, startDate, endDate, search string) (repository.AuditLogFilter, error) {
	filter := repository.AuditLogFilter{
		Action:   strings.TrimSpace(action),
		Severity: strings.ToLower(strings.TrimSpace(severity)),
		Status:   strings.ToLower(strings.TrimSpace(status)),
		Search:   strings.TrimSpace(search),
	}
	if actorID > 0 {
		id := actorID
		filter.ActorID = &id
	}

	if trimmed := strings.TrimSpace(startDate); trimmed != "" {
		day, err := time.ParseInLocation("2006-01-02", trimmed, time.Local)
		if err != nil {
			return repository.AuditLogFilter{}, fmt.Errorf("%w: start date %q", ErrInvalidDateRange, startDate)
		}
		start := day
		filter.Start = &start
	}

	if trimmed := strings.TrimSpace(endDate); trimmed != "" {
		day, err := time.ParseInLocation("2006-01-02", trimmed, time.Local)
		if err != nil {
			return repository.AuditLogFilter{}, fmt.Errorf("%w: end date %q", ErrInvalidDateRange, endDate)
		}
		// Inclusive end of the calendar day: anything strictly before the
		// next midnight matches.
		end := day.AddDate(0, 0, 1).Add(-time.Nanosecond)
		filter.End = &end
	}

	if filter.Start != nil && filter.End != nil && filter.End.Before(*filter.Start) {
		return repository.AuditLogFilter{}, fmt.Errorf("%w: end before start", ErrInvalidDateRange)
	}

	return filter, nil
}

// listCacheKey returns a cache key for unfiltered list pages only; filtered
// queries always hit storage.
func (s *auditService) listCacheKey(ctx context.Context, filter repository.AuditLogFilter) string {
	if s.cache == nil {
		return ""
	}
	if filter.Action != "" || filter.Severity != "" || filter.Status != "" ||
		filter.ActorID != nil || filter.Start != nil || filter.End != nil || filter.Search != "" {
		return ""
	}
	version, ok := s.cacheVersion(ctx)
	if !ok {
		return ""
	}
	return fmt.Sprintf("audit:v%d:list:%d:%d", version, filter.Page, filter.PageSize)
}

// cacheVersion reads the cache namespace generation. Writes bump it, so every
// key minted under an older generation expires unread; a read failure
// disables caching for the request rather than risking a stale response.
func (s *auditService) cacheVersion(ctx context.Context) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	version, err := s.cache.Get(ctx, cacheVersionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, false
	}
	return version, true
}

func (s *auditService) bumpCacheVersion(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Incr(ctx, cacheVersionKey).Err(); err != nil {
		s.logger.Debug().Err(err).Msg("cache invalidation skipped")
	}
}

func (s *auditService) cacheGet(ctx context.Context, key string, out interface{}) bool {
	if s.cache == nil || key == "" {
		return false
	}
	payload, err := s.cache.Get(ctx, key).Result()
	if err != nil || payload == "" {
		return false
	}
	return json.Unmarshal([]byte(payload), out) == nil
}

func (s *auditService) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache == nil || key == "" {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("cache write skipped")
	}
}

// writeCSVRow serializes one row with every field quoted and embedded double
// quotes doubled, per RFC 4180.
func writeCSVRow(buf *bytes.Buffer, fields []string) {
	for i, field := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(field, `"`, `""`))
		buf.WriteByte('"')
	}
	buf.WriteString("\r\n")
}

// sanitizeDetails masks values under keys that look like credentials before
// they reach storage.
func sanitizeDetails(details map[string]interface{}) datatypes.JSONMap {
	if details == nil {
		return datatypes.JSONMap{}
	}

	sanitized := datatypes.JSONMap{}
	for key, value := range details {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "password") || strings.Contains(lower, "token") || strings.Contains(lower, "secret") {
			sanitized[key] = "***"
			continue
		}
		sanitized[key] = value
	}
	return sanitized
}

func pageCount(total int64, limit int) int {
	if limit <= 0 {
		return 1
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
