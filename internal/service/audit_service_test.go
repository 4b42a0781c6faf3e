package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/arkan-dev/bugtrace-api/internal/dto"
	"github.com/arkan-dev/bugtrace-api/internal/models"
	"github.com/arkan-dev/bugtrace-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestService(t *testing.T) (AuditService, repository.AuditLogRepository) {
	t.Helper()
	repo := repository.NewMemoryAuditLogRepository()
	svc := NewAuditService(repo, nil, 0, testLogger())
	return svc, repo
}

func seed(t *testing.T, repo repository.AuditLogRepository, entry models.AuditLogEntry) models.AuditLogEntry {
	t.Helper()
	if entry.Severity == "" {
		entry.Severity = models.SeverityLow
	}
	if entry.Status == "" {
		entry.Status = models.StatusSuccess
	}
	if entry.ActorName == "" {
		entry.ActorName = "Alice"
	}
	require.NoError(t, repo.Append(context.Background(), &entry))
	return entry
}

func TestRecordAppliesDefaults(t *testing.T) {
	svc, _ := newTestService(t)

	entry, err := svc.Record(context.Background(), RecordInput{
		ActorID:     7,
		ActorName:   "Alice",
		Action:      "CREATE_BUG",
		Description: "opened a bug",
	})
	require.NoError(t, err)
	require.Equal(t, models.SeverityLow, entry.Severity)
	require.Equal(t, models.StatusSuccess, entry.Status)
	require.Equal(t, "Alice", entry.ActorName)
	require.NotZero(t, entry.ID)
	require.False(t, entry.CreatedAt.IsZero())
}

func TestRecordFallsBackToAnonymousActor(t *testing.T) {
	svc, _ := newTestService(t)

	entry, err := svc.Record(context.Background(), RecordInput{
		Action:      "LOGIN",
		Description: "session opened",
		ActorName:   "   ",
	})
	require.NoError(t, err)
	require.Equal(t, "anonymous", entry.ActorName)
	require.Zero(t, entry.ActorID)
}

func TestRecordRejectsUnknownClassifications(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Record(context.Background(), RecordInput{Action: "X", Description: "d", Severity: "urgent"})
	require.Error(t, err)

	_, err = svc.Record(context.Background(), RecordInput{Action: "X", Description: "d", Status: "maybe"})
	require.Error(t, err)

	_, err = svc.Record(context.Background(), RecordInput{Description: "no action"})
	require.Error(t, err)
}

func TestRecordMasksSensitiveDetails(t *testing.T) {
	svc, _ := newTestService(t)

	entry, err := svc.Record(context.Background(), RecordInput{
		Action:      "CHANGE_PASSWORD",
		Description: "password rotated",
		Details: map[string]interface{}{
			"newPassword": "hunter2",
			"apiToken":    "abc",
			"field":       "status",
		},
	})
	require.NoError(t, err)
	require.Equal(t, "***", entry.Details["newPassword"])
	require.Equal(t, "***", entry.Details["apiToken"])
	require.Equal(t, "status", entry.Details["field"])
}

type failingAuditRepo struct {
	repository.AuditLogRepository

	mu       sync.Mutex
	appended chan struct{}
}

func (f *failingAuditRepo) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appended != nil {
		close(f.appended)
		f.appended = nil
	}
	return errors.New("storage unavailable")
}

func TestRecordAsyncSwallowsStorageFailures(t *testing.T) {
	appended := make(chan struct{})
	repo := &failingAuditRepo{appended: appended}
	svc := NewAuditService(repo, nil, 0, testLogger())

	// Must return immediately and never panic, even though every append
	// fails.
	svc.RecordAsync(RecordInput{Action: "CREATE_USER", Description: "x"})

	select {
	case <-appended:
	case <-time.After(2 * time.Second):
		t.Fatal("async record never reached storage")
	}
}

func TestListPaginatesAndReportsTotals(t *testing.T) {
	svc, repo := newTestService(t)

	base := time.Now().Add(-2 * time.Hour)
	for i := 0; i < 25; i++ {
		seed(t, repo, models.AuditLogEntry{
			Action:      "CREATE_BUG",
			Description: fmt.Sprintf("bug %d", i),
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		})
	}

	response, err := svc.List(context.Background(), dto.AuditLogListRequest{Page: 2, Limit: 10})
	require.NoError(t, err)
	require.Len(t, response.Logs, 10)
	require.Equal(t, "bug 14", response.Logs[0].Description)
	require.Equal(t, "bug 5", response.Logs[9].Description)
	require.Equal(t, 2, response.Pagination.Page)
	require.Equal(t, 10, response.Pagination.Limit)
	require.Equal(t, int64(25), response.Pagination.Total)
	require.Equal(t, 3, response.Pagination.Pages)
}

func TestListDateBoundariesAreInclusive(t *testing.T) {
	svc, repo := newTestService(t)

	lastInstant := time.Date(2024, 1, 15, 23, 59, 59, 999000000, time.Local)
	nextMidnight := time.Date(2024, 1, 16, 0, 0, 0, 0, time.Local)

	inside := seed(t, repo, models.AuditLogEntry{Action: "A", Description: "inside", CreatedAt: lastInstant})
	seed(t, repo, models.AuditLogEntry{Action: "A", Description: "outside", CreatedAt: nextMidnight})

	response, err := svc.List(context.Background(), dto.AuditLogListRequest{
		StartDate: "2024-01-15",
		EndDate:   "2024-01-15",
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), response.Pagination.Total)
	require.Len(t, response.Logs, 1)
	require.Equal(t, inside.ID, response.Logs[0].ID)
}

func TestListRejectsMalformedDates(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.List(context.Background(), dto.AuditLogListRequest{StartDate: "15-01-2024"})
	require.ErrorIs(t, err, ErrInvalidDateRange)

	_, err = svc.List(context.Background(), dto.AuditLogListRequest{StartDate: "2024-01-20", EndDate: "2024-01-10"})
	require.ErrorIs(t, err, ErrInvalidDateRange)
}

func TestListEmptyResultIsSuccess(t *testing.T) {
	svc, _ := newTestService(t)

	response, err := svc.List(context.Background(), dto.AuditLogListRequest{Action: "NOPE"})
	require.NoError(t, err)
	require.Empty(t, response.Logs)
	require.Zero(t, response.Pagination.Total)
	require.Zero(t, response.Pagination.Pages)
}

func TestListUsesCacheForDefaultPages(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := repository.NewMemoryAuditLogRepository()
	svc := NewAuditService(repo, cache, time.Minute, testLogger())

	seed(t, repo, models.AuditLogEntry{Action: "CREATE_BUG", Description: "bug"})

	first, err := svc.List(context.Background(), dto.AuditLogListRequest{})
	require.NoError(t, err)
	require.False(t, first.CacheHit)

	second, err := svc.List(context.Background(), dto.AuditLogListRequest{})
	require.NoError(t, err)
	require.True(t, second.CacheHit)
	require.Equal(t, first.Pagination, second.Pagination)

	// Filtered queries bypass the cache entirely.
	filtered, err := svc.List(context.Background(), dto.AuditLogListRequest{Action: "CREATE_BUG"})
	require.NoError(t, err)
	require.False(t, filtered.CacheHit)
}

func TestListReflectsWritesDespiteCaching(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := repository.NewMemoryAuditLogRepository()
	svc := NewAuditService(repo, cache, time.Minute, testLogger())

	seed(t, repo, models.AuditLogEntry{Action: "CREATE_BUG", Description: "bug"})

	first, err := svc.List(context.Background(), dto.AuditLogListRequest{})
	require.NoError(t, err)
	require.False(t, first.CacheHit)

	second, err := svc.List(context.Background(), dto.AuditLogListRequest{})
	require.NoError(t, err)
	require.True(t, second.CacheHit)

	// A completed write must be visible to the next read, not masked by a
	// cached page for the remainder of its TTL.
	_, err = svc.Record(context.Background(), RecordInput{Action: "DELETE_BUG", Description: "removed"})
	require.NoError(t, err)

	third, err := svc.List(context.Background(), dto.AuditLogListRequest{})
	require.NoError(t, err)
	require.False(t, third.CacheHit)
	require.Equal(t, int64(2), third.Pagination.Total)
}

func TestCleanupInvalidatesCachedStats(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := repository.NewMemoryAuditLogRepository()
	svc := NewAuditService(repo, cache, time.Minute, testLogger())

	seed(t, repo, models.AuditLogEntry{Action: "A", Description: "recent", CreatedAt: time.Now().Add(-time.Hour)})

	before, err := svc.Stats(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, before.Buckets, 1)

	deleted, err := svc.Cleanup(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	after, err := svc.Stats(context.Background(), 7)
	require.NoError(t, err)
	require.False(t, after.CacheHit)
	require.Empty(t, after.Buckets)
}

func TestStatsBucketsByCalendarDay(t *testing.T) {
	svc, repo := newTestService(t)

	today := time.Now()
	seed(t, repo, models.AuditLogEntry{Action: "A", Description: "one", CreatedAt: today.Add(-time.Hour)})
	seed(t, repo, models.AuditLogEntry{Action: "A", Description: "two", CreatedAt: today.Add(-30 * time.Minute)})
	seed(t, repo, models.AuditLogEntry{Action: "B", Description: "three", CreatedAt: today.Add(-10 * time.Minute)})
	// Outside the one-day window.
	seed(t, repo, models.AuditLogEntry{Action: "A", Description: "old", CreatedAt: today.Add(-48 * time.Hour)})

	response, err := svc.Stats(context.Background(), 1)
	require.NoError(t, err)

	counts := map[string]int64{}
	var total int64
	for _, bucket := range response.Buckets {
		var sum int64
		for _, action := range bucket.Actions {
			counts[action.Action] += action.Count
			sum += action.Count
		}
		require.Equal(t, bucket.TotalCount, sum, "bucket total must equal the sum of its action counts")
		total += bucket.TotalCount
	}

	require.Equal(t, int64(3), total)
	require.Equal(t, int64(2), counts["A"])
	require.Equal(t, int64(1), counts["B"])
}

func TestStatsSortedAscendingByDate(t *testing.T) {
	svc, repo := newTestService(t)

	now := time.Now()
	for day := 0; day < 3; day++ {
		seed(t, repo, models.AuditLogEntry{
			Action:      "A",
			Description: "entry",
			CreatedAt:   now.Add(-time.Duration(day) * 24 * time.Hour),
		})
	}

	response, err := svc.Stats(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, response.Buckets, 3)
	for i := 1; i < len(response.Buckets); i++ {
		require.Less(t, response.Buckets[i-1].Date, response.Buckets[i].Date)
	}
}

func TestExportQuotesAndEscapesFields(t *testing.T) {
	svc, repo := newTestService(t)

	seed(t, repo, models.AuditLogEntry{
		ActorID:     1,
		ActorName:   "Alice",
		Action:      "UPDATE_BUG",
		Description: `He said "hi"`,
	})

	export, err := svc.Export(context.Background(), dto.AuditLogExportRequest{Format: "csv"})
	require.NoError(t, err)
	require.Equal(t, int64(1), export.TotalCount)
	require.Equal(t, int64(1), export.ExportedCount)

	lines := strings.Split(strings.TrimRight(string(export.Content), "\r\n"), "\r\n")
	require.Len(t, lines, 2)
	require.Equal(t, `"id","actorId","actorName","action","description","resourceType","resourceId","severity","status","ipAddress","userAgent","createdAt"`, lines[0])
	require.Contains(t, lines[1], `"He said ""hi"""`)

	// Parsing the escaped field back yields the original string.
	field := `"He said ""hi"""`
	unquoted := strings.ReplaceAll(field[1:len(field)-1], `""`, `"`)
	require.Equal(t, `He said "hi"`, unquoted)
}

func TestExportTruncationIsDetectable(t *testing.T) {
	svc, repo := newTestService(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		seed(t, repo, models.AuditLogEntry{Action: "A", Description: "row", CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}

	export, err := svc.Export(context.Background(), dto.AuditLogExportRequest{Format: "csv", Limit: 3})
	require.NoError(t, err)
	require.Equal(t, int64(5), export.TotalCount)
	require.Equal(t, int64(3), export.ExportedCount)
	require.Less(t, export.ExportedCount, export.TotalCount)
}

func TestExportEnforcesHardCap(t *testing.T) {
	if testing.Short() {
		t.Skip("seeds more rows than the export hard cap")
	}

	svc, repo := newTestService(t)

	base := time.Now().Add(-24 * time.Hour)
	for i := 0; i < ExportHardCap+1; i++ {
		seed(t, repo, models.AuditLogEntry{Action: "A", Description: "row", CreatedAt: base.Add(time.Duration(i) * time.Millisecond)})
	}

	export, err := svc.Export(context.Background(), dto.AuditLogExportRequest{Format: "csv", Limit: 100000})
	require.NoError(t, err)
	require.Equal(t, int64(ExportHardCap+1), export.TotalCount)
	require.Equal(t, int64(ExportHardCap), export.ExportedCount)
}

func TestExportRejectsUnsupportedFormats(t *testing.T) {
	repo := &failingAuditRepo{}
	svc := NewAuditService(repo, nil, 0, testLogger())

	// The format check runs before any storage read: the failing repo must
	// never be touched.
	_, err := svc.Export(context.Background(), dto.AuditLogExportRequest{Format: "xlsx"})
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExportFileNameCarriesCurrentDate(t *testing.T) {
	svc, _ := newTestService(t)

	export, err := svc.Export(context.Background(), dto.AuditLogExportRequest{Format: "csv"})
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("audit-logs-%s.csv", time.Now().Format("2006-01-02")), export.FileName)
}

func TestCleanupPurgesOldEntriesAndIsIdempotent(t *testing.T) {
	svc, repo := newTestService(t)

	now := time.Now()
	seed(t, repo, models.AuditLogEntry{Action: "A", Description: "old", CreatedAt: now.AddDate(0, 0, -30)})
	seed(t, repo, models.AuditLogEntry{Action: "A", Description: "older", CreatedAt: now.AddDate(0, 0, -16)})
	seed(t, repo, models.AuditLogEntry{Action: "A", Description: "recent", CreatedAt: now.Add(-time.Hour)})

	deleted, err := svc.Cleanup(context.Background(), 15)
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	deleted, err = svc.Cleanup(context.Background(), 15)
	require.NoError(t, err)
	require.Zero(t, deleted)

	_, total, err := repo.List(context.Background(), repository.AuditLogFilter{})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
}

func TestCleanupWithZeroDaysRemovesEverything(t *testing.T) {
	svc, repo := newTestService(t)

	now := time.Now()
	for i := 1; i <= 4; i++ {
		seed(t, repo, models.AuditLogEntry{Action: "A", Description: "entry", CreatedAt: now.Add(-time.Duration(i) * time.Hour)})
	}

	deleted, err := svc.Cleanup(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, int64(4), deleted)

	_, total, err := repo.List(context.Background(), repository.AuditLogFilter{})
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestCleanupRejectsNegativeRetention(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Cleanup(context.Background(), -1)
	require.ErrorIs(t, err, ErrInvalidRetention)
}
