package handler

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/arkan-dev/bugtrace-api/internal/dto"
	"github.com/arkan-dev/bugtrace-api/internal/service"
	"github.com/arkan-dev/bugtrace-api/internal/utils"
)

// AuditLogHandler exposes the audit log endpoints: filtered listing, daily
// statistics, bounded CSV export, retention cleanup and service-to-service
// ingestion.
type AuditLogHandler struct {
	service   service.AuditService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAuditLogHandler constructs the handler.
func NewAuditLogHandler(service service.AuditService, validate *validator.Validate, logger zerolog.Logger) *AuditLogHandler {
	return &AuditLogHandler{
		service:   service,
		validator: validate,
		logger:    logger.With().Str("component", "audit_log_handler").Logger(),
	}
}

// Register attaches the audit log routes to the router group.
func (h *AuditLogHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("", h.create)
	router.Get("/stats", h.stats)
	router.Get("/export", h.export)
	router.Delete("/cleanup", h.cleanup)
}

func (h *AuditLogHandler) list(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	actorID, err := parseQueryInt(c, "userId")
	if err != nil || actorID < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid user id")
	}

	req := dto.AuditLogListRequest{
		Page:      page,
		Limit:     limit,
		Action:    c.Query("action"),
		Severity:  c.Query("severity"),
		Status:    c.Query("status"),
		ActorID:   uint(actorID),
		StartDate: c.Query("startDate"),
		EndDate:   c.Query("endDate"),
		Search:    c.Query("search"),
	}

	response, err := h.service.List(c.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidDateRange) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		h.logger.Error().Err(err).Msg("failed to list audit logs")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list audit logs")
	}

	setCacheHitHeader(c, response.CacheHit)
	return utils.SendSuccess(c, "audit logs", response)
}

func (h *AuditLogHandler) create(c *fiber.Ctx) error {
	var payload dto.AuditLogRecordRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	input := service.RecordInput{
		ActorID:      userIDFromContext(c),
		ActorName:    userNameFromContext(c),
		Action:       payload.Action,
		Description:  payload.Description,
		Details:      payload.Details,
		ResourceType: payload.ResourceType,
		ResourceID:   payload.ResourceID,
		Severity:     payload.Severity,
		Status:       payload.Status,
		IPAddress:    c.IP(),
		UserAgent:    c.Get(fiber.HeaderUserAgent),
	}

	entry, err := h.service.Record(c.Context(), input)
	if err != nil {
		if isValidationError(err) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		h.logger.Error().Err(err).Msg("failed to record audit entry")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to record audit entry")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "audit entry recorded", entry)
}

func (h *AuditLogHandler) stats(c *fiber.Ctx) error {
	days, err := parseQueryInt(c, "days")
	if err != nil || days < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid days")
	}

	response, err := h.service.Stats(c.Context(), days)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to compute audit stats")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to compute audit stats")
	}

	setCacheHitHeader(c, response.CacheHit)
	return utils.SendSuccess(c, "audit stats", response)
}

func (h *AuditLogHandler) export(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil || limit < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	req := dto.AuditLogExportRequest{
		Format:    c.Query("format"),
		Limit:     limit,
		Action:    c.Query("action"),
		Severity:  c.Query("severity"),
		Status:    c.Query("status"),
		StartDate: c.Query("startDate"),
		EndDate:   c.Query("endDate"),
		Search:    c.Query("search"),
	}
	actorID, err := parseQueryInt(c, "userId")
	if err != nil || actorID < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid user id")
	}
	req.ActorID = uint(actorID)

	export, err := h.service.Export(c.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedFormat), errors.Is(err, service.ErrInvalidDateRange):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		h.logger.Error().Err(err).Msg("failed to export audit logs")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to export audit logs")
	}

	c.Set("X-Total-Count", strconv.FormatInt(export.TotalCount, 10))
	c.Set("X-Exported-Count", strconv.FormatInt(export.ExportedCount, 10))
	return utils.SendCSV(c, export.FileName, export.Content)
}

func (h *AuditLogHandler) cleanup(c *fiber.Ctx) error {
	daysToKeep := service.DefaultRetentionDays
	if raw := c.Query("daysToKeep"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid daysToKeep")
		}
		daysToKeep = parsed
	}

	deleted, err := h.service.Cleanup(c.Context(), daysToKeep)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRetention) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		h.logger.Error().Err(err).Msg("retention cleanup failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "retention cleanup failed")
	}

	return utils.SendSuccess(c, "retention cleanup completed", dto.AuditLogCleanupResponse{DeletedCount: deleted})
}

func setCacheHitHeader(c *fiber.Ctx, hit bool) {
	if hit {
		c.Set("X-Cache-Hit", "true")
	} else {
		c.Set("X-Cache-Hit", "false")
	}
}
