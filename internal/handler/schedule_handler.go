package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sis-registrar-api/internal/models"
	"github.com/noah-isme/sis-registrar-api/internal/service"
	appErrors "github.com/noah-isme/sis-registrar-api/pkg/errors"
	"github.com/noah-isme/sis-registrar-api/pkg/response"
)

// ScheduleHandler exposes schedule block endpoints.
type ScheduleHandler struct {
	schedules *service.ScheduleService
}

// NewScheduleHandler constructs ScheduleHandler.
func NewScheduleHandler(schedules *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules}
}

// List godoc
// @Summary List schedule blocks
// @Tags Schedules
// @Produce json
// @Param teacherId query string false "Filter by teacher"
// @Param room query string false "Filter by room"
// @Param day query int false "Filter by day of week (0=Sunday)"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /schedules [get]
func (h *ScheduleHandler) List(c *gin.Context) {
	var filter models.ScheduleFilter
	filter.TeacherID = c.Query("teacherId")
	filter.Room = c.Query("room")
	filter.Status = models.ScheduleBlockStatus(strings.ToUpper(c.Query("status")))
	if dayRaw := c.Query("day"); dayRaw != "" {
		if day, err := strconv.Atoi(dayRaw); err == nil {
			filter.DayOfWeek = &day
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	blocks, total, err := h.schedules.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, blocks, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total})
}

// Get godoc
// @Summary Get schedule block
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule block ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id} [get]
func (h *ScheduleHandler) Get(c *gin.Context) {
	block, err := h.schedules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, block, nil)
}

// Create godoc
// @Summary Create schedule block
// @Description Rejects the block when it overlaps an active block in the same room or for the same teacher.
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body service.ScheduleBlockRequest true "Schedule block payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope "Validation failure or conflicting blocks"
// @Router /schedules [post]
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req service.ScheduleBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	block, err := h.schedules.Create(c.Request.Context(), req)
	if err != nil {
		respondScheduleError(c, err)
		return
	}
	response.Created(c, block)
}

// Check godoc
// @Summary Dry-run conflict detection
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body service.ScheduleBlockRequest true "Candidate block"
// @Success 200 {object} response.Envelope
// @Router /schedules/check [post]
func (h *ScheduleHandler) Check(c *gin.Context) {
	var req service.ScheduleBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	conflicts, err := h.schedules.Check(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if conflicts == nil {
		conflicts = []models.ScheduleConflict{}
	}
	response.JSON(c, http.StatusOK, gin.H{"conflicts": conflicts, "has_conflicts": len(conflicts) > 0}, nil)
}

// Update godoc
// @Summary Replace schedule block slot
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule block ID"
// @Param payload body service.ScheduleBlockRequest true "Schedule block payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope "Validation failure or conflicting blocks"
// @Router /schedules/{id} [put]
func (h *ScheduleHandler) Update(c *gin.Context) {
	var req service.ScheduleBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	block, err := h.schedules.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondScheduleError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, block, nil)
}

// Cancel godoc
// @Summary Cancel schedule block
// @Tags Schedules
// @Param id path string true "Schedule block ID"
// @Success 204
// @Router /schedules/{id} [delete]
func (h *ScheduleHandler) Cancel(c *gin.Context) {
	if err := h.schedules.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// respondScheduleError surfaces the clashing blocks alongside the error when
// the failure is a detected conflict.
func respondScheduleError(c *gin.Context, err error) {
	var detail *models.ScheduleConflictError
	if errors.As(err, &detail) {
		response.ErrorWithConflicts(c, err, detail.Conflicts)
		return
	}
	response.Error(c, err)
}
