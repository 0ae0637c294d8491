package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sis-registrar-api/internal/service"
	appErrors "github.com/noah-isme/sis-registrar-api/pkg/errors"
	"github.com/noah-isme/sis-registrar-api/pkg/response"
)

// CalendarHandler exposes academic calendar endpoints.
type CalendarHandler struct {
	calendar *service.CalendarService
}

// NewCalendarHandler constructs CalendarHandler.
func NewCalendarHandler(calendar *service.CalendarService) *CalendarHandler {
	return &CalendarHandler{calendar: calendar}
}

// Current godoc
// @Summary Current calendar state
// @Description Returns the current academic year, ongoing semester and enrollment window flags.
// @Tags Calendar
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /calendar/current [get]
func (h *CalendarHandler) Current(c *gin.Context) {
	snapshot, err := h.calendar.Current(c.Request.Context(), time.Now().UTC())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot, nil)
}

// CreateAcademicYear godoc
// @Summary Create academic year
// @Tags Calendar
// @Accept json
// @Produce json
// @Param payload body service.CreateAcademicYearRequest true "Academic year payload"
// @Success 201 {object} response.Envelope
// @Router /academic-years [post]
func (h *CalendarHandler) CreateAcademicYear(c *gin.Context) {
	var req service.CreateAcademicYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	year, err := h.calendar.CreateAcademicYear(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, year)
}

// SetCurrentYear godoc
// @Summary Mark an academic year as current
// @Tags Calendar
// @Produce json
// @Param id path string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Router /academic-years/{id}/current [put]
func (h *CalendarHandler) SetCurrentYear(c *gin.Context) {
	year, err := h.calendar.SetCurrentYear(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}

// CreateSemester godoc
// @Summary Create semester
// @Tags Calendar
// @Accept json
// @Produce json
// @Param id path string true "Academic year ID"
// @Param payload body service.CreateSemesterRequest true "Semester payload"
// @Success 201 {object} response.Envelope
// @Router /academic-years/{id}/semesters [post]
func (h *CalendarHandler) CreateSemester(c *gin.Context) {
	var req service.CreateSemesterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	semester, err := h.calendar.CreateSemester(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, semester)
}

// ListSemesters godoc
// @Summary List semesters of an academic year
// @Tags Calendar
// @Produce json
// @Param id path string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Router /academic-years/{id}/semesters [get]
func (h *CalendarHandler) ListSemesters(c *gin.Context) {
	semesters, err := h.calendar.ListSemesters(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, semesters, nil)
}

// UpdateSemesterStatus godoc
// @Summary Update semester status
// @Tags Calendar
// @Accept json
// @Produce json
// @Param id path string true "Semester ID"
// @Param payload body service.UpdateSemesterStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /semesters/{id}/status [put]
func (h *CalendarHandler) UpdateSemesterStatus(c *gin.Context) {
	var req service.UpdateSemesterStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	semester, err := h.calendar.UpdateSemesterStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, semester, nil)
}
