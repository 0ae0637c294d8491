package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-registrar-api/internal/models"
	"github.com/noah-isme/sis-registrar-api/internal/service"
	"github.com/noah-isme/sis-registrar-api/pkg/response"
)

type scheduleRepoStub struct {
	blocks []models.ScheduleBlock
}

func (s *scheduleRepoStub) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleBlock, int, error) {
	return s.blocks, len(s.blocks), nil
}

func (s *scheduleRepoStub) FindByID(ctx context.Context, id string) (*models.ScheduleBlock, error) {
	for i := range s.blocks {
		if s.blocks[i].ID == id {
			return &s.blocks[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *scheduleRepoStub) FindOverlapping(ctx context.Context, candidate models.ScheduleBlock, excludeID string) ([]models.ScheduleBlock, error) {
	var overlapping []models.ScheduleBlock
	for _, b := range s.blocks {
		if b.ID == excludeID || b.DayOfWeek != candidate.DayOfWeek {
			continue
		}
		if b.Room != candidate.Room && b.TeacherID != candidate.TeacherID {
			continue
		}
		if models.Overlaps(candidate.StartMinute, candidate.EndMinute, b.StartMinute, b.EndMinute) {
			overlapping = append(overlapping, b)
		}
	}
	return overlapping, nil
}

func (s *scheduleRepoStub) Create(ctx context.Context, block *models.ScheduleBlock) ([]models.ScheduleBlock, error) {
	block.ID = "created"
	s.blocks = append(s.blocks, *block)
	return nil, nil
}

func (s *scheduleRepoStub) Update(ctx context.Context, block *models.ScheduleBlock) ([]models.ScheduleBlock, error) {
	return nil, nil
}

func (s *scheduleRepoStub) Cancel(ctx context.Context, id string) error {
	return nil
}

func newScheduleHandlerTest(stub *scheduleRepoStub) *ScheduleHandler {
	svc := service.NewScheduleService(stub, nil, validator.New(), zap.NewNop())
	return NewScheduleHandler(svc)
}

func scheduleBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	payload := map[string]interface{}{
		"subject_id":   "sub1",
		"section":      "A",
		"teacher_id":   "t1",
		"room":         "R101",
		"day_of_week":  1,
		"start_minute": 540,
		"end_minute":   660,
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return bytes.NewBuffer(raw)
}

func TestScheduleHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newScheduleHandlerTest(&scheduleRepoStub{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/schedules", scheduleBody(t))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
}

func TestScheduleHandlerCreateConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &scheduleRepoStub{blocks: []models.ScheduleBlock{
		{ID: "b1", TeacherID: "t9", Room: "R101", DayOfWeek: 1, StartMinute: 600, EndMinute: 720, IsRecurring: true, Status: models.ScheduleBlockStatusActive},
	}}
	handler := newScheduleHandlerTest(stub)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/schedules", scheduleBody(t))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	require.NotNil(t, envelope.Conflicts)

	conflicts, ok := envelope.Conflicts.([]interface{})
	require.True(t, ok)
	require.Len(t, conflicts, 1)
	entry := conflicts[0].(map[string]interface{})
	assert.Equal(t, "b1", entry["schedule_id"])
	assert.Equal(t, models.ConflictDimensionRoom, entry["dimension"])
}

func TestScheduleHandlerCreateInvalidPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newScheduleHandlerTest(&scheduleRepoStub{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/schedules", bytes.NewBufferString(`{"room":"R101"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScheduleHandlerCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &scheduleRepoStub{blocks: []models.ScheduleBlock{
		{ID: "b1", TeacherID: "t1", Room: "R303", DayOfWeek: 1, StartMinute: 600, EndMinute: 720, IsRecurring: true, Status: models.ScheduleBlockStatusActive},
	}}
	handler := newScheduleHandlerTest(stub)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/schedules/check", scheduleBody(t))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Check(c)

	require.Equal(t, http.StatusOK, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	data := envelope.Data.(map[string]interface{})
	assert.Equal(t, true, data["has_conflicts"])
	assert.Len(t, stub.blocks, 1)
}
