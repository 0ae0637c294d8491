package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-registrar-api/internal/models"
	appErrors "github.com/noah-isme/sis-registrar-api/pkg/errors"
)

type mockScheduleRepo struct {
	blocks    map[string]*models.ScheduleBlock
	cancelled []string
}

func (m *mockScheduleRepo) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleBlock, int, error) {
	var list []models.ScheduleBlock
	for _, b := range m.blocks {
		list = append(list, *b)
	}
	return list, len(list), nil
}

func (m *mockScheduleRepo) FindByID(ctx context.Context, id string) (*models.ScheduleBlock, error) {
	if b, ok := m.blocks[id]; ok {
		copied := *b
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockScheduleRepo) FindOverlapping(ctx context.Context, candidate models.ScheduleBlock, excludeID string) ([]models.ScheduleBlock, error) {
	var overlapping []models.ScheduleBlock
	for _, b := range m.blocks {
		if b.ID == excludeID || !b.IsRecurring || b.Status != models.ScheduleBlockStatusActive {
			continue
		}
		if b.DayOfWeek != candidate.DayOfWeek {
			continue
		}
		if b.Room != candidate.Room && b.TeacherID != candidate.TeacherID {
			continue
		}
		if models.Overlaps(candidate.StartMinute, candidate.EndMinute, b.StartMinute, b.EndMinute) {
			overlapping = append(overlapping, *b)
		}
	}
	return overlapping, nil
}

func (m *mockScheduleRepo) Create(ctx context.Context, block *models.ScheduleBlock) ([]models.ScheduleBlock, error) {
	if m.blocks == nil {
		m.blocks = make(map[string]*models.ScheduleBlock)
	}
	if block.ID == "" {
		block.ID = "new-block"
	}
	m.blocks[block.ID] = block
	return nil, nil
}

func (m *mockScheduleRepo) Update(ctx context.Context, block *models.ScheduleBlock) ([]models.ScheduleBlock, error) {
	m.blocks[block.ID] = block
	return nil, nil
}

func (m *mockScheduleRepo) Cancel(ctx context.Context, id string) error {
	b, ok := m.blocks[id]
	if !ok {
		return sql.ErrNoRows
	}
	b.Status = models.ScheduleBlockStatusCancelled
	m.cancelled = append(m.cancelled, id)
	return nil
}

func newScheduleService(repo *mockScheduleRepo) *ScheduleService {
	return NewScheduleService(repo, nil, validator.New(), zap.NewNop())
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func blockRequest(room, teacher string, day, start, end int) ScheduleBlockRequest {
	return ScheduleBlockRequest{
		SubjectID:   "sub1",
		Section:     "A",
		TeacherID:   teacher,
		Room:        room,
		DayOfWeek:   intPtr(day),
		StartMinute: intPtr(start),
		EndMinute:   intPtr(end),
	}
}

func conflictsOf(t *testing.T, err error) []models.ScheduleConflict {
	t.Helper()
	var detail *models.ScheduleConflictError
	require.True(t, errors.As(err, &detail), "expected conflict detail, got %v", err)
	return detail.Conflicts
}

func TestScheduleServiceCreate(t *testing.T) {
	repo := &mockScheduleRepo{}
	svc := newScheduleService(repo)

	block, err := svc.Create(context.Background(), blockRequest("R101", "t1", 1, 540, 660))
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleBlockStatusActive, block.Status)
	assert.True(t, block.IsRecurring)
	assert.Len(t, repo.blocks, 1)
}

func TestScheduleServiceCreateRoomConflict(t *testing.T) {
	repo := &mockScheduleRepo{blocks: map[string]*models.ScheduleBlock{
		"b1": {ID: "b1", SubjectID: "sub9", Section: "B", TeacherID: "t9", Room: "R101", DayOfWeek: 1, StartMinute: 600, EndMinute: 720, IsRecurring: true, Status: models.ScheduleBlockStatusActive},
	}}
	svc := newScheduleService(repo)

	_, err := svc.Create(context.Background(), blockRequest("R101", "t1", 1, 540, 660))
	require.Error(t, err)

	conflicts := conflictsOf(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictDimensionRoom, conflicts[0].Dimension)
	assert.Equal(t, "b1", conflicts[0].ScheduleID)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Status, appErr.Status)
}

func TestScheduleServiceConflictSymmetry(t *testing.T) {
	first := blockRequest("R101", "t1", 1, 540, 660)
	second := blockRequest("R101", "t2", 1, 600, 720)

	repoA := &mockScheduleRepo{}
	svcA := newScheduleService(repoA)
	_, err := svcA.Create(context.Background(), first)
	require.NoError(t, err)
	_, err = svcA.Create(context.Background(), second)
	assert.Error(t, err)

	repoB := &mockScheduleRepo{}
	svcB := newScheduleService(repoB)
	_, err = svcB.Create(context.Background(), second)
	require.NoError(t, err)
	_, err = svcB.Create(context.Background(), first)
	assert.Error(t, err)
}

func TestScheduleServiceTouchingBlocksDoNotConflict(t *testing.T) {
	repo := &mockScheduleRepo{blocks: map[string]*models.ScheduleBlock{
		"b1": {ID: "b1", TeacherID: "t1", Room: "R101", DayOfWeek: 1, StartMinute: 540, EndMinute: 660, IsRecurring: true, Status: models.ScheduleBlockStatusActive},
	}}
	svc := newScheduleService(repo)

	_, err := svc.Create(context.Background(), blockRequest("R101", "t1", 1, 660, 780))
	assert.NoError(t, err)
}

func TestScheduleServiceTeacherConflictAcrossRooms(t *testing.T) {
	repo := &mockScheduleRepo{blocks: map[string]*models.ScheduleBlock{
		"b1": {ID: "b1", TeacherID: "t1", Room: "R101", DayOfWeek: 2, StartMinute: 540, EndMinute: 660, IsRecurring: true, Status: models.ScheduleBlockStatusActive},
	}}
	svc := newScheduleService(repo)

	_, err := svc.Create(context.Background(), blockRequest("R202", "t1", 2, 600, 700))
	require.Error(t, err)

	conflicts := conflictsOf(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictDimensionTeacher, conflicts[0].Dimension)
}

func TestScheduleServiceSharedRoomAndTeacherReportsBoth(t *testing.T) {
	repo := &mockScheduleRepo{blocks: map[string]*models.ScheduleBlock{
		"b1": {ID: "b1", TeacherID: "t1", Room: "R101", DayOfWeek: 3, StartMinute: 540, EndMinute: 660, IsRecurring: true, Status: models.ScheduleBlockStatusActive},
	}}
	svc := newScheduleService(repo)

	_, err := svc.Create(context.Background(), blockRequest("R101", "t1", 3, 600, 700))
	require.Error(t, err)

	conflicts := conflictsOf(t, err)
	require.Len(t, conflicts, 2)
	dims := map[string]bool{conflicts[0].Dimension: true, conflicts[1].Dimension: true}
	assert.True(t, dims[models.ConflictDimensionRoom])
	assert.True(t, dims[models.ConflictDimensionTeacher])
}

func TestScheduleServiceDifferentDaysDoNotConflict(t *testing.T) {
	repo := &mockScheduleRepo{blocks: map[string]*models.ScheduleBlock{
		"b1": {ID: "b1", TeacherID: "t1", Room: "R101", DayOfWeek: 1, StartMinute: 540, EndMinute: 660, IsRecurring: true, Status: models.ScheduleBlockStatusActive},
	}}
	svc := newScheduleService(repo)

	_, err := svc.Create(context.Background(), blockRequest("R101", "t1", 2, 540, 660))
	assert.NoError(t, err)
}

func TestScheduleServiceCancelledBlockFreesSlot(t *testing.T) {
	repo := &mockScheduleRepo{blocks: map[string]*models.ScheduleBlock{
		"b1": {ID: "b1", TeacherID: "t1", Room: "R101", DayOfWeek: 1, StartMinute: 540, EndMinute: 660, IsRecurring: true, Status: models.ScheduleBlockStatusActive},
	}}
	svc := newScheduleService(repo)

	require.NoError(t, svc.Cancel(context.Background(), "b1"))
	assert.Contains(t, repo.cancelled, "b1")

	_, err := svc.Create(context.Background(), blockRequest("R101", "t1", 1, 540, 660))
	assert.NoError(t, err)
}

func TestScheduleServiceNonRecurringSkipsDetection(t *testing.T) {
	repo := &mockScheduleRepo{blocks: map[string]*models.ScheduleBlock{
		"b1": {ID: "b1", TeacherID: "t1", Room: "R101", DayOfWeek: 1, StartMinute: 540, EndMinute: 660, IsRecurring: true, Status: models.ScheduleBlockStatusActive},
	}}
	svc := newScheduleService(repo)

	req := blockRequest("R101", "t1", 1, 540, 660)
	req.IsRecurring = boolPtr(false)
	_, err := svc.Create(context.Background(), req)
	assert.NoError(t, err)
}

func TestScheduleServiceUpdateExcludesSelf(t *testing.T) {
	repo := &mockScheduleRepo{blocks: map[string]*models.ScheduleBlock{
		"b1": {ID: "b1", SubjectID: "sub1", Section: "A", TeacherID: "t1", Room: "R101", DayOfWeek: 1, StartMinute: 540, EndMinute: 660, IsRecurring: true, Status: models.ScheduleBlockStatusActive},
	}}
	svc := newScheduleService(repo)

	block, err := svc.Update(context.Background(), "b1", blockRequest("R101", "t1", 1, 600, 720))
	require.NoError(t, err)
	assert.Equal(t, 600, block.StartMinute)
}

func TestScheduleServiceUpdateCancelledRejected(t *testing.T) {
	repo := &mockScheduleRepo{blocks: map[string]*models.ScheduleBlock{
		"b1": {ID: "b1", TeacherID: "t1", Room: "R101", DayOfWeek: 1, StartMinute: 540, EndMinute: 660, IsRecurring: true, Status: models.ScheduleBlockStatusCancelled},
	}}
	svc := newScheduleService(repo)

	_, err := svc.Update(context.Background(), "b1", blockRequest("R101", "t1", 1, 600, 720))
	assert.Error(t, err)
}

func TestScheduleServiceValidatesInterval(t *testing.T) {
	svc := newScheduleService(&mockScheduleRepo{})

	_, err := svc.Create(context.Background(), blockRequest("R101", "t1", 1, 660, 660))
	assert.Error(t, err)

	_, err = svc.Create(context.Background(), blockRequest("R101", "t1", 7, 540, 660))
	assert.Error(t, err)

	_, err = svc.Create(context.Background(), blockRequest("R101", "t1", 1, -10, 660))
	assert.Error(t, err)
}

func TestScheduleServiceCheckDryRun(t *testing.T) {
	repo := &mockScheduleRepo{blocks: map[string]*models.ScheduleBlock{
		"b1": {ID: "b1", TeacherID: "t1", Room: "R101", DayOfWeek: 1, StartMinute: 540, EndMinute: 660, IsRecurring: true, Status: models.ScheduleBlockStatusActive},
	}}
	svc := newScheduleService(repo)

	conflicts, err := svc.Check(context.Background(), blockRequest("R101", "t2", 1, 600, 720))
	require.NoError(t, err)
	assert.Len(t, conflicts, 1)
	assert.Len(t, repo.blocks, 1)
}
