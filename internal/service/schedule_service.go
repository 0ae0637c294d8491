package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-registrar-api/internal/models"
	appErrors "github.com/noah-isme/sis-registrar-api/pkg/errors"
)

type scheduleRepository interface {
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleBlock, int, error)
	FindByID(ctx context.Context, id string) (*models.ScheduleBlock, error)
	FindOverlapping(ctx context.Context, candidate models.ScheduleBlock, excludeID string) ([]models.ScheduleBlock, error)
	Create(ctx context.Context, block *models.ScheduleBlock) ([]models.ScheduleBlock, error)
	Update(ctx context.Context, block *models.ScheduleBlock) ([]models.ScheduleBlock, error)
	Cancel(ctx context.Context, id string) error
}

// minutesPerDay bounds the start/end offsets of a block.
const minutesPerDay = 24 * 60

// ScheduleBlockRequest describes payload for creating or replacing a block.
type ScheduleBlockRequest struct {
	SubjectID   string             `json:"subject_id" validate:"required"`
	Section     string             `json:"section" validate:"required"`
	TeacherID   string             `json:"teacher_id" validate:"required"`
	Room        string             `json:"room" validate:"required"`
	DayOfWeek   *int               `json:"day_of_week" validate:"required"`
	StartMinute *int               `json:"start_minute" validate:"required"`
	EndMinute   *int               `json:"end_minute" validate:"required"`
	IsRecurring *bool              `json:"is_recurring"`
	ExceptDates models.ExceptDates `json:"except_dates"`
}

// ScheduleService detects room and teacher collisions and guards all block
// writes behind that check.
type ScheduleService struct {
	repo      scheduleRepository
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduleService constructs ScheduleService.
func NewScheduleService(repo scheduleRepository, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{repo: repo, metrics: metrics, validator: validate, logger: logger}
}

// List returns blocks matching the filter plus the total count.
func (s *ScheduleService) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleBlock, int, error) {
	blocks, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedule blocks")
	}
	return blocks, total, nil
}

// Get loads a single block.
func (s *ScheduleService) Get(ctx context.Context, id string) (*models.ScheduleBlock, error) {
	block, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule block not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule block")
	}
	return block, nil
}

// Check runs conflict detection for a candidate without writing anything.
func (s *ScheduleService) Check(ctx context.Context, req ScheduleBlockRequest) ([]models.ScheduleConflict, error) {
	candidate, err := s.buildBlock(req)
	if err != nil {
		return nil, err
	}
	return s.detect(ctx, *candidate, "")
}

// Create inserts a new block unless it collides with an existing active one.
func (s *ScheduleService) Create(ctx context.Context, req ScheduleBlockRequest) (*models.ScheduleBlock, error) {
	block, err := s.buildBlock(req)
	if err != nil {
		return nil, err
	}

	conflicts, err := s.detect(ctx, *block, "")
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, s.conflictError(conflicts)
	}

	clashes, err := s.repo.Create(ctx, block)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule block")
	}
	if len(clashes) > 0 {
		// A concurrent writer claimed the slot between the pre-check and
		// the serialized insert.
		return nil, s.conflictError(s.classify(*block, clashes))
	}

	s.logger.Info("schedule block created",
		zap.String("schedule_id", block.ID),
		zap.String("room", block.Room),
		zap.String("teacher_id", block.TeacherID))
	return block, nil
}

// Update replaces a block's slot, re-running conflict detection against all
// other active blocks.
func (s *ScheduleService) Update(ctx context.Context, id string, req ScheduleBlockRequest) (*models.ScheduleBlock, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status == models.ScheduleBlockStatusCancelled {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "cancelled blocks cannot be updated")
	}

	block, err := s.buildBlock(req)
	if err != nil {
		return nil, err
	}
	block.ID = existing.ID
	block.Status = existing.Status
	block.CreatedAt = existing.CreatedAt

	conflicts, err := s.detect(ctx, *block, id)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, s.conflictError(conflicts)
	}

	clashes, err := s.repo.Update(ctx, block)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule block")
	}
	if len(clashes) > 0 {
		return nil, s.conflictError(s.classify(*block, clashes))
	}

	return block, nil
}

// Cancel marks a block cancelled, freeing its slot for future bookings. The
// row is kept for history.
func (s *ScheduleService) Cancel(ctx context.Context, id string) error {
	if err := s.repo.Cancel(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule block not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel schedule block")
	}
	s.logger.Info("schedule block cancelled", zap.String("schedule_id", id))
	return nil
}

func (s *ScheduleService) buildBlock(req ScheduleBlockRequest) (*models.ScheduleBlock, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule block payload")
	}
	day := *req.DayOfWeek
	start := *req.StartMinute
	end := *req.EndMinute
	if day < 0 || day > 6 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "day_of_week must be between 0 and 6")
	}
	if start < 0 || end > minutesPerDay {
		return nil, appErrors.Clone(appErrors.ErrValidation, "minute offsets must fall within a single day")
	}
	if end <= start {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_minute must be greater than start_minute")
	}

	recurring := true
	if req.IsRecurring != nil {
		recurring = *req.IsRecurring
	}

	return &models.ScheduleBlock{
		SubjectID:   req.SubjectID,
		Section:     req.Section,
		TeacherID:   req.TeacherID,
		Room:        req.Room,
		DayOfWeek:   day,
		StartMinute: start,
		EndMinute:   end,
		IsRecurring: recurring,
		ExceptDates: req.ExceptDates,
		Status:      models.ScheduleBlockStatusActive,
	}, nil
}

// detect returns the clashes a candidate would cause. One-off blocks do not
// take part in detection on either side.
func (s *ScheduleService) detect(ctx context.Context, candidate models.ScheduleBlock, excludeID string) ([]models.ScheduleConflict, error) {
	if !candidate.IsRecurring {
		return nil, nil
	}
	overlapping, err := s.repo.FindOverlapping(ctx, candidate, excludeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check schedule conflicts")
	}
	return s.classify(candidate, overlapping), nil
}

// classify splits overlapping blocks into room and teacher conflicts. A block
// sharing both resources with the candidate yields two entries.
func (s *ScheduleService) classify(candidate models.ScheduleBlock, overlapping []models.ScheduleBlock) []models.ScheduleConflict {
	var conflicts []models.ScheduleConflict
	for _, other := range overlapping {
		if !models.Overlaps(candidate.StartMinute, candidate.EndMinute, other.StartMinute, other.EndMinute) {
			continue
		}
		if other.Room == candidate.Room {
			conflicts = append(conflicts, conflictEntry(other, models.ConflictDimensionRoom))
		}
		if other.TeacherID == candidate.TeacherID {
			conflicts = append(conflicts, conflictEntry(other, models.ConflictDimensionTeacher))
		}
	}
	return conflicts
}

func (s *ScheduleService) conflictError(conflicts []models.ScheduleConflict) error {
	if s.metrics != nil {
		s.metrics.RecordConflictDetected()
	}
	detail := &models.ScheduleConflictError{
		Message:   fmt.Sprintf("schedule block conflicts with %d existing block(s)", len(conflicts)),
		Conflicts: conflicts,
	}
	return appErrors.Wrap(detail, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, detail.Message)
}

func conflictEntry(block models.ScheduleBlock, dimension string) models.ScheduleConflict {
	return models.ScheduleConflict{
		ScheduleID:  block.ID,
		SubjectID:   block.SubjectID,
		Section:     block.Section,
		TeacherID:   block.TeacherID,
		Room:        block.Room,
		DayOfWeek:   block.DayOfWeek,
		StartMinute: block.StartMinute,
		EndMinute:   block.EndMinute,
		Dimension:   dimension,
	}
}
