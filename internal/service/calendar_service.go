package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-registrar-api/internal/models"
	appErrors "github.com/noah-isme/sis-registrar-api/pkg/errors"
)

type calendarRepository interface {
	FindCurrent(ctx context.Context) (*models.AcademicYear, error)
	FindByID(ctx context.Context, id string) (*models.AcademicYear, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, year *models.AcademicYear) error
	SetCurrent(ctx context.Context, id string) error
	CreateSemester(ctx context.Context, semester *models.Semester) error
	FindSemesterByID(ctx context.Context, id string) (*models.Semester, error)
	FindOngoingSemester(ctx context.Context, academicYearID string) (*models.Semester, error)
	ListSemesters(ctx context.Context, academicYearID string) ([]models.Semester, error)
	UpdateSemesterStatus(ctx context.Context, id string, status models.SemesterStatus) error
}

const calendarSnapshotCacheKey = "calendar:current"

// EnrollmentWindowAt evaluates the enrollment window of a semester at the
// given instant. Regular bounds are inclusive; the late window runs from just
// after the regular end through the late end, carrying the penalty fee.
func EnrollmentWindowAt(semester *models.Semester, now time.Time) models.EnrollmentWindow {
	if semester == nil {
		return models.EnrollmentWindow{}
	}
	if !now.Before(semester.EnrollmentStart) && !now.After(semester.EnrollmentEnd) {
		return models.EnrollmentWindow{Open: true}
	}
	if now.After(semester.EnrollmentEnd) && !now.After(semester.LateEnrollmentEnd) {
		return models.EnrollmentWindow{Open: true, IsLate: true, PenaltyFee: semester.LatePenaltyFee}
	}
	return models.EnrollmentWindow{PenaltyFee: decimal.Zero}
}

// AddDropOpenAt reports whether subjects may be changed at the given instant.
// Staff actors bypass the temporal gate; that bypass is deliberate.
func AddDropOpenAt(semester *models.Semester, now time.Time, actorIsStaff bool) bool {
	if actorIsStaff {
		return true
	}
	if semester == nil {
		return false
	}
	return !now.Before(semester.AddDropStart) && !now.After(semester.AddDropEnd)
}

// CreateAcademicYearRequest describes payload for creating an academic year.
type CreateAcademicYearRequest struct {
	Name      string    `json:"name" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
	IsCurrent bool      `json:"is_current"`
}

// CreateSemesterRequest describes payload for creating a semester under a year.
type CreateSemesterRequest struct {
	Name                    string          `json:"name" validate:"required"`
	StartDate               time.Time       `json:"start_date" validate:"required"`
	EndDate                 time.Time       `json:"end_date" validate:"required"`
	EnrollmentStart         time.Time       `json:"enrollment_start" validate:"required"`
	EnrollmentEnd           time.Time       `json:"enrollment_end" validate:"required"`
	LateEnrollmentStart     time.Time       `json:"late_enrollment_start" validate:"required"`
	LateEnrollmentEnd       time.Time       `json:"late_enrollment_end" validate:"required"`
	LatePenaltyFee          decimal.Decimal `json:"late_penalty_fee"`
	AddDropStart            time.Time       `json:"add_drop_start" validate:"required"`
	AddDropEnd              time.Time       `json:"add_drop_end" validate:"required"`
	MidtermStart            time.Time       `json:"midterm_start" validate:"required"`
	MidtermEnd              time.Time       `json:"midterm_end" validate:"required"`
	FinalsStart             time.Time       `json:"finals_start" validate:"required"`
	FinalsEnd               time.Time       `json:"finals_end" validate:"required"`
	GradeSubmissionDeadline time.Time       `json:"grade_submission_deadline" validate:"required"`
}

// UpdateSemesterStatusRequest moves a semester through its lifecycle.
type UpdateSemesterStatusRequest struct {
	Status models.SemesterStatus `json:"status" validate:"required,oneof=PENDING ONGOING COMPLETED"`
}

// CalendarService is the academic-calendar authority: it owns years and
// semesters and answers window queries for the other components.
type CalendarService struct {
	repo      calendarRepository
	cache     *CacheService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCalendarService constructs CalendarService.
func NewCalendarService(repo calendarRepository, cache *CacheService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *CalendarService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &CalendarService{repo: repo, cache: cache, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// CurrentAcademicYear returns the year flagged as current.
func (s *CalendarService) CurrentAcademicYear(ctx context.Context) (*models.AcademicYear, error) {
	year, err := s.repo.FindCurrent(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no current academic year")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current academic year")
	}
	return year, nil
}

// CurrentSemester returns the ongoing semester of the current year.
func (s *CalendarService) CurrentSemester(ctx context.Context) (*models.Semester, error) {
	year, err := s.CurrentAcademicYear(ctx)
	if err != nil {
		return nil, err
	}
	semester, err := s.repo.FindOngoingSemester(ctx, year.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no ongoing semester")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current semester")
	}
	return semester, nil
}

// Current aggregates the current calendar state, cached for read traffic.
func (s *CalendarService) Current(ctx context.Context, now time.Time) (*models.CalendarSnapshot, error) {
	if s.cache.Enabled() {
		var cached models.CalendarSnapshot
		if hit, _ := s.cache.Get(ctx, calendarSnapshotCacheKey, &cached); hit {
			// Window flags depend on the clock, so they are recomputed even
			// on a hit; only the records themselves come from cache.
			cached.EnrollmentWindow = EnrollmentWindowAt(cached.CurrentSemester, now)
			cached.AddDropOpen = AddDropOpenAt(cached.CurrentSemester, now, false)
			cached.AsOf = now
			return &cached, nil
		}
	}

	year, err := s.CurrentAcademicYear(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := &models.CalendarSnapshot{AcademicYear: year, AsOf: now}
	semester, err := s.repo.FindOngoingSemester(ctx, year.ID)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current semester")
	}
	if semester != nil {
		snapshot.CurrentSemester = semester
		snapshot.EnrollmentWindow = EnrollmentWindowAt(semester, now)
		snapshot.AddDropOpen = AddDropOpenAt(semester, now, false)
	}

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, calendarSnapshotCacheKey, snapshot, s.cacheTTL); err != nil {
			s.logger.Warn("calendar snapshot cache write failed", zap.Error(err))
		}
	}
	return snapshot, nil
}

// CreateAcademicYear adds a year, enforcing unique names. When flagged
// current it also claims the current marker.
func (s *CalendarService) CreateAcademicYear(ctx context.Context, req CreateAcademicYearRequest) (*models.AcademicYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid academic year payload")
	}
	if !req.StartDate.Before(req.EndDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_date must be before end_date")
	}

	exists, err := s.repo.ExistsByName(ctx, req.Name)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check year name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "academic year name already exists")
	}

	year := &models.AcademicYear{
		Name:      req.Name,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Status:    models.AcademicYearStatusUpcoming,
	}
	if err := s.repo.Create(ctx, year); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create academic year")
	}

	if req.IsCurrent {
		if err := s.repo.SetCurrent(ctx, year.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark year as current")
		}
		year.IsCurrent = true
	}

	s.invalidateSnapshot(ctx)
	return year, nil
}

// SetCurrentYear flips the current marker to the given year.
func (s *CalendarService) SetCurrentYear(ctx context.Context, id string) (*models.AcademicYear, error) {
	if err := s.repo.SetCurrent(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set current year")
	}
	s.invalidateSnapshot(ctx)
	return s.repo.FindByID(ctx, id)
}

// CreateSemester adds a semester under an existing year.
func (s *CalendarService) CreateSemester(ctx context.Context, academicYearID string, req CreateSemesterRequest) (*models.Semester, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid semester payload")
	}
	if !req.StartDate.Before(req.EndDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_date must be before end_date")
	}
	if req.EnrollmentEnd.Before(req.EnrollmentStart) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment_end must not precede enrollment_start")
	}
	if !req.LateEnrollmentStart.After(req.EnrollmentEnd) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "late_enrollment_start must follow enrollment_end")
	}
	if req.LateEnrollmentEnd.Before(req.LateEnrollmentStart) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "late_enrollment_end must not precede late_enrollment_start")
	}
	if req.AddDropEnd.Before(req.AddDropStart) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "add_drop_end must not precede add_drop_start")
	}
	if req.LatePenaltyFee.Sign() < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "late_penalty_fee must not be negative")
	}

	if _, err := s.repo.FindByID(ctx, academicYearID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
	}

	semester := &models.Semester{
		AcademicYearID:          academicYearID,
		Name:                    req.Name,
		StartDate:               req.StartDate,
		EndDate:                 req.EndDate,
		EnrollmentStart:         req.EnrollmentStart,
		EnrollmentEnd:           req.EnrollmentEnd,
		LateEnrollmentStart:     req.LateEnrollmentStart,
		LateEnrollmentEnd:       req.LateEnrollmentEnd,
		LatePenaltyFee:          req.LatePenaltyFee,
		AddDropStart:            req.AddDropStart,
		AddDropEnd:              req.AddDropEnd,
		MidtermStart:            req.MidtermStart,
		MidtermEnd:              req.MidtermEnd,
		FinalsStart:             req.FinalsStart,
		FinalsEnd:               req.FinalsEnd,
		GradeSubmissionDeadline: req.GradeSubmissionDeadline,
		Status:                  models.SemesterStatusPending,
	}
	if err := s.repo.CreateSemester(ctx, semester); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create semester")
	}

	s.invalidateSnapshot(ctx)
	return semester, nil
}

// ListSemesters returns the semesters of a year.
func (s *CalendarService) ListSemesters(ctx context.Context, academicYearID string) ([]models.Semester, error) {
	semesters, err := s.repo.ListSemesters(ctx, academicYearID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list semesters")
	}
	return semesters, nil
}

// UpdateSemesterStatus marks a semester pending, ongoing or completed.
func (s *CalendarService) UpdateSemesterStatus(ctx context.Context, id string, req UpdateSemesterStatusRequest) (*models.Semester, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid semester status payload")
	}
	if err := s.repo.UpdateSemesterStatus(ctx, id, req.Status); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update semester status")
	}
	s.invalidateSnapshot(ctx)
	return s.repo.FindSemesterByID(ctx, id)
}

// Semester loads a semester by ID.
func (s *CalendarService) Semester(ctx context.Context, id string) (*models.Semester, error) {
	semester, err := s.repo.FindSemesterByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	return semester, nil
}

func (s *CalendarService) invalidateSnapshot(ctx context.Context) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Invalidate(ctx, calendarSnapshotCacheKey); err != nil {
		s.logger.Warn("calendar snapshot cache invalidation failed", zap.Error(err))
	}
}
