package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-registrar-api/internal/models"
	"github.com/noah-isme/sis-registrar-api/internal/repository"
	appErrors "github.com/noah-isme/sis-registrar-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ExistsForTerm(ctx context.Context, studentID, academicYearID, semesterID string) (bool, error)
	CreateWithRecord(ctx context.Context, enrollment *models.Enrollment, lines []models.SubjectLine, record *models.FinancialRecord) error
	Approve(ctx context.Context, id, approvedBy string, at time.Time) (bool, error)
	Reject(ctx context.Context, id, rejectedBy, reason string, at time.Time) (bool, error)
	UpdateSubjectsWithRecord(ctx context.Context, enrollmentID string, drops []repository.SubjectDrop, adds []models.SubjectLine, record *models.FinancialRecord) error
}

type subjectCatalog interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]models.Subject, error)
}

type ledgerReader interface {
	FindByEnrollment(ctx context.Context, enrollmentID string) (*models.FinancialRecord, error)
}

// chargeAssessor prices subject loads. Implemented by FinanceService.
type chargeAssessor interface {
	Assess(subjects []models.Subject, isLate bool, penalty decimal.Decimal) *models.FinancialRecord
	Reassess(record *models.FinancialRecord, subjects []models.Subject) *models.FinancialRecord
}

// SubjectSelection names one subject plus section to enroll in.
type SubjectSelection struct {
	SubjectID string `json:"subject_id" validate:"required"`
	Section   string `json:"section" validate:"required"`
}

// CreateEnrollmentRequest describes payload for submitting an enrollment.
// StudentID is honored only for staff actors; students always enroll
// themselves.
type CreateEnrollmentRequest struct {
	StudentID      string             `json:"student_id"`
	AcademicYearID string             `json:"academic_year_id" validate:"required"`
	SemesterID     string             `json:"semester_id" validate:"required"`
	Subjects       []SubjectSelection `json:"subjects" validate:"required,min=1,dive"`
}

// RejectEnrollmentRequest carries the mandatory rejection reason.
type RejectEnrollmentRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// DropSelection names one enrolled subject to drop.
type DropSelection struct {
	SubjectID string `json:"subject_id" validate:"required"`
	Remarks   string `json:"remarks"`
}

// AddDropRequest describes a subject change during the add/drop period.
type AddDropRequest struct {
	Add  []SubjectSelection `json:"add" validate:"dive"`
	Drop []DropSelection    `json:"drop" validate:"dive"`
}

// EnrollmentResult bundles an enrollment with its financial record.
type EnrollmentResult struct {
	*models.EnrollmentDetail
	FinancialRecord *models.FinancialRecord `json:"financial_record,omitempty"`
}

// EnrollmentService drives the enrollment lifecycle from submission through
// approval or rejection, including add/drop changes.
type EnrollmentService struct {
	repo      enrollmentRepository
	subjects  subjectCatalog
	users     studentDirectory
	terms     termCatalog
	ledger    ledgerReader
	assessor  chargeAssessor
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, subjects subjectCatalog, users studentDirectory, terms termCatalog, ledger ledgerReader, assessor chargeAssessor, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, subjects: subjects, users: users, terms: terms, ledger: ledger, assessor: assessor, metrics: metrics, validator: validate, logger: logger}
}

// List returns enrollments matching the filter. Students are always scoped
// to their own records.
func (s *EnrollmentService) List(ctx context.Context, claims *models.JWTClaims, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	if claims.Role == models.RoleStudent {
		filter.StudentID = claims.UserID
	}
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, total, nil
}

// Get loads one enrollment with its subject lines and financial record.
func (s *EnrollmentService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*EnrollmentResult, error) {
	detail, err := s.findDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if claims.Role == models.RoleStudent && detail.StudentID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another student")
	}

	record, err := s.ledger.FindByEnrollment(ctx, id)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load financial record")
	}
	return &EnrollmentResult{EnrollmentDetail: detail, FinancialRecord: record}, nil
}

// Create submits an enrollment for the current term. The enrollment, its
// subject lines and the assessed financial record are stored together, so a
// billing failure never leaves an unbilled enrollment behind.
func (s *EnrollmentService) Create(ctx context.Context, claims *models.JWTClaims, req CreateEnrollmentRequest) (*EnrollmentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	studentID := claims.UserID
	if req.StudentID != "" && req.StudentID != claims.UserID {
		if !claims.Role.IsStaff() {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only enroll themselves")
		}
		studentID = req.StudentID
	}

	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student account is inactive")
	}

	semester, err := s.loadTerm(ctx, req.AcademicYearID, req.SemesterID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	window := EnrollmentWindowAt(semester, now)
	if !window.Open {
		return nil, appErrors.Clone(appErrors.ErrEnrollmentClosed, "enrollment period is closed")
	}

	exists, err := s.repo.ExistsForTerm(ctx, studentID, req.AcademicYearID, req.SemesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already has an enrollment for this term")
	}

	subjects, err := s.resolveSubjects(ctx, student, req.Subjects)
	if err != nil {
		return nil, err
	}

	record := s.assessor.Assess(subjects, window.IsLate, window.PenaltyFee)
	record.StudentID = studentID
	record.AcademicYearID = req.AcademicYearID
	record.SemesterID = req.SemesterID

	enrollment := &models.Enrollment{
		StudentID:      studentID,
		AcademicYearID: req.AcademicYearID,
		SemesterID:     req.SemesterID,
		YearLevel:      student.YearLevel,
		Department:     student.Department,
		Status:         models.EnrollmentStatusPending,
		IsLate:         window.IsLate,
		DateSubmitted:  now,
	}

	lines := make([]models.SubjectLine, 0, len(req.Subjects))
	for _, selection := range req.Subjects {
		lines = append(lines, models.SubjectLine{
			SubjectID: selection.SubjectID,
			Section:   selection.Section,
			Status:    models.SubjectLineStatusEnrolled,
		})
	}

	if err := s.repo.CreateWithRecord(ctx, enrollment, lines, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	if s.metrics != nil {
		s.metrics.RecordEnrollmentCreated()
	}
	s.logger.Info("enrollment submitted",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", studentID),
		zap.Bool("is_late", window.IsLate),
		zap.String("total_due", record.TotalDue.String()))

	detail := &models.EnrollmentDetail{Enrollment: *enrollment, Subjects: lines}
	return &EnrollmentResult{EnrollmentDetail: detail, FinancialRecord: record}, nil
}

// Approve moves a pending enrollment to approved.
func (s *EnrollmentService) Approve(ctx context.Context, id, actorID string) (*models.EnrollmentDetail, error) {
	applied, err := s.repo.Approve(ctx, id, actorID, time.Now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve enrollment")
	}
	if !applied {
		return nil, s.transitionRefused(ctx, id)
	}
	s.logger.Info("enrollment approved", zap.String("enrollment_id", id), zap.String("approved_by", actorID))
	return s.findDetail(ctx, id)
}

// Reject moves a pending enrollment to rejected with a reason.
func (s *EnrollmentService) Reject(ctx context.Context, id, actorID string, req RejectEnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "rejection reason is required")
	}
	applied, err := s.repo.Reject(ctx, id, actorID, req.Reason, time.Now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject enrollment")
	}
	if !applied {
		return nil, s.transitionRefused(ctx, id)
	}
	s.logger.Info("enrollment rejected", zap.String("enrollment_id", id), zap.String("rejected_by", actorID))
	return s.findDetail(ctx, id)
}

// OnBalanceSettled auto-approves a pending enrollment once its balance is
// settled. The transition is conditional on pending status, so repeated or
// stale signals are no-ops.
func (s *EnrollmentService) OnBalanceSettled(ctx context.Context, event models.BalanceSettled) {
	applied, err := s.repo.Approve(ctx, event.EnrollmentID, event.SettledBy, event.SettledAt)
	if err != nil {
		s.logger.Error("auto-approval after settlement failed",
			zap.String("enrollment_id", event.EnrollmentID),
			zap.Error(err))
		return
	}
	if applied {
		s.logger.Info("enrollment auto-approved on settlement",
			zap.String("enrollment_id", event.EnrollmentID),
			zap.String("financial_record_id", event.FinancialRecordID))
	}
}

// AddDrop applies subject changes during the add/drop period and reprices the
// financial record in the same transaction. Staff actors bypass the period
// gate. Added subjects are not checked against existing lines; a duplicate
// add shows up as a second line and is resolved by dropping one.
func (s *EnrollmentService) AddDrop(ctx context.Context, claims *models.JWTClaims, id string, req AddDropRequest) (*EnrollmentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid add/drop payload")
	}
	if len(req.Add)+len(req.Drop) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one add or drop is required")
	}

	detail, err := s.findDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	staff := claims.Role.IsStaff()
	if claims.Role == models.RoleStudent && detail.StudentID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another student")
	}
	if detail.Status == models.EnrollmentStatusRejected {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "rejected enrollments cannot be modified")
	}
	if !staff && detail.Status != models.EnrollmentStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is not approved yet")
	}

	semester, err := s.terms.FindSemesterByID(ctx, detail.SemesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	if !AddDropOpenAt(semester, time.Now().UTC(), staff) {
		return nil, appErrors.Clone(appErrors.ErrEnrollmentClosed, "add/drop period is closed")
	}

	drops, err := resolveDrops(detail.Subjects, req.Drop)
	if err != nil {
		return nil, err
	}

	student, err := s.users.FindByID(ctx, detail.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	added, err := s.resolveSubjects(ctx, student, req.Add)
	if err != nil {
		return nil, err
	}

	addLines := make([]models.SubjectLine, 0, len(req.Add))
	for _, selection := range req.Add {
		addLines = append(addLines, models.SubjectLine{
			SubjectID: selection.SubjectID,
			Section:   selection.Section,
			Status:    models.SubjectLineStatusEnrolled,
		})
	}

	finalSubjects, err := s.finalLoad(ctx, detail.Subjects, drops, added)
	if err != nil {
		return nil, err
	}

	record, err := s.ledger.FindByEnrollment(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "financial record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load financial record")
	}
	s.assessor.Reassess(record, finalSubjects)

	if err := s.repo.UpdateSubjectsWithRecord(ctx, id, drops, addLines, record); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject line not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply add/drop")
	}

	s.logger.Info("add/drop applied",
		zap.String("enrollment_id", id),
		zap.Int("added", len(addLines)),
		zap.Int("dropped", len(drops)),
		zap.String("total_due", record.TotalDue.String()))

	refreshed, err := s.findDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	return &EnrollmentResult{EnrollmentDetail: refreshed, FinancialRecord: record}, nil
}

func (s *EnrollmentService) findDetail(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// transitionRefused distinguishes a missing enrollment from one that already
// left the pending state.
func (s *EnrollmentService) transitionRefused(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is not pending")
}

// loadTerm verifies the year exists and the semester belongs to it.
func (s *EnrollmentService) loadTerm(ctx context.Context, academicYearID, semesterID string) (*models.Semester, error) {
	year, err := s.terms.FindByID(ctx, academicYearID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
	}
	semester, err := s.terms.FindSemesterByID(ctx, semesterID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	if semester.AcademicYearID != year.ID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "semester does not belong to the academic year")
	}
	return semester, nil
}

// resolveSubjects loads the selected subjects and enforces department fit.
// Subjects without a department are open to all.
func (s *EnrollmentService) resolveSubjects(ctx context.Context, student *models.User, selections []SubjectSelection) ([]models.Subject, error) {
	if len(selections) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(selections))
	for _, selection := range selections {
		ids = append(ids, selection.SubjectID)
	}
	catalog, err := s.subjects.FindByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}

	subjects := make([]models.Subject, 0, len(selections))
	for _, selection := range selections {
		subject, ok := catalog[selection.SubjectID]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("subject %s does not exist", selection.SubjectID))
		}
		if subject.Department != "" && subject.Department != student.Department {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("subject %s is outside the student's department", subject.Code))
		}
		subjects = append(subjects, subject)
	}
	return subjects, nil
}

// finalLoad computes the subject set after the mutation: currently enrolled
// lines minus drops plus additions.
func (s *EnrollmentService) finalLoad(ctx context.Context, lines []models.SubjectLine, drops []repository.SubjectDrop, added []models.Subject) ([]models.Subject, error) {
	dropped := make(map[string]bool, len(drops))
	for _, drop := range drops {
		dropped[drop.LineID] = true
	}

	var keepIDs []string
	for _, line := range lines {
		if line.Status != models.SubjectLineStatusEnrolled || dropped[line.ID] {
			continue
		}
		keepIDs = append(keepIDs, line.SubjectID)
	}

	catalog, err := s.subjects.FindByIDs(ctx, keepIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}

	final := make([]models.Subject, 0, len(keepIDs)+len(added))
	for _, id := range keepIDs {
		if subject, ok := catalog[id]; ok {
			final = append(final, subject)
		}
	}
	final = append(final, added...)
	return final, nil
}

// resolveDrops maps requested subject drops onto concrete enrolled lines.
// When a subject appears on several enrolled lines the oldest one is dropped.
func resolveDrops(lines []models.SubjectLine, selections []DropSelection) ([]repository.SubjectDrop, error) {
	used := make(map[string]bool)
	drops := make([]repository.SubjectDrop, 0, len(selections))
	for _, selection := range selections {
		found := false
		for _, line := range lines {
			if line.SubjectID != selection.SubjectID || line.Status != models.SubjectLineStatusEnrolled || used[line.ID] {
				continue
			}
			drops = append(drops, repository.SubjectDrop{LineID: line.ID, Remarks: selection.Remarks})
			used[line.ID] = true
			found = true
			break
		}
		if !found {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("subject %s is not currently enrolled", selection.SubjectID))
		}
	}
	return drops, nil
}
