package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sis-registrar-api/internal/models"
)

const enrollmentColumns = `id, student_id, academic_year_id, semester_id, year_level, department,
        status, is_late, date_submitted, date_approved, approved_by, date_rejected, rejected_by, rejection_reason`

const subjectLineColumns = `id, enrollment_id, subject_id, section, status, remarks, created_at, updated_at`

// EnrollmentRepository handles persistence of enrollments and their subject
// lines. Mutations that must move in step with the financial record run inside
// one transaction here.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	base := "FROM enrollments WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.AcademicYearID != "" {
		conditions = append(conditions, fmt.Sprintf("academic_year_id = $%d", len(args)+1))
		args = append(args, filter.AcademicYearID)
	}
	if filter.SemesterID != "" {
		conditions = append(conditions, fmt.Sprintf("semester_id = $%d", len(args)+1))
		args = append(args, filter.SemesterID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY date_submitted %s LIMIT %d OFFSET %d", enrollmentColumns, base, order, size, offset)

	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with its subject lines.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	enrollment, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	lines, err := r.ListSubjectLines(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.EnrollmentDetail{Enrollment: *enrollment, Subjects: lines}, nil
}

// ExistsForTerm checks whether the student already has an enrollment for the
// year and semester pair, regardless of its status.
func (r *EnrollmentRepository) ExistsForTerm(ctx context.Context, studentID, academicYearID, semesterID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND academic_year_id = $2 AND semester_id = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, academicYearID, semesterID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment exists: %w", err)
	}
	return true, nil
}

// ListSubjectLines returns the subject lines of an enrollment in insertion order.
func (r *EnrollmentRepository) ListSubjectLines(ctx context.Context, enrollmentID string) ([]models.SubjectLine, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollment_subjects WHERE enrollment_id = $1 ORDER BY created_at ASC, id ASC`, subjectLineColumns)
	var lines []models.SubjectLine
	if err := r.db.SelectContext(ctx, &lines, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list subject lines: %w", err)
	}
	return lines, nil
}

// CreateWithRecord inserts the enrollment, its subject lines and the linked
// financial record in one transaction so the pair is never half-created.
func (r *EnrollmentRepository) CreateWithRecord(ctx context.Context, enrollment *models.Enrollment, lines []models.SubjectLine, record *models.FinancialRecord) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.DateSubmitted.IsZero() {
		enrollment.DateSubmitted = now
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusPending
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.EnrollmentID = enrollment.ID
	record.CreatedAt = now
	record.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const enrollmentInsert = `INSERT INTO enrollments (id, student_id, academic_year_id, semester_id, year_level, department,
        status, is_late, date_submitted, date_approved, approved_by, date_rejected, rejected_by, rejection_reason)
        VALUES (:id, :student_id, :academic_year_id, :semester_id, :year_level, :department,
        :status, :is_late, :date_submitted, :date_approved, :approved_by, :date_rejected, :rejected_by, :rejection_reason)`
	if _, err = tx.NamedExecContext(ctx, enrollmentInsert, enrollment); err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}

	for i := range lines {
		if err = insertSubjectLine(ctx, tx, enrollment.ID, &lines[i], now); err != nil {
			return err
		}
	}

	const recordInsert = `INSERT INTO financial_records (id, enrollment_id, student_id, academic_year_id, semester_id,
        per_unit_fee, total_units, tuition_total, miscellaneous_fees, laboratory_fees, discounts, scholarship,
        total_due, remaining_balance, status, created_at, updated_at)
        VALUES (:id, :enrollment_id, :student_id, :academic_year_id, :semester_id,
        :per_unit_fee, :total_units, :tuition_total, :miscellaneous_fees, :laboratory_fees, :discounts, :scholarship,
        :total_due, :remaining_balance, :status, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, recordInsert, record); err != nil {
		return fmt.Errorf("insert financial record: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment tx: %w", err)
	}
	return nil
}

// Approve marks a still-pending enrollment as approved. It reports whether the
// transition applied, making repeated settlement signals harmless.
func (r *EnrollmentRepository) Approve(ctx context.Context, id, approvedBy string, at time.Time) (bool, error) {
	const query = `UPDATE enrollments SET status = $2, date_approved = $3, approved_by = $4
        WHERE id = $1 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusApproved, at, approvedBy, models.EnrollmentStatusPending)
	if err != nil {
		return false, fmt.Errorf("approve enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("approve enrollment rows: %w", err)
	}
	return affected > 0, nil
}

// Reject marks a still-pending enrollment as rejected with a reason.
func (r *EnrollmentRepository) Reject(ctx context.Context, id, rejectedBy, reason string, at time.Time) (bool, error) {
	const query = `UPDATE enrollments SET status = $2, date_rejected = $3, rejected_by = $4, rejection_reason = $5
        WHERE id = $1 AND status = $6`
	res, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusRejected, at, rejectedBy, reason, models.EnrollmentStatusPending)
	if err != nil {
		return false, fmt.Errorf("reject enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reject enrollment rows: %w", err)
	}
	return affected > 0, nil
}

// SubjectDrop identifies one line to flip to DROPPED.
type SubjectDrop struct {
	LineID  string
	Remarks string
}

// UpdateSubjectsWithRecord applies an add/drop mutation and the recomputed
// financial figures in one transaction: dropped lines flip status, added
// lines are appended, and the record's charges and balance are replaced.
// Posted payments are untouched.
func (r *EnrollmentRepository) UpdateSubjectsWithRecord(ctx context.Context, enrollmentID string, drops []SubjectDrop, adds []models.SubjectLine, record *models.FinancialRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add/drop tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	for _, drop := range drops {
		const dropQuery = `UPDATE enrollment_subjects SET status = $2, remarks = $3, updated_at = $4
            WHERE id = $1 AND enrollment_id = $5`
		var res sql.Result
		if res, err = tx.ExecContext(ctx, dropQuery, drop.LineID, models.SubjectLineStatusDropped, drop.Remarks, now, enrollmentID); err != nil {
			return fmt.Errorf("drop subject line: %w", err)
		}
		if affected, raErr := res.RowsAffected(); raErr == nil && affected == 0 {
			err = sql.ErrNoRows
			return err
		}
	}

	for i := range adds {
		if err = insertSubjectLine(ctx, tx, enrollmentID, &adds[i], now); err != nil {
			return err
		}
	}

	record.UpdatedAt = now
	const recordUpdate = `UPDATE financial_records SET total_units = :total_units, tuition_total = :tuition_total,
        laboratory_fees = :laboratory_fees, total_due = :total_due, remaining_balance = :remaining_balance,
        status = :status, updated_at = :updated_at
        WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, recordUpdate, record); err != nil {
		return fmt.Errorf("update financial record: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit add/drop tx: %w", err)
	}
	return nil
}

func insertSubjectLine(ctx context.Context, tx *sqlx.Tx, enrollmentID string, line *models.SubjectLine, now time.Time) error {
	if line.ID == "" {
		line.ID = uuid.NewString()
	}
	line.EnrollmentID = enrollmentID
	if line.Status == "" {
		line.Status = models.SubjectLineStatusEnrolled
	}
	line.CreatedAt = now
	line.UpdatedAt = now
	const query = `INSERT INTO enrollment_subjects (id, enrollment_id, subject_id, section, status, remarks, created_at, updated_at)
        VALUES (:id, :enrollment_id, :subject_id, :section, :status, :remarks, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, line); err != nil {
		return fmt.Errorf("insert subject line: %w", err)
	}
	return nil
}
