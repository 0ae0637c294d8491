package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sis-registrar-api/internal/models"
)

const academicYearColumns = `id, name, start_date, end_date, is_current, status, created_at, updated_at`

const semesterColumns = `id, academic_year_id, name, start_date, end_date,
        enrollment_start, enrollment_end, late_enrollment_start, late_enrollment_end, late_penalty_fee,
        add_drop_start, add_drop_end, midterm_start, midterm_end, finals_start, finals_end,
        grade_submission_deadline, status, created_at, updated_at`

// AcademicYearRepository handles persistence for academic years and their semesters.
type AcademicYearRepository struct {
	db *sqlx.DB
}

// NewAcademicYearRepository constructs the repository.
func NewAcademicYearRepository(db *sqlx.DB) *AcademicYearRepository {
	return &AcademicYearRepository{db: db}
}

// FindCurrent returns the academic year flagged as current.
func (r *AcademicYearRepository) FindCurrent(ctx context.Context) (*models.AcademicYear, error) {
	query := fmt.Sprintf(`SELECT %s FROM academic_years WHERE is_current = TRUE LIMIT 1`, academicYearColumns)
	var year models.AcademicYear
	if err := r.db.GetContext(ctx, &year, query); err != nil {
		return nil, err
	}
	return &year, nil
}

// FindByID loads an academic year by identifier.
func (r *AcademicYearRepository) FindByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	query := fmt.Sprintf(`SELECT %s FROM academic_years WHERE id = $1`, academicYearColumns)
	var year models.AcademicYear
	if err := r.db.GetContext(ctx, &year, query, id); err != nil {
		return nil, err
	}
	return &year, nil
}

// ExistsByName checks whether a year with the given name already exists.
func (r *AcademicYearRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	const query = `SELECT 1 FROM academic_years WHERE name = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, name); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check year name: %w", err)
	}
	return true, nil
}

// Create persists a new academic year.
func (r *AcademicYearRepository) Create(ctx context.Context, year *models.AcademicYear) error {
	if year.ID == "" {
		year.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	year.CreatedAt = now
	year.UpdatedAt = now
	const query = `INSERT INTO academic_years (id, name, start_date, end_date, is_current, status, created_at, updated_at)
        VALUES (:id, :name, :start_date, :end_date, :is_current, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, year); err != nil {
		return fmt.Errorf("create academic year: %w", err)
	}
	return nil
}

// SetCurrent flags the provided year as current and clears the flag on every
// other year inside one transaction, keeping at most one current year.
func (r *AcademicYearRepository) SetCurrent(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set current tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, `UPDATE academic_years SET is_current = FALSE, updated_at = $1 WHERE is_current = TRUE AND id <> $2`, now, id); err != nil {
		return fmt.Errorf("clear current years: %w", err)
	}

	var res sql.Result
	if res, err = tx.ExecContext(ctx, `UPDATE academic_years SET is_current = TRUE, updated_at = $2 WHERE id = $1`, id, now); err != nil {
		return fmt.Errorf("set current year: %w", err)
	}
	if affected, raErr := res.RowsAffected(); raErr == nil && affected == 0 {
		err = sql.ErrNoRows
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit set current tx: %w", err)
	}
	return nil
}

// CreateSemester persists a semester under its academic year.
func (r *AcademicYearRepository) CreateSemester(ctx context.Context, semester *models.Semester) error {
	if semester.ID == "" {
		semester.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	semester.CreatedAt = now
	semester.UpdatedAt = now
	const query = `INSERT INTO semesters (id, academic_year_id, name, start_date, end_date,
        enrollment_start, enrollment_end, late_enrollment_start, late_enrollment_end, late_penalty_fee,
        add_drop_start, add_drop_end, midterm_start, midterm_end, finals_start, finals_end,
        grade_submission_deadline, status, created_at, updated_at)
        VALUES (:id, :academic_year_id, :name, :start_date, :end_date,
        :enrollment_start, :enrollment_end, :late_enrollment_start, :late_enrollment_end, :late_penalty_fee,
        :add_drop_start, :add_drop_end, :midterm_start, :midterm_end, :finals_start, :finals_end,
        :grade_submission_deadline, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, semester); err != nil {
		return fmt.Errorf("create semester: %w", err)
	}
	return nil
}

// FindSemesterByID loads a semester by identifier.
func (r *AcademicYearRepository) FindSemesterByID(ctx context.Context, id string) (*models.Semester, error) {
	query := fmt.Sprintf(`SELECT %s FROM semesters WHERE id = $1`, semesterColumns)
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query, id); err != nil {
		return nil, err
	}
	return &semester, nil
}

// FindOngoingSemester returns the ongoing semester of the given year.
func (r *AcademicYearRepository) FindOngoingSemester(ctx context.Context, academicYearID string) (*models.Semester, error) {
	query := fmt.Sprintf(`SELECT %s FROM semesters WHERE academic_year_id = $1 AND status = $2 LIMIT 1`, semesterColumns)
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query, academicYearID, models.SemesterStatusOngoing); err != nil {
		return nil, err
	}
	return &semester, nil
}

// ListSemesters returns the semesters of a year ordered by start date.
func (r *AcademicYearRepository) ListSemesters(ctx context.Context, academicYearID string) ([]models.Semester, error) {
	query := fmt.Sprintf(`SELECT %s FROM semesters WHERE academic_year_id = $1 ORDER BY start_date ASC`, semesterColumns)
	var semesters []models.Semester
	if err := r.db.SelectContext(ctx, &semesters, query, academicYearID); err != nil {
		return nil, fmt.Errorf("list semesters: %w", err)
	}
	return semesters, nil
}

// UpdateSemesterStatus moves a semester through its calendar lifecycle.
// Semesters are never deleted.
func (r *AcademicYearRepository) UpdateSemesterStatus(ctx context.Context, id string, status models.SemesterStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE semesters SET status = $2, updated_at = $3 WHERE id = $1`, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update semester status: %w", err)
	}
	if affected, raErr := res.RowsAffected(); raErr == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
