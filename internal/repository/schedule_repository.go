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

const scheduleColumns = `id, subject_id, section, teacher_id, room, day_of_week,
        start_minute, end_minute, is_recurring, except_dates, status, created_at, updated_at`

// Overlap candidates are restricted to active recurring blocks on the same
// weekday sharing the room or the teacher. Interval comparison is half-open,
// so blocks touching at an endpoint do not match.
const overlapCondition = `is_recurring = TRUE AND status = $1 AND day_of_week = $2
        AND (room = $3 OR teacher_id = $4)
        AND start_minute < $5 AND $6 < end_minute`

// ScheduleRepository handles persistence of weekly schedule blocks.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// List returns schedule blocks filtered by the provided criteria.
func (r *ScheduleRepository) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleBlock, int, error) {
	base := "FROM schedule_blocks WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Room != "" {
		conditions = append(conditions, fmt.Sprintf("room = $%d", len(args)+1))
		args = append(args, filter.Room)
	}
	if filter.DayOfWeek != nil {
		conditions = append(conditions, fmt.Sprintf("day_of_week = $%d", len(args)+1))
		args = append(args, *filter.DayOfWeek)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"day_of_week":  true,
		"start_minute": true,
		"room":         true,
		"created_at":   true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "day_of_week"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s, start_minute ASC LIMIT %d OFFSET %d", scheduleColumns, base, sortBy, order, size, offset)

	var blocks []models.ScheduleBlock
	if err := r.db.SelectContext(ctx, &blocks, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list schedule blocks: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count schedule blocks: %w", err)
	}
	return blocks, total, nil
}

// FindByID returns a schedule block by its ID.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.ScheduleBlock, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedule_blocks WHERE id = $1`, scheduleColumns)
	var block models.ScheduleBlock
	if err := r.db.GetContext(ctx, &block, query, id); err != nil {
		return nil, err
	}
	return &block, nil
}

// FindOverlapping returns active recurring blocks on the candidate's weekday
// that share its room or teacher and intersect its minute interval.
func (r *ScheduleRepository) FindOverlapping(ctx context.Context, candidate models.ScheduleBlock, excludeID string) ([]models.ScheduleBlock, error) {
	query := fmt.Sprintf("SELECT %s FROM schedule_blocks WHERE %s", scheduleColumns, overlapCondition)
	args := []interface{}{models.ScheduleBlockStatusActive, candidate.DayOfWeek, candidate.Room, candidate.TeacherID, candidate.EndMinute, candidate.StartMinute}
	if excludeID != "" {
		query += fmt.Sprintf(" AND id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}

	var blocks []models.ScheduleBlock
	if err := r.db.SelectContext(ctx, &blocks, query, args...); err != nil {
		return nil, fmt.Errorf("find overlapping blocks: %w", err)
	}
	return blocks, nil
}

// Create inserts the block after re-checking overlaps under advisory locks.
// Concurrent writers targeting the same room/day or teacher/day slot
// serialize on the locks, so two clashing blocks cannot both commit. When the
// in-transaction check finds clashes they are returned and nothing is written.
// One-off blocks bypass the check entirely, matching the detector.
func (r *ScheduleRepository) Create(ctx context.Context, block *models.ScheduleBlock) ([]models.ScheduleBlock, error) {
	return r.writeSerialized(ctx, block, "", func(tx *sqlx.Tx) error {
		const query = `INSERT INTO schedule_blocks (id, subject_id, section, teacher_id, room, day_of_week,
            start_minute, end_minute, is_recurring, except_dates, status, created_at, updated_at)
            VALUES (:id, :subject_id, :section, :teacher_id, :room, :day_of_week,
            :start_minute, :end_minute, :is_recurring, :except_dates, :status, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, block); err != nil {
			return fmt.Errorf("insert schedule block: %w", err)
		}
		return nil
	})
}

// Update rewrites an existing block under the same serialization as Create.
func (r *ScheduleRepository) Update(ctx context.Context, block *models.ScheduleBlock) ([]models.ScheduleBlock, error) {
	return r.writeSerialized(ctx, block, block.ID, func(tx *sqlx.Tx) error {
		const query = `UPDATE schedule_blocks SET subject_id = :subject_id, section = :section, teacher_id = :teacher_id,
            room = :room, day_of_week = :day_of_week, start_minute = :start_minute, end_minute = :end_minute,
            is_recurring = :is_recurring, except_dates = :except_dates, updated_at = :updated_at
            WHERE id = :id`
		res, err := tx.NamedExecContext(ctx, query, block)
		if err != nil {
			return fmt.Errorf("update schedule block: %w", err)
		}
		if affected, raErr := res.RowsAffected(); raErr == nil && affected == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

func (r *ScheduleRepository) writeSerialized(ctx context.Context, block *models.ScheduleBlock, excludeID string, write func(tx *sqlx.Tx) error) ([]models.ScheduleBlock, error) {
	if block.ID == "" {
		block.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if block.CreatedAt.IsZero() {
		block.CreatedAt = now
	}
	block.UpdatedAt = now
	if block.Status == "" {
		block.Status = models.ScheduleBlockStatusActive
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin schedule tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// One-off blocks do not take part in detection on either side, so they
	// skip the locks and the re-check and are written straight through.
	if block.IsRecurring {
		// Lock order is fixed (room first, then teacher) to avoid deadlocks.
		roomKey := fmt.Sprintf("schedule:room:%s:%d", block.Room, block.DayOfWeek)
		teacherKey := fmt.Sprintf("schedule:teacher:%s:%d", block.TeacherID, block.DayOfWeek)
		if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, roomKey); err != nil {
			return nil, fmt.Errorf("acquire room lock: %w", err)
		}
		if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, teacherKey); err != nil {
			return nil, fmt.Errorf("acquire teacher lock: %w", err)
		}

		query := fmt.Sprintf("SELECT %s FROM schedule_blocks WHERE %s", scheduleColumns, overlapCondition)
		args := []interface{}{models.ScheduleBlockStatusActive, block.DayOfWeek, block.Room, block.TeacherID, block.EndMinute, block.StartMinute}
		if excludeID != "" {
			query += fmt.Sprintf(" AND id <> $%d", len(args)+1)
			args = append(args, excludeID)
		}

		var clashes []models.ScheduleBlock
		if err = tx.SelectContext(ctx, &clashes, query, args...); err != nil {
			return nil, fmt.Errorf("recheck overlapping blocks: %w", err)
		}
		if len(clashes) > 0 {
			_ = tx.Rollback()
			return clashes, nil
		}
	}

	if err = write(tx); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit schedule tx: %w", err)
	}
	return nil, nil
}

// Cancel flips a block to CANCELLED; blocks are never physically deleted.
func (r *ScheduleRepository) Cancel(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE schedule_blocks SET status = $2, updated_at = $3 WHERE id = $1`,
		id, models.ScheduleBlockStatusCancelled, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cancel schedule block: %w", err)
	}
	if affected, raErr := res.RowsAffected(); raErr == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
