package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ScheduleBlockStatus marks whether a block still occupies its slot.
type ScheduleBlockStatus string

const (
	ScheduleBlockStatusActive    ScheduleBlockStatus = "ACTIVE"
	ScheduleBlockStatusCancelled ScheduleBlockStatus = "CANCELLED"
)

// ExceptDates holds calendar dates excluded from a recurring block, stored as
// a jsonb array of YYYY-MM-DD strings.
//
// TODO: the conflict detector does not consult these yet; a block excepted on
// a given date still counts as occupying its slot that week.
type ExceptDates []string

// Value implements driver.Valuer.
func (d ExceptDates) Value() (driver.Value, error) {
	if d == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner.
func (d *ExceptDates) Scan(src interface{}) error {
	if src == nil {
		*d = nil
		return nil
	}
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("except dates: unsupported type %T", src)
	}
	return json.Unmarshal(raw, d)
}

// ScheduleBlock is a weekly recurring room/teacher/time-slot booking for a
// course section. Start and end are minute offsets from midnight forming a
// half-open interval [start_minute, end_minute).
type ScheduleBlock struct {
	ID          string              `db:"id" json:"id"`
	SubjectID   string              `db:"subject_id" json:"subject_id"`
	Section     string              `db:"section" json:"section"`
	TeacherID   string              `db:"teacher_id" json:"teacher_id"`
	Room        string              `db:"room" json:"room"`
	DayOfWeek   int                 `db:"day_of_week" json:"day_of_week"`
	StartMinute int                 `db:"start_minute" json:"start_minute"`
	EndMinute   int                 `db:"end_minute" json:"end_minute"`
	IsRecurring bool                `db:"is_recurring" json:"is_recurring"`
	ExceptDates ExceptDates         `db:"except_dates" json:"except_dates"`
	Status      ScheduleBlockStatus `db:"status" json:"status"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `db:"updated_at" json:"updated_at"`
}

// Overlaps reports whether two half-open minute intervals intersect. Touching
// endpoints do not overlap.
func Overlaps(start1, end1, start2, end2 int) bool {
	return start1 < end2 && start2 < end1
}

// ScheduleFilter describes query params for listing blocks.
type ScheduleFilter struct {
	TeacherID string
	Room      string
	DayOfWeek *int
	Status    ScheduleBlockStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Conflict dimensions reported by the detector.
const (
	ConflictDimensionRoom    = "ROOM"
	ConflictDimensionTeacher = "TEACHER"
)

// ScheduleConflict describes an existing block that clashes with a candidate.
type ScheduleConflict struct {
	ScheduleID  string `json:"schedule_id"`
	SubjectID   string `json:"subject_id"`
	Section     string `json:"section"`
	TeacherID   string `json:"teacher_id"`
	Room        string `json:"room"`
	DayOfWeek   int    `json:"day_of_week"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
	Dimension   string `json:"dimension"`
}

// ScheduleConflictError is returned when a candidate block collides with
// existing active blocks. Room and teacher clashes are reported separately so
// the caller knows which resource caused the rejection.
type ScheduleConflictError struct {
	Message   string             `json:"message"`
	Conflicts []ScheduleConflict `json:"conflicts"`
}

// Error implements the error interface for conflict errors.
func (e *ScheduleConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
