package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AcademicYearStatus marks the lifecycle of an academic year.
type AcademicYearStatus string

const (
	AcademicYearStatusUpcoming AcademicYearStatus = "UPCOMING"
	AcademicYearStatusOngoing  AcademicYearStatus = "ONGOING"
	AcademicYearStatusClosed   AcademicYearStatus = "CLOSED"
)

// AcademicYear is the top-level temporal container. At most one year carries
// is_current=TRUE; the repository enforces that transactionally on writes.
type AcademicYear struct {
	ID        string             `db:"id" json:"id"`
	Name      string             `db:"name" json:"name"`
	StartDate time.Time          `db:"start_date" json:"start_date"`
	EndDate   time.Time          `db:"end_date" json:"end_date"`
	IsCurrent bool               `db:"is_current" json:"is_current"`
	Status    AcademicYearStatus `db:"status" json:"status"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt time.Time          `db:"updated_at" json:"updated_at"`
}

// SemesterStatus marks where a semester sits in the calendar.
type SemesterStatus string

const (
	SemesterStatusPending   SemesterStatus = "PENDING"
	SemesterStatusOngoing   SemesterStatus = "ONGOING"
	SemesterStatusCompleted SemesterStatus = "COMPLETED"
)

// Semester is owned by its academic year and is never physically deleted.
// All window bounds are inclusive; the late window begins strictly after the
// regular enrollment window ends.
type Semester struct {
	ID                      string          `db:"id" json:"id"`
	AcademicYearID          string          `db:"academic_year_id" json:"academic_year_id"`
	Name                    string          `db:"name" json:"name"`
	StartDate               time.Time       `db:"start_date" json:"start_date"`
	EndDate                 time.Time       `db:"end_date" json:"end_date"`
	EnrollmentStart         time.Time       `db:"enrollment_start" json:"enrollment_start"`
	EnrollmentEnd           time.Time       `db:"enrollment_end" json:"enrollment_end"`
	LateEnrollmentStart     time.Time       `db:"late_enrollment_start" json:"late_enrollment_start"`
	LateEnrollmentEnd       time.Time       `db:"late_enrollment_end" json:"late_enrollment_end"`
	LatePenaltyFee          decimal.Decimal `db:"late_penalty_fee" json:"late_penalty_fee"`
	AddDropStart            time.Time       `db:"add_drop_start" json:"add_drop_start"`
	AddDropEnd              time.Time       `db:"add_drop_end" json:"add_drop_end"`
	MidtermStart            time.Time       `db:"midterm_start" json:"midterm_start"`
	MidtermEnd              time.Time       `db:"midterm_end" json:"midterm_end"`
	FinalsStart             time.Time       `db:"finals_start" json:"finals_start"`
	FinalsEnd               time.Time       `db:"finals_end" json:"finals_end"`
	GradeSubmissionDeadline time.Time       `db:"grade_submission_deadline" json:"grade_submission_deadline"`
	Status                  SemesterStatus  `db:"status" json:"status"`
	CreatedAt               time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time       `db:"updated_at" json:"updated_at"`
}

// EnrollmentWindow is the Calendar Authority's answer to "may a student enroll
// right now".
type EnrollmentWindow struct {
	Open       bool            `json:"open"`
	IsLate     bool            `json:"is_late"`
	PenaltyFee decimal.Decimal `json:"penalty_fee"`
}

// CalendarSnapshot aggregates the current calendar state for read endpoints.
type CalendarSnapshot struct {
	AcademicYear     *AcademicYear    `json:"academic_year"`
	CurrentSemester  *Semester        `json:"current_semester"`
	EnrollmentWindow EnrollmentWindow `json:"enrollment_window"`
	AddDropOpen      bool             `json:"add_drop_open"`
	AsOf             time.Time        `json:"as_of"`
}
