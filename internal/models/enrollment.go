package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. PENDING may move to APPROVED or REJECTED and
// nowhere else; there are no other transitions.
const (
	EnrollmentStatusPending  EnrollmentStatus = "PENDING"
	EnrollmentStatusApproved EnrollmentStatus = "APPROVED"
	EnrollmentStatusRejected EnrollmentStatus = "REJECTED"
)

// SubjectLineStatus represents the state of one subject line item.
type SubjectLineStatus string

const (
	SubjectLineStatusEnrolled SubjectLineStatus = "ENROLLED"
	SubjectLineStatusDropped  SubjectLineStatus = "DROPPED"
)

// Enrollment captures a student's subject registration for one academic
// year and semester pair. At most one row exists per (student, year, semester).
type Enrollment struct {
	ID              string           `db:"id" json:"id"`
	StudentID       string           `db:"student_id" json:"student_id"`
	AcademicYearID  string           `db:"academic_year_id" json:"academic_year_id"`
	SemesterID      string           `db:"semester_id" json:"semester_id"`
	YearLevel       int              `db:"year_level" json:"year_level"`
	Department      string           `db:"department" json:"department"`
	Status          EnrollmentStatus `db:"status" json:"status"`
	IsLate          bool             `db:"is_late" json:"is_late"`
	DateSubmitted   time.Time        `db:"date_submitted" json:"date_submitted"`
	DateApproved    *time.Time       `db:"date_approved" json:"date_approved,omitempty"`
	ApprovedBy      *string          `db:"approved_by" json:"approved_by,omitempty"`
	DateRejected    *time.Time       `db:"date_rejected" json:"date_rejected,omitempty"`
	RejectedBy      *string          `db:"rejected_by" json:"rejected_by,omitempty"`
	RejectionReason *string          `db:"rejection_reason" json:"rejection_reason,omitempty"`
}

// SubjectLine is one subject entry on an enrollment. Lines are append-only:
// a drop flips the status and records remarks, rows are never removed.
type SubjectLine struct {
	ID           string            `db:"id" json:"id"`
	EnrollmentID string            `db:"enrollment_id" json:"enrollment_id"`
	SubjectID    string            `db:"subject_id" json:"subject_id"`
	Section      string            `db:"section" json:"section"`
	Status       SubjectLineStatus `db:"status" json:"status"`
	Remarks      string            `db:"remarks" json:"remarks"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail bundles an enrollment with its subject lines.
type EnrollmentDetail struct {
	Enrollment
	Subjects []SubjectLine `json:"subjects"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID      string
	AcademicYearID string
	SemesterID     string
	Status         EnrollmentStatus
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
