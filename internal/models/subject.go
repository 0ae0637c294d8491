package models

import "time"

// Subject mirrors the course-catalog record consumed when validating
// enrollment line items and computing tuition.
type Subject struct {
	ID           string    `db:"id" json:"id"`
	Code         string    `db:"code" json:"code"`
	Name         string    `db:"name" json:"name"`
	LectureUnits int       `db:"lecture_units" json:"lecture_units"`
	LabUnits     int       `db:"lab_units" json:"lab_units"`
	TotalUnits   int       `db:"total_units" json:"total_units"`
	Department   string    `db:"department" json:"department"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
