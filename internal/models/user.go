package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin     UserRole = "ADMIN"
	RoleRegistrar UserRole = "REGISTRAR"
	RoleCashier   UserRole = "CASHIER"
	RoleTeacher   UserRole = "TEACHER"
	RoleStudent   UserRole = "STUDENT"
)

// IsStaff reports whether the role may bypass temporal enrollment gates.
func (r UserRole) IsStaff() bool {
	return r == RoleAdmin || r == RoleRegistrar
}

// User mirrors the identity directory record consumed by this service.
type User struct {
	ID         string    `db:"id" json:"id"`
	Email      string    `db:"email" json:"email"`
	FullName   string    `db:"full_name" json:"full_name"`
	Role       UserRole  `db:"role" json:"role"`
	Department string    `db:"department" json:"department"`
	YearLevel  int       `db:"year_level" json:"year_level"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
