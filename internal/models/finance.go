package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// FinancialRecordStatus summarises how much of the assessment is settled.
type FinancialRecordStatus string

const (
	FinancialRecordStatusUnpaid  FinancialRecordStatus = "UNPAID"
	FinancialRecordStatusPartial FinancialRecordStatus = "PARTIAL"
	FinancialRecordStatusPaid    FinancialRecordStatus = "PAID"
)

// FeeItem is one named charge on a financial record.
type FeeItem struct {
	Name        string          `json:"name"`
	SubjectCode string          `json:"subject_code,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
}

// FeeItems is a jsonb-stored list of fee items.
type FeeItems []FeeItem

// Value implements driver.Valuer.
func (f FeeItems) Value() (driver.Value, error) {
	if f == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(f)
}

// Scan implements sql.Scanner.
func (f *FeeItems) Scan(src interface{}) error {
	if src == nil {
		*f = nil
		return nil
	}
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("fee items: unsupported type %T", src)
	}
	return json.Unmarshal(raw, f)
}

// Total sums the item amounts.
func (f FeeItems) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range f {
		total = total.Add(item.Amount)
	}
	return total
}

// FinancialRecord is the per-student-per-term ledger of charges and payments.
// Exactly one record exists per enrollment. Invariant after every mutation:
// remaining_balance = total_due - sum(payments.amount).
type FinancialRecord struct {
	ID                string                `db:"id" json:"id"`
	EnrollmentID      string                `db:"enrollment_id" json:"enrollment_id"`
	StudentID         string                `db:"student_id" json:"student_id"`
	AcademicYearID    string                `db:"academic_year_id" json:"academic_year_id"`
	SemesterID        string                `db:"semester_id" json:"semester_id"`
	PerUnitFee        decimal.Decimal       `db:"per_unit_fee" json:"per_unit_fee"`
	TotalUnits        int                   `db:"total_units" json:"total_units"`
	TuitionTotal      decimal.Decimal       `db:"tuition_total" json:"tuition_total"`
	MiscellaneousFees FeeItems              `db:"miscellaneous_fees" json:"miscellaneous_fees"`
	LaboratoryFees    FeeItems              `db:"laboratory_fees" json:"laboratory_fees"`
	Discounts         decimal.Decimal       `db:"discounts" json:"discounts"`
	Scholarship       decimal.Decimal       `db:"scholarship" json:"scholarship"`
	TotalDue          decimal.Decimal       `db:"total_due" json:"total_due"`
	RemainingBalance  decimal.Decimal       `db:"remaining_balance" json:"remaining_balance"`
	Status            FinancialRecordStatus `db:"status" json:"status"`
	CreatedAt         time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time             `db:"updated_at" json:"updated_at"`
}

// Payment is one posted payment against a financial record.
type Payment struct {
	ID                string          `db:"id" json:"id"`
	FinancialRecordID string          `db:"financial_record_id" json:"financial_record_id"`
	ReceiptNumber     string          `db:"receipt_number" json:"receipt_number"`
	PaidAt            time.Time       `db:"paid_at" json:"paid_at"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	Method            string          `db:"method" json:"method"`
	ReceivedBy        string          `db:"received_by" json:"received_by"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

// Receipt is a read-only projection of one payment plus record metadata.
// Repeated generations of the same receipt return identical content.
type Receipt struct {
	ReceiptNumber    string          `json:"receipt_number"`
	PaidAt           time.Time       `json:"paid_at"`
	Amount           decimal.Decimal `json:"amount"`
	Method           string          `json:"method"`
	ReceivedBy       string          `json:"received_by"`
	StudentID        string          `json:"student_id"`
	StudentName      string          `json:"student_name"`
	AcademicYear     string          `json:"academic_year"`
	Semester         string          `json:"semester"`
	TotalDue         decimal.Decimal `json:"total_due"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
}

// BalanceSettled is emitted by the ledger once a record's remaining balance
// reaches zero or below. The enrollment lifecycle consumes it to auto-approve
// a still-pending enrollment; the ledger itself knows nothing about
// enrollment state.
type BalanceSettled struct {
	FinancialRecordID string
	EnrollmentID      string
	StudentID         string
	SettledBy         string
	SettledAt         time.Time
}
