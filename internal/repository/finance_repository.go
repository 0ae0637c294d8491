package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sis-registrar-api/internal/models"
)

const financialRecordColumns = `id, enrollment_id, student_id, academic_year_id, semester_id,
        per_unit_fee, total_units, tuition_total, miscellaneous_fees, laboratory_fees, discounts, scholarship,
        total_due, remaining_balance, status, created_at, updated_at`

const paymentColumns = `id, financial_record_id, receipt_number, paid_at, amount, method, received_by, created_at`

// FinanceRepository handles persistence of financial records and payments.
type FinanceRepository struct {
	db *sqlx.DB
}

// NewFinanceRepository constructs the repository.
func NewFinanceRepository(db *sqlx.DB) *FinanceRepository {
	return &FinanceRepository{db: db}
}

// FindByID returns a financial record by its ID.
func (r *FinanceRepository) FindByID(ctx context.Context, id string) (*models.FinancialRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM financial_records WHERE id = $1`, financialRecordColumns)
	var record models.FinancialRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByEnrollment returns the record linked to an enrollment.
func (r *FinanceRepository) FindByEnrollment(ctx context.Context, enrollmentID string) (*models.FinancialRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM financial_records WHERE enrollment_id = $1`, financialRecordColumns)
	var record models.FinancialRecord
	if err := r.db.GetContext(ctx, &record, query, enrollmentID); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListPayments returns posted payments in posting order.
func (r *FinanceRepository) ListPayments(ctx context.Context, recordID string) ([]models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE financial_record_id = $1 ORDER BY created_at ASC, id ASC`, paymentColumns)
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, recordID); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// AddPayment appends the payment and recomputes the balance as one atomic
// read-modify-write: the record row is locked for the duration so concurrent
// postings cannot lose updates. The refreshed record is returned.
func (r *FinanceRepository) AddPayment(ctx context.Context, payment *models.Payment) (*models.FinancialRecord, error) {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if payment.PaidAt.IsZero() {
		payment.PaidAt = now
	}
	payment.CreatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin payment tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var record models.FinancialRecord
	lockQuery := fmt.Sprintf(`SELECT %s FROM financial_records WHERE id = $1 FOR UPDATE`, financialRecordColumns)
	if err = tx.GetContext(ctx, &record, lockQuery, payment.FinancialRecordID); err != nil {
		return nil, err
	}

	const paymentInsert = `INSERT INTO payments (id, financial_record_id, receipt_number, paid_at, amount, method, received_by, created_at)
        VALUES (:id, :financial_record_id, :receipt_number, :paid_at, :amount, :method, :received_by, :created_at)`
	if _, err = tx.NamedExecContext(ctx, paymentInsert, payment); err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}

	var paid decimal.Decimal
	if err = tx.GetContext(ctx, &paid, `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE financial_record_id = $1`, payment.FinancialRecordID); err != nil {
		return nil, fmt.Errorf("sum payments: %w", err)
	}

	record.RemainingBalance = record.TotalDue.Sub(paid)
	record.Status = deriveRecordStatus(record.RemainingBalance, paid)
	record.UpdatedAt = now

	const recordUpdate = `UPDATE financial_records SET remaining_balance = $2, status = $3, updated_at = $4 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, recordUpdate, record.ID, record.RemainingBalance, record.Status, record.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update financial record balance: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit payment tx: %w", err)
	}
	return &record, nil
}

func deriveRecordStatus(remaining, paid decimal.Decimal) models.FinancialRecordStatus {
	switch {
	case remaining.Sign() <= 0:
		return models.FinancialRecordStatusPaid
	case paid.Sign() > 0:
		return models.FinancialRecordStatusPartial
	default:
		return models.FinancialRecordStatusUnpaid
	}
}
