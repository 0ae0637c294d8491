package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sis-registrar-api/internal/models"
)

func financialRecordRows(id string, totalDue, remaining int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "enrollment_id", "student_id", "academic_year_id", "semester_id",
		"per_unit_fee", "total_units", "tuition_total", "miscellaneous_fees", "laboratory_fees", "discounts", "scholarship",
		"total_due", "remaining_balance", "status", "created_at", "updated_at"}).
		AddRow(id, "e-1", "s-1", "ay-1", "sem-1",
			"1000", 6, "6000", []byte(`[]`), []byte(`[]`), "0", "0",
			decimal.NewFromInt(totalDue).String(), decimal.NewFromInt(remaining).String(), "PARTIAL", now, now)
}

func TestFinanceRepositoryAddPayment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewFinanceRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM financial_records WHERE id = $1 FOR UPDATE")).
		WithArgs("fr-1").
		WillReturnRows(financialRecordRows("fr-1", 7800, 4800))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(amount), 0) FROM payments")).
		WithArgs("fr-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("7800"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE financial_records SET remaining_balance =")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payment := &models.Payment{
		FinancialRecordID: "fr-1",
		ReceiptNumber:     "OR-20260901-AAAA1111",
		Amount:            decimal.NewFromInt(4800),
		Method:            "CASH",
		ReceivedBy:        "cashier-1",
	}
	record, err := repo.AddPayment(context.Background(), payment)
	require.NoError(t, err)
	require.NotEmpty(t, payment.ID)
	require.True(t, record.RemainingBalance.IsZero())
	require.Equal(t, models.FinancialRecordStatusPaid, record.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinanceRepositoryAddPaymentRollsBackOnInsertFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewFinanceRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM financial_records WHERE id = $1 FOR UPDATE")).
		WithArgs("fr-1").
		WillReturnRows(financialRecordRows("fr-1", 7800, 4800))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	payment := &models.Payment{FinancialRecordID: "fr-1", Amount: decimal.NewFromInt(100), Method: "CASH"}
	_, err := repo.AddPayment(context.Background(), payment)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
