package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-registrar-api/internal/models"
	"github.com/noah-isme/sis-registrar-api/pkg/config"
	appErrors "github.com/noah-isme/sis-registrar-api/pkg/errors"
	"github.com/noah-isme/sis-registrar-api/pkg/export"
)

type financeRepository interface {
	FindByID(ctx context.Context, id string) (*models.FinancialRecord, error)
	FindByEnrollment(ctx context.Context, enrollmentID string) (*models.FinancialRecord, error)
	ListPayments(ctx context.Context, recordID string) ([]models.Payment, error)
	AddPayment(ctx context.Context, payment *models.Payment) (*models.FinancialRecord, error)
}

type studentDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type termCatalog interface {
	FindByID(ctx context.Context, id string) (*models.AcademicYear, error)
	FindSemesterByID(ctx context.Context, id string) (*models.Semester, error)
}

// settlementListener consumes balance-settled notifications. The ledger emits
// them after commit and never inspects enrollment state itself.
type settlementListener interface {
	OnBalanceSettled(ctx context.Context, event models.BalanceSettled)
}

// AddPaymentRequest describes payload for posting a payment.
type AddPaymentRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
	Method string          `json:"method" validate:"required,oneof=CASH CHECK BANK_TRANSFER ONLINE"`
}

// FinancialRecordDetail bundles a record with its payment history.
type FinancialRecordDetail struct {
	models.FinancialRecord
	Payments []models.Payment `json:"payments"`
}

// PaymentResult is the outcome of a posted payment. The receipt carries the
// balance right after this payment and can be reprinted later unchanged.
type PaymentResult struct {
	Payment *models.Payment         `json:"payment"`
	Record  *models.FinancialRecord `json:"record"`
	Receipt *models.Receipt         `json:"receipt"`
}

// FinanceService owns fee assessment and the payment ledger of enrollments.
type FinanceService struct {
	repo      financeRepository
	users     studentDirectory
	terms     termCatalog
	fees      config.FeesConfig
	exporter  *export.ReceiptPDFExporter
	listener  settlementListener
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFinanceService constructs FinanceService.
func NewFinanceService(repo financeRepository, users studentDirectory, terms termCatalog, fees config.FeesConfig, exporter *export.ReceiptPDFExporter, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *FinanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FinanceService{repo: repo, users: users, terms: terms, fees: fees, exporter: exporter, metrics: metrics, validator: validate, logger: logger}
}

// SetSettlementListener wires the consumer of balance-settled events. Wired
// at startup; not safe to call once requests are flowing.
func (s *FinanceService) SetSettlementListener(listener settlementListener) {
	s.listener = listener
}

// Assess prices a subject load into a fresh, unpaid financial record.
// Subjects without a declared unit count are billed at the default load.
func (s *FinanceService) Assess(subjects []models.Subject, isLate bool, penalty decimal.Decimal) *models.FinancialRecord {
	totalUnits := 0
	labFees := models.FeeItems{}
	for _, subject := range subjects {
		units := subject.TotalUnits
		if units == 0 {
			units = s.fees.DefaultUnits
		}
		totalUnits += units
		if subject.LabUnits > 0 {
			labFees = append(labFees, models.FeeItem{
				Name:        "Laboratory Fee",
				SubjectCode: subject.Code,
				Amount:      s.fees.LabUnitFee.Mul(decimal.NewFromInt(int64(subject.LabUnits))),
			})
		}
	}

	miscFees := models.FeeItems{
		{Name: "Registration Fee", Amount: s.fees.RegistrationFee},
		{Name: "Library Fee", Amount: s.fees.LibraryFee},
		{Name: "Computer Fee", Amount: s.fees.ComputerFee},
	}
	if isLate && penalty.Sign() > 0 {
		miscFees = append(miscFees, models.FeeItem{Name: "Late Enrollment", Amount: penalty})
	}

	tuition := s.fees.PerUnitFee.Mul(decimal.NewFromInt(int64(totalUnits)))
	totalDue := tuition.Add(miscFees.Total()).Add(labFees.Total())

	return &models.FinancialRecord{
		PerUnitFee:        s.fees.PerUnitFee,
		TotalUnits:        totalUnits,
		TuitionTotal:      tuition,
		MiscellaneousFees: miscFees,
		LaboratoryFees:    labFees,
		Discounts:         decimal.Zero,
		Scholarship:       decimal.Zero,
		TotalDue:          totalDue,
		RemainingBalance:  totalDue,
		Status:            models.FinancialRecordStatusUnpaid,
	}
}

// Reassess reprices an existing record for a changed subject load. Tuition
// and laboratory fees follow the new load; miscellaneous fees, discounts and
// already-posted payments are preserved, so the remaining balance is the new
// total due minus everything paid so far.
func (s *FinanceService) Reassess(record *models.FinancialRecord, subjects []models.Subject) *models.FinancialRecord {
	paid := record.TotalDue.Sub(record.RemainingBalance)

	fresh := s.Assess(subjects, false, decimal.Zero)
	record.TotalUnits = fresh.TotalUnits
	record.TuitionTotal = fresh.TuitionTotal
	record.LaboratoryFees = fresh.LaboratoryFees

	record.TotalDue = record.TuitionTotal.
		Add(record.MiscellaneousFees.Total()).
		Add(record.LaboratoryFees.Total()).
		Sub(record.Discounts).
		Sub(record.Scholarship)
	record.RemainingBalance = record.TotalDue.Sub(paid)

	switch {
	case record.RemainingBalance.Sign() <= 0:
		record.Status = models.FinancialRecordStatusPaid
	case paid.Sign() > 0:
		record.Status = models.FinancialRecordStatusPartial
	default:
		record.Status = models.FinancialRecordStatusUnpaid
	}
	return record
}

// Get loads a record with its payment history.
func (s *FinanceService) Get(ctx context.Context, id string) (*FinancialRecordDetail, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "financial record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load financial record")
	}
	return s.detail(ctx, record)
}

// GetByEnrollment loads the record attached to an enrollment.
func (s *FinanceService) GetByEnrollment(ctx context.Context, enrollmentID string) (*FinancialRecordDetail, error) {
	record, err := s.repo.FindByEnrollment(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "financial record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load financial record")
	}
	return s.detail(ctx, record)
}

// AddPayment posts a payment against a record. Overpayment is accepted and
// drives the balance negative; it is settled outside this service. When the
// balance reaches zero or below the settlement listener is notified after the
// transaction commits.
func (s *FinanceService) AddPayment(ctx context.Context, recordID string, req AddPaymentRequest, recordedBy string) (*PaymentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	if req.Amount.Sign() <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be greater than zero")
	}

	now := time.Now().UTC()
	payment := &models.Payment{
		FinancialRecordID: recordID,
		ReceiptNumber:     newReceiptNumber(now),
		PaidAt:            now,
		Amount:            req.Amount,
		Method:            req.Method,
		ReceivedBy:        recordedBy,
	}

	record, err := s.repo.AddPayment(ctx, payment)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "financial record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}

	if s.metrics != nil {
		s.metrics.RecordPaymentPosted()
	}
	s.logger.Info("payment posted",
		zap.String("financial_record_id", record.ID),
		zap.String("receipt_number", payment.ReceiptNumber),
		zap.String("amount", payment.Amount.String()),
		zap.String("remaining_balance", record.RemainingBalance.String()))

	if record.RemainingBalance.Sign() <= 0 && s.listener != nil {
		s.listener.OnBalanceSettled(ctx, models.BalanceSettled{
			FinancialRecordID: record.ID,
			EnrollmentID:      record.EnrollmentID,
			StudentID:         record.StudentID,
			SettledBy:         recordedBy,
			SettledAt:         payment.PaidAt,
		})
	}

	receipt := s.buildReceipt(ctx, record, payment, record.RemainingBalance)
	return &PaymentResult{Payment: payment, Record: record, Receipt: receipt}, nil
}

// Receipt rebuilds the receipt of one payment. The remaining balance shown is
// the balance immediately after that payment, so regenerating an old receipt
// yields the same content regardless of later postings.
func (s *FinanceService) Receipt(ctx context.Context, recordID, receiptNumber string) (*models.Receipt, error) {
	record, err := s.repo.FindByID(ctx, recordID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "financial record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load financial record")
	}

	payments, err := s.repo.ListPayments(ctx, recordID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}

	running := record.TotalDue
	var target *models.Payment
	for i := range payments {
		running = running.Sub(payments[i].Amount)
		if payments[i].ReceiptNumber == receiptNumber {
			target = &payments[i]
			break
		}
	}
	if target == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "receipt not found")
	}

	return s.buildReceipt(ctx, record, target, running), nil
}

// buildReceipt projects one payment into a receipt. Student and term names are
// enriched best-effort; a failed lookup leaves the field blank.
func (s *FinanceService) buildReceipt(ctx context.Context, record *models.FinancialRecord, payment *models.Payment, balanceAfter decimal.Decimal) *models.Receipt {
	receipt := &models.Receipt{
		ReceiptNumber:    payment.ReceiptNumber,
		PaidAt:           payment.PaidAt,
		Amount:           payment.Amount,
		Method:           payment.Method,
		ReceivedBy:       payment.ReceivedBy,
		StudentID:        record.StudentID,
		TotalDue:         record.TotalDue,
		RemainingBalance: balanceAfter,
	}

	if student, err := s.users.FindByID(ctx, record.StudentID); err == nil {
		receipt.StudentName = student.FullName
	}
	if year, err := s.terms.FindByID(ctx, record.AcademicYearID); err == nil {
		receipt.AcademicYear = year.Name
	}
	if semester, err := s.terms.FindSemesterByID(ctx, record.SemesterID); err == nil {
		receipt.Semester = semester.Name
	}
	return receipt
}

// ReceiptPDF renders a receipt as a printable PDF.
func (s *FinanceService) ReceiptPDF(ctx context.Context, recordID, receiptNumber string) ([]byte, error) {
	receipt, err := s.Receipt(ctx, recordID, receiptNumber)
	if err != nil {
		return nil, err
	}
	data, err := s.exporter.Render(*receipt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	return data, nil
}

func (s *FinanceService) detail(ctx context.Context, record *models.FinancialRecord) (*FinancialRecordDetail, error) {
	payments, err := s.repo.ListPayments(ctx, record.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	return &FinancialRecordDetail{FinancialRecord: *record, Payments: payments}, nil
}

// newReceiptNumber mints an official-receipt number unique per payment.
func newReceiptNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("OR-%s-%s", now.Format("20060102"), suffix)
}
