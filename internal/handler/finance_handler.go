package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sis-registrar-api/internal/service"
	appErrors "github.com/noah-isme/sis-registrar-api/pkg/errors"
	"github.com/noah-isme/sis-registrar-api/pkg/response"
)

// FinanceHandler exposes financial record and payment endpoints.
type FinanceHandler struct {
	finance *service.FinanceService
}

// NewFinanceHandler constructs FinanceHandler.
func NewFinanceHandler(finance *service.FinanceService) *FinanceHandler {
	return &FinanceHandler{finance: finance}
}

// Get godoc
// @Summary Get financial record with payment history
// @Tags Finance
// @Produce json
// @Param id path string true "Financial record ID"
// @Success 200 {object} response.Envelope
// @Router /financial-records/{id} [get]
func (h *FinanceHandler) Get(c *gin.Context) {
	detail, err := h.finance.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// GetByEnrollment godoc
// @Summary Get the financial record of an enrollment
// @Tags Finance
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/financial-record [get]
func (h *FinanceHandler) GetByEnrollment(c *gin.Context) {
	detail, err := h.finance.GetByEnrollment(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// AddPayment godoc
// @Summary Record a payment
// @Description Posts a payment, recomputes the balance and returns the receipt number. Settling the balance auto-approves a pending enrollment.
// @Tags Finance
// @Accept json
// @Produce json
// @Param id path string true "Financial record ID"
// @Param payload body service.AddPaymentRequest true "Payment payload"
// @Success 201 {object} response.Envelope
// @Router /financial-records/{id}/payments [post]
func (h *FinanceHandler) AddPayment(c *gin.Context) {
	var req service.AddPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	result, err := h.finance.AddPayment(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Receipt godoc
// @Summary Regenerate a payment receipt
// @Description Returns the receipt as JSON, or as PDF when format=pdf. Regenerating the same receipt always yields the same content.
// @Tags Finance
// @Produce json
// @Produce application/pdf
// @Param id path string true "Financial record ID"
// @Param receiptNumber path string true "Receipt number"
// @Param format query string false "json or pdf"
// @Success 200 {object} response.Envelope
// @Router /financial-records/{id}/receipts/{receiptNumber} [get]
func (h *FinanceHandler) Receipt(c *gin.Context) {
	recordID := c.Param("id")
	receiptNumber := c.Param("receiptNumber")

	if c.Query("format") == "pdf" {
		data, err := h.finance.ReceiptPDF(c.Request.Context(), recordID, receiptNumber)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", receiptNumber))
		c.Data(http.StatusOK, "application/pdf", data)
		return
	}

	receipt, err := h.finance.Receipt(c.Request.Context(), recordID, receiptNumber)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, receipt, nil)
}
