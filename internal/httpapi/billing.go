package httpapi

import (
	"errors"
	"net/http"
	"time"

	"commerce-calls/internal/auth"
	"commerce-calls/internal/billing"
	"commerce-calls/internal/reporting"

	"github.com/gin-gonic/gin"
)

func (h Handlers) GetBalance(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	ident, ok := identity(c)
	if !ok {
		return
	}
	bal, err := h.Billing.GetBalance(c.Request.Context(), ident.TenantID, ident.UserID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "balance lookup failed"})
		return
	}
	c.JSON(http.StatusOK, bal)
}

func (h Handlers) SpendSummary(c *gin.Context) {
	if h.Reporting == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	ident, ok := identity(c)
	if !ok {
		return
	}
	rng, err := timeRange(c, time.Now().UTC())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sum, err := h.Reporting.SpendSummary(c.Request.Context(), reporting.SpendSummaryRequest{
		TenantID:  ident.TenantID,
		Range:     rng,
		AccountID: c.Query("account_id"),
		Currency:  c.Query("currency"),
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// Ledger lists postings for the tenant, optionally narrowed to account_id.
func (h Handlers) Ledger(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	ident, ok := identity(c)
	if !ok {
		return
	}
	rng, err := timeRange(c, time.Now().UTC())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rows, err := h.Billing.Ledger(c.Request.Context(), ident.TenantID, rng.From, rng.To, c.Query("account_id"))
	if errors.Is(err, billing.ErrInvalidArgument) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "ledger lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": rows})
}

type adminCreditRequest struct {
	AccountID string `json:"account_id"`

	AmountMinor    int64  `json:"amount_minor"`
	Currency       string `json:"currency"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
	Metadata       string `json:"metadata,omitempty"`
}

// AdminCredit credits a user's call account.
// RBAC: finance or super_admin.
func (h Handlers) AdminCredit(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	ident, ok := identity(c)
	if !ok {
		return
	}
	role, _ := auth.Role(c.Request.Context())

	var req adminCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.AccountID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "account_id required"})
		return
	}

	actor := billing.Actor{UserID: ident.UserID, Role: role, IP: c.ClientIP()}
	_, bal, err := h.Billing.AdminCredit(c.Request.Context(), ident.TenantID, req.AccountID, actor, billing.CreditRequest{
		AmountMinor:    req.AmountMinor,
		Currency:       req.Currency,
		ExternalRef:    req.Reason,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	})
	switch {
	case errors.Is(err, billing.ErrInvalidArgument), errors.Is(err, billing.ErrCurrencyMismatch):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "credit failed"})
		return
	}
	c.JSON(http.StatusOK, bal)
}
