package httpapi

import (
	"errors"
	"net/http"
	"time"

	"commerce-calls/internal/rbac"
	"commerce-calls/internal/records"
	"commerce-calls/internal/reporting"
	"commerce-calls/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Signal upgrades to the signaling websocket. Identity comes from the access token only;
// the relay stamps it on every message the connection sends.
func (h Handlers) Signal(c *gin.Context) {
	if h.Hub == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "signaling not configured"})
		return
	}
	ident, ok := identity(c)
	if !ok {
		return
	}
	ws, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		logger.FromGin(c).Debug("websocket upgrade failed", "err", err)
		return
	}
	if err := h.Hub.Serve(c.Request.Context(), ws, ident); err != nil {
		logger.FromGin(c).Debug("signaling connection closed", "err", err)
	}
}

// CallSettings returns the session timers clients should use.
func (h Handlers) CallSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"dial_timeout_seconds": int(h.Timers.DialTimeout / time.Second),
		"ring_timeout_seconds": int(h.Timers.RingTimeout / time.Second),
	})
}

// ReportRecord stores the caller's own record of a finished call.
func (h Handlers) ReportRecord(c *gin.Context) {
	if h.Records == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "records not configured"})
		return
	}
	ident, ok := identity(c)
	if !ok {
		return
	}
	var req records.ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Record.Timestamp.IsZero() {
		req.Record.Timestamp = time.Now().UTC()
	}

	owner := records.Owner{TenantID: ident.TenantID, UserID: ident.UserID}
	e, created, err := h.Records.Record(c.Request.Context(), owner, req.PeerUserID, req.Record)
	switch {
	case errors.Is(err, records.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil && e.ID == "":
		logger.FromGin(c).Error("record call failed", "call_id", req.Record.CallID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "record failed"})
		return
	case err != nil:
		// Stored, but the charge did not post. Reporting again retries it.
		logger.FromGin(c).Error("call charge failed", "call_id", e.CallID, "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "charge failed", "record": e})
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, e)
}

func (h Handlers) ListRecords(c *gin.Context) {
	if h.Records == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "records not configured"})
		return
	}
	ident, ok := identity(c)
	if !ok {
		return
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})
		return
	}
	rows, err := h.Records.List(c.Request.Context(),
		records.Owner{TenantID: ident.TenantID, UserID: ident.UserID},
		records.ListFilter{PeerUserID: c.Query("peer_id"), Limit: limit})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": rows})
}

// CallsSummary aggregates outcomes tenant-wide, or for user_id when given. Call roles
// only ever see their own history.
func (h Handlers) CallsSummary(c *gin.Context) {
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
	userID := c.Query("user_id")
	switch ident.Role {
	case rbac.RoleMerchant, rbac.RoleFinance, rbac.RoleSuperAdmin:
	default:
		userID = ident.UserID
	}

	sum, err := h.Reporting.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		TenantID: ident.TenantID,
		UserID:   userID,
		Range:    rng,
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
