package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"commerce-calls/internal/auth"
	"commerce-calls/internal/billing"
	"commerce-calls/internal/config"
	"commerce-calls/internal/rbac"
	"commerce-calls/internal/records"
	"commerce-calls/internal/reporting"
	"commerce-calls/internal/signaling"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Manager
	Hub       *signaling.Hub
	Records   *records.Service
	Billing   *billing.Service
	Reporting *reporting.Service
	// Timers are handed to call agents so every client rings and dials for the same time.
	Timers config.CallsConfig

	// DevLogin enables POST /v1/auth/login without credentials. Never set in production.
	DevLogin bool
	Upgrader websocket.Upgrader
}

// --- Auth ---

type loginRequest struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// Login issues a JWT token pair for local development.
func (h Handlers) Login(c *gin.Context) {
	if !h.DevLogin {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.TenantID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, tenant_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.TenantID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

func (h Handlers) Me(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	tid, _ := auth.TenantID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "tenant_id": tid, "role": role})
}

// identity reads the authenticated caller. It aborts with 401 when incomplete.
func identity(c *gin.Context) (signaling.Identity, bool) {
	ctx := c.Request.Context()
	tid, err := auth.TenantID(ctx)
	if err != nil || tid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return signaling.Identity{}, false
	}
	uid, err := auth.UserID(ctx)
	if err != nil || uid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return signaling.Identity{}, false
	}
	role, _ := auth.Role(ctx)
	return signaling.Identity{TenantID: tid, UserID: uid, Role: role}, true
}

// timeRange parses from/to as RFC 3339. Missing bounds default to the last 30 days.
func timeRange(c *gin.Context, now time.Time) (reporting.TimeRange, error) {
	r := reporting.TimeRange{From: now.Add(-30 * 24 * time.Hour), To: now}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return r, errors.New("from must be RFC 3339")
		}
		r.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return r, errors.New("to must be RFC 3339")
		}
		r.To = t
	}
	return r, nil
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// Convenience middleware bundles.

func RequireTenantAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireTenant(), rbac.RequireAnyRole(roles...)}
}
