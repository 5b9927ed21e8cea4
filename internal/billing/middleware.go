package billing

import (
	"context"
	"net/http"

	"commerce-calls/internal/auth"
	"commerce-calls/internal/rbac"

	"github.com/gin-gonic/gin"
)

// BalanceService is the minimal billing interface needed by middleware.
type BalanceService interface {
	GetBalance(ctx context.Context, tenantID, accountID string) (Balance, error)
}

// RequireCreditLimit blocks callers whose post-paid debt exceeds limitMinor. It guards the
// signaling upgrade, so an account over its limit cannot place new calls while calls
// already in progress finish normally.
//
// super_admin and the hidden trust_safety role bypass.
func RequireCreditLimit(svc BalanceService, limitMinor int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := auth.Role(c.Request.Context())
		if rbac.IsSuperAdmin(role) || role == rbac.RoleTrustSafety {
			c.Next()
			return
		}

		tenantID, err := auth.TenantID(c.Request.Context())
		if err != nil || tenantID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
			return
		}
		userID, err := auth.UserID(c.Request.Context())
		if err != nil || userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
			return
		}

		bal, err := svc.GetBalance(c.Request.Context(), tenantID, userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "balance lookup failed"})
			return
		}
		if bal.BalanceMinor < -limitMinor {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "credit limit exceeded"})
			return
		}

		c.Next()
	}
}
