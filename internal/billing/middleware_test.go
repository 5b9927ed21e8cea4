package billing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"commerce-calls/internal/auth"
	"commerce-calls/internal/rbac"

	"github.com/gin-gonic/gin"
)

type fakeBalanceService struct {
	bal Balance
	err error
}

func (f fakeBalanceService) GetBalance(ctx context.Context, tenantID, accountID string) (Balance, error) {
	return f.bal, f.err
}

func serveLimited(svc BalanceService, role string, limit int64) int {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u1", "mkt", role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, RequireCreditLimit(svc, limit), func(c *gin.Context) {
		c.Status(200)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	return w.Code
}

func TestRequireCreditLimit_BlocksOverLimit(t *testing.T) {
	svc := fakeBalanceService{bal: Balance{TenantID: "mkt", AccountID: "u1", Currency: "USD", BalanceMinor: -501}}
	if code := serveLimited(svc, rbac.RoleCustomer, 500); code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", code)
	}
}

func TestRequireCreditLimit_AllowsWithinLimit(t *testing.T) {
	svc := fakeBalanceService{bal: Balance{TenantID: "mkt", AccountID: "u1", Currency: "USD", BalanceMinor: -500}}
	if code := serveLimited(svc, rbac.RoleCustomer, 500); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireCreditLimit_AllowsAdminOverride(t *testing.T) {
	svc := fakeBalanceService{bal: Balance{BalanceMinor: -1_000_000}}
	if code := serveLimited(svc, rbac.RoleSuperAdmin, 0); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireCreditLimit_LookupFailure(t *testing.T) {
	svc := fakeBalanceService{err: ErrCurrencyMismatch}
	if code := serveLimited(svc, rbac.RoleMerchant, 0); code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", code)
	}
}
