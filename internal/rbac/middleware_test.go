package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"commerce-calls/internal/auth"

	"github.com/gin-gonic/gin"
)

func serve(t *testing.T, tenantID, role string, allowed ...string) int {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u", tenantID, role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, RequireTenant(), RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(200)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole_SuperAdminBypasses(t *testing.T) {
	if code := serve(t, "m", RoleSuperAdmin, RoleMerchant); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_HiddenRoleDeniedUnlessAllowed(t *testing.T) {
	if code := serve(t, "m", RoleTrustSafety, RoleMerchant); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
	if code := serve(t, "m", RoleTrustSafety, RoleMerchant, RoleTrustSafety); code != 200 {
		t.Fatalf("expected 200 when explicitly allowed, got %d", code)
	}
}

func TestRequireAnyRole_CallRoles(t *testing.T) {
	if code := serve(t, "m", RoleCustomer, CallRoles...); code != 200 {
		t.Fatalf("expected customer allowed, got %d", code)
	}
	if code := serve(t, "m", RoleFinance, CallRoles...); code != 403 {
		t.Fatalf("expected finance denied, got %d", code)
	}
}

func TestRequireTenant(t *testing.T) {
	if code := serve(t, "", RoleMerchant, RoleMerchant); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}
