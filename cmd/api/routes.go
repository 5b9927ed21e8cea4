package main

import (
	"context"
	"net/http"

	"commerce-calls/internal/httpapi"
	"commerce-calls/internal/rbac"

	"github.com/gin-gonic/gin"
)

type routeOptions struct {
	Auth        gin.HandlerFunc
	CreditLimit gin.HandlerFunc
	DBHealth    func(context.Context) error
	// EnforceCreditCap guards the signaling upgrade with CreditLimit. Off when calls are free.
	EnforceCreditCap bool
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, opts routeOptions) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if opts.DBHealth != nil {
			if err := opts.DBHealth(c.Request.Context()); err != nil {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	// Token issuance for local development only; the handler 404s elsewhere.
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(opts.Auth, rbac.RequireTenant())
	{
		v1.GET("/me", h.Me)

		// CALLS routes
		callsGroup := v1.Group("/calls")
		callsGroup.Use(rbac.RequireAnyRole(rbac.CallRoles...))
		{
			signalChain := []gin.HandlerFunc{}
			if opts.EnforceCreditCap {
				signalChain = append(signalChain, opts.CreditLimit)
			}
			callsGroup.GET("/signal", append(signalChain, h.Signal)...)
			callsGroup.GET("/settings", h.CallSettings)
			callsGroup.POST("/records", h.ReportRecord)
			callsGroup.GET("/records", h.ListRecords)
		}

		// Summaries are scoped to the caller unless the role may see the whole tenant.
		v1.GET("/calls/summary",
			rbac.RequireAnyRole(rbac.RoleCustomer, rbac.RoleMerchant, rbac.RoleAgent, rbac.RoleFinance),
			h.CallsSummary)

		// BILLING routes
		billingGroup := v1.Group("/billing")
		{
			billingGroup.GET("/balance", rbac.RequireAnyRole(rbac.CallRoles...), h.GetBalance)
			billingGroup.GET("/ledger", rbac.RequireAnyRole(rbac.RoleMerchant, rbac.RoleFinance), h.Ledger)
			billingGroup.GET("/spend", rbac.RequireAnyRole(rbac.RoleMerchant, rbac.RoleFinance), h.SpendSummary)
		}

		// ADMIN routes
		// Hidden trust_safety is intentionally NOT included.
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleFinance, rbac.RoleSuperAdmin))
		{
			admin.POST("/billing/credits", h.AdminCredit)
		}
	}
}
