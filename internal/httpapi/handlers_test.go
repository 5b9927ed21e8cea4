package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"commerce-calls/internal/audit"
	"commerce-calls/internal/auth"
	"commerce-calls/internal/billing"
	"commerce-calls/internal/calls"
	"commerce-calls/internal/config"
	"commerce-calls/internal/rbac"
	"commerce-calls/internal/records"
	"commerce-calls/internal/reporting"
	"commerce-calls/internal/signaling"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type testAPI struct {
	h      Handlers
	audits *audit.MemoryRepo
	router *gin.Engine
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	recRepo := records.NewMemoryRepo()
	billRepo := billing.NewMemoryRepo()
	audits := audit.NewMemoryRepo()

	bill := billing.NewService(billRepo, billing.Rate{PerMinuteMinor: 25, Currency: "USD"}).
		WithAuditor(audit.NewService(audits))
	api := &testAPI{
		h: Handlers{
			Records:   records.NewService(recRepo).WithCharger(bill),
			Billing:   bill,
			Reporting: reporting.NewService(reporting.Stores{Records: recRepo, Billing: billRepo}),
		},
		audits: audits,
	}

	r := gin.New()
	as := func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), c.GetHeader("X-User"), c.GetHeader("X-Tenant"), c.GetHeader("X-Role"))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
	v1 := r.Group("/v1", as)
	v1.POST("/calls/records", api.h.ReportRecord)
	v1.GET("/calls/records", api.h.ListRecords)
	v1.GET("/calls/summary", api.h.CallsSummary)
	v1.GET("/billing/balance", api.h.GetBalance)
	v1.GET("/billing/ledger", api.h.Ledger)
	v1.GET("/billing/spend", api.h.SpendSummary)
	v1.POST("/admin/billing/credits", append(RequireTenantAndAnyRole(rbac.RoleFinance, rbac.RoleSuperAdmin), api.h.AdminCredit)...)
	v1.POST("/auth/login", api.h.Login)
	api.router = r
	return api
}

func (a *testAPI) do(t *testing.T, method, path, user, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User", user)
	req.Header.Set("X-Tenant", "mkt")
	req.Header.Set("X-Role", role)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func answered(callID string, dir calls.Direction, secs int) calls.Record {
	return calls.Record{
		CallID:          callID,
		CallType:        calls.CallTypeVoice,
		Status:          calls.StatusAnswered,
		Direction:       dir,
		DurationSeconds: secs,
		Timestamp:       time.Now().UTC().Add(-time.Minute),
	}
}

func TestReportRecord_StoresOnceAndCharges(t *testing.T) {
	api := newTestAPI(t)
	body := records.ReportRequest{PeerUserID: "merchant-1", Record: answered("c1", calls.DirectionOutgoing, 125)}

	if w := api.do(t, http.MethodPost, "/v1/calls/records", "cust-1", rbac.RoleCustomer, body); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if w := api.do(t, http.MethodPost, "/v1/calls/records", "cust-1", rbac.RoleCustomer, body); w.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d", w.Code)
	}

	w := api.do(t, http.MethodGet, "/v1/billing/balance", "cust-1", rbac.RoleCustomer, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("balance: %d", w.Code)
	}
	var bal billing.Balance
	if err := json.Unmarshal(w.Body.Bytes(), &bal); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if bal.BalanceMinor != -75 || bal.Currency != "USD" {
		t.Fatalf("expected -75 USD after one charge, got %+v", bal)
	}
}

func TestReportRecord_RejectsInvalid(t *testing.T) {
	api := newTestAPI(t)
	cases := []any{
		records.ReportRequest{PeerUserID: "", Record: answered("c1", calls.DirectionOutgoing, 10)},
		records.ReportRequest{PeerUserID: "cust-1", Record: answered("c1", calls.DirectionOutgoing, 10)},
		records.ReportRequest{PeerUserID: "m", Record: calls.Record{CallID: "c1", CallType: "fax", Status: calls.StatusMissed, Direction: calls.DirectionIncoming}},
	}
	for i, body := range cases {
		if w := api.do(t, http.MethodPost, "/v1/calls/records", "cust-1", rbac.RoleCustomer, body); w.Code != http.StatusBadRequest {
			t.Fatalf("case %d: expected 400, got %d", i, w.Code)
		}
	}
}

func TestListRecords_OnlyOwnHistory(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodPost, "/v1/calls/records", "cust-1", rbac.RoleCustomer,
		records.ReportRequest{PeerUserID: "merchant-1", Record: answered("c1", calls.DirectionOutgoing, 30)})
	api.do(t, http.MethodPost, "/v1/calls/records", "merchant-1", rbac.RoleMerchant,
		records.ReportRequest{PeerUserID: "cust-1", Record: answered("c1", calls.DirectionIncoming, 30)})

	w := api.do(t, http.MethodGet, "/v1/calls/records?peer_id=merchant-1", "cust-1", rbac.RoleCustomer, nil)
	var out struct {
		Records []records.Entry `json:"records"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Records) != 1 || out.Records[0].OwnerUserID != "cust-1" {
		t.Fatalf("unexpected records: %+v", out.Records)
	}

	if w := api.do(t, http.MethodGet, "/v1/calls/records?limit=x", "cust-1", rbac.RoleCustomer, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestCallsSummary_CustomersSeeOnlyThemselves(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodPost, "/v1/calls/records", "cust-1", rbac.RoleCustomer,
		records.ReportRequest{PeerUserID: "merchant-1", Record: answered("c1", calls.DirectionOutgoing, 30)})
	api.do(t, http.MethodPost, "/v1/calls/records", "merchant-1", rbac.RoleMerchant,
		records.ReportRequest{PeerUserID: "cust-1", Record: answered("c1", calls.DirectionIncoming, 30)})
	api.do(t, http.MethodPost, "/v1/calls/records", "cust-2", rbac.RoleCustomer,
		records.ReportRequest{PeerUserID: "merchant-1", Record: calls.Record{
			CallID: "c2", CallType: calls.CallTypeVideo, Status: calls.StatusCancelled,
			Direction: calls.DirectionOutgoing, Timestamp: time.Now().UTC().Add(-time.Minute),
		}})

	var sum reporting.CallsSummary
	w := api.do(t, http.MethodGet, "/v1/calls/summary?user_id=merchant-1", "cust-1", rbac.RoleCustomer, nil)
	if err := json.Unmarshal(w.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.UserID != "cust-1" || sum.TotalCalls != 1 {
		t.Fatalf("customer summary must be scoped to self: %+v", sum)
	}

	w = api.do(t, http.MethodGet, "/v1/calls/summary", "merchant-1", rbac.RoleMerchant, nil)
	sum = reporting.CallsSummary{}
	if err := json.Unmarshal(w.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.TotalCalls != 2 || sum.AnsweredCalls != 1 || sum.CancelledCalls != 1 {
		t.Fatalf("tenant summary must count each call once: %+v", sum)
	}

	if w := api.do(t, http.MethodGet, "/v1/calls/summary?from=yesterday", "merchant-1", rbac.RoleMerchant, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad from, got %d", w.Code)
	}
}

func TestAdminCredit_RBACAndAudit(t *testing.T) {
	api := newTestAPI(t)
	body := adminCreditRequest{AccountID: "cust-1", AmountMinor: 500, Currency: "USD", IdempotencyKey: "k1"}

	if w := api.do(t, http.MethodPost, "/v1/admin/billing/credits", "cust-1", rbac.RoleCustomer, body); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer, got %d", w.Code)
	}
	for i := 0; i < 2; i++ {
		if w := api.do(t, http.MethodPost, "/v1/admin/billing/credits", "fin-1", rbac.RoleFinance, body); w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
	}
	if n := len(api.audits.Events()); n != 1 {
		t.Fatalf("expected one audit event for a replayed credit, got %d", n)
	}

	bad := body
	bad.Currency = "EUR"
	bad.IdempotencyKey = "k2"
	if w := api.do(t, http.MethodPost, "/v1/admin/billing/credits", "fin-1", rbac.RoleFinance, bad); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for currency mismatch, got %d", w.Code)
	}

	w := api.do(t, http.MethodGet, "/v1/billing/ledger?account_id=cust-1", "fin-1", rbac.RoleFinance, nil)
	var out struct {
		Entries []billing.LedgerEntry `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Entries) != 1 || out.Entries[0].AmountMinor != 500 {
		t.Fatalf("unexpected ledger: %+v", out.Entries)
	}
}

func TestSpendSummary(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodPost, "/v1/calls/records", "cust-1", rbac.RoleCustomer,
		records.ReportRequest{PeerUserID: "merchant-1", Record: answered("c1", calls.DirectionOutgoing, 60)})

	w := api.do(t, http.MethodGet, "/v1/billing/spend", "fin-1", rbac.RoleFinance, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var sum reporting.SpendSummary
	if err := json.Unmarshal(w.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.CallChargeMinor != 25 || sum.ChargedCalls != 1 {
		t.Fatalf("unexpected spend: %+v", sum)
	}
}

func TestLogin_DisabledByDefault(t *testing.T) {
	api := newTestAPI(t)
	body := loginRequest{UserID: "u1", TenantID: "mkt", Role: rbac.RoleCustomer}
	if w := api.do(t, http.MethodPost, "/v1/auth/login", "", "", body); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestSignal_UpgradesAndRelays(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		JWTIssuer:       "issuer",
		JWTAudience:     "aud",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	bus := signaling.NewMemoryBus()
	hub, err := signaling.NewHub(signaling.Options{
		Bus:      bus,
		Presence: signaling.NewMemoryPresence(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("hub: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	h := Handlers{Auth: m, Hub: hub}
	r := gin.New()
	r.GET("/v1/calls/signal", append([]gin.HandlerFunc{auth.RequireAccessToken(m)},
		append(RequireTenantAndAnyRole(rbac.CallRoles...), h.Signal)...)...)
	srv := httptest.NewServer(r)
	defer srv.Close()

	dial := func(user, role string) *websocket.Conn {
		pair, err := m.IssuePair(time.Now(), user, "mkt", role)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/calls/signal?access_token=" + pair.AccessToken
		ws, resp, err := websocket.DefaultDialer.Dial(u, nil)
		if err != nil {
			code := 0
			if resp != nil {
				code = resp.StatusCode
			}
			t.Fatalf("dial %s: %v (status %d)", user, err, code)
		}
		return ws
	}

	if _, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/calls/signal", nil); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token")
	}

	alice := dial("alice", rbac.RoleCustomer)
	defer alice.Close()
	bob := dial("bob", rbac.RoleMerchant)
	defer bob.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Connections("mkt", "bob") == 0 || hub.Connections("mkt", "alice") == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("connections not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := alice.WriteJSON(calls.Message{Type: calls.MessageOffer, CallID: "c1", ToUserID: "bob", CallType: calls.CallTypeVoice, SDP: "v=0"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = bob.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got calls.Message
	if err := bob.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.FromUserID != "alice" || got.CallID != "c1" {
		t.Fatalf("unexpected message: %+v", got)
	}
}
