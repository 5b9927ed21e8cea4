package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) valid() bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

// CallsSummaryRequest requests aggregated call outcomes.
// Tenant isolation: TenantID is required. UserID narrows to one participant's history.
type CallsSummaryRequest struct {
	TenantID string    `json:"tenant_id"`
	UserID   string    `json:"user_id,omitempty"`
	Range    TimeRange `json:"range"`
}

// CallsSummary counts calls by outcome. Tenant-wide summaries count each call once even
// though both participants store a record of it.
type CallsSummary struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id,omitempty"`

	TotalCalls     int `json:"total_calls"`
	AnsweredCalls  int `json:"answered_calls"`
	MissedCalls    int `json:"missed_calls"`
	RejectedCalls  int `json:"rejected_calls"`
	CancelledCalls int `json:"cancelled_calls"`
	FailedCalls    int `json:"failed_calls"`

	VoiceCalls int `json:"voice_calls"`
	VideoCalls int `json:"video_calls"`

	TotalDurationSeconds           int     `json:"total_duration_seconds"`
	AverageAnsweredDurationSeconds int     `json:"average_answered_duration_seconds"`
	AnswerRate                     float64 `json:"answer_rate"`
}

// SpendSummaryRequest requests aggregated call spend from the billing ledger.
type SpendSummaryRequest struct {
	TenantID  string    `json:"tenant_id"`
	Range     TimeRange `json:"range"`
	AccountID string    `json:"account_id,omitempty"`
	Currency  string    `json:"currency,omitempty"`
}

type SpendSummary struct {
	TenantID  string `json:"tenant_id"`
	AccountID string `json:"account_id,omitempty"`
	Currency  string `json:"currency"`

	TotalDebitMinor  int64 `json:"total_debit_minor"`
	TotalCreditMinor int64 `json:"total_credit_minor"`
	NetDeltaMinor    int64 `json:"net_delta_minor"`

	CallChargeMinor  int64 `json:"call_charge_minor"`
	ChargedCalls     int   `json:"charged_calls"`
	AdminAdjustMinor int64 `json:"admin_adjust_minor"`
}
