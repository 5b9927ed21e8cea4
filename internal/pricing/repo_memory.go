package pricing

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"commerce-calls/internal/calls"
)

// MemoryRepo holds plans loaded at startup. Plans change by redeploying the file.
type MemoryRepo struct {
	Plans []Plan
}

func (r *MemoryRepo) FindPlan(_ context.Context, tenantID string, callType calls.CallType, at time.Time) (Plan, bool, error) {
	// Prefer the most recent effective plan; a tenant plan beats the "*" default.
	var best Plan
	found := false
	for _, p := range r.Plans {
		if p.TenantID != tenantID && p.TenantID != "*" {
			continue
		}
		if p.CallType != callType || !p.effectiveAt(at) {
			continue
		}
		if !found || better(p, best) {
			best = p
			found = true
		}
	}
	return best, found, nil
}

func better(p, cur Plan) bool {
	if (p.TenantID == "*") != (cur.TenantID == "*") {
		return cur.TenantID == "*"
	}
	return p.EffectiveFrom.After(cur.EffectiveFrom)
}

type planFile struct {
	Plans []Plan `yaml:"plans"`
}

// LoadFile reads plans from a YAML file of the form {plans: [...]}.
func LoadFile(path string) (*MemoryRepo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing file %s: %w", path, err)
	}
	var f planFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse pricing file %s: %w", path, err)
	}
	for i := range f.Plans {
		p := &f.Plans[i]
		if p.Status == "" {
			p.Status = StatusActive
		}
		p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("pricing file %s: plan %d: %w", path, i, err)
		}
	}
	return &MemoryRepo{Plans: f.Plans}, nil
}

func (p Plan) validate() error {
	switch {
	case p.TenantID == "":
		return fmt.Errorf("%w: tenant_id required (use \"*\" for all tenants)", ErrInvalidRequest)
	case !p.CallType.Valid():
		return fmt.Errorf("%w: call_type %q", ErrInvalidRequest, p.CallType)
	case len(p.Currency) != 3:
		return fmt.Errorf("%w: currency %q", ErrInvalidRequest, p.Currency)
	case p.RatePerMinuteMinor < 0 || p.BillingIncrementSeconds < 0 || p.MinimumBillableSeconds < 0:
		return fmt.Errorf("%w: negative amounts", ErrInvalidRequest)
	case p.EffectiveTo != nil && !p.EffectiveTo.After(p.EffectiveFrom):
		return fmt.Errorf("%w: effective_to must follow effective_from", ErrInvalidRequest)
	}
	return nil
}
