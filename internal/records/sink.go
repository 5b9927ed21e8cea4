package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"commerce-calls/internal/calls"
)

// Sink adapts a Service to calls.RecordSink for one owner.
type Sink struct {
	svc   *Service
	owner Owner
}

func NewSink(svc *Service, owner Owner) *Sink { return &Sink{svc: svc, owner: owner} }

func (s *Sink) Save(ctx context.Context, peerID string, rec calls.Record) error {
	_, _, err := s.svc.Record(ctx, s.owner, peerID, rec)
	return err
}

// MultiSink saves to every sink and joins their errors.
type MultiSink []calls.RecordSink

func (m MultiSink) Save(ctx context.Context, peerID string, rec calls.Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(ctx, peerID, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReportRequest is the body of POST /v1/calls/records.
type ReportRequest struct {
	PeerUserID string       `json:"peer_user_id"`
	Record     calls.Record `json:"record"`
}

// HTTPSink reports records to the API server on behalf of the token's user.
type HTTPSink struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func (h *HTTPSink) Save(ctx context.Context, peerID string, rec calls.Record) error {
	body, err := json.Marshal(ReportRequest{PeerUserID: peerID, Record: rec})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/v1/calls/records", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.Token)
	}
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("records: report: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("records: report: unexpected status %d", resp.StatusCode)
	}
	return nil
}
