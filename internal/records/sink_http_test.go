package records

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPSink_PostsRecord(t *testing.T) {
	var got ReportRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/calls/records" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sink := &HTTPSink{BaseURL: srv.URL, Token: "tok"}
	if err := sink.Save(context.Background(), "42", answered("c1", 7)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if auth != "Bearer tok" || got.PeerUserID != "42" || got.Record.CallID != "c1" || got.Record.DurationSeconds != 7 {
		t.Fatalf("unexpected request %q %+v", auth, got)
	}
}

func TestHTTPSink_ReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	sink := &HTTPSink{BaseURL: srv.URL}
	if err := sink.Save(context.Background(), "42", answered("c1", 7)); err == nil {
		t.Fatalf("expected error")
	}
}
