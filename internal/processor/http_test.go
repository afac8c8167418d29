package processor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/anavi/settlement/internal/config"
	"github.com/anavi/settlement/internal/domain"
)

func testClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(config.ProcessorConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Timeout:    2 * time.Second,
		MaxRetries: 3,
		RetryBase:  time.Millisecond,
	}, slog.Default())
}

func TestHoldFundsSendsIdempotencyKey(t *testing.T) {
	var gotHeader, gotBody string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("Idempotency-Key")
		var req custodyRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotBody = req.IdempotencyKey
		_ = json.NewEncoder(w).Encode(custodyResponse{Reference: "tx-1", Status: "held"})
	})

	dealID := uuid.New()
	key := HoldKey(dealID)
	conf, err := client.HoldFunds(context.Background(), "cust-1", decimal.NewFromInt(500), key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conf.Reference != "tx-1" {
		t.Fatalf("expected reference tx-1, got %q", conf.Reference)
	}
	if gotHeader != key || gotBody != key {
		t.Fatalf("idempotency key not propagated: header=%q body=%q want=%q", gotHeader, gotBody, key)
	}
}

func TestReleaseFundsRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(custodyResponse{Reference: "tx-2", Status: "released"})
	})

	conf, err := client.ReleaseFunds(context.Background(), "cust-1", decimal.NewFromInt(100), "k")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if conf.Reference != "tx-2" {
		t.Fatalf("unexpected confirmation: %+v", conf)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestExhaustedRetriesReturnUnavailable(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.ReverseFunds(context.Background(), "cust-1", decimal.NewFromInt(100), "k")
	if !errors.Is(err, domain.ErrProcessorUnavailable) {
		t.Fatalf("expected ErrProcessorUnavailable, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected retry budget of 3 to be spent, got %d", calls.Load())
	}
}

func TestClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	})

	_, err := client.HoldFunds(context.Background(), "cust-1", decimal.NewFromInt(100), "k")
	if err == nil {
		t.Fatal("expected error on 422 response")
	}
	if errors.Is(err, domain.ErrProcessorUnavailable) {
		t.Fatal("4xx should not map to ErrProcessorUnavailable")
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx must not be retried, got %d attempts", calls.Load())
	}
}

func TestCreateCustodyAccount(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/custody/accounts" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(custodyResponse{CustodyRef: "cust-42"})
	})

	ref, err := client.CreateCustodyAccount(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref != "cust-42" {
		t.Fatalf("expected custody ref cust-42, got %q", ref)
	}
}

func TestIdempotencyKeysAreStable(t *testing.T) {
	dealID := uuid.New()
	milestoneID := uuid.New()
	if ReleaseKey(dealID, milestoneID) != ReleaseKey(dealID, milestoneID) {
		t.Fatal("release key must be stable for the same operation")
	}
	if ReleaseKey(dealID, milestoneID) == ReleaseKey(dealID, uuid.New()) {
		t.Fatal("release keys for different milestones must differ")
	}
	if HoldKey(dealID) == ReverseKey(dealID) {
		t.Fatal("hold and reverse keys must not collide")
	}
}
