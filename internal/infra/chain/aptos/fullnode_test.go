package aptos

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cyl19970726/haigo-sub001/internal/infra/rpc/provider"
)

type cacheCounter struct {
	hits, misses int
}

func (c *cacheCounter) IncCache(_ string, hit bool) {
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

func newFullnode(t *testing.T, handler http.HandlerFunc, observer CacheObserver) *FullnodeClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewFullnodeClient(provider.NewHTTPProvider("fullnode", server.URL, "", time.Second), 16, observer, nil)
	if err != nil {
		t.Fatalf("NewFullnodeClient: %v", err)
	}
	return client
}

func TestTransactionMeta(t *testing.T) {
	var calls atomic.Int32
	counter := &cacheCounter{}
	client := newFullnode(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/transactions/by_version/42" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"hash":"0xabc","timestamp":"1700000000123456"}`))
	}, counter)

	meta, ok := client.TransactionMeta(context.Background(), 42)
	if !ok {
		t.Fatal("expected metadata")
	}
	if meta.Hash != "0xabc" || meta.Timestamp.UnixMilli() != 1700000000123 {
		t.Errorf("meta = %+v", meta)
	}

	if _, ok := client.TransactionMeta(context.Background(), 42); !ok {
		t.Fatal("expected cached metadata")
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single upstream call, got %d", calls.Load())
	}
	if counter.hits != 1 || counter.misses != 1 {
		t.Errorf("cache hits=%d misses=%d", counter.hits, counter.misses)
	}
}

func TestTransactionMeta_Fallbacks(t *testing.T) {
	now := time.UnixMilli(1234)
	tests := []struct {
		name   string
		body   string
		status int
		ok     bool
	}{
		{"non-numeric timestamp", `{"hash":"0x1","timestamp":"abc"}`, 200, true},
		{"zero timestamp", `{"hash":"0x1","timestamp":"0"}`, 200, true},
		{"missing timestamp", `{"hash":"0x1"}`, 200, true},
		{"empty hash", `{"hash":"","timestamp":"100"}`, 200, false},
		{"not found", `{"error_code":"transaction_not_found"}`, 404, false},
		{"garbage", `not json`, 200, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFullnode(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}, nil)
			client.now = func() time.Time { return now }

			meta, ok := client.TransactionMeta(context.Background(), 7)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !meta.Timestamp.Equal(now) {
				t.Errorf("timestamp = %v, want now", meta.Timestamp)
			}
		})
	}
}

func TestLatestLedgerVersion(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		expect int64
	}{
		{"string", `{"chain_id":2,"ledger_version":"5000"}`, 200, 5000},
		{"number", `{"ledger_version":77}`, 200, 77},
		{"invalid", `{"ledger_version":"x"}`, 200, 0},
		{"server error", `oops`, 500, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFullnode(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}, nil)
			if got := client.LatestLedgerVersion(context.Background()); got != tt.expect {
				t.Errorf("LatestLedgerVersion = %d, want %d", got, tt.expect)
			}
		})
	}
}
