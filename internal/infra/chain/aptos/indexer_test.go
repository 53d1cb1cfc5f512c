package aptos

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
	"github.com/cyl19970726/haigo-sub001/internal/infra/rpc/provider"
	"github.com/cyl19970726/haigo-sub001/internal/infra/rpc/routing"
)

func newIndexer(t *testing.T, urls ...string) *IndexerClient {
	t.Helper()
	providers := make([]*provider.HTTPProvider, 0, len(urls))
	for _, u := range urls {
		providers = append(providers, provider.NewHTTPProvider("indexer", u, "", time.Second))
	}
	client, err := NewIndexerClient(routing.NewEndpointPool(providers...), nil)
	if err != nil {
		t.Fatalf("NewIndexerClient: %v", err)
	}
	return client
}

func TestFetchEvents_SendsCursorAsStrings(t *testing.T) {
	var got graphQLRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"data":{"events":[
			{"transaction_version":"101","event_index":0,"type":"0x1::orders::OrderCreated","data":{"order_id":"7"}},
			{"transaction_version":102,"event_index":"3","type":"0x1::orders::OrderCreated","data":{}}
		]}}`))
	}))
	defer server.Close()

	client := newIndexer(t, server.URL)
	events, err := client.FetchEvents(context.Background(), EventQuery{
		Types: []string{"0x1::orders::OrderCreated"},
		After: domain.Position{Version: 100, Index: 2},
		Limit: 25,
	})
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}

	if got.Variables["cursorVersion"] != "100" || got.Variables["cursorEventIndex"] != "2" {
		t.Errorf("cursor variables = %v / %v", got.Variables["cursorVersion"], got.Variables["cursorEventIndex"])
	}
	if got.Variables["limit"] != float64(25) {
		t.Errorf("limit = %v", got.Variables["limit"])
	}
	if strings.Contains(got.Query, "transaction_hash") {
		t.Error("plain query must not request transaction fields")
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	pos, err := events[1].Position()
	if err != nil || pos != (domain.Position{Version: 102, Index: 3}) {
		t.Errorf("position = %v, %v", pos, err)
	}
}

func TestFetchEvents_IncludeTxnMeta(t *testing.T) {
	var got graphQLRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"data":{"events":[]}}`))
	}))
	defer server.Close()

	client := newIndexer(t, server.URL)
	if _, err := client.FetchEvents(context.Background(), EventQuery{After: domain.Genesis, Limit: 1, IncludeTxnMeta: true}); err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if !strings.Contains(got.Query, "transaction_hash") || !strings.Contains(got.Query, "account_address") {
		t.Error("meta query must request transaction fields")
	}
	if got.Variables["cursorVersion"] != "-1" {
		t.Errorf("genesis cursor version = %v", got.Variables["cursorVersion"])
	}
}

func TestFetchEvents_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer server.Close()

	client := newIndexer(t, server.URL)
	_, err := client.FetchEvents(context.Background(), EventQuery{Limit: 1})

	var ie *IndexerError
	if !errors.As(err, &ie) {
		t.Fatalf("expected IndexerError, got %v", err)
	}
	if ie.Status != 429 || !ie.QuotaExceeded() || ie.SourceEndpoint() != server.URL {
		t.Errorf("unexpected error fields: %+v", ie)
	}
	if routing.ClassifyError(err) != routing.SignalRateLimit {
		t.Errorf("classified as %s", routing.ClassifyError(err))
	}
}

func TestFetchEvents_GraphQLQuotaError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"monthly credit cap reached"}]}`))
	}))
	defer server.Close()

	client := newIndexer(t, server.URL)
	_, err := client.FetchEvents(context.Background(), EventQuery{Limit: 1})

	endpoint, ok := routing.QuotaSource(err)
	if !ok || endpoint != server.URL {
		t.Errorf("QuotaSource = %q, %v (err %v)", endpoint, ok, err)
	}
}

func TestFetchEvents_GraphQLError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"field 'events' not found in type: 'query_root'"}]}`))
	}))
	defer server.Close()

	client := newIndexer(t, server.URL)
	_, err := client.FetchEvents(context.Background(), EventQuery{Limit: 1})

	var ie *IndexerError
	if !errors.As(err, &ie) || ie.Throttled {
		t.Fatalf("expected non-throttled IndexerError, got %v", err)
	}
	if routing.ClassifyError(err) != routing.SignalNone {
		t.Errorf("classified as %s", routing.ClassifyError(err))
	}
}

func TestNewIndexerClient_RequiresEndpoint(t *testing.T) {
	if _, err := NewIndexerClient(routing.NewEndpointPool[*provider.HTTPProvider](), nil); err == nil {
		t.Error("expected error for empty pool")
	}
}
