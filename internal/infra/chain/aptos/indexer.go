// Package aptos contains the indexer and fullnode clients used by the ingestors.
package aptos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
	"github.com/cyl19970726/haigo-sub001/internal/infra/rpc/provider"
	"github.com/cyl19970726/haigo-sub001/internal/infra/rpc/routing"
)

// IndexerError is returned when the GraphQL indexer rejects a request or
// answers with an errors array.
type IndexerError struct {
	Endpoint  string
	Status    int
	Body      string
	Throttled bool
	Err       error
}

func (e *IndexerError) Error() string {
	return fmt.Sprintf("indexer %s status %d: %s", e.Endpoint, e.Status, e.Body)
}

func (e *IndexerError) Unwrap() error { return e.Err }

func (e *IndexerError) QuotaExceeded() bool    { return e.Throttled }
func (e *IndexerError) SourceEndpoint() string { return e.Endpoint }
func (e *IndexerError) StatusCode() int        { return e.Status }

var _ routing.QuotaSignal = (*IndexerError)(nil)

// EventQuery selects one page of events.
type EventQuery struct {
	Types          []string
	After          domain.Position
	Limit          int
	IncludeTxnMeta bool
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type eventsResponse struct {
	Data *struct {
		Events []domain.RawEvent `json:"events"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// IndexerClient pages events from the GraphQL indexer through the endpoint
// currently selected in the pool.
type IndexerClient struct {
	pool *routing.EndpointPool[*provider.HTTPProvider]
	log  *slog.Logger
}

func NewIndexerClient(pool *routing.EndpointPool[*provider.HTTPProvider], log *slog.Logger) (*IndexerClient, error) {
	if pool == nil || pool.Len() == 0 {
		return nil, errors.New("indexer: at least one endpoint is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &IndexerClient{pool: pool, log: log.With("component", "indexer")}, nil
}

// FetchEvents returns up to q.Limit events strictly after q.After, in ledger order.
func (c *IndexerClient) FetchEvents(ctx context.Context, q EventQuery) ([]domain.RawEvent, error) {
	p := c.pool.Current()

	query := eventsQuery
	if q.IncludeTxnMeta {
		query = eventsWithMetaQuery
	}
	req := graphQLRequest{
		Query: query,
		Variables: map[string]any{
			"eventTypes":       q.Types,
			"cursorVersion":    strconv.FormatInt(q.After.Version, 10),
			"cursorEventIndex": strconv.FormatInt(q.After.Index, 10),
			"limit":            q.Limit,
		},
	}

	raw, err := p.PostJSON(ctx, "", req)
	if err != nil {
		var statusErr *provider.StatusError
		if errors.As(err, &statusErr) {
			return nil, &IndexerError{
				Endpoint:  p.Endpoint(),
				Status:    statusErr.Status,
				Body:      statusErr.Body,
				Throttled: statusErr.Throttled,
				Err:       err,
			}
		}
		return nil, fmt.Errorf("indexer %s: %w", p.Endpoint(), err)
	}

	var resp eventsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("indexer %s: decode response: %w", p.Endpoint(), err)
	}

	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		body := strings.Join(msgs, "; ")
		throttled := p.Monitor.DetectThrottlePattern(body)
		if throttled {
			p.Monitor.RecordThrottle(200, "")
		}
		return nil, &IndexerError{Endpoint: p.Endpoint(), Status: 200, Body: body, Throttled: throttled}
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("indexer %s: response has no data", p.Endpoint())
	}

	c.log.Debug("Fetched events",
		"endpoint", p.Endpoint(),
		"after", q.After.String(),
		"count", len(resp.Data.Events),
	)
	return resp.Data.Events, nil
}
