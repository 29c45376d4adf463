// Package calllogs orchestrates call-log queries: the view session holding
// the active filter state, the paginated executor driving the backing
// store's distinct-aware query function, and the HTTP handlers on top.
package calllogs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/filters"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/metrics"
)

// PageSize is the fixed number of rows per page request.
const PageSize = 50

// Row is one result row keyed by selected column name.
type Row = map[string]interface{}

// QueryState is the full compiled filter state carried on every page
// request. Any change to it invalidates previously fetched pages.
type QueryState struct {
	AgentID   string                  `json:"agent_id"`
	Compiled  filters.CompiledFilters `json:"compiled"`
	Select    string                  `json:"select"`
	OrderBy   string                  `json:"order_by"`
	Ascending bool                    `json:"ascending"`
	Distinct  *filters.DistinctConfig `json:"distinct,omitempty"`
}

// Signature returns a deterministic identity for the state. Two states
// with equal signatures describe the same result set.
func (s QueryState) Signature() string {
	raw, _ := json.Marshal(s)
	return string(raw)
}

// RowFetcher issues one page request against the backing store.
type RowFetcher interface {
	FetchPage(ctx context.Context, state QueryState, limit, offset int) ([]Row, error)
}

var (
	// ErrFetchInFlight is returned when a page is requested while the
	// previous one for the same state has not resolved yet.
	ErrFetchInFlight = errors.New("calllogs: page fetch already in flight")

	// ErrStaleQuery is returned when a page response arrives after the
	// active state moved on; the response is discarded, never applied.
	ErrStaleQuery = errors.New("calllogs: query state changed while fetching")

	// ErrNoQueryState is returned when no state has been set yet.
	ErrNoQueryState = errors.New("calllogs: no query state configured")
)

// Executor accumulates fixed-size pages for one query state. Page N+1 is
// only fetched after page N resolves; changing the state restarts from
// offset zero and discards everything accumulated.
type Executor struct {
	fetcher  RowFetcher
	pageSize int

	mu        sync.Mutex
	signature string
	state     QueryState
	pages     [][]Row
	hasNext   bool
	fetching  bool
}

// NewExecutor returns an executor using the standard page size.
func NewExecutor(fetcher RowFetcher) *Executor {
	return &Executor{fetcher: fetcher, pageSize: PageSize}
}

// SetState installs the compiled filter state. A signature change drops
// all accumulated pages and restarts pagination; setting an identical
// state is a no-op so callers may set it unconditionally.
func (e *Executor) SetState(state QueryState) {
	sig := state.Signature()

	e.mu.Lock()
	defer e.mu.Unlock()
	if sig == e.signature {
		return
	}
	e.signature = sig
	e.state = state
	e.pages = nil
	e.hasNext = true
}

// FetchNextPage requests the next page for the active state. The fetch is
// strictly sequential: a second call while one is in flight fails with
// ErrFetchInFlight. A response for a superseded state is discarded and
// reported as ErrStaleQuery. Failed pages commit nothing.
func (e *Executor) FetchNextPage(ctx context.Context) ([]Row, error) {
	e.mu.Lock()
	if e.signature == "" {
		e.mu.Unlock()
		return nil, ErrNoQueryState
	}
	if e.fetching {
		e.mu.Unlock()
		return nil, ErrFetchInFlight
	}
	if !e.hasNext {
		e.mu.Unlock()
		return nil, nil
	}
	e.fetching = true
	sig := e.signature
	state := e.state
	offset := len(e.pages) * e.pageSize
	e.mu.Unlock()

	rows, err := e.fetcher.FetchPage(ctx, state, e.pageSize, offset)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.fetching = false

	if sig != e.signature {
		logrus.WithFields(logrus.Fields{
			"agent_id": state.AgentID,
			"offset":   offset,
		}).Debug("discarding stale page response")
		return nil, ErrStaleQuery
	}
	if err != nil {
		return nil, err
	}

	e.pages = append(e.pages, rows)
	e.hasNext = len(rows) == e.pageSize
	metrics.PagesFetched.Inc()
	return rows, nil
}

// HasNextPage reports whether another page may exist: true until a fetched
// page comes back shorter than the page size.
func (e *Executor) HasNextPage() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signature != "" && e.hasNext
}

// Rows returns all accumulated rows across fetched pages, in order.
func (e *Executor) Rows() []Row {
	e.mu.Lock()
	defer e.mu.Unlock()
	var rows []Row
	for _, page := range e.pages {
		rows = append(rows, page...)
	}
	return rows
}

// PageCount returns how many pages have been fetched for the active state.
func (e *Executor) PageCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pages)
}
