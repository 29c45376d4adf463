package calllogs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/columns"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/filters"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/metrics"
)

// ViewSession is the explicit per-view filter state: the unified
// filter/distinct operation list, the legacy distinct fallback, the
// column selection and ordering. It is passed to the compiler and
// executor rather than living in ambient global state, and is discarded
// on Reset when the user leaves the view.
type ViewSession struct {
	ID               string                  `json:"id"`
	AgentID          string                  `json:"agent_id"`
	Operations       []filters.Operation     `json:"operations"`
	DistinctFallback *filters.DistinctConfig `json:"distinct_fallback,omitempty"`
	Visible          columns.VisibleColumns  `json:"visible_columns"`
	OrderBy          string                  `json:"order_by"`
	Ascending        bool                    `json:"ascending"`
	DateRange        *filters.DateRange      `json:"date_range,omitempty"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

// NewViewSession returns an empty session for an agent's call-log view,
// ordered by creation time descending like the dashboard's default.
func NewViewSession(agentID string) *ViewSession {
	return &ViewSession{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		OrderBy:   "created_at",
		Ascending: false,
		UpdatedAt: time.Now(),
	}
}

// SetOperations validates and stores the operation list. Invalid entries
// are excluded from the stored state and returned as typed errors so the
// caller can surface them instead of silently losing a user's filter.
func (s *ViewSession) SetOperations(ops []filters.Operation) []filters.ValidationError {
	valid, errs := filters.ValidateOperations(ops)
	s.Operations = valid
	s.UpdatedAt = time.Now()
	if len(errs) > 0 {
		metrics.FilterRulesRejected.Add(float64(len(errs)))
	}
	return errs
}

// Distinct resolves the active dedup key for the session.
func (s *ViewSession) Distinct() *filters.DistinctConfig {
	return filters.ResolveDistinct(s.Operations, s.DistinctFallback)
}

// QueryState compiles the session into the executor's query state for the
// given caller role. Validation errors are possible only for operations
// that bypassed SetOperations; they are reported alongside the state.
func (s *ViewSession) QueryState(role string) (QueryState, []filters.ValidationError) {
	distinct := s.Distinct()
	compiled, errs := filters.Compile(filters.FilterRules(s.Operations), s.AgentID, distinct, s.DateRange)
	return QueryState{
		AgentID:   s.AgentID,
		Compiled:  compiled,
		Select:    columns.SelectColumns(role),
		OrderBy:   s.OrderBy,
		Ascending: s.Ascending,
		Distinct:  distinct,
	}, errs
}

// Reset discards all filter and column state, keeping the session
// identity and agent scope.
func (s *ViewSession) Reset() {
	s.Operations = nil
	s.DistinctFallback = nil
	s.Visible = columns.VisibleColumns{}
	s.OrderBy = "created_at"
	s.Ascending = false
	s.DateRange = nil
	s.UpdatedAt = time.Now()
}

// ErrSessionNotFound is returned when a session id is unknown or expired.
var ErrSessionNotFound = errors.New("calllogs: view session not found")

// SessionStore persists view sessions in Redis with a TTL so a view
// survives reloads but not abandonment.
type SessionStore struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
}

// NewSessionStore returns a store over the given Redis client.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStore{client: client, ttl: ttl, timeout: 2 * time.Second}
}

func (st *SessionStore) key(id string) string {
	return "whispey:view-session:" + id
}

func (st *SessionStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, st.timeout)
}

func wrapRedisError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s redis operation timed out: %w", operation, err)
	}
	return fmt.Errorf("%s redis operation failed: %w", operation, err)
}

// Save writes the session, refreshing its TTL.
func (st *SessionStore) Save(ctx context.Context, session *ViewSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode view session: %w", err)
	}

	opCtx, cancel := st.withTimeout(ctx)
	defer cancel()
	return wrapRedisError("save session", st.client.Set(opCtx, st.key(session.ID), data, st.ttl).Err())
}

// Load reads a session by id.
func (st *SessionStore) Load(ctx context.Context, id string) (*ViewSession, error) {
	opCtx, cancel := st.withTimeout(ctx)
	defer cancel()

	data, err := st.client.Get(opCtx, st.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, wrapRedisError("load session", err)
	}

	var session ViewSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode view session: %w", err)
	}
	return &session, nil
}

// Delete removes a session, ending its view lifecycle.
func (st *SessionStore) Delete(ctx context.Context, id string) error {
	opCtx, cancel := st.withTimeout(ctx)
	defer cancel()
	return wrapRedisError("delete session", st.client.Del(opCtx, st.key(id)).Err())
}
