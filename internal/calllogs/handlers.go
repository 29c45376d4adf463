package calllogs

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/columns"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/database"
	apperrors "github.com/PYPE-AI-MAIN/whispey-sub003/internal/errors"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/export"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/filters"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/models"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/roles"
	"github.com/PYPE-AI-MAIN/whispey-sub003/pkg/utils"
)

// sessionStore is the persistence surface the handlers need from the
// Redis-backed SessionStore.
type sessionStore interface {
	Save(ctx context.Context, session *ViewSession) error
	Load(ctx context.Context, id string) (*ViewSession, error)
	Delete(ctx context.Context, id string) error
}

// executorEntry pairs a per-session executor with its last use so idle
// entries can be evicted alongside their expired Redis session.
type executorEntry struct {
	executor *Executor
	lastUsed time.Time
}

// Handlers serves the call-log view endpoints: session lifecycle, paged
// fetching, column discovery and CSV export.
type Handlers struct {
	store      sessionStore
	fetcher    RowFetcher
	exporter   *export.Exporter
	roleLookup roles.Lookup

	mu        sync.Mutex
	executors map[string]*executorEntry
}

// NewHandlers wires the handler set.
func NewHandlers(store sessionStore, fetcher RowFetcher, exporter *export.Exporter, roleLookup roles.Lookup) *Handlers {
	return &Handlers{
		store:      store,
		fetcher:    fetcher,
		exporter:   exporter,
		roleLookup: roleLookup,
		executors:  make(map[string]*executorEntry),
	}
}

// executor returns the per-session executor, creating it on first use.
func (h *Handlers) executor(sessionID string) *Executor {
	h.mu.Lock()
	defer h.mu.Unlock()
	if entry, ok := h.executors[sessionID]; ok {
		entry.lastUsed = time.Now()
		return entry.executor
	}
	entry := &executorEntry{executor: NewExecutor(h.fetcher), lastUsed: time.Now()}
	h.executors[sessionID] = entry
	return entry.executor
}

func (h *Handlers) dropExecutor(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.executors, sessionID)
}

// evictIdle drops executors untouched for longer than maxIdle. Their
// session state has already expired out of Redis on the same horizon, so
// the accumulated pages can never be served again.
func (h *Handlers) evictIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	h.mu.Lock()
	defer h.mu.Unlock()
	evicted := 0
	for id, entry := range h.executors {
		if entry.lastUsed.Before(cutoff) {
			delete(h.executors, id)
			evicted++
		}
	}
	return evicted
}

// StartCleanup starts the background eviction of idle executors.
func (h *Handlers) StartCleanup(maxIdle time.Duration) {
	ticker := time.NewTicker(1 * time.Hour)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				utils.CaptureSentryPanic("calllogs.StartCleanup", r)
			}
		}()
		for range ticker.C {
			if evicted := h.evictIdle(maxIdle); evicted > 0 {
				logrus.WithField("evicted", evicted).Debug("dropped idle call log executors")
			}
		}
	}()
}

func (h *Handlers) loadSession(c *gin.Context) (*ViewSession, bool) {
	sessionID := c.Param("sessionId")
	session, err := h.store.Load(c.Request.Context(), sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		// The Redis entry expired or never existed; any cached pages for
		// it are unreachable from here on.
		h.dropExecutor(sessionID)
		apperrors.SendErrorResponse(c, http.StatusNotFound, apperrors.ErrSessionNotFound)
		return nil, false
	}
	if err != nil {
		utils.CaptureSentryError(c, err, "Failed to load view session", nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load view session"})
		return nil, false
	}
	return session, true
}

func (h *Handlers) callerRole(c *gin.Context) string {
	email := c.GetString("email")
	projectID := c.Param("projectId")
	return roles.Resolve(c.Request.Context(), h.roleLookup, email, projectID)
}

// sessionFiltersRequest carries a full filter-state replacement.
type sessionFiltersRequest struct {
	Operations       []filters.Operation     `json:"operations"`
	DistinctFallback *filters.DistinctConfig `json:"distinct_fallback,omitempty"`
	DateRange        *filters.DateRange      `json:"date_range,omitempty"`
	OrderBy          string                  `json:"order_by,omitempty"`
	Ascending        *bool                   `json:"ascending,omitempty"`
}

// HandleCreateSession opens a view session for an agent.
func (h *Handlers) HandleCreateSession(c *gin.Context) {
	agentID := c.Param("agentId")

	session := NewViewSession(agentID)
	var req sessionFiltersRequest
	var validationErrors []filters.ValidationError
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		validationErrors = applyFilters(session, req)
	}

	if err := h.store.Save(c.Request.Context(), session); err != nil {
		utils.CaptureSentryError(c, err, "Failed to save view session", nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save view session"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session":           session,
		"validation_errors": validationErrors,
	})
}

// HandleGetSession returns the session state.
func (h *Handlers) HandleGetSession(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

// HandleSetFilters replaces the session's filter state. Invalid
// operations are excluded and reported; previously fetched pages become
// invalid implicitly because the compiled state's signature changes.
func (h *Handlers) HandleSetFilters(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	var req sessionFiltersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	validationErrors := applyFilters(session, req)

	if err := h.store.Save(c.Request.Context(), session); err != nil {
		utils.CaptureSentryError(c, err, "Failed to save view session", nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save view session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session":           session,
		"validation_errors": validationErrors,
	})
}

func applyFilters(session *ViewSession, req sessionFiltersRequest) []filters.ValidationError {
	validationErrors := session.SetOperations(req.Operations)
	session.DistinctFallback = req.DistinctFallback
	session.DateRange = req.DateRange
	if req.OrderBy != "" {
		session.OrderBy = req.OrderBy
	}
	if req.Ascending != nil {
		session.Ascending = *req.Ascending
	}
	return validationErrors
}

// HandleResetSession discards the session's filter and column state.
func (h *Handlers) HandleResetSession(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	session.Reset()
	h.dropExecutor(session.ID)

	if err := h.store.Save(c.Request.Context(), session); err != nil {
		utils.CaptureSentryError(c, err, "Failed to save view session", nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save view session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": session})
}

// HandleDeleteSession ends the view lifecycle.
func (h *Handlers) HandleDeleteSession(c *gin.Context) {
	sessionID := c.Param("sessionId")
	h.dropExecutor(sessionID)

	if err := h.store.Delete(c.Request.Context(), sessionID); err != nil {
		utils.CaptureSentryError(c, err, "Failed to delete view session", nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete view session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "View session deleted"})
}

// HandleFetchPage fetches the next 50-row page for the session's compiled
// state. The executor keeps pages strictly sequential and restarts from
// offset zero whenever the filter signature changes.
func (h *Handlers) HandleFetchPage(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	role := h.callerRole(c)
	state, validationErrors := session.QueryState(role)

	executor := h.executor(session.ID)
	executor.SetState(state)

	rows, err := executor.FetchNextPage(c.Request.Context())
	switch {
	case errors.Is(err, ErrFetchInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": "Previous page request still in flight"})
		return
	case errors.Is(err, ErrStaleQuery):
		c.JSON(http.StatusConflict, gin.H{"error": "Filter state changed while fetching, retry"})
		return
	case err != nil:
		utils.CaptureSentryError(c, err, "Call log page fetch failed", map[string]interface{}{
			"agent_id": session.AgentID,
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch call logs"})
		return
	}

	if rows == nil {
		rows = []Row{}
	}
	c.JSON(http.StatusOK, gin.H{
		"rows":              rows,
		"page":              executor.PageCount(),
		"has_next_page":     executor.HasNextPage(),
		"role":              role,
		"validation_errors": validationErrors,
	})
}

// HandleGetColumns returns the column state for the session: the fixed
// catalog filtered by role, the JSON key sets discovered from fetched
// rows merged with the agent's configured extraction keys, and the
// current selection (initialized to the defaults when empty).
func (h *Handlers) HandleGetColumns(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	role := h.callerRole(c)
	fetched := h.executor(session.ID).Rows()
	discovered := columns.DiscoverRows(fetched)
	if len(fetched) == 0 {
		// Nothing paged in yet; mine the key sets from a direct table
		// sample so the picker is populated on first open.
		discovered = columns.Discover(sampleCalls(c, session.AgentID))
	}
	extraction := agentExtractionKeys(c, session.AgentID)

	if len(session.Visible.Basic) == 0 {
		session.Visible = columns.DefaultVisible(role, discovered, extraction)
		if err := h.store.Save(c.Request.Context(), session); err != nil {
			utils.CaptureSentryError(c, err, "Failed to save view session", nil)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save view session"})
			return
		}
	}

	var catalog []columns.BasicColumn
	for _, col := range columns.BasicColumns {
		if columns.VisibleForRole(col.Key, role) {
			catalog = append(catalog, col)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"basic_columns":   catalog,
		"dynamic_columns": discovered,
		"visible_columns": session.Visible,
	})
}

// HandleSetColumns replaces the session's column selection.
func (h *Handlers) HandleSetColumns(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	var visible columns.VisibleColumns
	if err := c.ShouldBindJSON(&visible); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role := h.callerRole(c)
	visible.Basic = filterByRole(visible.Basic, role)
	session.Visible = visible
	session.UpdatedAt = time.Now()

	if err := h.store.Save(c.Request.Context(), session); err != nil {
		utils.CaptureSentryError(c, err, "Failed to save view session", nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save view session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"visible_columns": session.Visible})
}

// HandleExport streams the full filtered result set as one CSV download.
// The export reads raw rows in bulk chunks; any chunk failure aborts with
// no partial file.
func (h *Handlers) HandleExport(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	role := h.callerRole(c)
	visible := session.Visible
	visible.Basic = filterByRole(visible.Basic, role)

	rules := filters.FilterRules(session.Operations)

	// Build the whole file before committing any response headers, so a
	// failed export answers as JSON instead of a broken .csv download.
	var buf bytes.Buffer
	count, err := h.exporter.Export(c.Request.Context(), session.AgentID, rules, visible, &buf)
	if err != nil {
		utils.CaptureSentryError(c, err, "Call log export failed", map[string]interface{}{
			"agent_id": session.AgentID,
		})
		apperrors.SendErrorResponse(c, http.StatusInternalServerError, apperrors.ErrExportFailed)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+export.Filename(time.Now())+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())

	logrus.WithFields(logrus.Fields{
		"agent_id": session.AgentID,
		"rows":     count,
	}).Info("call log export completed")
}

func filterByRole(keys []string, role string) []string {
	var out []string
	for _, key := range keys {
		if columns.VisibleForRole(key, role) {
			out = append(out, key)
		}
	}
	return out
}

// sampleCalls reads one page worth of recent rows straight from the
// table for key discovery before any page has been fetched.
func sampleCalls(c *gin.Context, agentID string) []models.CallLog {
	if database.DB == nil {
		return nil
	}
	var calls []models.CallLog
	database.DB.WithContext(c.Request.Context()).
		Where("agent_id = ?", agentID).
		Order("created_at DESC").
		Limit(PageSize).
		Find(&calls)
	return calls
}

// agentExtractionKeys loads the agent's configured extraction keys; a
// missing agent simply yields none.
func agentExtractionKeys(c *gin.Context, agentID string) []string {
	if database.DB == nil {
		return nil
	}
	var agent models.Agent
	if err := database.DB.WithContext(c.Request.Context()).First(&agent, "id = ?", agentID).Error; err != nil {
		return nil
	}
	return columns.AgentExtractionKeys(agent.FieldExtractorPrompt)
}
