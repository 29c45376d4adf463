package calllogs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/columns"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/database"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/export"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/models"
)

type fakeSessionStore struct {
	sessions map[string]*ViewSession
}

func newFakeSessionStore(sessions ...*ViewSession) *fakeSessionStore {
	store := &fakeSessionStore{sessions: map[string]*ViewSession{}}
	for _, s := range sessions {
		store.sessions[s.ID] = s
	}
	return store
}

func (f *fakeSessionStore) Save(ctx context.Context, session *ViewSession) error {
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeSessionStore) Load(ctx context.Context, id string) (*ViewSession, error) {
	session, ok := f.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (f *fakeSessionStore) Delete(ctx context.Context, id string) error {
	delete(f.sessions, id)
	return nil
}

type stubRoles struct{ role string }

func (s stubRoles) ProjectRole(ctx context.Context, email, projectID string) (string, error) {
	return s.role, nil
}

// failingChunks aborts every bulk read.
type failingChunks struct{}

func (failingChunks) FetchChunk(ctx context.Context, req export.ChunkRequest) ([]models.CallLog, error) {
	return nil, errors.New("store unavailable")
}

// singleCallChunks serves one call then exhaustion.
type singleCallChunks struct{}

func (singleCallChunks) FetchChunk(ctx context.Context, req export.ChunkRequest) ([]models.CallLog, error) {
	if req.Offset > 0 {
		return nil, nil
	}
	return []models.CallLog{{ID: "id-1", AgentID: "agent-1", CallID: "call-1"}}, nil
}

func testContext(sessionID string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Params = gin.Params{
		{Key: "projectId", Value: "p-1"},
		{Key: "sessionId", Value: sessionID},
	}
	return c, w
}

func exportSession(id string) *ViewSession {
	return &ViewSession{
		ID:      id,
		AgentID: "agent-1",
		Visible: columns.VisibleColumns{Basic: []string{"call_id"}},
		OrderBy: "created_at",
	}
}

func TestMissingSessionAnswersNotFoundAndDropsExecutor(t *testing.T) {
	h := NewHandlers(newFakeSessionStore(), &fakeFetcher{}, nil, stubRoles{})
	h.executor("s-gone")

	c, w := testContext("s-gone")
	h.HandleGetSession(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "SESSION_NOT_FOUND")

	h.mu.Lock()
	_, kept := h.executors["s-gone"]
	h.mu.Unlock()
	assert.False(t, kept)
}

func TestEvictIdleExecutors(t *testing.T) {
	h := NewHandlers(newFakeSessionStore(), &fakeFetcher{}, nil, stubRoles{})
	h.executor("s-old")
	h.executor("s-fresh")

	h.mu.Lock()
	h.executors["s-old"].lastUsed = time.Now().Add(-25 * time.Hour)
	h.mu.Unlock()

	assert.Equal(t, 1, h.evictIdle(24*time.Hour))

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.NotContains(t, h.executors, "s-old")
	assert.Contains(t, h.executors, "s-fresh")
}

func TestEvictIdleKeepsRecentlyUsed(t *testing.T) {
	h := NewHandlers(newFakeSessionStore(), &fakeFetcher{}, nil, stubRoles{})
	h.executor("s-1")

	assert.Equal(t, 0, h.evictIdle(24*time.Hour))

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Contains(t, h.executors, "s-1")
}

func TestHandleExportFailureAnswersJSON(t *testing.T) {
	store := newFakeSessionStore(exportSession("s-1"))
	h := NewHandlers(store, &fakeFetcher{}, export.NewExporter(failingChunks{}), stubRoles{})

	c, w := testContext("s-1")
	h.HandleExport(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	// No download headers leak into the error response.
	assert.Empty(t, w.Header().Get("Content-Disposition"))
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.Contains(t, w.Body.String(), "EXPORT_FAILED")
}

func TestHandleExportSuccessSetsDownloadHeaders(t *testing.T) {
	store := newFakeSessionStore(exportSession("s-1"))
	h := NewHandlers(store, &fakeFetcher{}, export.NewExporter(singleCallChunks{}), stubRoles{})

	c, w := testContext("s-1")
	h.HandleExport(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "call_logs_")
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Body.String(), "call_id")
	assert.Contains(t, w.Body.String(), "call-1")
}

func TestHandleGetColumnsSamplesTableBeforeFirstPage(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Agent{}, &models.CallLog{}))
	require.NoError(t, db.Create(&models.CallLog{
		ID:       "r-1",
		AgentID:  "agent-1",
		CallID:   "c-1",
		Metadata: models.JSON(`{"campaign":"diwali"}`),
	}).Error)

	prev := database.DB
	database.DB = db
	defer func() { database.DB = prev }()

	store := newFakeSessionStore(&ViewSession{ID: "s-1", AgentID: "agent-1", OrderBy: "created_at"})
	h := NewHandlers(store, &fakeFetcher{}, nil, stubRoles{})

	c, w := testContext("s-1")
	h.HandleGetColumns(c)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Dynamic columns.DynamicColumns `json:"dynamic_columns"`
		Visible columns.VisibleColumns `json:"visible_columns"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Dynamic.Metadata, "campaign")
	assert.Contains(t, resp.Visible.Metadata, "campaign")
}
