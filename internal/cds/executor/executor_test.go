package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"cds-orchestrator/internal/cds/model"
	"cds-orchestrator/internal/common/httpclient"
	"cds-orchestrator/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

const cardResponse = `{
	"cards": [
		{"summary": "Patient overdue for A1C", "indicator": "warning",
		 "source": {"label": "Care Gaps"}},
		{"uuid": "fixed-uuid", "summary": "Critical allergy on file", "indicator": "critical",
		 "source": {"label": "Allergy Watch"}}
	]
}`

func testService() model.Service {
	return model.Service{ID: "pv-hygiene", Hook: model.HookPatientView, Title: "Care Gaps"}
}

func testRequest(instance string) model.HookRequest {
	return model.HookRequest{
		Hook:         model.HookPatientView,
		HookInstance: instance,
		Context:      map[string]interface{}{"patientId": "p1", "userId": "u1"},
	}
}

func newCardServer(t *testing.T, calls *atomic.Int32, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/cds-services/pv-hygiene", r.URL.Path)

		var req model.HookRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.Hook)

		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestExecutor(srv *httptest.Server, cache ResponseCache) *Executor {
	return New(srv.URL, "test-token", cache, 30*time.Second, 2*time.Second,
		httpclient.NewClient(5*time.Second), logger.NewNoOpLogger())
}

// ==========================
// Execution Tests
// ==========================

func TestExecute_TagsCardsWithOrigin(t *testing.T) {
	var calls atomic.Int32
	srv := newCardServer(t, &calls, cardResponse, http.StatusOK)
	exec := newTestExecutor(srv, NewMemoryCache())

	resp := exec.Execute(context.Background(), testService(), testRequest("i-1"))

	require.Len(t, resp.Cards, 2)
	for _, card := range resp.Cards {
		assert.Equal(t, "pv-hygiene", card.OriginServiceID)
		assert.Equal(t, "Care Gaps", card.OriginServiceTitle)
		assert.NotEmpty(t, card.UUID)
	}
	// Service-provided uuids are preserved, missing ones backfilled.
	assert.Equal(t, "fixed-uuid", resp.Cards[1].UUID)
	assert.NotEqual(t, "fixed-uuid", resp.Cards[0].UUID)
}

func TestExecute_CacheHitWithinTTL(t *testing.T) {
	var calls atomic.Int32
	srv := newCardServer(t, &calls, cardResponse, http.StatusOK)
	exec := newTestExecutor(srv, NewMemoryCache())

	first := exec.Execute(context.Background(), testService(), testRequest("i-1"))
	second := exec.Execute(context.Background(), testService(), testRequest("i-2"))

	assert.Equal(t, int32(1), calls.Load(), "hookInstance must not defeat caching")
	assert.Equal(t, first.Cards, second.Cards)
}

func TestExecute_CacheExpiryTriggersRefetch(t *testing.T) {
	var calls atomic.Int32
	srv := newCardServer(t, &calls, cardResponse, http.StatusOK)

	cache := NewMemoryCache()
	now := time.Unix(1700000000, 0)
	cache.now = func() time.Time { return now }

	exec := newTestExecutor(srv, cache)

	exec.Execute(context.Background(), testService(), testRequest("i-1"))
	require.Equal(t, int32(1), calls.Load())

	now = now.Add(29 * time.Second)
	exec.Execute(context.Background(), testService(), testRequest("i-2"))
	assert.Equal(t, int32(1), calls.Load())

	now = now.Add(2 * time.Second)
	exec.Execute(context.Background(), testService(), testRequest("i-3"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestExecute_DifferentContextMissesCache(t *testing.T) {
	var calls atomic.Int32
	srv := newCardServer(t, &calls, cardResponse, http.StatusOK)
	exec := newTestExecutor(srv, NewMemoryCache())

	exec.Execute(context.Background(), testService(), testRequest("i-1"))

	other := testRequest("i-2")
	other.Context["patientId"] = "p2"
	exec.Execute(context.Background(), testService(), other)

	assert.Equal(t, int32(2), calls.Load())
}

func TestExecute_ServerErrorReturnsEmptyCards(t *testing.T) {
	var calls atomic.Int32
	srv := newCardServer(t, &calls, "boom", http.StatusInternalServerError)
	exec := newTestExecutor(srv, NewMemoryCache())

	resp := exec.Execute(context.Background(), testService(), testRequest("i-1"))

	assert.NotNil(t, resp.Cards)
	assert.Empty(t, resp.Cards)
}

func TestExecute_MalformedResponseReturnsEmptyCards(t *testing.T) {
	var calls atomic.Int32
	srv := newCardServer(t, &calls, `{"cards": [{"indicator": "warning"}]}`, http.StatusOK)
	exec := newTestExecutor(srv, NewMemoryCache())

	resp := exec.Execute(context.Background(), testService(), testRequest("i-1"))
	assert.Empty(t, resp.Cards, "cards missing required summary must be rejected")
}

func TestExecute_FailuresAreNotCached(t *testing.T) {
	var calls atomic.Int32
	var failing atomic.Bool
	failing.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(cardResponse))
	}))
	t.Cleanup(srv.Close)

	exec := newTestExecutor(srv, NewMemoryCache())

	resp := exec.Execute(context.Background(), testService(), testRequest("i-1"))
	assert.Empty(t, resp.Cards)

	failing.Store(false)
	resp = exec.Execute(context.Background(), testService(), testRequest("i-2"))
	assert.Len(t, resp.Cards, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestExecute_SlowServiceTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(cardResponse))
	}))
	t.Cleanup(srv.Close)

	exec := New(srv.URL, "", NewMemoryCache(), 30*time.Second, 50*time.Millisecond,
		httpclient.NewClient(5*time.Second), logger.NewNoOpLogger())

	start := time.Now()
	resp := exec.Execute(context.Background(), testService(), testRequest("i-1"))

	assert.Empty(t, resp.Cards)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}

// ==========================
// Memory Cache Tests
// ==========================

func TestMemoryCache_PruneDropsExpiredEntries(t *testing.T) {
	cache := NewMemoryCache()
	now := time.Unix(1700000000, 0)
	cache.now = func() time.Time { return now }

	cache.Set(context.Background(), "a", &model.HookResponse{}, 10*time.Second)
	cache.Set(context.Background(), "b", &model.HookResponse{}, time.Minute)

	now = now.Add(30 * time.Second)
	cache.Prune(context.Background())

	_, okA := cache.Get(context.Background(), "a")
	_, okB := cache.Get(context.Background(), "b")
	assert.False(t, okA)
	assert.True(t, okB)
}

func TestMemoryCache_Invalidate(t *testing.T) {
	cache := NewMemoryCache()
	cache.Set(context.Background(), "a", &model.HookResponse{}, time.Minute)
	cache.Invalidate(context.Background())

	_, ok := cache.Get(context.Background(), "a")
	assert.False(t, ok)
}
