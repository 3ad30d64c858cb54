package steppercache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/always-cache/stepper-cache/cache"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededCache(t *testing.T) (*StepperCache, cache.Store, *testOrigin) {
	origin := newTestOrigin(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.URL.Path))
	})
	store := cache.NewMemStore()
	require.NoError(t, store.Put(context.Background(), "stepper-static-v0", "http://forum.example.com/old.css", []byte("x")))
	require.NoError(t, store.Put(context.Background(), "unrelated", "http://forum.example.com/", []byte("x")))
	c := newTestCache(t, Config{Store: store})
	do(t, c, "GET", origin.URL+"/app.js", nil)
	do(t, c, "GET", origin.URL+"/", nil)
	do(t, c, "GET", origin.URL+"/api/tags", nil)
	return c, store, origin
}

func TestPartitionStats(t *testing.T) {
	c, _, _ := seededCache(t)

	stats, err := c.PartitionStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"stepper-static-v0":   1,
		"stepper-static-v1":   1,
		"stepper-response-v1": 2,
	}, stats)
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	c, store, origin := seededCache(t)

	deleted, err := c.ClearAll(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"stepper-static-v0", "stepper-static-v1", "stepper-response-v1"}, deleted)

	partitions, err := store.Partitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"unrelated"}, partitions)

	// the cache keeps working
	res, _ := do(t, c, "GET", origin.URL+"/app.js", nil)
	assert.Equal(t, "Stepper-Cache; fwd=uri-miss; stored", res.Header.Get("Cache-Status"))
	assert.Equal(t, 2, origin.Hits("/app.js"))
}

func TestRefreshAll(t *testing.T) {
	c, _, origin := seededCache(t)

	queued, err := c.RefreshAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, queued)
	c.Wait()

	assert.Equal(t, 2, origin.Hits("/app.js"))
	assert.Equal(t, 2, origin.Hits("/"))
	assert.Equal(t, 2, origin.Hits("/api/tags"))
}

func TestAdminRouter(t *testing.T) {
	c, _, _ := seededCache(t)
	router := c.AdminRouter("")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/stats", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var stats struct {
		Partitions map[string]int `json:"partitions"`
		Counters   Stats          `json:"counters"`
		Installed  bool           `json:"installed"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Partitions["stepper-response-v1"])
	assert.Equal(t, int64(3), stats.Counters.Misses)
	assert.True(t, stats.Installed)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/clear", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/clear", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"success":true`)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/refresh", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"queued":0`)
}

func TestAdminRouterSecret(t *testing.T) {
	c, _, _ := seededCache(t)
	router := c.AdminRouter("s3cret")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/stats", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	for _, auth := range []string{"s3cret", "Bearer wrong", "Basic s3cret", "Bearer s3cret2"} {
		req := httptest.NewRequest("GET", "/stats", nil)
		req.Header.Set("Authorization", auth)
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, auth)
	}

	req := httptest.NewRequest("GET", "/stats", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestScriptHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sw.js")
	require.NoError(t, os.WriteFile(path, []byte("self.addEventListener('fetch', () => {})"), 0644))
	handler := ScriptHandler(path)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/sw.js", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/javascript", rr.Header().Get("Content-Type"))
	assert.Equal(t, "self.addEventListener('fetch', () => {})", rr.Body.String())

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("POST", "/sw.js", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = httptest.NewRecorder()
	ScriptHandler(filepath.Join(t.TempDir(), "missing.js")).ServeHTTP(rr, httptest.NewRequest("GET", "/sw.js", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

type brokenWriter struct {
	header http.Header
}

func (b *brokenWriter) Header() http.Header {
	return b.header
}

func (b *brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func (b *brokenWriter) WriteHeader(int) {}

func TestSendJSONLogsWriteFailure(t *testing.T) {
	var logs bytes.Buffer
	logger := zerolog.New(&logs)
	c := CreateCache(Config{Store: cache.NewMemStore(), Logger: &logger})
	defer c.Close()

	c.sendJSON(&brokenWriter{header: http.Header{}}, map[string]int{"hits": 1})

	assert.Contains(t, logs.String(), "Could not write JSON response")
	assert.Contains(t, logs.String(), "connection reset")
}
