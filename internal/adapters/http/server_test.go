package http_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	server "github.com/skald-lang/skald/internal/adapters/http"
	"github.com/skald-lang/skald/pkg/adapters/memory"
	"github.com/skald-lang/skald/pkg/dsl"
	"github.com/skald-lang/skald/pkg/script"
)

func testBundles(t *testing.T) *memory.Loader {
	t.Helper()

	b := dsl.New()
	main := b.Script("main")
	main.Text("Welcome, traveler.")
	main.Choice("Which way?",
		dsl.Option("North", func(body *dsl.Body) {
			body.Text("Snow ahead.")
		}),
		dsl.Option("South", func(body *dsl.Body) {
			body.Text("Sun ahead.")
		}),
	)
	main.Text("The road goes on.")

	program, err := b.Build()
	require.NoError(t, err)

	loader, err := memory.NewFromPrograms(map[string]*script.Program{"demo": program})
	require.NoError(t, err)
	return loader
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s := server.NewServer(server.Config{
		Bundles:   testBundles(t),
		Store:     memory.NewStore(),
		StepLimit: 10000,
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reqBody io.Reader = bytes.NewReader([]byte("{}"))
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.URL+path, reqBody)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &decoded), "body: %s", data)
	}
	return resp.StatusCode, decoded
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	status, created := doJSON(t, ts, http.MethodPost, "/sessions", map[string]any{"bundle": "demo"})
	require.Equal(t, http.StatusCreated, status)
	id := created["sessionId"].(string)
	require.NotEmpty(t, id)

	status, event := doJSON(t, ts, http.MethodPost, "/sessions/"+id+"/next", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "text", event["type"])
	assert.Equal(t, "Welcome, traveler.", event["text"])

	status, event = doJSON(t, ts, http.MethodPost, "/sessions/"+id+"/next", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "choices", event["type"])
	assert.Equal(t, "Which way?", event["prompt"])
	assert.Len(t, event["items"], 2)

	// We are parked at a boundary, so a snapshot is legal here.
	status, snap := doJSON(t, ts, http.MethodPost, "/sessions/"+id+"/snapshot", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "snapshot.v3", snap["schema"])

	status, failure := doJSON(t, ts, http.MethodPost, "/sessions/"+id+"/choose", map[string]any{"index": 5})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ENGINE_CHOICE_INDEX", failure["code"])

	status, _ = doJSON(t, ts, http.MethodPost, "/sessions/"+id+"/choose", map[string]any{"index": 0})
	require.Equal(t, http.StatusNoContent, status)

	// Past the boundary a snapshot is a conflict.
	status, failure = doJSON(t, ts, http.MethodPost, "/sessions/"+id+"/snapshot", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "SNAPSHOT_NOT_ALLOWED", failure["code"])

	status, event = doJSON(t, ts, http.MethodPost, "/sessions/"+id+"/next", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Snow ahead.", event["text"])

	status, event = doJSON(t, ts, http.MethodPost, "/sessions/"+id+"/next", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "The road goes on.", event["text"])

	status, event = doJSON(t, ts, http.MethodPost, "/sessions/"+id+"/next", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "end", event["type"])

	status, _ = doJSON(t, ts, http.MethodDelete, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestResumeFromSavedSnapshot(t *testing.T) {
	ts := newTestServer(t)

	status, created := doJSON(t, ts, http.MethodPost, "/sessions", map[string]any{"bundle": "demo"})
	require.Equal(t, http.StatusCreated, status)
	id := created["sessionId"].(string)

	doJSON(t, ts, http.MethodPost, "/sessions/"+id+"/next", nil) // text
	doJSON(t, ts, http.MethodPost, "/sessions/"+id+"/next", nil) // choices

	status, _ = doJSON(t, ts, http.MethodPost, "/sessions/"+id+"/snapshot", nil)
	require.Equal(t, http.StatusOK, status)

	status, listing := doJSON(t, ts, http.MethodGet, "/sessions", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, listing["saved"], id)

	status, _ = doJSON(t, ts, http.MethodPost, "/sessions/"+id+"/resume", map[string]any{"bundle": "demo"})
	require.Equal(t, http.StatusOK, status)

	// The resumed engine re-echoes the pending boundary.
	status, event := doJSON(t, ts, http.MethodPost, "/sessions/"+id+"/next", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "choices", event["type"])

	status, _ = doJSON(t, ts, http.MethodPost, "/sessions/"+id+"/choose", map[string]any{"index": 1})
	require.Equal(t, http.StatusNoContent, status)

	status, event = doJSON(t, ts, http.MethodPost, "/sessions/"+id+"/next", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Sun ahead.", event["text"])
}

func TestSessionErrors(t *testing.T) {
	ts := newTestServer(t)

	status, _ := doJSON(t, ts, http.MethodPost, "/sessions", map[string]any{"bundle": "missing"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = doJSON(t, ts, http.MethodPost, "/sessions/nope/next", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = doJSON(t, ts, http.MethodPost, "/sessions/nope/resume", map[string]any{"bundle": "demo"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	status, created := doJSON(t, ts, http.MethodPost, "/sessions", map[string]any{"bundle": "demo"})
	require.Equal(t, http.StatusCreated, status)
	id := created["sessionId"].(string)
	doJSON(t, ts, http.MethodPost, "/sessions/"+id+"/next", nil)

	resp, err = ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "skald_sessions_started_total")
	assert.Contains(t, string(body), `skald_events_total{type="text"}`)
}
