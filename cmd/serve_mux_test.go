//go:build !integration

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reliefmap/pcoder/internal/detect"
	"github.com/reliefmap/pcoder/internal/engine"
	"github.com/reliefmap/pcoder/internal/gazetteer"
	"github.com/reliefmap/pcoder/internal/gazetteer/gazettest"
	"github.com/reliefmap/pcoder/internal/policy"
	"github.com/reliefmap/pcoder/internal/store"
)

const bicolBody = `{"name":"dromic","rows":[
	{"text":"REGION V","value":1300},
	{"text":"Albay","value":500},
	{"text":"Legazpi City","value":300},
	{"text":"Daraga","value":200},
	{"text":"Camarines Sur","value":800}
]}`

type testResponse struct {
	Results []engine.Result `json:"results"`
	RunIDs  []string        `json:"run_ids"`
	Error   string          `json:"error"`
}

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	opts := engine.DefaultOptions()
	opts.Detect.HUC = gazettest.HUCs()
	return engine.New(gazettest.New(t), policy.Default(), opts)
}

func testStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "pcoder.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

func serve(t *testing.T, mux http.Handler, method, path, body string) (*httptest.ResponseRecorder, testResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	var resp testResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return rr, resp
}

func TestBuildMux_HealthEndpoint(t *testing.T) {
	mux := buildMux(context.Background(), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestBuildMux_Resolve_NilEngine(t *testing.T) {
	mux := buildMux(context.Background(), nil, nil)

	rr, resp := serve(t, mux, http.MethodPost, "/v1/resolve", bicolBody)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "engine not ready", resp.Error)
}

func TestBuildMux_Resolve_BadRequests(t *testing.T) {
	mux := buildMux(context.Background(), testEngine(t), nil)

	tests := map[string]struct {
		body string
		want string
	}{
		"invalid json": {body: `{"rows":`, want: "invalid request body"},
		"no rows":      {body: `{"name":"empty"}`, want: "rows or tables are required"},
		"empty tables": {body: `{"tables":[]}`, want: "rows or tables are required"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rr, resp := serve(t, mux, http.MethodPost, "/v1/resolve", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tt.want, resp.Error)
		})
	}
}

func TestBuildMux_Resolve_SingleTable(t *testing.T) {
	mux := buildMux(context.Background(), testEngine(t), nil)

	rr, resp := serve(t, mux, http.MethodPost, "/v1/resolve", bicolBody)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Len(t, resp.Results, 1)
	assert.Empty(t, resp.RunIDs)

	res := resp.Results[0]
	assert.Equal(t, "dromic", res.Name)
	require.Len(t, res.Rows, 5)
	require.Len(t, res.Paths, 5)
	for i, r := range res.Rows {
		assert.Equal(t, i, r.Seq)
	}
	assert.Equal(t, gazetteer.LevelRegion, res.Rows[0].Level)
	assert.Equal(t, gazetteer.LevelProvince, res.Rows[4].Level)
	assert.Equal(t, gazettest.Legazpi, res.Paths[2].ADM3)
	assert.Equal(t, gazettest.Albay, res.Paths[3].ADM2)
	assert.InDelta(t, 1.0, res.Summary.Overall.MatchRate, 1e-9)
}

func TestBuildMux_Resolve_Tables(t *testing.T) {
	mux := buildMux(context.Background(), testEngine(t), nil)

	body := `{"tables":[` + bicolBody + `,{"name":"cebu","rows":[
		{"text":"REGION VII","value":100,"seq":0},
		{"text":"Cebu City","value":100,"seq":1}
	]}]}`
	rr, resp := serve(t, mux, http.MethodPost, "/v1/resolve", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Len(t, resp.Results, 2)

	assert.Equal(t, "dromic", resp.Results[0].Name)
	assert.Equal(t, "cebu", resp.Results[1].Name)
	assert.True(t, resp.Results[1].Rows[1].HUC)
	require.NotNil(t, resp.Results[1].Rows[1].Entity)
	assert.Equal(t, gazettest.CebuCity, resp.Results[1].Rows[1].Entity.Code)
}

func TestBuildMux_Resolve_Persists(t *testing.T) {
	st := testStore(t)
	mux := buildMux(context.Background(), testEngine(t), st)

	rr, resp := serve(t, mux, http.MethodPost, "/v1/resolve", bicolBody)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Len(t, resp.RunIDs, 1)

	rows, err := st.ListRows(context.Background(), resp.RunIDs[0])
	require.NoError(t, err)
	assert.Len(t, rows, 5)

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/"+resp.RunIDs[0], nil)
	got := httptest.NewRecorder()
	mux.ServeHTTP(got, req)
	require.Equal(t, http.StatusOK, got.Code)

	var run store.Run
	require.NoError(t, json.Unmarshal(got.Body.Bytes(), &run))
	assert.Equal(t, store.RunStatusComplete, run.Status)
	assert.Equal(t, "http", run.Source)
	assert.Equal(t, "dromic", run.Table)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 5, run.Summary.Overall.Total)
}

func TestBuildMux_GetRun_NotFound(t *testing.T) {
	mux := buildMux(context.Background(), nil, testStore(t))

	rr, resp := serve(t, mux, http.MethodGet, "/v1/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "run not found", resp.Error)
}

func TestBuildMux_GetRun_NoStore(t *testing.T) {
	mux := buildMux(context.Background(), nil, nil)

	rr, resp := serve(t, mux, http.MethodGet, "/v1/runs/abc", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "persistence disabled", resp.Error)
}

func TestNumberRows(t *testing.T) {
	in := engine.Input{Rows: []detect.RawRow{{Text: "a"}, {Text: "b"}, {Text: "c"}}}
	numberRows(&in)
	for i, r := range in.Rows {
		assert.Equal(t, i, r.Seq)
	}

	// Explicit numbering is kept.
	in = engine.Input{Rows: []detect.RawRow{{Text: "a", Seq: 5}, {Text: "b", Seq: 2}}}
	numberRows(&in)
	assert.Equal(t, 5, in.Rows[0].Seq)
	assert.Equal(t, 2, in.Rows[1].Seq)
}
