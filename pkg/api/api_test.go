package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/mcmc-coloring-service/pkg/coloring"
	"github.com/gilchrisn/mcmc-coloring-service/pkg/graph"
	"github.com/gilchrisn/mcmc-coloring-service/pkg/service"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	defaults := coloring.DefaultParams()
	defaults.Epsilon = 0.01
	defaults.MaxIterations = 300
	defaults.ProgressEvery = 0

	jobs := service.NewJobService(service.Options{
		Defaults: defaults,
		Device:   graph.DeviceOptions{Workers: 2, ChunkSize: 8},
		Metrics:  coloring.NewMetrics(reg),
	})
	server := httptest.NewServer(NewRouter(NewHandlers(jobs), reg))
	t.Cleanup(func() {
		server.Close()
		jobs.Close()
	})
	return server
}

func call(method, url, body string) (*http.Response, envelope, error) {
	var env envelope
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		return nil, env, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, env, err
	}
	defer resp.Body.Close()

	err = json.NewDecoder(resp.Body).Decode(&env)
	return resp, env, err
}

func do(t *testing.T, method, url, body string) (*http.Response, envelope) {
	t.Helper()
	resp, env, err := call(method, url, body)
	require.NoError(t, err)
	return resp, env
}

func submit(t *testing.T, base, body string) string {
	t.Helper()
	resp, env := do(t, http.MethodPost, base+"/api/v1/colorings", body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, env.Error)
	require.True(t, env.Success)

	var created ColoringResponse
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.NotEmpty(t, created.JobID)
	assert.Equal(t, created.JobID, created.Job.ID)
	return created.JobID
}

func TestColoringLifecycle(t *testing.T) {
	server := newTestServer(t)

	id := submit(t, server.URL, `{
		"graph": {"edgeList": "0 1\n1 2\n2 0\n"},
		"parameters": {"numColors": 4, "seed": 9}
	}`)

	var detail ColoringDetail
	require.Eventually(t, func() bool {
		resp, env, err := call(http.MethodGet, server.URL+"/api/v1/colorings/"+id+"?include=coloring", "")
		if err != nil || resp.StatusCode != http.StatusOK {
			return false
		}
		detail = ColoringDetail{}
		if err := json.Unmarshal(env.Data, &detail); err != nil {
			return false
		}
		return detail.Job.Status.Terminal()
	}, 10*time.Second, 10*time.Millisecond)

	assert.Equal(t, service.JobStatusCompleted, detail.Job.Status)
	assert.Equal(t, uint64(9), detail.Job.Parameters.Seed)
	require.Len(t, detail.Coloring, 3)
	assert.NotEqual(t, detail.Coloring[0], detail.Coloring[1])
	assert.NotEqual(t, detail.Coloring[1], detail.Coloring[2])
	assert.NotEqual(t, detail.Coloring[0], detail.Coloring[2])

	// Without include the coloring stays out of the payload.
	_, env := do(t, http.MethodGet, server.URL+"/api/v1/colorings/"+id, "")
	assert.NotContains(t, string(env.Data), `"coloring"`)

	_, env = do(t, http.MethodGet, server.URL+"/api/v1/colorings", "")
	var jobs []service.Job
	require.NoError(t, json.Unmarshal(env.Data, &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].ID)

	resp, env := do(t, http.MethodDelete, server.URL+"/api/v1/colorings/"+id, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
}

func TestStartColoringBadRequests(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"MalformedJSON", `{"graph":`},
		{"NoGraph", `{"parameters": {"numColors": 3}}`},
		{"ZeroColors", `{"graph": {"edges": [{"u": 0, "v": 1}]}, "parameters": {"numColors": 0}}`},
		{"UnknownStrategy", `{"graph": {"edges": [{"u": 0, "v": 1}]}, "parameters": {"strategy": "sideways"}}`},
		{"BadEdgeList", `{"graph": {"edgeList": "0 1 2 3"}}`},
		{"BadProbability", `{"graph": {"random": {"nodes": 10, "prob": 1.5}}}`},
		{"GraphTooLarge", `{"graph": {"random": {"nodes": 4000000000, "prob": 0.1}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := do(t, http.MethodPost, server.URL+"/api/v1/colorings", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestUnknownJob(t *testing.T) {
	server := newTestServer(t)

	resp, env := do(t, http.MethodGet, server.URL+"/api/v1/colorings/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, env.Success)

	resp, _ = do(t, http.MethodDelete, server.URL+"/api/v1/colorings/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	server := newTestServer(t)

	resp, env := do(t, http.MethodGet, server.URL+"/api/v1/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status     string   `json:"status"`
		Strategies []string `json:"strategies"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Contains(t, health.Strategies, coloring.StrategyDecreaseLine)
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t)
	submit(t, server.URL, `{"graph": {"edges": [{"u": 0, "v": 1}]}, "parameters": {"numColors": 2}}`)

	require.Eventually(t, func() bool {
		resp, err := http.Get(server.URL + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		return err == nil && resp.StatusCode == http.StatusOK &&
			strings.Contains(string(body), "mcmc_coloring_runs_total")
	}, 10*time.Second, 10*time.Millisecond)
}

func TestCORSPreflight(t *testing.T) {
	server := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, server.URL+"/api/v1/colorings", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Less(t, resp.StatusCode, 300)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
