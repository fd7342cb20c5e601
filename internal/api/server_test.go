package api

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/smazurov/camgraph/internal/api/models"
	"github.com/smazurov/camgraph/internal/config"
	"github.com/smazurov/camgraph/internal/events"
	"github.com/smazurov/camgraph/internal/logging"
	"github.com/smazurov/camgraph/internal/metrics"
	"github.com/smazurov/camgraph/internal/nodes"
	"github.com/smazurov/camgraph/internal/pipeline"
)

const testTopology = `
depth = 2

[[nodes]]
name = "frontend"
kind = "frontend"
[nodes.params]
sensor = "640x480"

[[nodes]]
name = "sink"
kind = "sink"

[[links]]
from = "frontend:full"
to = "sink:in0"

[[devices]]
type = "lrme"
name = "lrme0"
`

type testServer struct {
	*httptest.Server
	svc *pipeline.Service
	bus *events.Bus
}

func newTestServer(t *testing.T, load bool) *testServer {
	t.Helper()
	bus := events.New()
	svc := pipeline.NewService(nodes.Registry(), bus)
	t.Cleanup(func() { _ = svc.Close() })
	if load {
		top, err := config.ParseTopology([]byte(testTopology))
		if err != nil {
			t.Fatalf("ParseTopology: %v", err)
		}
		if err := svc.Load(top); err != nil {
			t.Fatalf("Load: %v", err)
		}
	}

	server := NewServer(&Options{
		AuthUsername:      "test",
		AuthPassword:      "test",
		Service:           svc,
		EventBus:          bus,
		PrometheusHandler: metrics.Handler(),
	})
	ts := httptest.NewServer(server.GetMux())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, svc: svc, bus: bus}
}

func (ts *testServer) do(t *testing.T, method, path, body string, out any) int {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, ts.URL+path, r)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.SetBasicAuth("test", "test")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestAuthentication(t *testing.T) {
	ts := newTestServer(t, true)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"health is public", "/api/health", "", http.StatusOK},
		{"version is public", "/api/version", "", http.StatusOK},
		{"missing credentials", "/api/pipeline", "", http.StatusUnauthorized},
		{"wrong scheme", "/api/pipeline", "Bearer abc", http.StatusUnauthorized},
		{"wrong password", "/api/pipeline", "Basic " + base64.StdEncoding.EncodeToString([]byte("test:nope")), http.StatusUnauthorized},
		{"valid header", "/api/pipeline", "Basic " + base64.StdEncoding.EncodeToString([]byte("test:test")), http.StatusOK},
		{"query fallback", "/api/devices?auth=" + base64.StdEncoding.EncodeToString([]byte("test:test")), "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequestWithContext(t.Context(), http.MethodGet, ts.URL+tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.want == http.StatusUnauthorized && resp.Header.Get("WWW-Authenticate") != authRealm {
				t.Errorf("WWW-Authenticate = %q", resp.Header.Get("WWW-Authenticate"))
			}
		})
	}
}

func TestPipelineSnapshot(t *testing.T) {
	ts := newTestServer(t, true)
	p, _ := ts.svc.Current()

	var got models.PipelineData
	if code := ts.do(t, http.MethodGet, "/api/pipeline", "", &got); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if got.Session != p.Session() || got.Depth != 2 {
		t.Errorf("session %q depth %d, want %q and 2", got.Session, got.Depth, p.Session())
	}
	var names []string
	for _, n := range got.Nodes {
		names = append(names, n.Name)
	}
	if diff := cmp.Diff([]string{"frontend", "sink"}, names); diff != "" {
		t.Errorf("nodes (-want +got):\n%s", diff)
	}
	if got.NextRequest != 1 {
		t.Errorf("next request = %d, want 1", got.NextRequest)
	}
}

func TestSubmitAndFlush(t *testing.T) {
	ts := newTestServer(t, true)

	var sub models.SubmitData
	body := `{"count": 3, "controls": {"fd.skip": true, "aec.gain": 2}}`
	if code := ts.do(t, http.MethodPost, "/api/requests", body, &sub); code != http.StatusOK {
		t.Fatalf("submit status = %d", code)
	}
	if diff := cmp.Diff([]uint64{1, 2, 3}, sub.Requests); diff != "" {
		t.Errorf("request ids (-want +got):\n%s", diff)
	}

	var flush models.FlushData
	if code := ts.do(t, http.MethodPost, "/api/pipeline/flush", "", &flush); code != http.StatusOK {
		t.Fatalf("flush status = %d", code)
	}
	if flush.Requests != 0 {
		t.Errorf("flush of an idle pipeline cancelled %d requests", flush.Requests)
	}

	if code := ts.do(t, http.MethodPost, "/api/requests", `{}`, &sub); code != http.StatusOK {
		t.Fatalf("submit status = %d", code)
	}
	if diff := cmp.Diff([]uint64{1}, sub.Requests); diff != "" {
		t.Errorf("numbering after flush (-want +got):\n%s", diff)
	}

	if code := ts.do(t, http.MethodPost, "/api/pipeline/renegotiate", "", nil); code != http.StatusOK {
		t.Errorf("renegotiate status = %d", code)
	}
}

func TestDevices(t *testing.T) {
	ts := newTestServer(t, true)

	var got models.DeviceListData
	if code := ts.do(t, http.MethodGet, "/api/devices", "", &got); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if got.Count != 1 || got.Devices[0].Name != "lrme0" || got.Devices[0].Acquired {
		t.Errorf("devices = %+v", got)
	}
}

func TestNoPipeline(t *testing.T) {
	ts := newTestServer(t, false)

	for _, path := range []string{"/api/pipeline", "/api/devices"} {
		if code := ts.do(t, http.MethodGet, path, "", nil); code != http.StatusServiceUnavailable {
			t.Errorf("GET %s = %d, want 503", path, code)
		}
	}
	if code := ts.do(t, http.MethodPost, "/api/requests", `{}`, nil); code != http.StatusServiceUnavailable {
		t.Errorf("submit = %d, want 503", code)
	}

	var health models.HealthData
	ts.do(t, http.MethodGet, "/api/health", "", &health)
	if health.Status != "degraded" {
		t.Errorf("health = %+v, want degraded", health)
	}
}

func TestSubmitErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{pipeline.ErrQueueFull, http.StatusTooManyRequests},
		{fmt.Errorf("submit: %w", pipeline.ErrNotActive), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		var se huma.StatusError
		if !errors.As(submitError(tt.err), &se) || se.GetStatus() != tt.want {
			t.Errorf("submitError(%v) status = %v, want %d", tt.err, se, tt.want)
		}
	}
}

func TestLogs(t *testing.T) {
	ts := newTestServer(t, false)
	logging.GetLogger("apitest").Info("Hello from the test", "n", 7)

	var got models.LogListData
	if code := ts.do(t, http.MethodGet, "/api/logs?module=apitest&limit=5", "", &got); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if got.Count == 0 || got.Entries[got.Count-1].Message != "Hello from the test" {
		t.Fatalf("entries = %+v", got.Entries)
	}
	if n := got.Entries[got.Count-1].Attrs["n"]; n != float64(7) {
		t.Errorf("attr n = %v (%T)", n, n)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, true)
	ts.do(t, http.MethodPost, "/api/requests", `{"count": 1}`, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "camgraph_request_retired_total") {
		t.Error("retirement counter missing from /metrics")
	}
}

func TestEventStream(t *testing.T) {
	ts := newTestServer(t, true)
	p, _ := ts.svc.Current()

	auth := base64.StdEncoding.EncodeToString([]byte("test:test"))
	resp, err := http.Get(ts.URL + "/api/events?auth=" + auth)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("content type = %q", resp.Header.Get("Content-Type"))
	}

	lines := make(chan string, 64)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "data:") {
				lines <- line
			}
		}
	}()
	next := func(want string) {
		t.Helper()
		timeout := time.After(2 * time.Second)
		for {
			select {
			case line := <-lines:
				if strings.Contains(line, want) {
					return
				}
			case <-timeout:
				t.Fatalf("no event containing %s", want)
			}
		}
	}

	next(`"session":"` + p.Session() + `"`)
	ts.do(t, http.MethodPost, "/api/requests", `{"count": 1}`, nil)
	next(`"status":"success"`)
}
