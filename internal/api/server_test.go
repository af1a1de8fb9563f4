package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/bridge"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/command"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/install"
	httpProvider "github.com/GriffinCanCode/AgentOS/scripthost/internal/providers/http"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/providers/http/client"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/shared/types"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/tabs"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type confirms map[string]*install.Confirmation

func (c confirms) ConfirmRecord(key string) (*install.Confirmation, string, bool) {
	rec, ok := c[key]
	if !ok {
		return nil, "", false
	}
	return rec, "// ==UserScript==", true
}

func testConfig() Config {
	return Config{Addr: "127.0.0.1:0", Root: "http://localhost:8000/", Development: true}
}

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := New(testConfig(), deps)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	reg := command.NewRegistry()
	require.NoError(t, reg.Register("A", func(context.Context, json.RawMessage, *types.Source) (interface{}, error) { return nil, nil }))
	tracer := tracing.New(nil)
	defer tracer.Close()
	s := newTestServer(t, Deps{Commands: reg, Tracer: tracer})

	w := do(s, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(tracing.HeaderTraceID))
	assert.Equal(t, map[string]interface{}{"status": "ok", "commands": float64(1)}, decode(t, w))
}

func TestConfirm(t *testing.T) {
	s := newTestServer(t, Deps{Confirms: confirms{
		"k1": {URL: "https://a.test/x.user.js", From: "https://a.test/", TabID: 4},
	}})

	w := do(s, "GET", "/confirm/k1", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "// ==UserScript==", body["code"])
	rec := body["record"].(map[string]interface{})
	assert.Equal(t, "https://a.test/x.user.js", rec["url"])
	assert.Equal(t, float64(4), rec["tabId"])

	w = do(s, "GET", "/confirm/gone", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnconfiguredRoutes(t *testing.T) {
	s := newTestServer(t, Deps{})

	assert.Equal(t, http.StatusServiceUnavailable, do(s, "GET", "/confirm/k", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(s, "POST", "/commands/X", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(s, "GET", "/bridge", "").Code)
}

func TestCommands(t *testing.T) {
	reg := command.NewRegistry()
	echo := command.Typed(func(_ context.Context, p map[string]string, src *types.Source) (interface{}, error) {
		return gin.H{"payload": p, "tab": src.TabID(), "url": urlOf(src)}, nil
	})
	require.NoError(t, reg.RegisterPublic("Echo", echo))
	require.NoError(t, reg.Register("Private", echo))
	require.NoError(t, reg.RegisterPublic("Reject", func(context.Context, json.RawMessage, *types.Source) (interface{}, error) {
		return nil, &install.InvalidScriptError{Message: "not a script", Preview: "<html>"}
	}))

	mgr := tabs.NewManager(nil)
	tab, err := mgr.Create(context.Background(), tabs.CreateOptions{URL: "https://site.test/"})
	require.NoError(t, err)

	s := newTestServer(t, Deps{Commands: reg, Tabs: mgr})

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantResult interface{}
	}{
		{
			name:       "payload and tab",
			path:       "/commands/Echo",
			body:       `{"payload": {"a": "b"}, "tab_id": ` + itoa(tab.ID) + `}`,
			wantStatus: http.StatusOK,
			wantResult: map[string]interface{}{
				"payload": map[string]interface{}{"a": "b"},
				"tab":     float64(tab.ID),
				"url":     "https://site.test/",
			},
		},
		{
			name:       "empty body",
			path:       "/commands/Echo",
			wantStatus: http.StatusOK,
			wantResult: map[string]interface{}{"payload": nil, "tab": float64(-1), "url": ""},
		},
		{name: "unknown command", path: "/commands/Nope", wantStatus: http.StatusNotFound},
		{name: "private command", path: "/commands/Private", wantStatus: http.StatusForbidden},
		{name: "invalid json", path: "/commands/Echo", body: `{"payload":`, wantStatus: http.StatusBadRequest},
		{name: "payload of wrong shape", path: "/commands/Echo", body: `{"payload": [1]}`, wantStatus: http.StatusBadRequest},
		{name: "tab id not a number", path: "/commands/Echo", body: `{"tab_id": "1"}`, wantStatus: http.StatusBadRequest},
		{name: "unknown tab", path: "/commands/Echo", body: `{"tab_id": 999}`, wantStatus: http.StatusNotFound},
		{name: "invalid script", path: "/commands/Reject", body: `{}`, wantStatus: http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(s, "POST", tt.path, tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			body := decode(t, w)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantResult, body["result"])
			} else {
				assert.NotEmpty(t, body["error"])
			}
		})
	}
}

func urlOf(src *types.Source) string {
	if src == nil {
		return ""
	}
	return src.URL
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newTestServer(t, Deps{Metrics: monitoring.NewMetrics(reg), Gatherer: reg})

	do(s, "GET", "/health", "")
	w := do(s, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `scripthost_http_requests_total{method="GET",path="/health",status="200"} 1`)
}

func TestBridge(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "pong")
	}))
	defer upstream.Close()

	copts := client.DefaultOptions()
	copts.Retries = 0
	s := newTestServer(t, Deps{Trusted: httpProvider.NewHandler(client.NewClient(copts))})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	transport, err := bridge.DialWS(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/bridge")
	require.NoError(t, err)

	page := bridge.NewEndpoint("page", transport)
	ids := make(chan int64, 1)
	events := make(chan bridge.HTTPEvent, 16)
	page.Handle(bridge.CmdGotRequestID, func(_ context.Context, data json.RawMessage) {
		var id int64
		_ = bridge.Decode(data, &id)
		ids <- id
	})
	page.Handle(bridge.CmdHTTPRequested, func(_ context.Context, data json.RawMessage) {
		var ev bridge.HTTPEvent
		_ = bridge.Decode(data, &ev)
		events <- ev
	})
	go func() { _ = page.Serve(ctx) }()
	defer page.Close()

	require.NoError(t, page.Post(bridge.CmdGetRequestID, nil))
	var id int64
	select {
	case id = <-ids:
	case <-ctx.Done():
		t.Fatal("no request id")
	}
	assert.Equal(t, int64(1), id)

	require.NoError(t, page.Post(bridge.CmdHTTPRequest, bridge.HTTPRequest{ID: id, Method: "GET", URL: upstream.URL}))
	for {
		select {
		case ev := <-events:
			if ev.Type == bridge.EventLoad {
				assert.Equal(t, "pong", ev.Data.Response)
				assert.Equal(t, 200, ev.Data.Status)
			}
			if ev.Type == bridge.EventLoadEnd {
				return
			}
		case <-ctx.Done():
			t.Fatal("request never finished")
		}
	}
}

func TestBridgeUnknownTab(t *testing.T) {
	s := newTestServer(t, Deps{
		Trusted: httpProvider.NewHandler(client.NewClient(client.DefaultOptions())),
		Tabs:    tabs.NewManager(nil),
	})

	assert.Equal(t, http.StatusNotFound, do(s, "GET", "/bridge?tab=5", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(s, "GET", "/bridge?tab=x", "").Code)
}
