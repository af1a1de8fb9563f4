package sandbox

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/bridge"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/gmapi"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trusted answers the page's bridge traffic. respond decides what events a
// request gets; nil means it is never answered.
type trusted struct {
	ep     *bridge.Endpoint
	nextID int64
	closes atomic.Int32
}

func newTrusted(t bridge.Transport, respond func(ep *bridge.Endpoint, req *bridge.HTTPRequest)) *trusted {
	tr := &trusted{ep: bridge.NewEndpoint("trusted", t)}
	tr.ep.Handle(bridge.CmdGetRequestID, func(context.Context, json.RawMessage) {
		tr.nextID++
		_ = tr.ep.Post(bridge.CmdGotRequestID, tr.nextID)
	})
	tr.ep.Handle(bridge.CmdHTTPRequest, func(_ context.Context, data json.RawMessage) {
		var req bridge.HTTPRequest
		if err := bridge.Decode(data, &req); err != nil || respond == nil {
			return
		}
		respond(tr.ep, &req)
	})
	tr.ep.Handle(bridge.CmdTabClose, func(context.Context, json.RawMessage) {
		tr.closes.Add(1)
	})
	return tr
}

func okResponder(ep *bridge.Endpoint, req *bridge.HTTPRequest) {
	for _, typ := range []string{bridge.EventLoadStart, bridge.EventLoad, bridge.EventLoadEnd} {
		_ = ep.Post(bridge.CmdHTTPRequested, bridge.HTTPEvent{
			ID:   req.ID,
			Type: typ,
			Data: bridge.HTTPEventData{ReadyState: 4, Status: 200, Response: "hello " + req.URL},
		})
	}
}

func newPage(t *testing.T, config Config, respond func(*bridge.Endpoint, *bridge.HTTPRequest)) (*Page, *trusted) {
	t.Helper()
	a, b := bridge.Pipe()
	page := New(config, a)
	tr := newTrusted(b, respond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = page.Serve(ctx) }()
	go func() { _ = tr.ep.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = page.Close()
	})
	return page, tr
}

func job(code string, grants ...string) Job {
	return Job{
		Script: &script.Script{ID: 1, DisplayName: "test", Meta: script.Meta{Name: "test", Grant: grants}},
		Code:   code,
	}
}

func testConfig() Config {
	config := DefaultConfig()
	config.Timeout = 2 * time.Second
	config.BaseURL = "https://site.test/dir/page.html"
	return config
}

func TestRuntimeExecution(t *testing.T) {
	page, _ := newPage(t, testConfig(), nil)

	tests := []struct {
		name   string
		script string
		want   interface{}
	}{
		{"simple return", "return 42", int64(42)},
		{"math operations", "return Math.sqrt(16)", int64(4)},
		{"string operations", "return 'hello'.toUpperCase()", "HELLO"},
		{"no return", "var x = 1", nil},
		{"trailing line comment", "return 1 // done", int64(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := page.Execute(context.Background(), job(tt.script))
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Value)
		})
	}
}

func TestRuntimeSecurity(t *testing.T) {
	page, _ := newPage(t, testConfig(), nil)

	for _, name := range []string{"require", "process", "module", "exports"} {
		t.Run(name, func(t *testing.T) {
			result, err := page.Execute(context.Background(), job("return typeof "+name))
			require.NoError(t, err)
			assert.Equal(t, "undefined", result.Value)
		})
	}
}

func TestConsoleCapture(t *testing.T) {
	page, _ := newPage(t, testConfig(), nil)

	result, err := page.Execute(context.Background(), job(`console.log("a", 1); console.warn("b")`))
	require.NoError(t, err)
	require.Len(t, result.Console, 2)
	assert.Equal(t, "log", result.Console[0].Level)
	assert.Equal(t, "a 1", result.Console[0].Message)
	assert.Equal(t, "warn", result.Console[1].Level)

	result, err = page.Execute(context.Background(), job(`console.log("c")`))
	require.NoError(t, err)
	assert.Len(t, result.Console, 1)
}

func TestUngrantedScript(t *testing.T) {
	page, _ := newPage(t, testConfig(), nil)

	result, err := page.Execute(context.Background(), job(
		`return [typeof GM_getValue, GM_info.script.name, typeof GM, unsafeWindow === this || typeof unsafeWindow].join()`,
		"none",
	))
	require.NoError(t, err)
	assert.Equal(t, "undefined,test,object,true", result.Value)
}

func TestGrantedScript(t *testing.T) {
	page, _ := newPage(t, testConfig(), nil)

	result, err := page.Execute(context.Background(), job(
		`GM_setValue("n", 3); return GM_getValue("n") + c.GM_getValue("n") + Math.max(1, 2)`,
		"GM_getValue", "GM_setValue",
	))
	require.NoError(t, err)
	assert.Equal(t, int64(8), result.Value)

	t.Run("values persist across runs", func(t *testing.T) {
		result, err := page.Execute(context.Background(), job(`return GM_getValue("n", 0)`, "GM_getValue"))
		require.NoError(t, err)
		assert.Equal(t, int64(3), result.Value)
	})

	t.Run("writes stay in the scope", func(t *testing.T) {
		result, err := page.Execute(context.Background(), job(
			`Math = 1; GM_getValue = null; return typeof Math`,
			"GM_getValue",
		))
		require.NoError(t, err)
		assert.Equal(t, "number", result.Value)

		result, err = page.Execute(context.Background(), job(`return typeof Math.max + typeof GM_getValue`, "GM_getValue"))
		require.NoError(t, err)
		assert.Equal(t, "functionfunction", result.Value)
	})
}

func TestGMLogInConsole(t *testing.T) {
	page, _ := newPage(t, testConfig(), nil)

	result, err := page.Execute(context.Background(), job(`GM_log("hi")`, "GM_log"))
	require.NoError(t, err)
	require.Len(t, result.Console, 1)
	assert.Equal(t, LogEntry{Level: "gm", Message: "hi", Time: result.Console[0].Time}, result.Console[0])
}

func TestResourcesFromJob(t *testing.T) {
	page, _ := newPage(t, testConfig(), nil)

	j := job(`return GM_getResourceText("css")`, "GM_getResourceText")
	j.Script.Meta.Resources = []script.Resource{{Name: "css", URL: "https://cdn.test/a.css"}}
	j.Resources = gmapi.ResourceMap{"https://cdn.test/a.css": {Data: []byte("p{}")}}

	result, err := page.Execute(context.Background(), j)
	require.NoError(t, err)
	assert.Equal(t, "p{}", result.Value)
}

func TestExecuteWaitsForRequests(t *testing.T) {
	page, _ := newPage(t, testConfig(), okResponder)

	result, err := page.Execute(context.Background(), job(`
		GM_xmlhttpRequest({
			url: "data.json",
			onload: function(r) { console.log(r.status, r.responseText) },
			onloadend: function() { console.log("end") }
		})
		console.log("sent")`,
		"GM_xmlhttpRequest",
	))
	require.NoError(t, err)
	msgs := make([]string, len(result.Console))
	for i, e := range result.Console {
		msgs[i] = e.Message
	}
	assert.Equal(t, []string{"sent", "200 hello https://site.test/dir/data.json", "end"}, msgs)
	assert.Equal(t, 0, page.Requests().Active())
}

func TestPromiseRequest(t *testing.T) {
	page, _ := newPage(t, testConfig(), okResponder)

	result, err := page.Execute(context.Background(), job(`
		GM.xmlHttpRequest({url: "https://api.test/x"}).then(function(r) { console.log(r.responseText) })`,
		"GM.xmlHttpRequest",
	))
	require.NoError(t, err)
	require.Len(t, result.Console, 1)
	assert.Equal(t, "hello https://api.test/x", result.Console[0].Message)
}

func TestTimers(t *testing.T) {
	page, _ := newPage(t, testConfig(), nil)

	result, err := page.Execute(context.Background(), job(`
		setTimeout(function(a) { console.log("late", a) }, 20, "x")
		var id = setTimeout(function() { console.log("cleared") }, 10)
		clearTimeout(id)
		console.log("now")`,
	))
	require.NoError(t, err)
	require.Len(t, result.Console, 2)
	assert.Equal(t, "now", result.Console[0].Message)
	assert.Equal(t, "late x", result.Console[1].Message)
}

func TestIntervalsAndImmediates(t *testing.T) {
	page, _ := newPage(t, testConfig(), nil)

	result, err := page.Execute(context.Background(), job(`
		var n = 0
		var id = setInterval(function() {
			if (++n === 3) {
				clearInterval(id)
				console.log("ticks", n)
			}
		}, 5)
		setImmediate(function() { console.log("soon") })
		console.log(typeof setInterval, typeof clearImmediate)`,
	))
	require.NoError(t, err)
	msgs := make([]string, len(result.Console))
	for i, e := range result.Console {
		msgs[i] = e.Message
	}
	assert.Equal(t, []string{"function function", "soon", "ticks 3"}, msgs)
}

func TestWindowNamesTheScope(t *testing.T) {
	page, tr := newPage(t, testConfig(), nil)

	result, err := page.Execute(context.Background(), job(`
		window.close()
		return [typeof window, window === self, globalThis === this, typeof window.GM_getValue].join()`,
		"window.close", "GM_getValue",
	))
	require.NoError(t, err)
	assert.Equal(t, "object,true,true,function", result.Value)
	assert.Eventually(t, func() bool { return tr.closes.Load() == 1 }, time.Second, 5*time.Millisecond)

	t.Run("assignment shadows the alias", func(t *testing.T) {
		result, err := page.Execute(context.Background(), job(`window = 5; return window`, "window.close"))
		require.NoError(t, err)
		assert.Equal(t, int64(5), result.Value)
	})
}

func TestLateEventsAreDropped(t *testing.T) {
	config := testConfig()
	config.Timeout = 100 * time.Millisecond
	release := make(chan struct{})
	page, _ := newPage(t, config, func(ep *bridge.Endpoint, req *bridge.HTTPRequest) {
		<-release
		okResponder(ep, req)
	})

	_, err := page.Execute(context.Background(), job(
		`GM_xmlhttpRequest({url: "https://x.test/", onload: function() { console.log("late") }})`,
		"GM_xmlhttpRequest",
	))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)

	result, err := page.Execute(context.Background(), job(`setTimeout(function() { console.log("done") }, 40)`))
	require.NoError(t, err)
	require.Len(t, result.Console, 1)
	assert.Equal(t, "done", result.Console[0].Message)
}

func TestTimeoutInterrupts(t *testing.T) {
	config := testConfig()
	config.Timeout = 50 * time.Millisecond
	page, _ := newPage(t, config, nil)

	t.Run("busy loop", func(t *testing.T) {
		result, err := page.Execute(context.Background(), job(`while (true) {}`))
		require.Error(t, err)
		assert.Equal(t, err, result.Error)
	})

	t.Run("unanswered request", func(t *testing.T) {
		_, err := page.Execute(context.Background(), job(`GM_xmlhttpRequest({url: "https://x.test/"})`, "GM_xmlhttpRequest"))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("page usable afterwards", func(t *testing.T) {
		result, err := page.Execute(context.Background(), job(`return 1`))
		require.NoError(t, err)
		assert.Equal(t, int64(1), result.Value)
	})
}

func TestContextCancel(t *testing.T) {
	page, _ := newPage(t, testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := page.Execute(ctx, job(`setTimeout(function() {}, 10000)`))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompileError(t *testing.T) {
	page, _ := newPage(t, testConfig(), nil)

	_, err := page.Execute(context.Background(), job(`return (`))
	assert.Error(t, err)
}

func TestClosedPage(t *testing.T) {
	page, _ := newPage(t, testConfig(), nil)
	require.NoError(t, page.Close())

	_, err := page.Execute(context.Background(), job(`return 1`))
	assert.ErrorIs(t, err, ErrClosed)
}
