package install

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/cache"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/command"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/fetch"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/options"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/shared/types"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/tabs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const validScript = "// ==UserScript==\n// @name Test\n// ==/UserScript==\nalert(1)\n"

type mockFetcher struct{ mock.Mock }

func (m *mockFetcher) Request(_ context.Context, u string) (*fetch.Result, error) {
	args := m.Called(u)
	res, _ := args.Get(0).(*fetch.Result)
	return res, args.Error(1)
}

type mockTabs struct{ mock.Mock }

func (m *mockTabs) Get(_ context.Context, id int64) (*types.Tab, error) {
	args := m.Called(id)
	t, _ := args.Get(0).(*types.Tab)
	return t, args.Error(1)
}

func (m *mockTabs) Update(_ context.Context, id int64, opts tabs.UpdateOptions) (*types.Tab, error) {
	args := m.Called(id, opts)
	t, _ := args.Get(0).(*types.Tab)
	return t, args.Error(1)
}

func (m *mockTabs) Create(_ context.Context, opts tabs.CreateOptions) (*types.Tab, error) {
	args := m.Called(opts)
	t, _ := args.Get(0).(*types.Tab)
	return t, args.Error(1)
}

func (m *mockTabs) Remove(_ context.Context, id int64) error {
	return m.Called(id).Error(0)
}

func (m *mockTabs) FocusWindow(_ context.Context, windowID int64) error {
	return m.Called(windowID).Error(0)
}

const root = "chrome-extension://ext/"

func testConfig() Config {
	return Config{
		ExtensionRoot:         root,
		OptionsURL:            root + "options/index.html",
		ConfirmURLBase:        root + "confirm/index.html#",
		Version:               120,
		FileSchemeRequestable: true,
		BypassTTL:             10 * time.Second,
		AutocloseTTL:          10 * time.Second,
		CodeTTL:               3 * time.Second,
		ConfirmTTL:            time.Minute,
	}
}

type fixture struct {
	r       *Redirector
	fetcher *mockFetcher
	tabs    *mockTabs
	cache   *cache.Store
	opts    *options.Store
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		fetcher: &mockFetcher{},
		tabs:    &mockTabs{},
		cache:   cache.New(),
		opts:    options.NewStore(options.Defaults()),
	}
	reg := command.NewRegistry()
	require.NoError(t, tabs.RegisterCommands(reg, f.tabs))
	f.r = New(Deps{
		Config:   cfg,
		Cache:    f.cache,
		Fetcher:  f.fetcher,
		Tabs:     f.tabs,
		Commands: reg,
		Options:  f.opts,
	}, WithKeyGenerator(func() string { return "KEY" }))
	require.NoError(t, f.r.RegisterCommands(reg))
	return f
}

func TestInterceptPolicy(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"raw github content (scenario A)", "https://raw.githubusercontent.com/u/r/raw/main/x.user.js", true},
		{"github repo page (scenario B)", "https://github.com/u/r", false},
		{"github raw path", "https://github.com/u/r/raw/main/x.user.js", true},
		{"github release asset", "https://github.com/u/r/releases/download/v1/x.user.js", true},
		{"github blob page", "https://github.com/u/r/blob/main/x.user.js", false},
		{"greasyfork code", "https://greasyfork.org/scripts/123-x/code/x.user.js", true},
		{"greasyfork page", "https://greasyfork.org/scripts/123-x.user.js", false},
		{"sleazyfork code with query", "https://sleazyfork.org/scripts/1/code/y.user.js?v=2", true},
		{"openuserjs install", "https://openuserjs.org/install/me/x.user.js", true},
		{"gist raw", "https://gist.github.com/me/abc/raw/def/x.user.js", true},
		{"insecure whitelist host", "http://greasyfork.org/scripts/1/code/x.user.js", false},
		{"third party host", "https://example.com/path/x.user.js", true},
		{"case insensitive host", "https://GitHub.com/u/r", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldIntercept(tt.url))
		})
	}
}

func TestOnBeforeRequestFilters(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	assert.Equal(t, Decision{}, f.r.OnBeforeRequest(ctx, Request{Method: "POST", URL: "https://example.com/x.user.js", Type: TypeMainFrame}))
	assert.Equal(t, Decision{}, f.r.OnBeforeRequest(ctx, Request{Method: "GET", URL: "https://example.com/x.js", Type: TypeMainFrame}))
	assert.Equal(t, Decision{}, f.r.OnBeforeRequest(ctx, Request{Method: "GET", URL: "https://example.com/x.user.js", Type: TypeSubFrame}))
	assert.Equal(t, Decision{}, f.r.OnBeforeRequest(ctx, Request{Method: "GET", URL: "https://github.com/u/r/blob/x.user.js", Type: TypeMainFrame}))

	f.cache.Put(bypassPrefix+"https://example.com/x.user.js", true, time.Minute)
	assert.Equal(t, Decision{}, f.r.OnBeforeRequest(ctx, Request{Method: "GET", URL: "https://example.com/x.user.js", Type: TypeMainFrame}))
	f.fetcher.AssertNotCalled(t, "Request", mock.Anything)
}

func TestOnBeforeRequestVirtualURL(t *testing.T) {
	f := newFixture(t, testConfig())
	d := f.r.OnBeforeRequest(context.Background(), Request{Method: "GET", URL: root + "My%20Script.user.js#42", Type: TypeMainFrame})
	assert.Equal(t, Redirect, d.Action)
	assert.Equal(t, root+"options/index.html#scripts/42", d.RedirectURL)

	assert.Equal(t, root+"options/index.html#scripts", f.r.ResolveVirtualURL(root+"x.user.js#abc"))
}

func TestInterceptedNavigationIsNeutralized(t *testing.T) {
	url := "https://raw.githubusercontent.com/u/r/raw/main/x.user.js"

	t.Run("redirects to no-op when it cannot cancel", func(t *testing.T) {
		f := newFixture(t, testConfig())
		f.fetcher.On("Request", url).Return(nil, errors.New("offline"))

		d := f.r.OnBeforeRequest(context.Background(), Request{Method: "GET", URL: url, TabID: -1, Type: TypeMainFrame})
		f.r.Wait()
		assert.Equal(t, Decision{Action: Redirect, RedirectURL: noopURL}, d)
		assert.True(t, f.cache.Has(bypassPrefix+url))
	})

	t.Run("cancels when it can", func(t *testing.T) {
		cfg := testConfig()
		cfg.CanCancel = true
		f := newFixture(t, cfg)
		f.fetcher.On("Request", url).Return(nil, errors.New("offline"))

		d := f.r.OnBeforeRequest(context.Background(), Request{Method: "GET", URL: url, TabID: -1, Type: TypeMainFrame})
		f.r.Wait()
		assert.Equal(t, Cancel, d.Action)
	})
}

func TestMaybeInstallNotAScript(t *testing.T) {
	f := newFixture(t, testConfig())
	url := "https://example.com/page.user.js"
	tab := &types.Tab{ID: 5, WindowID: 1, URL: "https://example.com/"}

	f.tabs.On("Get", int64(5)).Return(tab, nil)
	f.fetcher.On("Request", url).Return(&fetch.Result{Data: "<html>hello</html>"}, nil)
	f.tabs.On("Update", int64(5), tabs.UpdateOptions{URL: url}).Return(tab, nil)

	f.r.MaybeInstallUserJs(context.Background(), 5, url)

	assert.True(t, f.cache.Has(bypassPrefix+url))
	f.tabs.AssertExpectations(t)

	// The restored navigation now passes through.
	d := f.r.OnBeforeRequest(context.Background(), Request{Method: "GET", URL: url, TabID: 5, Type: TypeMainFrame})
	assert.Equal(t, Allow, d.Action)
}

func TestMaybeInstallValidScript(t *testing.T) {
	f := newFixture(t, testConfig())
	url := "https://example.com/x.user.js"
	tab := &types.Tab{ID: 5, WindowID: 1, URL: url, Active: true}

	f.tabs.On("Get", int64(5)).Return(tab, nil)
	f.fetcher.On("Request", url).Return(&fetch.Result{Data: validScript}, nil)
	f.tabs.On("Update", int64(5), tabs.UpdateOptions{URL: root + "confirm/index.html#KEY"}).
		Return(&types.Tab{ID: 5, WindowID: 1}, nil)

	f.r.MaybeInstallUserJs(context.Background(), 5, url)

	f.tabs.AssertExpectations(t)
	assert.False(t, f.cache.Has(bypassPrefix+url))
	rec, code, ok := f.r.ConfirmRecord("KEY")
	require.True(t, ok)
	assert.Equal(t, url, rec.From)
	assert.Equal(t, validScript, code)
}

func TestConfirmInstallReplacesTab(t *testing.T) {
	f := newFixture(t, testConfig())
	url := "https://example.com/x.user.js"
	tab := &types.Tab{ID: 3, WindowID: 1, URL: url, Active: true}

	f.tabs.On("Update", int64(3), tabs.UpdateOptions{URL: root + "confirm/index.html#KEY"}).
		Return(&types.Tab{ID: 3, WindowID: 1}, nil)

	key, err := f.r.ConfirmInstall(context.Background(), ConfirmPayload{Code: validScript, URL: url, From: url}, &types.Source{Tab: tab})
	require.NoError(t, err)
	assert.Equal(t, "KEY", key)

	f.tabs.AssertExpectations(t)
	f.tabs.AssertNotCalled(t, "Create", mock.Anything)
	f.tabs.AssertNotCalled(t, "FocusWindow", mock.Anything)

	rec, code, ok := f.r.ConfirmRecord("KEY")
	require.True(t, ok)
	assert.Equal(t, Confirmation{URL: url, From: url, TabID: 3}, *rec)
	assert.Equal(t, validScript, code)
}

func TestConfirmInstallOpensTabAndFocusesWindow(t *testing.T) {
	f := newFixture(t, testConfig())
	url := "https://cdn.example/x.user.js"
	tab := &types.Tab{ID: 3, WindowID: 1, URL: "https://site.example/", Active: true}

	f.tabs.On("Create", tabs.CreateOptions{URL: root + "confirm/index.html#KEY", WindowID: 1, Active: true, OpenerTabID: 3}).
		Return(&types.Tab{ID: 8, WindowID: 2}, nil)
	f.tabs.On("FocusWindow", int64(2)).Return(nil)

	_, err := f.r.ConfirmInstall(context.Background(), ConfirmPayload{Code: validScript, URL: url, From: tab.URL}, &types.Source{Tab: tab})
	require.NoError(t, err)
	f.tabs.AssertExpectations(t)
	f.tabs.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestConfirmInstallReplaceRules(t *testing.T) {
	url := "https://cdn.example/x.user.js"
	confirmURL := root + "confirm/index.html#KEY"

	t.Run("autoclose marker allows replace", func(t *testing.T) {
		f := newFixture(t, testConfig())
		f.r.OnTabCreated(context.Background(), &types.Tab{ID: 4, URL: url})
		f.tabs.On("Update", int64(4), tabs.UpdateOptions{URL: confirmURL}).Return(&types.Tab{ID: 4, WindowID: 1}, nil)

		_, err := f.r.ConfirmInstall(context.Background(), ConfirmPayload{Code: validScript, URL: url, From: "https://elsewhere/"},
			&types.Source{Tab: &types.Tab{ID: 4, WindowID: 1}})
		require.NoError(t, err)
		f.tabs.AssertExpectations(t)
	})

	t.Run("new tab page allows replace", func(t *testing.T) {
		f := newFixture(t, testConfig())
		f.tabs.On("Update", int64(4), tabs.UpdateOptions{URL: confirmURL}).Return(&types.Tab{ID: 4, WindowID: 1}, nil)

		_, err := f.r.ConfirmInstall(context.Background(), ConfirmPayload{Code: validScript, URL: url, From: "chrome://newtab/"},
			&types.Source{Tab: &types.Tab{ID: 4, WindowID: 1}})
		require.NoError(t, err)
		f.tabs.AssertExpectations(t)
	})

	t.Run("private tab opens a new one", func(t *testing.T) {
		f := newFixture(t, testConfig())
		f.tabs.On("Create", mock.Anything).Return(&types.Tab{ID: 9, WindowID: 1}, nil)

		_, err := f.r.ConfirmInstall(context.Background(), ConfirmPayload{Code: validScript, URL: url, From: url},
			&types.Source{Tab: &types.Tab{ID: 4, WindowID: 1, Incognito: true}})
		require.NoError(t, err)
		f.tabs.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
		rec, _, ok := f.r.ConfirmRecord("KEY")
		require.True(t, ok)
		assert.True(t, rec.Incognito)
	})

	t.Run("private tab replaced when allowed", func(t *testing.T) {
		cfg := testConfig()
		cfg.AllowPrivateReplace = true
		f := newFixture(t, cfg)
		f.tabs.On("Update", int64(4), tabs.UpdateOptions{URL: confirmURL}).Return(&types.Tab{ID: 4, WindowID: 1}, nil)

		_, err := f.r.ConfirmInstall(context.Background(), ConfirmPayload{Code: validScript, URL: url, From: url},
			&types.Source{Tab: &types.Tab{ID: 4, WindowID: 1, Incognito: true}})
		require.NoError(t, err)
		f.tabs.AssertExpectations(t)
	})
}

func TestConfirmInstallInvalidScript(t *testing.T) {
	f := newFixture(t, testConfig())

	_, err := f.r.ConfirmInstall(context.Background(), ConfirmPayload{Code: "not a script", URL: "https://a/x.user.js"}, nil)
	require.Error(t, err)
	assert.True(t, IsInvalidScript(err))
	assert.Equal(t, "Invalid script!\n\nnot a script...", err.Error())
	assert.Equal(t, 0, f.cache.Len())
	f.tabs.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	f.tabs.AssertNotCalled(t, "Create", mock.Anything)
}

func TestConfirmInstallFetchesCode(t *testing.T) {
	f := newFixture(t, testConfig())
	url := "https://a/x.user.js"
	f.fetcher.On("Request", url).Return(&fetch.Result{Data: "just text"}, nil)

	_, err := f.r.ConfirmInstall(context.Background(), ConfirmPayload{URL: url}, nil)
	assert.True(t, IsInvalidScript(err))
	f.fetcher.AssertExpectations(t)
}

func TestPreview(t *testing.T) {
	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, "line")
	}
	p := Preview("\n\n" + strings.Join(lines, "\r\n   ") + "\n")
	assert.Equal(t, 9, len(strings.Split(p, "\n")))

	long := strings.Repeat("é", 800)
	assert.Equal(t, 500, len([]rune(Preview(long))))
}

func TestCheckInstallerTab(t *testing.T) {
	cfg := testConfig()
	cfg.Firefox = true
	f := newFixture(t, cfg)
	f.tabs.On("Get", int64(2)).Return(&types.Tab{ID: 2, URL: root + "confirm/index.html#K"}, nil)
	f.tabs.On("Get", int64(3)).Return(&types.Tab{ID: 3, URL: "https://other/"}, nil)
	f.tabs.On("Get", int64(4)).Return(nil, tabs.ErrNoTab)

	src := &types.Source{URL: "file:///home/me/x.user.js"}
	ctx := context.Background()
	assert.True(t, f.r.CheckInstallerTab(ctx, 2, src))
	assert.False(t, f.r.CheckInstallerTab(ctx, 3, src))
	assert.False(t, f.r.CheckInstallerTab(ctx, 4, src))
	assert.False(t, f.r.CheckInstallerTab(ctx, 2, &types.Source{URL: "https://x/"}))

	chrome := newFixture(t, testConfig())
	assert.False(t, chrome.r.CheckInstallerTab(ctx, 2, src))
}

func TestOnTabCreatedLocalFile(t *testing.T) {
	cfg := testConfig()
	cfg.FileSchemeRequestable = false
	f := newFixture(t, cfg)
	url := "file:///home/me/x.user.js"
	f.tabs.On("Update", int64(6), tabs.UpdateOptions{URL: root + "confirm/index.html#KEY"}).
		Return(&types.Tab{ID: 6, WindowID: 1}, nil)

	f.r.OnTabCreated(context.Background(), &types.Tab{ID: 6, WindowID: 1, URL: url})
	f.r.Wait()

	assert.True(t, f.cache.Has(autoclosePrefix+"6"))
	rec, _, ok := f.r.ConfirmRecord("KEY")
	require.True(t, ok)
	assert.True(t, rec.FS)
	f.fetcher.AssertNotCalled(t, "Request", mock.Anything)

	other := newFixture(t, cfg)
	other.opts.Set(options.Options{HelpForLocalFile: false})
	other.r.OnTabCreated(context.Background(), &types.Tab{ID: 7, URL: url})
	other.r.Wait()
	other.tabs.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestOnTabCreatedFirefoxFileStaysOpen(t *testing.T) {
	cfg := testConfig()
	cfg.Firefox = true
	cfg.Version = 115
	f := newFixture(t, cfg)

	f.r.OnTabCreated(context.Background(), &types.Tab{ID: 1, URL: "file:///x.user.js"})
	assert.False(t, f.cache.Has(autoclosePrefix+"1"))

	f.r.OnTabCreated(context.Background(), &types.Tab{ID: 2, URL: "https://a/x.user.js?x=1"})
	assert.True(t, f.cache.Has(autoclosePrefix+"2"))
}

func TestFirefoxVirtualURLRedirect(t *testing.T) {
	cfg := testConfig()
	cfg.Firefox = true
	cfg.ExtensionRoot = "moz-extension://abc/"
	cfg.OptionsURL = "moz-extension://abc/options/index.html"
	f := newFixture(t, cfg)
	target := "moz-extension://abc/options/index.html#scripts/12"

	f.tabs.On("Update", int64(1), tabs.UpdateOptions{URL: target}).Return(&types.Tab{ID: 1}, nil)
	f.r.OnTabUpdated(context.Background(), 1, types.TabChange{URL: "moz-extension://abc/Foo.user.js#12"}, nil)

	f.tabs.On("Update", int64(2), tabs.UpdateOptions{URL: target}).Return(&types.Tab{ID: 2}, nil)
	f.r.OnTabCreated(context.Background(), &types.Tab{ID: 2, URL: "about:blank", Title: "abc/Foo.user.js#12"})

	f.tabs.On("Update", int64(3), tabs.UpdateOptions{URL: target}).Return(&types.Tab{ID: 3}, nil)
	f.r.OnTabUpdated(context.Background(), 3, types.TabChange{Status: types.TabComplete},
		&types.Tab{ID: 3, URL: "about:blank", Title: "view-source:moz-extension://abc/Foo.user.js#12"})

	f.r.OnTabUpdated(context.Background(), 4, types.TabChange{URL: "https://example.com/x.user.js#12"}, nil)
	f.tabs.AssertExpectations(t)
	f.tabs.AssertNumberOfCalls(t, "Update", 3)
}

func TestAttachSubscribes(t *testing.T) {
	m := tabs.NewManager(nil)
	cfg := testConfig()
	f := newFixture(t, cfg)
	unsub := f.r.Attach(m)

	_, err := m.Create(context.Background(), tabs.CreateOptions{URL: "https://a/x.user.js"})
	require.NoError(t, err)
	assert.True(t, f.cache.Has(autoclosePrefix+"1"))

	unsub()
	_, err = m.Create(context.Background(), tabs.CreateOptions{URL: "https://a/y.user.js"})
	require.NoError(t, err)
	assert.False(t, f.cache.Has(autoclosePrefix+"2"))
}

func TestCommandsRegistered(t *testing.T) {
	f := newFixture(t, testConfig())
	reg := command.NewRegistry()
	require.NoError(t, f.r.RegisterCommands(reg))

	_, err := reg.InvokePublic(context.Background(), CmdConfirmInstall, []byte(`{"code":"nope","url":"https://a/x.user.js"}`), nil)
	assert.True(t, IsInvalidScript(err))

	res, err := reg.InvokePublic(context.Background(), CmdCheckInstallerTab, []byte(`1`), nil)
	require.NoError(t, err)
	assert.Equal(t, false, res)
}
