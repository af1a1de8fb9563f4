package install

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/cache"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/command"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/config"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/fetch"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/options"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/shared/types"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/tabs"
	"go.uber.org/zap"
)

// Public commands registered by the redirector.
const (
	CmdCheckInstallerTab = "CheckInstallerTab"
	CmdConfirmInstall    = "ConfirmInstall"
)

// Cache key prefixes.
const (
	bypassPrefix    = "bypass:"
	autoclosePrefix = "autoclose:"
	confirmPrefix   = "confirm-"
)

// No-op target for variants that cannot cancel a navigation.
const noopURL = "javascript:void 0"

// Config is the redirector's view of the host configuration.
type Config struct {
	ExtensionRoot  string
	OptionsURL     string
	ConfirmURLBase string

	// Firefox selects the Firefox-like variant; Version is its major version.
	Firefox bool
	Version int
	// CanCancel variants drop intercepted navigations instead of
	// redirecting them to a no-op URL.
	CanCancel bool
	// AllowPrivateReplace lets private tabs be replaced by the confirm page.
	AllowPrivateReplace   bool
	FileSchemeRequestable bool

	BypassTTL    time.Duration
	AutocloseTTL time.Duration
	CodeTTL      time.Duration
	ConfirmTTL   time.Duration
}

// ConfigFrom derives the redirector config. Firefox-like variants can cancel
// requests and may always replace a private tab.
func ConfigFrom(c *config.Config) Config {
	ff := c.Variant.IsFirefox()
	return Config{
		ExtensionRoot:         c.Extension.Root,
		OptionsURL:            c.Extension.OptionsURL(),
		ConfirmURLBase:        c.Extension.ConfirmURLBase(),
		Firefox:               ff,
		Version:               c.Variant.Version,
		CanCancel:             ff,
		AllowPrivateReplace:   ff || c.Variant.AllowPrivateReplace,
		FileSchemeRequestable: c.Variant.FileSchemeRequestable,
		BypassTTL:             c.Cache.BypassTTL,
		AutocloseTTL:          c.Cache.AutocloseTTL,
		CodeTTL:               c.Cache.CodeTTL,
		ConfirmTTL:            c.Cache.ConfirmTTL,
	}
}

// Messages looks up user-facing strings.
type Messages interface {
	Get(key string) string
}

// MessageMap is a static Messages table.
type MessageMap map[string]string

func (m MessageMap) Get(key string) string {
	if s, ok := m[key]; ok {
		return s
	}
	return key
}

// DefaultMessages holds the English strings.
var DefaultMessages = MessageMap{
	"msgInvalidScript": "Invalid script!",
}

// Deps are the redirector's collaborators.
type Deps struct {
	Config   Config
	Cache    *cache.Store
	Fetcher  fetch.Fetcher
	Tabs     tabs.Controller
	Commands *command.Registry
	Options  *options.Store
	Messages Messages
	Metrics  *monitoring.Metrics
}

// Redirector watches navigations for user scripts and drives the install
// confirmation flow.
type Redirector struct {
	cfg      Config
	cache    *cache.Store
	fetcher  fetch.Fetcher
	tabs     tabs.Controller
	commands *command.Registry
	options  *options.Store
	messages Messages
	metrics  *monitoring.Metrics
	logger   *zap.Logger

	virtualRe *regexp.Regexp
	newKey    func() string

	base context.Context
	wg   sync.WaitGroup
}

// Option configures a Redirector.
type Option func(*Redirector)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Redirector) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithKeyGenerator replaces the confirmation token generator.
func WithKeyGenerator(fn func() string) Option {
	return func(r *Redirector) { r.newKey = fn }
}

// WithContext sets the parent of out-of-band install checks.
func WithContext(ctx context.Context) Option {
	return func(r *Redirector) { r.base = ctx }
}

// New creates a redirector.
func New(deps Deps, opts ...Option) *Redirector {
	r := &Redirector{
		cfg:      deps.Config,
		cache:    deps.Cache,
		fetcher:  deps.Fetcher,
		tabs:     deps.Tabs,
		commands: deps.Commands,
		options:  deps.Options,
		messages: deps.Messages,
		metrics:  deps.Metrics,
		logger:   zap.NewNop(),
		newKey:   newConfirmKey,
		base:     context.Background(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = cache.New()
	}
	if r.messages == nil {
		r.messages = DefaultMessages
	}
	if r.options == nil {
		r.options = options.NewStore(options.Defaults())
	}
	if r.cfg.Firefox {
		r.virtualRe = virtualURLRe(r.cfg.ExtensionRoot)
	}
	return r
}

// RegisterCommands installs CheckInstallerTab and ConfirmInstall as public
// commands.
func (r *Redirector) RegisterCommands(reg *command.Registry) error {
	if err := reg.RegisterPublic(CmdCheckInstallerTab, command.Typed(func(ctx context.Context, tabID int64, src *types.Source) (interface{}, error) {
		return r.CheckInstallerTab(ctx, tabID, src), nil
	})); err != nil {
		return err
	}
	return reg.RegisterPublic(CmdConfirmInstall, command.Typed(func(ctx context.Context, p ConfirmPayload, src *types.Source) (interface{}, error) {
		key, err := r.ConfirmInstall(ctx, p, src)
		if err != nil {
			return nil, err
		}
		return map[string]string{"key": key}, nil
	}))
}

// Attach subscribes to tab events. Firefox-like variants also watch tab
// updates for virtual URLs: by url from version 88, by load status before.
// The returned func unsubscribes.
func (r *Redirector) Attach(ev tabs.Events) func() {
	unsubs := []func(){ev.OnCreated(r.OnTabCreated)}
	if r.virtualRe != nil {
		prop := "status"
		if r.cfg.Version >= 88 {
			prop = "url"
		}
		unsubs = append(unsubs, ev.OnUpdated([]string{prop}, r.OnTabUpdated))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Wait blocks until out-of-band install checks have finished.
func (r *Redirector) Wait() { r.wg.Wait() }

func (r *Redirector) goAsync(fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn(r.base)
	}()
}

// ConfirmRecord returns the live confirmation record for key together with
// the code cached for its URL, if any.
func (r *Redirector) ConfirmRecord(key string) (*Confirmation, string, bool) {
	v, ok := r.cache.Get(confirmPrefix + key)
	if !ok {
		return nil, "", false
	}
	rec, ok := v.(*Confirmation)
	if !ok {
		return nil, "", false
	}
	code, _ := r.cache.Get(rec.URL)
	s, _ := code.(string)
	return rec, s, true
}

func isFileURL(u string) bool { return strings.HasPrefix(u, "file:") }
