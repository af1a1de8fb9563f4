package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/bridge"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/gmapi"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/requests"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"go.uber.org/zap"
)

// holdFor keeps a hold's placeholder timer from firing during any real run.
const holdFor = 24 * time.Hour

// Page is one page context: a goja VM owned by an eventloop.EventLoop.
// Bridge traffic reaches the VM only through holds taken on the loop.
type Page struct {
	loop     *eventloop.EventLoop
	vm       *goja.Runtime
	config   Config
	endpoint *bridge.Endpoint
	requests *requests.Manager
	values   gmapi.ValueStore
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	mu       sync.Mutex
	closed   bool

	// run counts finished Executes. Work posted for an older run is dropped.
	run    atomic.Uint64
	runErr error
	flush  *goja.Program

	// Console output
	console   []LogEntry
	consoleMu sync.Mutex
}

// Option configures a Page.
type Option func(*Page)

// WithLogger sets the page logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Page) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records script runs.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(p *Page) { p.metrics = m }
}

// WithValues sets the GM value store shared by every script on the page.
func WithValues(v gmapi.ValueStore) Option {
	return func(p *Page) { p.values = v }
}

// New creates a page that talks to the trusted context over t.
func New(config Config, t bridge.Transport, opts ...Option) *Page {
	p := &Page{
		loop:    eventloop.NewEventLoop(eventloop.EnableConsole(false)),
		config:  config,
		logger:  zap.NewNop(),
		flush:   goja.MustCompile("flush", "undefined", false),
		console: []LogEntry{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("sandbox")
	if p.values == nil {
		p.values = gmapi.NewMemoryValues()
	}

	p.endpoint = bridge.NewEndpoint("page", t, bridge.WithLogger(p.logger), bridge.WithMetrics(p.metrics))
	p.requests = requests.NewManager(p.endpoint,
		requests.WithBaseURL(config.BaseURL),
		requests.WithLogger(p.logger),
		requests.WithMetrics(p.metrics),
	)
	p.requests.Register(p.endpoint)
	p.loop.Run(func(vm *goja.Runtime) {
		p.vm = vm
		if config.StackSize > 0 {
			vm.SetMaxCallStackSize(config.StackSize)
		}
		p.setupGlobals()
	})
	return p
}

// Serve dispatches bridge messages until ctx ends or the transport closes.
func (p *Page) Serve(ctx context.Context) error {
	return p.endpoint.Serve(ctx)
}

// Requests exposes the page's request bridge.
func (p *Page) Requests() *requests.Manager { return p.requests }

// Hold keeps the current run going until the hold is released. Loop
// goroutine only.
func (p *Page) Hold() gmapi.Hold {
	return &hold{
		page:  p,
		run:   p.run.Load(),
		timer: p.loop.SetTimeout(func(*goja.Runtime) {}, holdFor),
	}
}

type hold struct {
	page  *Page
	run   uint64
	timer *eventloop.Timer
}

func (h *hold) Post(fn func()) {
	p := h.page
	p.loop.RunOnLoop(func(vm *goja.Runtime) {
		if p.run.Load() != h.run {
			return
		}
		fn()
		if _, err := vm.RunProgram(p.flush); err != nil {
			p.fail(err)
		}
	})
}

func (h *hold) Release() { h.page.loop.ClearTimeout(h.timer) }

// fail records the first error of the run and stops the loop.
func (p *Page) fail(err error) {
	if p.runErr == nil {
		p.runErr = err
	}
	p.loop.StopNoWait()
}

// Execute runs one script and then the work it scheduled, until no timer or
// request holds the loop, or the timeout or ctx interrupts it.
func (p *Page) Execute(ctx context.Context, job Job) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	start := time.Now()
	result := &Result{}

	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	p.consoleMu.Lock()
	p.console = []LogEntry{}
	p.consoleMu.Unlock()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	var val goja.Value
	p.runErr = nil
	p.loop.Run(func(*goja.Runtime) {
		// Started on the loop so the stop request cannot reach a terminated loop.
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-ctx.Done():
				p.vm.Interrupt(ctx.Err())
				p.loop.RunOnLoop(func(*goja.Runtime) { p.fail(ctx.Err()) })
			case <-stop:
			}
		}()

		var err error
		if val, err = p.runScript(job); err != nil {
			p.fail(err)
		}
	})
	close(stop)
	wg.Wait()
	err := p.runErr
	p.run.Add(1)
	p.loop.Terminate()
	p.vm.ClearInterrupt()

	result.Duration = time.Since(start)
	p.consoleMu.Lock()
	result.Console = append([]LogEntry{}, p.console...)
	p.consoleMu.Unlock()

	if err != nil {
		status := "error"
		var ie *goja.InterruptedError
		if errors.As(err, &ie) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			status = "interrupted"
		}
		p.metrics.ScriptRun(status, result.Duration)
		p.logger.Warn("script failed", zap.String("script", job.Script.DisplayName), zap.String("status", status), zap.Error(err))
		result.Error = err
		return result, err
	}
	p.metrics.ScriptRun("ok", result.Duration)
	result.Value = exportValue(val)
	return result, nil
}

// runScript builds the script's API and calls its body. Granted scripts see
// the API through a scope object; the rest get only GM, GM_info and
// unsafeWindow as parameters.
func (p *Page) runScript(job Job) (goja.Value, error) {
	s := job.Script
	env := &gmapi.Env{
		VM:        p.vm,
		Loop:      p,
		Bridge:    p.endpoint,
		Requests:  p.requests,
		Resources: job.Resources,
		Values:    p.values,
		Host:      p.config.Host,
		Logger:    p.logger,
		Log: func(_, msg string) {
			p.appendConsole("gm", msg)
		},
	}
	api, wrapper := gmapi.Build(s, env)

	var src string
	if wrapper != nil {
		src = "(function(){ with (this) {\n" + job.Code + "\n} })"
	} else {
		src = "(function(GM, GM_info, unsafeWindow){\n" + job.Code + "\n})"
	}
	prg, err := goja.Compile(s.DisplayName+".user.js", src, false)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", s.DisplayName, err)
	}
	fnVal, err := p.vm.RunProgram(prg)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, ErrNotCallable
	}

	if wrapper != nil {
		sc := newScope(wrapper, p.vm.GlobalObject())
		this := p.vm.NewDynamicObject(sc)
		sc.self = this
		return fn(this)
	}
	return fn(goja.Undefined(), api.GM, api.Info, p.vm.GlobalObject())
}

// setupGlobals configures global objects and security. Timers come from
// the event loop.
func (p *Page) setupGlobals() {
	// Remove dangerous globals
	for _, name := range []string{"require", "process", "module", "exports"} {
		_ = p.vm.Set(name, goja.Undefined())
	}

	if p.config.EnableConsole {
		console := p.vm.NewObject()
		for _, level := range []string{"log", "warn", "error", "info", "debug"} {
			_ = console.Set(level, p.makeConsoleFunc(level))
		}
		_ = p.vm.Set("console", console)
	}
}

func (p *Page) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		p.appendConsole(level, strings.Join(parts, " "))
		return goja.Undefined()
	}
}

func (p *Page) appendConsole(level, msg string) {
	p.consoleMu.Lock()
	p.console = append(p.console, LogEntry{
		Level:   level,
		Message: msg,
		Time:    time.Now(),
	})
	p.consoleMu.Unlock()
}

func exportValue(val goja.Value) interface{} {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}

// Close releases resources
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.loop.Terminate()
	return p.endpoint.Close()
}
