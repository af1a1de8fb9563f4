package requests

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/bridge"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/monitoring"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// Response types a script may ask for.
const (
	TypeText        = "text"
	TypeJSON        = "json"
	TypeArrayBuffer = "arraybuffer"
	TypeBlob        = "blob"
)

var dataURLRe = regexp.MustCompile(`^data:([^;,]*);base64,`)

// Blob is a typed byte buffer, the decoded form of a blob response.
type Blob struct {
	Type string
	Data []byte
}

// Event is what a callback receives.
type Event struct {
	ReadyState       int
	Status           int
	StatusText       string
	ResponseHeaders  string
	FinalURL         string
	Response         interface{}
	LengthComputable bool
	Loaded           int64
	Total            int64
	Error            string
	Context          interface{}
}

// Callback handles one event type.
type Callback func(ev *Event)

// Details configures a request. On maps event types ("load", "error", ...)
// to callbacks; missing entries are skipped.
type Details struct {
	Method           string
	URL              string
	User             string
	Password         string
	Headers          map[string]string
	Timeout          int64 // milliseconds
	OverrideMimeType string
	ResponseType     string
	Anonymous        bool
	// Data is the body: a string, []byte, *Blob or nil.
	Data    interface{}
	Context interface{}
	On      map[string]Callback
}

// BodyEncoder turns a request body into its wire form.
type BodyEncoder func(ctx context.Context, data interface{}) (*bridge.Body, error)

type state int

const (
	stateCreated state = iota
	stateStarted
	stateDone
)

type pending struct {
	details *Details
	handle  *Handle
	state   state

	// First decoded response, reused for every later event.
	decoded    interface{}
	hasDecoded bool
}

// Handle controls a request after creation.
type Handle struct {
	m  *Manager
	mu sync.Mutex
	id int64
	// abortWanted is set when Abort runs before an id is assigned.
	abortWanted bool
	aborted     bool
}

// Abort asks the trusted side to cancel the request. Only the first call
// sends anything; entries stay until their loadend arrives.
func (h *Handle) Abort() {
	h.mu.Lock()
	if h.aborted || h.abortWanted {
		h.mu.Unlock()
		return
	}
	if h.id == 0 {
		h.abortWanted = true
		h.mu.Unlock()
		return
	}
	h.aborted = true
	id := h.id
	h.mu.Unlock()
	h.m.postAbort(id)
}

// ID returns the assigned request id, or 0 before assignment.
func (h *Handle) ID() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.id
}

// Manager correlates page-side requests with the trusted context. Requests
// wait in a FIFO queue until the trusted side issues an id, then live in an
// id-keyed table until their loadend event.
type Manager struct {
	poster  bridge.Poster
	base    *url.URL
	encode  BodyEncoder
	logger  *zap.Logger
	metrics *monitoring.Metrics
	ctx     context.Context

	mu    sync.Mutex
	queue []*pending
	byID  map[int64]*pending
}

// Option configures a Manager.
type Option func(*Manager)

// WithBaseURL sets the document URL relative request URLs resolve against.
func WithBaseURL(raw string) Option {
	return func(m *Manager) {
		if u, err := url.Parse(raw); err == nil {
			m.base = u
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics counts dropped responses.
func WithMetrics(mt *monitoring.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithBodyEncoder replaces the default body encoder.
func WithBodyEncoder(fn BodyEncoder) Option {
	return func(m *Manager) { m.encode = fn }
}

// WithContext sets the context body encoding runs under.
func WithContext(ctx context.Context) Option {
	return func(m *Manager) { m.ctx = ctx }
}

// NewManager creates a manager posting to the trusted side through p.
func NewManager(p bridge.Poster, opts ...Option) *Manager {
	m := &Manager{
		poster: p,
		encode: EncodeBody,
		logger: zap.NewNop(),
		ctx:    context.Background(),
		byID:   make(map[int64]*pending),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("requests")
	return m
}

// Register routes GotRequestId and HttpRequested on ep to the manager.
func (m *Manager) Register(ep *bridge.Endpoint) {
	ep.Handle(bridge.CmdGotRequestID, func(_ context.Context, data json.RawMessage) {
		var id int64
		if err := bridge.Decode(data, &id); err != nil {
			m.logger.Warn("bad request id", zap.Error(err))
			return
		}
		m.OnIDAssigned(id)
	})
	ep.Handle(bridge.CmdHTTPRequested, func(_ context.Context, data json.RawMessage) {
		var ev bridge.HTTPEvent
		if err := bridge.Decode(data, &ev); err != nil {
			m.logger.Warn("bad response", zap.Error(err))
			return
		}
		m.OnResponse(&ev)
	})
}

// Create resolves the URL, queues the request, asks for an id and returns
// at once.
func (m *Manager) Create(d *Details) *Handle {
	d.URL = m.resolve(d.URL)
	p := &pending{details: d, handle: &Handle{m: m}, state: stateCreated}

	m.mu.Lock()
	m.queue = append(m.queue, p)
	m.mu.Unlock()

	if err := m.poster.Post(bridge.CmdGetRequestID, nil); err != nil {
		m.logger.Warn("request id not requested", zap.String("url", d.URL), zap.Error(err))
	}
	return p.handle
}

// OnIDAssigned binds id to the oldest queued request and sends it.
func (m *Manager) OnIDAssigned(id int64) {
	m.mu.Lock()
	if len(m.queue) == 0 {
		m.mu.Unlock()
		m.logger.Debug("id without a queued request", zap.Int64("id", id))
		return
	}
	p := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	p.state = stateStarted
	m.byID[id] = p
	m.mu.Unlock()

	h := p.handle
	h.mu.Lock()
	h.id = id
	abort := h.abortWanted
	if abort {
		h.aborted = true
	}
	h.mu.Unlock()
	if abort {
		m.postAbort(id)
	}
	m.start(p, id)
}

func (m *Manager) start(p *pending, id int64) {
	d := p.details
	payload := &bridge.HTTPRequest{
		ID:               id,
		Anonymous:        d.Anonymous,
		Method:           d.Method,
		URL:              d.URL,
		User:             d.User,
		Password:         d.Password,
		Headers:          d.Headers,
		Timeout:          d.Timeout,
		OverrideMimeType: d.OverrideMimeType,
	}
	switch d.ResponseType {
	case "", TypeText, TypeJSON:
	case TypeArrayBuffer, TypeBlob:
		payload.ResponseType = bridge.ResTypeBinary
	default:
		m.logger.Warn("unknown responseType, treating it as text", zap.String("responseType", d.ResponseType))
	}

	data := d.Data
	go func() {
		body, err := m.encode(m.ctx, data)
		if err != nil {
			m.logger.Warn("body encoding failed", zap.Int64("id", id), zap.Error(err))
		}
		payload.Data = body
		if err := m.poster.Post(bridge.CmdHTTPRequest, payload); err != nil {
			m.logger.Warn("request not sent", zap.Int64("id", id), zap.Error(err))
		}
	}()
}

// OnResponse delivers one event to the matching callback. Events for
// unknown ids are dropped; loadend retires the entry.
func (m *Manager) OnResponse(res *bridge.HTTPEvent) {
	m.mu.Lock()
	p, ok := m.byID[res.ID]
	if !ok {
		m.mu.Unlock()
		m.metrics.ResponseDropped()
		return
	}
	if res.Type == bridge.EventLoadEnd {
		delete(m.byID, res.ID)
		p.state = stateDone
	}
	var resp interface{}
	if res.Data.Response != "" {
		if !p.hasDecoded {
			p.decoded = decodeResponse(res, p.details.ResponseType)
			p.hasDecoded = true
		}
		resp = p.decoded
	}
	m.mu.Unlock()

	cb := p.details.On[res.Type]
	if cb == nil {
		return
	}
	cb(&Event{
		ReadyState:       res.Data.ReadyState,
		Status:           res.Data.Status,
		StatusText:       res.Data.StatusText,
		ResponseHeaders:  res.Data.ResponseHeaders,
		FinalURL:         res.Data.FinalURL,
		Response:         resp,
		LengthComputable: res.Data.LengthComputable,
		Loaded:           res.Data.Loaded,
		Total:            res.Data.Total,
		Error:            res.Data.Error,
		Context:          p.details.Context,
	})
}

// Queued returns the number of requests waiting for an id.
func (m *Manager) Queued() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Active returns the number of requests with an id and no loadend yet.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

func (m *Manager) postAbort(id int64) {
	if err := m.poster.Post(bridge.CmdAbortRequest, id); err != nil {
		m.logger.Warn("abort not sent", zap.Int64("id", id), zap.Error(err))
	}
}

func (m *Manager) resolve(raw string) string {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	if m.base != nil {
		ref = m.base.ResolveReference(ref)
	}
	return ref.String()
}

// decodeResponse rebuilds the response value for responseType. Binary
// bodies arrive as base64 data URLs; a malformed one yields nil.
func decodeResponse(res *bridge.HTTPEvent, responseType string) interface{} {
	raw := res.Data.Response
	if res.ResType != "" {
		mime, data, ok := DecodeDataURL(raw)
		if !ok {
			return nil
		}
		if responseType == TypeBlob {
			return &Blob{Type: mime, Data: data}
		}
		return data
	}
	if responseType == TypeJSON {
		var v interface{}
		if err := sonic.UnmarshalString(raw, &v); err != nil {
			return nil
		}
		return v
	}
	return raw
}

// DecodeDataURL splits a base64 data URL into its MIME type and bytes.
func DecodeDataURL(s string) (mime string, data []byte, ok bool) {
	m := dataURLRe.FindStringSubmatch(s)
	if m == nil {
		return "", nil, false
	}
	data, err := base64.StdEncoding.DecodeString(s[len(m[0]):])
	if err != nil {
		return "", nil, false
	}
	return m[1], data, true
}

// EncodeDataURL is the inverse of DecodeDataURL.
func EncodeDataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
