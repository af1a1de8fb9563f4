package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/bridge"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/command"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/fetch"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/providers/http/client"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/requests"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/shared/types"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

const chunkSize = 64 << 10

// ErrBodyTooLarge is reported when a response exceeds the client's limit.
var ErrBodyTooLarge = errors.New("response body too large")

// tabCommands are forwarded from the page to the command registry.
var tabCommands = []string{bridge.CmdTabOpen, bridge.CmdTabClose, bridge.CmdTabFocus}

// Handler performs privileged requests for page contexts.
type Handler struct {
	client   *client.Client
	commands *command.Registry
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMetrics records request outcomes.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithCommands forwards TabOpen, TabClose and TabFocus to reg.
func WithCommands(reg *command.Registry) Option {
	return func(h *Handler) { h.commands = reg }
}

// NewHandler creates a handler that sends requests through c.
func NewHandler(c *client.Client, opts ...Option) *Handler {
	h := &Handler{client: c, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.Named("xhr")
	return h
}

type reqState int

const (
	issued reqState = iota
	running
)

type entry struct {
	state   reqState
	aborted bool
	cancel  context.CancelFunc
}

// Session serves one page connection. Ids are unique per session.
type Session struct {
	h   *Handler
	ep  *bridge.Endpoint
	src *types.Source
	seq id.Sequence

	mu      sync.Mutex
	entries map[int64]*entry
	wg      sync.WaitGroup
}

// Attach registers the trusted-side handlers on ep. src identifies the page
// for forwarded tab commands and may be nil.
func (h *Handler) Attach(ep *bridge.Endpoint, src *types.Source) *Session {
	s := &Session{h: h, ep: ep, src: src, entries: make(map[int64]*entry)}
	ep.Handle(bridge.CmdGetRequestID, s.onGetRequestID)
	ep.Handle(bridge.CmdHTTPRequest, s.onHTTPRequest)
	ep.Handle(bridge.CmdAbortRequest, s.onAbort)
	if h.commands != nil {
		for _, cmd := range tabCommands {
			ep.Handle(cmd, s.forward(cmd))
		}
	}
	return s
}

// Wait blocks until every started request has sent loadend.
func (s *Session) Wait() { s.wg.Wait() }

// Close forgets ids that never got a request, then waits like Wait. Call it
// once the endpoint has stopped serving.
func (s *Session) Close() {
	s.mu.Lock()
	for reqID, e := range s.entries {
		if e.state == issued {
			delete(s.entries, reqID)
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// pending counts ids the session still tracks.
func (s *Session) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Session) onGetRequestID(context.Context, json.RawMessage) {
	reqID := s.seq.Next()
	s.mu.Lock()
	s.entries[reqID] = &entry{state: issued}
	s.mu.Unlock()
	s.post(bridge.CmdGotRequestID, reqID)
}

// onAbort tolerates aborts for ids that have not started yet, finished
// already, or were aborted before.
func (s *Session) onAbort(_ context.Context, data json.RawMessage) {
	var reqID int64
	if err := bridge.Decode(data, &reqID); err != nil {
		s.h.logger.Warn("bad abort", zap.Error(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[reqID]
	if !ok || e.aborted {
		return
	}
	e.aborted = true
	if e.cancel != nil {
		e.cancel()
	}
}

func (s *Session) onHTTPRequest(ctx context.Context, data json.RawMessage) {
	var req bridge.HTTPRequest
	if err := bridge.Decode(data, &req); err != nil {
		s.h.logger.Warn("bad request", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	if req.Timeout > 0 {
		ctx, cancel = withTimeout(ctx, cancel, time.Duration(req.Timeout)*time.Millisecond)
	}

	s.mu.Lock()
	e, ok := s.entries[req.ID]
	if !ok {
		e = &entry{}
		s.entries[req.ID] = e
	}
	if e.state == running {
		s.mu.Unlock()
		cancel()
		s.h.logger.Warn("duplicate request id", zap.Int64("id", req.ID))
		return
	}
	e.state = running
	e.cancel = cancel
	early := e.aborted
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		if early {
			s.finish(req.ID, bridge.EventAbort, bridge.HTTPEventData{}, "")
			return
		}
		s.run(ctx, &req)
	}()
}

func withTimeout(ctx context.Context, parent context.CancelFunc, d time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, d)
	return ctx, func() {
		cancel()
		parent()
	}
}

// run performs one request and streams its events. Every path ends in a
// terminal event followed by loadend.
func (s *Session) run(ctx context.Context, req *bridge.HTTPRequest) {
	start := time.Now()
	s.h.metrics.XHRStart()
	s.emit(req.ID, bridge.EventLoadStart, "", bridge.HTTPEventData{ReadyState: 1})

	body, err := requests.DecodeBody(req.Data)
	if err != nil {
		s.fail(ctx, req.ID, start, err)
		return
	}
	headers := req.Headers
	if req.Data != nil && req.Data.ContentType != "" && !hasHeader(headers, "Content-Type") {
		headers = copyHeaders(headers)
		headers["Content-Type"] = req.Data.ContentType
	}

	resp, err := s.h.client.Do(ctx, client.Request{
		Method:    req.Method,
		URL:       req.URL,
		Headers:   headers,
		Body:      body,
		User:      req.User,
		Password:  req.Password,
		Anonymous: req.Anonymous,
		Stream:    true,
	})
	if err != nil {
		s.fail(ctx, req.ID, start, err)
		return
	}
	raw := resp.RawBody()
	defer raw.Close()

	state := bridge.HTTPEventData{
		ReadyState:      2,
		Status:          resp.StatusCode(),
		StatusText:      http.StatusText(resp.StatusCode()),
		ResponseHeaders: formatHeaders(resp.Header()),
		FinalURL:        req.URL,
	}
	if rr := resp.RawResponse; rr != nil && rr.Request != nil && rr.Request.URL != nil {
		state.FinalURL = rr.Request.URL.String()
	}
	s.emit(req.ID, bridge.EventReadyStateChange, "", state)

	total := resp.RawResponse.ContentLength
	state.ReadyState = 3
	state.LengthComputable = total > 0
	state.Total = max(total, 0)

	data, err := s.read(ctx, req.ID, raw, &state)
	if err != nil {
		s.fail(ctx, req.ID, start, err)
		return
	}

	state.ReadyState = 4
	s.emit(req.ID, bridge.EventReadyStateChange, "", state)

	resType := ""
	contentType := req.OverrideMimeType
	if contentType == "" {
		contentType = resp.Header().Get("Content-Type")
	}
	if req.ResponseType == bridge.ResTypeBinary {
		resType = bridge.ResTypeBinary
		if contentType == "" {
			contentType = mimetype.Detect(data).String()
		}
		state.Response = requests.EncodeDataURL(contentType, data)
	} else {
		state.Response = fetch.Decode(data, contentType)
	}
	s.h.metrics.XHRFinish(bridge.EventLoad, time.Since(start))
	s.finish(req.ID, bridge.EventLoad, state, resType)
}

// read drains the body in chunks, sending progress after each one.
func (s *Session) read(ctx context.Context, reqID int64, r io.Reader, state *bridge.HTTPEventData) ([]byte, error) {
	limit := s.h.client.MaxBody()
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	var out []byte
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
			if limit > 0 && int64(len(out)) > limit {
				return nil, ErrBodyTooLarge
			}
			state.Loaded = int64(len(out))
			s.emit(reqID, bridge.EventProgress, "", *state)
		}
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
}

// fail maps err to error, timeout or abort.
func (s *Session) fail(ctx context.Context, reqID int64, start time.Time, err error) {
	ev := bridge.EventError
	data := bridge.HTTPEventData{ReadyState: 4}
	switch {
	case s.aborted(reqID):
		ev = bridge.EventAbort
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		ev = bridge.EventTimeout
	default:
		data.Error = err.Error()
	}
	s.h.logger.Debug("request failed", zap.Int64("id", reqID), zap.String("event", ev), zap.Error(err))
	s.h.metrics.XHRFinish(ev, time.Since(start))
	s.finish(reqID, ev, data, "")
}

func (s *Session) aborted(reqID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[reqID]
	return ok && e.aborted
}

// finish sends the terminal event and loadend, then forgets the id.
func (s *Session) finish(reqID int64, ev string, data bridge.HTTPEventData, resType string) {
	s.emit(reqID, ev, resType, data)
	s.emit(reqID, bridge.EventLoadEnd, resType, data)
	s.mu.Lock()
	delete(s.entries, reqID)
	s.mu.Unlock()
}

func (s *Session) emit(reqID int64, ev, resType string, data bridge.HTTPEventData) {
	s.post(bridge.CmdHTTPRequested, bridge.HTTPEvent{ID: reqID, Type: ev, ResType: resType, Data: data})
}

func (s *Session) post(cmd string, data interface{}) {
	if err := s.ep.Post(cmd, data); err != nil {
		s.h.logger.Warn("post failed", zap.String("cmd", cmd), zap.Error(err))
	}
}

// forward runs cmd on the registry on behalf of the page.
func (s *Session) forward(cmd string) bridge.Handler {
	return func(ctx context.Context, data json.RawMessage) {
		if _, err := s.h.commands.Invoke(ctx, cmd, data, s.src); err != nil {
			s.h.logger.Warn("command failed", zap.String("cmd", cmd), zap.Error(err))
		}
	}
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

func copyHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}
	return out
}

// formatHeaders renders headers the way getAllResponseHeaders does.
func formatHeaders(h http.Header) string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		for _, v := range h[k] {
			b.WriteString(strings.ToLower(k))
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString("\r\n")
		}
	}
	return b.String()
}
