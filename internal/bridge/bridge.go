package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/monitoring"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// Commands exchanged between the page and trusted contexts.
const (
	CmdGetRequestID  = "GetRequestId"
	CmdGotRequestID  = "GotRequestId"
	CmdHTTPRequest   = "HttpRequest"
	CmdHTTPRequested = "HttpRequested"
	CmdAbortRequest  = "AbortRequest"
	CmdTabOpen       = "TabOpen"
	CmdTabClose      = "TabClose"
	CmdTabFocus      = "TabFocus"
)

var ErrClosed = errors.New("bridge closed")

// Message is the wire envelope.
type Message struct {
	Cmd  string          `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Handler receives the data of one inbound message.
type Handler func(ctx context.Context, data json.RawMessage)

// Poster sends one-way tagged messages to the paired context.
type Poster interface {
	Post(cmd string, data interface{}) error
}

// Transport moves encoded messages. Receive blocks until a frame arrives or
// the transport is closed.
type Transport interface {
	Send(frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Endpoint is one side of the bridge: it posts messages and dispatches
// inbound ones to handlers registered by command, strictly in arrival order.
type Endpoint struct {
	name      string
	transport Transport
	logger    *zap.Logger
	metrics   *monitoring.Metrics

	mu       sync.RWMutex
	handlers map[string]Handler
}

// Option configures an Endpoint.
type Option func(*Endpoint)

// WithLogger sets the endpoint logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Endpoint) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics counts messages in both directions.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(e *Endpoint) { e.metrics = m }
}

// NewEndpoint wraps a transport.
func NewEndpoint(name string, t Transport, opts ...Option) *Endpoint {
	e := &Endpoint{
		name:      name,
		transport: t,
		logger:    zap.NewNop(),
		handlers:  make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("bridge").With(zap.String("endpoint", name))
	return e
}

// Handle registers h for cmd, replacing any previous handler.
func (e *Endpoint) Handle(cmd string, h Handler) {
	e.mu.Lock()
	e.handlers[cmd] = h
	e.mu.Unlock()
}

// Post encodes data and sends it tagged with cmd. It never waits for the
// peer to process the message.
func (e *Endpoint) Post(cmd string, data interface{}) error {
	frame, err := Encode(cmd, data)
	if err != nil {
		return err
	}
	if err := e.transport.Send(frame); err != nil {
		return fmt.Errorf("post %s: %w", cmd, err)
	}
	e.metrics.RecordBridgeMessage("out", cmd)
	return nil
}

// Serve dispatches inbound messages until ctx is done or the transport
// closes. Handlers run one at a time on the calling goroutine.
func (e *Endpoint) Serve(ctx context.Context) error {
	for {
		frame, err := e.transport.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		e.dispatch(ctx, frame)
	}
}

// Close closes the transport.
func (e *Endpoint) Close() error {
	return e.transport.Close()
}

func (e *Endpoint) dispatch(ctx context.Context, frame []byte) {
	var msg Message
	if err := sonic.Unmarshal(frame, &msg); err != nil {
		e.logger.Warn("dropping malformed frame", zap.Error(err), zap.Int("size", len(frame)))
		return
	}
	e.metrics.RecordBridgeMessage("in", msg.Cmd)

	e.mu.RLock()
	h := e.handlers[msg.Cmd]
	e.mu.RUnlock()
	if h == nil {
		e.logger.Debug("no handler", zap.String("cmd", msg.Cmd))
		return
	}
	h(ctx, msg.Data)
}

// Encode builds a wire frame.
func Encode(cmd string, data interface{}) ([]byte, error) {
	msg := Message{Cmd: cmd}
	if data != nil {
		raw, err := sonic.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", cmd, err)
		}
		msg.Data = raw
	}
	return sonic.Marshal(msg)
}

// Decode unpacks message data into v.
func Decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return errors.New("empty message data")
	}
	return sonic.Unmarshal(data, v)
}
