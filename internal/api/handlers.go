package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/bridge"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/command"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/install"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/shared/types"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/tabs"
	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const maxCommandBody = 1 << 20

var errBadTabID = errors.New("tab_id must be a number")

func (s *Server) health(c *gin.Context) {
	commands := 0
	if s.deps.Commands != nil {
		commands = len(s.deps.Commands.List())
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"commands": commands,
	})
}

func (s *Server) confirm(c *gin.Context) {
	if s.deps.Confirms == nil {
		unavailable(c)
		return
	}
	rec, code, ok := s.deps.Confirms.ConfirmRecord(c.Param("key"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "confirmation expired or unknown"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"record": rec,
		"code":   code,
	})
}

// command runs a public command. The body is {"payload": ..., "tab_id": n};
// both fields are optional.
func (s *Server) command(c *gin.Context) {
	if s.deps.Commands == nil {
		unavailable(c)
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCommandBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(body) > 0 && !gjson.ValidBytes(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	var payload json.RawMessage
	if p := gjson.GetBytes(body, "payload"); p.Exists() {
		payload = json.RawMessage(p.Raw)
	}
	src, err := s.bodySource(c.Request.Context(), gjson.GetBytes(body, "tab_id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	name := c.Param("name")
	result, err := s.deps.Commands.InvokePublic(c.Request.Context(), name, payload, src)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("command failed", zap.String("cmd", name), zap.Error(err))
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// bridge upgrades to a websocket and serves the trusted side of the bridge
// on it. ?tab=n names the page's tab.
func (s *Server) bridge(c *gin.Context) {
	if s.deps.Trusted == nil {
		unavailable(c)
		return
	}
	var src *types.Source
	if q := c.Query("tab"); q != "" {
		n, err := strconv.ParseInt(q, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errBadTabID.Error()})
			return
		}
		if src, err = s.source(c.Request.Context(), n); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already replied.
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	s.bridges.Add(1)
	defer s.bridges.Done()

	name := id.NewConnID().String()
	ep := bridge.NewEndpoint(name, bridge.NewWSTransport(conn),
		bridge.WithLogger(s.logger),
		bridge.WithMetrics(s.deps.Metrics),
	)
	session := s.deps.Trusted.Attach(ep, src)
	s.deps.Metrics.BridgeOpened()
	defer s.deps.Metrics.BridgeClosed()
	s.logger.Info("bridge connected",
		zap.String("conn", name),
		zap.Int64("tab", src.TabID()),
		zap.String("trace_id", string(tracing.TraceIDFrom(c.Request.Context()))),
	)

	ctx, cancel := context.WithCancel(s.base)
	if err := ep.Serve(ctx); err != nil {
		s.logger.Debug("bridge closed", zap.String("conn", name), zap.Error(err))
	}
	cancel()
	session.Close()
	_ = ep.Close()
}

// bodySource resolves an optional tab_id field. A missing field yields a
// nil Source.
func (s *Server) bodySource(ctx context.Context, tabID gjson.Result) (*types.Source, error) {
	if !tabID.Exists() {
		return nil, nil
	}
	if tabID.Type != gjson.Number {
		return nil, errBadTabID
	}
	n, err := strconv.ParseInt(tabID.Raw, 10, 64)
	if err != nil {
		return nil, errBadTabID
	}
	return s.source(ctx, n)
}

// source looks the tab up so handlers see its current URL.
func (s *Server) source(ctx context.Context, n int64) (*types.Source, error) {
	if s.deps.Tabs == nil {
		return &types.Source{Tab: &types.Tab{ID: n}}, nil
	}
	tab, err := s.deps.Tabs.Get(ctx, n)
	if err != nil {
		return nil, err
	}
	return &types.Source{URL: tab.URL, Tab: tab}, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, command.ErrNotFound), errors.Is(err, tabs.ErrNoTab):
		return http.StatusNotFound
	case errors.Is(err, command.ErrNotPublic):
		return http.StatusForbidden
	case errors.Is(err, command.ErrPayload), errors.Is(err, errBadTabID):
		return http.StatusBadRequest
	case install.IsInvalidScript(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func unavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "not configured"})
}
