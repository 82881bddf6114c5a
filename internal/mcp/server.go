// Package mcp exposes a community's message archive to MCP clients over the
// streamable HTTP transport.
//
// Three tools are registered:
//   - "query_stats" counts who uses a term.
//   - "search_messages" returns matching messages.
//   - "impersonate" generates sentences in an author's style.
package mcp

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/PennyNeko/Soph/internal/observe"
	"github.com/PennyNeko/Soph/internal/responder"
)

// Version is the MCP server version.
const Version = "0.1.0"

// Path is where [Server.Register] mounts the handler.
const Path = "/mcp"

// Names resolves between author ids and display names. Implemented by
// *authors.Store.
type Names interface {
	ID(name string) (string, bool)
	Name(id string) (string, bool)
}

// Server is the MCP server for Soph.
type Server struct {
	backend responder.Backend
	names   Names
	metrics *observe.Metrics
	token   string
	server  *mcp.Server
}

// Option configures a [Server].
type Option func(*Server)

// WithToken requires "Authorization: Bearer <token>" on every request.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithMetrics records tool calls on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates an MCP server answering from backend.
func NewServer(backend responder.Backend, names Names, opts ...Option) (*Server, error) {
	if backend == nil {
		return nil, fmt.Errorf("mcp: backend is required")
	}
	if names == nil {
		return nil, fmt.Errorf("mcp: names are required")
	}
	s := &Server{
		backend: backend,
		names:   names,
		server:  mcp.NewServer(&mcp.Implementation{Name: "soph", Version: Version}, nil),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.registerTools()
	return s, nil
}

// Handler returns the streamable HTTP handler.
func (s *Server) Handler() http.Handler {
	h := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
	if s.token == "" {
		return h
	}
	return s.authorize(h)
}

// Register mounts the handler at [Path].
func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle(Path, s.Handler())
}

// Connect serves one session over t until the peer disconnects.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

func (s *Server) authorize(next http.Handler) http.Handler {
	want := []byte("Bearer " + s.token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(strings.TrimSpace(r.Header.Get("Authorization")))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="soph"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// record wraps a tool call with the call counter and latency histogram.
func (s *Server) record(ctx context.Context, tool string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		observe.Logger(ctx).Warn("mcp: tool failed", "tool", tool, "err", err)
	}
	s.metrics.RecordToolCall(ctx, tool, status)
	s.metrics.ObserveToolExecution(ctx, tool, time.Since(start))
}
