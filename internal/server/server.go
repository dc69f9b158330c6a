// Package server exposes the tool catalog over the Model Context Protocol.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"slackmcp/internal/domain"
	"slackmcp/internal/slackapi"
	"slackmcp/internal/tool"
)

// Headers carrying per-request Slack credentials on the network transports.
const (
	HeaderWebToken    = "X-Slack-Web-Token"
	HeaderCookieToken = "X-Slack-Cookie-Token"
)

type Config struct {
	Name        string
	Version     string
	Dispatcher  *tool.Dispatcher
	Transport   string // "stdio" | "sse" | "http"
	Addr        string
	MetricsPath string
	Metrics     http.Handler // optional
	Logger      *zap.Logger
}

type Server struct {
	cfg    Config
	mcp    *server.MCPServer
	logger *zap.Logger
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &Server{cfg: cfg, logger: cfg.Logger}
	s.mcp = server.NewMCPServer(cfg.Name, cfg.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	for _, def := range cfg.Dispatcher.Registry().Definitions() {
		s.mcp.AddTool(toMCPTool(def), s.handler(def.Name))
	}
	return s
}

// MCP exposes the underlying protocol server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

func toMCPTool(def tool.Definition) mcp.Tool {
	schema, err := json.Marshal(def.Schema.JSONSchema())
	if err != nil {
		// Schemas are built from static declarations; this cannot fail at runtime.
		panic(fmt.Sprintf("tool %s: marshal schema: %v", def.Name, err))
	}
	t := mcp.NewToolWithRawSchema(def.Name, def.Description, schema)
	readOnly := !def.Write
	t.Annotations = mcp.ToolAnnotation{
		ReadOnlyHint:    &readOnly,
		DestructiveHint: boolPtr(false),
		OpenWorldHint:   boolPtr(true),
	}
	return t
}

func boolPtr(b bool) *bool { return &b }

func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := s.cfg.Dispatcher.Dispatch(ctx, name, req.GetArguments())
		text, isErr := tool.Render(res)
		out := mcp.NewToolResultText(text)
		out.IsError = isErr
		return out, nil
	}
}

// Serve runs the configured transport until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	switch s.cfg.Transport {
	case "", "stdio":
		return s.serveStdio(ctx)
	case "sse", "http":
		return s.serveHTTP(ctx)
	default:
		return fmt.Errorf("unknown transport %q", s.cfg.Transport)
	}
}

func (s *Server) serveStdio(ctx context.Context) error {
	s.logger.Info("serving MCP over stdio", zap.String("version", s.cfg.Version))
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio transport: %w", err)
	}
	return nil
}

// Handler builds the HTTP handler for the network transports: the MCP
// endpoints, a health check, and metrics when configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	switch s.cfg.Transport {
	case "sse":
		sse := server.NewSSEServer(s.mcp, server.WithSSEContextFunc(withRequestCredentials))
		mux.Handle("/sse", sse)
		mux.Handle("/message", sse)
	default:
		mux.Handle("/mcp", server.NewStreamableHTTPServer(s.mcp,
			server.WithEndpointPath("/mcp"),
			server.WithHTTPContextFunc(withRequestCredentials),
		))
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if s.cfg.Metrics != nil && s.cfg.MetricsPath != "" {
		mux.Handle("GET "+s.cfg.MetricsPath, s.cfg.Metrics)
	}
	return requireCredentialPair(mux)
}

// requireCredentialPair rejects requests carrying only one of the two
// credential headers. A lone header never falls back to the process session.
func requireCredentialPair(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		web := r.Header.Get(HeaderWebToken) != ""
		cookie := r.Header.Get(HeaderCookieToken) != ""
		if web != cookie {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = fmt.Fprintf(w, `{"error":{"kind":%q,"message":"both %s and %s are required"}}`,
				domain.KindAuthExpired, HeaderWebToken, HeaderCookieToken)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) serveHTTP(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("serving MCP over HTTP",
		zap.String("transport", s.cfg.Transport),
		zap.String("addr", s.cfg.Addr),
		zap.String("version", s.cfg.Version))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http transport: %w", err)
	}
	return nil
}

// withRequestCredentials lets an HTTP caller act as their own Slack session.
// Requests without either header use the process credentials; a lone
// header is rejected earlier by requireCredentialPair.
func withRequestCredentials(ctx context.Context, r *http.Request) context.Context {
	web := r.Header.Get(HeaderWebToken)
	cookie := r.Header.Get(HeaderCookieToken)
	if web == "" || cookie == "" {
		return ctx
	}
	return slackapi.WithCredentials(ctx, slackapi.Credentials{WebToken: web, CookieToken: cookie})
}
