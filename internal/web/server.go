// ABOUTME: HTTP front-end for the medical assistant built on gin
// ABOUTME: Owns routing, per-browser history, and the listener lifecycle; the backend is shared

// Package web serves the browser chat UI and the JSON, SSE, and WebSocket APIs.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/net/netutil"

	"github.com/mauromedda/medassist/internal/action"
	"github.com/mauromedda/medassist/internal/backend"
	"github.com/mauromedda/medassist/internal/eventbus"
	"github.com/mauromedda/medassist/internal/history"
	"github.com/mauromedda/medassist/internal/log"
	"github.com/mauromedda/medassist/internal/prompts"
)

// Defaults for Options left at zero.
const (
	DefaultCookieName = "medassist_session"
	DefaultMaxConns   = 256
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Backend is the part of *backend.Service the web layer uses.
type Backend interface {
	InvokeContext(ctx context.Context, name action.Name, args action.Args) action.Outcome
	Stats() backend.Stats
}

// Options configures a Server.
type Options struct {
	Backend         Backend
	Store           history.Store
	Catalog         *prompts.Catalog
	Events          *eventbus.Bus[backend.Event]
	MaxHistoryChars int
	MaxConns        int
	CookieName      string
	CORSOrigins     []string
	Version         string
	Logger          *slog.Logger
}

// Server is the web front-end.
type Server struct {
	opts   Options
	log    *slog.Logger
	engine *gin.Engine
}

// New builds the router. It fails only if the embedded templates are broken.
func New(opts Options) (*Server, error) {
	if opts.Backend == nil {
		return nil, errors.New("web: backend is required")
	}
	if opts.Store == nil {
		opts.Store = history.NewMemoryStore()
	}
	if opts.Catalog == nil {
		opts.Catalog = prompts.Default()
	}
	if opts.MaxHistoryChars <= 0 {
		opts.MaxHistoryChars = history.DefaultMaxChars
	}
	if opts.MaxConns <= 0 {
		opts.MaxConns = DefaultMaxConns
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.Version == "" {
		opts.Version = opts.Catalog.Version
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithComponent("web")
	}

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	s := &Server{opts: opts, log: logger}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.SetHTMLTemplate(tmpl)
	engine.Use(requestLogger(logger), gin.CustomRecovery(s.recovered), cors.New(s.corsConfig()))
	s.engine = engine
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.engine

	pages := r.Group("/", s.session())
	pages.GET("/", s.index)
	pages.POST("/chat", s.chat)
	pages.GET("/clear", s.clear)
	pages.GET("/summary", s.summary)
	pages.POST("/analyze_symptoms", s.analyzeForm)
	pages.GET("/server_info", s.serverInfo)
	pages.GET("/greeting/:name", s.greeting)
	pages.GET("/help", s.help)

	api := r.Group("/api")
	api.POST("/chat", s.apiChat)
	api.POST("/analyze", s.apiAnalyze)
	api.GET("/status", s.apiStatus)
	api.GET("/events", s.apiEvents)

	r.GET("/ws", s.wsChat)
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.NoRoute(func(c *gin.Context) { s.errorPage(c, http.StatusNotFound, "Page not found") })
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	origins := s.opts.CORSOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// Handler returns the router, for tests and custom listeners.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe listens on addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts at most MaxConns concurrent connections on ln until ctx is
// done, then drains in-flight requests for up to ten seconds.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(netutil.LimitListener(ln, s.opts.MaxConns))
	}()
	s.log.Info("web front-end listening", "addr", ln.Addr().String(), "max_conns", s.opts.MaxConns)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("web shutdown incomplete", "err", err)
		_ = srv.Close()
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	s.log.Info("web front-end stopped")
	return nil
}

func (s *Server) errorPage(c *gin.Context, code int, msg string) {
	c.HTML(code, "error.html", gin.H{
		"AppName":      s.opts.Catalog.AppName,
		"ErrorCode":    code,
		"ErrorMessage": msg,
	})
}

func (s *Server) recovered(c *gin.Context, err any) {
	s.log.Error("web handler panicked", "path", c.Request.URL.Path, "panic", err)
	s.errorPage(c, http.StatusInternalServerError, "Internal server error")
	c.Abort()
}
