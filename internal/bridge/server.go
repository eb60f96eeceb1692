package bridge

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/muurk/wifiprov/internal/logging"
	"github.com/muurk/wifiprov/internal/metrics"
	"github.com/muurk/wifiprov/internal/provision"
	"github.com/muurk/wifiprov/internal/version"
)

// Routes served by the bridge
const (
	PathIndex     = "/"
	PathWebSocket = "/ws"
	PathHealth    = "/healthz"
	PathMetrics   = "/metrics"
)

//go:embed index.html
var indexPage []byte

// Config holds the bridge configuration
type Config struct {
	Listen         string            // host:port to listen on
	Device         provision.Device  // Shared by every session
	Options        provision.Options // Copied into each session
	TranscriptDir  string            // Directory for session transcripts (empty = disabled)
	AllowedOrigins []string          // Extra browser origins allowed to open /ws
}

// Server serves the provisioning page and one workflow per WebSocket.
type Server struct {
	config   *Config
	handler  http.Handler
	upgrader websocket.Upgrader
	registry *prometheus.Registry
	metrics  *metrics.Collector

	listener net.Listener
	httpSrv  *http.Server

	wg       sync.WaitGroup
	mu       sync.Mutex
	sessions map[string]*Session
	closing  bool
}

// New creates a new Server instance
func New(config *Config) (*Server, error) {
	if config.Device == nil {
		return nil, errors.New("bridge requires a device")
	}
	if err := config.Options.Validate(); err != nil {
		return nil, fmt.Errorf("invalid provisioning options: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		config:   config,
		registry: registry,
		metrics:  metrics.New(registry),
		sessions: make(map[string]*Session),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(config.AllowedOrigins),
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the HTTP handler. Tests mount it on httptest servers.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), logRequests)

	r.GET(PathIndex, func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexPage)
	})
	r.GET(PathWebSocket, s.serveWebSocket)
	r.GET(PathHealth, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"sessions": s.ActiveSessions(),
			"version":  version.Version,
		})
	})
	r.GET(PathMetrics, gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	return r
}

func logRequests(c *gin.Context) {
	c.Next()
	if c.Request.URL.Path == PathWebSocket {
		return
	}
	logging.LogHTTPRequest(c.Request.RemoteAddr, c.Request.Method, c.Request.URL.Path, c.Writer.Status())
}

// Start starts the server and blocks until shutdown
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}
	s.listener = listener
	s.httpSrv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logging.Info("Bridge listening for connections",
		zap.String("addr", listener.Addr().String()),
		zap.String("transcripts", s.config.TranscriptDir),
	)

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.httpSrv.Serve(listener)
	}()

	select {
	case <-sigChan:
		logging.Info("Shutdown signal received, stopping bridge...")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Addr returns the listening address once Start has bound it
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.config.Listen
	}
	return s.listener.Addr().String()
}

func (s *Server) serveWebSocket(c *gin.Context) {
	remoteAddr := c.Request.RemoteAddr

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already answered with an HTTP error
		logging.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
		return
	}
	logging.LogConnection(remoteAddr, "websocket_upgraded")

	sess := newSession(conn, remoteAddr, s.config.Device, s.config.Options, s.metrics, s.config.TranscriptDir)
	if !s.track(sess) {
		_ = conn.Close()
		logging.LogConnection(remoteAddr, "rejected_during_shutdown")
		return
	}
	defer func() {
		s.untrack(sess)
		logging.LogConnection(remoteAddr, "websocket_closed")
	}()

	sess.run()
}

func (s *Server) track(sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sessions[sess.ID()] = sess
	s.wg.Add(1)
	s.metrics.SessionOpened()
	return true
}

func (s *Server) untrack(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess.ID())
	s.mu.Unlock()
	s.metrics.SessionClosed(sess.ID())
	s.wg.Done()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down bridge...")

	s.mu.Lock()
	s.closing = true
	active := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		active = append(active, sess)
	}
	s.mu.Unlock()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			logging.Error("Error stopping HTTP server", zap.Error(err))
		}
	}

	// Hijacked connections are not closed by http.Server.Shutdown
	for _, sess := range active {
		logging.Info("Closing active session",
			zap.String("session", sess.ID()),
			zap.String("remote_addr", sess.remoteAddr),
		)
		sess.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All sessions closed gracefully")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	case <-time.After(10 * time.Second):
		logging.Warn("Shutdown timeout after 10 seconds, forcing close")
	}

	logging.Sync()

	return nil
}

// ActiveSessions returns the number of open WebSocket sessions
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// originChecker allows same-host origins plus the configured list.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set[origin] {
			return true
		}
		return sameHost(r, origin)
	}
}

func sameHost(r *http.Request, origin string) bool {
	for _, scheme := range []string{"http://", "https://"} {
		if origin == scheme+r.Host {
			return true
		}
	}
	return false
}
