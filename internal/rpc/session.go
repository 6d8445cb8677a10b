// ABOUTME: RPC session over one server subprocess: connect/handshake, request, notify, close
// ABOUTME: A single I/O lock covers id allocation, write, and read-back of each round trip

package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mauromedda/medassist/internal/log"
)

const (
	// DefaultProtocolVersion is announced in the initialize handshake.
	DefaultProtocolVersion = "2024-11-05"
	// DefaultCloseTimeout bounds the graceful exit wait in Close.
	DefaultCloseTimeout = 5 * time.Second

	previewWidth = 200
)

// ClientInfo identifies this client during the handshake.
type ClientInfo struct {
	Name    string `json:"name" yaml:"name" mapstructure:"name"`
	Version string `json:"version" yaml:"version" mapstructure:"version"`
}

// Options configures a Session.
type Options struct {
	Env             []string
	Dir             string
	ClientInfo      ClientInfo
	ProtocolVersion string
	CloseTimeout    time.Duration
	Logger          *slog.Logger
}

// Session owns at most one Connection and serializes all traffic on it.
type Session struct {
	opts Options
	log  *slog.Logger

	// ioLock is a one-slot semaphore so waiting for it can honour ctx.
	ioLock chan struct{}
	nextID int64 // guarded by ioLock

	connectMu sync.Mutex

	mu      sync.Mutex
	conn    *Connection
	lastErr error

	spawns atomic.Int64
}

// NewSession creates a Session. Nothing is spawned until Connect.
func NewSession(opts Options) *Session {
	if opts.ProtocolVersion == "" {
		opts.ProtocolVersion = DefaultProtocolVersion
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = DefaultCloseTimeout
	}
	if opts.ClientInfo.Name == "" {
		opts.ClientInfo = ClientInfo{Name: "medassist", Version: "1.0.0"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithComponent("rpc")
	}
	return &Session{
		opts:   opts,
		log:    logger,
		ioLock: make(chan struct{}, 1),
	}
}

// Connect spawns argv and performs the initialize handshake. It returns true
// immediately when a live connection already exists. Failures are logged and
// reported as false; the cause is available from LastError.
func (s *Session) Connect(ctx context.Context, argv []string) (ok bool) {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	if s.Connected() {
		s.log.Debug("already connected to MCP server", "pid", s.PID())
		return true
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("MCP connect panicked", "panic", r)
			s.setLastErr(fmt.Errorf("connect panicked: %v", r))
			s.discard()
			ok = false
		}
	}()

	s.reap()

	s.log.Info("starting MCP server", "command", argv)
	conn, err := spawn(argv, s.opts.Env, s.opts.Dir, s.log)
	if err != nil {
		s.log.Error("failed to start MCP server", "err", err)
		s.setLastErr(err)
		return false
	}
	s.spawns.Add(1)

	if err := s.attach(ctx, conn); err != nil {
		_ = conn.close(s.opts.CloseTimeout)
		s.log.Error("failed to attach MCP server", "err", err)
		s.setLastErr(err)
		return false
	}

	if err := s.handshake(ctx); err != nil {
		s.log.Error("MCP handshake failed", "err", err, "stderr", conn.stderr.String())
		s.setLastErr(err)
		s.discard()
		return false
	}

	s.setLastErr(nil)
	s.log.Info("connected to MCP server", "pid", conn.PID())
	return true
}

func (s *Session) handshake(ctx context.Context) error {
	resp, err := s.SendRequest(ctx, "initialize", map[string]any{
		"protocolVersion": s.opts.ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    s.opts.ClientInfo.Name,
			"version": s.opts.ClientInfo.Version,
		},
	})
	if err != nil {
		return fmt.Errorf("initialize request: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("initialize error: %w", resp.Error)
	}

	if err := s.SendNotification(ctx, "notifications/initialized", nil); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}
	return nil
}

// SendRequest performs one request/response round trip. Waiting for the I/O
// lock honours ctx; once the request is written the read is never abandoned.
func (s *Session) SendRequest(ctx context.Context, method string, params map[string]any) (*Response, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()

	conn := s.live()
	if conn == nil {
		return nil, ErrNotConnected
	}

	s.nextID++
	id := s.nextID

	line, err := encodeRequest(id, method, params)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", method, err)
	}
	s.log.Debug("→ "+method, "id", id, "body", log.Preview(string(line), previewWidth))

	if err := conn.channel.WriteLine(line); err != nil {
		return nil, fmt.Errorf("%s request: %w", method, err)
	}

	for {
		raw, err := conn.channel.ReadLine()
		if err != nil {
			return nil, fmt.Errorf("%s response: %w", method, err)
		}

		resp, err := decodeResponse(raw)
		if err != nil {
			return nil, fmt.Errorf("%s response: %w", method, err)
		}
		if resp.outOfBand() {
			s.log.Debug("skipping server-initiated message", "method", resp.Method)
			continue
		}
		if resp.HasID && resp.ID != id {
			s.log.Error("MCP stream out of sync, dropping connection", "want", id, "got", resp.ID)
			s.breakConn(conn)
			return nil, fmt.Errorf("%s response: %w (want %d, got %d)", method, ErrIDMismatch, id, resp.ID)
		}

		s.log.Debug("← "+method, "id", id, "body", log.Preview(string(raw), previewWidth))
		return resp, nil
	}
}

// SendNotification writes a message that expects no reply.
func (s *Session) SendNotification(ctx context.Context, method string, params map[string]any) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	conn := s.live()
	if conn == nil {
		return ErrNotConnected
	}

	line, err := encodeRequest(0, method, params)
	if err != nil {
		return fmt.Errorf("%s notification: %w", method, err)
	}
	s.log.Debug("→ "+method)
	if err := conn.channel.WriteLine(line); err != nil {
		return fmt.Errorf("%s notification: %w", method, err)
	}
	return nil
}

// Close stops the subprocess: end input, wait CloseTimeout, then kill. It
// does not wait for an in-flight request. Closing a never-connected session
// is a no-op.
func (s *Session) Close() error {
	conn := s.detach()
	if conn == nil {
		return nil
	}

	pid := conn.PID()
	if err := conn.close(s.opts.CloseTimeout); err != nil {
		s.log.Warn("MCP server shutdown forced", "pid", pid, "err", err)
		return err
	}
	s.log.Info("MCP server stopped", "pid", pid, "exit", conn.ExitErr())
	return nil
}

// Connected reports whether a live connection exists.
func (s *Session) Connected() bool {
	return s.live() != nil
}

// LastError returns the cause of the most recent failed Connect.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Spawns counts subprocesses started by this session.
func (s *Session) Spawns() int64 {
	return s.spawns.Load()
}

// PID returns the current subprocess id, or 0.
func (s *Session) PID() int {
	if conn := s.live(); conn != nil {
		return conn.PID()
	}
	return 0
}

// Stderr returns the last lines the subprocess wrote to stderr.
func (s *Session) Stderr() string {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ""
	}
	return conn.stderr.String()
}

func (s *Session) lock(ctx context.Context) error {
	select {
	case s.ioLock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) unlock() {
	<-s.ioLock
}

// attach installs conn and restarts id allocation at 1.
func (s *Session) attach(ctx context.Context, conn *Connection) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.nextID = 0
	return nil
}

func (s *Session) live() *Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || !s.conn.Alive() {
		return nil
	}
	return s.conn
}

func (s *Session) detach() *Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn := s.conn
	s.conn = nil
	return conn
}

// discard detaches and closes the current connection, logging failures.
func (s *Session) discard() {
	if conn := s.detach(); conn != nil {
		if err := conn.close(s.opts.CloseTimeout); err != nil {
			s.log.Warn("closing failed MCP connection", "err", err)
		}
	}
}

// reap drops a connection whose process already exited.
func (s *Session) reap() {
	s.mu.Lock()
	conn := s.conn
	if conn == nil || conn.Alive() {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.mu.Unlock()

	s.log.Warn("MCP server exited", "pid", conn.PID(), "exit", conn.ExitErr(), "stderr", conn.stderr.String())
	_ = conn.close(s.opts.CloseTimeout)
}

// breakConn detaches conn if it is still current and closes it in the
// background; the caller holds the I/O lock.
func (s *Session) breakConn(conn *Connection) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	go func() {
		_ = conn.close(s.opts.CloseTimeout)
	}()
}

func (s *Session) setLastErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}
