// ABOUTME: Subprocess connection: spawns the server with stdin/stdout/stderr redirected
// ABOUTME: Tracks liveness via a single Wait goroutine and drains stderr into the debug log

package rpc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	stderrTailLines = 20
	waitDelay       = 2 * time.Second
)

// Connection is one live server subprocess with its streams.
type Connection struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *os.File
	channel *Channel
	stderr  *stderrTail

	waitDone chan struct{}
	waitErr  error

	closeOnce sync.Once
	closeErr  error
}

func spawn(argv []string, env []string, dir string, logger *slog.Logger) (*Connection, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("empty MCP server command")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}

	// A plain os.Pipe keeps the read end ours, so Wait never closes it under
	// a blocked reader.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	cmd.Stdout = pw

	tail := &stderrTail{log: logger}
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("starting MCP server %q: %w", argv[0], err)
	}
	pw.Close()

	c := &Connection{
		cmd:      cmd,
		stdin:    stdin,
		stdout:   pr,
		channel:  NewChannel(stdin, pr),
		stderr:   tail,
		waitDone: make(chan struct{}),
	}
	go func() {
		c.waitErr = cmd.Wait()
		close(c.waitDone)
	}()
	return c, nil
}

// Alive reports whether the subprocess has not exited yet.
func (c *Connection) Alive() bool {
	select {
	case <-c.waitDone:
		return false
	default:
		return true
	}
}

// PID returns the subprocess id.
func (c *Connection) PID() int {
	if c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// ExitErr returns the Wait result once the subprocess has exited.
func (c *Connection) ExitErr() error {
	select {
	case <-c.waitDone:
		return c.waitErr
	default:
		return nil
	}
}

// close ends input, waits up to timeout, then kills and waits unconditionally.
func (c *Connection) close(timeout time.Duration) error {
	c.closeOnce.Do(func() {
		_ = c.stdin.Close()

		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-c.waitDone:
		case <-timer.C:
			if c.cmd.Process != nil {
				_ = c.cmd.Process.Kill()
			}
			<-c.waitDone
			c.closeErr = ErrForcedKill
		}
		_ = c.stdout.Close()
	})
	return c.closeErr
}

// stderrTail logs server stderr line by line and keeps the last few lines.
type stderrTail struct {
	log *slog.Logger

	mu      sync.Mutex
	partial []byte
	lines   []string
}

func (s *stderrTail) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.partial = append(s.partial, p...)
	for {
		i := bytes.IndexByte(s.partial, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(s.partial[:i]), "\r")
		s.partial = s.partial[i+1:]
		if line == "" {
			continue
		}
		s.log.Debug("mcp server stderr", "line", line)
		s.lines = append(s.lines, line)
		if len(s.lines) > stderrTailLines {
			s.lines = s.lines[len(s.lines)-stderrTailLines:]
		}
	}
	return len(p), nil
}

func (s *stderrTail) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.lines, "\n")
}
