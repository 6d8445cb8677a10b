// ABOUTME: Synchronous facade over the background loop, RPC session, and tool layer
// ABOUTME: Invoke never panics or errors: every failure becomes an action Outcome

package backend

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mauromedda/medassist/internal/action"
	"github.com/mauromedda/medassist/internal/eventbus"
	"github.com/mauromedda/medassist/internal/log"
	"github.com/mauromedda/medassist/internal/rpc"
	"github.com/mauromedda/medassist/internal/scheduler"
	"github.com/mauromedda/medassist/internal/tools"
)

// Defaults for Options left at zero.
const (
	DefaultCallTimeout     = 30 * time.Second
	DefaultShutdownTimeout = 3 * time.Second
)

const internalPrefix = "Internal backend error: "

// Options configures a Service.
type Options struct {
	Command         []string
	Env             []string
	Dir             string
	ClientInfo      rpc.ClientInfo
	ProtocolVersion string
	CallTimeout     time.Duration
	ShutdownTimeout time.Duration
	CloseTimeout    time.Duration
	Concurrency     int
	Temperature     *float64 // nil picks tools.DefaultTemperature
	MaxTokens       int
	Logger          *slog.Logger
	Events          *eventbus.Bus[Event]
}

// Service is the process-scoped entry point shared by all front-ends.
type Service struct {
	opts    Options
	log     *slog.Logger
	session *rpc.Session
	tools   *tools.Client
	loop    *scheduler.Loop
	connect singleflight.Group

	shutdownOnce sync.Once
	startedAt    time.Time

	calls    atomic.Int64
	failures map[action.Kind]*atomic.Int64
}

// errConnect reports that no connection could be established.
type errConnect struct {
	cause error
}

func (e *errConnect) Error() string { return "Unable to establish MCP connection." }
func (e *errConnect) Unwrap() error { return e.cause }

// New builds a Service. Call Start before Invoke.
func New(opts Options) *Service {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.Temperature == nil {
		def := tools.DefaultTemperature
		opts.Temperature = &def
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = tools.DefaultMaxTokens
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithComponent("backend")
	}

	session := rpc.NewSession(rpc.Options{
		Env:             opts.Env,
		Dir:             opts.Dir,
		ClientInfo:      opts.ClientInfo,
		ProtocolVersion: opts.ProtocolVersion,
		CloseTimeout:    opts.CloseTimeout,
		Logger:          logger.With("layer", "rpc"),
	})

	failures := make(map[action.Kind]*atomic.Int64, len(action.Kinds()))
	for _, k := range action.Kinds() {
		failures[k] = new(atomic.Int64)
	}

	return &Service{
		opts:     opts,
		log:      logger,
		session:  session,
		tools:    tools.New(session, logger.With("layer", "tools")),
		loop:     scheduler.New(scheduler.Options{Concurrency: opts.Concurrency, Logger: logger.With("layer", "scheduler")}),
		failures: failures,
	}
}

// Start launches the background loop. The subprocess is spawned lazily by
// the first Invoke.
func (s *Service) Start() {
	s.startedAt = time.Now()
	s.loop.Start()
}

// Invoke runs an action with the default call timeout.
func (s *Service) Invoke(name action.Name, args action.Args) action.Outcome {
	return s.InvokeContext(context.Background(), name, args)
}

// InvokeContext runs an action on the loop and blocks until it completes,
// ctx is done, or the call timeout elapses. Giving up does not abort the
// in-flight request.
func (s *Service) InvokeContext(ctx context.Context, name action.Name, args action.Args) (out action.Outcome) {
	start := time.Now()
	s.calls.Add(1)

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("backend action panicked", "action", name, "panic", r)
			out = action.Failuref(action.KindInternal, internalPrefix+"%v", r)
		}
		s.record(name, out, time.Since(start))
	}()

	if _, ok := action.Parse(string(name)); !ok {
		return action.Failuref(action.KindUnknownAction, "Unknown action: %s", name)
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	task := scheduler.SubmitContext(waitCtx, s.loop, string(name), func(ctx context.Context) (action.Outcome, error) {
		if err := s.ensureConnected(ctx); err != nil {
			return action.Outcome{}, err
		}
		return s.dispatch(ctx, name, args), nil
	})

	res, err := task.WaitContext(waitCtx)
	if err != nil {
		return s.failure(name, err)
	}
	return res
}

func (s *Service) dispatch(ctx context.Context, name action.Name, args action.Args) action.Outcome {
	switch name {
	case action.Chat:
		return s.tools.Chat(ctx,
			args.String("message", ""),
			args.Float("temperature", *s.opts.Temperature),
			args.Int("max_tokens", s.opts.MaxTokens),
		)
	case action.AnalyzeSymptoms:
		var age *int
		if n, ok := args.OptionalInt("age"); ok {
			age = &n
		}
		return s.tools.AnalyzeSymptoms(ctx, args.String("symptoms", ""), age, args.String("gender", ""))
	case action.ClearHistory:
		return s.tools.ClearHistory(ctx)
	case action.GetSummary:
		return s.tools.GetSummary(ctx)
	case action.GetGreeting:
		return s.tools.GetGreeting(ctx, args.String("name", tools.DefaultPatientName))
	case action.GetServerInfo:
		return s.tools.GetServerInfo(ctx)
	default:
		return action.Failuref(action.KindUnknownAction, "Unknown action: %s", name)
	}
}

// ensureConnected connects once for all concurrent first callers.
func (s *Service) ensureConnected(ctx context.Context) error {
	if s.session.Connected() {
		return nil
	}
	_, err, _ := s.connect.Do("connect", func() (any, error) {
		if s.session.Connected() {
			return nil, nil
		}
		if !s.session.Connect(ctx, s.opts.Command) {
			cause := s.session.LastError()
			s.opts.Events.Publish(newEvent(EventConnectFailed, "", 0, cause))
			return nil, &errConnect{cause: cause}
		}
		s.opts.Events.Publish(Event{Kind: EventConnected, PID: s.session.PID(), At: time.Now()})
		return nil, nil
	})
	return err
}

// failure maps loop and connection errors to an Outcome.
func (s *Service) failure(name action.Name, err error) action.Outcome {
	var connErr *errConnect
	switch {
	case errors.As(err, &connErr):
		s.log.Error("backend action failed", "action", name, "err", err, "cause", connErr.cause)
		return action.Failure(action.KindSpawn, internalPrefix+connErr.Error())
	case errors.Is(err, scheduler.ErrTimeout):
		s.log.Error("backend action timed out", "action", name, "timeout", s.opts.CallTimeout)
		return action.Failuref(action.KindTimeout, internalPrefix+"timed out waiting for %s", name)
	case errors.Is(err, scheduler.ErrStopped):
		return action.Failure(action.KindInternal, internalPrefix+"backend is shut down")
	case errors.Is(err, context.Canceled):
		return action.Failure(action.KindInternal, internalPrefix+"request cancelled")
	default:
		s.log.Error("backend action failed", "action", name, "err", err)
		return action.Failure(action.KindInternal, internalPrefix+err.Error())
	}
}

func (s *Service) record(name action.Name, out action.Outcome, d time.Duration) {
	if out.OK() {
		s.log.Debug("backend action done", "action", name, "duration", d)
		s.opts.Events.Publish(newEvent(EventInvoked, name, d, nil))
		return
	}
	if c, ok := s.failures[out.Err.Kind]; ok {
		c.Add(1)
	}
	s.opts.Events.Publish(newEvent(EventFailed, name, d, out.Err))
}

// run executes fn on the loop after ensuring a connection.
func run[T any](ctx context.Context, s *Service, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	task := scheduler.SubmitContext(waitCtx, s.loop, name, func(ctx context.Context) (T, error) {
		if err := s.ensureConnected(ctx); err != nil {
			var zero T
			return zero, err
		}
		return fn(ctx)
	})
	return task.WaitContext(waitCtx)
}

// ListTools returns the tools advertised by the server.
func (s *Service) ListTools(ctx context.Context) ([]tools.ToolInfo, error) {
	return run(ctx, s, "tools/list", s.tools.ListTools)
}

// Prompt renders a server prompt template.
func (s *Service) Prompt(ctx context.Context, name string, args map[string]string) action.Outcome {
	out, err := run(ctx, s, "prompts/get", func(ctx context.Context) (action.Outcome, error) {
		return s.tools.GetPrompt(ctx, name, args), nil
	})
	if err != nil {
		return s.failure(action.Name(name), err)
	}
	return out
}

// Connected reports whether a live subprocess connection exists.
func (s *Service) Connected() bool {
	return s.session.Connected()
}

// Shutdown closes the connection, bounded by ShutdownTimeout, then stops the
// loop. The close runs outside the loop's slots, so saturated or hung tasks
// cannot hold it up. Failures are logged. Later calls do nothing.
func (s *Service) Shutdown() {
	s.shutdownOnce.Do(func() {
		closed := make(chan error, 1)
		go func() { closed <- s.session.Close() }()
		select {
		case err := <-closed:
			if err != nil {
				s.log.Error("error while closing MCP connection", "err", err)
			}
		case <-time.After(s.opts.ShutdownTimeout):
			s.log.Error("error while closing MCP connection", "err", "timed out after "+s.opts.ShutdownTimeout.String())
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := s.loop.Stop(ctx); err != nil {
			s.log.Warn("backend loop did not stop cleanly", "err", err)
		}
		s.opts.Events.Publish(newEvent(EventShutdown, "", 0, nil))
		s.log.Info("backend shut down")
	})
}
