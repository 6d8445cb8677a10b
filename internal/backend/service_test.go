// ABOUTME: Tests for the synchronous facade against a fake server subprocess
// ABOUTME: Covers dispatch, de-duplicated connect, error mapping, timeouts, and shutdown

package backend

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mauromedda/medassist/internal/action"
	"github.com/mauromedda/medassist/internal/eventbus"
	"github.com/mauromedda/medassist/internal/rpc/rpctest"
)

func TestHelperProcess(t *testing.T) {
	rpctest.ServeIfHelper()
}

func newService(t *testing.T, mode rpctest.Mode, mutate func(*Options)) *Service {
	t.Helper()
	opts := Options{
		Command:         rpctest.Command(mode, ""),
		CallTimeout:     5 * time.Second,
		ShutdownTimeout: 3 * time.Second,
		CloseTimeout:    2 * time.Second,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&opts)
	}
	s := New(opts)
	s.Start()
	t.Cleanup(s.Shutdown)
	return s
}

func TestInvokeChat(t *testing.T) {
	t.Parallel()

	s := newService(t, rpctest.ModeEcho, nil)
	out := s.Invoke(action.Chat, action.Args{"message": "hello"})
	if !out.OK() || out.Text != "echo: hello" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if !s.Connected() {
		t.Error("expected connection after first Invoke")
	}
}

func TestInvokeAnalyzeSymptomsArguments(t *testing.T) {
	t.Parallel()

	s := newService(t, rpctest.ModeEcho, nil)

	out := s.Invoke(action.AnalyzeSymptoms, action.Args{"symptoms": "fever", "age": 30, "gender": "male"})
	if !out.OK() {
		t.Fatalf("unexpected failure %+v", out.Err)
	}
	for _, want := range []string{`"symptoms":"fever"`, `"patient_age":30`, `"patient_gender":"male"`} {
		if !strings.Contains(out.Text, want) {
			t.Errorf("expected %s in %s", want, out.Text)
		}
	}

	out = s.Invoke(action.AnalyzeSymptoms, action.Args{"symptoms": "cough"})
	if out.Text != `{"symptoms":"cough"}` {
		t.Errorf("expected optional fields omitted, got %s", out.Text)
	}
}

func TestInvokeResourcesAndDefaults(t *testing.T) {
	t.Parallel()

	s := newService(t, rpctest.ModeEcho, nil)

	if out := s.Invoke(action.GetGreeting, nil); out.Text != "Hello, Patient!" {
		t.Errorf("unexpected default greeting %+v", out)
	}
	if out := s.Invoke(action.GetGreeting, action.Args{"name": "Ana Maria"}); out.Text != "Hello, Ana Maria!" {
		t.Errorf("unexpected greeting %+v", out)
	}
	if out := s.Invoke(action.GetServerInfo, nil); out.Text != "rpctest server" {
		t.Errorf("unexpected server info %+v", out)
	}
	if out := s.Invoke(action.ClearHistory, nil); out.Text != "Conversation history cleared." {
		t.Errorf("expected benign clear default, got %+v", out)
	}
	if out := s.Invoke(action.GetSummary, nil); out.Text != "summary: nothing yet" {
		t.Errorf("unexpected summary %+v", out)
	}
}

func TestInvokeUnknownActionDoesNotSpawn(t *testing.T) {
	t.Parallel()

	s := newService(t, rpctest.ModeEcho, nil)
	out := s.Invoke(action.Name("launch_rockets"), nil)
	if out.OK() || out.Err.Kind != action.KindUnknownAction || out.Err.Message != "Unknown action: launch_rockets" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if s.Stats().Spawns != 0 {
		t.Errorf("expected no spawn, got %d", s.Stats().Spawns)
	}
}

func TestConcurrentFirstCallersSpawnOnce(t *testing.T) {
	t.Parallel()

	s := newService(t, rpctest.ModeEcho, nil)

	const n = 16
	var wg sync.WaitGroup
	outs := make([]action.Outcome, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i] = s.Invoke(action.Chat, action.Args{"message": "hi"})
		}(i)
	}
	wg.Wait()

	for i, out := range outs {
		if !out.OK() || out.Text != "echo: hi" {
			t.Errorf("caller %d got %+v", i, out)
		}
	}
	if got := s.Stats().Spawns; got != 1 {
		t.Errorf("expected exactly one spawn, got %d", got)
	}
}

func TestSpawnFailureBecomesOutcome(t *testing.T) {
	t.Parallel()

	s := newService(t, rpctest.ModeEcho, func(o *Options) {
		o.Command = []string{filepath.Join(t.TempDir(), "no-such-server")}
	})

	out := s.Invoke(action.Chat, action.Args{"message": "hi"})
	if out.OK() || out.Err.Kind != action.KindSpawn {
		t.Fatalf("expected spawn failure, got %+v", out)
	}
	if out.Err.Message != "Internal backend error: Unable to establish MCP connection." {
		t.Errorf("unexpected message %q", out.Err.Message)
	}
	if s.Stats().Failures["spawn"] != 1 {
		t.Errorf("expected spawn failure counted, got %v", s.Stats().Failures)
	}
}

func TestHandshakeFailureBecomesOutcome(t *testing.T) {
	t.Parallel()

	s := newService(t, rpctest.ModeHandshakeError, nil)
	out := s.Invoke(action.GetSummary, nil)
	if out.OK() || out.Err.Kind != action.KindSpawn {
		t.Fatalf("expected connect failure, got %+v", out)
	}
}

func TestProtocolErrorSurfacesServerMessage(t *testing.T) {
	t.Parallel()

	s := newService(t, rpctest.ModeEcho, nil)
	if out := s.Invoke(action.Chat, action.Args{"message": "warm up"}); !out.OK() {
		t.Fatalf("unexpected failure %+v", out.Err)
	}
	out := s.tools.CallTool(t.Context(), "boom", nil)
	if out.OK() || out.Err.Kind != action.KindProtocol || out.Err.Message != "boom" {
		t.Errorf("expected protocol error boom, got %+v", out)
	}
}

func TestClosedOutputDoesNotHang(t *testing.T) {
	t.Parallel()

	s := newService(t, rpctest.ModeCloseAfterInit, nil)

	start := time.Now()
	out := s.Invoke(action.Chat, action.Args{"message": "hi"})
	if out.OK() || out.Err.Kind != action.KindTransport {
		t.Fatalf("expected transport failure, got %+v", out)
	}
	if !strings.Contains(out.Err.Message, "Connection error:") || !strings.Contains(out.Err.Message, "no response from MCP server") {
		t.Errorf("unexpected message %q", out.Err.Message)
	}
	if time.Since(start) > 4*time.Second {
		t.Errorf("closed output took %v to surface", time.Since(start))
	}
}

func TestTimeoutDoesNotBlockCaller(t *testing.T) {
	t.Parallel()

	s := newService(t, rpctest.ModeHang, func(o *Options) {
		o.CallTimeout = 300 * time.Millisecond
	})

	start := time.Now()
	out := s.Invoke(action.Chat, action.Args{"message": "hi"})
	if out.OK() || out.Err.Kind != action.KindTimeout {
		t.Fatalf("expected timeout, got %+v", out)
	}
	if !strings.HasPrefix(out.Err.Message, "Internal backend error: ") {
		t.Errorf("unexpected message %q", out.Err.Message)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout not honoured: %v", elapsed)
	}

	// Shutdown closes the hung connection within its own bound.
	start = time.Now()
	s.Shutdown()
	if elapsed := time.Since(start); elapsed > 8*time.Second {
		t.Errorf("shutdown not bounded: %v", elapsed)
	}
}

func TestShutdownIsIdempotentAndRejectsLaterCalls(t *testing.T) {
	t.Parallel()

	s := newService(t, rpctest.ModeEcho, nil)
	if out := s.Invoke(action.Chat, action.Args{"message": "hi"}); !out.OK() {
		t.Fatalf("unexpected failure %+v", out.Err)
	}

	s.Shutdown()
	s.Shutdown()

	if s.Connected() {
		t.Error("expected disconnected after Shutdown")
	}
	out := s.Invoke(action.Chat, action.Args{"message": "again"})
	if out.OK() || out.Err.Message != "Internal backend error: backend is shut down" {
		t.Errorf("unexpected outcome after shutdown %+v", out)
	}
}

func TestShutdownNeverConnected(t *testing.T) {
	t.Parallel()

	s := newService(t, rpctest.ModeEcho, nil)
	s.Shutdown()
	if s.Stats().Spawns != 0 {
		t.Errorf("expected no spawn, got %d", s.Stats().Spawns)
	}
}

func TestEventsPublished(t *testing.T) {
	t.Parallel()

	bus := eventbus.New[Event]()
	sub := bus.Subscribe(16)
	s := newService(t, rpctest.ModeEcho, func(o *Options) { o.Events = bus })

	s.Invoke(action.Chat, action.Args{"message": "hi"})
	s.Invoke(action.Name("nope"), nil)

	var kinds []EventKind
	timeout := time.After(2 * time.Second)
	for len(kinds) < 3 {
		select {
		case ev := <-sub.C:
			kinds = append(kinds, ev.Kind)
		case <-timeout:
			t.Fatalf("expected 3 events, got %v", kinds)
		}
	}
	want := []EventKind{EventConnected, EventInvoked, EventFailed}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, kinds)
		}
	}
}

func TestListToolsThroughLoop(t *testing.T) {
	t.Parallel()

	s := newService(t, rpctest.ModeEcho, nil)
	got, err := s.ListTools(t.Context())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 tools, got %+v", got)
	}
}

func TestPromptThroughLoop(t *testing.T) {
	t.Parallel()

	s := newService(t, rpctest.ModeEcho, nil)
	out := s.Prompt(t.Context(), "health_education_prompt", map[string]string{"topic": "sleep"})
	if !out.OK() || out.Text != "Explain sleep" {
		t.Errorf("unexpected outcome %+v", out)
	}

	out = s.Prompt(t.Context(), "nope", nil)
	if out.OK() || out.Err.Kind != action.KindProtocol || !strings.Contains(out.Err.Message, "unknown prompt") {
		t.Errorf("expected protocol error, got %+v", out)
	}
}

func TestSaturatedLoopStillTimesOutAndShutsDown(t *testing.T) {
	t.Parallel()

	s := newService(t, rpctest.ModeHang, func(o *Options) {
		o.Concurrency = 2
		o.CallTimeout = 300 * time.Millisecond
	})

	for i := range 3 {
		start := time.Now()
		out := s.Invoke(action.Chat, action.Args{"message": "hi"})
		if out.OK() || out.Err.Kind != action.KindTimeout {
			t.Fatalf("call %d: expected timeout, got %+v", i, out)
		}
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Fatalf("call %d not bounded: %v", i, elapsed)
		}
	}

	done := make(chan action.Outcome, 1)
	go func() { done <- s.Invoke(action.GetSummary, nil) }()
	select {
	case out := <-done:
		if out.OK() || out.Err.Kind != action.KindTimeout {
			t.Errorf("expected timeout, got %+v", out)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Invoke blocked on a saturated loop")
	}

	stopped := make(chan struct{})
	go func() {
		s.Shutdown()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		t.Fatal("Shutdown blocked behind hung requests")
	}
}

func TestChatTemperature(t *testing.T) {
	t.Parallel()

	chatLine := func(t *testing.T, record string) string {
		t.Helper()
		lines, err := rpctest.ReadRecord(record)
		if err != nil {
			t.Fatalf("reading record: %v", err)
		}
		for _, l := range lines {
			if strings.Contains(l, `"chat_with_watsonx"`) {
				return l
			}
		}
		t.Fatalf("no chat request recorded in %q", lines)
		return ""
	}

	tests := []struct {
		name string
		opt  *float64
		args action.Args
		want string
	}{
		{"default", nil, action.Args{"message": "hi"}, `"temperature":0.7`},
		{"configured zero", new(float64), action.Args{"message": "hi"}, `"temperature":0`},
		{"explicit zero argument", nil, action.Args{"message": "hi", "temperature": 0}, `"temperature":0`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			record := filepath.Join(t.TempDir(), "record.log")
			s := newService(t, rpctest.ModeEcho, func(o *Options) {
				o.Command = rpctest.Command(rpctest.ModeEcho, record)
				o.Temperature = tt.opt
			})
			if out := s.Invoke(action.Chat, tt.args); !out.OK() {
				t.Fatalf("unexpected failure %+v", out.Err)
			}
			line := chatLine(t, record)
			if !strings.Contains(line, tt.want+",") && !strings.Contains(line, tt.want+"}") {
				t.Errorf("expected %s in %s", tt.want, line)
			}
		})
	}
}
