// ABOUTME: Line-oriented terminal chat loop over the shared backend facade
// ABOUTME: Reads commands and messages, classifies free text, and prints replies

package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mauromedda/medassist/internal/action"
	"github.com/mauromedda/medassist/internal/intent"
	"github.com/mauromedda/medassist/internal/log"
	"github.com/mauromedda/medassist/internal/prompts"
)

const maxLineBytes = 1 << 20

// Backend runs actions. *backend.Service satisfies it.
type Backend interface {
	InvokeContext(ctx context.Context, name action.Name, args action.Args) action.Outcome
}

// Options configures a REPL.
type Options struct {
	In      io.Reader
	Out     io.Writer
	Backend Backend
	Catalog *prompts.Catalog
	Styled  bool // render markdown and colours
	Width   int
	Logger  *slog.Logger
}

// REPL is an interactive chat session on a terminal or pipe.
type REPL struct {
	backend Backend
	cat     *prompts.Catalog
	out     io.Writer
	theme   theme
	md      *markdown
	log     *slog.Logger

	in    io.Reader
	lines chan string
	done  chan struct{}
	stop  chan struct{}
	err   error
}

// New builds a REPL. Backend and Out are required; In defaults to an empty
// reader and Catalog to the embedded one.
func New(opts Options) *REPL {
	if opts.In == nil {
		opts.In = strings.NewReader("")
	}
	if opts.Catalog == nil {
		opts.Catalog = prompts.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithComponent("repl")
	}
	return &REPL{
		backend: opts.Backend,
		cat:     opts.Catalog,
		out:     opts.Out,
		theme:   newTheme(opts.Out, opts.Styled),
		md:      newMarkdown(opts.Width),
		log:     logger,
		in:      opts.In,
	}
}

// Run loops until /quit, end of input, or ctx is done. A read error other
// than EOF is returned.
func (r *REPL) Run(ctx context.Context) error {
	r.startReader()
	defer close(r.stop)

	banner := r.cat.CLI.Banner
	rule := r.theme.paint(r.theme.rule, ruleFor(banner))
	r.println(rule)
	r.println(banner)
	r.println(rule)

	for {
		line, ok := r.readLine(ctx, r.cat.CLI.Prompt)
		if !ok {
			r.println("\n" + r.cat.CLI.Goodbye)
			if ctx.Err() != nil {
				return nil
			}
			return r.err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.command(ctx, line); quit {
				r.println(r.cat.CLI.Goodbye)
				return nil
			}
			continue
		}
		r.message(ctx, line)
	}
}

// startReader feeds input lines to a channel so ctx cancellation can
// interrupt a blocked read.
func (r *REPL) startReader() {
	r.lines = make(chan string)
	r.done = make(chan struct{})
	r.stop = make(chan struct{})
	go func() {
		defer close(r.done)
		sc := bufio.NewScanner(r.in)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for sc.Scan() {
			select {
			case r.lines <- sc.Text():
			case <-r.stop:
				return
			}
		}
		r.err = sc.Err()
	}()
}

func (r *REPL) readLine(ctx context.Context, prompt string) (string, bool) {
	fmt.Fprint(r.out, "\n"+r.theme.paint(r.theme.prompt, prompt))
	select {
	case line := <-r.lines:
		return line, true
	case <-r.done:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

// message classifies free text and shows the reply.
func (r *REPL) message(ctx context.Context, text string) {
	name, args := intent.ParseMessageForAction(text)
	r.log.Debug("classified message", "action", name)

	if name == action.AnalyzeSymptoms {
		if args.String("symptoms", "") == "" {
			r.errorln(r.cat.CLI.EmptyPrefix)
			return
		}
		r.analyze(ctx, args)
		return
	}
	r.noticeln(r.cat.CLI.Thinking)
	r.reply(r.cat.CLI.AssistantLabel, r.backend.InvokeContext(ctx, name, args))
}

func (r *REPL) analyze(ctx context.Context, args action.Args) {
	r.noticeln(r.cat.CLI.Analyzing)
	r.reply(r.cat.CLI.AnalysisHeader, r.backend.InvokeContext(ctx, action.AnalyzeSymptoms, args))
}

// reply prints a labelled outcome. Styled output puts rendered markdown on
// the lines below the label.
func (r *REPL) reply(label string, out action.Outcome) {
	if !out.OK() {
		r.errorln("❌ " + out.Err.Message)
		return
	}
	if r.theme.styled {
		r.println(r.theme.paint(r.theme.label, label))
		r.println(r.md.Render(out.Text))
		return
	}
	sep := " "
	if strings.Contains(out.Text, "\n") {
		sep = "\n"
	}
	r.println(label + sep + out.Text)
}

func (r *REPL) println(s string) {
	fmt.Fprintln(r.out, s)
}

func (r *REPL) noticeln(s string) {
	r.println(r.theme.paint(r.theme.notice, s))
}

func (r *REPL) errorln(s string) {
	r.println(r.theme.paint(r.theme.errorText, s))
}
