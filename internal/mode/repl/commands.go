// ABOUTME: Slash commands for the REPL and fuzzy suggestions for typos
// ABOUTME: /symptoms prompts for symptoms, age, and gender before analysing

package repl

import (
	"context"
	"strconv"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/mauromedda/medassist/internal/action"
	"github.com/mauromedda/medassist/internal/tools"
)

var commandNames = []string{
	"/help", "/symptoms", "/clear", "/summary", "/info", "/greet", "/quit", "/exit",
}

// command runs a slash command and reports whether the session should end.
func (r *REPL) command(ctx context.Context, line string) bool {
	cmd, rest, _ := strings.Cut(line, " ")
	cmd = strings.ToLower(cmd)
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		r.println(r.cat.CLI.Help)
	case "/symptoms":
		r.interactiveSymptoms(ctx)
	case "/clear":
		out := r.backend.InvokeContext(ctx, action.ClearHistory, nil)
		if !out.OK() {
			r.errorln("❌ " + out.Err.Message)
			break
		}
		r.println(r.cat.Render(r.cat.Formats.Cleared, map[string]string{"Text": out.Text}))
	case "/summary":
		r.noticeln(r.cat.CLI.SummaryWait)
		r.reply(r.cat.CLI.SummaryHeader, r.backend.InvokeContext(ctx, action.GetSummary, nil))
	case "/info":
		r.reply(r.cat.CLI.InfoHeader, r.backend.InvokeContext(ctx, action.GetServerInfo, nil))
	case "/greet":
		var args action.Args
		if rest != "" {
			args = action.Args{"name": rest}
		}
		out := r.backend.InvokeContext(ctx, action.GetGreeting, args)
		if !out.OK() {
			r.errorln("❌ " + out.Err.Message)
			break
		}
		name := rest
		if name == "" {
			name = tools.DefaultPatientName
		}
		r.println(r.cat.Greeting(name, out.Text))
	default:
		r.unknown(cmd)
	}
	return false
}

func (r *REPL) unknown(cmd string) {
	r.errorln(r.cat.Render(r.cat.CLI.UnknownCommand, map[string]string{"Command": cmd}))
	if s, ok := suggest(cmd); ok {
		r.println(r.cat.Render(r.cat.CLI.Suggestion, map[string]string{"Suggestion": s}))
		return
	}
	r.println(r.cat.CLI.NoSuggestion)
}

// suggest returns the closest known command for a mistyped one.
func suggest(cmd string) (string, bool) {
	matches := fuzzy.Find(cmd, commandNames)
	if len(matches) == 0 {
		return "", false
	}
	return matches[0].Str, true
}

func (r *REPL) interactiveSymptoms(ctx context.Context) {
	r.println(r.cat.CLI.SymptomsIntro)

	symptoms, ok := r.readLine(ctx, r.cat.CLI.SymptomsPrompt)
	symptoms = strings.TrimSpace(symptoms)
	if !ok || symptoms == "" {
		r.errorln(r.cat.CLI.NoSymptoms)
		return
	}
	args := action.Args{"symptoms": symptoms}

	ageText, ok := r.readLine(ctx, r.cat.CLI.AgePrompt)
	if !ok {
		return
	}
	if ageText = strings.TrimSpace(ageText); ageText != "" {
		if age, err := strconv.Atoi(ageText); err == nil {
			args["age"] = age
		} else {
			r.errorln(r.cat.CLI.InvalidAge)
		}
	}

	gender, ok := r.readLine(ctx, r.cat.CLI.GenderPrompt)
	if !ok {
		return
	}
	if gender = strings.TrimSpace(gender); gender != "" {
		args["gender"] = gender
	}

	r.analyze(ctx, args)
}
