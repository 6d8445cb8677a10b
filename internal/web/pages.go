// ABOUTME: Browser page handlers: each action appends to the session history and redirects home
// ABOUTME: Assistant replies are wrapped with the catalog formats before they are stored

package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mauromedda/medassist/internal/action"
	"github.com/mauromedda/medassist/internal/history"
	"github.com/mauromedda/medassist/internal/intent"
)

// load returns the session history. ok is false when the store failed, in
// which case nothing may be saved over what it still holds.
func (s *Server) load(c *gin.Context) (entries []history.Entry, ok bool) {
	entries, err := s.opts.Store.Load(c.Request.Context(), sessionID(c))
	if err != nil {
		s.log.Error("loading history", "session", sessionID(c), "err", err)
		return nil, false
	}
	return entries, true
}

// save trims to MaxHistoryChars and stores entries.
func (s *Server) save(c *gin.Context, entries []history.Entry) {
	before := len(entries)
	entries = history.Trim(entries, s.opts.MaxHistoryChars)
	if dropped := before - len(entries); dropped > 0 {
		s.log.Info("trimmed chat history", "session", sessionID(c), "dropped", dropped, "chars", history.Length(entries))
	}
	if err := s.opts.Store.Save(c.Request.Context(), sessionID(c), entries); err != nil {
		s.log.Error("saving history", "session", sessionID(c), "err", err)
	}
}

// appendAndRedirect adds entries to the session history and sends the
// browser home.
func (s *Server) appendAndRedirect(c *gin.Context, add ...history.Entry) {
	if entries, ok := s.load(c); ok {
		s.save(c, append(entries, add...))
	}
	c.Redirect(http.StatusFound, "/")
}

func assistant(text string) history.Entry {
	return history.Entry{Role: history.RoleAssistant, Content: text}
}

func failed(text string) history.Entry {
	return history.Entry{Role: history.RoleError, Content: text}
}

func (s *Server) index(c *gin.Context) {
	entries, ok := s.load(c)
	if len(entries) == 0 {
		entries = []history.Entry{assistant(s.opts.Catalog.Welcome)}
		if ok {
			s.save(c, entries)
		}
	}
	c.HTML(http.StatusOK, "chat.html", gin.H{
		"AppName":    s.opts.Catalog.AppName,
		"Version":    s.opts.Version,
		"Disclaimer": s.opts.Catalog.Disclaimer,
		"History":    entries,
	})
}

func (s *Server) chat(c *gin.Context) {
	msg := strings.TrimSpace(c.PostForm("message"))
	if msg == "" {
		c.Redirect(http.StatusFound, "/")
		return
	}

	name, args := intent.ParseMessageForAction(msg)
	out := s.opts.Backend.InvokeContext(c.Request.Context(), name, args)

	user := history.Entry{Role: history.RoleUser, Content: msg}
	switch {
	case !out.OK():
		s.appendAndRedirect(c, user, failed(out.Err.Message))
	case name == action.AnalyzeSymptoms:
		s.appendAndRedirect(c, user, assistant(s.opts.Catalog.Analysis(out.Text)))
	default:
		s.appendAndRedirect(c, user, assistant(out.Text))
	}
}

func (s *Server) clear(c *gin.Context) {
	if out := s.opts.Backend.InvokeContext(c.Request.Context(), action.ClearHistory, nil); !out.OK() {
		s.log.Warn("backend history not cleared", "err", out.Err.Message)
	}
	if err := s.opts.Store.Delete(c.Request.Context(), sessionID(c)); err != nil {
		s.log.Error("deleting history", "session", sessionID(c), "err", err)
	}
	s.log.Info("chat history cleared", "session", sessionID(c))
	c.Redirect(http.StatusFound, "/")
}

func (s *Server) summary(c *gin.Context) {
	out := s.opts.Backend.InvokeContext(c.Request.Context(), action.GetSummary, nil)
	cat := s.opts.Catalog
	if !out.OK() {
		s.appendAndRedirect(c, failed(cat.Error(cat.Formats.SummaryError, out.Err.Message)))
		return
	}
	s.appendAndRedirect(c, assistant(cat.Summary(out.Text)))
}

func (s *Server) analyzeForm(c *gin.Context) {
	symptoms := strings.TrimSpace(c.PostForm("symptoms"))
	if symptoms == "" {
		c.Redirect(http.StatusFound, "/")
		return
	}
	age := strings.TrimSpace(c.PostForm("age"))
	gender := strings.TrimSpace(c.PostForm("gender"))

	args := action.Args{"symptoms": symptoms}
	input := "Symptoms: " + symptoms
	if age != "" {
		if n, err := strconv.Atoi(age); err == nil {
			args["age"] = n
			input += ", Age: " + age
		}
	}
	if gender != "" {
		args["gender"] = gender
		input += ", Gender: " + gender
	}

	out := s.opts.Backend.InvokeContext(c.Request.Context(), action.AnalyzeSymptoms, args)
	user := history.Entry{Role: history.RoleUser, Content: input}
	if !out.OK() {
		s.appendAndRedirect(c, user, failed(out.Err.Message))
		return
	}
	s.appendAndRedirect(c, user, assistant(s.opts.Catalog.Analysis(out.Text)))
}

func (s *Server) serverInfo(c *gin.Context) {
	out := s.opts.Backend.InvokeContext(c.Request.Context(), action.GetServerInfo, nil)
	cat := s.opts.Catalog
	if !out.OK() {
		s.appendAndRedirect(c, failed(cat.Error(cat.Formats.ServerInfoError, out.Err.Message)))
		return
	}
	s.appendAndRedirect(c, assistant(cat.ServerInfo(out.Text)))
}

func (s *Server) greeting(c *gin.Context) {
	name := c.Param("name")
	out := s.opts.Backend.InvokeContext(c.Request.Context(), action.GetGreeting, action.Args{"name": name})
	cat := s.opts.Catalog
	if !out.OK() {
		s.appendAndRedirect(c, failed(cat.Error(cat.Formats.GreetingError, out.Err.Message)))
		return
	}
	s.appendAndRedirect(c, assistant(cat.Greeting(name, out.Text)))
}

func (s *Server) help(c *gin.Context) {
	s.appendAndRedirect(c, assistant(s.opts.Catalog.Web.Help))
}
