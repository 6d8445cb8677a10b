// ABOUTME: JSON, server-sent events, and WebSocket endpoints
// ABOUTME: /api/chat and /ws share one reply shape so clients can switch transports

package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/mauromedda/medassist/internal/action"
	"github.com/mauromedda/medassist/internal/intent"
)

// eventBuffer is the per-subscriber channel size for /api/events.
const eventBuffer = 32

// keepAlive is how often an idle event stream sends a comment.
const keepAlive = 25 * time.Second

type chatRequest struct {
	Message string `json:"message"`
}

type chatReply struct {
	Response string `json:"response,omitempty"`
	Action   string `json:"action,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// answer classifies msg and runs it. The status is 400 for an empty
// message, 500 for a failed action, and 200 otherwise.
func (s *Server) answer(ctx context.Context, msg string) (int, chatReply) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return http.StatusBadRequest, chatReply{Error: "No message provided."}
	}
	name, args := intent.ParseMessageForAction(msg)
	out := s.opts.Backend.InvokeContext(ctx, name, args)
	if !out.OK() {
		return http.StatusInternalServerError, chatReply{Error: out.Err.Message}
	}
	return http.StatusOK, chatReply{Response: out.Text, Action: string(name), Success: true}
}

func (s *Server) apiChat(c *gin.Context) {
	var req chatRequest
	// Malformed bodies count as empty, like a missing message.
	_ = c.ShouldBindJSON(&req)
	code, reply := s.answer(c.Request.Context(), req.Message)
	c.JSON(code, reply)
}

func (s *Server) apiAnalyze(c *gin.Context) {
	var req map[string]any
	_ = c.ShouldBindJSON(&req)

	symptoms, _ := req["symptoms"].(string)
	symptoms = strings.TrimSpace(symptoms)
	if symptoms == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No symptoms provided."})
		return
	}

	args := action.Args{"symptoms": symptoms}
	if age, ok := req["age"]; ok {
		args["age"] = age
	}
	if gender, ok := req["gender"]; ok {
		args["gender"] = gender
	}

	out := s.opts.Backend.InvokeContext(c.Request.Context(), action.AnalyzeSymptoms, args)
	if !out.OK() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": out.Err.Message, "success": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"analysis": out.Text, "success": true})
}

func (s *Server) apiStatus(c *gin.Context) {
	status := gin.H{
		"app_name": s.opts.Catalog.AppName,
		"version":  s.opts.Version,
		"backend":  s.opts.Backend.Stats(),
	}
	if s.opts.Events != nil {
		published, dropped := s.opts.Events.Stats()
		status["events"] = gin.H{
			"subscribers": s.opts.Events.Count(),
			"published":   published,
			"dropped":     dropped,
		}
	}
	c.JSON(http.StatusOK, status)
}

// apiEvents streams backend events as server-sent events until the client
// goes away or the bus closes.
func (s *Server) apiEvents(c *gin.Context) {
	if s.opts.Events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream disabled"})
		return
	}
	sub := s.opts.Events.Subscribe(eventBuffer)
	defer sub.Unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.SSEvent("ready", gin.H{"at": time.Now()})
	c.Writer.Flush()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Kind), ev)
			return true
		case <-ticker.C:
			_, err := io.WriteString(w, ": keep-alive\n\n")
			return err == nil
		case <-ctx.Done():
			return false
		}
	})
}

// wsChat answers each {"message": ...} text frame with the /api/chat
// reply shape.
func (s *Server) wsChat(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, s.acceptOptions())
	if err != nil {
		s.log.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected close")

	ctx := c.Request.Context()
	s.log.Info("websocket client connected", "remote", c.Request.RemoteAddr)
	for {
		var req chatRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			s.log.Debug("websocket read ended", "err", err)
			return
		}
		_, reply := s.answer(ctx, req.Message)
		if err := wsjson.Write(ctx, conn, reply); err != nil {
			s.log.Debug("websocket write failed", "err", err)
			return
		}
	}
}

func (s *Server) acceptOptions() *websocket.AcceptOptions {
	origins := s.opts.CORSOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	return &websocket.AcceptOptions{OriginPatterns: origins}
}
