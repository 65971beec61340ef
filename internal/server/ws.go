package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ziadkadry99/chaxai/internal/apperr"
	"github.com/ziadkadry99/chaxai/internal/logging"
	"github.com/ziadkadry99/chaxai/internal/trace"
)

const (
	wsReadLimit   = 64 << 10
	wsAuthTimeout = 10 * time.Second
	wsWriteWait   = 5 * time.Second
)

// wsRequest is the incoming WebSocket message format.
type wsRequest struct {
	Type    string `json:"type"` // "auth", "chat" or "ping"
	Token   string `json:"token,omitempty"`
	Message string `json:"message,omitempty"`
}

// wsReply is the outgoing WebSocket message format.
type wsReply struct {
	Type       string   `json:"type"` // "connected", "typing", "message", "error" or "pong"
	Content    string   `json:"content,omitempty"`
	Sources    []string `json:"sources,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	TraceID    string   `json:"trace_id,omitempty"`
	IsTyping   *bool    `json:"is_typing,omitempty"`
	Detail     string   `json:"detail,omitempty"`
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// handleWebSocket serves chat over a WebSocket. When tokens are configured
// the first message must be {"type":"auth","token":...}; anything else
// closes the connection with a policy violation.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, http.Header{trace.Header: {trace.ID(r.Context())}})
	if err != nil {
		logging.L().Warnw("websocket upgrade failed", "error", err, "trace_id", trace.ID(r.Context()))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	if len(s.cfg.APITokens) > 0 && !s.wsAuthenticate(conn) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication required"),
			time.Now().Add(wsWriteWait))
		return
	}
	if err := conn.WriteJSON(wsReply{Type: "connected"}); err != nil {
		return
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.L().Warnw("websocket read failed", "error", err, "trace_id", trace.ID(r.Context()))
			}
			return
		}

		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			s.wsSend(conn, wsReply{Type: "error", Detail: "invalid message format"})
			continue
		}

		switch req.Type {
		case "ping":
			s.wsSend(conn, wsReply{Type: "pong"})
		case "auth":
			s.wsSend(conn, wsReply{Type: "connected"})
		case "chat":
			s.wsChat(r.Context(), conn, req.Message)
		default:
			s.wsSend(conn, wsReply{Type: "error", Detail: "unknown message type: " + req.Type})
		}
	}
}

func (s *Server) wsAuthenticate(conn *websocket.Conn) bool {
	conn.SetReadDeadline(time.Now().Add(wsAuthTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return false
	}
	var req wsRequest
	if err := json.Unmarshal(msg, &req); err != nil || req.Type != "auth" {
		return false
	}
	return s.validToken(req.Token)
}

// wsChat answers one message under its own trace ID.
func (s *Server) wsChat(ctx context.Context, conn *websocket.Conn, message string) {
	ctx = trace.WithID(ctx, trace.NewID())
	typing, idle := true, false

	s.wsSend(conn, wsReply{Type: "typing", IsTyping: &typing})
	ans, err := s.answers.Answer(ctx, message)
	s.wsSend(conn, wsReply{Type: "typing", IsTyping: &idle})
	if err != nil {
		if apperr.HTTPStatus(err) >= 500 {
			logging.L().Errorw("websocket chat failed", "error", err, "trace_id", trace.ID(ctx))
		}
		s.wsSend(conn, wsReply{Type: "error", Detail: apperr.Detail(err), TraceID: trace.ID(ctx)})
		return
	}
	s.wsSend(conn, wsReply{
		Type:       "message",
		Content:    ans.Answer,
		Sources:    ans.Sources,
		Confidence: ans.Confidence,
		TraceID:    ans.TraceID,
	})
}

func (s *Server) wsSend(conn *websocket.Conn, reply wsReply) {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(reply); err != nil {
		logging.L().Debugw("websocket write failed", "error", err)
	}
}
