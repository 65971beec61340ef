package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ziadkadry99/chaxai/internal/apperr"
	"github.com/ziadkadry99/chaxai/internal/logging"
	"github.com/ziadkadry99/chaxai/internal/trace"
)

type chatRequest struct {
	Message string `json:"message"`
}

type contentEvent struct {
	Content string `json:"content"`
}

type doneEvent struct {
	Done       bool     `json:"done"`
	Sources    []string `json:"sources"`
	Confidence float64  `json:"confidence"`
	TraceID    string   `json:"trace_id"`
}

type errorEvent struct {
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

// handleChatStream answers a message as server-sent events. Errors found
// before the first event are ordinary JSON error responses.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apperr.Write(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		apperr.Write(w, r, apperr.Newf(apperr.KindInternal, "streaming unsupported"))
		return
	}

	started := false
	send := func(v any) error {
		if !started {
			h := w.Header()
			h.Set("Content-Type", "text/event-stream")
			h.Set("Cache-Control", "no-cache")
			h.Set("Connection", "keep-alive")
			h.Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	ans, err := s.answers.Stream(r.Context(), req.Message, func(delta string) error {
		return send(contentEvent{Content: delta})
	})
	if err != nil {
		if !started {
			apperr.Write(w, r, err)
			return
		}
		logging.L().Warnw("stream aborted", "error", err, "trace_id", trace.ID(r.Context()))
		send(errorEvent{Done: true, Error: apperr.Detail(err)})
		return
	}
	send(doneEvent{Done: true, Sources: ans.Sources, Confidence: ans.Confidence, TraceID: ans.TraceID})
}
