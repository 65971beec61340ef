package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/chaxai/internal/apperr"
	"github.com/ziadkadry99/chaxai/internal/library"
	"github.com/ziadkadry99/chaxai/internal/logging"
	"github.com/ziadkadry99/chaxai/internal/rag"
	"github.com/ziadkadry99/chaxai/internal/trace"
)

const (
	maxJSONBody       = 64 << 10
	maxFilesPerUpload = 20
	multipartMemory   = 32 << 20
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "operational",
		"version":        s.cfg.Version,
		"documents":      len(s.lib.List()),
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"features": map[string]bool{
			"authentication": len(s.cfg.APITokens) > 0,
			"rate_limiting":  s.limiter != nil,
			"analytics":      s.analytics != nil,
			"audit":          s.audit != nil,
			"streaming":      true,
			"websocket":      true,
		},
	})
}

func (s *Server) handleWidgetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"features": map[string]bool{
			"streaming":        true,
			"file_upload":      true,
			"voice_input":      false,
			"markdown_support": true,
		},
		"branding": map[string]string{
			"name":          "ChaxAI Assistant",
			"theme":         "light",
			"primary_color": "#1976d2",
		},
		"auth_required": len(s.cfg.APITokens) > 0,
		"version":       s.cfg.Version,
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.lib.List())
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if u, err := url.PathUnescape(name); err == nil {
		name = u
	}
	ctx := library.WithActor(r.Context(), s.clientKey(r))
	if err := s.lib.Remove(ctx, name); err != nil {
		apperr.Write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type uploadResponse struct {
	Detail    string               `json:"detail,omitempty"`
	Results   []library.FileResult `json:"results"`
	Documents []library.Document   `json:"documents"`
}

// handleUpload indexes every file of a multipart form. Each file succeeds or
// fails on its own; the request only fails when every file did.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*maxFilesPerUpload+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apperr.Write(w, r, apperr.Newf(apperr.KindPayloadTooLarge, "upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		apperr.Write(w, r, apperr.E(apperr.KindInvalidInput, "invalid multipart form", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := append(r.MultipartForm.File["files"], r.MultipartForm.File["files[]"]...)
	switch {
	case len(headers) == 0:
		apperr.Write(w, r, apperr.Newf(apperr.KindInvalidInput, "no files uploaded"))
		return
	case len(headers) > maxFilesPerUpload:
		apperr.Write(w, r, apperr.Newf(apperr.KindInvalidInput, "at most %d files per upload", maxFilesPerUpload))
		return
	}

	files := make([]library.File, 0, len(headers))
	for _, fh := range headers {
		data, err := s.readPart(fh)
		if err != nil {
			apperr.Write(w, r, apperr.E(apperr.KindInvalidInput, "could not read "+fh.Filename, err))
			return
		}
		files = append(files, library.File{Name: fh.Filename, Data: data})
	}

	ctx := library.WithActor(r.Context(), s.clientKey(r))
	results := s.lib.UploadBatch(ctx, files)

	resp := uploadResponse{Results: results, Documents: s.lib.List()}
	status := http.StatusOK
	var firstErr error
	for _, res := range results {
		if res.Err == nil {
			firstErr = nil
			break
		}
		if firstErr == nil {
			firstErr = res.Err
		}
	}
	if firstErr != nil {
		status = apperr.HTTPStatus(firstErr)
		resp.Detail = apperr.Detail(firstErr)
	}
	writeJSON(w, status, resp)
}

// readPart reads at most one byte past the upload limit so the library can
// reject oversized files by size.
func (s *Server) readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	ctx := library.WithActor(r.Context(), s.clientKey(r))
	report, err := s.lib.Reindex(ctx)
	if err != nil {
		apperr.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apperr.Write(w, r, err)
		return
	}
	ans, err := s.answers.Answer(r.Context(), req.Question)
	if err != nil {
		apperr.Write(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "html" {
		out := *ans
		if html, err := rag.RenderHTML(ans.Answer); err != nil {
			logging.L().Warnw("rendering answer html failed", "error", err, "trace_id", trace.ID(r.Context()))
		} else {
			out.AnswerHTML = html
		}
		ans = &out
	}
	writeJSON(w, http.StatusOK, ans)
}

// decodeJSON reads a bounded JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Newf(apperr.KindPayloadTooLarge, "request body exceeds %d bytes", tooLarge.Limit)
		}
		return apperr.E(apperr.KindInvalidInput, "invalid JSON body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
