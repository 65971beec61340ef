package server

import (
	"bufio"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/chaxai/internal/analytics"
	"github.com/ziadkadry99/chaxai/internal/apperr"
	"github.com/ziadkadry99/chaxai/internal/logging"
	"github.com/ziadkadry99/chaxai/internal/trace"
)

const (
	tokenHeader       = "X-API-Token"
	processTimeHeader = "X-Process-Time"
)

var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// requestID attaches the trace ID to the request context and the response.
// A well-formed incoming X-Request-ID is kept.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(trace.Header)
		if !validRequestID.MatchString(id) {
			id = trace.NewID()
		}
		w.Header().Set(trace.Header, id)
		next.ServeHTTP(w, r.WithContext(trace.WithID(r.Context(), id)))
	})
}

const contentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self' 'unsafe-inline' 'unsafe-eval'; " +
	"style-src 'self' 'unsafe-inline'; " +
	"img-src 'self' data: https:; " +
	"font-src 'self' data:; " +
	"connect-src 'self' https: wss:;"

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", contentSecurityPolicy)
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=(), interest-cohort=()")
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter records the status and size of a response and stamps
// X-Process-Time just before the header is sent.
type responseWriter struct {
	http.ResponseWriter
	start  time.Time
	status int
	bytes  int
}

func (w *responseWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
		w.Header().Set(processTimeHeader, processTime(time.Since(w.start)))
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *responseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("server: hijacking not supported")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *responseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func processTime(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 4, 64)
}

// accessLog logs every request and records it for usage analytics.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, start: time.Now()}
		next.ServeHTTP(rw, r)
		if rw.status == 0 {
			rw.Header().Set(processTimeHeader, processTime(time.Since(rw.start)))
			rw.status = http.StatusOK
		}
		elapsed := time.Since(rw.start)

		endpoint := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			endpoint = rc.RoutePattern()
		}
		traceID := trace.ID(r.Context())
		logging.L().Infow("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"bytes", rw.bytes,
			"duration_ms", elapsed.Milliseconds(),
			"client", clientHost(r),
			"trace_id", traceID,
		)
		if endpoint == "/health" {
			return
		}
		err := s.usage.RecordUsage(context.WithoutCancel(r.Context()), analytics.Usage{
			Timestamp:  rw.start,
			Endpoint:   endpoint,
			Method:     r.Method,
			StatusCode: rw.status,
			Duration:   elapsed,
			Client:     clientHost(r),
			TraceID:    traceID,
		})
		if err != nil {
			logging.L().Warnw("recording usage failed", "error", err, "trace_id", traceID)
		}
	})
}

// requireToken rejects requests without a configured X-API-Token.
func (s *Server) requireToken(next http.Handler) http.Handler {
	if len(s.cfg.APITokens) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.validToken(r.Header.Get(tokenHeader)) {
			apperr.Write(w, r, apperr.Newf(apperr.KindUnauthorized, "invalid or missing API token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// validToken compares got against every configured token in constant time.
func (s *Server) validToken(got string) bool {
	if len(s.cfg.APITokens) == 0 {
		return true
	}
	match := 0
	for _, t := range s.cfg.APITokens {
		match |= subtle.ConstantTimeCompare([]byte(got), []byte(t))
	}
	return got != "" && match == 1
}

func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// clientKey identifies the caller for rate limiting and audit: a digest of
// its token when that token is accepted, else its address. Unchecked tokens
// never pick the key, so rotating them does not reset a caller's bucket.
func (s *Server) clientKey(r *http.Request) string {
	if tok := r.Header.Get(tokenHeader); tok != "" && len(s.cfg.APITokens) > 0 && s.validToken(tok) {
		sum := sha256.Sum256([]byte(tok))
		return "token:" + hex.EncodeToString(sum[:8])
	}
	return "ip:" + clientHost(r)
}
