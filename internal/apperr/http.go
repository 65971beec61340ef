package apperr

import (
	"encoding/json"
	"net/http"

	"github.com/ziadkadry99/chaxai/internal/logging"
	"github.com/ziadkadry99/chaxai/internal/trace"
)

// Body is the JSON error payload returned to clients.
type Body struct {
	Detail string `json:"detail"`
}

// Write sends err as a {"detail": ...} response with its mapped status.
// Server-side failures are logged with the request's trace ID.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status == http.StatusOK {
		status = http.StatusInternalServerError
	}
	if status >= 500 {
		logging.L().Errorw("request failed",
			"trace_id", trace.ID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Body{Detail: Detail(err)})
}
