package analytics

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/chaxai/internal/apperr"
)

// RegisterRoutes mounts GET /analytics/summary on the given router.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Get("/analytics/summary", func(w http.ResponseWriter, r *http.Request) {
		days := 30
		if v := r.URL.Query().Get("days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 365 {
				apperr.Write(w, r, apperr.Newf(apperr.KindInvalidInput, "days must be between 1 and 365"))
				return
			}
			days = n
		}
		sum, err := store.Summary(r.Context(), days)
		if err != nil {
			apperr.Write(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sum)
	})
}
