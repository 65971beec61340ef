package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindInvalidInput, http.StatusBadRequest},
		{KindInvalidName, http.StatusBadRequest},
		{KindEmptyQuestion, http.StatusBadRequest},
		{KindUnsupportedFormat, http.StatusBadRequest},
		{KindUnauthorized, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindProviderUnavailable, http.StatusServiceUnavailable},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(E(tt.kind, "x", nil)))
		})
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	base := Newf(KindNotFound, "document %q not found", "a.txt")
	wrapped := fmt.Errorf("removing: %w", base)

	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindNotFound))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(wrapped))
	assert.Equal(t, `document "a.txt" not found`, Detail(wrapped))
}

func TestPlainErrorsAreInternal(t *testing.T) {
	err := errors.New("disk on fire")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
	assert.Equal(t, "Internal server error", Detail(err))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestWithStatusOverride(t *testing.T) {
	err := E(KindProviderUnavailable, "completion provider unavailable", errors.New("502")).WithStatus(http.StatusBadGateway)
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(err))
	assert.Equal(t, KindProviderUnavailable, KindOf(err))
}

func TestWriteBody(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/documents/x", nil)
	Write(rec, req, Newf(KindNotFound, "document %q not found", "x"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"detail":"document \"x\" not found"}`, rec.Body.String())
}

func TestWriteHidesInternalCause(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	Write(rec, req, errors.New("disk on fire"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk on fire")
}
