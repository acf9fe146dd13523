package healthprobe

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthAlwaysOK(t *testing.T) {
	t.Parallel()

	p := New()

	rec := httptest.NewRecorder()
	p.Health()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestReadyFollowsFlag(t *testing.T) {
	t.Parallel()

	p := New()

	rec := httptest.NewRecorder()
	p.Ready()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	p.SetReady(true)
	rec = httptest.NewRecorder()
	p.Ready()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	p.SetReady(false)
	rec = httptest.NewRecorder()
	p.Ready()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
