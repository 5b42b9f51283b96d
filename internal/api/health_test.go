package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func readiness(t *testing.T, h *HealthHandler) (int, ReadinessResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	return rec.Code, decode[ReadinessResponse](t, rec)
}

func TestReadiness(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	code, resp := readiness(t, NewHealthHandler(okPinger{}, rdb, "test", "v0"))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]string{"postgres": "ok", "redis": "ok"}, resp.Dependencies)

	mr.Close()
	code, resp = readiness(t, NewHealthHandler(okPinger{}, rdb, "test", "v0"))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", resp.Status)

	code, resp = readiness(t, NewHealthHandler(okPinger{err: errors.New("refused")}, nil, "test", "v0"))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, map[string]string{"postgres": "down"}, resp.Dependencies)
}
