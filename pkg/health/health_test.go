package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"kickback-engine/services/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h HealthService, path string) (int, Health) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var out Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return w.Code, out
}

func TestLiveness(t *testing.T) {
	code, out := serve(t, ProvideHealth(HealthParams{}), "/healthz")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "healthy", out.Status)
}

func TestReadiness(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := ProvideHealth(HealthParams{DB: testutil.NewTestDB(t), Redis: rdb})

	code, out := serve(t, h, "/readyz")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, out.Deps, 2)
	require.Equal(t, "sqlite", out.Deps[0].Name)
	require.Equal(t, "redis", out.Deps[1].Name)

	mr.Close()
	code, out = serve(t, h, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "unhealthy", out.Status)
	require.Equal(t, "unhealthy", out.Deps[1].Status)
}
