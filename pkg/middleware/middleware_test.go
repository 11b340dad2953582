package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"kickback-engine/pkg/config"
	"kickback-engine/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

func perform(r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestErrorRendersBaseError(t *testing.T) {
	r := gin.New()
	r.Use(Error())
	r.GET("/conflict", func(c *gin.Context) {
		_ = c.Error(errutil.Conflict("already approved", nil,
			errutil.WithDetails(errutil.Detail{Field: "earningId", Message: "e1"})))
	})
	r.GET("/loss", func(c *gin.Context) {
		_ = c.Error(errutil.DataLoss("participation missing", errors.New("row gone")))
	})
	r.GET("/plain", func(c *gin.Context) {
		_ = c.Error(errors.New("secret detail"))
	})
	r.GET("/ok", func(c *gin.Context) {
		c.String(http.StatusOK, "fine")
	})

	w := perform(r, http.MethodGet, "/conflict", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	require.JSONEq(t, `{"error":{"code":"CONFLICT","message":"already approved","details":[{"field":"earningId","message":"e1"}]}}`, w.Body.String())

	w = perform(r, http.MethodGet, "/loss", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotContains(t, w.Body.String(), "row gone")
	require.Contains(t, w.Body.String(), "DATA_LOSS")

	w = perform(r, http.MethodGet, "/plain", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotContains(t, w.Body.String(), "secret detail")

	w = perform(r, http.MethodGet, "/ok", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "fine", w.Body.String())
}

func newAuthEngine(t *testing.T) *gin.Engine {
	t.Helper()
	auth, err := NewAuthorizer(&config.Config{})
	require.NoError(t, err)

	r := gin.New()
	r.Use(Error())
	api := r.Group("/api", auth.Authorize())
	ok := func(c *gin.Context) { c.String(http.StatusOK, ActorFrom(c).Email) }
	api.GET("/admin/kickback/campaigns", ok)
	api.POST("/admin/kickback/earnings/approve", ok)
	api.GET("/retailer/kickback/balance", ok)
	api.POST("/kickback/sales", ok)
	return r
}

func TestAuthorize(t *testing.T) {
	r := newAuthEngine(t)
	as := func(role, email string) map[string]string {
		return map[string]string{HeaderUserRole: role, HeaderUserEmail: email}
	}

	cases := []struct {
		name    string
		method  string
		path    string
		headers map[string]string
		want    int
	}{
		{"admin on admin route", http.MethodGet, "/api/admin/kickback/campaigns", as("admin", "a@x.io"), http.StatusOK},
		{"admin approves", http.MethodPost, "/api/admin/kickback/earnings/approve", as("Admin", "a@x.io"), http.StatusOK},
		{"admin inherits retailer", http.MethodGet, "/api/retailer/kickback/balance", as("admin", "a@x.io"), http.StatusOK},
		{"retailer balance", http.MethodGet, "/api/retailer/kickback/balance", as("retailer", "r@x.io"), http.StatusOK},
		{"retailer on admin route", http.MethodGet, "/api/admin/kickback/campaigns", as("retailer", "r@x.io"), http.StatusForbidden},
		{"retailer posts sale", http.MethodPost, "/api/kickback/sales", as("retailer", "r@x.io"), http.StatusOK},
		{"channel posts sale", http.MethodPost, "/api/kickback/sales", as("channel", ""), http.StatusOK},
		{"channel reads balance", http.MethodGet, "/api/retailer/kickback/balance", as("channel", ""), http.StatusForbidden},
		{"no role", http.MethodGet, "/api/retailer/kickback/balance", nil, http.StatusUnauthorized},
		{"retailer without email", http.MethodGet, "/api/retailer/kickback/balance", as("retailer", ""), http.StatusUnauthorized},
		{"unknown role", http.MethodGet, "/api/retailer/kickback/balance", as("guest", "g@x.io"), http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := perform(r, tc.method, tc.path, tc.headers)
			require.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}

func TestActorFromEmptyContext(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	require.Equal(t, Actor{}, ActorFrom(c))
}

func TestChannel(t *testing.T) {
	r := gin.New()
	r.Use(Channel())
	r.GET("/ch", func(c *gin.Context) {
		c.String(http.StatusOK, GetChannel(c.Request.Context()))
	})

	cases := map[string]string{
		"pos_123":     "pos",
		"web_abc":     "online",
		"partner_xyz": "partner",
		"other":       "api",
		"":            "api",
	}
	for key, want := range cases {
		w := perform(r, http.MethodGet, "/ch", map[string]string{HeaderAPIKey: key})
		require.Equal(t, want, w.Body.String(), key)
	}
}

func TestChannelContextHelpers(t *testing.T) {
	require.Equal(t, "api", GetChannel(context.Background()))

	require.Equal(t, ChannelPOS, GetChannel(WithChannel(context.Background(), "pos")))
	require.Equal(t, ChannelAPI, GetChannel(WithChannel(context.Background(), "")))
}
