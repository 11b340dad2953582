package kickback

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kickback-engine/pkg/config"
	"kickback-engine/pkg/lock"
	"kickback-engine/pkg/middleware"
	"kickback-engine/services/campaign"
	"kickback-engine/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type apiClient struct {
	t *testing.T
	r *gin.Engine
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()
	gin.SetMode(gin.TestMode)

	models := append([]any{&campaign.Campaign{}, &campaign.CampaignRetailer{}}, Models()...)
	db := testutil.NewTestDB(t, models...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Kickback.Timezone = "Europe/Oslo"
	cfg.Kickback.MatcherCacheTTL = time.Minute
	cfg.Kickback.Queue = "kickback"

	cache := campaign.NewActiveCache(time.Minute)
	campaigns := campaign.NewService(campaign.ServiceParams{
		DB:       db,
		Node:     node,
		Cache:    cache,
		Config:   cfg,
		Cascades: []campaign.CascadeFunc{CascadeDelete},
	})
	matcher := campaign.NewMatcher(campaign.MatcherParams{Store: campaigns, Cache: cache, Config: cfg})

	svc := NewService(ServiceParams{
		DB:        db,
		Node:      node,
		Locker:    lock.NewMemoryLocker(0),
		Config:    cfg,
		Campaigns: campaigns,
		Matcher:   matcher,
	})

	auth, err := middleware.NewAuthorizer(cfg)
	require.NoError(t, err)

	r := gin.New()
	r.Use(middleware.Error(), middleware.Channel())
	RegisterRoutes(r, auth, NewHandler(HandlerParams{Service: svc, Campaigns: campaigns}))
	return &apiClient{t: t, r: r}
}

func (a *apiClient) do(method, path, role, email string, body any) (int, map[string]any) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set(middleware.HeaderUserRole, role)
	}
	if email != "" {
		req.Header.Set(middleware.HeaderUserEmail, email)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHandlerSaleToBalance(t *testing.T) {
	api := newTestAPI(t)
	const shop = "shop@example.com"

	code, created := api.do(http.MethodPost, "/api/admin/kickback/campaigns", "admin", admin, map[string]any{
		"campaignName":      "Cola spring",
		"productId":         "SKU-COLA-05",
		"productName":       "Coca-Cola 0.5L",
		"kickbackRate":      "10",
		"salesTarget":       "1000",
		"durationDays":      30,
		"selectedRetailers": []string{shop},
	})
	require.Equal(t, http.StatusCreated, code, created)
	campaignID := created["id"].(string)

	code, _ = api.do(http.MethodPost, "/api/kickback/sales", "retailer", shop, map[string]any{
		"productId":  "SKU-COLA-05",
		"saleAmount": "100",
	})
	require.Equal(t, http.StatusAccepted, code)

	code, body := api.do(http.MethodGet, "/api/retailer/kickback/campaigns", "retailer", shop, nil)
	require.Equal(t, http.StatusOK, code)
	list := body["campaigns"].([]any)
	require.Len(t, list, 1)
	rc := list[0].(map[string]any)
	require.Equal(t, campaignID, rc["id"])
	require.Equal(t, "10", rc["pendingPoints"])

	code, body = api.do(http.MethodGet, "/api/admin/kickback/earnings/pending", "admin", admin, nil)
	require.Equal(t, http.StatusOK, code)
	earnings := body["earnings"].([]any)
	require.Len(t, earnings, 1)
	earningID := earnings[0].(map[string]any)["id"].(string)

	code, body = api.do(http.MethodPost, "/api/admin/kickback/earnings/approve", "admin", admin, map[string]any{
		"earningId": earningID,
	})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "BAD_REQUEST", errorCode(body))

	code, body = api.do(http.MethodPost, "/api/admin/kickback/earnings/approve", "admin", admin, map[string]any{
		"earningId": earningID,
		"approve":   false,
	})
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.Equal(t, "VALIDATION_FAILED", errorCode(body))

	code, body = api.do(http.MethodPost, "/api/admin/kickback/earnings/approve", "admin", admin, map[string]any{
		"earningId": earningID,
		"approve":   true,
	})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "APPROVED", body["status"])
	require.Equal(t, admin, body["approvedBy"])

	code, body = api.do(http.MethodPost, "/api/admin/kickback/earnings/approve", "admin", admin, map[string]any{
		"earningId": earningID,
		"approve":   true,
	})
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "CONFLICT", errorCode(body))

	code, body = api.do(http.MethodGet, "/api/retailer/kickback/balance", "retailer", shop, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "10", body["approvedPoints"])

	code, body = api.do(http.MethodGet, "/api/admin/kickback/campaigns", "admin", admin, nil)
	require.Equal(t, http.StatusOK, code)
	listed := body["campaigns"].([]any)
	require.Len(t, listed, 1)
	summary := listed[0].(map[string]any)
	require.Equal(t, "1000", summary["salesTarget"])
	require.EqualValues(t, 1, summary["totalParticipants"])
	require.Equal(t, "10", summary["totalPointsAwarded"])
	require.Equal(t, []any{shop}, summary["retailerIds"])

	code, body = api.do(http.MethodGet, "/api/admin/kickback/campaigns/"+campaignID, "admin", admin, nil)
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 1, body["totalParticipants"])
	require.Equal(t, "10", body["totalPointsAwarded"])

	code, _ = api.do(http.MethodDelete, "/api/admin/kickback/campaigns/"+campaignID, "admin", admin, nil)
	require.Equal(t, http.StatusNoContent, code)

	code, body = api.do(http.MethodGet, "/api/retailer/kickback/balance", "retailer", shop, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "0", body["approvedPoints"])
}

func TestHandlerBulkApprove(t *testing.T) {
	api := newTestAPI(t)

	code, body := api.do(http.MethodPost, "/api/admin/kickback/earnings/bulk-approve", "admin", admin, map[string]any{
		"earningIds": []string{"a", "b"},
	})
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 0, body["successCount"])
	require.EqualValues(t, 2, body["failCount"])
}

func TestHandlerAccessControl(t *testing.T) {
	api := newTestAPI(t)

	code, body := api.do(http.MethodGet, "/api/admin/kickback/campaigns", "", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "UNAUTHORIZED", errorCode(body))

	code, body = api.do(http.MethodGet, "/api/admin/kickback/campaigns", "retailer", "shop@example.com", nil)
	require.Equal(t, http.StatusForbidden, code)
	require.Equal(t, "FORBIDDEN", errorCode(body))

	code, _ = api.do(http.MethodPost, "/api/kickback/sales", "channel", "", map[string]any{
		"retailerEmail": "shop@example.com",
		"productId":     "SKU-COLA-05",
		"saleAmount":    "10",
	})
	require.Equal(t, http.StatusAccepted, code)

	code, _ = api.do(http.MethodGet, "/api/retailer/kickback/balance", "admin", admin, nil)
	require.Equal(t, http.StatusOK, code)

	code, body = api.do(http.MethodGet, "/api/admin/kickback/campaigns/nope", "admin", admin, nil)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "NOT_FOUND", errorCode(body))
}
