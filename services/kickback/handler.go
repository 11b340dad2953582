package kickback

import (
	"net/http"
	"strconv"

	"kickback-engine/pkg/db/pagination"
	"kickback-engine/pkg/errutil"
	"kickback-engine/pkg/middleware"
	"kickback-engine/services/campaign"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
)

type Handler struct {
	svc       *Service
	campaigns *campaign.Service
}

type HandlerParams struct {
	fx.In

	Service   *Service
	Campaigns *campaign.Service
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{svc: p.Service, campaigns: p.Campaigns}
}

// RegisterRoutes mounts the admin, retailer and intake routes behind the
// authorizer.
func RegisterRoutes(r *gin.Engine, auth *middleware.Authorizer, h *Handler) {
	api := r.Group("/api", auth.Authorize())

	admin := api.Group("/admin/kickback")
	admin.POST("/campaigns", h.CreateCampaign)
	admin.GET("/campaigns", h.ListCampaigns)
	admin.GET("/campaigns/active", h.ListActiveCampaigns)
	admin.GET("/campaigns/:id", h.GetCampaign)
	admin.PUT("/campaigns/:id", h.UpdateCampaign)
	admin.DELETE("/campaigns/:id", h.DeleteCampaign)
	admin.GET("/campaigns/:id/earnings/pending", h.ListCampaignPending)
	admin.GET("/earnings/pending", h.ListPending)
	admin.POST("/earnings/approve", h.Decide)
	admin.POST("/earnings/bulk-approve", h.BulkApprove)

	retailer := api.Group("/retailer/kickback")
	retailer.GET("/balance", h.Balance)
	retailer.GET("/campaigns", h.RetailerCampaigns)

	api.POST("/kickback/sales", h.SubmitSale)
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return false
	}
	return true
}

type updateCampaignRequest struct {
	campaign.Input
	Status campaign.Status `json:"status"`
}

func (h *Handler) CreateCampaign(c *gin.Context) {
	var in campaign.Input
	if !bindJSON(c, &in) {
		return
	}
	out, err := h.campaigns.Create(c.Request.Context(), in, middleware.ActorFrom(c).Email)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) ListCampaigns(c *gin.Context) {
	list, err := h.svc.ListCampaignDetails(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": list})
}

func (h *Handler) ListActiveCampaigns(c *gin.Context) {
	list, err := h.svc.ListActiveCampaignDetails(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": list})
}

func (h *Handler) GetCampaign(c *gin.Context) {
	detail, err := h.svc.CampaignDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) UpdateCampaign(c *gin.Context) {
	var req updateCampaignRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.campaigns.Update(c.Request.Context(), c.Param("id"), req.Input, req.Status)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) DeleteCampaign(c *gin.Context) {
	if err := h.campaigns.Delete(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListPending(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, page, err := h.svc.ListPending(c.Request.Context(), pagination.Pagination{
		Cursor: c.Query("cursor"),
		Limit:  limit,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"earnings": list, "pageInfo": page})
}

func (h *Handler) ListCampaignPending(c *gin.Context) {
	list, err := h.svc.ListPendingByCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"earnings": list})
}

type decideRequest struct {
	EarningID       string `json:"earningId" binding:"required"`
	Approve         *bool  `json:"approve" binding:"required"`
	RejectionReason string `json:"rejectionReason"`
}

func (h *Handler) Decide(c *gin.Context) {
	var req decideRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.svc.Decide(c.Request.Context(), Decision{
		EarningID:       req.EarningID,
		Approve:         *req.Approve,
		AdminEmail:      middleware.ActorFrom(c).Email,
		RejectionReason: req.RejectionReason,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type bulkApproveRequest struct {
	EarningIDs []string `json:"earningIds" binding:"required"`
}

func (h *Handler) BulkApprove(c *gin.Context) {
	var req bulkApproveRequest
	if !bindJSON(c, &req) {
		return
	}
	res := h.svc.BulkApprove(c.Request.Context(), req.EarningIDs, middleware.ActorFrom(c).Email)
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Balance(c *gin.Context) {
	email := middleware.ActorFrom(c).Email
	total, err := h.svc.ApprovedBalance(c.Request.Context(), email)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"retailerEmail": email, "approvedPoints": total})
}

func (h *Handler) RetailerCampaigns(c *gin.Context) {
	list, err := h.svc.CampaignsFor(c.Request.Context(), middleware.ActorFrom(c).Email)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": list})
}

type saleRequest struct {
	RetailerEmail string          `json:"retailerEmail"`
	RetailerName  string          `json:"retailerName"`
	ProductID     string          `json:"productId"`
	ProductName   string          `json:"productName"`
	SaleAmount    decimal.Decimal `json:"saleAmount"`
}

// SubmitSale always answers 202; intake failures are only logged.
func (h *Handler) SubmitSale(c *gin.Context) {
	var req saleRequest
	if !bindJSON(c, &req) {
		return
	}

	actor := middleware.ActorFrom(c)
	email := req.RetailerEmail
	if actor.Role == middleware.RoleRetailer || email == "" {
		email = actor.Email
	}

	ctx := c.Request.Context()
	h.svc.SubmitSale(ctx, SaleEvent{
		RetailerEmail: email,
		RetailerName:  req.RetailerName,
		ProductID:     req.ProductID,
		ProductName:   req.ProductName,
		SaleAmount:    req.SaleAmount,
		Channel:       middleware.GetChannel(ctx),
	})
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
