package handler

import (
	"net/http"

	"tour_portal_backend/internal/leads/management"
	"tour_portal_backend/internal/leads/transport"
	"tour_portal_backend/platform/httpkit"
	"tour_portal_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	svc *management.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgInvalidLeadID    = "invalid lead id"
	msgValidationFailed = "validation failed"
)

func New(svc *management.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts the lead routes. create is the middleware chain for
// lead creation, which callers use to attach a rate limiter.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, create ...gin.HandlerFunc) {
	rg.POST("", append(create, h.Create)...)
	rg.GET("/:id", h.GetByID)
	rg.GET("/:id/status", h.GetStatus)
	rg.GET("/:id/rejections", h.ListRejections)
	rg.POST("/:id/decline", h.Decline)
}

// RegisterAdminRoutes mounts operator routes on an admin-only group.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.GET("/stale", h.ListStale)
}

func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	resp, err := h.svc.CreateLead(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, resp)
}

func (h *Handler) GetByID(c *gin.Context) {
	id, ok := parseLeadID(c)
	if !ok {
		return
	}

	lead, err := h.svc.GetByID(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, lead)
}

func (h *Handler) GetStatus(c *gin.Context) {
	id, ok := parseLeadID(c)
	if !ok {
		return
	}

	status, err := h.svc.GetLeadStatus(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, status)
}

func (h *Handler) ListRejections(c *gin.Context) {
	id, ok := parseLeadID(c)
	if !ok {
		return
	}

	list, err := h.svc.ListRejections(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, list)
}

func (h *Handler) Decline(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseLeadID(c)
	if !ok {
		return
	}

	resp, err := h.svc.DeclineLead(c.Request.Context(), id, identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, resp)
}

func (h *Handler) ListStale(c *gin.Context) {
	var req transport.StaleLeadsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	list, err := h.svc.ListStaleLeads(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, list)
}

func parseLeadID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidLeadID, nil)
		return uuid.UUID{}, false
	}
	return id, true
}
