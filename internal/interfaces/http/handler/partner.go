package handler

import (
	"github.com/gin-gonic/gin"

	apppartner "github.com/carelink/backend/internal/application/partner"
)

// PartnerHandler handles partner registry API endpoints
type PartnerHandler struct {
	BaseHandler
	registry *apppartner.RegistryService
}

// NewPartnerHandler creates a new PartnerHandler
func NewPartnerHandler(registry *apppartner.RegistryService) *PartnerHandler {
	return &PartnerHandler{registry: registry}
}

// RegisterRoutes registers partner routes
func (h *PartnerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	partners := rg.Group("/partners")
	partners.POST("", h.Register)
	partners.GET("", h.List)
	partners.GET("/:id", h.GetByID)
	partners.PATCH("/:id", h.Update)
	partners.POST("/:id/activate", h.Activate)
	partners.POST("/:id/deactivate", h.Deactivate)

	partners.POST("/:id/services", h.RegisterService)
	partners.GET("/:id/services", h.ListServices)

	rg.PUT("/services/:id/pricing", h.UpdateServicePricing)
}

// Register registers a new partner
func (h *PartnerHandler) Register(c *gin.Context) {
	var req apppartner.RegisterPartnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	p, err := h.registry.Register(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, p)
}

// GetByID retrieves a partner by ID
func (h *PartnerHandler) GetByID(c *gin.Context) {
	partnerID, err := parseIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid partner ID format")
		return
	}

	p, err := h.registry.GetByID(c.Request.Context(), partnerID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, p)
}

// List retrieves partners with filtering and pagination
func (h *PartnerHandler) List(c *gin.Context) {
	var filter apppartner.ListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	page, err := h.registry.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Update applies a partial partner update
func (h *PartnerHandler) Update(c *gin.Context) {
	partnerID, err := parseIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid partner ID format")
		return
	}

	var req apppartner.UpdatePartnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	p, err := h.registry.Update(c.Request.Context(), partnerID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, p)
}

// Activate re-activates a partner
func (h *PartnerHandler) Activate(c *gin.Context) {
	partnerID, err := parseIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid partner ID format")
		return
	}

	if err := h.registry.Activate(c.Request.Context(), partnerID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Deactivate deactivates a partner
func (h *PartnerHandler) Deactivate(c *gin.Context) {
	partnerID, err := parseIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid partner ID format")
		return
	}

	if err := h.registry.Deactivate(c.Request.Context(), partnerID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// RegisterService adds a service to a partner's catalog
func (h *PartnerHandler) RegisterService(c *gin.Context) {
	partnerID, err := parseIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid partner ID format")
		return
	}

	var req apppartner.RegisterServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	svc, err := h.registry.RegisterService(c.Request.Context(), partnerID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, svc)
}

// ListServices lists a partner's services
func (h *PartnerHandler) ListServices(c *gin.Context) {
	partnerID, err := parseIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid partner ID format")
		return
	}

	services, err := h.registry.ListServices(c.Request.Context(), partnerID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, services)
}

// UpdateServicePricing replaces a service's pricing
func (h *PartnerHandler) UpdateServicePricing(c *gin.Context) {
	serviceID, err := parseIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid service ID format")
		return
	}

	var req apppartner.UpdateServicePricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	svc, err := h.registry.UpdateServicePricing(c.Request.Context(), serviceID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, svc)
}
