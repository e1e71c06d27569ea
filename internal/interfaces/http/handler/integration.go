package handler

import (
	"io"
	"strconv"

	"github.com/gin-gonic/gin"

	appintegration "github.com/carelink/backend/internal/application/integration"
	"github.com/carelink/backend/internal/infrastructure/webhook"
)

// IntegrationHandler handles inbound webhooks, sync control and delivery
// history API endpoints
type IntegrationHandler struct {
	BaseHandler
	inbound *appintegration.InboundWebhookService
	status  *appintegration.StatusService
}

// NewIntegrationHandler creates a new IntegrationHandler
func NewIntegrationHandler(inbound *appintegration.InboundWebhookService, status *appintegration.StatusService) *IntegrationHandler {
	return &IntegrationHandler{inbound: inbound, status: status}
}

// RegisterRoutes registers integration routes. The inbound webhook route is
// expected to be excluded from bearer authentication; it authenticates by
// payload signature.
func (h *IntegrationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	partners := rg.Group("/partners/:id")
	partners.POST("/webhooks/inbound", h.Inbound)
	partners.POST("/sync", h.TriggerSync)
	partners.GET("/sync/status", h.SyncStatus)
	partners.GET("/deliveries", h.DeliveryHistory)
}

// Inbound processes a status update pushed by a partner
func (h *IntegrationHandler) Inbound(c *gin.Context) {
	partnerID, err := parseIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid partner ID format")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.BadRequest(c, "Failed to read request body")
		return
	}

	signature := c.GetHeader(webhook.SignatureHeader)
	result, err := h.inbound.Process(c.Request.Context(), partnerID, body, signature)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// TriggerSync runs a sync cycle for a partner right now
func (h *IntegrationHandler) TriggerSync(c *gin.Context) {
	partnerID, err := parseIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid partner ID format")
		return
	}

	result, err := h.status.TriggerSync(c.Request.Context(), partnerID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// SyncStatus returns a partner's current sync position
func (h *IntegrationHandler) SyncStatus(c *gin.Context) {
	partnerID, err := parseIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid partner ID format")
		return
	}

	status, err := h.status.SyncStatus(c.Request.Context(), partnerID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, status)
}

// DeliveryHistory returns a partner's recent webhook delivery outcomes
func (h *IntegrationHandler) DeliveryHistory(c *gin.Context) {
	partnerID, err := parseIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid partner ID format")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.BadRequest(c, "Invalid limit")
			return
		}
	}

	history, err := h.status.DeliveryHistory(c.Request.Context(), partnerID, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, history)
}
