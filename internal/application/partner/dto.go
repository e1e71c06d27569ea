package partner

import (
	"time"

	"github.com/google/uuid"

	"github.com/carelink/backend/internal/domain/partner"
	"github.com/carelink/backend/internal/domain/shared"
)

// RegisterPartnerRequest represents a request to register a partner
type RegisterPartnerRequest struct {
	Name            string                `json:"name" binding:"required,min=1,max=200"`
	Type            string                `json:"type" binding:"required"`
	IntegrationType string                `json:"integration_type" binding:"required"`
	CredentialsRef  string                `json:"credentials_ref"`
	WebhookConfig   *WebhookConfigRequest `json:"webhook_config"`
	SyncConfig      *SyncConfigRequest    `json:"sync_config"`
}

// WebhookConfigRequest carries webhook settings on register or update
type WebhookConfigRequest struct {
	URL         string              `json:"url" binding:"required,url"`
	Events      []string            `json:"events"`
	Secret      string              `json:"secret" binding:"required,min=16"`
	RetryPolicy *RetryPolicyRequest `json:"retry_policy"`
}

// RetryPolicyRequest carries retry tuning; omitted fields fall back to the
// defaults of three attempts with a five second base delay.
type RetryPolicyRequest struct {
	MaxAttempts int    `json:"max_attempts" binding:"omitempty,min=1,max=10"`
	DelayMs     int64  `json:"delay_ms" binding:"omitempty,min=100"`
	Backoff     string `json:"backoff" binding:"omitempty,oneof=linear exponential"`
}

// SyncConfigRequest carries sync settings on register or update. Frequency
// is a duration string such as "5m" or "1h".
type SyncConfigRequest struct {
	Type       string                `json:"type" binding:"required,oneof=pull push bidirectional"`
	Scope      string                `json:"scope" binding:"required,oneof=full incremental realtime"`
	Frequency  string                `json:"frequency"`
	DataFormat string                `json:"data_format" binding:"required,oneof=json xml csv hl7"`
	Endpoint   string                `json:"endpoint" binding:"required,url"`
	Mappings   []FieldMappingRequest `json:"mappings"`
}

// FieldMappingRequest is one declarative mapping rule
type FieldMappingRequest struct {
	SourceField    string            `json:"source_field" binding:"required"`
	TargetField    string            `json:"target_field" binding:"required"`
	Transformation string            `json:"transformation"`
	TransformArgs  map[string]string `json:"transform_args"`
	DefaultValue   *string           `json:"default_value"`
	Required       bool              `json:"required"`
}

// UpdatePartnerRequest represents a partial partner update
type UpdatePartnerRequest struct {
	Name           *string               `json:"name" binding:"omitempty,min=1,max=200"`
	CredentialsRef *string               `json:"credentials_ref"`
	WebhookConfig  *WebhookConfigRequest `json:"webhook_config"`
	SyncConfig     *SyncConfigRequest    `json:"sync_config"`
}

// RegisterServiceRequest represents a request to add a service to a partner
type RegisterServiceRequest struct {
	Code         string               `json:"code" binding:"required,min=1,max=50"`
	Name         string               `json:"name" binding:"required,min=1,max=200"`
	Pricing      partner.Pricing      `json:"pricing" binding:"required"`
	Availability partner.Availability `json:"availability"`
}

// UpdateServicePricingRequest replaces a service's pricing
type UpdateServicePricingRequest struct {
	Pricing partner.Pricing `json:"pricing" binding:"required"`
}

// ListFilter represents partner list filtering options
type ListFilter struct {
	Type     string `form:"type"`
	Active   *bool  `form:"active"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// WebhookConfigResponse is the webhook configuration without its secret
type WebhookConfigResponse struct {
	URL         string              `json:"url"`
	Events      []string            `json:"events"`
	RetryPolicy partner.RetryPolicy `json:"retry_policy"`
}

// PartnerResponse represents a partner in responses. Webhook secrets and
// credential references never leave the service in full.
type PartnerResponse struct {
	ID              uuid.UUID              `json:"id"`
	Name            string                 `json:"name"`
	Type            string                 `json:"type"`
	IntegrationType string                 `json:"integration_type"`
	HasCredentials  bool                   `json:"has_credentials"`
	WebhookConfig   *WebhookConfigResponse `json:"webhook_config,omitempty"`
	SyncConfig      *partner.SyncConfig    `json:"sync_config,omitempty"`
	IsActive        bool                   `json:"is_active"`
	Services        []ServiceResponse      `json:"services,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// ServiceResponse represents a partner service in responses
type ServiceResponse struct {
	ID           uuid.UUID            `json:"id"`
	PartnerID    uuid.UUID            `json:"partner_id"`
	Code         string               `json:"code"`
	Name         string               `json:"name"`
	Pricing      partner.Pricing      `json:"pricing"`
	Availability partner.Availability `json:"availability"`
	IsActive     bool                 `json:"is_active"`
}

// ToPartnerResponse converts a partner aggregate to its response shape
func ToPartnerResponse(p *partner.Partner) PartnerResponse {
	resp := PartnerResponse{
		ID:              p.ID,
		Name:            p.Name,
		Type:            string(p.Type),
		IntegrationType: string(p.IntegrationType),
		HasCredentials:  p.CredentialsRef != "",
		SyncConfig:      p.SyncConfig,
		IsActive:        p.IsActive,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
	if p.WebhookConfig != nil {
		resp.WebhookConfig = &WebhookConfigResponse{
			URL:         p.WebhookConfig.URL,
			Events:      p.WebhookConfig.Events,
			RetryPolicy: p.WebhookConfig.RetryPolicy,
		}
	}
	for i := range p.Services {
		resp.Services = append(resp.Services, ToServiceResponse(&p.Services[i]))
	}
	return resp
}

// ToServiceResponse converts a service entity to its response shape
func ToServiceResponse(s *partner.Service) ServiceResponse {
	return ServiceResponse{
		ID:           s.ID,
		PartnerID:    s.PartnerID,
		Code:         s.Code,
		Name:         s.Name,
		Pricing:      s.Pricing,
		Availability: s.Availability,
		IsActive:     s.IsActive,
	}
}

// PaginatedPartners is a page of partner responses
type PaginatedPartners = shared.Paginated[PartnerResponse]
