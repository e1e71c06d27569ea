package partner

import (
	"fmt"
	"time"

	"github.com/carelink/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// PartnerType classifies the external organization
type PartnerType string

const (
	PartnerTypeLab        PartnerType = "lab"
	PartnerTypePharmacy   PartnerType = "pharmacy"
	PartnerTypeInsurance  PartnerType = "insurance"
	PartnerTypeEquipment  PartnerType = "equipment"
	PartnerTypeSoftware   PartnerType = "software"
	PartnerTypeConsultant PartnerType = "consultant"
	PartnerTypeOther      PartnerType = "other"
)

// IsValid checks if the type is a valid PartnerType
func (t PartnerType) IsValid() bool {
	switch t {
	case PartnerTypeLab, PartnerTypePharmacy, PartnerTypeInsurance,
		PartnerTypeEquipment, PartnerTypeSoftware, PartnerTypeConsultant, PartnerTypeOther:
		return true
	}
	return false
}

// IntegrationType is the channel a partner is integrated through
type IntegrationType string

const (
	IntegrationTypeAPI     IntegrationType = "api"
	IntegrationTypeFile    IntegrationType = "file"
	IntegrationTypeManual  IntegrationType = "manual"
	IntegrationTypeWebhook IntegrationType = "webhook"
)

// IsValid checks if the type is a valid IntegrationType
func (t IntegrationType) IsValid() bool {
	switch t {
	case IntegrationTypeAPI, IntegrationTypeFile, IntegrationTypeManual, IntegrationTypeWebhook:
		return true
	}
	return false
}

// BackoffPolicy governs delay growth between delivery retries
type BackoffPolicy string

const (
	BackoffLinear      BackoffPolicy = "linear"
	BackoffExponential BackoffPolicy = "exponential"
)

// IsValid checks if the policy is a valid BackoffPolicy
func (p BackoffPolicy) IsValid() bool {
	return p == BackoffLinear || p == BackoffExponential
}

// Default retry policy values
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 5000 * time.Millisecond
)

// RetryPolicy describes how failed webhook deliveries are retried
type RetryPolicy struct {
	// MaxAttempts is the total number of delivery attempts
	MaxAttempts int `json:"max_attempts"`
	// Delay is the base delay between attempts
	Delay time.Duration `json:"delay"`
	// Backoff selects how the delay grows per attempt
	Backoff BackoffPolicy `json:"backoff"`
}

// DefaultRetryPolicy returns the default retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultRetryDelay,
		Backoff:     BackoffExponential,
	}
}

// Validate validates the retry policy
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts <= 0 {
		return shared.NewDomainError("VALIDATION_ERROR", "Retry max attempts must be positive")
	}
	if p.Delay <= 0 {
		return shared.NewDomainError("VALIDATION_ERROR", "Retry delay must be positive")
	}
	if !p.Backoff.IsValid() {
		return shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Unknown backoff policy %q", p.Backoff))
	}
	return nil
}

// DelayFor returns the delay before attempt n (1-indexed, so the delay
// scheduled after attempt n fails)
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	switch p.Backoff {
	case BackoffLinear:
		return p.Delay * time.Duration(attempt)
	default:
		return p.Delay * time.Duration(1<<(attempt-1))
	}
}

// WebhookConfig configures outbound event delivery for a partner
type WebhookConfig struct {
	URL         string      `json:"url"`
	Events      []string    `json:"events"`
	Secret      string      `json:"secret"`
	RetryPolicy RetryPolicy `json:"retry_policy"`
}

// Validate validates the webhook configuration
func (c *WebhookConfig) Validate() error {
	if c.URL == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Webhook URL cannot be empty")
	}
	if c.Secret == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Webhook secret cannot be empty")
	}
	return c.RetryPolicy.Validate()
}

// SubscribesTo returns true if the config subscribes to the given event type.
// An empty event list subscribes to everything.
func (c *WebhookConfig) SubscribesTo(eventType string) bool {
	if len(c.Events) == 0 {
		return true
	}
	for _, e := range c.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// SyncType is the direction of a partner's data exchange
type SyncType string

const (
	SyncTypePull          SyncType = "pull"
	SyncTypePush          SyncType = "push"
	SyncTypeBidirectional SyncType = "bidirectional"
)

// IsValid checks if the type is a valid SyncType
func (t SyncType) IsValid() bool {
	switch t {
	case SyncTypePull, SyncTypePush, SyncTypeBidirectional:
		return true
	}
	return false
}

// SyncScope selects how much data each cycle covers
type SyncScope string

const (
	SyncScopeFull        SyncScope = "full"
	SyncScopeIncremental SyncScope = "incremental"
	SyncScopeRealtime    SyncScope = "realtime"
)

// IsValid checks if the scope is a valid SyncScope
func (s SyncScope) IsValid() bool {
	switch s {
	case SyncScopeFull, SyncScopeIncremental, SyncScopeRealtime:
		return true
	}
	return false
}

// DataFormat is the wire format a partner exchanges records in
type DataFormat string

const (
	DataFormatJSON DataFormat = "json"
	DataFormatXML  DataFormat = "xml"
	DataFormatCSV  DataFormat = "csv"
	DataFormatHL7  DataFormat = "hl7"
)

// IsValid checks if the format is a valid DataFormat
func (f DataFormat) IsValid() bool {
	switch f {
	case DataFormatJSON, DataFormatXML, DataFormatCSV, DataFormatHL7:
		return true
	}
	return false
}

// MinSyncFrequency is the floor for timer-driven sync
const MinSyncFrequency = time.Minute

// SyncConfig configures scheduled synchronization for a partner
type SyncConfig struct {
	Type       SyncType       `json:"type"`
	Scope      SyncScope      `json:"scope"`
	Frequency  time.Duration  `json:"frequency"`
	DataFormat DataFormat     `json:"data_format"`
	Endpoint   string         `json:"endpoint"`
	Mappings   []FieldMapping `json:"mappings"`
}

// Validate validates the sync configuration
func (c *SyncConfig) Validate() error {
	if !c.Type.IsValid() {
		return shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Unknown sync type %q", c.Type))
	}
	if !c.Scope.IsValid() {
		return shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Unknown sync scope %q", c.Scope))
	}
	if !c.DataFormat.IsValid() {
		return shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Unknown data format %q", c.DataFormat))
	}
	if c.Scope != SyncScopeRealtime && c.Frequency < MinSyncFrequency {
		return shared.NewDomainError("VALIDATION_ERROR", "Sync frequency must be at least one minute")
	}
	for i := range c.Mappings {
		if err := c.Mappings[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// FieldMapping is a declarative rule translating one source field into one
// target field, with an optional transformation and default. Pure
// configuration; it carries no mutable state.
type FieldMapping struct {
	SourceField    string            `json:"source_field"`
	TargetField    string            `json:"target_field"`
	Transformation string            `json:"transformation,omitempty"`
	TransformArgs  map[string]string `json:"transform_args,omitempty"`
	DefaultValue   *string           `json:"default_value,omitempty"`
	Required       bool              `json:"required"`
}

// Validate validates the field mapping
func (m *FieldMapping) Validate() error {
	if m.SourceField == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Mapping source field cannot be empty")
	}
	if m.TargetField == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Mapping target field cannot be empty")
	}
	return nil
}

// Partner represents an external organization integrated via API, webhook,
// file, or manual channel. It is the aggregate root of the partner registry.
type Partner struct {
	shared.BaseAggregateRoot
	Name            string
	Type            PartnerType
	IntegrationType IntegrationType
	// CredentialsRef is an opaque reference into the secrets store; the
	// engine never holds raw partner credentials
	CredentialsRef string
	WebhookConfig  *WebhookConfig `gorm:"serializer:json"`
	SyncConfig     *SyncConfig    `gorm:"serializer:json"`
	IsActive       bool
	Services       []Service `gorm:"foreignKey:PartnerID"`
}

// NewPartner creates a new partner and validates the registry invariants
func NewPartner(name string, pType PartnerType, iType IntegrationType) (*Partner, error) {
	if name == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Partner name cannot be empty")
	}
	if !pType.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Unknown partner type %q", pType))
	}
	if !iType.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Unknown integration type %q", iType))
	}

	p := &Partner{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		Type:              pType,
		IntegrationType:   iType,
		IsActive:          true,
		Services:          make([]Service, 0),
	}

	p.AddDomainEvent(NewPartnerRegisteredEvent(p))

	return p, nil
}

// Validate enforces the cross-field invariants of the registry:
// webhook config is required iff the integration type is webhook, and a
// credentials reference is required iff the integration type is api.
func (p *Partner) Validate() error {
	switch p.IntegrationType {
	case IntegrationTypeWebhook:
		if p.WebhookConfig == nil {
			return shared.NewDomainError("VALIDATION_ERROR", "Webhook partners require a webhook config")
		}
	default:
		if p.WebhookConfig != nil {
			return shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Webhook config is not allowed for %s partners", p.IntegrationType))
		}
	}

	switch p.IntegrationType {
	case IntegrationTypeAPI:
		if p.CredentialsRef == "" {
			return shared.NewDomainError("VALIDATION_ERROR", "API partners require a credentials reference")
		}
	default:
		if p.CredentialsRef != "" {
			return shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Credentials are not allowed for %s partners", p.IntegrationType))
		}
	}

	if p.WebhookConfig != nil {
		if err := p.WebhookConfig.Validate(); err != nil {
			return err
		}
	}
	if p.SyncConfig != nil {
		if err := p.SyncConfig.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SetWebhookConfig sets the webhook configuration
func (p *Partner) SetWebhookConfig(cfg *WebhookConfig) error {
	if cfg != nil {
		if cfg.RetryPolicy == (RetryPolicy{}) {
			cfg.RetryPolicy = DefaultRetryPolicy()
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	p.WebhookConfig = cfg
	p.UpdatedAt = time.Now()
	return nil
}

// SetSyncConfig sets the sync configuration. The change applies to future
// sync cycles only; a running cycle keeps the config it started with.
func (p *Partner) SetSyncConfig(cfg *SyncConfig) error {
	if cfg != nil {
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	p.SyncConfig = cfg
	p.UpdatedAt = time.Now()
	return nil
}

// RequiresSync returns true if a sync job should exist for this partner
func (p *Partner) RequiresSync() bool {
	return p.IsActive && p.SyncConfig != nil
}

// Activate activates the partner
func (p *Partner) Activate() {
	p.IsActive = true
	p.UpdatedAt = time.Now()
}

// Deactivate deactivates the partner; dispatch and sync skip inactive partners
func (p *Partner) Deactivate() {
	p.IsActive = false
	p.UpdatedAt = time.Now()
}

// GetService returns an owned service by ID
func (p *Partner) GetService(serviceID uuid.UUID) *Service {
	for idx := range p.Services {
		if p.Services[idx].ID == serviceID {
			return &p.Services[idx]
		}
	}
	return nil
}
