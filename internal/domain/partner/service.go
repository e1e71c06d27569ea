package partner

import (
	"fmt"
	"time"

	"github.com/carelink/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PricingType selects how a partner service is priced
type PricingType string

const (
	PricingTypeFixed      PricingType = "fixed"
	PricingTypePerItem    PricingType = "per_item"
	PricingTypePercentage PricingType = "percentage"
	PricingTypeTiered     PricingType = "tiered"
)

// IsValid checks if the type is a valid PricingType
func (t PricingType) IsValid() bool {
	switch t {
	case PricingTypeFixed, PricingTypePerItem, PricingTypePercentage, PricingTypeTiered:
		return true
	}
	return false
}

// PriceTier is one band of a tiered price
type PriceTier struct {
	UpToQuantity int             `json:"up_to_quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
}

// Pricing describes how a service is priced. Exactly one field is meaningful
// per pricing type; setting a field belonging to another type is rejected.
type Pricing struct {
	Type       PricingType      `json:"type"`
	BasePrice  *decimal.Decimal `json:"base_price,omitempty"`
	UnitPrice  *decimal.Decimal `json:"unit_price,omitempty"`
	Percentage *decimal.Decimal `json:"percentage,omitempty"`
	Tiers      []PriceTier      `json:"tiers,omitempty"`
}

// Validate enforces that exactly the field authoritative for the pricing
// type is set, and nothing else
func (p *Pricing) Validate() error {
	if !p.Type.IsValid() {
		return shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Unknown pricing type %q", p.Type))
	}

	set := 0
	if p.BasePrice != nil {
		set++
	}
	if p.UnitPrice != nil {
		set++
	}
	if p.Percentage != nil {
		set++
	}
	if len(p.Tiers) > 0 {
		set++
	}
	if set != 1 {
		return shared.NewDomainError("VALIDATION_ERROR", "Pricing must set exactly one price field")
	}

	switch p.Type {
	case PricingTypeFixed:
		if p.BasePrice == nil {
			return shared.NewDomainError("VALIDATION_ERROR", "Fixed pricing requires base_price")
		}
		if p.BasePrice.IsNegative() {
			return shared.NewDomainError("VALIDATION_ERROR", "Base price cannot be negative")
		}
	case PricingTypePerItem:
		if p.UnitPrice == nil {
			return shared.NewDomainError("VALIDATION_ERROR", "Per-item pricing requires unit_price")
		}
		if p.UnitPrice.IsNegative() {
			return shared.NewDomainError("VALIDATION_ERROR", "Unit price cannot be negative")
		}
	case PricingTypePercentage:
		if p.Percentage == nil {
			return shared.NewDomainError("VALIDATION_ERROR", "Percentage pricing requires percentage")
		}
		if p.Percentage.IsNegative() || p.Percentage.GreaterThan(decimal.NewFromInt(100)) {
			return shared.NewDomainError("VALIDATION_ERROR", "Percentage must be between 0 and 100")
		}
	case PricingTypeTiered:
		if len(p.Tiers) == 0 {
			return shared.NewDomainError("VALIDATION_ERROR", "Tiered pricing requires at least one tier")
		}
		prev := 0
		for _, tier := range p.Tiers {
			if tier.UpToQuantity <= prev {
				return shared.NewDomainError("VALIDATION_ERROR", "Price tiers must have strictly increasing quantities")
			}
			if tier.UnitPrice.IsNegative() {
				return shared.NewDomainError("VALIDATION_ERROR", "Tier unit price cannot be negative")
			}
			prev = tier.UpToQuantity
		}
	}
	return nil
}

// Availability describes when a service can be ordered
type Availability struct {
	Days      []string      `json:"days"`
	StartTime string        `json:"start_time"`
	EndTime   string        `json:"end_time"`
	Timezone  string        `json:"timezone"`
	LeadTime  time.Duration `json:"lead_time"`
}

// Validate validates the availability window
func (a *Availability) Validate() error {
	if a.LeadTime < 0 {
		return shared.NewDomainError("VALIDATION_ERROR", "Lead time cannot be negative")
	}
	for _, day := range a.Days {
		switch day {
		case "mon", "tue", "wed", "thu", "fri", "sat", "sun":
		default:
			return shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Unknown availability day %q", day))
		}
	}
	return nil
}

// Service is a billable offering owned by a partner. Orders reference
// services read-only; the service itself never changes as part of an order.
type Service struct {
	shared.BaseEntity
	PartnerID    uuid.UUID
	Code         string
	Name         string
	Pricing      Pricing      `gorm:"serializer:json"`
	Availability Availability `gorm:"serializer:json"`
	IsActive     bool
}

// NewService creates a new partner service
func NewService(partnerID uuid.UUID, code, name string, pricing Pricing, availability Availability) (*Service, error) {
	if partnerID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Service partner ID cannot be empty")
	}
	if code == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Service code cannot be empty")
	}
	if name == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Service name cannot be empty")
	}
	if err := pricing.Validate(); err != nil {
		return nil, err
	}
	if err := availability.Validate(); err != nil {
		return nil, err
	}

	return &Service{
		BaseEntity:   shared.NewBaseEntity(),
		PartnerID:    partnerID,
		Code:         code,
		Name:         name,
		Pricing:      pricing,
		Availability: availability,
		IsActive:     true,
	}, nil
}

// UpdatePricing replaces the pricing after validating it
func (s *Service) UpdatePricing(pricing Pricing) error {
	if err := pricing.Validate(); err != nil {
		return err
	}
	s.Pricing = pricing
	s.UpdatedAt = time.Now()
	return nil
}

// Deactivate deactivates the service
func (s *Service) Deactivate() {
	s.IsActive = false
	s.UpdatedAt = time.Now()
}
