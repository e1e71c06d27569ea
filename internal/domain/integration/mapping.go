package integration

import (
	"fmt"

	"github.com/carelink/backend/internal/domain/partner"
)

// Record is one flat data record exchanged with a partner, keyed by field
// name after decoding from the partner's wire format.
type Record map[string]string

// MappingError marks a record that could not be transformed. It aborts that
// record only; sibling records in the same cycle continue.
type MappingError struct {
	Field  string
	Reason string
}

// Error implements the error interface
func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping failed for field %q: %s", e.Field, e.Reason)
}

// NewMappingError creates a new MappingError
func NewMappingError(field, reason string) *MappingError {
	return &MappingError{Field: field, Reason: reason}
}

// Transformer applies configured field mappings between partner and internal
// record shapes. Implementations must be deterministic and idempotent:
// identical input and mappings always yield identical output, so a retried
// record is safe to transform again.
type Transformer interface {
	Transform(record Record, mappings []partner.FieldMapping) (Record, error)
}
