package integration

import (
	"context"

	"github.com/carelink/backend/internal/domain/partner"
)

// RecordBatch is one page of records fetched from a partner, with the
// cursor the next incremental cycle should resume from.
type RecordBatch struct {
	Records    []Record
	NextCursor string
}

// PartnerGateway is the outbound port to a partner's own system. One
// implementation serves all partners, selecting endpoint, credentials and
// wire format from the partner's configuration per call.
type PartnerGateway interface {
	// FetchRecords pulls records from the partner. An empty cursor means a
	// full window; otherwise only records after the cursor are returned.
	FetchRecords(ctx context.Context, p *partner.Partner, cursor string) (*RecordBatch, error)

	// PushRecords sends locally originated records to the partner, encoded
	// in the partner's configured data format.
	PushRecords(ctx context.Context, p *partner.Partner, records []Record) error
}
