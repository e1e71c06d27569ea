package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/carelink/backend/internal/domain/integration"
	"github.com/carelink/backend/internal/domain/partner"
)

// NextCursorHeader carries the partner's resume cursor on fetch responses
const NextCursorHeader = "X-Next-Cursor"

// DefaultMaxResponseBytes caps how much of a partner response is read
const DefaultMaxResponseBytes = 16 << 20 // 16 MiB

// CredentialResolver exchanges an opaque credentials reference for a
// bearer token. Raw secrets never live on the partner aggregate.
type CredentialResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Config holds gateway tuning
type Config struct {
	Timeout          time.Duration
	MaxResponseBytes int64
}

// HTTPGateway talks to partner systems over HTTP. One instance serves
// every partner; endpoint, credentials and wire format come from the
// partner's sync configuration per call. Any transport or decode failure
// is wrapped in ErrSyncCycle so the caller leaves the cursor alone.
type HTTPGateway struct {
	client      *http.Client
	credentials CredentialResolver
	maxBytes    int64
	logger      *zap.Logger
}

// NewHTTPGateway creates an HTTP partner gateway
func NewHTTPGateway(cfg Config, credentials CredentialResolver, logger *zap.Logger) *HTTPGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxResponseBytes
	}
	return &HTTPGateway{
		client:      &http.Client{Timeout: timeout},
		credentials: credentials,
		maxBytes:    maxBytes,
		logger:      logger,
	}
}

// FetchRecords pulls one batch of records from the partner. An empty
// cursor requests the full window; otherwise the partner returns records
// after the cursor together with the next resume position.
func (g *HTTPGateway) FetchRecords(ctx context.Context, p *partner.Partner, cursor string) (*integration.RecordBatch, error) {
	cfg, err := syncConfigOf(p)
	if err != nil {
		return nil, err
	}
	codec, err := CodecFor(cfg.DataFormat)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrSyncCycle, err)
	}

	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid endpoint: %v", integration.ErrSyncCycle, err)
	}
	if cursor != "" {
		q := endpoint.Query()
		q.Set("cursor", cursor)
		endpoint.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrSyncCycle, err)
	}
	req.Header.Set("Accept", codec.ContentType())
	if err := g.authorize(ctx, req, p); err != nil {
		return nil, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch: %v", integration.ErrSyncCycle, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: fetch returned http status %d", integration.ErrSyncCycle, resp.StatusCode)
	}

	records, err := codec.Decode(io.LimitReader(resp.Body, g.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrSyncCycle, err)
	}

	g.logger.Debug("fetched partner records",
		zap.String("partner_id", p.ID.String()),
		zap.Int("records", len(records)),
		zap.String("cursor", cursor),
	)

	return &integration.RecordBatch{
		Records:    records,
		NextCursor: resp.Header.Get(NextCursorHeader),
	}, nil
}

// PushRecords sends locally originated records to the partner in its
// configured wire format.
func (g *HTTPGateway) PushRecords(ctx context.Context, p *partner.Partner, records []integration.Record) error {
	if len(records) == 0 {
		return nil
	}
	cfg, err := syncConfigOf(p)
	if err != nil {
		return err
	}
	codec, err := CodecFor(cfg.DataFormat)
	if err != nil {
		return fmt.Errorf("%w: %v", integration.ErrSyncCycle, err)
	}

	var body bytes.Buffer
	if err := codec.Encode(&body, records); err != nil {
		return fmt.Errorf("%w: encode: %v", integration.ErrSyncCycle, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint, &body)
	if err != nil {
		return fmt.Errorf("%w: %v", integration.ErrSyncCycle, err)
	}
	req.Header.Set("Content-Type", codec.ContentType())
	if err := g.authorize(ctx, req, p); err != nil {
		return err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: push: %v", integration.ErrSyncCycle, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: push returned http status %d", integration.ErrSyncCycle, resp.StatusCode)
	}

	g.logger.Debug("pushed partner records",
		zap.String("partner_id", p.ID.String()),
		zap.Int("records", len(records)),
	)
	return nil
}

func (g *HTTPGateway) authorize(ctx context.Context, req *http.Request, p *partner.Partner) error {
	if g.credentials == nil || p.CredentialsRef == "" {
		return nil
	}
	token, err := g.credentials.Resolve(ctx, p.CredentialsRef)
	if err != nil {
		return fmt.Errorf("%w: resolve credentials: %v", integration.ErrSyncCycle, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func syncConfigOf(p *partner.Partner) (*partner.SyncConfig, error) {
	if p.SyncConfig == nil {
		return nil, fmt.Errorf("%w: partner has no sync configuration", integration.ErrSyncCycle)
	}
	return p.SyncConfig, nil
}

var _ integration.PartnerGateway = (*HTTPGateway)(nil)
