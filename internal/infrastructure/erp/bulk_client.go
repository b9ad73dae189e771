// Package erp implements the HTTP client for the upstream ERP's bulk
// stock endpoint.
package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/partsbridge/backend/internal/domain/inventory"
	"github.com/partsbridge/backend/internal/domain/shared"
	"github.com/partsbridge/backend/internal/infrastructure/config"
)

// stockRequest is the bulk query body
type stockRequest struct {
	PartCodes []string `json:"part_codes"`
}

// stockResponse is the ERP's bulk response
type stockResponse struct {
	Items []stockItem `json:"items"`
}

// stockItem is one reported quantity line
type stockItem struct {
	PartCode  string          `json:"part_code"`
	Warehouse string          `json:"warehouse"`
	Quantity  decimal.Decimal `json:"quantity"`
	AsOf      time.Time       `json:"as_of"`
}

// FetchMetrics records bulk fetch latency per outcome ("success" or
// "error"). A nil FetchMetrics disables recording.
type FetchMetrics interface {
	RecordERPFetch(ctx context.Context, elapsed time.Duration, outcome string)
}

// HTTPBulkStockClient implements BulkStockClient against the ERP's JSON
// endpoint. Every failure mode, from dial errors to malformed bodies, is
// wrapped in shared.ErrUpstreamUnavailable so callers need not distinguish
// transport details.
type HTTPBulkStockClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    FetchMetrics
}

// NewHTTPBulkStockClient creates a client with the configured timeouts.
// The connect timeout bounds dialing; the read timeout bounds the whole
// request including body.
func NewHTTPBulkStockClient(cfg *config.ERPConfig, logger *zap.Logger) *HTTPBulkStockClient {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	return &HTTPBulkStockClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.ReadTimeout,
			Transport: &http.Transport{
				DialContext:         dialer.DialContext,
				TLSHandshakeTimeout: cfg.ConnectTimeout,
			},
		},
		logger: logger,
	}
}

// SetMetrics attaches fetch latency recording
func (c *HTTPBulkStockClient) SetMetrics(m FetchMetrics) {
	c.metrics = m
}

// observe records one round trip when metrics are attached
func (c *HTTPBulkStockClient) observe(ctx context.Context, start time.Time, outcome string) {
	if c.metrics != nil {
		c.metrics.RecordERPFetch(ctx, time.Since(start), outcome)
	}
}

// FetchStock queries quantities for a batch of part codes in one round trip
func (c *HTTPBulkStockClient) FetchStock(ctx context.Context, partCodes []string) ([]inventory.RemoteStockLine, error) {
	if len(partCodes) == 0 {
		return []inventory.RemoteStockLine{}, nil
	}

	body, err := json.Marshal(stockRequest{PartCodes: partCodes})
	if err != nil {
		return nil, fmt.Errorf("marshal stock request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/stock/bulk", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build stock request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(ctx, start, "error")
		c.logger.Warn("erp stock request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", shared.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.observe(ctx, start, "error")
		c.logger.Warn("erp stock request rejected",
			zap.Int("status", resp.StatusCode),
			zap.Int("part_codes", len(partCodes)))
		return nil, fmt.Errorf("%w: unexpected status %d", shared.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var parsed stockResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.observe(ctx, start, "error")
		return nil, fmt.Errorf("%w: malformed response: %v", shared.ErrUpstreamUnavailable, err)
	}
	c.observe(ctx, start, "success")

	lines := make([]inventory.RemoteStockLine, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		lines = append(lines, inventory.RemoteStockLine{
			PartCode:     item.PartCode,
			WarehouseRef: item.Warehouse,
			Quantity:     item.Quantity,
			AsOf:         item.AsOf,
		})
	}

	c.logger.Debug("erp stock fetched",
		zap.Int("part_codes", len(partCodes)),
		zap.Int("lines", len(lines)))
	return lines, nil
}

// Ensure HTTPBulkStockClient implements BulkStockClient
var _ inventory.BulkStockClient = (*HTTPBulkStockClient)(nil)
