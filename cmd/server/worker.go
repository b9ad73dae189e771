package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	catalogapp "github.com/partsbridge/backend/internal/application/catalog"
	inventoryapp "github.com/partsbridge/backend/internal/application/inventory"
	"github.com/partsbridge/backend/internal/domain/shared"
	"github.com/partsbridge/backend/internal/infrastructure/buffer"
)

// Inbound record types the worker understands. Anything else is logged
// and dropped.
const (
	recordAvailabilityRequested = "inventory.availability.requested"
	recordRefreshRequested      = "inventory.refresh.requested"
	recordMappingUpserted       = "catalog.mapping.upserted"
)

const (
	topicAvailabilityResolved = "inventory.availability.resolved"

	workerBatchSize = 16
	workerPollWait  = 2 * time.Second
)

type availabilityRequest struct {
	RequestID string   `json:"request_id"`
	SKUs      []string `json:"skus"`
}

type availabilityResponse struct {
	RequestID string                          `json:"request_id"`
	Items     []*inventoryapp.AvailabilityDTO `json:"items"`
	Unmapped  []string                        `json:"unmapped,omitempty"`
}

type mappingUpsert struct {
	Brand    string `json:"brand"`
	PartCode string `json:"part_code"`
	SKU      string `json:"sku"`
}

// inboundWorker drains the buffer and routes records to the application
// services. Refresh happens before availability reads so responses reflect
// quantities no staler than the TTL.
type inboundWorker struct {
	buffer       *buffer.EventBuffer
	scope        inventoryapp.TransactionScope
	refresh      *inventoryapp.RefreshService
	availability *inventoryapp.AvailabilityService
	mappings     *catalogapp.MappingService
	logger       *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newInboundWorker(
	buf *buffer.EventBuffer,
	scope inventoryapp.TransactionScope,
	refresh *inventoryapp.RefreshService,
	availability *inventoryapp.AvailabilityService,
	mappings *catalogapp.MappingService,
	logger *zap.Logger,
) *inboundWorker {
	return &inboundWorker{
		buffer:       buf,
		scope:        scope,
		refresh:      refresh,
		availability: availability,
		mappings:     mappings,
		logger:       logger,
	}
}

func (w *inboundWorker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.run(ctx)
}

func (w *inboundWorker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *inboundWorker) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		records, err := w.buffer.Poll(ctx, workerBatchSize, workerPollWait)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			w.logger.Warn("buffer poll failed", zap.Error(err))
			continue
		}
		for i := range records {
			if err := w.handle(ctx, &records[i]); err != nil {
				w.logger.Error("inbound record failed",
					zap.String("record_id", records[i].ID),
					zap.String("record_type", records[i].Type),
					zap.Error(err),
				)
			}
		}
	}
}

func (w *inboundWorker) handle(ctx context.Context, record *buffer.Record) error {
	switch record.Type {
	case recordAvailabilityRequested:
		return w.handleAvailabilityRequest(ctx, record)
	case recordRefreshRequested:
		return w.handleRefreshRequest(ctx, record)
	case recordMappingUpserted:
		return w.handleMappingUpsert(ctx, record)
	default:
		w.logger.Warn("unknown inbound record type dropped",
			zap.String("record_id", record.ID),
			zap.String("record_type", record.Type),
		)
		return nil
	}
}

// handleAvailabilityRequest refreshes the requested SKUs, reads their
// consolidated availability and appends the response to the outbox. The
// dispatcher publishes it back to the storefront on its own cadence.
func (w *inboundWorker) handleAvailabilityRequest(ctx context.Context, record *buffer.Record) error {
	var req availabilityRequest
	if err := json.Unmarshal(record.Payload, &req); err != nil {
		return fmt.Errorf("decode availability request: %w", err)
	}
	if len(req.SKUs) == 0 {
		return nil
	}

	result, err := w.refresh.RefreshSKUs(ctx, req.SKUs)
	if err != nil {
		// Stale data beats no answer; keep serving what the store holds
		w.logger.Warn("refresh failed, serving stored quantities",
			zap.String("request_id", req.RequestID),
			zap.Error(err),
		)
		result = &inventoryapp.RefreshResult{}
	}

	resp := availabilityResponse{
		RequestID: req.RequestID,
		Items:     make([]*inventoryapp.AvailabilityDTO, 0, len(req.SKUs)),
		Unmapped:  result.Unmapped,
	}
	for _, sku := range req.SKUs {
		dto, err := w.availability.GetBySKU(ctx, sku)
		if err != nil {
			return fmt.Errorf("read availability for %s: %w", sku, err)
		}
		resp.Items = append(resp.Items, dto)
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode availability response: %w", err)
	}

	partitionKey := req.RequestID
	if partitionKey == "" {
		partitionKey = record.ID
	}
	return w.scope.Execute(ctx, func(repos inventoryapp.TransactionalRepositories) error {
		return repos.OutboxRepo().Append(ctx,
			shared.NewOutboxEvent(topicAvailabilityResolved, partitionKey, payload))
	})
}

func (w *inboundWorker) handleRefreshRequest(ctx context.Context, record *buffer.Record) error {
	var req availabilityRequest
	if err := json.Unmarshal(record.Payload, &req); err != nil {
		return fmt.Errorf("decode refresh request: %w", err)
	}
	if len(req.SKUs) == 0 {
		return nil
	}

	result, err := w.refresh.RefreshSKUs(ctx, req.SKUs)
	if err != nil {
		return err
	}
	w.logger.Info("refresh completed",
		zap.Int("refreshed", len(result.Refreshed)),
		zap.Int("fresh", len(result.Fresh)),
		zap.Int("unmapped", len(result.Unmapped)),
	)
	return nil
}

func (w *inboundWorker) handleMappingUpsert(ctx context.Context, record *buffer.Record) error {
	var req mappingUpsert
	if err := json.Unmarshal(record.Payload, &req); err != nil {
		return fmt.Errorf("decode mapping upsert: %w", err)
	}
	_, err := w.mappings.CreateMapping(ctx, req.Brand, req.PartCode, req.SKU)
	return err
}
