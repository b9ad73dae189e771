// Package buffer implements the pull-based inbound event buffer. Inbound
// storefront events accumulate here until the integration layer collects
// them with Poll.
package buffer

import (
	"context"
	"time"

	"github.com/partsbridge/backend/internal/domain/shared"
)

// OverflowPolicy decides what happens when a record arrives at a full buffer
type OverflowPolicy string

const (
	// OverflowBlock makes Put wait until space frees up or the context ends
	OverflowBlock OverflowPolicy = "block"
	// OverflowDropOldest evicts the oldest buffered record to admit the new one
	OverflowDropOldest OverflowPolicy = "drop_oldest"
	// OverflowReject refuses the new record with ErrBufferFull
	OverflowReject OverflowPolicy = "reject"
)

// ErrBufferFull is returned by Put under the reject policy when the buffer
// has no free slot.
var ErrBufferFull = shared.NewDomainError("BUFFER_FULL", "Inbound buffer is full")

// Record is one inbound event held in the buffer
type Record struct {
	ID         string
	Type       string
	Payload    []byte
	ReceivedAt time.Time
}

// EventBuffer is a bounded FIFO of inbound records. Put admits records per
// the overflow policy; Poll is the only blocking read point. Safe for
// concurrent producers and consumers.
//
// Records live in memory only. There is no acknowledgement or replay:
// whatever Poll hands out is gone from the buffer, and unpolled records do
// not survive a restart. Redelivery is the stream listener's job, not ours.
type EventBuffer struct {
	records chan Record
	policy  OverflowPolicy
}

// NewEventBuffer creates a buffer with the given capacity and policy
func NewEventBuffer(capacity int, policy OverflowPolicy) *EventBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &EventBuffer{
		records: make(chan Record, capacity),
		policy:  policy,
	}
}

// Put admits one record. Under block it waits for space; under drop_oldest
// it evicts the head; under reject it returns ErrBufferFull.
func (b *EventBuffer) Put(ctx context.Context, record Record) error {
	switch b.policy {
	case OverflowDropOldest:
		for {
			select {
			case b.records <- record:
				return nil
			default:
			}
			// Full: evict the head and try again. Another producer may win
			// the freed slot, hence the loop.
			select {
			case <-b.records:
			default:
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
	case OverflowReject:
		select {
		case b.records <- record:
			return nil
		default:
			return ErrBufferFull
		}
	default: // block
		select {
		case b.records <- record:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Poll collects up to maxItems buffered records. When the buffer is empty
// it waits up to wait for the first record to arrive, then drains whatever
// else is immediately available without further waiting. An expired wait
// returns an empty slice, not an error. Cancellation never pairs records
// with an error: once anything was gathered Poll returns it with a nil
// error, and only a cancellation before the first record reports ctx.Err().
func (b *EventBuffer) Poll(ctx context.Context, maxItems int, wait time.Duration) ([]Record, error) {
	if maxItems <= 0 {
		return []Record{}, nil
	}

	collected := make([]Record, 0, maxItems)

	select {
	case record := <-b.records:
		collected = append(collected, record)
	default:
		if wait <= 0 {
			return collected, nil
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case record := <-b.records:
			collected = append(collected, record)
		case <-timer.C:
			return collected, nil
		case <-ctx.Done():
			if len(collected) > 0 {
				return collected, nil
			}
			return collected, ctx.Err()
		}
	}

	for len(collected) < maxItems {
		select {
		case record := <-b.records:
			collected = append(collected, record)
		default:
			return collected, nil
		}
	}
	return collected, nil
}

// Len returns the number of buffered records
func (b *EventBuffer) Len() int {
	return len(b.records)
}

// Cap returns the buffer capacity
func (b *EventBuffer) Cap() int {
	return cap(b.records)
}
