// Package telemetry records operational events that must never fail the
// request that produced them.
package telemetry

import (
	"context"
	"log"
	"time"

	"github.com/louisbranch/augurrank/internal/predictions/domain"
)

// Emitter records operational telemetry events.
type Emitter struct {
	store domain.TelemetryStore
	clock func() time.Time
}

// NewEmitter creates a new telemetry emitter.
func NewEmitter(store domain.TelemetryStore) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// Emit records a telemetry event. Failures are logged, never returned; the
// emitter is a best-effort observability channel. A nil emitter or store is a
// no-op.
func (e *Emitter) Emit(ctx context.Context, kind, key, detail string) {
	if e == nil || e.store == nil {
		return
	}
	clock := e.clock
	if clock == nil {
		clock = time.Now
	}
	event := domain.TelemetryEvent{
		Timestamp: clock().UTC().UnixMilli(),
		Kind:      kind,
		Key:       key,
		Detail:    detail,
	}
	if err := e.store.AppendTelemetryEvent(ctx, event); err != nil {
		log.Printf("append telemetry event %s/%s: %v", kind, key, err)
	}
}
