package ports

import (
	"context"

	"github.com/bft-labs/sensorrelay/internal/domain"
)

// SensorSource delivers raw readings for one sensor group.
type SensorSource interface {
	// Name is the sensor prefix used in trial names (e.g. "acc").
	Name() string

	// Start begins capture. Each callback receives one batch of
	// domain.SamplesPerBatch readings. Capture stops when Stop is called or
	// ctx is done.
	Start(ctx context.Context, onBatch func([]domain.Reading)) error

	// Stop ends capture and waits until no further callbacks run.
	Stop()
}
