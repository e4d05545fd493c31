package ports

import (
	"context"

	"github.com/bft-labs/sensorrelay/internal/domain"
)

// HostClient is the client side of the host receiver contract.
type HostClient interface {
	// PostBatch sends one batch payload and returns the acknowledged batch index.
	PostBatch(ctx context.Context, ep domain.Endpoint, payload []byte) (int, error)

	// PostFile sends a whole file. It returns nil once the host stored it.
	PostFile(ctx context.Context, ep domain.Endpoint, filename string, batchSize int, data []byte) error

	// Ping returns the identity token the host answers with.
	Ping(ctx context.Context, ep domain.Endpoint) (string, error)
}

// EndpointSource exposes the current live host endpoint.
type EndpointSource interface {
	// Endpoint returns the current endpoint and whether one is known.
	Endpoint() (domain.Endpoint, bool)
}
