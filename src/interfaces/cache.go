package interfaces

import (
	"context"
	"time"
)

// -----------------------------------------------------------------------------
// ICache defines the contract for the reference-data cache backends.
// -----------------------------------------------------------------------------

type ICache interface {

	// -----------------------------------------------------------------------------

	// Initialize prepares the backend (schema, connection check).
	Initialize(ctx context.Context) error

	// -----------------------------------------------------------------------------

	// Get returns the value stored under key. found is false on a miss or an expired entry.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// -----------------------------------------------------------------------------

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// -----------------------------------------------------------------------------

	// CleanupExpired removes entries whose ttl has elapsed.
	CleanupExpired(ctx context.Context) error

	// -----------------------------------------------------------------------------

	// Close the backend connection
	Close() error
}
