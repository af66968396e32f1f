// Package source provides the queue consumers feeding pointers into the
// intake router: SQS, MQTT and Redis streams.
package source

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/ibs-source/dispatch/router/golang/internal/message"
)

// Intake accepts decoded pointers for dispatch. Implemented by the router.
type Intake interface {
	Route(ptr *message.Pointer, cb message.Callback) bool
}

// Source is a queue consumer. Run blocks until the context is cancelled or
// the consumer fails; Close releases the underlying connection.
type Source interface {
	Name() string
	Run(ctx context.Context) error
	Close() error
}

// parsePointer decodes and validates a wire pointer. A non-nil error means
// the payload can never become routable and must be acked away.
func parsePointer(payload []byte) (*message.Pointer, error) {
	var ptr message.Pointer
	if err := json.Unmarshal(payload, &ptr); err != nil {
		return nil, fmt.Errorf("failed to parse pointer: %w", err)
	}

	if ptr.ID == "" {
		return nil, fmt.Errorf("pointer missing required field: id")
	}
	if ptr.PoolCode == "" {
		return nil, fmt.Errorf("pointer %s missing required field: poolCode", ptr.ID)
	}
	if ptr.MediationTarget == "" {
		return nil, fmt.Errorf("pointer %s missing required field: mediationTarget", ptr.ID)
	}
	if ptr.MediationType == "" {
		ptr.MediationType = message.MediationTypeHTTP
	}

	return &ptr, nil
}

// newBatchID tags every pointer routed from the same fetch.
func newBatchID() string {
	return uuid.NewString()
}
