// Package provision wraps the backend provisioning service that owns
// the actual game-server processes. The orchestrator only ever asks it
// to tear an allocation down.
package provision

import "context"

// Provisioner deletes backend allocations. Calls may fail; the caller
// logs and aborts the current reclamation attempt without retrying.
type Provisioner interface {
	DeleteAllocation(ctx context.Context, allocationID string) error
}
