// Package ports hands out gateway listen ports.
package ports

import (
	"context"
	"fmt"
)

// DefaultBase is the first port handed out when no gateway exists yet.
const DefaultBase = 19100

// MaxReader reports the highest port currently assigned to any gateway.
type MaxReader interface {
	MaxGatewayPort(ctx context.Context) (port int, ok bool, err error)
}

// Allocator picks the next port as max(assigned)+1, or Base when none is
// assigned. Ports are never reused after their gateway is removed.
type Allocator struct {
	store MaxReader
	base  int
}

func NewAllocator(store MaxReader, base int) *Allocator {
	if base <= 0 {
		base = DefaultBase
	}
	return &Allocator{store: store, base: base}
}

// Allocate returns a port that no existing gateway holds. It does not reserve
// it: callers must insert the gateway row under their own serialization, and
// the store's unique constraint rejects a concurrent duplicate.
func (a *Allocator) Allocate(ctx context.Context) (int, error) {
	highest, ok, err := a.store.MaxGatewayPort(ctx)
	if err != nil {
		return 0, fmt.Errorf("read highest gateway port: %w", err)
	}
	if !ok || highest < a.base {
		return a.base, nil
	}
	if highest >= 65535 {
		return 0, fmt.Errorf("gateway port range exhausted at %d", highest)
	}
	return highest + 1, nil
}
