package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/venthub/internal/infrastructure/config"
)

// ErrNotAttached is returned when the border router reports no active mesh.
var ErrNotAttached = errors.New("discovery: mesh network not attached")

// Topology returns the addresses currently reachable on the mesh. It is a
// read-only view of the control plane.
type Topology interface {
	Addresses(ctx context.Context) ([]string, error)
}

// TopologyError is a failed control-plane query. Discovery logs it and
// treats it as "no addresses found".
type TopologyError struct {
	Source string
	Err    error
}

func (e *TopologyError) Error() string {
	return fmt.Sprintf("topology %s: %v", e.Source, e.Err)
}

func (e *TopologyError) Unwrap() error { return e.Err }

// NewTopology builds the topology source selected by cfg.Backend.
func NewTopology(cfg config.DiscoveryConfig) (Topology, error) {
	timeout := time.Duration(cfg.Timeout) * time.Second
	switch cfg.Backend {
	case config.DiscoveryBackendREST:
		return NewOTBRSource(cfg.OTBRURL, cfg.MeshLocalPrefix, timeout), nil
	case config.DiscoveryBackendOTCtl:
		return NewOTCtlSource(cfg.OTCtlCommand, timeout)
	default:
		return nil, fmt.Errorf("unknown discovery backend %q", cfg.Backend)
	}
}
