package discovery

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/venthub/internal/device"
	"github.com/nerrad567/venthub/internal/infrastructure/metrics"
)

// Prober reads a complete device record from one address.
type Prober interface {
	Probe(ctx context.Context, address string) (*device.Device, error)
}

// Store is the subset of the device registry that discovery writes through.
type Store interface {
	Get(ctx context.Context, id string) (*device.Device, error)
	Exists(ctx context.Context, id string) (bool, error)
	Upsert(ctx context.Context, d device.Device) error
	ListAll(ctx context.Context) ([]device.Device, error)
}

// Discovery reconciles the mesh topology with the device registry.
type Discovery struct {
	store    Store
	prober   Prober
	topology Topology
	logger   device.Logger

	onUpdate func(ctx context.Context, d device.Device)
}

// New creates a discovery service.
func New(store Store, prober Prober, topology Topology) *Discovery {
	return &Discovery{
		store:    store,
		prober:   prober,
		topology: topology,
		logger:   device.NoopLogger{},
	}
}

// SetLogger sets the logger for discovery.
func (d *Discovery) SetLogger(logger device.Logger) {
	d.logger = logger
}

// SetOnDeviceUpdated registers a callback invoked after every successful
// upsert from Discover or PollAll.
func (d *Discovery) SetOnDeviceUpdated(fn func(ctx context.Context, d device.Device)) {
	d.onUpdate = fn
}

// Discover probes every reachable address and upserts what answers. It
// returns only the devices that were not in the registry before this run.
// Topology failures yield an empty result; storage failures are returned.
// A record the registry rejects skips that device only.
func (d *Discovery) Discover(ctx context.Context) ([]device.Device, error) {
	addrs, err := d.topology.Addresses(ctx)
	if err != nil {
		d.logger.Warn("topology query failed", "error", err)
		metrics.ObserveDiscovery(false, 0)
		return []device.Device{}, nil
	}
	if len(addrs) == 0 {
		d.logger.Info("no mesh devices found")
		metrics.ObserveDiscovery(true, 0)
		return []device.Device{}, nil
	}
	d.logger.Info("probing mesh addresses", "count", len(addrs))

	added := make([]device.Device, 0)
	seen := make(map[string]bool, len(addrs))
	for _, addr := range addrs {
		if seen[addr] {
			continue
		}
		seen[addr] = true

		if err := ctx.Err(); err != nil {
			return added, err
		}

		probed, err := d.prober.Probe(ctx, addr)
		if err != nil {
			d.logger.Debug("probe failed", "address", addr, "error", err)
			continue
		}

		// Must run before the upsert, which would make every device look known.
		known, err := d.store.Exists(ctx, probed.ID)
		if err != nil {
			return added, err
		}
		if err := d.store.Upsert(ctx, *probed); err != nil {
			if errors.Is(err, device.ErrInvalidDevice) {
				d.logger.Warn("rejected device record", "device_id", probed.ID, "address", addr, "error", err)
				continue
			}
			return added, err
		}
		d.notify(ctx, *probed)

		if known {
			d.logger.Debug("updated known device", "device_id", probed.ID, "address", addr)
			continue
		}
		d.logger.Info("discovered new device", "device_id", probed.ID, "address", addr)
		added = append(added, *probed)
	}

	metrics.ObserveDiscovery(true, len(added))
	return added, nil
}

// PollAll probes every registered device that has an address and upserts
// the result. One device's failure does not stop the others. It returns the
// number of successful polls. Only storage failures end the run early.
func (d *Discovery) PollAll(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { metrics.ObservePollRun(time.Since(start)) }()

	devices, err := d.store.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, known := range devices {
		if !known.Reachable() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return count, err
		}

		probed, err := d.prober.Probe(ctx, known.Address)
		if err != nil {
			metrics.ObservePoll(false)
			d.logger.Debug("poll failed", "device_id", known.ID, "address", known.Address, "error", err)
			continue
		}
		if probed.ID != known.ID {
			d.logger.Warn("address now answers with a different id",
				"address", known.Address, "registered_id", known.ID, "reported_id", probed.ID)
		}
		if err := d.store.Upsert(ctx, *probed); err != nil {
			if errors.Is(err, device.ErrInvalidDevice) {
				metrics.ObservePoll(false)
				d.logger.Warn("rejected device record", "device_id", known.ID, "address", known.Address, "error", err)
				continue
			}
			return count, err
		}
		metrics.ObservePoll(true)
		d.notify(ctx, *probed)
		count++
	}

	d.logger.Debug("poll complete", "polled", count, "known", len(devices))
	return count, nil
}

// notify hands the stored record to the callback so that assignments the
// probe did not carry are included.
func (d *Discovery) notify(ctx context.Context, dev device.Device) {
	if d.onUpdate == nil {
		return
	}
	if stored, err := d.store.Get(ctx, dev.ID); err == nil {
		dev = *stored
	}
	d.onUpdate(ctx, dev)
}
