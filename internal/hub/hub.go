package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/venthub/internal/automation"
	"github.com/nerrad567/venthub/internal/device"
	"github.com/nerrad567/venthub/internal/discovery"
	"github.com/nerrad567/venthub/internal/group"
	"github.com/nerrad567/venthub/internal/infrastructure/mqtt"
	"github.com/nerrad567/venthub/internal/protocol"
)

// ErrNoAddress is returned for single-device operations on a device whose
// mesh address is unknown.
var ErrNoAddress = errors.New("hub: device has no address")

// Publisher pushes state to the integration layer. *mqtt.Client satisfies it.
type Publisher interface {
	PublishState(deviceID string, state any) error
	PublishEvent(name string, payload any) error
	PublishAck(commandID string, ack any) error
	SubscribeCommands(handler mqtt.MessageHandler) error
}

// Telemetry records history. *influxdb.Client satisfies it.
type Telemetry interface {
	WriteVentTelemetry(siteID string, d device.Device)
	WriteGroupCommand(siteID, targetType, target string, angle, requested, updated int)
}

// Config holds the per-site runtime settings.
type Config struct {
	SiteID   string
	SiteName string

	// PollInterval and DiscoveryInterval disable their loop when zero.
	PollInterval      time.Duration
	DiscoveryInterval time.Duration

	// TickInterval is the scheduler period; zero keeps its default.
	TickInterval time.Duration

	// SchedulerDisabled keeps the rule loop from starting. Rules can still
	// be managed.
	SchedulerDisabled bool

	// GroupConcurrency caps in-flight requests per group command; zero
	// means unbounded.
	GroupConcurrency int

	// Location is the time zone schedule rules are written in.
	Location *time.Location
}

// Hub bundles the services of one site: registry, protocol client,
// discovery, group manager and scheduler.
//
// Thread Safety: all methods are safe for concurrent use.
type Hub struct {
	cfg       Config
	registry  *device.Registry
	client    *protocol.Client
	discovery *discovery.Discovery
	groups    *group.Manager
	scheduler *automation.Scheduler

	publisher Publisher
	telemetry Telemetry
	logger    device.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New assembles a hub from its registry, protocol client and topology source.
func New(cfg Config, registry *device.Registry, client *protocol.Client, topology discovery.Topology) *Hub {
	h := &Hub{
		cfg:      cfg,
		registry: registry,
		client:   client,
		logger:   device.NoopLogger{},
	}

	h.discovery = discovery.New(registry, client, topology)
	h.discovery.SetOnDeviceUpdated(h.deviceUpdated)

	h.groups = group.NewManager(registry, client, cfg.GroupConcurrency)
	h.groups.SetOnDeviceUpdated(h.deviceUpdated)

	h.scheduler = automation.NewScheduler(scheduledGroups{h})
	h.scheduler.SetTickInterval(cfg.TickInterval)
	h.scheduler.SetLocation(cfg.Location)

	return h
}

// SetLogger sets the logger for the hub and its services.
func (h *Hub) SetLogger(logger device.Logger) {
	h.logger = logger
	h.discovery.SetLogger(logger)
	h.groups.SetLogger(logger)
	h.scheduler.SetLogger(logger)
}

// SetPublisher enables MQTT state publishing and command handling.
// It must be called before Start.
func (h *Hub) SetPublisher(p Publisher) { h.publisher = p }

// SetTelemetry enables InfluxDB history writes.
func (h *Hub) SetTelemetry(t Telemetry) { h.telemetry = t }

// ID returns the site identifier.
func (h *Hub) ID() string { return h.cfg.SiteID }

// Name returns the display name of the site.
func (h *Hub) Name() string { return h.cfg.SiteName }

// Registry returns the device registry.
func (h *Hub) Registry() *device.Registry { return h.registry }

// Groups returns the group manager.
func (h *Hub) Groups() *group.Manager { return h.groups }

// Scheduler returns the rule scheduler.
func (h *Hub) Scheduler() *automation.Scheduler { return h.scheduler }

// Start launches the poll, discovery and scheduler loops and, with a
// publisher set, subscribes to group commands.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return fmt.Errorf("hub %s: already started", h.cfg.SiteID)
	}

	if h.publisher != nil {
		if err := h.publisher.SubscribeCommands(h.handleCommand); err != nil {
			return fmt.Errorf("subscribing to commands: %w", err)
		}
	}

	h.ctx, h.cancel = context.WithCancel(ctx)
	h.started = true

	if h.cfg.DiscoveryInterval > 0 {
		h.goLoop("discovery", h.cfg.DiscoveryInterval, true, func(ctx context.Context) {
			if _, err := h.Discover(ctx); err != nil {
				h.logger.Error("discovery run failed", "error", err)
			}
		})
	}
	if h.cfg.PollInterval > 0 {
		h.goLoop("poll", h.cfg.PollInterval, false, func(ctx context.Context) {
			if _, err := h.discovery.PollAll(ctx); err != nil {
				h.logger.Error("poll run failed", "error", err)
			}
		})
	}

	if !h.cfg.SchedulerDisabled {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			if err := h.scheduler.Run(h.ctx); err != nil && !errors.Is(err, context.Canceled) {
				h.logger.Error("scheduler exited", "error", err)
			}
		}()
	}

	h.logger.Info("hub started", "site_id", h.cfg.SiteID,
		"poll_interval", h.cfg.PollInterval.String(), "discovery_interval", h.cfg.DiscoveryInterval.String())
	return nil
}

// Stop stops the scheduler, cancels the loops and waits for them. Group
// commands already in flight run to completion.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return
	}
	h.started = false
	h.scheduler.Stop()
	h.cancel()
	h.mu.Unlock()

	h.wg.Wait()
	h.logger.Info("hub stopped", "site_id", h.cfg.SiteID)
}

// goLoop runs fn every interval until the hub stops. With immediate set,
// fn also runs once at start.
func (h *Hub) goLoop(name string, interval time.Duration, immediate bool, fn func(context.Context)) {
	ctx := h.ctx
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if immediate {
			fn(ctx)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				h.logger.Debug("loop stopped", "loop", name)
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// baseContext is the context for work triggered from outside a request,
// such as MQTT commands. It carries the hub's values but not its
// cancellation: a command that has started runs to completion after Stop,
// each exchange bounded by the protocol timeout.
func (h *Hub) baseContext() context.Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx != nil {
		return context.WithoutCancel(h.ctx)
	}
	return context.Background()
}

// Discover runs one discovery pass and announces new devices.
func (h *Hub) Discover(ctx context.Context) ([]device.Device, error) {
	added, err := h.discovery.Discover(ctx)
	for _, d := range added {
		h.publishEvent("discovered", d)
	}
	return added, err
}

// PollAll refreshes every addressed device once.
func (h *Hub) PollAll(ctx context.Context) (int, error) {
	return h.discovery.PollAll(ctx)
}

// SetGroupAngle runs a group command and records its outcome.
func (h *Hub) SetGroupAngle(ctx context.Context, targetType, target string, angle int) (group.Result, error) {
	res, err := h.groups.Command(ctx, targetType, target, angle)
	if errors.Is(err, group.ErrUnknownTarget) {
		return res, err
	}
	if h.telemetry != nil {
		h.telemetry.WriteGroupCommand(h.cfg.SiteID, res.TargetType, res.Target, res.Angle, res.Requested, len(res.Updated))
	}
	return res, err
}

// SetDeviceAngle commands one device. The angle is clamped first; on
// success the registry records the new angle with state moving.
func (h *Hub) SetDeviceAngle(ctx context.Context, id string, angle int) (*device.Device, error) {
	d, err := h.reachable(ctx, id)
	if err != nil {
		return nil, err
	}
	angle = device.ClampAngle(angle)

	if _, err := h.client.SetTarget(ctx, d.Address, angle); err != nil {
		return nil, err
	}
	if _, err := h.registry.UpdatePosition(ctx, id, angle, device.StateMoving); err != nil {
		return nil, err
	}
	d.Angle = angle
	d.State = device.StateMoving
	h.deviceUpdated(ctx, *d)
	return d, nil
}

// AssignDevice sets a device's room and floor. The labels are written to
// the device when it is reachable; a failure there is logged and the
// registry is updated regardless.
func (h *Hub) AssignDevice(ctx context.Context, id, room, floor string) (*device.Device, error) {
	if err := device.ValidateLabels(room, floor); err != nil {
		return nil, err
	}
	d, err := h.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if d.Reachable() {
		update := protocol.ConfigUpdate{Room: &room, Floor: &floor}
		if _, err := h.client.SetConfig(ctx, d.Address, update); err != nil {
			h.logger.Warn("could not write assignment to device", "device_id", id, "error", err)
		}
	}

	found, err := h.registry.UpdateAssignment(ctx, id, room, floor)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, device.ErrDeviceNotFound
	}

	d, err = h.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	h.deviceUpdated(ctx, *d)
	return d, nil
}

// RefreshDevice probes one device and stores the result.
func (h *Hub) RefreshDevice(ctx context.Context, id string) (*device.Device, error) {
	d, err := h.reachable(ctx, id)
	if err != nil {
		return nil, err
	}

	probed, err := h.client.Probe(ctx, d.Address)
	if err != nil {
		return nil, err
	}
	if probed.ID != id {
		h.logger.Warn("address now answers with a different id",
			"address", d.Address, "registered_id", id, "reported_id", probed.ID)
	}
	if err := h.registry.Upsert(ctx, *probed); err != nil {
		return nil, err
	}

	stored, err := h.registry.Get(ctx, probed.ID)
	if err != nil {
		return nil, err
	}
	h.deviceUpdated(ctx, *stored)
	return stored, nil
}

// DeleteDevice removes a device from the registry.
func (h *Hub) DeleteDevice(ctx context.Context, id string) error {
	found, err := h.registry.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return device.ErrDeviceNotFound
	}
	return nil
}

// RepublishStates publishes the retained state of every registered device.
// It runs after an MQTT reconnect, when a broker without persistence has
// lost the retained messages.
func (h *Hub) RepublishStates(ctx context.Context) (int, error) {
	if h.publisher == nil {
		return 0, nil
	}
	devices, err := h.registry.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	for _, d := range devices {
		h.publishState(d)
	}
	h.logger.Info("republished device states", "site_id", h.cfg.SiteID, "devices", len(devices))
	return len(devices), nil
}

func (h *Hub) reachable(ctx context.Context, id string) (*device.Device, error) {
	d, err := h.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.Reachable() {
		return nil, fmt.Errorf("%w: %s", ErrNoAddress, id)
	}
	return d, nil
}

// deviceUpdated fans a changed record out to MQTT and InfluxDB.
func (h *Hub) deviceUpdated(_ context.Context, d device.Device) {
	h.publishState(d)
	if h.telemetry != nil {
		h.telemetry.WriteVentTelemetry(h.cfg.SiteID, d)
	}
}

// scheduledGroups routes scheduler rules through SetGroupAngle so that
// scheduled commands are recorded like any other. The scheduler loop's
// context is detached so a fired rule is not cut short by Stop.
type scheduledGroups struct{ h *Hub }

func (s scheduledGroups) Set(ctx context.Context, targetType, target string, angle int) ([]device.Device, error) {
	res, err := s.h.SetGroupAngle(context.WithoutCancel(ctx), targetType, target, angle)
	return res.Updated, err
}

func (h *Hub) publishState(d device.Device) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.PublishState(d.ID, d); err != nil {
		h.logger.Warn("mqtt state publish failed", "device_id", d.ID, "error", err)
	}
}

func (h *Hub) publishEvent(name string, payload any) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.PublishEvent(name, payload); err != nil {
		h.logger.Warn("mqtt event publish failed", "event", name, "error", err)
	}
}

func (h *Hub) publishAck(ack CommandAck) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.PublishAck(ack.ID, ack); err != nil {
		h.logger.Warn("mqtt ack publish failed", "command_id", ack.ID, "error", err)
	}
}
