package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/venthub/internal/device"
)

// Measurement names written by the hub.
const (
	MeasurementVent         = "vent"
	MeasurementGroupCommand = "group_command"
)

// VentPoint builds the telemetry point for one vent.
//
// Tags carry the low-cardinality labels (site, device, room, floor, power
// source); everything that changes per poll is a field. battery_mv is only
// present for devices that report it.
func VentPoint(siteID string, d device.Device, ts time.Time) *write.Point {
	fields := map[string]any{
		"angle":            d.Angle,
		"position_percent": d.PositionPercent(),
		"state_code":       d.State.Code(),
		"rssi":             d.RSSI,
		"free_heap":        d.FreeHeap,
		"poll_period_ms":   d.PollPeriodMs,
	}
	if d.BatteryMv != nil {
		fields["battery_mv"] = *d.BatteryMv
	}

	tags := map[string]string{
		"site_id":      siteID,
		"device_id":    d.ID,
		"power_source": string(d.PowerSource),
	}
	if d.Room != "" {
		tags["room"] = d.Room
	}
	if d.Floor != "" {
		tags["floor"] = d.Floor
	}

	return write.NewPoint(MeasurementVent, tags, fields, ts)
}

// GroupCommandPoint builds the point for one group command. failed is
// derived so partial commands can be graphed directly.
func GroupCommandPoint(siteID, targetType, target string, angle, requested, updated int, ts time.Time) *write.Point {
	tags := map[string]string{
		"site_id":     siteID,
		"target_type": targetType,
	}
	if target != "" {
		tags["target"] = target
	}
	return write.NewPoint(MeasurementGroupCommand, tags, map[string]any{
		"angle":     angle,
		"requested": requested,
		"updated":   updated,
		"failed":    requested - updated,
	}, ts)
}

// WriteVentTelemetry queues the current state of one vent, stamped with
// its LastSeen time when set.
func (c *Client) WriteVentTelemetry(siteID string, d device.Device) {
	ts := time.Now()
	if d.LastSeen != nil {
		ts = *d.LastSeen
	}
	c.write(VentPoint(siteID, d, ts))
}

// WriteGroupCommand queues the outcome of one group command.
func (c *Client) WriteGroupCommand(siteID, targetType, target string, angle, requested, updated int) {
	c.write(GroupCommandPoint(siteID, targetType, target, angle, requested, updated, time.Now()))
}

func (c *Client) write(p *write.Point) {
	if c.closed.Load() {
		return
	}
	c.writeAPI.WritePoint(p)
	c.written.Add(1)
}
