// Package influxdb records vent history in InfluxDB.
//
// The hub writes one "vent" point per device each time its record changes
// (poll, discovery, command) and one "group_command" point per group
// command, so opening history, partial failures and mesh signal quality
// can be graphed over time.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteVentTelemetry(cfg.Site.ID, d)
//
// Writes never block; failures are reported through SetOnError.
package influxdb
