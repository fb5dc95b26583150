// Package hub runs the vent services for one site.
//
// A Hub owns the registry, protocol client, discovery, group manager and
// scheduler of a site and drives three background loops: periodic polling,
// periodic discovery and the rule scheduler. Every device change it sees
// is published as retained JSON on venthub/state/<id> and written to
// InfluxDB when those integrations are configured.
//
// Group commands arrive over MQTT on venthub/command/... and are
// acknowledged on venthub/ack/<id>, or through the HTTP API.
//
// A Directory holds the hubs of a process keyed by site ID.
package hub
