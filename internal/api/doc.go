// Package api implements the HTTP REST API for the vent hub.
//
// This package provides:
//   - Device endpoints: list, get, delete, set angle, assign room/floor, refresh
//   - Group endpoints for rooms, floors and the whole site
//   - Schedule rule management
//   - Discovery and poll triggers
//   - Prometheus metrics at /metrics
//
// # Multiple hubs
//
// Every hub registered in the hub.Directory is addressable. Requests pick
// one with ?site=<id>; the parameter may be omitted when only one hub runs.
//
// # Partial failure
//
// Group commands answer 200 with {requested, updated} even when some vents
// did not acknowledge. Callers compare the two to detect partial failure.
//
// Single-device commands to an unreachable vent answer 502.
package api
