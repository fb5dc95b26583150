// Package discovery finds vents on the mesh and keeps the registry fresh.
//
// A Topology lists the addresses the mesh control plane currently knows
// about. Two interchangeable sources exist: OTBRSource queries the border
// router's REST API and OTCtlSource scrapes the ot-ctl child table.
// NewTopology picks one from configuration.
//
// Discover probes each address and upserts the result, returning only
// devices that were new to the registry. PollAll re-probes every registered
// device that has an address. In both, a device that fails to answer is
// logged and skipped; storage errors abort the run.
package discovery
