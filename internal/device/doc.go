// Package device is the hub's authoritative vent inventory.
//
// A Device is keyed by its hardware EUI and carries the user-assigned room,
// floor and name labels, the last known position and the health fields
// reported by the vent.
//
// # Merge semantics
//
// Registry.Upsert inserts unknown devices and replaces every field of known
// ones except room, floor and name, which keep their stored value whenever
// the incoming label is empty. A poll of a vent that has lost its labels
// therefore never erases an assignment. LastSeen is refreshed on every upsert.
//
// # Invariants
//
//   - Angle is always within [90,180]; values are clamped on the way in.
//   - State is closed iff angle is 90, unless a move is in flight (moving).
//   - A device with an empty Address is known but unreachable. Network
//     operations skip it; nothing deletes it implicitly.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(logger.Component("registry"))
//
//	if err := registry.Upsert(ctx, probed); err != nil {
//	    return err // *StorageError
//	}
//	vents, err := registry.ListByRoom(ctx, "kitchen")
package device
