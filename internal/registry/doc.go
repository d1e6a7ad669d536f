// Package registry stores handler sets keyed by handle.
//
// A Registry owns two tables, Primary and Post. Each table maps a handle to
// an ordered set of handlers; the order is the registration order, which is
// also the order of the monotonically increasing registration IDs. IDs come
// from a counter owned by the registry instance and are never reused, so a
// stale ID can never remove a newer registration.
//
// Handlers returns a snapshot. A dispatch pass that iterates the snapshot is
// unaffected by registrations added or removed while it runs: new handlers
// wait for the next pass, removed handlers that were already in the snapshot
// still run once.
package registry
