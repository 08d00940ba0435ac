// Package store provides SQLite-backed durable storage for configuration
// collections.
//
// The store holds one table of entity rows keyed by
// (workspace, collection, id). Bodies are canonical JSON documents; the
// store never interprets them beyond top-level merges for patches.
//
// # Critical Patterns
//
// Deterministic listing:
//   - All listings use ORDER BY seq ASC, id ASC COLLATE BINARY
//   - seq is assigned on insert and never changes, so a collection lists in
//     creation order regardless of later updates
//
// Canonical bodies:
//   - Bodies are written with model.MarshalCanonical, so equal entities are
//     byte-identical on disk
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
