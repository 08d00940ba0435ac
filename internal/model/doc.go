// Package model defines the configuration entities synchronized by entitysync.
//
// Three collections make up a workspace's configuration graph:
//   - Keys: write keys; never store links themselves
//   - Sinks: destinations; carry onlyKeys (Key.UID list) and sources (Source.ID list)
//   - Sources: carry destinations (Sink.UID list)
//
// Key↔Sink is stored once (Sink.OnlyKeys). Source↔Sink is stored twice
// (Source.Destinations and Sink.Sources) and both views must agree.
//
// This package contains types and pure helpers only. It imports nothing
// internal, so every other package can depend on it.
package model
