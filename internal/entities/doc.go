// Package entities holds the keys, sinks and sources collections and the
// logic that keeps their cross-references consistent.
//
// Two relationships are maintained:
//
//   - Key↔Sink is stored once, in Sink.OnlyKeys. Deleting a key prunes it
//     from every sink.
//   - Source↔Sink is stored twice, in Source.Destinations and
//     Sink.Sources. A change on either side is pushed to the other side
//     with updateConnections=false so it does not bounce back.
//
// Collections never touch each other's cache. Every cross-collection
// effect goes through the target collection's public Patch, which writes
// remotely first.
//
// Cascades are best-effort: every secondary patch is attempted, failures
// are logged per entity and returned together as a *CascadeError once the
// fan-out has finished. The primary mutation is never rolled back.
//
// Patches that would not change a link list are never sent.
package entities
