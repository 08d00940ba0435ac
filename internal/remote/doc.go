// Package remote defines the contract of the remote configuration service
// and the clients that speak it.
//
// A Client is a keyed CRUD table scoped to one workspace and one collection.
// Calls are assumed atomic and strongly consistent for a single caller.
//
// Implementations:
//   - HTTPClient: REST client for a configuration service (retries 429/5xx)
//   - Memory: in-process table with call recording and failure injection
//   - StoreClient: adapter over the local SQLite table store
package remote
