// Package collection implements the write-through cache shared by every
// synchronized configuration collection.
//
// A Collection owns the in-memory list for one entity type. Every mutation
// writes to the remote client first and touches the cache only after the
// remote call succeeds, so a failed call leaves the cache exactly as it
// was.
//
// # Status
//
//	IDLE --PullAll(full)--> LOADING_FULL ------> IDLE | ERROR
//	IDLE --PullAll/mutation--> LOADING_BACKGROUND --> IDLE | ERROR
//
// ERROR is entered only by a failed PullAll and is cleared only by the
// next successful PullAll. Failed mutations surface to their caller and
// leave the status where it was before the call.
//
// # Concurrency
//
// Operations on one collection run one at a time through an operation
// slot; waiting for the slot honours context cancellation. Readers (List,
// Get, Status) never wait for the slot or for network calls.
package collection
