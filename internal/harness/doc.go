// Package harness runs entity-store scenarios described in YAML.
//
// A scenario seeds an in-memory configuration service, pulls it into a
// fresh Registry, executes a flow of operations, and checks the recorded
// remote calls, the final state of both cache and remote, and the orphan
// warnings left behind.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	catalog:
//	  internal: true          # sink type -> hidden
//	seed:
//	  keys: [{uid: k1, serverAuth: s, jsAuth: j, origins: []}]
//	  sinks: [{uid: d1, type: webhook, onlyKeys: [], sources: []}]
//	  sources: [{id: s1, destinations: []}]
//	setup:
//	  - op: keys.create
//	    args: {comment: ci}
//	flow:
//	  - op: sources.add
//	    args:
//	      entity: {id: s2, destinations: [d1]}
//	  - op: sinks.patch
//	    args: {id: d1, patch: {config: {a: {b: 1}}}}
//	    expect_error: patch_too_deep
//	assertions:
//	  - type: remote_calls
//	    collection: destinations
//	    method: patch
//	    id: d1
//	    count: 1
//	  - type: final_state
//	    collection: destinations
//	    id: d1
//	    expect: {sources: [s2]}
//	  - type: orphans
//	    kinds: [key_unlinked]
//	    count: 1
//
// Setup operations run before tracing starts; only flow calls appear in the
// trace and in remote_calls counts.
//
// # Operations
//
//	keys.add keys.create keys.patch keys.delete keys.initial
//	sinks.add sinks.patch sinks.replace sinks.delete
//	sinks.link_keys sinks.update_links_to_key
//	sources.add sources.patch sources.replace sources.delete
//	pull fail_next return_nothing
//
// # Determinism
//
// Cascades dispatch one patch at a time, key tokens come from a
// keygen.Sequence, and the remotes assign sink-N and src-N ids, so the same
// scenario always yields the same trace. RunWithGolden compares that trace
// with testdata/golden/<name>.golden.
package harness
