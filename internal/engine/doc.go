// Package engine drives replay of queued commands against the remote
// service. One engine instance owns one queue: it watches connectivity,
// debounces flapping links, and replays pending commands in priority
// order under exponential backoff, reflecting every state change back
// to the durable store before moving on. The persisted queue, not the
// in-memory loop, is the source of truth for crash recovery.
package engine
