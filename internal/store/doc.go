// Package store provides the durable SQLite layer beneath the command
// queue and the conflict resolver.
//
// The store is the single source of truth for crash recovery: commands,
// unresolved conflicts, and resolution preferences live here, and every
// state transition the sync engine makes is written back before the step
// is considered complete.
//
// Uses SQLite with WAL mode for concurrent read access and a partial
// unique index on (entity_type, entity_id, operation) to back command
// deduplication.
package store
