// Package command defines the durable unit of offline intent: a Command
// records one CREATE/UPDATE/DELETE mutation awaiting replay against the
// remote data service.
//
// The package also provides the supporting identity and integrity
// primitives shared by the store and the sync engine:
//
//   - time-ordered UUIDv7 entity IDs for records created while offline
//   - canonical JSON serialization for deterministic payload storage
//   - domain-separated SHA-256 checksums for corruption detection
//
// Commands are persisted by internal/store; this package holds only the
// pure types and functions so every layer above can share them without
// import cycles.
package command
