package command

// ErrorKind classifies a replay failure and drives the retry policy.
//
// All kinds are retried with backoff up to the configured limit; the
// classification exists so operators and the conflict path can tell a
// transport blip from a payload the remote will never accept.
type ErrorKind string

const (
	// KindNetwork is a transport or connectivity failure.
	KindNetwork ErrorKind = "network"

	// KindDependency means a referenced entity is missing remotely.
	// It may self-heal once the dependency's own command syncs.
	KindDependency ErrorKind = "dependency"

	// KindValidation means the remote rejected the payload outright
	// (not-null or check constraint). Retries will not fix it without a
	// payload edit.
	KindValidation ErrorKind = "validation"

	// KindConflict is a remote unique-constraint collision; when a
	// resolver is wired it takes the conflict resolution path.
	KindConflict ErrorKind = "conflict"

	// KindUnknown is the default bucket.
	KindUnknown ErrorKind = "unknown"
)

// Valid reports whether k is a recognized error kind.
func (k ErrorKind) Valid() bool {
	switch k {
	case KindNetwork, KindDependency, KindValidation, KindConflict, KindUnknown:
		return true
	default:
		return false
	}
}
