package runtime

import "sync"

// strictIdentityModeOnce caches the strict mode check at startup.
var (
	strictIdentityModeOnce  sync.Once
	strictIdentityModeValue bool
)

// ResetStrictIdentityModeCache resets the cached strict mode value.
// This should only be used in tests.
func ResetStrictIdentityModeCache() {
	strictIdentityModeOnce = sync.Once{}
	strictIdentityModeValue = false
}

// StrictIdentityMode returns true when the process should fail closed on
// network boundaries that matter for correctness — in production, RPC and
// REST endpoints must be https/wss, never plaintext.
func StrictIdentityMode() bool {
	strictIdentityModeOnce.Do(func() {
		strictIdentityModeValue = Env() == Production
	})
	return strictIdentityModeValue
}
