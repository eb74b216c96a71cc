package embedding

import "errors"

// ErrNotFitted is returned when a locally-fitted embedder is used before
// Fit. Callers must not treat unfitted output as meaningful, so Embed fails
// instead of producing a degraded vector.
var ErrNotFitted = errors.New("embedder is not fitted")

// ErrProviderUnavailable is returned when a remote embedding call fails at
// the transport or service level. The call is not retried here; retry
// policy, if any, belongs to the caller.
var ErrProviderUnavailable = errors.New("embedding provider unavailable")
