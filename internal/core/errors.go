package core

import "errors"

// Error taxonomy shared by the catalog, the orchestrator and the aggregator.
// Callers classify with errors.Is; user-facing text never carries these verbatim.
var (
	ErrCatalogEmpty         = errors.New("no tools registered")
	ErrConnectorUnavailable = errors.New("connector unavailable")
	ErrToolNotFound         = errors.New("tool not found")
	ErrInvocationFailed     = errors.New("invocation failed")
	ErrParseFailed          = errors.New("response shape not recognized")
	ErrModelUnavailable     = errors.New("model unavailable")
)
