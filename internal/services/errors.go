package services

import "errors"

// Error taxonomy of the engine. Only ErrInvalidConfiguration is fatal, and
// only at startup; everything else degrades to empty results or metadata
// flags on the response.
var (
	// ErrInsufficientData marks an empty catalog, empty interaction log or
	// otherwise unusable training input. Non-fatal: callers yield empty
	// results.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrModelUnavailable marks a missing or stale published snapshot.
	// Non-fatal: the orchestrator drops the social-proof weight to zero.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrGraphDivergence marks a rank propagation that hit the iteration
	// cap before epsilon convergence. Non-fatal: the vector is still
	// published, flagged as unconverged.
	ErrGraphDivergence = errors.New("rank propagation hit iteration cap before convergence")

	// ErrInvalidConfiguration marks a configuration that violates the
	// engine's numeric contracts. Fatal at startup.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrNodeNotFound marks an influence lookup for a node absent from
	// the published snapshot.
	ErrNodeNotFound = errors.New("node not found in influence graph")
)
