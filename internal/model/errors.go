package model

import "errors"

// Sentinel errors for the extraction and quoting core. Callers test for
// these with errors.Is; packages wrap them with eris for stack context.
var (
	// ErrPluginNotFound is returned by registry lookups for unknown keys.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrInvalidTransition is returned when a quote state change is not
	// permitted from the current status. The quote is left unchanged.
	ErrInvalidTransition = errors.New("invalid quote transition")

	// ErrPluginNotLicensed is returned when an organization holds no
	// active license for the requested plugin.
	ErrPluginNotLicensed = errors.New("plugin not licensed")

	// ErrQuotaExceeded is returned when an organization's analysis quota
	// for the billing period is exhausted.
	ErrQuotaExceeded = errors.New("analysis quota exceeded")

	// ErrConcurrentModification is returned when an optimistic version
	// check fails on a quote write.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrAnalysisInProgress is returned when a run is requested for a
	// (document, plugin) pair that already has one in flight.
	ErrAnalysisInProgress = errors.New("analysis already in progress")

	// ErrDocumentTooLarge is returned for specification text over the
	// configured maximum. Input is rejected, never truncated.
	ErrDocumentTooLarge = errors.New("document too large")

	// ErrNotFound is returned by stores for missing records.
	ErrNotFound = errors.New("not found")
)
