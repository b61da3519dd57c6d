package model

import "errors"

// Sentinel errors returned by MarketDataClient and passed through by AnalysisEngine.
// Callers use errors.Is against these; data-insufficiency is modeled as an
// absent result rather than an error (spec's "exceptions for control flow"
// design note).
var (
	ErrNotFound    = errors.New("dexsurveil: resource not found")
	ErrRateLimited = errors.New("dexsurveil: rate limited by upstream")
	ErrTransient   = errors.New("dexsurveil: transient upstream failure")
	ErrMalformed   = errors.New("dexsurveil: malformed upstream response")
)
