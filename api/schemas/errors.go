// api/schemas/errors.go
package schemas

import "errors"

// Error taxonomy shared across the resolution pipeline. Per-candidate and
// per-batch failures are absorbed and logged where they occur; only
// ErrGraphBuild and full attempt exhaustion surface to callers.
var (
	// ErrGraphBuild wraps a page access error during graph extraction.
	// Fatal to the current resolution; never retried inside the core.
	ErrGraphBuild = errors.New("graph build failed")

	// ErrNoCandidates means filtering/scoring produced nothing. Treated as
	// lowest confidence and routed to escalation.
	ErrNoCandidates = errors.New("no candidates")

	// ErrParse means a disambiguation response could not be interpreted as
	// the expected shape after all lenient strategies.
	ErrParse = errors.New("unparseable provider response")

	// ErrValidation means a candidate locator resolved to zero live
	// elements or threw on evaluation.
	ErrValidation = errors.New("locator validation failed")

	// ErrProvider wraps disambiguation/embedding call errors. Propagated
	// per batch with partial results preserved.
	ErrProvider = errors.New("provider call failed")
)
