package crag

import "errors"

// Error categories surfaced by the engine. Callers match them with errors.Is.
var (
	// ErrEmptyQuery rejects blank or whitespace-only input. Fatal.
	ErrEmptyQuery = errors.New("crag: empty query")

	// ErrRetrieval marks a retrieval collaborator failure. Fatal for the
	// request; retrieval-level retries are the collaborator's concern, so the
	// engine never retries a failed search itself.
	ErrRetrieval = errors.New("crag: retrieval failed")

	// ErrGeneration marks a generation collaborator failure. Fatal, since
	// there is no answer to verify or return.
	ErrGeneration = errors.New("crag: generation failed")

	// ErrRewriteBackend marks a rewrite backend outage. The engine treats it
	// as non-fatal: the correction loop stops early and the request proceeds
	// with the best evidence gathered so far.
	ErrRewriteBackend = errors.New("crag: rewrite backend unavailable")
)
