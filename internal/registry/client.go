// Package registry talks to the external court-gazette registry. The client
// is purely mechanical: one outbound query per call, classified failures, no
// retries (the backoff policy owns those) and no state.
package registry

import (
	"context"
	"encoding/json"
	"time"
)

// Query parameterizes one bounded registry search for a single identity and
// date window. Retries of the same run must reuse the identical query.
type Query struct {
	BarNumber    string
	Jurisdiction string

	// Optional sealed-case scope.
	CaseNumber           string
	SealedAccessPassword string

	WindowStart time.Time
	WindowEnd   time.Time

	// PageSize bounds the result set for one call. Zero means the client
	// default.
	PageSize int
}

// RawRecord is one opaque structured document returned by the registry.
// Extraction into candidates is the extractor's job.
type RawRecord struct {
	Registry string
	Data     json.RawMessage
}

// Client performs one outbound registry search per invocation.
//
// Errors are *FetchError classified transient or terminal; an empty slice
// with a nil error is a successful empty result, not a failure.
type Client interface {
	Search(ctx context.Context, q Query) ([]RawRecord, error)
}
