// Package gateway wraps the two external classifier capabilities behind
// uniform, fail-safe interfaces. The two calls carry deliberately opposite
// error policies: a failed embedding must never masquerade as a confident
// match (fail-closed), while a failed verification lets the item through
// (fail-open) because losing a real lead costs more than one false positive.
package gateway

import (
	"context"
)

// Similarity is the result of an embedding comparison against the profile's
// reference topics. The zero value is the fail-closed result.
type Similarity struct {
	Score     float64
	BestTopic string
}

// Verdict is the result of generative verification.
type Verdict struct {
	Accepted  bool
	Rationale string
}

// Classifier is the capability gateway consumed by the cascade. Both calls
// are the costliest operations in the pipeline and must only run after the
// cheaper textual gates have passed.
//
// Embed returns the zero Similarity alongside the error when the capability
// fails. Verify returns an accepting Verdict alongside the error; the error
// is reported for observability only and never blocks the item.
type Classifier interface {
	Embed(ctx context.Context, text string) (Similarity, error)
	Verify(ctx context.Context, text string) (Verdict, error)
}
