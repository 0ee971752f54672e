package gateway

import (
	"context"
	"strings"
	"sync"
)

// MockClassifier provides a deterministic Classifier for tests. It applies
// the same fail-closed/fail-open policies as the real gateway and counts
// calls so tests can assert cascade short-circuiting.
type MockClassifier struct {
	mu sync.Mutex

	// Scripted results keyed by substring of the input text; the defaults
	// apply when no key matches.
	SimilarityByText map[string]Similarity
	DefaultSim       Similarity
	VerdictByText    map[string]Verdict
	DefaultVerdict   Verdict

	// Injected failures.
	EmbedErr  error
	VerifyErr error

	EmbedCalls  int
	VerifyCalls int
}

// NewMockClassifier returns a mock that accepts everything with a high score.
func NewMockClassifier() *MockClassifier {
	return &MockClassifier{
		DefaultSim:     Similarity{Score: 0.9, BestTopic: "default topic"},
		DefaultVerdict: Verdict{Accepted: true, Rationale: "YES - mock accepted"},
	}
}

// Embed returns the scripted similarity, or the zero Similarity when a
// failure is injected (fail-closed).
func (m *MockClassifier) Embed(ctx context.Context, text string) (Similarity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EmbedCalls++

	if m.EmbedErr != nil {
		return Similarity{}, m.EmbedErr
	}

	for key, sim := range m.SimilarityByText {
		if strings.Contains(text, key) {
			return sim, nil
		}
	}
	return m.DefaultSim, nil
}

// Verify returns the scripted verdict, or an accepting Verdict when a
// failure is injected (fail-open).
func (m *MockClassifier) Verify(ctx context.Context, text string) (Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.VerifyCalls++

	if m.VerifyErr != nil {
		return Verdict{Accepted: true, Rationale: "verification error: " + m.VerifyErr.Error()}, m.VerifyErr
	}

	for key, verdict := range m.VerdictByText {
		if strings.Contains(text, key) {
			return verdict, nil
		}
	}
	return m.DefaultVerdict, nil
}

// Calls returns the gateway call counts.
func (m *MockClassifier) Calls() (embeds, verifies int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.EmbedCalls, m.VerifyCalls
}
