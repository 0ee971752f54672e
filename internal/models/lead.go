package models

import (
	"time"
)

// Lead is the terminal, durable artifact: an identity whose content item
// passed every cascade stage. Immutable once appended except for the
// response-status flags, which the response path sets once before persistence.
type Lead struct {
	ID              string      `json:"id"`
	Timestamp       time.Time   `json:"timestamp"`
	Author          string      `json:"author"`
	Subforum        string      `json:"subreddit"`
	Kind            ContentKind `json:"content_type"`
	Title           string      `json:"title,omitempty"`
	Body            string      `json:"body"`
	Permalink       string      `json:"permalink"`
	Score           int         `json:"reddit_score"`
	SimilarityScore float64     `json:"similarity_score"`
	BestTopic       string      `json:"best_matching_topic"`
	Rationale       string      `json:"llm_verification"`

	Replied  bool `json:"replied"`
	Messaged bool `json:"dm_sent"`
	Notified bool `json:"email_sent"`
}

// FilterReason identifies the cascade stage that rejected an item.
type FilterReason string

const (
	ReasonNotAttributable FilterReason = "not_attributable"
	ReasonKnownLead       FilterReason = "known_lead"
	ReasonNoIntent        FilterReason = "no_intent_keywords"
	ReasonNegative        FilterReason = "negative_keywords"
	ReasonNoSeeking       FilterReason = "no_seeking_language"
	ReasonLowSimilarity   FilterReason = "low_similarity"
	ReasonVerifierNo      FilterReason = "llm_verification_failed"
)

// FilteredEvent records a rejection for the optional audit sink. Purely
// diagnostic; losing one never affects correctness.
type FilteredEvent struct {
	Timestamp       time.Time    `json:"timestamp"`
	Author          string       `json:"author"`
	Subforum        string       `json:"subreddit"`
	Kind            ContentKind  `json:"content_type"`
	Permalink       string       `json:"permalink"`
	Reason          FilterReason `json:"filter_reason"`
	Evidence        string       `json:"filter_description"`
	SimilarityScore float64      `json:"similarity_score,omitempty"`
}
