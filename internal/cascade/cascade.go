// Package cascade implements the cheap-to-expensive filter chain that turns
// raw content items into qualified leads. Stages run in a fixed order and
// short-circuit on the first failure, so the expensive gateway calls only see
// items that survived every textual gate.
package cascade

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fluentfuture/leadscout/internal/cooldown"
	"github.com/fluentfuture/leadscout/internal/gateway"
	"github.com/fluentfuture/leadscout/internal/ledger"
	"github.com/fluentfuture/leadscout/internal/metrics"
	"github.com/fluentfuture/leadscout/internal/models"
	"github.com/fluentfuture/leadscout/internal/sink"
)

// Notifier delivers the per-lead email notification. Implementations must be
// safe to call from the pipeline consumer goroutine.
type Notifier interface {
	NotifyLead(ctx context.Context, lead models.Lead) error
}

// Outcome reports what the cascade decided for one item.
type Outcome struct {
	Admitted bool
	Reason   models.FilterReason
	Lead     *models.Lead
}

// Cascade evaluates content items stage by stage. It is driven by a single
// consumer goroutine; the ledger and sinks are only ever mutated from here.
type Cascade struct {
	profile    *models.Profile
	classifier gateway.Classifier
	ledger     *ledger.Ledger
	leads      *sink.LeadSink
	audit      *sink.AuditSink
	metrics    *metrics.Collector
	responder  *Responder
	notifier   Notifier
	logger     *slog.Logger
	now        func() time.Time
}

// New wires a cascade. responder and notifier may be nil when the matching
// outbound channel is disabled.
func New(
	profile *models.Profile,
	classifier gateway.Classifier,
	idLedger *ledger.Ledger,
	leads *sink.LeadSink,
	audit *sink.AuditSink,
	collector *metrics.Collector,
	responder *Responder,
	notifier Notifier,
	logger *slog.Logger,
) *Cascade {
	return &Cascade{
		profile:    profile,
		classifier: classifier,
		ledger:     idLedger,
		leads:      leads,
		audit:      audit,
		metrics:    collector,
		responder:  responder,
		notifier:   notifier,
		logger:     logger,
		now:        time.Now,
	}
}

// Process runs the item through every stage. Always returns a usable Outcome;
// internal errors are logged and counted, never propagated upward, because one
// bad item must not stall the stream.
func (c *Cascade) Process(ctx context.Context, item models.ContentItem) Outcome {
	// Stage 1: attribution. Unattributable items are dropped silently: there
	// is no author to qualify, so nothing beyond the processed count moves.
	if !item.Attributable() {
		return Outcome{Reason: models.ReasonNotAttributable}
	}

	// Stage 2: admission gate. One lead per identity, ever. Skips are as
	// silent as stage 1; the filter counters only track content rejections.
	if c.ledger.IsKnown(item.Author) {
		c.logger.Debug("skipping known lead", "author", item.Author)
		return Outcome{Reason: models.ReasonKnownLead}
	}

	text := item.Text()

	// Stage 3: intent keywords.
	if matched := firstMatch(text, c.profile.IntentKeywords); matched == "" {
		return c.reject(item, models.ReasonNoIntent, "no intent keyword matched", 0)
	}

	// Stage 4: negative keywords.
	if matched := firstMatch(text, c.profile.NegativeKeywords); matched != "" {
		return c.reject(item, models.ReasonNegative, fmt.Sprintf("matched negative keyword %q", matched), 0)
	}

	// Stage 5: seeking language.
	if matched := firstMatch(text, c.profile.SeekingMarkers); matched == "" {
		return c.reject(item, models.ReasonNoSeeking, "no seeking language found", 0)
	}

	// Stage 6: embedding similarity. A failed Embed yields a zero score and
	// falls through the threshold, so gateway outages reject instead of admit.
	sim, err := c.classifier.Embed(ctx, text)
	if err != nil {
		c.logger.Warn("similarity check failed", "author", item.Author, "error", err)
		c.metrics.IncError("gateway_embed")
	}
	if sim.Score <= c.profile.SimilarityThreshold {
		evidence := fmt.Sprintf("similarity %.2f not above threshold %.2f", sim.Score, c.profile.SimilarityThreshold)
		return c.reject(item, models.ReasonLowSimilarity, evidence, sim.Score)
	}

	// Stage 7: LLM verification. A failed Verify is fail-open and arrives
	// here already accepted, with the error recorded in the rationale.
	verdict, err := c.classifier.Verify(ctx, text)
	if err != nil {
		c.logger.Warn("verification errored, accepting fail-open", "author", item.Author, "error", err)
		c.metrics.IncError("gateway_verify")
	}
	if !verdict.Accepted {
		return c.reject(item, models.ReasonVerifierNo, verdict.Rationale, sim.Score)
	}

	// Stage 8: admission.
	lead := models.Lead{
		ID:              uuid.New().String(),
		Timestamp:       c.now(),
		Author:          item.Author,
		Subforum:        item.Subforum,
		Kind:            item.Kind,
		Title:           item.Title,
		Body:            item.Body,
		Permalink:       item.Permalink,
		Score:           item.Score,
		SimilarityScore: sim.Score,
		BestTopic:       sim.BestTopic,
		Rationale:       verdict.Rationale,
	}

	// Ledger first: even if everything after this fails, the identity must
	// never be admitted twice.
	if err := c.ledger.Record(item.Author); err != nil {
		c.logger.Error("ledger persistence failed", "author", item.Author, "error", err)
		c.metrics.IncError("persistence")
	}

	c.logger.Info("lead found",
		"author", lead.Author,
		"subreddit", lead.Subforum,
		"kind", lead.Kind,
		"similarity", fmt.Sprintf("%.2f", lead.SimilarityScore),
		"topic", lead.BestTopic,
		"permalink", lead.Permalink,
	)

	if c.notifier != nil {
		if err := c.notifier.NotifyLead(ctx, lead); err != nil {
			c.logger.Warn("lead notification failed", "author", lead.Author, "error", err)
			c.metrics.IncError("responding")
		} else {
			lead.Notified = true
			c.metrics.IncNotification()
		}
	}

	if c.responder != nil {
		c.responder.Engage(ctx, item, &lead)
	}

	if err := c.leads.Append(lead); err != nil {
		c.logger.Error("lead sink persistence failed", "author", lead.Author, "error", err)
		c.metrics.IncError("persistence")
	}

	c.metrics.IncLead()
	return Outcome{Admitted: true, Reason: "", Lead: &lead}
}

// reject records a content-stage rejection in the metrics and the audit sink.
func (c *Cascade) reject(item models.ContentItem, reason models.FilterReason, evidence string, score float64) Outcome {
	c.metrics.IncFiltered(reason)
	c.audit.Append(models.FilteredEvent{
		Timestamp:       c.now(),
		Author:          item.Author,
		Subforum:        item.Subforum,
		Kind:            item.Kind,
		Permalink:       item.Permalink,
		Reason:          reason,
		Evidence:        evidence,
		SimilarityScore: score,
	})
	c.logger.Debug("item filtered",
		"author", item.Author,
		"reason", reason,
		"evidence", evidence,
	)
	return Outcome{Reason: reason}
}

// firstMatch returns the first needle contained in text, or "".
func firstMatch(text string, needles []string) string {
	for _, needle := range needles {
		if strings.Contains(text, strings.ToLower(needle)) {
			return needle
		}
	}
	return ""
}

// Platform is the outbound half of the social platform client.
type Platform interface {
	Reply(ctx context.Context, parentFullname, body string) error
	DirectMessage(ctx context.Context, recipient, subject, body string) error
}

// Responder handles the reply/DM channel for admitted leads, subject to the
// per-identity cooldown.
type Responder struct {
	platform    Platform
	profile     *models.Profile
	cooldown    *cooldown.Tracker
	autoRespond bool
	sendDMs     bool
	metrics     *metrics.Collector
	logger      *slog.Logger
}

// NewResponder wires the outbound response channel.
func NewResponder(
	platform Platform,
	profile *models.Profile,
	tracker *cooldown.Tracker,
	autoRespond, sendDMs bool,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Responder {
	return &Responder{
		platform:    platform,
		profile:     profile,
		cooldown:    tracker,
		autoRespond: autoRespond,
		sendDMs:     sendDMs,
		metrics:     collector,
		logger:      logger,
	}
}

// Engage replies to the lead's item, or falls back to a direct message.
// Updates the lead's response-status flags in place so they are persisted
// with the lead record. Errors are logged and counted, never returned.
func (r *Responder) Engage(ctx context.Context, item models.ContentItem, lead *models.Lead) {
	if !r.autoRespond && !r.sendDMs {
		return
	}

	if !r.cooldown.CanContact(item.Author) {
		r.logger.Info("skipping response, cooldown active", "author", item.Author)
		return
	}

	body := r.profile.SelectTemplate(item.Text())
	if body == "" {
		return
	}

	switch {
	case r.autoRespond:
		if err := r.platform.Reply(ctx, item.FullnameID, body); err != nil {
			r.logger.Warn("reply failed", "author", item.Author, "error", err)
			r.metrics.IncError("responding")
			return
		}
		lead.Replied = true
		r.metrics.IncReply()

	case r.sendDMs:
		subject := fmt.Sprintf("Your post in r/%s", item.Subforum)
		if err := r.platform.DirectMessage(ctx, item.Author, subject, body); err != nil {
			r.logger.Warn("direct message failed", "author", item.Author, "error", err)
			r.metrics.IncError("responding")
			return
		}
		lead.Messaged = true
		r.metrics.IncDM()
	}

	r.cooldown.RecordContact(item.Author)
}
