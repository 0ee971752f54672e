// Package metrics owns the pipeline's observability counters. One Collector
// is created at startup and owned by the consumer; there are no process-wide
// globals. Counters are mirrored into a private Prometheus registry and into
// a plain snapshot readable by the periodic log summary and by tests.
package metrics

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fluentfuture/leadscout/internal/models"
)

// Stats is a point-in-time snapshot of the pipeline counters.
type Stats struct {
	Processed     int64
	Posts         int64
	Comments      int64
	Filtered      map[models.FilterReason]int64
	Leads         int64
	Replies       int64
	DMs           int64
	Notifications int64
	Errors        map[string]int64
}

// FilteredTotal sums rejections across all reasons.
func (s Stats) FilteredTotal() int64 {
	var total int64
	for _, n := range s.Filtered {
		total += n
	}
	return total
}

// Collector aggregates pipeline counters.
type Collector struct {
	registry *prometheus.Registry

	processedTotal *prometheus.CounterVec
	filteredTotal  *prometheus.CounterVec
	leadsTotal     prometheus.Counter
	responsesTotal *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec

	mu    sync.Mutex
	stats Stats

	// Milestone progression: 10, 100, 1000, then every 1000.
	milestones     []int64
	milestoneIndex int
}

// NewCollector constructs a collector with its own registry.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	processedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leadscout",
		Subsystem: "pipeline",
		Name:      "processed_total",
		Help:      "Total content items pulled from the work queue.",
	}, []string{"kind"})

	filteredTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leadscout",
		Subsystem: "pipeline",
		Name:      "filtered_total",
		Help:      "Items rejected by the cascade, by stage reason.",
	}, []string{"reason"})

	leadsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "leadscout",
		Subsystem: "pipeline",
		Name:      "leads_total",
		Help:      "Qualified leads admitted by the cascade.",
	})

	responsesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leadscout",
		Subsystem: "pipeline",
		Name:      "responses_total",
		Help:      "Outbound actions taken for leads.",
	}, []string{"channel"})

	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leadscout",
		Subsystem: "pipeline",
		Name:      "errors_total",
		Help:      "Errors by class (processing, responding, persistence, gateway).",
	}, []string{"class"})

	for _, c := range []prometheus.Collector{processedTotal, filteredTotal, leadsTotal, responsesTotal, errorsTotal} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Collector{
		registry:       registry,
		processedTotal: processedTotal,
		filteredTotal:  filteredTotal,
		leadsTotal:     leadsTotal,
		responsesTotal: responsesTotal,
		errorsTotal:    errorsTotal,
		stats: Stats{
			Filtered: make(map[models.FilterReason]int64),
			Errors:   make(map[string]int64),
		},
		milestones: []int64{10, 100, 1000},
	}, nil
}

// Handler returns an HTTP handler exposing the Prometheus registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// IncProcessed counts one consumed item and reports whether the running total
// just crossed a progress milestone worth logging.
func (c *Collector) IncProcessed(kind models.ContentKind) (total int64, milestone bool) {
	c.processedTotal.WithLabelValues(string(kind)).Inc()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Processed++
	switch kind {
	case models.KindPost:
		c.stats.Posts++
	case models.KindComment:
		c.stats.Comments++
	}

	total = c.stats.Processed
	if c.milestoneIndex < len(c.milestones) {
		if total >= c.milestones[c.milestoneIndex] {
			c.milestoneIndex++
			milestone = true
		}
	} else if total%1000 == 0 {
		milestone = true
	}

	return total, milestone
}

// IncFiltered counts one cascade rejection.
func (c *Collector) IncFiltered(reason models.FilterReason) {
	c.filteredTotal.WithLabelValues(string(reason)).Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Filtered[reason]++
}

// IncLead counts one admitted lead.
func (c *Collector) IncLead() {
	c.leadsTotal.Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Leads++
}

// IncReply, IncDM and IncNotification count outbound actions.
func (c *Collector) IncReply() {
	c.responsesTotal.WithLabelValues("reply").Inc()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Replies++
}

func (c *Collector) IncDM() {
	c.responsesTotal.WithLabelValues("dm").Inc()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.DMs++
}

func (c *Collector) IncNotification() {
	c.responsesTotal.WithLabelValues("email").Inc()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Notifications++
}

// IncError counts one error of the given class.
func (c *Collector) IncError(class string) {
	c.errorsTotal.WithLabelValues(class).Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Errors[class]++
}

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.stats
	out.Filtered = make(map[models.FilterReason]int64, len(c.stats.Filtered))
	for k, v := range c.stats.Filtered {
		out.Filtered[k] = v
	}
	out.Errors = make(map[string]int64, len(c.stats.Errors))
	for k, v := range c.stats.Errors {
		out.Errors[k] = v
	}
	return out
}

// LogSummary emits the one-line progress summary.
func (c *Collector) LogSummary(logger *slog.Logger, label string) {
	s := c.Snapshot()

	logger.Info(label,
		"checked", s.Processed,
		"posts", s.Posts,
		"comments", s.Comments,
		"filtered", s.FilteredTotal(),
		"no_intent", s.Filtered[models.ReasonNoIntent],
		"negative", s.Filtered[models.ReasonNegative],
		"no_seek", s.Filtered[models.ReasonNoSeeking],
		"low_sim", s.Filtered[models.ReasonLowSimilarity],
		"llm_fail", s.Filtered[models.ReasonVerifierNo],
		"leads", s.Leads,
		"replies", s.Replies,
		"dms", s.DMs,
		"errors_processing", s.Errors["processing"],
		"errors_responding", s.Errors["responding"],
	)
}
