// Package errreport aggregates, deduplicates, rate-limits and batches
// handler failures, delivering individual and grouped reports to an
// external sink. The whole subsystem is best-effort: a lost report is
// an accepted failure mode and must never stall the event loop.
package errreport

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"steward/pkg/retrylimit"
)

// Context carries where a failure happened.
type Context struct {
	Command string
	ActorID string
	GuildID string
}

// Record is one distinct failure with its occurrence history.
type Record struct {
	ID           string
	Message      string
	StackSummary string
	Category     Category
	Severity     Severity
	Ctx          Context
	Occurrences  []time.Time
}

// Report is what the sink receives: either a single failure, a
// grouped summary, or a trending alert.
type Report struct {
	Title    string
	Body     string
	Category Category
	Severity Severity
	Count    int
	Trending bool
}

// Sink delivers reports to the operator-facing destination.
type Sink interface {
	Deliver(r Report) error
}

// Options tunes the reporter windows and thresholds.
type Options struct {
	// RateWindow/RateThreshold: identical errors beyond the threshold
	// inside the window are dropped (still counted for trends).
	RateWindow    time.Duration
	RateThreshold int

	// TrendWindow/TrendThreshold: crossing the threshold inside the
	// longer window fires one standalone trending alert.
	TrendWindow    time.Duration
	TrendThreshold int

	// FlushInterval is the grouped-delivery cycle. Buckets of
	// GroupThreshold or more are summarized into one report.
	FlushInterval  time.Duration
	GroupThreshold int

	// MaxKeys caps the dedup maps so a pathological error storm
	// cannot grow memory without bound.
	MaxKeys int

	MinSpacing time.Duration
	Retry      retrylimit.Config
}

// DefaultOptions returns the production tuning.
func DefaultOptions() Options {
	return Options{
		RateWindow:     time.Minute,
		RateThreshold:  5,
		TrendWindow:    time.Hour,
		TrendThreshold: 5,
		FlushInterval:  15 * time.Second,
		GroupThreshold: 3,
		MaxKeys:        500,
		MinSpacing:     2 * time.Second,
		Retry:          retrylimit.DefaultConfig(),
	}
}

type trendState struct {
	times   []time.Time
	alerted bool
}

// Reporter is the in-memory aggregation state plus the delivery loop.
type Reporter struct {
	opts    Options
	sink    Sink
	log     zerolog.Logger
	limiter *retrylimit.Limiter

	mu     sync.Mutex
	queue  map[string]*Record
	rates  map[string][]time.Time
	trends map[string]*trendState
}

func New(sink Sink, opts Options, log zerolog.Logger) *Reporter {
	return &Reporter{
		opts:    opts,
		sink:    sink,
		log:     log,
		limiter: retrylimit.NewLimiter(opts.MinSpacing),
		queue:   make(map[string]*Record),
		rates:   make(map[string][]time.Time),
		trends:  make(map[string]*trendState),
	}
}

// Run drives periodic flushes until ctx is cancelled, then performs a
// final flush.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Flush(context.Background())
			return
		case <-ticker.C:
			r.Flush(ctx)
		}
	}
}

// Report ingests a failure. Never blocks on delivery and never
// returns an error: reporting failures about reporting would recurse.
func (r *Reporter) Report(err error, rctx Context) {
	if err == nil {
		return
	}

	category, severity := Classify(err)
	key := string(category) + ":" + err.Error()
	now := time.Now()

	r.mu.Lock()

	r.evictIfNeeded()

	// Trend window: always counted, even for rate-dropped errors.
	trend := r.trends[key]
	if trend == nil {
		trend = &trendState{}
		r.trends[key] = trend
	}
	trend.times = pruneWindow(append(trend.times, now), now, r.opts.TrendWindow)
	if len(trend.times) < r.opts.TrendThreshold {
		trend.alerted = false
	}
	fireTrend := len(trend.times) >= r.opts.TrendThreshold && !trend.alerted
	trendCount := len(trend.times)
	if fireTrend {
		trend.alerted = true
	}

	// Rate window: identical errors beyond the threshold are dropped.
	times := pruneWindow(append(r.rates[key], now), now, r.opts.RateWindow)
	r.rates[key] = times
	dropped := len(times) > r.opts.RateThreshold

	if !dropped {
		rec := r.queue[key]
		if rec == nil {
			rec = &Record{
				ID:           uuid.NewString(),
				Message:      err.Error(),
				StackSummary: stackSummary(3),
				Category:     category,
				Severity:     severity,
				Ctx:          rctx,
			}
			r.queue[key] = rec
		}
		rec.Occurrences = append(rec.Occurrences, now)
	}

	r.mu.Unlock()

	if fireTrend {
		go r.deliver(Report{
			Title:    fmt.Sprintf("Trending: %s", firstLine(err.Error())),
			Body:     fmt.Sprintf("`%s` occurred %d times within %s.", firstLine(err.Error()), trendCount, r.opts.TrendWindow),
			Category: category,
			Severity: severity,
			Count:    trendCount,
			Trending: true,
		})
	}
}

// Flush delivers the queued records: buckets at or above the group
// threshold as one summary each, the rest individually.
func (r *Reporter) Flush(ctx context.Context) {
	r.mu.Lock()
	pending := r.queue
	r.queue = make(map[string]*Record)
	r.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	type bucketKey struct {
		category Category
		severity Severity
	}
	buckets := make(map[bucketKey][]*Record)
	for _, rec := range pending {
		k := bucketKey{rec.Category, rec.Severity}
		buckets[k] = append(buckets[k], rec)
	}

	for k, records := range buckets {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if len(records) >= r.opts.GroupThreshold {
			r.deliver(summarize(k.category, k.severity, records))
			continue
		}
		for _, rec := range records {
			r.deliver(singleReport(rec))
		}
	}
}

// deliver pushes one report through the spacing limiter with a bounded
// retry, then drops it. Only local logging on failure.
func (r *Reporter) deliver(report Report) {
	if r.sink == nil {
		r.log.Debug().Str("title", report.Title).Msg("no error sink configured, dropping report")
		return
	}

	err := retrylimit.Do(context.Background(), r.limiter, r.opts.Retry, func() error {
		return r.sink.Deliver(report)
	})
	if err != nil {
		r.log.Warn().Err(err).Str("title", report.Title).Msg("error report dropped after retries")
	}
}

// evictIfNeeded keeps the dedup maps bounded. Called under the lock.
func (r *Reporter) evictIfNeeded() {
	if len(r.rates) < r.opts.MaxKeys {
		return
	}
	// Error storms are rare enough that wholesale reset beats LRU
	// bookkeeping here.
	r.rates = make(map[string][]time.Time)
	r.trends = make(map[string]*trendState)
}

func singleReport(rec *Record) Report {
	var b strings.Builder
	fmt.Fprintf(&b, "```%s```\n", rec.Message)
	if rec.Ctx.Command != "" {
		fmt.Fprintf(&b, "Command: `%s`\n", rec.Ctx.Command)
	}
	if rec.Ctx.GuildID != "" {
		fmt.Fprintf(&b, "Guild: `%s`\n", rec.Ctx.GuildID)
	}
	if rec.Ctx.ActorID != "" {
		fmt.Fprintf(&b, "Actor: `%s`\n", rec.Ctx.ActorID)
	}
	if rec.StackSummary != "" {
		fmt.Fprintf(&b, "At: `%s`\n", rec.StackSummary)
	}

	return Report{
		Title:    fmt.Sprintf("[%s/%s] %s", rec.Category, rec.Severity, firstLine(rec.Message)),
		Body:     b.String(),
		Category: rec.Category,
		Severity: rec.Severity,
		Count:    len(rec.Occurrences),
	}
}

func summarize(category Category, severity Severity, records []*Record) Report {
	total := 0
	var b strings.Builder
	for _, rec := range records {
		total += len(rec.Occurrences)
		fmt.Fprintf(&b, "- `%s` ×%d\n", firstLine(rec.Message), len(rec.Occurrences))
	}

	return Report{
		Title:    fmt.Sprintf("[%s/%s] %d distinct errors", category, severity, len(records)),
		Body:     b.String(),
		Category: category,
		Severity: severity,
		Count:    total,
	}
}

func pruneWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	return times[start:]
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// stackSummary renders the caller chain above the reporter, a few
// frames deep, as "file:line file:line".
func stackSummary(depth int) string {
	pcs := make([]uintptr, depth+8)
	n := runtime.Callers(3, pcs)
	if n == 0 {
		return ""
	}

	frames := runtime.CallersFrames(pcs[:n])
	var parts []string
	for len(parts) < depth {
		frame, more := frames.Next()
		if frame.Function != "" && !strings.Contains(frame.Function, "errreport") {
			parts = append(parts, fmt.Sprintf("%s:%d", trimPath(frame.File), frame.Line))
		}
		if !more {
			break
		}
	}
	return strings.Join(parts, " ")
}

func trimPath(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
