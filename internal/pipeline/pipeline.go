// Package pipeline orchestrates one query end to end: tokenize and rank,
// gate every candidate through authorization, then compose the answer
// from the allowed subset. The gate is never skipped, and nothing
// downstream of ranking reads document text without an allowed decision.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/answergate/answergate/internal/audit"
	"github.com/answergate/answergate/internal/authz"
	"github.com/answergate/answergate/internal/composer"
	"github.com/answergate/answergate/internal/gate"
	"github.com/answergate/answergate/internal/ranker"
	"github.com/answergate/answergate/internal/rankcache"
	agerrors "github.com/answergate/answergate/pkg/errors"
	"github.com/answergate/answergate/pkg/logger"
	"github.com/answergate/answergate/pkg/metrics"
)

// Outcome labels for metrics and the audit trail.
const (
	OutcomeComposed       = "composed"
	OutcomeEmptyAfterGate = "empty_after_gate"
	OutcomeNoCandidates   = "no_candidates"
	OutcomeUnavailable    = "authz_unavailable"
)

// Pipeline wires the per-request flow over process-lifetime components.
// All fields are read-only after construction, so one Pipeline serves
// concurrent requests without synchronisation.
type Pipeline struct {
	ranker  *ranker.Ranker
	gate    *gate.Gate
	cache   *rankcache.Cache
	trail   *audit.Trail
	metrics *metrics.Metrics
	topK    int
}

// Option configures optional collaborators.
type Option func(*Pipeline)

// WithRankCache enables the Redis-backed candidate cache.
func WithRankCache(c *rankcache.Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithAuditTrail enables audit event publishing.
func WithAuditTrail(t *audit.Trail) Option {
	return func(p *Pipeline) { p.trail = t }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func New(r *ranker.Ranker, g *gate.Gate, topK int, opts ...Option) *Pipeline {
	if topK <= 0 {
		topK = 3
	}
	p := &Pipeline{ranker: r, gate: g, topK: topK}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Answer runs the full pipeline for one authenticated caller. On success
// the result carries the composed answer plus the used and blocked id
// lists. ErrNoAuthorizedContent is returned when no candidate survives
// the gate (the result still carries the blocked ids for transparency);
// ErrAuthorizationUnavailable is returned only when every check in the
// request failed against the decision point.
func (p *Pipeline) Answer(ctx context.Context, identity authz.Identity, question string) (composer.AnswerResult, error) {
	start := time.Now()
	log := logger.FromContext(ctx)

	candidates := p.rank(ctx, question)
	if p.metrics != nil {
		p.metrics.CandidatesRanked.Observe(float64(len(candidates)))
	}
	if len(candidates) == 0 {
		result := composer.AnswerResult{Used: []string{}, Blocked: []string{}}
		p.finish(ctx, identity, question, OutcomeNoCandidates, result, start)
		return result, fmt.Errorf("%w: no documents match the question", agerrors.ErrNoAuthorizedContent)
	}

	report := p.gate.Filter(ctx, identity, candidates)
	if p.metrics != nil {
		p.metrics.DocumentsUsed.Add(float64(report.Allowed.Len()))
		p.metrics.DocumentsBlocked.Add(float64(len(report.BlockedIDs)))
	}

	if report.Systemic() {
		result := composer.AnswerResult{Used: []string{}, Blocked: append([]string{}, report.BlockedIDs...)}
		p.finish(ctx, identity, question, OutcomeUnavailable, result, start)
		return result, fmt.Errorf("%w: all %d checks failed", agerrors.ErrAuthorizationUnavailable, len(report.Decisions))
	}

	result, ok := composer.Compose(question, report.Allowed)
	result.Blocked = append([]string{}, report.BlockedIDs...)
	if !ok {
		p.finish(ctx, identity, question, OutcomeEmptyAfterGate, result, start)
		return result, fmt.Errorf("%w: %d candidate(s) blocked", agerrors.ErrNoAuthorizedContent, len(report.BlockedIDs))
	}

	p.finish(ctx, identity, question, OutcomeComposed, result, start)
	log.DebugContext(ctx, "query answered",
		"identity", identity.Subject,
		"used", len(result.Used),
		"blocked", len(result.Blocked),
	)
	return result, nil
}

// rank returns the top-K candidates, through the cache when enabled.
// Ranking is identity-independent, which is what makes the shared cache
// safe; nothing authorization-related is stored.
func (p *Pipeline) rank(ctx context.Context, question string) []ranker.ScoredCandidate {
	if p.cache == nil {
		return p.ranker.Search(question, p.topK)
	}
	candidates, hit := p.cache.GetOrCompute(ctx, question, p.topK, func() []ranker.ScoredCandidate {
		return p.ranker.Search(question, p.topK)
	})
	if p.metrics != nil {
		if hit {
			p.metrics.RankCacheHitsTotal.Inc()
		} else {
			p.metrics.RankCacheMissesTotal.Inc()
		}
	}
	return candidates
}

func (p *Pipeline) finish(ctx context.Context, identity authz.Identity, question, outcome string, result composer.AnswerResult, start time.Time) {
	elapsed := time.Since(start)
	if p.metrics != nil {
		p.metrics.QueriesTotal.WithLabelValues(outcome).Inc()
		p.metrics.QueryLatency.Observe(elapsed.Seconds())
	}
	if p.trail != nil {
		p.trail.Record(audit.Event{
			RequestID:  logger.RequestID(ctx),
			Subject:    identity.Subject,
			Question:   question,
			Outcome:    outcome,
			UsedIDs:    result.Used,
			BlockedIDs: result.Blocked,
			DurationMS: elapsed.Milliseconds(),
			Timestamp:  time.Now().UTC(),
		})
	}
}
