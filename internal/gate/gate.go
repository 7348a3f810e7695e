// Package gate enforces per-document authorization between ranking and
// answer composition. Every candidate gets an independent check; checks
// are fanned out concurrently and reassembled in rank order. Any check
// that errors or times out blocks its document: the gate fails closed.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/answergate/answergate/internal/authz"
	"github.com/answergate/answergate/internal/corpus"
	"github.com/answergate/answergate/internal/ranker"
	agerrors "github.com/answergate/answergate/pkg/errors"
	"github.com/answergate/answergate/pkg/metrics"
	"github.com/answergate/answergate/pkg/resilience"
)

// Allowed carries the documents that passed their authorization check.
// It is the only input type the composer accepts, and only the gate can
// construct a non-empty value, so unchecked ranker output cannot reach
// answer composition.
type Allowed struct {
	docs []corpus.Document
}

// Docs returns the allowed documents in rank order.
func (a Allowed) Docs() []corpus.Document {
	return a.docs
}

// Len returns the number of allowed documents.
func (a Allowed) Len() int {
	return len(a.docs)
}

// Report is the outcome of gating one request's candidate set.
type Report struct {
	Allowed    Allowed
	BlockedIDs []string
	Decisions  []authz.Decision
}

// Systemic reports whether every check in the request failed with an
// availability error. The caller surfaces that as a dependency fault
// rather than "legitimately blocked".
func (r Report) Systemic() bool {
	if len(r.Decisions) == 0 {
		return false
	}
	for _, d := range r.Decisions {
		if d.Err == nil || !errors.Is(d.Err, agerrors.ErrAuthorizationUnavailable) {
			return false
		}
	}
	return true
}

// Gate issues authorization checks through the configured decision point.
type Gate struct {
	checker      authz.Checker
	checkTimeout time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// New creates a Gate. metrics may be nil (tests).
func New(checker authz.Checker, checkTimeout time.Duration, m *metrics.Metrics) *Gate {
	if checkTimeout <= 0 {
		checkTimeout = 2 * time.Second
	}
	return &Gate{
		checker:      checker,
		checkTimeout: checkTimeout,
		metrics:      m,
		logger:       slog.Default().With("component", "authorization-gate"),
	}
}

// Filter checks every candidate for the "view" relation and partitions the
// set into allowed documents and blocked ids, both preserving rank order.
// It waits for all outstanding checks; a slow check resolves via its
// per-check timeout to blocked, never to allowed, and is never dropped.
func (g *Gate) Filter(ctx context.Context, identity authz.Identity, candidates []ranker.ScoredCandidate) Report {
	decisions := make([]authz.Decision, len(candidates))

	// Fan out one goroutine per candidate; results land in the slot
	// matching the candidate's rank so reassembly is deterministic.
	group, groupCtx := errgroup.WithContext(ctx)
	for i, cand := range candidates {
		group.Go(func() error {
			decisions[i] = g.check(groupCtx, identity, cand.Doc.ID)
			return nil
		})
	}
	// Check errors are captured per-decision, never returned.
	_ = group.Wait()

	report := Report{Decisions: decisions}
	allowedDocs := make([]corpus.Document, 0, len(candidates))
	for i, cand := range candidates {
		if decisions[i].Allowed {
			allowedDocs = append(allowedDocs, cand.Doc)
		} else {
			report.BlockedIDs = append(report.BlockedIDs, cand.Doc.ID)
		}
	}
	report.Allowed = Allowed{docs: allowedDocs}

	g.logger.DebugContext(ctx, "candidates gated",
		"identity", identity.Subject,
		"candidates", len(candidates),
		"allowed", len(allowedDocs),
		"blocked", len(report.BlockedIDs),
	)
	return report
}

// check runs a single authorization query under the per-check timeout.
// The result is stored atomically because the timeout wrapper abandons
// the check goroutine when the budget expires.
func (g *Gate) check(ctx context.Context, identity authz.Identity, docID string) authz.Decision {
	start := time.Now()
	var allowed atomic.Bool
	err := resilience.WithTimeout(ctx, g.checkTimeout, "authz check "+docID, func(ctx context.Context) error {
		ok, checkErr := g.checker.Check(ctx, identity, authz.RelationView, authz.ObjectTypeDocument, docID)
		allowed.Store(ok && checkErr == nil)
		return checkErr
	})
	elapsed := time.Since(start)

	if g.metrics != nil {
		g.metrics.AuthzCheckLatency.Observe(elapsed.Seconds())
		g.metrics.AuthzChecksTotal.WithLabelValues(decisionLabel(allowed.Load(), err)).Inc()
	}

	if err != nil {
		// A timed-out or failed check is blocked, never allowed.
		if errors.Is(err, context.DeadlineExceeded) {
			err = errors.Join(agerrors.ErrAuthorizationUnavailable, err)
		}
		g.logger.WarnContext(ctx, "authorization check failed, blocking candidate",
			"document_id", docID,
			"identity", identity.Subject,
			"error", err,
		)
		return authz.Decision{DocumentID: docID, Allowed: false, Err: err}
	}
	return authz.Decision{DocumentID: docID, Allowed: allowed.Load()}
}

func decisionLabel(allowed bool, err error) string {
	switch {
	case err == nil && allowed:
		return "allowed"
	case err == nil:
		return "denied"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
