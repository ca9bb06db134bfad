package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"quality-portal/document-control-backend/internal/documents"
	"quality-portal/document-control-backend/pkg/workflows"
)

// ObsolescencePolicy selects what the obsolescence sweep does with an
// EFFECTIVE document whose periodic review is overdue and has no renewal in
// progress.
type ObsolescencePolicy string

const (
	// PolicyFlag flags the document for mandatory review without changing its
	// state.
	PolicyFlag ObsolescencePolicy = "flag"
	// PolicyRetire supersedes the document into OBSOLETE.
	PolicyRetire ObsolescencePolicy = "retire"
)

// Config carries the sweep cadences and policy. Cadences are operational
// tuning parameters, not engine semantics.
type Config struct {
	EffectiveSweepCron string
	TimeoutSweepCron   string
	ReviewSweepCron    string
	ObsolescencePolicy ObsolescencePolicy
	ReviewSLA          time.Duration
	ApprovalSLA        time.Duration
	SweepTimeout       time.Duration
}

// DefaultConfig returns the default sweep configuration: hourly activation,
// four-hourly timeout checks, daily obsolescence review.
func DefaultConfig() Config {
	return Config{
		EffectiveSweepCron: "0 * * * *",
		TimeoutSweepCron:   "0 */4 * * *",
		ReviewSweepCron:    "30 2 * * *",
		ObsolescencePolicy: PolicyFlag,
		ReviewSLA:          72 * time.Hour,
		ApprovalSLA:        120 * time.Hour,
		SweepTimeout:       10 * time.Minute,
	}
}

// Result summarizes one sweep run. Per-document failures are collected, never
// propagated, so one failing document cannot abort the sweep for the rest.
type Result struct {
	Scanned      int
	Transitioned int
	Skipped      int
	Failures     []error
}

// Sweeper is the time-driven source of transition attempts, acting under the
// system actor identity.
type Sweeper struct {
	repo     documents.Repository
	attempt  documents.Attempter
	versions *documents.VersionManager
	logger   *zap.Logger
	cfg      Config
	cron     *cron.Cron
	now      func() time.Time

	mu      sync.Mutex
	running bool

	// Per-sweep in-flight guards: a tick that fires while the previous run of
	// the same sweep is still going is skipped.
	effectiveBusy atomic.Bool
	timeoutBusy   atomic.Bool
	reviewBusy    atomic.Bool
}

// New creates a Sweeper.
func New(repo documents.Repository, attempt documents.Attempter, versions *documents.VersionManager, logger *zap.Logger, cfg Config) *Sweeper {
	return &Sweeper{
		repo:     repo,
		attempt:  attempt,
		versions: versions,
		logger:   logger,
		cfg:      cfg,
		cron:     cron.New(),
		now:      time.Now,
	}
}

// Start registers the sweep jobs and starts the cron loop.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("sweeper already running")
	}

	jobs := []struct {
		name string
		expr string
		run  func(ctx context.Context) Result
		busy *atomic.Bool
	}{
		{"effective_date_sweep", s.cfg.EffectiveSweepCron, s.RunEffectiveSweep, &s.effectiveBusy},
		{"timeout_sweep", s.cfg.TimeoutSweepCron, s.RunTimeoutSweep, &s.timeoutBusy},
		{"obsolescence_sweep", s.cfg.ReviewSweepCron, s.RunObsolescenceSweep, &s.reviewBusy},
	}
	for _, job := range jobs {
		job := job
		if _, err := s.cron.AddFunc(job.expr, func() {
			if !job.busy.CompareAndSwap(false, true) {
				s.logger.Warn("sweep still running, skipping tick", zap.String("sweep", job.name))
				return
			}
			defer job.busy.Store(false)

			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SweepTimeout)
			defer cancel()
			res := job.run(ctx)
			s.logResult(job.name, res)
		}); err != nil {
			return fmt.Errorf("failed to register %s: %w", job.name, err)
		}
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("sweeper started",
		zap.String("effective_cron", s.cfg.EffectiveSweepCron),
		zap.String("timeout_cron", s.cfg.TimeoutSweepCron),
		zap.String("review_cron", s.cfg.ReviewSweepCron),
		zap.String("obsolescence_policy", string(s.cfg.ObsolescencePolicy)))
	return nil
}

// Stop stops the cron loop and waits for in-flight jobs.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("sweeper stopped")
}

// RunEffectiveSweep activates APPROVED_PENDING_EFFECTIVE documents whose
// effective date has arrived, then issues the supersede follow-up for each
// activated document's predecessor.
func (s *Sweeper) RunEffectiveSweep(ctx context.Context) Result {
	var res Result
	docs, err := s.repo.ListDocuments(ctx, workflows.StateApprovedPendingEffective)
	if err != nil {
		res.Failures = append(res.Failures, fmt.Errorf("effective sweep: list failed: %w", err))
		return res
	}

	now := s.now()
	for i := range docs {
		doc := docs[i]
		res.Scanned++

		// Guard pre-check: a document moved by a concurrent run is skipped, not
		// errored. The executor re-checks under the document lock.
		if doc.EffectiveDate == nil || now.Before(startOfDay(*doc.EffectiveDate)) {
			res.Skipped++
			continue
		}

		_, err := s.attempt.Attempt(ctx, doc.Key(), workflows.ActionActivate, workflows.SystemActor(), workflows.Payload{})
		if rejected(err) {
			res.Skipped++
			continue
		}
		if err != nil {
			res.Failures = append(res.Failures, fmt.Errorf("activate %s: %w", doc.Key(), err))
			continue
		}
		res.Transitioned++

		activated, err := s.repo.GetDocument(ctx, doc.Key())
		if err != nil || activated == nil {
			res.Failures = append(res.Failures, fmt.Errorf("reload %s after activation: %w", doc.Key(), err))
			continue
		}
		if err := s.versions.SupersedePredecessor(ctx, activated); err != nil {
			// Activation stands; the failed supersede is surfaced for manual
			// remediation.
			res.Failures = append(res.Failures, err)
		}
	}
	return res
}

// RunTimeoutSweep escalates documents stuck in UNDER_REVIEW or
// PENDING_APPROVAL past their SLA. The action is a self-loop; state is
// unchanged and the guard limits escalation to once per state occupancy.
func (s *Sweeper) RunTimeoutSweep(ctx context.Context) Result {
	var res Result
	docs, err := s.repo.ListDocuments(ctx, workflows.StateUnderReview, workflows.StatePendingApproval)
	if err != nil {
		res.Failures = append(res.Failures, fmt.Errorf("timeout sweep: list failed: %w", err))
		return res
	}

	now := s.now()
	for i := range docs {
		doc := docs[i]
		res.Scanned++

		sla := s.cfg.ReviewSLA
		if doc.State == workflows.StatePendingApproval {
			sla = s.cfg.ApprovalSLA
		}
		if now.Sub(doc.StateEnteredAt) < sla {
			res.Skipped++
			continue
		}
		if doc.EscalatedAt != nil && !doc.EscalatedAt.Before(doc.StateEnteredAt) {
			res.Skipped++
			continue
		}

		_, err := s.attempt.Attempt(ctx, doc.Key(), workflows.ActionEscalateTimeout, workflows.SystemActor(), workflows.Payload{
			Comment: fmt.Sprintf("time in %s exceeded SLA of %s", doc.State, sla),
		})
		if rejected(err) {
			res.Skipped++
			continue
		}
		if err != nil {
			res.Failures = append(res.Failures, fmt.Errorf("escalate %s: %w", doc.Key(), err))
			continue
		}
		res.Transitioned++
	}
	return res
}

// RunObsolescenceSweep handles EFFECTIVE documents whose periodic review is
// overdue with no renewal in progress: flagged for mandatory review or retired,
// per configured policy.
func (s *Sweeper) RunObsolescenceSweep(ctx context.Context) Result {
	var res Result
	docs, err := s.repo.ListDocuments(ctx, workflows.StateEffective)
	if err != nil {
		res.Failures = append(res.Failures, fmt.Errorf("obsolescence sweep: list failed: %w", err))
		return res
	}

	now := s.now()
	for i := range docs {
		doc := docs[i]
		res.Scanned++

		if doc.ReviewDue == nil || now.Before(startOfDay(*doc.ReviewDue)) {
			res.Skipped++
			continue
		}

		renewal, err := s.renewalInProgress(ctx, &doc)
		if err != nil {
			res.Failures = append(res.Failures, fmt.Errorf("check renewals of %s: %w", doc.Key(), err))
			continue
		}
		if renewal {
			res.Skipped++
			continue
		}

		action := workflows.ActionFlagReviewOverdue
		payload := workflows.Payload{Comment: "periodic review overdue"}
		if s.cfg.ObsolescencePolicy == PolicyRetire {
			action = workflows.ActionSupersede
			payload = workflows.Payload{RetirementReason: "periodic review overdue; retired per policy"}
		}

		_, err = s.attempt.Attempt(ctx, doc.Key(), action, workflows.SystemActor(), payload)
		if rejected(err) {
			res.Skipped++
			continue
		}
		if err != nil {
			res.Failures = append(res.Failures, fmt.Errorf("%s %s: %w", action, doc.Key(), err))
			continue
		}
		res.Transitioned++
	}
	return res
}

// renewalInProgress reports whether a newer version of the document exists in
// any non-obsolete state.
func (s *Sweeper) renewalInProgress(ctx context.Context, doc *documents.Document) (bool, error) {
	versions, err := s.repo.ListVersions(ctx, doc.Number)
	if err != nil {
		return false, err
	}
	for _, v := range versions {
		if v.Version > doc.Version && v.State != workflows.StateObsolete {
			return true, nil
		}
	}
	return false, nil
}

// rejected reports whether err is a typed workflow rejection, meaning the
// document no longer satisfies the guard and the sweep should skip it.
func rejected(err error) bool {
	var rej *workflows.Rejection
	return errors.As(err, &rej)
}

func (s *Sweeper) logResult(name string, res Result) {
	fields := []zap.Field{
		zap.String("sweep", name),
		zap.Int("scanned", res.Scanned),
		zap.Int("transitioned", res.Transitioned),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", len(res.Failures)),
	}
	if len(res.Failures) > 0 {
		fields = append(fields, zap.Error(errors.Join(res.Failures...)))
		s.logger.Error("sweep completed with failures", fields...)
		return
	}
	s.logger.Info("sweep completed", fields...)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
