package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/naka-gawa/github-contrib/internal/apperror"
	"github.com/naka-gawa/github-contrib/internal/domain"
	"github.com/naka-gawa/github-contrib/internal/gateway"
	"github.com/naka-gawa/github-contrib/internal/retry"
	"github.com/sirupsen/logrus"
)

// Phase is a state of the scan state machine.
type Phase string

const (
	PhaseInit             Phase = "init"
	PhaseFetchingRepoList Phase = "fetching_repo_list"
	PhaseProcessingRepo   Phase = "processing_repo"
	PhaseCheckpointing    Phase = "checkpointing"
	PhaseInterrupted      Phase = "interrupted"
	PhaseCompleted        Phase = "completed"
)

// Status is how a scan ended.
type Status string

const (
	StatusCompleted   Status = "completed"
	StatusInterrupted Status = "interrupted"
)

// Checkpointer persists scan state between repositories.
type Checkpointer interface {
	Save(ctx context.Context, state *domain.ScanState) error
	Delete(ctx context.Context) error
}

// Exporter writes scan results for downstream consumers.
type Exporter interface {
	WriteTable(state *domain.ScanState) error
	WriteReport(state *domain.ScanState, totalRepositories int) error
}

// Result summarizes a scan run.
type Result struct {
	Status       Status
	Repositories int // candidates after resume filtering
	Processed    []string
	Empty        []string
	Failed       []string
}

// Orchestrator drives the sequential repository loop.
type Orchestrator struct {
	gateway      gateway.Fetcher
	fetcher      *RepoFetcher
	aggregator   *Aggregator
	retrier      *retry.Retrier
	checkpointer Checkpointer
	exporter     Exporter
	logger       logrus.FieldLogger

	phase   Phase
	onPhase func(Phase)
}

func NewOrchestrator(
	fetcher gateway.Fetcher,
	repoFetcher *RepoFetcher,
	aggregator *Aggregator,
	retrier *retry.Retrier,
	checkpointer Checkpointer,
	exporter Exporter,
	logger logrus.FieldLogger,
) *Orchestrator {
	return &Orchestrator{
		gateway:      fetcher,
		fetcher:      repoFetcher,
		aggregator:   aggregator,
		retrier:      retrier,
		checkpointer: checkpointer,
		exporter:     exporter,
		logger:       logger,
		phase:        PhaseInit,
	}
}

// OnPhase registers a callback invoked on every phase transition.
func (o *Orchestrator) OnPhase(fn func(Phase)) {
	o.onPhase = fn
}

func (o *Orchestrator) setPhase(p Phase) {
	o.phase = p
	o.logger.WithField("phase", string(p)).Debug("Scan phase changed")
	if o.onPhase != nil {
		o.onPhase(p)
	}
}

// Run scans every organization repository not yet in state's processed set.
//
// Cancelling ctx requests a graceful stop. It is checked once per repository; a
// repository already being fetched is completed and aggregated first, then the
// state is checkpointed and Run returns with StatusInterrupted.
func (o *Orchestrator) Run(ctx context.Context, state *domain.ScanState) (*Result, error) {
	work := context.WithoutCancel(ctx)
	result := &Result{}

	if ctx.Err() != nil {
		return o.interrupt(work, state, result)
	}

	o.setPhase(PhaseFetchingRepoList)
	repos, err := retry.Value(work, o.retrier, "list organization repositories", func(ctx context.Context) ([]domain.Repository, error) {
		return o.gateway.ListOrganizationRepositories(ctx, state.Organization)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories of %s: %w", state.Organization, err)
	}

	candidates := make([]domain.Repository, 0, len(repos))
	for _, r := range repos {
		if !state.IsProcessed(r.FullName) {
			candidates = append(candidates, r)
		}
	}
	result.Repositories = len(candidates)
	o.logger.WithFields(logrus.Fields{
		"organization": state.Organization,
		"repositories": len(repos),
		"remaining":    len(candidates),
		"since":        state.Floor.Format(domain.DateLayout),
	}).Info("Scanning organization repositories")

	for i, repo := range candidates {
		if ctx.Err() != nil {
			return o.interrupt(work, state, result)
		}

		o.setPhase(PhaseProcessingRepo)
		o.logger.WithField("repo", repo.FullName).Infof("Scanning repository %d/%d", i+1, len(candidates))
		o.processRepository(work, state, repo, result)

		o.setPhase(PhaseCheckpointing)
		o.checkpoint(work, state)
	}

	if err := o.exporter.WriteReport(state, len(state.Processed)); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	if err := o.exporter.WriteTable(state); err != nil {
		return nil, fmt.Errorf("failed to write contributions table: %w", err)
	}
	if err := o.checkpointer.Delete(work); err != nil {
		o.logger.WithError(err).Warn("Failed to delete checkpoint after completed scan")
	}
	o.setPhase(PhaseCompleted)
	result.Status = StatusCompleted
	o.logger.WithFields(logrus.Fields{
		"processed": len(result.Processed),
		"empty":     len(result.Empty),
		"failed":    len(result.Failed),
	}).Info("Scan completed")
	return result, nil
}

// processRepository fetches and merges one repository. Empty repositories are
// marked processed; other failures are left unmarked so a resume retries them.
func (o *Orchestrator) processRepository(ctx context.Context, state *domain.ScanState, repo domain.Repository, result *Result) {
	log := o.logger.WithField("repo", repo.FullName)
	started := time.Now()

	batch, err := o.fetcher.FetchRepository(ctx, repo.FullName, state.Floor)
	switch {
	case err == nil:
		summary := o.aggregator.Merge(state, batch)
		state.MarkProcessed(repo.FullName)
		result.Processed = append(result.Processed, repo.FullName)
		log.WithFields(logrus.Fields{
			"contributors": summary.Contributors,
			"active":       summary.Active,
			"total":        summary.Totals.Total,
			"elapsed":      time.Since(started).Round(time.Millisecond).String(),
		}).Info("Repository aggregated")
	case apperror.IsRepositoryEmpty(err):
		state.MarkProcessed(repo.FullName)
		result.Empty = append(result.Empty, repo.FullName)
		log.Info("Skipping empty repository")
	default:
		result.Failed = append(result.Failed, repo.FullName)
		log.WithError(err).Error("Error processing repository, it will be retried on resume")
	}
}

func (o *Orchestrator) checkpoint(ctx context.Context, state *domain.ScanState) {
	if err := o.checkpointer.Save(ctx, state); err != nil {
		o.logger.WithError(err).Error("Failed to save checkpoint")
	}
	if err := o.exporter.WriteTable(state); err != nil {
		o.logger.WithError(err).Error("Failed to write contributions table")
	}
}

func (o *Orchestrator) interrupt(ctx context.Context, state *domain.ScanState, result *Result) (*Result, error) {
	o.setPhase(PhaseInterrupted)
	o.logger.Warn("Interrupt received, saving progress before stopping")
	o.setPhase(PhaseCheckpointing)
	if err := o.checkpointer.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save checkpoint on interrupt: %w", err)
	}
	if err := o.exporter.WriteTable(state); err != nil {
		o.logger.WithError(err).Error("Failed to write contributions table")
	}
	if err := o.exporter.WriteReport(state, len(state.Processed)); err != nil {
		o.logger.WithError(err).Error("Failed to write report")
	}
	result.Status = StatusInterrupted
	return result, nil
}
