// Package usecase contains the business logic of the application.
package usecase

import (
	"github.com/naka-gawa/github-contrib/internal/domain"
	"github.com/sirupsen/logrus"
)

// Aggregator merges one repository's fetched data into the scan state.
type Aggregator struct {
	logger logrus.FieldLogger
}

// NewAggregator creates a new Aggregator instance.
func NewAggregator(logger logrus.FieldLogger) *Aggregator {
	return &Aggregator{logger: logger}
}

// RepoSummary describes the outcome of merging one repository.
type RepoSummary struct {
	Repository   string
	Contributors int
	Active       int
	Totals       domain.ContributionRecord
}

// Merge computes per-contributor counts for batch and folds them into state.
// Repository metrics are written once per contributor with a non-zero total,
// global records and daily series are accumulated. Every contributor's profile is
// recorded. Merging a repository that is already marked processed is a no-op.
func (a *Aggregator) Merge(state *domain.ScanState, batch *domain.RepoBatch) RepoSummary {
	repo := batch.Repository
	summary := RepoSummary{Repository: repo}
	if state.IsProcessed(repo) {
		a.logger.WithField("repo", repo).Warn("Repository already aggregated, ignoring duplicate merge")
		return summary
	}

	seen := make(map[string]struct{}, len(batch.Contributors))
	for _, c := range batch.Contributors {
		if _, dup := seen[c.Login]; dup {
			continue
		}
		seen[c.Login] = struct{}{}
		summary.Contributors++
		state.RecordProfile(c)

		commits := batch.Commits[c.Login]
		var created, merged, reviewed []domain.PullRequest
		for _, pr := range batch.PullRequests {
			if pr.AuthorLogin == c.Login {
				created = append(created, pr)
				if pr.Merged {
					merged = append(merged, pr)
				}
			}
			if batch.ReviewedBy(pr.Number, c.Login) {
				reviewed = append(reviewed, pr)
			}
		}

		rec := domain.NewRecord(len(commits), len(created), len(merged), len(reviewed))
		if rec.Total == 0 {
			continue
		}
		summary.Active++
		summary.Totals.Add(rec)

		state.SetRepoMetric(c.Login, repo, rec)
		state.AddContribution(c.Login, rec)
		for _, commit := range commits {
			state.AddDaily(c.Login, commit.AuthorDate, domain.KindCommits, 1)
		}
		for _, pr := range created {
			state.AddDaily(c.Login, pr.CreatedAt, domain.KindPRsCreated, 1)
		}
		for _, pr := range merged {
			state.AddDaily(c.Login, pr.MergeDate(), domain.KindPRsMerged, 1)
		}

		a.logger.WithFields(logrus.Fields{
			"repo":         repo,
			"user":         c.Login,
			"commits":      rec.Commits,
			"prs_created":  rec.PRsCreated,
			"prs_merged":   rec.PRsMerged,
			"prs_reviewed": rec.PRsReviewed,
		}).Debug("Aggregated contributor")
	}
	return summary
}
