package usecase

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/naka-gawa/github-contrib/internal/apperror"
	"github.com/naka-gawa/github-contrib/internal/domain"
	"github.com/naka-gawa/github-contrib/internal/gateway"
	"github.com/naka-gawa/github-contrib/internal/retry"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// MaxConcurrency caps the per-repository commit fetch pool.
const MaxConcurrency = 10

// RepoFetcher retrieves everything needed to aggregate one repository.
type RepoFetcher struct {
	gateway        gateway.Fetcher
	profiles       gateway.ProfileResolver
	retrier        *retry.Retrier
	maxConcurrency int
	logger         logrus.FieldLogger
}

// NewRepoFetcher creates a RepoFetcher. profiles may be nil, in which case names
// come only from the contributor listing.
func NewRepoFetcher(fetcher gateway.Fetcher, profiles gateway.ProfileResolver, retrier *retry.Retrier, maxConcurrency int, logger logrus.FieldLogger) *RepoFetcher {
	if maxConcurrency <= 0 || maxConcurrency > MaxConcurrency {
		maxConcurrency = MaxConcurrency
	}
	return &RepoFetcher{
		gateway:        fetcher,
		profiles:       profiles,
		retrier:        retrier,
		maxConcurrency: maxConcurrency,
		logger:         logger,
	}
}

// FetchRepository fetches contributors, in-window pull requests with their reviews,
// and every contributor's commits since floor. It returns only after all
// concurrent commit fetches have finished.
func (f *RepoFetcher) FetchRepository(ctx context.Context, repo string, floor time.Time) (*domain.RepoBatch, error) {
	log := f.logger.WithField("repo", repo)

	contributors, err := retry.Value(ctx, f.retrier, "list contributors", func(ctx context.Context) ([]domain.Contributor, error) {
		return f.gateway.ListContributors(ctx, repo)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list contributors of %s: %w", repo, err)
	}
	log.WithField("contributors", len(contributors)).Debug("Fetched contributors")

	prs, reviews, err := f.FetchPullRequests(ctx, repo, floor)
	if err != nil {
		return nil, err
	}
	log.WithField("pull_requests", len(prs)).Debug("Fetched pull requests and reviews")

	commits, err := f.FetchCommits(ctx, repo, contributors, floor)
	if err != nil {
		return nil, err
	}

	return &domain.RepoBatch{
		Repository:   repo,
		Contributors: contributors,
		Commits:      commits,
		PullRequests: prs,
		Reviews:      reviews,
	}, nil
}

// FetchPullRequests pages pull requests newest first and stops at the first one
// created before floor. Reviews of each in-window pull request are fetched once.
func (f *RepoFetcher) FetchPullRequests(ctx context.Context, repo string, floor time.Time) ([]domain.PullRequest, map[int][]domain.Review, error) {
	var inWindow []domain.PullRequest
	page := 1
	for {
		var next int
		items, err := retry.Value(ctx, f.retrier, "list pull requests", func(ctx context.Context) ([]domain.PullRequest, error) {
			items, n, err := f.gateway.ListPullRequestsPage(ctx, repo, page)
			next = n
			return items, err
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list pull requests of %s: %w", repo, err)
		}

		reachedFloor := false
		for _, pr := range items {
			if pr.CreatedAt.Before(floor) {
				reachedFloor = true
				break
			}
			inWindow = append(inWindow, pr)
		}
		if reachedFloor || next == 0 {
			break
		}
		page = next
	}

	reviews := make(map[int][]domain.Review, len(inWindow))
	for _, pr := range inWindow {
		number := pr.Number
		rs, err := retry.Value(ctx, f.retrier, "list reviews", func(ctx context.Context) ([]domain.Review, error) {
			return f.gateway.ListReviews(ctx, repo, number)
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list reviews of %s#%d: %w", repo, number, err)
		}
		reviews[number] = rs
	}
	return inWindow, reviews, nil
}

// FetchCommits fetches each contributor's commits concurrently. A failure for one
// contributor leaves that contributor with no commits and does not affect the
// others. An empty-repository signal from any fetch applies to the whole repository.
// Profiles are resolved in the same unit of work and written back into contributors.
func (f *RepoFetcher) FetchCommits(ctx context.Context, repo string, contributors []domain.Contributor, floor time.Time) (map[string][]domain.Commit, error) {
	results := make([][]domain.Commit, len(contributors))
	var empty atomic.Bool

	var g errgroup.Group
	g.SetLimit(min(f.maxConcurrency, max(len(contributors), 1)))
	for i := range contributors {
		g.Go(func() error {
			login := contributors[i].Login
			log := f.logger.WithFields(logrus.Fields{"repo": repo, "user": login})

			commits, err := retry.Value(ctx, f.retrier, "list commits", func(ctx context.Context) ([]domain.Commit, error) {
				return f.gateway.ListCommits(ctx, repo, login, floor)
			})
			switch {
			case err == nil:
				results[i] = commits
			case apperror.IsRepositoryEmpty(err):
				empty.Store(true)
			default:
				log.WithError(err).Warn("Failed to fetch commits, counting none for this contributor")
			}

			f.resolveProfile(ctx, &contributors[i], log)
			return nil
		})
	}
	_ = g.Wait()

	if empty.Load() {
		return nil, apperror.RepositoryEmpty("list commits", fmt.Errorf("%s has no commits", repo))
	}

	out := make(map[string][]domain.Commit, len(contributors))
	for i, c := range contributors {
		if results[i] == nil {
			results[i] = []domain.Commit{}
		}
		out[c.Login] = results[i]
	}
	return out, nil
}

func (f *RepoFetcher) resolveProfile(ctx context.Context, c *domain.Contributor, log logrus.FieldLogger) {
	if f.profiles == nil || c.NameSource == domain.NameVerified {
		return
	}
	p, err := f.profiles.ResolveProfile(ctx, c.Login)
	if err != nil {
		log.WithError(err).Debug("Profile lookup failed, keeping contributor name as is")
		return
	}
	c.ApplyProfile(p)
}
