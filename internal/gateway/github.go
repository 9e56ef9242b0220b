// Package gateway provides a gateway to the GitHub API,
// abstracting away the underlying REST and GraphQL clients.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/naka-gawa/github-contrib/internal/apperror"
	"github.com/naka-gawa/github-contrib/internal/domain"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const perPage = 100

// Fetcher defines the behavior of a gateway for fetching information from GitHub.
// Every method performs one logical remote call; retries belong to the caller.
type Fetcher interface {
	ListOrganizationRepositories(ctx context.Context, org string) ([]domain.Repository, error)
	ListContributors(ctx context.Context, repo string) ([]domain.Contributor, error)
	ListCommits(ctx context.Context, repo, author string, since time.Time) ([]domain.Commit, error)
	// ListPullRequestsPage returns one page of pull requests, newest first, and the
	// next page number (0 on the last page).
	ListPullRequestsPage(ctx context.Context, repo string, page int) ([]domain.PullRequest, int, error)
	ListReviews(ctx context.Context, repo string, number int) ([]domain.Review, error)
}

// GitHubGateway is the concrete implementation of the Fetcher interface.
type GitHubGateway struct {
	restClient *github.Client
	limiter    *rate.Limiter
	logger     logrus.FieldLogger
}

// NewGitHubGateway creates a gateway on top of an authenticated HTTP client.
// requestsPerMinute paces outgoing requests; zero or less disables pacing.
func NewGitHubGateway(httpClient *http.Client, requestsPerMinute int, logger logrus.FieldLogger) *GitHubGateway {
	return &GitHubGateway{
		restClient: github.NewClient(httpClient),
		limiter:    NewLimiter(requestsPerMinute),
		logger:     logger,
	}
}

// Limiter returns the request pacing bucket so other clients can share the budget.
func (g *GitHubGateway) Limiter() *rate.Limiter {
	return g.limiter
}

// NewLimiter returns a token bucket allowing requestsPerMinute with an equal burst.
func NewLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute)
}

func (g *GitHubGateway) wait(ctx context.Context, op string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return apperror.Fatal(op, err)
	}
	return nil
}

func (g *GitHubGateway) ListOrganizationRepositories(ctx context.Context, org string) ([]domain.Repository, error) {
	const op = "list organization repositories"
	opts := &github.RepositoryListByOrgOptions{
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	var repos []domain.Repository
	for {
		if err := g.wait(ctx, op); err != nil {
			return nil, err
		}
		page, resp, err := g.restClient.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, classify(op, err)
		}
		for _, r := range page {
			repos = append(repos, domain.Repository{
				FullName:  r.GetFullName(),
				UpdatedAt: r.GetUpdatedAt().Time,
				SizeKB:    r.GetSize(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
		g.logger.Debug("Fetching next page of repositories...")
	}
	sort.SliceStable(repos, func(i, j int) bool {
		return repos[i].UpdatedAt.After(repos[j].UpdatedAt)
	})
	return repos, nil
}

func (g *GitHubGateway) ListContributors(ctx context.Context, repo string) ([]domain.Contributor, error) {
	const op = "list contributors"
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, apperror.Fatal(op, err)
	}
	opts := &github.ListContributorsOptions{ListOptions: github.ListOptions{PerPage: perPage}}
	var contributors []domain.Contributor
	for {
		if err := g.wait(ctx, op); err != nil {
			return nil, err
		}
		page, resp, err := g.restClient.Repositories.ListContributors(ctx, owner, name, opts)
		if err != nil {
			return nil, classify(op, err)
		}
		// GitHub answers 204 No Content for a repository without commits.
		if resp.StatusCode == http.StatusNoContent {
			return nil, apperror.RepositoryEmpty(op, nil)
		}
		for _, c := range page {
			if c.GetLogin() == "" {
				continue
			}
			contributor := domain.Contributor{
				Login:      c.GetLogin(),
				AvatarURL:  c.GetAvatarURL(),
				ProfileURL: c.GetHTMLURL(),
				Email:      c.GetEmail(),
				NameSource: domain.NameUnknown,
			}
			contributor.ApplyProfile(domain.Profile{Name: c.GetName()})
			contributors = append(contributors, contributor)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return contributors, nil
}

func (g *GitHubGateway) ListCommits(ctx context.Context, repo, author string, since time.Time) ([]domain.Commit, error) {
	const op = "list commits"
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, apperror.Fatal(op, err)
	}
	opts := &github.CommitsListOptions{
		Author:      author,
		Since:       since,
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	var commits []domain.Commit
	for {
		if err := g.wait(ctx, op); err != nil {
			return nil, err
		}
		page, resp, err := g.restClient.Repositories.ListCommits(ctx, owner, name, opts)
		if err != nil {
			return nil, classify(op, err)
		}
		for _, c := range page {
			date := c.GetCommit().GetAuthor().GetDate().Time
			if date.IsZero() {
				date = c.GetCommit().GetCommitter().GetDate().Time
			}
			commits = append(commits, domain.Commit{AuthorDate: date})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
		g.logger.WithField("repo", repo).WithField("user", author).Debug("Fetching next page of commits...")
	}
	return commits, nil
}

func (g *GitHubGateway) ListPullRequestsPage(ctx context.Context, repo string, page int) ([]domain.PullRequest, int, error) {
	const op = "list pull requests"
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, 0, apperror.Fatal(op, err)
	}
	opts := &github.PullRequestListOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: perPage, Page: page},
	}
	if err := g.wait(ctx, op); err != nil {
		return nil, 0, err
	}
	prs, resp, err := g.restClient.PullRequests.List(ctx, owner, name, opts)
	if err != nil {
		return nil, 0, classify(op, err)
	}
	out := make([]domain.PullRequest, 0, len(prs))
	for _, pr := range prs {
		item := domain.PullRequest{
			Number:      pr.GetNumber(),
			AuthorLogin: pr.GetUser().GetLogin(),
			CreatedAt:   pr.GetCreatedAt().Time,
			Merged:      pr.GetMerged() || pr.MergedAt != nil,
		}
		if pr.MergedAt != nil {
			mergedAt := pr.GetMergedAt().Time
			item.MergedAt = &mergedAt
		}
		out = append(out, item)
	}
	return out, resp.NextPage, nil
}

func (g *GitHubGateway) ListReviews(ctx context.Context, repo string, number int) ([]domain.Review, error) {
	const op = "list reviews"
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, apperror.Fatal(op, err)
	}
	opts := &github.ListOptions{PerPage: perPage}
	var reviews []domain.Review
	for {
		if err := g.wait(ctx, op); err != nil {
			return nil, err
		}
		page, resp, err := g.restClient.PullRequests.ListReviews(ctx, owner, name, number, opts)
		if err != nil {
			return nil, classify(op, err)
		}
		for _, r := range page {
			if login := r.GetUser().GetLogin(); login != "" {
				reviews = append(reviews, domain.Review{ReviewerLogin: login})
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return reviews, nil
}

// splitRepo splits "owner/name".
func splitRepo(fullName string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid repository name format: %q", fullName)
	}
	return owner, name, nil
}
