package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/naka-gawa/github-contrib/internal/apperror"
	"github.com/naka-gawa/github-contrib/internal/domain"
	"github.com/naka-gawa/github-contrib/internal/retry"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
)

var testFloor = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

func nullLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

// newTestRetrier retries without sleeping.
func newTestRetrier() *retry.Retrier {
	return retry.New(nullLogger(),
		retry.WithJitter(func() time.Duration { return 0 }),
		retry.WithSleep(func(context.Context, time.Duration) error { return nil }),
	)
}

// mockFetcher is a testify mock of gateway.Fetcher.
type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) ListOrganizationRepositories(ctx context.Context, org string) ([]domain.Repository, error) {
	args := m.Called(ctx, org)
	repos, _ := args.Get(0).([]domain.Repository)
	return repos, args.Error(1)
}

func (m *mockFetcher) ListContributors(ctx context.Context, repo string) ([]domain.Contributor, error) {
	args := m.Called(ctx, repo)
	contributors, _ := args.Get(0).([]domain.Contributor)
	return contributors, args.Error(1)
}

func (m *mockFetcher) ListCommits(ctx context.Context, repo, author string, since time.Time) ([]domain.Commit, error) {
	args := m.Called(ctx, repo, author, since)
	commits, _ := args.Get(0).([]domain.Commit)
	return commits, args.Error(1)
}

func (m *mockFetcher) ListPullRequestsPage(ctx context.Context, repo string, page int) ([]domain.PullRequest, int, error) {
	args := m.Called(ctx, repo, page)
	prs, _ := args.Get(0).([]domain.PullRequest)
	return prs, args.Int(1), args.Error(2)
}

func (m *mockFetcher) ListReviews(ctx context.Context, repo string, number int) ([]domain.Review, error) {
	args := m.Called(ctx, repo, number)
	reviews, _ := args.Get(0).([]domain.Review)
	return reviews, args.Error(1)
}

// mockProfiles is a testify mock of gateway.ProfileResolver.
type mockProfiles struct {
	mock.Mock
}

func (m *mockProfiles) ResolveProfile(ctx context.Context, login string) (domain.Profile, error) {
	args := m.Called(ctx, login)
	return args.Get(0).(domain.Profile), args.Error(1)
}

// fakeRepo is the remote content of one repository.
type fakeRepo struct {
	contributors    []domain.Contributor
	contributorsErr error
	commits         map[string][]domain.Commit
	commitErr       map[string]error
	pullRequests    []domain.PullRequest // newest first
	reviews         map[int][]domain.Review
}

// fakeGitHub is an in-memory gateway.Fetcher for orchestration tests.
type fakeGitHub struct {
	mu       sync.Mutex
	repos    []domain.Repository
	data     map[string]*fakeRepo
	listErr  error
	pageSize int

	// onCommits runs inside every ListCommits call.
	onCommits func(repo, login string)
	delay     time.Duration

	inFlight    int
	maxInFlight int
	calls       map[string]int
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{
		data:     make(map[string]*fakeRepo),
		pageSize: 100,
		calls:    make(map[string]int),
	}
}

func (f *fakeGitHub) addRepo(name string, r *fakeRepo) {
	f.repos = append(f.repos, domain.Repository{FullName: name})
	f.data[name] = r
}

func (f *fakeGitHub) count(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key]++
}

func (f *fakeGitHub) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeGitHub) ListOrganizationRepositories(_ context.Context, _ string) ([]domain.Repository, error) {
	f.count("repos")
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.Repository(nil), f.repos...), nil
}

func (f *fakeGitHub) repo(name string) (*fakeRepo, error) {
	r, ok := f.data[name]
	if !ok {
		return nil, apperror.Fatal("lookup", errors.New("unknown repository "+name))
	}
	return r, nil
}

func (f *fakeGitHub) ListContributors(_ context.Context, repo string) ([]domain.Contributor, error) {
	f.count("contributors:" + repo)
	r, err := f.repo(repo)
	if err != nil {
		return nil, err
	}
	if r.contributorsErr != nil {
		return nil, r.contributorsErr
	}
	return append([]domain.Contributor(nil), r.contributors...), nil
}

func (f *fakeGitHub) ListCommits(_ context.Context, repo, author string, since time.Time) ([]domain.Commit, error) {
	f.count("commits:" + repo + ":" + author)
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.onCommits != nil {
		f.onCommits(repo, author)
	}

	r, err := f.repo(repo)
	if err != nil {
		return nil, err
	}
	if err := r.commitErr[author]; err != nil {
		return nil, err
	}
	var out []domain.Commit
	for _, c := range r.commits[author] {
		if !c.AuthorDate.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeGitHub) ListPullRequestsPage(_ context.Context, repo string, page int) ([]domain.PullRequest, int, error) {
	f.count("pulls:" + repo)
	r, err := f.repo(repo)
	if err != nil {
		return nil, 0, err
	}
	start := (page - 1) * f.pageSize
	if start >= len(r.pullRequests) {
		return nil, 0, nil
	}
	end := min(start+f.pageSize, len(r.pullRequests))
	next := 0
	if end < len(r.pullRequests) {
		next = page + 1
	}
	return r.pullRequests[start:end], next, nil
}

func (f *fakeGitHub) ListReviews(_ context.Context, repo string, number int) ([]domain.Review, error) {
	f.count("reviews:" + repo)
	r, err := f.repo(repo)
	if err != nil {
		return nil, err
	}
	return r.reviews[number], nil
}

// recordingCheckpointer keeps a copy of the processed set at every save.
type recordingCheckpointer struct {
	saves   [][]string
	saveErr error
	deleted bool
}

func (c *recordingCheckpointer) Save(_ context.Context, state *domain.ScanState) error {
	if c.saveErr != nil {
		return c.saveErr
	}
	c.saves = append(c.saves, state.ProcessedList())
	return nil
}

func (c *recordingCheckpointer) Delete(context.Context) error {
	c.deleted = true
	return nil
}

// fakeExporter counts export calls.
type fakeExporter struct {
	tables            int
	reports           int
	totalRepositories int
}

func (e *fakeExporter) WriteTable(*domain.ScanState) error {
	e.tables++
	return nil
}

func (e *fakeExporter) WriteReport(_ *domain.ScanState, total int) error {
	e.reports++
	e.totalRepositories = total
	return nil
}

func commitsAt(n int, at time.Time) []domain.Commit {
	out := make([]domain.Commit, n)
	for i := range out {
		out[i] = domain.Commit{AuthorDate: at.Add(time.Duration(i) * time.Hour)}
	}
	return out
}

func contributors(logins ...string) []domain.Contributor {
	out := make([]domain.Contributor, len(logins))
	for i, l := range logins {
		out[i] = domain.Contributor{Login: l}
	}
	return out
}
