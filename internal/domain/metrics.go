package domain

import "time"

// Kind is one category of contribution.
type Kind string

const (
	KindCommits     Kind = "commits"
	KindPRsCreated  Kind = "prs_created"
	KindPRsMerged   Kind = "prs_merged"
	KindPRsReviewed Kind = "prs_reviewed"
)

// DateLayout is the key format of daily metrics.
const DateLayout = "2006-01-02"

// ContributionRecord holds the counts for one user, either globally or for one repository.
// Total always equals the sum of the four counts.
type ContributionRecord struct {
	Commits     int `json:"commits"`
	PRsCreated  int `json:"prs_created"`
	PRsMerged   int `json:"prs_merged"`
	PRsReviewed int `json:"prs_reviewed"`
	Total       int `json:"total"`
}

// NewRecord builds a record with a consistent total.
func NewRecord(commits, created, merged, reviewed int) ContributionRecord {
	r := ContributionRecord{Commits: commits, PRsCreated: created, PRsMerged: merged, PRsReviewed: reviewed}
	r.Total = r.Sum()
	return r
}

// Sum is the total recomputed from the individual counts.
func (r ContributionRecord) Sum() int {
	return r.Commits + r.PRsCreated + r.PRsMerged + r.PRsReviewed
}

// Add accumulates other into r.
func (r *ContributionRecord) Add(other ContributionRecord) {
	r.Commits += other.Commits
	r.PRsCreated += other.PRsCreated
	r.PRsMerged += other.PRsMerged
	r.PRsReviewed += other.PRsReviewed
	r.Total = r.Sum()
}

// Count returns the count for one kind.
func (r ContributionRecord) Count(kind Kind) int {
	switch kind {
	case KindCommits:
		return r.Commits
	case KindPRsCreated:
		return r.PRsCreated
	case KindPRsMerged:
		return r.PRsMerged
	case KindPRsReviewed:
		return r.PRsReviewed
	}
	return 0
}

// Repository is an organization repository as listed by the API.
type Repository struct {
	FullName  string    `json:"full_name"`
	UpdatedAt time.Time `json:"updated_at"`
	SizeKB    int       `json:"size_kb"`
}

// Commit is a commit attributed to a contributor.
type Commit struct {
	AuthorDate time.Time `json:"author_date"`
}

// PullRequest holds the fields needed for attribution.
type PullRequest struct {
	Number      int        `json:"number"`
	AuthorLogin string     `json:"author_login"`
	CreatedAt   time.Time  `json:"created_at"`
	Merged      bool       `json:"merged"`
	MergedAt    *time.Time `json:"merged_at,omitempty"`
}

// MergeDate is the merge timestamp, falling back to the creation time when absent.
func (pr PullRequest) MergeDate() time.Time {
	if pr.MergedAt != nil && !pr.MergedAt.IsZero() {
		return *pr.MergedAt
	}
	return pr.CreatedAt
}

// Review is a pull request review.
type Review struct {
	ReviewerLogin string `json:"reviewer_login"`
}

// RepoBatch is everything fetched for one repository visit.
// It is populated by the fetcher and read-only afterwards.
type RepoBatch struct {
	Repository   string
	Contributors []Contributor
	Commits      map[string][]Commit
	PullRequests []PullRequest
	Reviews      map[int][]Review
}

// ReviewedBy reports whether login left at least one review on pull request number.
func (b *RepoBatch) ReviewedBy(number int, login string) bool {
	for _, r := range b.Reviews[number] {
		if r.ReviewerLogin == login {
			return true
		}
	}
	return false
}
