package domain

import (
	"sort"
	"time"
)

// DailyCounts maps a date (DateLayout) to per-kind counts.
type DailyCounts map[string]map[Kind]int

// ScanState is the aggregate of a scan. It is owned by the orchestrator and
// mutated only after a repository's fetches have all returned.
type ScanState struct {
	Organization string
	Floor        time.Time
	Processed    map[string]struct{}
	Records      map[string]*ContributionRecord
	Profiles     map[string]Contributor
	Daily        map[string]DailyCounts
	Repos        map[string]map[string]ContributionRecord
}

// NewScanState returns an empty state for an organization and floor date.
func NewScanState(org string, floor time.Time) *ScanState {
	return &ScanState{
		Organization: org,
		Floor:        floor,
		Processed:    make(map[string]struct{}),
		Records:      make(map[string]*ContributionRecord),
		Profiles:     make(map[string]Contributor),
		Daily:        make(map[string]DailyCounts),
		Repos:        make(map[string]map[string]ContributionRecord),
	}
}

// MarkProcessed adds repo to the processed set.
func (s *ScanState) MarkProcessed(repo string) {
	s.Processed[repo] = struct{}{}
}

func (s *ScanState) IsProcessed(repo string) bool {
	_, ok := s.Processed[repo]
	return ok
}

// ProcessedList returns the processed set in sorted order.
func (s *ScanState) ProcessedList() []string {
	out := make([]string, 0, len(s.Processed))
	for repo := range s.Processed {
		out = append(out, repo)
	}
	sort.Strings(out)
	return out
}

// RecordProfile stores or refines a contributor profile.
func (s *ScanState) RecordProfile(c Contributor) {
	if existing, ok := s.Profiles[c.Login]; ok {
		s.Profiles[c.Login] = existing.Merge(c)
		return
	}
	s.Profiles[c.Login] = Contributor{}.Merge(c)
}

// AddContribution accumulates counts into a user's global record.
func (s *ScanState) AddContribution(login string, r ContributionRecord) {
	rec, ok := s.Records[login]
	if !ok {
		rec = &ContributionRecord{}
		s.Records[login] = rec
	}
	rec.Add(r)
}

// SetRepoMetric writes the per-repository record for a user.
func (s *ScanState) SetRepoMetric(login, repo string, r ContributionRecord) {
	repos, ok := s.Repos[login]
	if !ok {
		repos = make(map[string]ContributionRecord)
		s.Repos[login] = repos
	}
	repos[repo] = r
}

// AddDaily adds n to a user's count for kind on the UTC date of at.
func (s *ScanState) AddDaily(login string, at time.Time, kind Kind, n int) {
	s.addDailyKey(login, at.UTC().Format(DateLayout), kind, n)
}

func (s *ScanState) addDailyKey(login, date string, kind Kind, n int) {
	days, ok := s.Daily[login]
	if !ok {
		days = make(DailyCounts)
		s.Daily[login] = days
	}
	kinds, ok := days[date]
	if !ok {
		kinds = make(map[Kind]int)
		days[date] = kinds
	}
	kinds[kind] += n
}

// MergeFrom adds other into s without replacing anything already accumulated.
// Repo metrics already present in s are kept, since a repository is visited once.
func (s *ScanState) MergeFrom(other *ScanState) {
	for repo := range other.Processed {
		s.MarkProcessed(repo)
	}
	for _, c := range other.Profiles {
		s.RecordProfile(c)
	}
	for login, rec := range other.Records {
		s.AddContribution(login, *rec)
	}
	for login, days := range other.Daily {
		for date, kinds := range days {
			for kind, n := range kinds {
				s.addDailyKey(login, date, kind, n)
			}
		}
	}
	for login, repos := range other.Repos {
		for repo, rec := range repos {
			if existing, ok := s.Repos[login]; ok {
				if _, seen := existing[repo]; seen {
					continue
				}
			}
			s.SetRepoMetric(login, repo, rec)
		}
	}
}

// Logins returns every user with a contribution record, highest total first.
func (s *ScanState) Logins() []string {
	out := make([]string, 0, len(s.Records))
	for login := range s.Records {
		out = append(out, login)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := s.Records[out[i]].Total, s.Records[out[j]].Total
		if ti != tj {
			return ti > tj
		}
		return out[i] < out[j]
	})
	return out
}

// Profile returns the recorded profile for login, or a bare one.
func (s *ScanState) Profile(login string) Contributor {
	if c, ok := s.Profiles[login]; ok {
		return c
	}
	return Contributor{Login: login, NameSource: NameUnknown}
}

// DailyTotal sums a user's daily counts of one kind across all dates.
func (s *ScanState) DailyTotal(login string, kind Kind) int {
	total := 0
	for _, kinds := range s.Daily[login] {
		total += kinds[kind]
	}
	return total
}

// RepoTotal sums a user's per-repository totals.
func (s *ScanState) RepoTotal(login string) int {
	total := 0
	for _, rec := range s.Repos[login] {
		total += rec.Sum()
	}
	return total
}

// DateRange returns the earliest and latest dates present in the daily series.
func (s *ScanState) DateRange() (first, last string) {
	for _, days := range s.Daily {
		for date := range days {
			if first == "" || date < first {
				first = date
			}
			if date > last {
				last = date
			}
		}
	}
	return first, last
}
