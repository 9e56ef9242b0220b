package export

import (
	"time"

	"github.com/montanaflynn/stats"
	"github.com/naka-gawa/github-contrib/internal/domain"
)

// Report is the structured export consumed by the presentation stage.
type Report struct {
	RunID                 string                                          `json:"run_id"`
	GeneratedAt           time.Time                                       `json:"generated_at"`
	Organization          string                                          `json:"organization"`
	StartDate             string                                          `json:"start_date"`
	EndDate               string                                          `json:"end_date"`
	TotalRepositories     int                                             `json:"total_repositories"`
	Contributors          map[string]ContributorEntry                     `json:"contributors"`
	DailyContributions    map[string]map[string]int                       `json:"daily_contributions"`
	DailyBreakdown        map[string]domain.DailyCounts                   `json:"daily_breakdown"`
	RepoContributions     map[string]map[string]domain.ContributionRecord `json:"repo_contributions"`
	UserProfiles          map[string]ProfileEntry                         `json:"user_profiles"`
	Summary               Summary                                         `json:"summary"`
	ProcessedRepositories []string                                        `json:"processed_repositories"`
}

type ContributorEntry struct {
	Name          string `json:"name"`
	Contributions int    `json:"contributions"`
	domain.ContributionRecord
}

type ProfileEntry struct {
	Name       string            `json:"name"`
	NameSource domain.NameSource `json:"name_source"`
	AvatarURL  string            `json:"avatar_url,omitempty"`
	ProfileURL string            `json:"profile_url,omitempty"`
	Email      string            `json:"email,omitempty"`
}

// Summary describes the distribution of per-user totals.
type Summary struct {
	Contributors       int     `json:"contributors"`
	TotalContributions int     `json:"total_contributions"`
	Mean               float64 `json:"mean"`
	Median             float64 `json:"median"`
	P90                float64 `json:"p90"`
	Max                float64 `json:"max"`
}

// BuildReport assembles the structured export. The end date is the day of now.
func BuildReport(state *domain.ScanState, runID string, totalRepositories int, now time.Time) Report {
	r := Report{
		RunID:                 runID,
		GeneratedAt:           now.UTC(),
		Organization:          state.Organization,
		StartDate:             state.Floor.UTC().Format(domain.DateLayout),
		EndDate:               now.UTC().Format(domain.DateLayout),
		TotalRepositories:     totalRepositories,
		Contributors:          make(map[string]ContributorEntry, len(state.Records)),
		DailyContributions:    make(map[string]map[string]int, len(state.Daily)),
		DailyBreakdown:        state.Daily,
		RepoContributions:     state.Repos,
		UserProfiles:          make(map[string]ProfileEntry, len(state.Profiles)),
		ProcessedRepositories: state.ProcessedList(),
	}

	totals := make(stats.Float64Data, 0, len(state.Records))
	for login, rec := range state.Records {
		r.Contributors[login] = ContributorEntry{
			Name:               state.Profile(login).DisplayName(),
			Contributions:      rec.Total,
			ContributionRecord: *rec,
		}
		totals = append(totals, float64(rec.Total))
		r.Summary.TotalContributions += rec.Total
	}
	for login, days := range state.Daily {
		perDay := make(map[string]int, len(days))
		for date, kinds := range days {
			for _, n := range kinds {
				perDay[date] += n
			}
		}
		r.DailyContributions[login] = perDay
	}
	for login, c := range state.Profiles {
		r.UserProfiles[login] = ProfileEntry{
			Name:       c.DisplayName(),
			NameSource: c.NameSource,
			AvatarURL:  c.AvatarURL,
			ProfileURL: c.ProfileURL,
			Email:      c.Email,
		}
	}
	r.Summary = summarize(totals, r.Summary.TotalContributions)
	return r
}

func summarize(totals stats.Float64Data, sum int) Summary {
	s := Summary{Contributors: len(totals), TotalContributions: sum}
	if len(totals) == 0 {
		return s
	}
	s.Mean, _ = stats.Round(mustFloat(totals.Mean()), 2)
	s.Median = mustFloat(totals.Median())
	s.P90 = mustFloat(totals.Percentile(90))
	s.Max = mustFloat(totals.Max())
	return s
}

// mustFloat drops the error of a stats call whose input is known to be non-empty.
func mustFloat(v float64, _ error) float64 {
	return v
}
