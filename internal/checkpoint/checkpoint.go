// Package checkpoint persists scan state so an interrupted scan can resume.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/naka-gawa/github-contrib/internal/domain"
	"github.com/sirupsen/logrus"
)

// Version is the snapshot format written by this build. Snapshots with any
// other version are ignored on load.
const Version = 1

// ErrNotExist is returned by a Backend when no snapshot is stored.
var ErrNotExist = errors.New("checkpoint does not exist")

// Backend stores one serialized snapshot.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Delete(ctx context.Context) error
	String() string
}

// Snapshot is the versioned, serialized form of a domain.ScanState.
type Snapshot struct {
	Version      int                                             `json:"version"`
	SavedAt      time.Time                                       `json:"saved_at"`
	Organization string                                          `json:"organization"`
	Floor        time.Time                                       `json:"floor_date"`
	Processed    []string                                        `json:"processed_repos"`
	Records      map[string]domain.ContributionRecord            `json:"contributions"`
	Profiles     map[string]domain.Contributor                   `json:"profiles"`
	Daily        map[string]domain.DailyCounts                   `json:"daily"`
	Repos        map[string]map[string]domain.ContributionRecord `json:"repos"`
}

// FromState captures state. The snapshot shares no maps with state.
func FromState(state *domain.ScanState, savedAt time.Time) *Snapshot {
	s := &Snapshot{
		Version:      Version,
		SavedAt:      savedAt.UTC(),
		Organization: state.Organization,
		Floor:        state.Floor.UTC(),
		Processed:    state.ProcessedList(),
		Records:      make(map[string]domain.ContributionRecord, len(state.Records)),
		Profiles:     make(map[string]domain.Contributor, len(state.Profiles)),
		Daily:        make(map[string]domain.DailyCounts, len(state.Daily)),
		Repos:        make(map[string]map[string]domain.ContributionRecord, len(state.Repos)),
	}
	for login, rec := range state.Records {
		s.Records[login] = *rec
	}
	for login, c := range state.Profiles {
		s.Profiles[login] = c
	}
	for login, days := range state.Daily {
		copied := make(domain.DailyCounts, len(days))
		for date, kinds := range days {
			k := make(map[domain.Kind]int, len(kinds))
			for kind, n := range kinds {
				k[kind] = n
			}
			copied[date] = k
		}
		s.Daily[login] = copied
	}
	for login, repos := range state.Repos {
		copied := make(map[string]domain.ContributionRecord, len(repos))
		for repo, rec := range repos {
			copied[repo] = rec
		}
		s.Repos[login] = copied
	}
	return s
}

// State rebuilds a standalone ScanState from the snapshot.
func (s *Snapshot) State() *domain.ScanState {
	state := domain.NewScanState(s.Organization, s.Floor)
	for _, repo := range s.Processed {
		state.MarkProcessed(repo)
	}
	for login, rec := range s.Records {
		r := rec
		r.Total = r.Sum()
		state.Records[login] = &r
	}
	for login, c := range s.Profiles {
		if c.Login == "" {
			c.Login = login
		}
		state.RecordProfile(c)
	}
	for login, days := range s.Daily {
		for date, kinds := range days {
			for kind, n := range kinds {
				at, err := time.Parse(domain.DateLayout, date)
				if err != nil {
					continue
				}
				state.AddDaily(login, at, kind, n)
			}
		}
	}
	for login, repos := range s.Repos {
		for repo, rec := range repos {
			state.SetRepoMetric(login, repo, rec)
		}
	}
	return state
}

// RestoreInto merges the snapshot into live without discarding anything live
// already holds.
func (s *Snapshot) RestoreInto(live *domain.ScanState) {
	live.MergeFrom(s.State())
}

// validate rejects snapshots that are not safe to resume from.
func (s *Snapshot) validate() error {
	if s.Version != Version {
		return fmt.Errorf("unsupported checkpoint version %d (want %d)", s.Version, Version)
	}
	if s.Organization == "" {
		return errors.New("checkpoint has no organization")
	}
	for login, rec := range s.Records {
		if rec.Total != rec.Sum() {
			return fmt.Errorf("inconsistent total for %s", login)
		}
		repoTotal := 0
		for _, r := range s.Repos[login] {
			repoTotal += r.Sum()
		}
		if repoTotal != rec.Total {
			return fmt.Errorf("repository totals for %s do not add up", login)
		}
	}
	return nil
}

// Checkpointer saves and loads snapshots through a Backend.
type Checkpointer struct {
	backend Backend
	logger  logrus.FieldLogger
	now     func() time.Time
}

func New(backend Backend, logger logrus.FieldLogger) *Checkpointer {
	return &Checkpointer{backend: backend, logger: logger, now: time.Now}
}

// Save serializes the full state.
func (c *Checkpointer) Save(ctx context.Context, state *domain.ScanState) error {
	data, err := json.Marshal(FromState(state, c.now()))
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := c.backend.Write(ctx, data); err != nil {
		return fmt.Errorf("failed to write checkpoint to %s: %w", c.backend, err)
	}
	c.logger.WithFields(logrus.Fields{
		"location":  c.backend.String(),
		"processed": len(state.Processed),
	}).Debug("Checkpoint saved")
	return nil
}

// Load returns the stored snapshot, or nil when there is none or it cannot be
// used. It never fails; problems are logged.
func (c *Checkpointer) Load(ctx context.Context) *Snapshot {
	data, err := c.backend.Read(ctx)
	if errors.Is(err, ErrNotExist) {
		return nil
	}
	if err != nil {
		c.logger.WithError(err).WithField("location", c.backend.String()).Warn("Could not read checkpoint, starting fresh")
		return nil
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		c.logger.WithError(err).WithField("location", c.backend.String()).Warn("Could not decode checkpoint, starting fresh")
		return nil
	}
	if err := s.validate(); err != nil {
		c.logger.WithError(err).WithField("location", c.backend.String()).Warn("Ignoring unusable checkpoint")
		return nil
	}
	return &s
}

// Delete removes the stored snapshot. Deleting a missing snapshot is not an error.
func (c *Checkpointer) Delete(ctx context.Context) error {
	if err := c.backend.Delete(ctx); err != nil && !errors.Is(err, ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint at %s: %w", c.backend, err)
	}
	return nil
}

// Location describes where snapshots are stored.
func (c *Checkpointer) Location() string {
	return c.backend.String()
}
