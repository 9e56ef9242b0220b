package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/naka-gawa/github-contrib/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var floor = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

func sampleState() *domain.ScanState {
	s := domain.NewScanState("acme", floor)
	s.MarkProcessed("acme/web")
	s.MarkProcessed("acme/empty")
	s.RecordProfile(domain.Contributor{Login: "alice", Name: "Alice", NameSource: domain.NameVerified, AvatarURL: "https://avatars/alice"})
	s.RecordProfile(domain.Contributor{Login: "idle", NameSource: domain.NameUnknown})
	rec := domain.NewRecord(3, 1, 1, 2)
	s.SetRepoMetric("alice", "acme/web", rec)
	s.AddContribution("alice", rec)
	s.AddDaily("alice", floor.Add(24*time.Hour), domain.KindCommits, 3)
	s.AddDaily("alice", floor.Add(48*time.Hour), domain.KindPRsCreated, 1)
	s.AddDaily("alice", floor.Add(72*time.Hour), domain.KindPRsMerged, 1)
	return s
}

func newCheckpointer(t *testing.T, backend Backend) (*Checkpointer, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	return New(backend, logger), hook
}

func TestCheckpointer_FileRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "scan_checkpoint.json")
	cp, _ := newCheckpointer(t, NewFileBackend(path))

	assert.Nil(t, cp.Load(ctx), "no checkpoint yet")

	state := sampleState()
	require.NoError(t, cp.Save(ctx, state))

	snap := cp.Load(ctx)
	require.NotNil(t, snap)
	assert.Equal(t, Version, snap.Version)
	assert.Equal(t, "acme", snap.Organization)
	assert.True(t, floor.Equal(snap.Floor))
	assert.Equal(t, []string{"acme/empty", "acme/web"}, snap.Processed)

	restored := snap.State()
	assert.Equal(t, state.Records, restored.Records)
	assert.Equal(t, state.Repos, restored.Repos)
	assert.Equal(t, state.Daily, restored.Daily)
	assert.Equal(t, state.Profiles, restored.Profiles)
	assert.Equal(t, state.Processed, restored.Processed)

	require.NoError(t, cp.Delete(ctx))
	assert.Nil(t, cp.Load(ctx))
	assert.NoError(t, cp.Delete(ctx), "deleting twice is fine")
}

func TestCheckpointer_LoadFailsClosed(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{name: "garbage", content: "not json at all"},
		{name: "wrong version", content: `{"version": 99, "organization": "acme"}`},
		{name: "missing organization", content: `{"version": 1}`},
		{name: "inconsistent totals", content: `{"version": 1, "organization": "acme",
			"contributions": {"alice": {"commits": 2, "total": 2}},
			"repos": {"alice": {"acme/web": {"commits": 1, "total": 1}}}}`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "scan_checkpoint.json")
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0o644))
			cp, hook := newCheckpointer(t, NewFileBackend(path))

			assert.Nil(t, cp.Load(context.Background()))
			require.NotNil(t, hook.LastEntry())
			assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
		})
	}
}

func TestSnapshot_RestoreIntoKeepsLiveState(t *testing.T) {
	live := domain.NewScanState("acme", floor)
	rec := domain.NewRecord(1, 0, 0, 0)
	live.SetRepoMetric("alice", "acme/api", rec)
	live.AddContribution("alice", rec)
	live.AddDaily("alice", floor.Add(24*time.Hour), domain.KindCommits, 1)

	FromState(sampleState(), time.Now()).RestoreInto(live)

	assert.Equal(t, 8, live.Records["alice"].Total)
	assert.Equal(t, live.Records["alice"].Total, live.RepoTotal("alice"))
	assert.Equal(t, 4, live.DailyTotal("alice", domain.KindCommits))
	assert.True(t, live.IsProcessed("acme/web"))
	assert.Contains(t, live.Profiles, "idle")
}

func TestFromState_DoesNotAlias(t *testing.T) {
	state := sampleState()
	snap := FromState(state, time.Now())

	state.AddDaily("alice", floor.Add(24*time.Hour), domain.KindCommits, 10)
	state.SetRepoMetric("alice", "acme/other", domain.NewRecord(1, 0, 0, 0))

	assert.Equal(t, 3, snap.Daily["alice"][floor.Add(24*time.Hour).Format(domain.DateLayout)][domain.KindCommits])
	assert.NotContains(t, snap.Repos["alice"], "acme/other")
}

func TestCheckpointer_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend, err := NewSQLiteBackend(":memory:", "acme")
	require.NoError(t, err)
	defer backend.Close()
	cp, _ := newCheckpointer(t, backend)

	assert.Nil(t, cp.Load(ctx))

	state := sampleState()
	require.NoError(t, cp.Save(ctx, state))
	state.MarkProcessed("acme/api")
	require.NoError(t, cp.Save(ctx, state), "second save upserts")

	snap := cp.Load(ctx)
	require.NotNil(t, snap)
	assert.Equal(t, []string{"acme/api", "acme/empty", "acme/web"}, snap.Processed)

	require.NoError(t, cp.Delete(ctx))
	assert.Nil(t, cp.Load(ctx))
}

func TestCheckpointer_UnreachableRedisLoadsNothing(t *testing.T) {
	backend := NewRedisBackendWithOptions(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	}, "github-contrib:checkpoint")
	defer backend.Close()
	cp, hook := newCheckpointer(t, backend)

	assert.Nil(t, cp.Load(context.Background()))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Error(t, cp.Save(context.Background(), sampleState()))
}

func TestNewRedisBackend_InvalidURL(t *testing.T) {
	_, err := NewRedisBackend("not-a-url", "key")
	assert.Error(t, err)
}
