package pending

import (
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var idPattern = regexp.MustCompile(`^pnd_\d{8}_\d{6}_[a-z0-9]{6}$`)

func newStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "pending.json"))
	require.NoError(t, err)
	return s
}

func TestCreateProducesWellFormedID(t *testing.T) {
	s := newStore(t)
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	a, err := s.Create(TargetDomain, "bumble.com", "24h", 24*time.Hour, now)
	require.NoError(t, err)
	require.Regexp(t, idPattern, a.ID)
	require.Equal(t, now.Add(24*time.Hour), a.ExecuteAt)
}

func TestCreateRejectsDuplicateTarget(t *testing.T) {
	s := newStore(t)
	now := time.Now()
	_, err := s.Create(TargetDomain, "bumble.com", "24h", 24*time.Hour, now)
	require.NoError(t, err)
	_, err = s.Create(TargetDomain, "bumble.com", "24h", 24*time.Hour, now)
	require.ErrorIs(t, err, ErrDuplicateTarget)
}

func TestCancelTerminalIsNoOp(t *testing.T) {
	s := newStore(t)
	now := time.Now()
	a, err := s.Create(TargetDomain, "bumble.com", "24h", 24*time.Hour, now)
	require.NoError(t, err)

	ok, err := s.Cancel(a.ID, now)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Cancel(a.ID, now)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDueActionsRespectsExecuteAt(t *testing.T) {
	s := newStore(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a, err := s.Create(TargetDomain, "bumble.com", "24h", 24*time.Hour, now)
	require.NoError(t, err)

	due, err := s.DueActions(now.Add(23 * time.Hour))
	require.NoError(t, err)
	require.Empty(t, due)

	due, err = s.DueActions(now.Add(24*time.Hour + time.Second))
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, a.ID, due[0].ID)
}

func TestGCRemovesOldTerminalActionsOnly(t *testing.T) {
	s := newStore(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a, err := s.Create(TargetDomain, "bumble.com", "24h", 24*time.Hour, now)
	require.NoError(t, err)
	require.NoError(t, s.MarkExecuted(a.ID, "unblocked", now))

	removed, err := s.GC(now.Add(6 * 24 * time.Hour))
	require.NoError(t, err)
	require.Equal(t, 0, removed)

	removed, err = s.GC(now.Add(8 * 24 * time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	list, err := s.List(true)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestTwoCreationsInSameSecondGetDistinctIDs(t *testing.T) {
	s := newStore(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a, err := s.Create(TargetDomain, "a.com", "0", 0, now)
	require.NoError(t, err)
	b, err := s.Create(TargetDomain, "b.com", "0", 0, now)
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)
}
