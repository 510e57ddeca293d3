package protection

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newGate(t *testing.T) *Gate {
	t.Helper()
	dir := t.TempDir()
	return New(
		filepath.Join(dir, ".pin_hash"),
		filepath.Join(dir, ".pin_session"),
		filepath.Join(dir, ".pin_attempts"),
	)
}

func TestSetAndVerifyPIN(t *testing.T) {
	g := newGate(t)
	require.NoError(t, g.SetPIN("1234"))

	now := time.Now()
	ok, err := g.Verify("1234", now)
	require.NoError(t, err)
	require.True(t, ok)

	active, err := g.SessionActive(now.Add(10 * time.Minute))
	require.NoError(t, err)
	require.True(t, active)

	active, err = g.SessionActive(now.Add(31 * time.Minute))
	require.NoError(t, err)
	require.False(t, active)
}

func TestVerifyWrongPINFails(t *testing.T) {
	g := newGate(t)
	require.NoError(t, g.SetPIN("1234"))

	ok, err := g.Verify("0000", time.Now())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLockoutAfterThreeFailures(t *testing.T) {
	g := newGate(t)
	require.NoError(t, g.SetPIN("1234"))

	now := time.Now()
	for i := 0; i < 3; i++ {
		ok, err := g.Verify("0000", now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		require.False(t, ok)
	}

	lockedOut, _, err := g.LockedOut(now.Add(3 * time.Minute))
	require.NoError(t, err)
	require.True(t, lockedOut)

	_, err = g.Verify("1234", now.Add(3*time.Minute))
	require.Error(t, err)

	lockedOut, _, err = g.LockedOut(now.Add(20 * time.Minute))
	require.NoError(t, err)
	require.False(t, lockedOut)
}

func TestRequireSessionWithoutPINAlwaysAllowed(t *testing.T) {
	g := newGate(t)
	ok, err := g.RequireSession(time.Now())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestUnlockRequestLifecycle(t *testing.T) {
	dir := t.TempDir()
	s, err := NewUnlockStore(filepath.Join(dir, "unlock_requests.json"))
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	req, err := s.RequestUnlock("domain", "gambling-site.com", "operator wants to remove the lock", 24, now)
	require.NoError(t, err)
	require.Equal(t, now.Add(24*time.Hour), req.ExecuteAt)

	due, err := s.DueRequests(now.Add(23 * time.Hour))
	require.NoError(t, err)
	require.Empty(t, due)

	due, err = s.DueRequests(now.Add(24*time.Hour + time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, s.MarkExecuted(req.ID))
	list, err := s.List(false)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestUnlockRequestDelayClampedToMinimum24h(t *testing.T) {
	dir := t.TempDir()
	s, err := NewUnlockStore(filepath.Join(dir, "unlock_requests.json"))
	require.NoError(t, err)

	now := time.Now()
	req, err := s.RequestUnlock("pin", "pin", "", 1, now)
	require.NoError(t, err)
	require.WithinDuration(t, now.Add(24*time.Hour), req.ExecuteAt, time.Second)
}
