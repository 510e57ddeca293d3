package override

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPanicRequiresMinimumDuration(t *testing.T) {
	p := NewPanicState(filepath.Join(t.TempDir(), ".panic"))
	now := time.Now()

	_, err := p.Begin(14*time.Minute+59*time.Second, now)
	require.ErrorIs(t, err, ErrDurationTooShort)

	_, err = p.Begin(15*time.Minute, now)
	require.NoError(t, err)
}

func TestPanicCannotRestackMustExtend(t *testing.T) {
	p := NewPanicState(filepath.Join(t.TempDir(), ".panic"))
	now := time.Now()

	_, err := p.Begin(20*time.Minute, now)
	require.NoError(t, err)

	_, err = p.Begin(20*time.Minute, now)
	require.ErrorIs(t, err, ErrPanicActive)

	expiration, err := p.Extend(10*time.Minute, now)
	require.NoError(t, err)
	require.WithinDuration(t, now.Add(30*time.Minute), expiration, time.Second)
}

func TestPauseDoesNotStack(t *testing.T) {
	p := NewPauseState(filepath.Join(t.TempDir(), ".paused"))
	now := time.Now()

	require.NoError(t, p.Begin(10*time.Minute, now))
	require.NoError(t, p.Begin(5*time.Minute, now))

	active, expiration, err := p.Active(now)
	require.NoError(t, err)
	require.True(t, active)
	require.WithinDuration(t, now.Add(5*time.Minute), expiration, time.Second)
}

func TestPanicExpiresNaturally(t *testing.T) {
	p := NewPanicState(filepath.Join(t.TempDir(), ".panic"))
	now := time.Now()
	_, err := p.Begin(15*time.Minute, now)
	require.NoError(t, err)

	active, _, err := p.Active(now.Add(16 * time.Minute))
	require.NoError(t, err)
	require.False(t, active)
}
