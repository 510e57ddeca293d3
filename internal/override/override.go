// Package override implements the two timed process-wide gates that mask
// normal reconciliation decisions: Pause and Panic (C5).
package override

import (
	"fmt"
	"os"
	"strings"
	"time"

	"domainguard/internal/lockfile"
)

// MinPanicDuration is the minimum window a panic can be started for
// (spec.md §4.5).
const MinPanicDuration = 15 * time.Minute

// ErrPanicActive is returned by Begin when panic is already running; the
// caller should use Extend instead.
var ErrPanicActive = fmt.Errorf("override: panic already active, use extend")

// ErrDurationTooShort is returned by Begin when duration < MinPanicDuration.
var ErrDurationTooShort = fmt.Errorf("override: panic duration must be >= 15 minutes")

// marker is the shared single-instant-file implementation backing both
// Pause and Panic, since both are "an expiration timestamp in a small text
// file" (spec.md §9).
type marker struct {
	path string
	lock *lockfile.Lock
}

func newMarker(path string) *marker {
	return &marker{path: path, lock: lockfile.New(path)}
}

// read returns the stored expiration and whether the marker exists.
func (m *marker) read() (time.Time, bool, error) {
	if err := m.lock.RLock(); err != nil {
		return time.Time{}, false, err
	}
	defer m.lock.Unlock()

	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("override: read %s: %w", m.path, err)
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("override: parse %s: %w", m.path, err)
	}
	return t, true, nil
}

func (m *marker) write(expiration time.Time) error {
	if err := m.lock.WLock(); err != nil {
		return err
	}
	defer m.lock.Unlock()
	return lockfile.AtomicWrite(m.path, []byte(expiration.UTC().Format(time.RFC3339)), 0o644)
}

func (m *marker) clear() error {
	if err := m.lock.WLock(); err != nil {
		return err
	}
	defer m.lock.Unlock()
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("override: clear %s: %w", m.path, err)
	}
	return nil
}

// PauseState is the `.paused` marker.
type PauseState struct{ m *marker }

// NewPauseState returns a PauseState backed by path.
func NewPauseState(path string) *PauseState { return &PauseState{m: newMarker(path)} }

// Begin replaces any existing pause expiration with now+duration. Pauses
// do not stack.
func (p *PauseState) Begin(duration time.Duration, now time.Time) error {
	return p.m.write(now.Add(duration))
}

// End clears the pause record.
func (p *PauseState) End() error { return p.m.clear() }

// Active reports whether the pause is currently in effect at now.
func (p *PauseState) Active(now time.Time) (bool, time.Time, error) {
	expiration, exists, err := p.m.read()
	if err != nil || !exists {
		return false, time.Time{}, err
	}
	return now.Before(expiration), expiration, nil
}

// PanicState is the `.panic` marker.
type PanicState struct{ m *marker }

// NewPanicState returns a PanicState backed by path.
func NewPanicState(path string) *PanicState { return &PanicState{m: newMarker(path)} }

// Begin starts a panic window. Fails with ErrDurationTooShort if duration
// is under 15 minutes, or ErrPanicActive if one is already running.
func (p *PanicState) Begin(duration time.Duration, now time.Time) (time.Time, error) {
	if duration < MinPanicDuration {
		return time.Time{}, ErrDurationTooShort
	}
	active, _, err := p.Active(now)
	if err != nil {
		return time.Time{}, err
	}
	if active {
		return time.Time{}, ErrPanicActive
	}
	expiration := now.Add(duration)
	return expiration, p.m.write(expiration)
}

// Extend adds delta (> 0) to the current expiration. Fails if panic is not
// currently active.
func (p *PanicState) Extend(delta time.Duration, now time.Time) (time.Time, error) {
	if delta <= 0 {
		return time.Time{}, fmt.Errorf("override: extend delta must be positive")
	}
	active, expiration, err := p.Active(now)
	if err != nil {
		return time.Time{}, err
	}
	if !active {
		return time.Time{}, fmt.Errorf("override: panic is not active")
	}
	newExpiration := expiration.Add(delta)
	return newExpiration, p.m.write(newExpiration)
}

// Active reports whether panic is currently in effect at now, and its
// current expiration. There is deliberately no End method: panic clears
// only on expiration.
func (p *PanicState) Active(now time.Time) (bool, time.Time, error) {
	expiration, exists, err := p.m.read()
	if err != nil || !exists {
		return false, time.Time{}, err
	}
	return now.Before(expiration), expiration, nil
}
