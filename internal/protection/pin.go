// Package protection implements the PIN / Protection Gate (C8): an
// optional local PIN guarding sensitive operator commands, and the
// delayed unlock-request mechanism for locked policy items.
package protection

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"domainguard/internal/lockfile"
	"golang.org/x/crypto/pbkdf2"
	"crypto/sha256"
)

// MinPBKDF2Iterations is the floor spec.md §4.8/§3 mandates.
const MinPBKDF2Iterations = 600_000

// SessionDuration is how long a verified session lasts before re-prompting
// (spec.md §4.8).
const SessionDuration = 30 * time.Minute

// LockoutThreshold and LockoutWindow/LockoutDuration implement the
// 3-failures/15-minute gate.
const (
	LockoutThreshold = 3
	LockoutWindow    = 15 * time.Minute
	LockoutDuration  = 15 * time.Minute
)

type pinRecord struct {
	Salt       []byte `json:"salt"`
	Hash       []byte `json:"hash"`
	Iterations int    `json:"iterations"`
}

// Gate is the PIN state machine. "No PIN set" is the absence of the hash
// file, not a nil *Gate: while no PIN is set, RequireSession lets every
// gated operation through unchallenged.
type Gate struct {
	hashPath     string
	sessionPath  string
	attemptsPath string
	hashLock     *lockfile.Lock
	sessionLock  *lockfile.Lock
	attemptsLock *lockfile.Lock
}

// New returns a Gate backed by the three state files.
func New(hashPath, sessionPath, attemptsPath string) *Gate {
	return &Gate{
		hashPath:     hashPath,
		sessionPath:  sessionPath,
		attemptsPath: attemptsPath,
		hashLock:     lockfile.New(hashPath),
		sessionLock:  lockfile.New(sessionPath),
		attemptsLock: lockfile.New(attemptsPath),
	}
}

// HasPIN reports whether a PIN is currently set.
func (g *Gate) HasPIN() (bool, error) {
	if err := g.hashLock.RLock(); err != nil {
		return false, err
	}
	defer g.hashLock.Unlock()
	_, err := os.Stat(g.hashPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetPIN hashes pin with PBKDF2-SHA256 at >= MinPBKDF2Iterations and
// persists salt+hash. The plaintext PIN is never written to disk or
// logged.
func (g *Gate) SetPIN(pin string) error {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("protection: salt rng: %w", err)
	}
	hash := pbkdf2.Key([]byte(pin), salt, MinPBKDF2Iterations, 32, sha256.New)
	rec := pinRecord{Salt: salt, Hash: hash, Iterations: MinPBKDF2Iterations}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("protection: marshal pin record: %w", err)
	}
	if err := g.hashLock.WLock(); err != nil {
		return err
	}
	defer g.hashLock.Unlock()
	return lockfile.AtomicWrite(g.hashPath, data, 0o600)
}

// RemovePINUnconditionally deletes the PIN hash file directly. Callers in
// the CLI layer must not call this straight from a `protection pin
// remove`: per spec.md §4.8 PIN removal is gated by a 24h unlock request
// (see RequestUnlock in unlock.go); this method is what actually executes
// once that delay has elapsed.
func (g *Gate) RemovePINUnconditionally() error {
	if err := g.hashLock.WLock(); err != nil {
		return err
	}
	defer g.hashLock.Unlock()
	if err := os.Remove(g.hashPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("protection: remove pin hash: %w", err)
	}
	return nil
}

func (g *Gate) readRecord() (pinRecord, bool, error) {
	if err := g.hashLock.RLock(); err != nil {
		return pinRecord{}, false, err
	}
	defer g.hashLock.Unlock()

	data, err := os.ReadFile(g.hashPath)
	if os.IsNotExist(err) {
		return pinRecord{}, false, nil
	}
	if err != nil {
		return pinRecord{}, false, fmt.Errorf("protection: read pin hash: %w", err)
	}
	var rec pinRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return pinRecord{}, false, fmt.Errorf("protection: parse pin hash: %w", err)
	}
	return rec, true, nil
}

// failureLog is the rolling window of failed-verification timestamps.
type failureLog struct {
	Failures []time.Time `json:"failures"`
}

func (g *Gate) readFailures() (failureLog, error) {
	if err := g.attemptsLock.RLock(); err != nil {
		return failureLog{}, err
	}
	defer g.attemptsLock.Unlock()

	data, err := os.ReadFile(g.attemptsPath)
	if os.IsNotExist(err) {
		return failureLog{}, nil
	}
	if err != nil {
		return failureLog{}, fmt.Errorf("protection: read attempts: %w", err)
	}
	var fl failureLog
	if err := json.Unmarshal(data, &fl); err != nil {
		return failureLog{}, fmt.Errorf("protection: parse attempts: %w", err)
	}
	return fl, nil
}

func (g *Gate) writeFailures(fl failureLog) error {
	data, err := json.Marshal(fl)
	if err != nil {
		return fmt.Errorf("protection: marshal attempts: %w", err)
	}
	if err := g.attemptsLock.WLock(); err != nil {
		return err
	}
	defer g.attemptsLock.Unlock()
	return lockfile.AtomicWrite(g.attemptsPath, data, 0o600)
}

// recentFailures returns failures within LockoutWindow of now.
func recentFailures(fl failureLog, now time.Time) []time.Time {
	cutoff := now.Add(-LockoutWindow)
	out := fl.Failures[:0]
	for _, f := range fl.Failures {
		if f.After(cutoff) {
			out = append(out, f)
		}
	}
	return out
}

// LockedOut reports whether the gate is currently in its post-3-failures
// lockout window.
func (g *Gate) LockedOut(now time.Time) (bool, time.Time, error) {
	fl, err := g.readFailures()
	if err != nil {
		return false, time.Time{}, err
	}
	recent := recentFailures(fl, now)
	if len(recent) < LockoutThreshold {
		return false, time.Time{}, nil
	}
	lockUntil := recent[len(recent)-1].Add(LockoutDuration)
	return now.Before(lockUntil), lockUntil, nil
}

// Verify checks pin against the stored hash. On success it establishes a
// session valid for SessionDuration and clears the failure log. On
// mismatch it records a failure; after LockoutThreshold failures within
// LockoutWindow, the gate refuses further attempts for LockoutDuration.
func (g *Gate) Verify(pin string, now time.Time) (bool, error) {
	lockedOut, until, err := g.LockedOut(now)
	if err != nil {
		return false, err
	}
	if lockedOut {
		return false, fmt.Errorf("protection: locked out until %s", until.Format(time.RFC3339))
	}

	rec, exists, err := g.readRecord()
	if err != nil {
		return false, err
	}
	if !exists {
		return false, fmt.Errorf("protection: no PIN set")
	}

	candidate := pbkdf2.Key([]byte(pin), rec.Salt, rec.Iterations, len(rec.Hash), sha256.New)
	match := subtle.ConstantTimeCompare(candidate, rec.Hash) == 1

	if !match {
		fl, err := g.readFailures()
		if err != nil {
			return false, err
		}
		fl.Failures = append(recentFailures(fl, now), now)
		if err := g.writeFailures(fl); err != nil {
			return false, err
		}
		return false, nil
	}

	if err := g.writeFailures(failureLog{}); err != nil {
		return false, err
	}
	return true, g.startSession(now)
}

func (g *Gate) startSession(now time.Time) error {
	expiration := now.Add(SessionDuration)
	data := []byte(expiration.UTC().Format(time.RFC3339))
	if err := g.sessionLock.WLock(); err != nil {
		return err
	}
	defer g.sessionLock.Unlock()
	return lockfile.AtomicWrite(g.sessionPath, data, 0o600)
}

// SessionActive reports whether a verified session is still valid at now.
func (g *Gate) SessionActive(now time.Time) (bool, error) {
	if err := g.sessionLock.RLock(); err != nil {
		return false, err
	}
	defer g.sessionLock.Unlock()

	data, err := os.ReadFile(g.sessionPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("protection: read session: %w", err)
	}
	expiration, err := time.Parse(time.RFC3339, strings.TrimSpace(string(data)))
	if err != nil {
		return false, fmt.Errorf("protection: parse session: %w", err)
	}
	return now.Before(expiration), nil
}

// RequireSession reports whether the gated operation may proceed: either
// no PIN is configured, or a verified session is active.
func (g *Gate) RequireSession(now time.Time) (bool, error) {
	hasPIN, err := g.HasPIN()
	if err != nil {
		return false, err
	}
	if !hasPIN {
		return true, nil
	}
	return g.SessionActive(now)
}
