package protection

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"domainguard/internal/lockfile"
)

// UnlockStatus is the lifecycle state of an UnlockRequest.
type UnlockStatus string

const (
	UnlockPending   UnlockStatus = "pending"
	UnlockExecuted  UnlockStatus = "executed"
	UnlockCancelled UnlockStatus = "cancelled"
)

// UnlockRequest represents a delayed removal of a locked policy item or of
// the PIN itself (spec.md §4.8's "PIN removal is itself a pending action
// with a 24-hour delay", generalized per SPEC_FULL.md §3 to any locked
// item). Kept in its own store, distinct from internal/pending.Store,
// because its target-uniqueness and eligibility rules differ: it is the
// mechanism that *creates* eligibility for removing a locked/never item,
// not a delayed unblock of an already-unlocked one.
type UnlockRequest struct {
	ID         string       `json:"id"`
	ItemType   string       `json:"item_type"` // "domain" | "category" | "native_category" | "native_service" | "pin"
	ItemID     string       `json:"item_id"`
	Reason     string       `json:"reason,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	ExecuteAt  time.Time    `json:"execute_at"`
	Status     UnlockStatus `json:"status"`
}

type unlockFile struct {
	Requests []UnlockRequest `json:"requests"`
}

// UnlockStore is the file-backed queue of pending unlock requests.
type UnlockStore struct {
	path string
	lock *lockfile.Lock
}

// NewUnlockStore returns an UnlockStore bound to path.
func NewUnlockStore(path string) (*UnlockStore, error) {
	s := &UnlockStore{path: path, lock: lockfile.New(path)}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.writeLocked(unlockFile{Requests: []UnlockRequest{}}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *UnlockStore) readLocked() (unlockFile, error) {
	if err := s.lock.RLock(); err != nil {
		return unlockFile{}, err
	}
	defer s.lock.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return unlockFile{Requests: []UnlockRequest{}}, nil
	}
	if err != nil {
		return unlockFile{}, fmt.Errorf("protection: read unlock requests: %w", err)
	}
	var uf unlockFile
	if err := json.Unmarshal(data, &uf); err != nil {
		return unlockFile{}, fmt.Errorf("protection: parse unlock requests: %w", err)
	}
	return uf, nil
}

func (s *UnlockStore) writeLocked(uf unlockFile) error {
	data, err := json.MarshalIndent(uf, "", "  ")
	if err != nil {
		return fmt.Errorf("protection: marshal unlock requests: %w", err)
	}
	if err := s.lock.WLock(); err != nil {
		return err
	}
	defer s.lock.Unlock()
	return lockfile.AtomicWrite(s.path, data, 0o644)
}

func generateUnlockID(now time.Time) (string, error) {
	raw := make([]byte, 6)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("protection: rng: %w", err)
	}
	suffix := make([]byte, 6)
	for i, b := range raw {
		suffix[i] = idSuffixAlphabet[int(b)%len(idSuffixAlphabet)]
	}
	return fmt.Sprintf("unl_%s_%s", now.UTC().Format("20060102_150405"), string(suffix)), nil
}

const idSuffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// RequestUnlock creates a new unlock request for itemType/itemID, due
// delayHours from now. delayHours is clamped to a minimum of 24 per
// spec.md §3/§4.8.
func (s *UnlockStore) RequestUnlock(itemType, itemID, reason string, delayHours int, now time.Time) (UnlockRequest, error) {
	if delayHours < 24 {
		delayHours = 24
	}
	uf, err := s.readLocked()
	if err != nil {
		return UnlockRequest{}, err
	}
	for _, r := range uf.Requests {
		if r.Status == UnlockPending && r.ItemType == itemType && r.ItemID == itemID {
			return UnlockRequest{}, fmt.Errorf("protection: %s %s already has a pending unlock request", itemType, itemID)
		}
	}
	id, err := generateUnlockID(now)
	if err != nil {
		return UnlockRequest{}, err
	}
	req := UnlockRequest{
		ID:        id,
		ItemType:  itemType,
		ItemID:    itemID,
		Reason:    reason,
		CreatedAt: now.UTC(),
		ExecuteAt: now.UTC().Add(time.Duration(delayHours) * time.Hour),
		Status:    UnlockPending,
	}
	uf.Requests = append(uf.Requests, req)
	if err := s.writeLocked(uf); err != nil {
		return UnlockRequest{}, err
	}
	return req, nil
}

// CancelUnlockRequest transitions a pending request to cancelled. Returns
// false if not found or already terminal.
func (s *UnlockStore) CancelUnlockRequest(id string) (bool, error) {
	uf, err := s.readLocked()
	if err != nil {
		return false, err
	}
	found := false
	for i := range uf.Requests {
		if uf.Requests[i].ID == id && uf.Requests[i].Status == UnlockPending {
			uf.Requests[i].Status = UnlockCancelled
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}
	return true, s.writeLocked(uf)
}

// DueRequests returns pending requests whose ExecuteAt has arrived.
func (s *UnlockStore) DueRequests(now time.Time) ([]UnlockRequest, error) {
	uf, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	var out []UnlockRequest
	for _, r := range uf.Requests {
		if r.Status == UnlockPending && !r.ExecuteAt.After(now.UTC()) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MarkExecuted transitions a request to executed.
func (s *UnlockStore) MarkExecuted(id string) error {
	uf, err := s.readLocked()
	if err != nil {
		return err
	}
	for i := range uf.Requests {
		if uf.Requests[i].ID == id {
			uf.Requests[i].Status = UnlockExecuted
			return s.writeLocked(uf)
		}
	}
	return fmt.Errorf("protection: unlock request %s not found", id)
}

// List returns all requests, optionally including terminal ones.
func (s *UnlockStore) List(includeHistory bool) ([]UnlockRequest, error) {
	uf, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	out := make([]UnlockRequest, 0, len(uf.Requests))
	for _, r := range uf.Requests {
		if r.Status == UnlockPending || includeHistory {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
