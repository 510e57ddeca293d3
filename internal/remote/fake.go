package remote

import (
	"context"
	"sort"
	"sync"
)

// Fake is an in-memory Client used throughout internal/reconcile's tests so
// no network I/O occurs in the suite. It also records call counts so tests
// can assert idempotence (spec.md §8: "addDeny(D); addDeny(D) results in
// exactly one POST").
type Fake struct {
	mu sync.Mutex

	deny     map[string]bool
	allow    map[string]bool
	catOn    map[string]bool
	svcOn    map[string]bool
	global   GlobalFlags

	AddDenyCalls    int
	RemoveDenyCalls int
	AddAllowCalls   int
	RemoveAllowCalls int

	// FailNext, if set, is returned (and cleared) by the next deny/allow
	// add or remove, SetCategory or SetService call;
	// UpdateParentalControlGlobal ignores it.
	FailNext error
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{
		deny:  map[string]bool{},
		allow: map[string]bool{},
		catOn: map[string]bool{},
		svcOn: map[string]bool{},
	}
}

func (f *Fake) consumeFailure() error {
	if f.FailNext != nil {
		err := f.FailNext
		f.FailNext = nil
		return err
	}
	return nil
}

func (f *Fake) GetDenylist(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortedKeys(f.deny), nil
}

func (f *Fake) GetAllowlist(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortedKeys(f.allow), nil
}

func (f *Fake) AddDeny(ctx context.Context, domain string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.consumeFailure(); err != nil {
		return err
	}
	f.AddDenyCalls++
	f.deny[domain] = true
	return nil
}

func (f *Fake) RemoveDeny(ctx context.Context, domain string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.consumeFailure(); err != nil {
		return err
	}
	f.RemoveDenyCalls++
	delete(f.deny, domain)
	return nil
}

func (f *Fake) AddAllow(ctx context.Context, domain string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.consumeFailure(); err != nil {
		return err
	}
	f.AddAllowCalls++
	f.allow[domain] = true
	return nil
}

func (f *Fake) RemoveAllow(ctx context.Context, domain string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.consumeFailure(); err != nil {
		return err
	}
	f.RemoveAllowCalls++
	delete(f.allow, domain)
	return nil
}

func (f *Fake) SetCategory(ctx context.Context, id string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.consumeFailure(); err != nil {
		return err
	}
	if active {
		f.catOn[id] = true
	} else {
		delete(f.catOn, id)
	}
	return nil
}

func (f *Fake) SetService(ctx context.Context, id string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.consumeFailure(); err != nil {
		return err
	}
	if active {
		f.svcOn[id] = true
	} else {
		delete(f.svcOn, id)
	}
	return nil
}

func (f *Fake) GetParentalControl(ctx context.Context) (ParentalControlState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cats := map[string]bool{}
	for k := range f.catOn {
		cats[k] = true
	}
	svcs := map[string]bool{}
	for k := range f.svcOn {
		svcs[k] = true
	}
	return ParentalControlState{ActiveCategories: cats, ActiveServices: svcs, Global: f.global}, nil
}

func (f *Fake) UpdateParentalControlGlobal(ctx context.Context, flags GlobalFlags) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.global = flags
	return nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var _ Client = (*Fake)(nil)
