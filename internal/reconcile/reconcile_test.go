package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"domainguard/internal/audit"
	"domainguard/internal/clock"
	"domainguard/internal/events"
	"domainguard/internal/override"
	"domainguard/internal/pending"
	"domainguard/internal/policy"
	"domainguard/internal/remote"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// harness bundles one Reconciler with fakes/mocks for every collaborator,
// grounded on the teacher's fake-everything style for its reconciliation
// tests.
type harness struct {
	t       *testing.T
	dir     string
	mgr     *policy.Manager
	remote  *remote.Fake
	pending *pending.Store
	pause   *override.PauseState
	panic   *override.PanicState
	mclock  *clock.MockClock
	audit   *audit.Logger
	events  *events.Bus
	recon   *Reconciler
}

func newHarness(t *testing.T, policyJSON string, now time.Time) *harness {
	t.Helper()
	dir := t.TempDir()

	policyPath := filepath.Join(dir, "policy.json")
	require.NoError(t, os.WriteFile(policyPath, []byte(policyJSON), 0o644))

	mgr := policy.NewManager(policyPath, zap.NewNop())
	require.NoError(t, mgr.Reload())

	pendingSt, err := pending.New(filepath.Join(dir, "pending.json"))
	require.NoError(t, err)

	auditLog, err := audit.New(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)

	h := &harness{
		t:       t,
		dir:     dir,
		mgr:     mgr,
		remote:  remote.NewFake(),
		pending: pendingSt,
		pause:   override.NewPauseState(filepath.Join(dir, ".paused")),
		panic:   override.NewPanicState(filepath.Join(dir, ".panic")),
		mclock:  clock.NewMockClock(now),
		audit:   auditLog,
		events:  events.NewBus(16),
	}
	h.recon = &Reconciler{
		Policy:  mgr,
		Remote:  h.remote,
		Pending: h.pending,
		Pause:   h.pause,
		Panic:   h.panic,
		Clock:   h.mclock,
		Audit:   h.audit,
		Events:  h.events,
		Log:     zap.NewNop(),
	}
	return h
}

func (h *harness) tick(dryRun bool) *TickSummary {
	h.t.Helper()
	summary, err := h.recon.Tick(context.Background(), h.mclock.Now(), dryRun)
	require.NoError(h.t, err)
	return summary
}

// S1: normal weekday evaluation. reddit.com is scheduled available
// Mon-Fri 12:00-13:00 and 18:00-22:00 America/New_York; outside those
// windows it must be in the denylist, inside them it must not be.
func TestTick_ScheduledBlock_NormalWeekday(t *testing.T) {
	pol := `{
  "version": "1",
  "settings": {"timezone": "America/New_York"},
  "blocklist": [
    {"domain": "reddit.com", "unblock_delay": "0", "schedule": {
      "available_hours": [
        {"days": ["monday","tuesday","wednesday","thursday","friday"],
         "time_ranges": [{"start":"12:00","end":"13:00"},{"start":"18:00","end":"22:00"}]}
      ]
    }}
  ],
  "allowlist": []
}`
	// Wednesday 2026-08-05 09:00 America/New_York -> outside windows -> blocked.
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	morning := time.Date(2026, 8, 5, 9, 0, 0, 0, loc)
	h := newHarness(t, pol, morning)

	summary := h.tick(false)
	require.Equal(t, 1, summary.Blocked)
	require.Equal(t, 1, h.remote.AddDenyCalls)
	deny, err := h.remote.GetDenylist(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"reddit.com"}, deny)

	// Advance into the lunch window -> must unblock.
	h.mclock.Set(time.Date(2026, 8, 5, 12, 30, 0, 0, loc))
	summary = h.tick(false)
	require.Equal(t, 1, summary.Unblocked)
	require.Equal(t, 1, h.remote.RemoveDenyCalls)
	deny, err = h.remote.GetDenylist(context.Background())
	require.NoError(t, err)
	require.Empty(t, deny)
}

// Invariant 3 + idempotence: two ticks over an unchanged remote and policy
// snapshot produce an empty plan on the second tick, and repeated
// AddDeny/RemoveDeny for the same target never fires twice.
func TestTick_Idempotent(t *testing.T) {
	pol := `{
  "version": "1",
  "settings": {"timezone": "UTC"},
  "blocklist": [{"domain": "always.example", "unblock_delay": "0"}],
  "allowlist": []
}`
	h := newHarness(t, pol, time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC))

	first := h.tick(false)
	require.Equal(t, 1, first.Blocked)
	require.Equal(t, 1, h.remote.AddDenyCalls)

	second := h.tick(false)
	require.Equal(t, 0, second.Blocked)
	require.Equal(t, 0, second.Unblocked)
	require.Equal(t, 1, h.remote.AddDenyCalls, "AddDeny must not be called again once the remote already matches desired state")
}

// S2: panic dominates. Two always-on blocklist domains; while panic is
// active both must be in the denylist and the allowlist gains nothing,
// matching invariant 4.
func TestTick_PanicForcesFullBlock(t *testing.T) {
	pol := `{
  "version": "1",
  "settings": {"timezone": "UTC"},
  "blocklist": [
    {"domain": "a.com", "unblock_delay": "0"},
    {"domain": "b.com", "unblock_delay": "0", "schedule": {
      "available_hours": [{"days": ["monday","tuesday","wednesday","thursday","friday","saturday","sunday"],
      "time_ranges": [{"start":"00:00","end":"23:59"}]}]
    }}
  ],
  "allowlist": [{"domain": "c.com", "unblock_delay": "0"}]
}`
	now := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, pol, now)

	_, err := h.panic.Begin(30*time.Minute, now)
	require.NoError(t, err)

	summary := h.tick(false)
	require.Equal(t, 2, summary.Blocked, "panic forces every blocklist entry active regardless of its schedule")
	require.Equal(t, 0, summary.Allowed, "panic must skip all allowlist additions")

	deny, err := h.remote.GetDenylist(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a.com", "b.com"}, deny)

	allow, err := h.remote.GetAllowlist(context.Background())
	require.NoError(t, err)
	require.Empty(t, allow)
}

// S3: delayed unblock. bumble.com carries a 24h unblock_delay; a pending
// action created at T0 must not take effect until its execute_at, and the
// domain must remain blocked for every intervening tick.
func TestTick_DelayedUnblock(t *testing.T) {
	pol := `{
  "version": "1",
  "settings": {"timezone": "UTC"},
  "blocklist": [{"domain": "bumble.com", "unblock_delay": "24h"}],
  "allowlist": []
}`
	t0 := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	h := newHarness(t, pol, t0)

	// Seed the remote with the domain already blocked, as if an earlier
	// tick had applied it.
	require.NoError(t, h.remote.AddDeny(context.Background(), "bumble.com"))
	h.remote.AddDenyCalls = 0

	action, err := h.pending.Create(pending.TargetDomain, "bumble.com", "24h", 24*time.Hour, t0)
	require.NoError(t, err)

	h.mclock.Set(t0.Add(1 * time.Hour))
	summary := h.tick(false)
	require.Equal(t, 0, summary.PendingExecuted)
	deny, err := h.remote.GetDenylist(context.Background())
	require.NoError(t, err)
	require.Contains(t, deny, "bumble.com")

	h.mclock.Set(t0.Add(23 * time.Hour))
	summary = h.tick(false)
	require.Equal(t, 0, summary.PendingExecuted)

	h.mclock.Set(t0.Add(24*time.Hour + time.Second))
	summary = h.tick(false)
	require.Equal(t, 1, summary.PendingExecuted)
	got, found, err := h.pending.Get(action.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, pending.StatusExecuted, got.Status)

	deny, err = h.remote.GetDenylist(context.Background())
	require.NoError(t, err)
	require.NotContains(t, deny, "bumble.com")
}

// S4: protected/locked domains are never part of an unblock pending
// action (enforced by the CLI, not the reconciler) and remain blocked on
// every tick regardless of elapsed time.
func TestTick_LockedDomainStaysBlocked(t *testing.T) {
	pol := `{
  "version": "1",
  "settings": {"timezone": "UTC"},
  "blocklist": [{"domain": "gambling.com", "unblock_delay": "never", "locked": true}],
  "allowlist": []
}`
	now := time.Date(2026, 8, 3, 8, 0, 0, 0, time.UTC)
	h := newHarness(t, pol, now)

	p, err := h.mgr.Current()
	require.NoError(t, err)
	entry, list, found := p.FindDomain("gambling.com")
	require.True(t, found)
	require.Equal(t, "blocklist", list)
	require.True(t, entry.Locked)
	require.True(t, entry.UnblockDelay.Never)

	summary := h.tick(false)
	require.Equal(t, 1, summary.Blocked)

	h.mclock.Advance(72 * time.Hour)
	summary = h.tick(false)
	require.Equal(t, 0, summary.Blocked)
	require.Equal(t, 0, summary.Unblocked)
	deny, err := h.remote.GetDenylist(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"gambling.com"}, deny)
}

// S5: allowlist subdomain override. amazon.com is blocked while
// aws.amazon.com is independently allowed; both desired sets are built
// from exact-match domain strings so the two coexist without treating the
// allowlist hit as an error, only as a policy warning surfaced upstream.
func TestTick_AllowlistSubdomainCoexistsWithBlock(t *testing.T) {
	pol := `{
  "version": "1",
  "settings": {"timezone": "UTC"},
  "blocklist": [{"domain": "amazon.com", "unblock_delay": "0"}],
  "allowlist": [{"domain": "aws.amazon.com", "unblock_delay": "0"}]
}`
	h := newHarness(t, pol, time.Date(2026, 8, 3, 8, 0, 0, 0, time.UTC))

	summary := h.tick(false)
	require.Equal(t, 1, summary.Blocked)
	require.Equal(t, 1, summary.Allowed)
	require.Empty(t, summary.Errors)

	deny, err := h.remote.GetDenylist(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"amazon.com"}, deny)
	allow, err := h.remote.GetAllowlist(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"aws.amazon.com"}, allow)
}

// S6: pause during a scheduled block onset. x.com is scheduled available
// Mon-Fri 09:00-17:00 UTC; once pause is engaged, the reconciler must not
// add a new deny entry for x.com even after its window closes, but must
// still remove any deny entry that was already in place.
func TestTick_PauseSuppressesNewDenyAdds(t *testing.T) {
	pol := `{
  "version": "1",
  "settings": {"timezone": "UTC"},
  "blocklist": [{"domain": "x.com", "unblock_delay": "0", "schedule": {
    "available_hours": [{"days": ["monday","tuesday","wednesday","thursday","friday"],
    "time_ranges": [{"start":"09:00","end":"17:00"}]}]
  }}],
  "allowlist": []
}`
	// Monday 2026-08-03 16:00 UTC: inside the available window, so x.com
	// starts off unblocked.
	monday := time.Date(2026, 8, 3, 16, 0, 0, 0, time.UTC)
	h := newHarness(t, pol, monday)

	// Pause engaged at 16:00 for 18 hours, i.e. active until Tuesday 10:00.
	err := h.pause.Begin(18*time.Hour, monday)
	require.NoError(t, err)

	// Advance past 17:00, when x.com would normally transition to blocked.
	h.mclock.Set(time.Date(2026, 8, 3, 17, 5, 0, 0, time.UTC))
	summary := h.tick(false)
	require.Equal(t, 0, summary.Blocked, "pause must suppress the new deny-add at the schedule boundary")
	deny, err := h.remote.GetDenylist(context.Background())
	require.NoError(t, err)
	require.Empty(t, deny)

	// Seed a pre-existing deny entry directly against the fake (as if
	// applied before pause began) and confirm pause still allows removal.
	require.NoError(t, h.remote.AddDeny(context.Background(), "x.com"))
	h.remote.AddDenyCalls = 0
	// Tuesday 09:30: inside the available window and still paused, so
	// x.com is no longer desired-blocked.
	h.mclock.Set(time.Date(2026, 8, 4, 9, 30, 0, 0, time.UTC))
	summary = h.tick(false)
	require.Equal(t, 1, summary.Unblocked, "pause only drops deny-adds, it never blocks deny-removals")
	require.Equal(t, 0, summary.Blocked)
}

// Step 3: a domain reachable through both a blocking category and the
// allowlist with no schedule on either side is a per-tick policy
// conflict, skipped on both sides and surfaced as a summary error rather
// than failing the tick. (Policy validation already rejects an exact
// blocklist/allowlist duplicate, so this path is only reachable through a
// category member colliding with an allowlist entry.)
func TestTick_BlockAllowConflictIsSkippedNotFatal(t *testing.T) {
	pol := `{
  "version": "1",
  "settings": {"timezone": "UTC"},
  "blocklist": [],
  "categories": [{"id": "conflicted", "domains": ["conflict.example"], "unblock_delay": "0"}],
  "allowlist": [{"domain": "conflict.example", "unblock_delay": "0"}]
}`
	h := newHarness(t, pol, time.Date(2026, 8, 3, 8, 0, 0, 0, time.UTC))

	summary := h.tick(false)
	require.Equal(t, 0, summary.Blocked)
	require.Equal(t, 0, summary.Allowed)
	require.NotEmpty(t, summary.Errors)

	deny, err := h.remote.GetDenylist(context.Background())
	require.NoError(t, err)
	require.Empty(t, deny)
}

// Native category/service toggles mirror blocklist semantics: an
// always-on configured category must be active, and a dry run must not
// mutate the remote while still tallying the would-be change.
func TestTick_NativeCategoryToggleAndDryRun(t *testing.T) {
	pol := `{
  "version": "1",
  "settings": {"timezone": "UTC"},
  "blocklist": [],
  "allowlist": [],
  "nextdns": {
    "categories": [{"id": "gambling", "unblock_delay": "0"}]
  }
}`
	h := newHarness(t, pol, time.Date(2026, 8, 3, 8, 0, 0, 0, time.UTC))

	dry := h.tick(true)
	require.Equal(t, 1, dry.PCActivated)
	pc, err := h.remote.GetParentalControl(context.Background())
	require.NoError(t, err)
	require.False(t, pc.ActiveCategories["gambling"], "dry run must not mutate the remote")

	real := h.tick(false)
	require.Equal(t, 1, real.PCActivated)
	pc, err = h.remote.GetParentalControl(context.Background())
	require.NoError(t, err)
	require.True(t, pc.ActiveCategories["gambling"])
}
