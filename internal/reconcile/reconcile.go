// Package reconcile implements the Reconciler (C6), the central algorithm:
// each tick computes desired state from the policy, overrides, and pending
// queue, diffs it against the cached remote state, and applies a minimal,
// deterministic mutation plan.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"domainguard/internal/audit"
	"domainguard/internal/clock"
	"domainguard/internal/errs"
	"domainguard/internal/events"
	"domainguard/internal/override"
	"domainguard/internal/pending"
	"domainguard/internal/policy"
	"domainguard/internal/remote"

	"go.uber.org/zap"
)

// TickSummary is the counters/duration report published at the end of
// every tick (spec.md §4.6 step 8).
type TickSummary struct {
	Blocked         int
	Unblocked       int
	Allowed         int
	Disallowed      int
	PCActivated     int
	PCDeactivated   int
	PendingExecuted int
	Errors          []string
	Duration        time.Duration
	DryRun          bool
}

// Reconciler owns the wiring between the policy model, the override layer,
// the pending-action store, and the remote client, and implements Tick.
type Reconciler struct {
	Policy  *policy.Manager
	Remote  remote.Client
	Pending *pending.Store
	Pause   *override.PauseState
	Panic   *override.PanicState
	Clock   clock.Clock
	Audit   *audit.Logger
	Events  *events.Bus
	Log     *zap.Logger
}

// Tick executes one full reconciliation cycle. dryRun short-circuits
// mutation application (step 6) but still runs GC and publishes a summary,
// per spec.md §4.6.
func (r *Reconciler) Tick(ctx context.Context, now time.Time, dryRun bool) (*TickSummary, error) {
	start := time.Now()
	summary := &TickSummary{DryRun: dryRun}

	pol, err := r.Policy.Current()
	if err != nil {
		return nil, fmt.Errorf("reconcile: no policy snapshot: %w", err)
	}

	panicActive, panicExpiration, err := r.Panic.Active(now)
	if err != nil {
		return nil, fmt.Errorf("reconcile: panic state: %w", err)
	}
	pauseActive, _, err := r.Pause.Active(now)
	if err != nil {
		return nil, fmt.Errorf("reconcile: pause state: %w", err)
	}
	// Panic dominates pause (spec.md §4.5).
	if panicActive {
		pauseActive = false
	}

	remoteDeny, err := r.listAsSet(ctx, r.Remote.GetDenylist)
	if err != nil {
		return nil, err
	}
	remoteAllow, err := r.listAsSet(ctx, r.Remote.GetAllowlist)
	if err != nil {
		return nil, err
	}
	pcState, err := r.Remote.GetParentalControl(ctx)
	if err != nil {
		return nil, err
	}

	desiredBlock, blockConflictErrs := r.desiredBlockSet(pol, now, panicActive)
	desiredAllow := r.desiredAllowSet(pol, now, panicActive)
	desiredPCCatOn := r.desiredNativeSet(pol.NativeCategories, now, pol.Settings.Timezone, panicActive)
	desiredPCSvcOn := r.desiredNativeSet(pol.NativeServices, now, pol.Settings.Timezone, panicActive)

	for _, e := range blockConflictErrs {
		summary.Errors = append(summary.Errors, e.Error())
		r.Log.Warn("policy conflict", zap.Error(e))
	}

	// Step 3: drop any domain present in both desired sets (hard
	// configuration error for the tick, per-domain skip).
	for d := range desiredBlock {
		if desiredAllow[d] {
			delete(desiredBlock, d)
			delete(desiredAllow, d)
			conflict := &errs.PolicyConflict{Domain: d, Reason: "present in both blocklist and allowlist desired sets"}
			summary.Errors = append(summary.Errors, conflict.Error())
			r.Log.Warn("policy conflict", zap.Error(conflict))
		}
	}

	// Step 4: process due pending actions.
	if !panicActive {
		due, err := r.Pending.DueActions(now)
		if err != nil {
			return nil, err
		}
		for _, action := range due {
			target := strings.ToLower(action.Target)
			if desiredBlock[target] {
				delete(desiredBlock, target)
				r.publish(events.Event{At: now, Actor: "reconciler", Verb: events.PendingExecuted, Object: target,
					Warning: true, Detail: map[string]string{"note": "re-blocks next tick per schedule"}})
			}
			if dryRun {
				summary.PendingExecuted++
				continue
			}
			if err := r.Pending.MarkExecuted(action.ID, "unblocked", now); err != nil {
				summary.Errors = append(summary.Errors, err.Error())
				continue
			}
			summary.PendingExecuted++
			r.auditRecord(now, "reconciler", events.PendingExecuted, action.Target, map[string]string{"id": action.ID})
			r.publish(events.Event{At: now, Actor: "reconciler", Verb: events.PendingExecuted, Object: action.Target,
				Detail: map[string]string{"id": action.ID}})
		}
	}

	configuredCategories := nativeIDs(pol.NativeCategories)
	configuredServices := nativeIDs(pol.NativeServices)
	currentPCCatOn := filterKnown(pcState.ActiveCategories, configuredCategories)
	currentPCSvcOn := filterKnown(pcState.ActiveServices, configuredServices)

	plan := buildPlan(desiredBlock, remoteDeny, desiredAllow, remoteAllow, pauseActive,
		desiredPCCatOn, currentPCCatOn, configuredCategories,
		desiredPCSvcOn, currentPCSvcOn, configuredServices)

	if !dryRun {
		r.apply(ctx, now, plan, summary)
	} else {
		for _, m := range plan.Mutations {
			tallyDryRun(summary, m)
		}
	}

	removed, err := r.Pending.GC(now)
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
	} else if removed > 0 {
		r.Log.Info("pending gc", zap.Int("removed", removed))
	}

	summary.Duration = time.Since(start)

	if !dryRun {
		r.auditRecord(now, "reconciler", events.Sync, "tick", map[string]string{
			"blocked": fmt.Sprint(summary.Blocked), "unblocked": fmt.Sprint(summary.Unblocked),
			"allowed": fmt.Sprint(summary.Allowed), "disallowed": fmt.Sprint(summary.Disallowed),
			"errors": fmt.Sprint(len(summary.Errors)),
		})
	}
	_ = panicExpiration
	return summary, nil
}

func (r *Reconciler) listAsSet(ctx context.Context, fn func(context.Context) ([]string, error)) (map[string]bool, error) {
	list, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(list))
	for _, d := range list {
		set[strings.ToLower(d)] = true
	}
	return set, nil
}

// desiredBlockSet implements step 2's blocklist and user-category logic.
// Returns conflicts for the caller to fold into the tick summary (spec.md
// §7 PolicyConflict is per-item, not fatal to the tick).
func (r *Reconciler) desiredBlockSet(pol *policy.Policy, now time.Time, panicActive bool) (map[string]bool, []error) {
	desired := make(map[string]bool)
	var conflicts []error

	addOrEvaluate := func(domain string, schedule *clock.Schedule, label string) {
		key := strings.ToLower(domain)
		if panicActive {
			desired[key] = true
			return
		}
		if schedule == nil {
			desired[key] = true
			return
		}
		available, err := clock.IsAvailable(schedule, now, pol.Settings.Timezone)
		if err != nil {
			conflicts = append(conflicts, fmt.Errorf("reconcile: %s %s: %w", label, domain, err))
			return
		}
		if !available {
			desired[key] = true
		}
	}

	for _, e := range pol.Blocklist {
		addOrEvaluate(e.Domain, e.Schedule, "blocklist")
	}
	for _, cat := range pol.Categories {
		for _, d := range cat.Domains {
			addOrEvaluate(d, cat.Schedule, "category:"+cat.ID)
		}
	}
	return desired, conflicts
}

// desiredAllowSet implements step 2's allowlist logic.
func (r *Reconciler) desiredAllowSet(pol *policy.Policy, now time.Time, panicActive bool) map[string]bool {
	desired := make(map[string]bool)
	if panicActive {
		return desired // panic: skip all allowlist additions
	}
	for _, e := range pol.Allowlist {
		key := strings.ToLower(e.Domain)
		if e.Schedule == nil {
			desired[key] = true
			continue
		}
		available, err := clock.IsAvailable(e.Schedule, now, pol.Settings.Timezone)
		if err != nil {
			continue
		}
		if available {
			desired[key] = true
		}
	}
	return desired
}

// desiredNativeSet implements step 2's native category/service logic,
// which mirrors blocklist semantics.
func (r *Reconciler) desiredNativeSet(entries []policy.NativeEntry, now time.Time, zone string, panicActive bool) map[string]bool {
	desired := make(map[string]bool)
	for _, e := range entries {
		if panicActive {
			desired[e.ID] = true
			continue
		}
		if e.Schedule == nil {
			desired[e.ID] = true
			continue
		}
		available, err := clock.IsAvailable(e.Schedule, now, zone)
		if err != nil {
			r.Log.Warn("native entry schedule error", zap.String("id", e.ID), zap.Error(err))
			continue
		}
		if !available {
			desired[e.ID] = true
		}
	}
	return desired
}

func nativeIDs(entries []policy.NativeEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func filterKnown(active map[string]bool, known []string) map[string]bool {
	out := make(map[string]bool)
	for _, id := range known {
		if active[id] {
			out[id] = true
		}
	}
	return out
}

func (r *Reconciler) publish(e events.Event) {
	if r.Events != nil {
		r.Events.Publish(e)
	}
}

func (r *Reconciler) auditRecord(now time.Time, actor string, verb events.Verb, object string, detail map[string]string) {
	if r.Audit == nil {
		return
	}
	if err := r.Audit.Record(now, actor, verb, object, detail); err != nil {
		r.Log.Error("audit write failed", zap.Error(err))
	}
}

func tallyDryRun(summary *TickSummary, m Mutation) {
	switch m.Kind {
	case DenyAdd:
		summary.Blocked++
	case DenyRemove:
		summary.Unblocked++
	case AllowAdd:
		summary.Allowed++
	case AllowRemove:
		summary.Disallowed++
	case PCCategory, PCService:
		if m.Active {
			summary.PCActivated++
		} else {
			summary.PCDeactivated++
		}
	}
}

// apply executes the plan's mutations against the remote client in order.
// A per-item failure is logged into the summary and does not abort the
// tick (spec.md §4.6 step 6).
func (r *Reconciler) apply(ctx context.Context, now time.Time, plan *Plan, summary *TickSummary) {
	for _, m := range plan.Mutations {
		var err error
		switch m.Kind {
		case DenyRemove:
			err = r.Remote.RemoveDeny(ctx, m.Target)
			if err == nil {
				summary.Unblocked++
				r.auditRecord(now, "reconciler", events.Unblocked, m.Target, nil)
				r.publish(events.Event{At: now, Actor: "reconciler", Verb: events.Unblocked, Object: m.Target})
			}
		case DenyAdd:
			err = r.Remote.AddDeny(ctx, m.Target)
			if err == nil {
				summary.Blocked++
				r.auditRecord(now, "reconciler", events.Blocked, m.Target, nil)
				r.publish(events.Event{At: now, Actor: "reconciler", Verb: events.Blocked, Object: m.Target})
			}
		case AllowRemove:
			err = r.Remote.RemoveAllow(ctx, m.Target)
			if err == nil {
				summary.Disallowed++
				r.auditRecord(now, "reconciler", events.Disallowed, m.Target, nil)
				r.publish(events.Event{At: now, Actor: "reconciler", Verb: events.Disallowed, Object: m.Target})
			}
		case AllowAdd:
			err = r.Remote.AddAllow(ctx, m.Target)
			if err == nil {
				summary.Allowed++
				r.auditRecord(now, "reconciler", events.Allowed, m.Target, nil)
				r.publish(events.Event{At: now, Actor: "reconciler", Verb: events.Allowed, Object: m.Target})
			}
		case PCCategory:
			err = r.Remote.SetCategory(ctx, m.Target, m.Active)
			if err == nil {
				tallyPC(summary, m.Active)
				r.auditRecord(now, "reconciler", pcVerb(m.Active), m.Target, nil)
			}
		case PCService:
			err = r.Remote.SetService(ctx, m.Target, m.Active)
			if err == nil {
				tallyPC(summary, m.Active)
				r.auditRecord(now, "reconciler", pcVerb(m.Active), m.Target, nil)
			}
		}
		if err != nil {
			summary.Errors = append(summary.Errors, err.Error())
			r.Log.Warn("mutation failed, will retry next tick", zap.String("target", m.Target), zap.Error(err))
		}
	}
}

func tallyPC(summary *TickSummary, active bool) {
	if active {
		summary.PCActivated++
	} else {
		summary.PCDeactivated++
	}
}

func pcVerb(active bool) events.Verb {
	if active {
		return events.PCActivated
	}
	return events.PCDeactivated
}
