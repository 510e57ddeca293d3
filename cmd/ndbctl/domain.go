package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"domainguard/internal/errs"
	"domainguard/internal/events"
	"domainguard/internal/pending"

	"github.com/spf13/cobra"
)

var unblockCmd = &cobra.Command{
	Use:   "unblock <domain>",
	Short: "Remove a domain from the denylist, immediately or after its configured delay",
	Args:  cobra.ExactArgs(1),
	Run:   withApp(runUnblock),
}

var allowCmd = &cobra.Command{
	Use:   "allow <domain>",
	Short: "Add a domain to the allowlist",
	Args:  cobra.ExactArgs(1),
	Run:   withApp(runAllow),
}

var disallowCmd = &cobra.Command{
	Use:   "disallow <domain>",
	Short: "Remove a domain from the allowlist",
	Args:  cobra.ExactArgs(1),
	Run:   withApp(runDisallow),
}

// checkPanic refuses cmdName while panic is active, per the enumerated
// list in spec.md §4.5.
func checkPanic(a *app, cmdName string, now time.Time) error {
	active, expiration, err := a.panicState.Active(now)
	if err != nil {
		return err
	}
	if active {
		return &errs.OverrideViolation{Command: cmdName, Expiration: expiration}
	}
	return nil
}

// checkPINSession refuses cmdName unless a PIN session is active (or no
// PIN is configured), per spec.md §4.8.
func checkPINSession(a *app, cmdName string, now time.Time) error {
	ok, err := a.pinGate.RequireSession(now)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("ndbctl: %s requires PIN verification (run: protection pin verify)", cmdName)
	}
	return nil
}

func runUnblock(a *app, cmd *cobra.Command, args []string) error {
	now := a.clock.Now()
	domain := strings.ToLower(args[0])

	if err := checkPanic(a, "unblock", now); err != nil {
		return err
	}
	if err := checkPINSession(a, "unblock", now); err != nil {
		return err
	}

	pol, err := a.policyMgr.Current()
	if err != nil {
		return err
	}
	entry, _, found := pol.FindDomain(domain)
	if !found {
		return fmt.Errorf("ndbctl: %s is not in the policy", domain)
	}
	if entry.Locked || entry.UnblockDelay.Never {
		return fmt.Errorf("ndbctl: %s is protected and cannot be unblocked", domain)
	}

	if entry.UnblockDelay.Instant {
		ctx := context.Background()
		if err := a.remote.RemoveDeny(ctx, domain); err != nil {
			return err
		}
		_ = a.auditLog.Record(now, "user", events.Unblocked, domain, nil)
		a.eventBus.Publish(events.Event{At: now, Actor: "user", Verb: events.Unblocked, Object: domain})
		fmt.Printf("%s unblocked immediately\n", domain)
		return nil
	}

	action, err := a.pendingSt.Create(pending.TargetDomain, domain, entry.UnblockDelay.String(), entry.UnblockDelay.Duration, now)
	if err != nil {
		return err
	}
	_ = a.auditLog.Record(now, "user", events.PendingCreated, domain, map[string]string{"id": action.ID, "execute_at": action.ExecuteAt.Format(time.RFC3339)})
	a.eventBus.Publish(events.Event{At: now, Actor: "user", Verb: events.PendingCreated, Object: domain, Detail: map[string]string{"id": action.ID}})
	fmt.Printf("queued unblock of %s, id=%s, due %s\n", domain, action.ID, action.ExecuteAt.Format(time.RFC3339))
	return nil
}

func runAllow(a *app, cmd *cobra.Command, args []string) error {
	now := a.clock.Now()
	domain := strings.ToLower(args[0])

	if err := checkPanic(a, "allow", now); err != nil {
		return err
	}
	if err := checkPINSession(a, "allow", now); err != nil {
		return err
	}

	ctx := context.Background()
	if err := a.remote.AddAllow(ctx, domain); err != nil {
		return err
	}
	_ = a.auditLog.Record(now, "user", events.Allowed, domain, nil)
	a.eventBus.Publish(events.Event{At: now, Actor: "user", Verb: events.Allowed, Object: domain})
	fmt.Printf("%s added to allowlist\n", domain)
	return nil
}

func runDisallow(a *app, cmd *cobra.Command, args []string) error {
	now := a.clock.Now()
	domain := strings.ToLower(args[0])

	if err := checkPanic(a, "disallow", now); err != nil {
		return err
	}

	ctx := context.Background()
	if err := a.remote.RemoveAllow(ctx, domain); err != nil {
		return err
	}
	_ = a.auditLog.Record(now, "user", events.Disallowed, domain, nil)
	a.eventBus.Publish(events.Event{At: now, Actor: "user", Verb: events.Disallowed, Object: domain})
	fmt.Printf("%s removed from allowlist\n", domain)
	return nil
}
