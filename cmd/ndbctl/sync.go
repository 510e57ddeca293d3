package main

import (
	"context"
	"fmt"

	"domainguard/internal/lockfile"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	syncDryRun bool
	syncVerbose bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one reconciliation tick",
	Run: withApp(runSync),
}

func init() {
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "print the mutation plan without applying it")
	syncCmd.Flags().BoolVarP(&syncVerbose, "verbose", "v", false, "print per-item reasoning")
}

func runSync(a *app, cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Single-flight per spec.md §5: a losing process exits cleanly with an
	// audit note rather than racing the one already running.
	runLock := lockfile.New(a.cfg.RunLockPath())
	if err := runLock.TryWLock(); err != nil {
		if err == lockfile.ErrWouldBlock {
			now := a.clock.Now()
			_ = a.auditLog.Record(now, "user", "SYNC", "tick", map[string]string{"note": "skipped: tick in progress"})
			fmt.Println("a tick is already in progress; skipping")
			return nil
		}
		return err
	}
	defer runLock.Unlock()

	if err := a.policyMgr.Reload(); err != nil {
		a.log.Warn("policy reload failed, using previous snapshot", zap.Error(err))
	}

	now := a.clock.Now()
	summary, err := a.reconciler.Tick(ctx, now, syncDryRun)
	if err != nil {
		return err
	}

	if !syncDryRun {
		if err := a.processDueUnlockRequests(now); err != nil {
			a.log.Warn("unlock request processing failed", zap.Error(err))
		}
	}

	if syncDryRun {
		fmt.Println("dry run: plan would")
	}
	fmt.Printf("blocked=%d unblocked=%d allowed=%d disallowed=%d pc_on=%d pc_off=%d pending_executed=%d errors=%d duration=%s\n",
		summary.Blocked, summary.Unblocked, summary.Allowed, summary.Disallowed,
		summary.PCActivated, summary.PCDeactivated, summary.PendingExecuted,
		len(summary.Errors), summary.Duration)

	if syncVerbose {
		for _, e := range summary.Errors {
			fmt.Println("  -", e)
		}
	}
	return nil
}
