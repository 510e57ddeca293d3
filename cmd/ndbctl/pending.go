package main

import (
	"fmt"
	"time"

	"domainguard/internal/events"

	"github.com/spf13/cobra"
)

var pendingIncludeHistory bool

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Inspect and manage queued delayed unblocks",
}

var pendingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending actions",
	Run:   withApp(runPendingList),
}

var pendingShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one pending action",
	Args:  cobra.ExactArgs(1),
	Run:   withApp(runPendingShow),
}

var pendingCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a pending action before it executes",
	Args:  cobra.ExactArgs(1),
	Run:   withApp(runPendingCancel),
}

func init() {
	pendingListCmd.Flags().BoolVar(&pendingIncludeHistory, "history", false, "include executed/cancelled actions")
	pendingCmd.AddCommand(pendingListCmd)
	pendingCmd.AddCommand(pendingShowCmd)
	pendingCmd.AddCommand(pendingCancelCmd)
}

func runPendingList(a *app, cmd *cobra.Command, args []string) error {
	actions, err := a.pendingSt.List(pendingIncludeHistory)
	if err != nil {
		return err
	}
	for _, act := range actions {
		fmt.Printf("%s  %-10s %-30s due %s  status=%s\n", act.ID, act.TargetType, act.Target,
			act.ExecuteAt.Format(time.RFC3339), act.Status)
	}
	return nil
}

func runPendingShow(a *app, cmd *cobra.Command, args []string) error {
	act, found, err := a.pendingSt.Get(args[0])
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("ndbctl: pending action %s not found", args[0])
	}
	fmt.Printf("id:         %s\n", act.ID)
	fmt.Printf("target:     %s (%s)\n", act.Target, act.TargetType)
	fmt.Printf("created_at: %s\n", act.CreatedAt.Format(time.RFC3339))
	fmt.Printf("execute_at: %s\n", act.ExecuteAt.Format(time.RFC3339))
	fmt.Printf("delay:      %s\n", act.Delay)
	fmt.Printf("status:     %s\n", act.Status)
	if act.Outcome != "" {
		fmt.Printf("outcome:    %s\n", act.Outcome)
	}
	return nil
}

func runPendingCancel(a *app, cmd *cobra.Command, args []string) error {
	now := a.clock.Now()
	ok, err := a.pendingSt.Cancel(args[0], now)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("%s is not a cancellable pending action\n", args[0])
		return nil
	}
	_ = a.auditLog.Record(now, "user", events.PendingCancelled, args[0], nil)
	a.eventBus.Publish(events.Event{At: now, Actor: "user", Verb: events.PendingCancelled, Object: args[0]})
	fmt.Printf("%s cancelled\n", args[0])
	return nil
}
