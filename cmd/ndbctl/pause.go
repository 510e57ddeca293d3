package main

import (
	"fmt"
	"time"

	"domainguard/internal/events"

	"github.com/spf13/cobra"
)

var pauseMinutes int

var pauseCmd = &cobra.Command{
	Use:   "pause [minutes]",
	Short: "Suppress new denylist additions for a duration",
	Args:  cobra.MaximumNArgs(1),
	Run:   withApp(runPause),
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "End an active pause immediately",
	Run:   withApp(runResume),
}

func init() {
	pauseCmd.Flags().IntVar(&pauseMinutes, "minutes", 30, "pause duration in minutes (overridden by a positional argument)")
}

func runPause(a *app, cmd *cobra.Command, args []string) error {
	now := a.clock.Now()
	if err := checkPanic(a, "pause", now); err != nil {
		return err
	}
	if err := checkPINSession(a, "pause", now); err != nil {
		return err
	}

	minutes := pauseMinutes
	if len(args) == 1 {
		var parsed int
		if _, err := fmt.Sscanf(args[0], "%d", &parsed); err != nil {
			return fmt.Errorf("ndbctl: invalid minutes %q", args[0])
		}
		minutes = parsed
	}
	duration := time.Duration(minutes) * time.Minute

	if err := a.pause.Begin(duration, now); err != nil {
		return err
	}
	_ = a.auditLog.Record(now, "user", events.Paused, "pause", map[string]string{"minutes": fmt.Sprint(minutes)})
	a.eventBus.Publish(events.Event{At: now, Actor: "user", Verb: events.Paused, Object: "pause"})
	fmt.Printf("paused until %s\n", now.Add(duration).Format(time.RFC3339))
	return nil
}

func runResume(a *app, cmd *cobra.Command, args []string) error {
	now := a.clock.Now()
	if err := checkPanic(a, "resume", now); err != nil {
		return err
	}
	if err := a.pause.End(); err != nil {
		return err
	}
	_ = a.auditLog.Record(now, "user", events.Resumed, "pause", nil)
	a.eventBus.Publish(events.Event{At: now, Actor: "user", Verb: events.Resumed, Object: "pause"})
	fmt.Println("resumed")
	return nil
}
