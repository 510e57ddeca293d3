package main

import (
	"fmt"
	"time"

	"domainguard/internal/events"
	"domainguard/internal/override"

	"github.com/spf13/cobra"
)

var panicCmd = &cobra.Command{
	Use:   "panic <duration>",
	Short: "Force every blocklist domain and configured category/service to blocked/active",
	Args:  cobra.ExactArgs(1),
	Run:   withApp(runPanicBegin),
}

var panicStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether panic is active and its expiration",
	Run:   withApp(runPanicStatus),
}

var panicExtendCmd = &cobra.Command{
	Use:   "extend <duration>",
	Short: "Extend an active panic window",
	Args:  cobra.ExactArgs(1),
	Run:   withApp(runPanicExtend),
}

func init() {
	panicCmd.AddCommand(panicStatusCmd)
	panicCmd.AddCommand(panicExtendCmd)
}

// parseCLIDuration accepts the policy grammar's units (m/h/d) in addition
// to Go's native time.ParseDuration suffixes, since operators typing
// "panic 20m" expect the same grammar as the policy file.
func parseCLIDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if len(s) >= 2 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s[:len(s)-1], "%d", &days); err == nil {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	return 0, fmt.Errorf("ndbctl: invalid duration %q", s)
}

func runPanicBegin(a *app, cmd *cobra.Command, args []string) error {
	now := a.clock.Now()
	duration, err := parseCLIDuration(args[0])
	if err != nil {
		return err
	}

	expiration, err := a.panicState.Begin(duration, now)
	if err != nil {
		if err == override.ErrDurationTooShort {
			return fmt.Errorf("ndbctl: %w", err)
		}
		if err == override.ErrPanicActive {
			return fmt.Errorf("ndbctl: panic already active, use 'panic extend' instead")
		}
		return err
	}
	_ = a.auditLog.Record(now, "user", events.PanicStarted, "panic", map[string]string{"expiration": expiration.Format(time.RFC3339)})
	a.eventBus.Publish(events.Event{At: now, Actor: "user", Verb: events.PanicStarted, Object: "panic"})
	fmt.Printf("panic active until %s\n", expiration.Format(time.RFC3339))
	return nil
}

func runPanicStatus(a *app, cmd *cobra.Command, args []string) error {
	now := a.clock.Now()
	active, expiration, err := a.panicState.Active(now)
	if err != nil {
		return err
	}
	if !active {
		fmt.Println("panic: inactive")
		return nil
	}
	fmt.Printf("panic: active until %s\n", expiration.Format(time.RFC3339))
	return nil
}

func runPanicExtend(a *app, cmd *cobra.Command, args []string) error {
	now := a.clock.Now()
	delta, err := parseCLIDuration(args[0])
	if err != nil {
		return err
	}
	expiration, err := a.panicState.Extend(delta, now)
	if err != nil {
		return err
	}
	_ = a.auditLog.Record(now, "user", events.PanicExtended, "panic", map[string]string{"expiration": expiration.Format(time.RFC3339)})
	a.eventBus.Publish(events.Event{At: now, Actor: "user", Verb: events.PanicExtended, Object: "panic"})
	fmt.Printf("panic extended to %s\n", expiration.Format(time.RFC3339))
	return nil
}
