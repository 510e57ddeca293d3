package main

import (
	"fmt"
	"os"
	"time"

	"domainguard/internal/watchdog"

	"github.com/spf13/cobra"
)

var watchdogCmd = &cobra.Command{
	Use:   "watchdog",
	Short: "Manage the platform-scheduled periodic tick invoker",
}

var watchdogInstallCmd = &cobra.Command{Use: "install", Short: "Register the scheduled tick", Run: withApp(runWatchdogInstall)}
var watchdogUninstallCmd = &cobra.Command{Use: "uninstall", Short: "Remove the scheduled tick", Run: withApp(runWatchdogUninstall)}
var watchdogStatusCmd = &cobra.Command{Use: "status", Short: "Show whether the scheduled tick is registered", Run: withApp(runWatchdogStatus)}
var watchdogEnableCmd = &cobra.Command{Use: "enable", Short: "Re-arm a disabled watchdog", Run: withApp(runWatchdogEnable)}

var watchdogDisableMinutes int
var watchdogDisablePermanent bool
var watchdogDisableCmd = &cobra.Command{Use: "disable", Short: "Write the disable marker (checked by the in-process runner; OS-scheduled sync runs do not read it)", Run: withApp(runWatchdogDisable)}

func init() {
	watchdogDisableCmd.Flags().IntVar(&watchdogDisableMinutes, "minutes", 0, "disable for this many minutes (0 with --permanent disables indefinitely)")
	watchdogDisableCmd.Flags().BoolVar(&watchdogDisablePermanent, "permanent", false, "disable until explicitly re-enabled")

	watchdogCmd.AddCommand(watchdogInstallCmd)
	watchdogCmd.AddCommand(watchdogUninstallCmd)
	watchdogCmd.AddCommand(watchdogStatusCmd)
	watchdogCmd.AddCommand(watchdogEnableCmd)
	watchdogCmd.AddCommand(watchdogDisableCmd)
}

const watchdogLabel = "io.domainguard.ndbctl.tick"

func watchdogSpec(a *app) (watchdog.InstallSpec, error) {
	self, err := os.Executable()
	if err != nil {
		return watchdog.InstallSpec{}, fmt.Errorf("ndbctl: resolve own path: %w", err)
	}
	return watchdog.InstallSpec{
		BinaryPath: self,
		Args:       []string{"sync", "--config", configPath},
		Interval:   a.cfg.TickInterval,
		Label:      watchdogLabel,
	}, nil
}

func runWatchdogInstall(a *app, cmd *cobra.Command, args []string) error {
	spec, err := watchdogSpec(a)
	if err != nil {
		return err
	}
	sched := watchdog.Detect()
	if err := sched.Install(spec); err != nil {
		return err
	}
	fmt.Printf("installed via %s, every %s\n", sched.Name(), spec.Interval)
	return nil
}

func runWatchdogUninstall(a *app, cmd *cobra.Command, args []string) error {
	spec, err := watchdogSpec(a)
	if err != nil {
		return err
	}
	sched := watchdog.Detect()
	if err := sched.Uninstall(spec); err != nil {
		if err == watchdog.ErrNotInstalled {
			fmt.Println("not installed")
			return nil
		}
		return err
	}
	fmt.Println("uninstalled")
	return nil
}

func runWatchdogStatus(a *app, cmd *cobra.Command, args []string) error {
	spec, err := watchdogSpec(a)
	if err != nil {
		return err
	}
	sched := watchdog.Detect()
	present, err := sched.Status(spec)
	if err != nil {
		return err
	}
	fmt.Printf("scheduler: %s\n", sched.Name())
	fmt.Printf("registered: %t\n", present)
	return nil
}

func runWatchdogEnable(a *app, cmd *cobra.Command, args []string) error {
	if err := watchdog.Enable(a.cfg.WatchdogDisableMarkerPath()); err != nil {
		return err
	}
	fmt.Println("enabled")
	return nil
}

func runWatchdogDisable(a *app, cmd *cobra.Command, args []string) error {
	now := a.clock.Now()
	var duration *time.Duration
	if !watchdogDisablePermanent {
		d := time.Duration(watchdogDisableMinutes) * time.Minute
		duration = &d
	}
	if err := watchdog.Disable(a.cfg.WatchdogDisableMarkerPath(), duration, now); err != nil {
		return err
	}
	if watchdogDisablePermanent {
		fmt.Println("disabled permanently")
	} else {
		fmt.Printf("disabled until %s\n", now.Add(*duration).Format(time.RFC3339))
	}
	return nil
}
