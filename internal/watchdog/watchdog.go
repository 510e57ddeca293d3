// Package watchdog implements the Watchdog (C9): a platform-scheduled
// invoker of reconciler ticks at a fixed cadence, plus a self-heal task
// that verifies its own registration still exists and re-installs it if
// missing. Platform scheduling is a strategy family (spec.md §9) selected
// at startup by Detect; each Scheduler shells out to the host's scheduling
// tool the same way the teacher's internal/services wraps ndsctl/dnsmasq
// binaries via os/exec.
package watchdog

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"
)

// InstallSpec carries what a Scheduler needs to register the periodic
// tick invocation: the binary to run, the arguments to pass it, and the
// cadence to run it at.
type InstallSpec struct {
	BinaryPath string
	Args       []string
	Interval   time.Duration
	Label      string // platform-specific identifier (launchd label, systemd unit name, cron comment tag)
}

// Scheduler is the platform-specific surface the watchdog CLI verbs
// install/uninstall/status drive (enable/disable only write or remove the
// marker file, see Disable and Enable). Each implementation
// owns exactly one platform's scheduling primitive.
type Scheduler interface {
	// Name identifies the strategy for status output and logging.
	Name() string
	// Install registers spec with the platform scheduler.
	Install(spec InstallSpec) error
	// Uninstall removes any registration made by Install.
	Uninstall(spec InstallSpec) error
	// Status reports whether the registration currently exists.
	Status(spec InstallSpec) (bool, error)
}

// Detect selects the Scheduler for the running platform, per spec.md §4.9
// and §9: launchd on macOS; systemd user-timer on Linux when
// /run/systemd/system exists and the kernel isn't WSL; crontab as the
// Linux/WSL fallback; Task Scheduler on Windows.
func Detect() Scheduler {
	switch runtime.GOOS {
	case "darwin":
		return &Launchd{}
	case "windows":
		return &SchTasks{}
	default:
		if isWSL() {
			return &Cron{}
		}
		if hasSystemd() {
			return &Systemd{}
		}
		return &Cron{}
	}
}

func hasSystemd() bool {
	_, err := os.Stat("/run/systemd/system")
	return err == nil
}

func isWSL() bool {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(data)), "microsoft")
}

// ErrNotInstalled is returned by Uninstall when no registration exists.
var ErrNotInstalled = fmt.Errorf("watchdog: not installed")

// SelfHeal returns the 300s-cadence closure Runner invokes: it checks
// whether spec's registration still exists on sched and re-installs it if
// missing (spec.md §4.9 "self-reinstalls itself").
func SelfHeal(sched Scheduler, spec InstallSpec, onMissing func(error), onReinstalled func(), onHealthy func()) func() {
	return func() {
		present, err := sched.Status(spec)
		if err != nil {
			if onMissing != nil {
				onMissing(err)
			}
			return
		}
		if present {
			if onHealthy != nil {
				onHealthy()
			}
			return
		}
		if err := sched.Install(spec); err != nil {
			if onMissing != nil {
				onMissing(err)
			}
			return
		}
		if onReinstalled != nil {
			onReinstalled()
		}
	}
}
