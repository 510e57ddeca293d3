package watchdog

import (
	"context"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// TickFunc runs one reconciler tick. Runner doesn't depend on
// internal/reconcile directly so this package stays free of a cycle back
// to it; the caller supplies the concrete closure (cmd/ndbctl does not
// construct a Runner).
type TickFunc func(ctx context.Context, now time.Time)

// Runner owns the two in-process tickers spec.md §4.9 describes: a 120s
// tick invoking the reconciler, and a 300s self-heal invoking Verify. It is
// the in-process alternative to the platform Scheduler strategies, where
// the OS itself re-invokes the binary per tick.
// Grounded on the teacher's services/ticker.go stopChan/doneChan shape.
type Runner struct {
	TickInterval     time.Duration
	SelfHealInterval time.Duration
	DisableMarker    string
	Tick             TickFunc
	Verify           func()
	Log              *zap.Logger

	stopChan chan struct{}
	doneChan chan struct{}
}

// Start begins both ticker loops in a background goroutine.
func (r *Runner) Start(ctx context.Context) {
	r.stopChan = make(chan struct{})
	r.doneChan = make(chan struct{})

	tickTicker := time.NewTicker(r.TickInterval)
	healTicker := time.NewTicker(r.SelfHealInterval)

	go func() {
		defer close(r.doneChan)
		defer tickTicker.Stop()
		defer healTicker.Stop()
		for {
			select {
			case <-tickTicker.C:
				if r.disabled() {
					r.Log.Info("watchdog tick skipped: disabled")
					continue
				}
				r.Tick(ctx, time.Now())
			case <-healTicker.C:
				if r.Verify != nil {
					r.Verify()
				}
			case <-r.stopChan:
				return
			}
		}
	}()
	r.Log.Info("watchdog started", zap.Duration("tick_interval", r.TickInterval), zap.Duration("self_heal_interval", r.SelfHealInterval))
}

// Stop halts both loops and waits for the goroutine to exit.
func (r *Runner) Stop() {
	close(r.stopChan)
	<-r.doneChan
	r.Log.Info("watchdog stopped")
}

// disabled reports whether the disable marker is currently set and not yet
// expired. An empty marker file (written by a permanent disable) never
// expires.
func (r *Runner) disabled() bool {
	data, err := os.ReadFile(r.DisableMarker)
	if os.IsNotExist(err) {
		return false
	}
	if err != nil {
		return false
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return true // permanent disable
	}
	until, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return true
	}
	return time.Now().Before(until)
}

// Disable writes the marker file. A nil duration disables permanently
// (empty marker contents); otherwise the marker holds the expiration
// instant, and disabled reports false once it has passed. Nothing deletes
// an expired marker; Enable removes it.
func Disable(markerPath string, duration *time.Duration, now time.Time) error {
	var contents []byte
	if duration != nil {
		contents = []byte(now.Add(*duration).UTC().Format(time.RFC3339))
	}
	return os.WriteFile(markerPath, contents, 0o644)
}

// Enable removes the marker file, re-arming the watchdog immediately.
func Enable(markerPath string) error {
	err := os.Remove(markerPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
