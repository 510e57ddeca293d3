// Package audit implements the append-only, structured decision/mutation
// log (C7): human-readable, line-oriented, one line per event, guarded by
// the same flock discipline as the other state files.
package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"domainguard/internal/events"
	"domainguard/internal/lockfile"
)

// Logger appends lines to path in the format spec.md §6 defines:
// "YYYY-MM-DDTHH:MM:SSZ | VERB | OBJECT | k=v k=v", with watchdog-actor
// entries carrying an extra " | WD | " segment after the timestamp.
type Logger struct {
	path string
	lock *lockfile.Lock
}

// New returns a Logger writing to path, creating its parent directory if
// needed.
func New(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit: mkdir: %w", err)
	}
	return &Logger{path: path, lock: lockfile.New(path)}, nil
}

// Record appends one audit line for an actor/verb/object/detail tuple at
// the given instant.
func (l *Logger) Record(at time.Time, actor string, verb events.Verb, object string, detail map[string]string) error {
	line := formatLine(at, actor, verb, object, detail)

	if err := l.lock.WLock(); err != nil {
		return err
	}
	defer l.lock.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open %s: %w", l.path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("audit: write: %w", err)
	}
	return f.Sync()
}

// RecordEvent is a convenience wrapper around Record for an events.Event.
func (l *Logger) RecordEvent(e events.Event) error {
	return l.Record(e.At, e.Actor, e.Verb, e.Object, e.Detail)
}

func formatLine(at time.Time, actor string, verb events.Verb, object string, detail map[string]string) string {
	var b strings.Builder
	b.WriteString(at.UTC().Format(time.RFC3339))
	b.WriteString(" | ")
	if actor == "watchdog" {
		b.WriteString("WD | ")
	}
	b.WriteString(string(verb))
	b.WriteString(" | ")
	b.WriteString(object)
	if len(detail) > 0 {
		b.WriteString(" | ")
		keys := make([]string, 0, len(detail))
		for k := range detail {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = fmt.Sprintf("%s=%s", k, detail[k])
		}
		b.WriteString(strings.Join(pairs, " "))
	}
	return b.String()
}
