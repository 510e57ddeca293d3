package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"domainguard/internal/events"
	"github.com/stretchr/testify/require"
)

func TestRecordFormatsLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.log")
	l, err := New(path)
	require.NoError(t, err)

	at := time.Date(2024, 1, 15, 19, 30, 0, 0, time.UTC)
	require.NoError(t, l.Record(at, "reconciler", events.Blocked, "reddit.com", map[string]string{"reason": "schedule"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "2024-01-15T19:30:00Z | BLOCK | reddit.com | reason=schedule\n", string(data))
}

func TestRecordWatchdogActorPrefixed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := New(path)
	require.NoError(t, err)

	at := time.Date(2024, 1, 15, 19, 30, 0, 0, time.UTC)
	require.NoError(t, l.Record(at, "watchdog", events.Sync, "tick", nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "2024-01-15T19:30:00Z | WD | SYNC | tick\n", string(data))
}

func TestRecordAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := New(path)
	require.NoError(t, err)

	at := time.Now()
	require.NoError(t, l.Record(at, "user", events.Paused, "60m", nil))
	require.NoError(t, l.Record(at, "user", events.Resumed, "", nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, splitLines(string(data)), 2)
}

func splitLines(s string) []string {
	var lines []string
	cur := ""
	for _, r := range s {
		if r == '\n' {
			lines = append(lines, cur)
			cur = ""
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}
