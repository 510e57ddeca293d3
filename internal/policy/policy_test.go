package policy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writePolicy(t *testing.T, body map[string]any) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.json")
	data, err := json.Marshal(body)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func basePolicy() map[string]any {
	return map[string]any{
		"version":  "1",
		"settings": map[string]any{"timezone": "America/New_York"},
		"blocklist": []any{
			map[string]any{
				"domain": "reddit.com",
				"schedule": map[string]any{
					"available_hours": []any{
						map[string]any{
							"days":        []string{"monday", "tuesday", "wednesday", "thursday", "friday"},
							"time_ranges": []any{map[string]any{"start": "12:00", "end": "13:00"}, map[string]any{"start": "18:00", "end": "22:00"}},
						},
					},
				},
			},
		},
		"allowlist": []any{},
	}
}

func TestLoadValidPolicy(t *testing.T) {
	path := writePolicy(t, basePolicy())
	p, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "1", p.Version)
	require.Len(t, p.Blocklist, 1)
	require.Equal(t, "reddit.com", p.Blocklist[0].Domain)
	require.True(t, p.Blocklist[0].UnblockDelay.Instant)
}

func TestLoadRejectsUnknownTimezone(t *testing.T) {
	body := basePolicy()
	body["settings"] = map[string]any{"timezone": "Nowhere/Place"}
	path := writePolicy(t, body)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsCrossListDuplication(t *testing.T) {
	body := basePolicy()
	body["allowlist"] = []any{map[string]any{"domain": "reddit.com"}}
	path := writePolicy(t, body)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadWarnsOnSubdomainAcrossLists(t *testing.T) {
	body := map[string]any{
		"version":   "1",
		"settings":  map[string]any{"timezone": "UTC"},
		"blocklist": []any{map[string]any{"domain": "amazon.com"}},
		"allowlist": []any{map[string]any{"domain": "aws.amazon.com"}},
	}
	path := writePolicy(t, body)
	p, err := Load(path)
	require.NoError(t, err)
	require.NotEmpty(t, p.Warnings)
}

func TestParseDelayGrammar(t *testing.T) {
	cases := map[string]bool{
		"0":     true,
		"never": true,
		"24h":   true,
		"7d":    true,
		"30m":   true,
		"":      false,
		"1w":    false,
		"-5m":   false,
		"5":     false,
	}
	for in, ok := range cases {
		_, err := ParseDelay(in)
		if ok {
			require.NoError(t, err, in)
		} else {
			require.Error(t, err, in)
		}
	}
}

func TestValidDomain(t *testing.T) {
	require.True(t, ValidDomain("reddit.com"))
	require.True(t, ValidDomain("sub.example.co.uk"))
	require.False(t, ValidDomain("not a domain"))
	require.False(t, ValidDomain("-leading.com"))
	require.False(t, ValidDomain("nodot"))
}
