// Package policy parses, validates, and holds the operator-authored
// configuration (C3): blocklist, allowlist, categories, native
// categories/services, and settings. A loaded Policy is immutable; edits
// produce a new snapshot picked up at the next tick boundary.
package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"domainguard/internal/clock"
	"domainguard/internal/errs"
)

// NativeCategories is the closed set of NextDNS parental-control category
// ids (spec.md §3).
var NativeCategories = map[string]bool{
	"gambling":         true,
	"porn":             true,
	"dating":           true,
	"piracy":           true,
	"social-networks":  true,
	"gaming":           true,
	"video-streaming":  true,
}

// NativeServices is the closed set of NextDNS parental-control service ids.
// Not exhaustive of NextDNS's actual catalog; the ones a personal policy is
// likely to name.
var NativeServices = map[string]bool{
	"tiktok":     true,
	"youtube":    true,
	"instagram":  true,
	"facebook":   true,
	"snapchat":   true,
	"twitter":    true,
	"reddit":     true,
	"netflix":    true,
	"twitch":     true,
	"discord":    true,
	"steam":      true,
	"roblox":     true,
	"minecraft":  true,
	"whatsapp":   true,
	"telegram":   true,
}

// DomainEntry is a single blocklist/allowlist/category-member domain.
type DomainEntry struct {
	Domain       string
	Description  string
	UnblockDelay Delay
	Schedule     *clock.Schedule // nil means "no schedule"
	Locked       bool
}

// Category is a user-defined named group of domains sharing one schedule
// and unblock delay.
type Category struct {
	ID           string
	Domains      []string
	Schedule     *clock.Schedule
	UnblockDelay Delay
}

// NativeEntry is a native category or service entry.
type NativeEntry struct {
	ID           string
	Schedule     *clock.Schedule
	UnblockDelay Delay
	Locked       bool
}

// GlobalFlags are the three parental-control booleans PATCHed as one unit.
type GlobalFlags struct {
	ForceSafeSearch   bool
	YoutubeRestricted bool
	BlockBypass       bool
}

// Protection carries the locked-item unlock delay configuration.
type Protection struct {
	UnlockDelayHours int
}

// Settings holds the top-level operator settings.
type Settings struct {
	Timezone string
	Editor   string
}

// Policy is one validated, immutable snapshot of the operator configuration.
type Policy struct {
	Version    string
	Settings   Settings
	Blocklist  []DomainEntry
	Allowlist  []DomainEntry
	Categories []Category
	NativeCategories []NativeEntry
	NativeServices   []NativeEntry
	Global           GlobalFlags
	Protection       Protection

	// Notifications is opaque to the core; kept only so round-tripping the
	// policy file for `config edit` doesn't lose the operator's settings.
	Notifications json.RawMessage

	// Warnings collects non-fatal validation notes (e.g. subdomain
	// relationships across lists) surfaced by `sync --verbose`/`status`.
	Warnings []string
}

// Load reads, parses, and validates the policy file at path. On any
// validation failure it returns an *errs.ConfigError-wrapping error; the
// caller (policy.Manager) is responsible for keeping the previous good
// snapshot in force.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errs.ConfigError{Path: path, Err: fmt.Errorf("policy: read: %w", err)}
	}

	var raw rawPolicy
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &errs.ConfigError{Path: path, Err: fmt.Errorf("policy: parse: %w", err)}
	}
	if err := validate10.Struct(&raw); err != nil {
		return nil, &errs.ConfigError{Path: path, Err: err}
	}

	p, err := raw.toPolicy()
	if err != nil {
		return nil, &errs.ConfigError{Path: path, Err: err}
	}
	if err := validate(p); err != nil {
		return nil, &errs.ConfigError{Path: path, Err: err}
	}
	return p, nil
}

// FindDomain reports which list (if any) a domain belongs to, for
// operator-facing commands (unblock/allow/disallow) that need to locate an
// entry by name. Comparison is case-insensitive per spec.md §3.
func (p *Policy) FindDomain(domain string) (*DomainEntry, string, bool) {
	domain = strings.ToLower(domain)
	for i := range p.Blocklist {
		if strings.ToLower(p.Blocklist[i].Domain) == domain {
			return &p.Blocklist[i], "blocklist", true
		}
	}
	for i := range p.Allowlist {
		if strings.ToLower(p.Allowlist[i].Domain) == domain {
			return &p.Allowlist[i], "allowlist", true
		}
	}
	for ci := range p.Categories {
		for _, d := range p.Categories[ci].Domains {
			if strings.ToLower(d) == domain {
				entry := DomainEntry{
					Domain:       d,
					UnblockDelay: p.Categories[ci].UnblockDelay,
					Schedule:     p.Categories[ci].Schedule,
				}
				return &entry, "category:" + p.Categories[ci].ID, true
			}
		}
	}
	return nil, "", false
}

// SortedDomains returns the blocklist domains in lexical order, used by the
// reconciler to build deterministic diffs.
func SortedDomains(entries []DomainEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = strings.ToLower(e.Domain)
	}
	sort.Strings(out)
	return out
}
