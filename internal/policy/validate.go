package policy

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"domainguard/internal/clock"
	"github.com/go-playground/validator/v10"
)

var validate10 = validator.New()

var domainLabelRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
var categoryIDRe = regexp.MustCompile(`^[a-z][a-z0-9-]{0,49}$`)
var hhmmRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

func parseDaySet(names []string) (map[time.Weekday]bool, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("policy: schedule rule has no days")
	}
	out := make(map[time.Weekday]bool, len(names))
	for _, n := range names {
		d, err := clock.ParseWeekday(strings.ToLower(n))
		if err != nil {
			return nil, err
		}
		out[d] = true
	}
	return out, nil
}

func validateHHMM(s string) error {
	if s == "24:00" {
		return fmt.Errorf("policy: 24:00 is not a valid time, use 00:00")
	}
	if !hhmmRe.MatchString(s) {
		return fmt.Errorf("policy: invalid time %q", s)
	}
	return nil
}

// ValidDomain reports whether domain conforms to DNS label rules and the
// 1-253 character overall length limit (spec.md §3).
func ValidDomain(domain string) bool {
	domain = strings.ToLower(domain)
	if len(domain) < 1 || len(domain) > 253 {
		return false
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if !domainLabelRe.MatchString(l) {
			return false
		}
	}
	return true
}

// validate runs the cross-field semantic checks spec.md §4.3 requires
// beyond struct-tag shape validation: timezone resolvability, domain
// syntax, schedule well-formedness (already enforced during raw
// conversion), cross-list duplication, category id uniqueness, and native
// id membership in the closed sets.
func validate(p *Policy) error {
	if p.Version == "" {
		return fmt.Errorf("policy: missing version")
	}
	if _, err := time.LoadLocation(p.Settings.Timezone); err != nil {
		return fmt.Errorf("policy: unknown timezone %q: %w", p.Settings.Timezone, err)
	}
	if p.Protection.UnlockDelayHours < 24 {
		return fmt.Errorf("policy: protection.unlock_delay_hours must be >= 24")
	}

	seen := map[string]string{} // domain -> list it was first seen in
	checkDomain := func(domain, list string) error {
		lower := strings.ToLower(domain)
		if !ValidDomain(lower) {
			return fmt.Errorf("policy: invalid domain %q", domain)
		}
		if other, ok := seen[lower]; ok && other != list {
			return fmt.Errorf("policy: %q present in both %s and %s", domain, other, list)
		}
		seen[lower] = list
		return nil
	}

	for _, e := range p.Blocklist {
		if err := checkDomain(e.Domain, "blocklist"); err != nil {
			return err
		}
	}
	for _, e := range p.Allowlist {
		if err := checkDomain(e.Domain, "allowlist"); err != nil {
			// exact-match duplication across block/allow is an error;
			// subdomain relationships are legal (checked below as a
			// warning), so only exact matches reach checkDomain's
			// "other != list" branch via equal lowercase domain strings.
			return err
		}
	}

	catIDs := map[string]bool{}
	for _, c := range p.Categories {
		if !categoryIDRe.MatchString(c.ID) {
			return fmt.Errorf("policy: invalid category id %q", c.ID)
		}
		if catIDs[c.ID] {
			return fmt.Errorf("policy: duplicate category id %q", c.ID)
		}
		catIDs[c.ID] = true
		memberOf := map[string]bool{}
		for _, d := range c.Domains {
			if !ValidDomain(d) {
				return fmt.Errorf("policy: category %s: invalid domain %q", c.ID, d)
			}
			lower := strings.ToLower(d)
			if memberOf[lower] {
				return fmt.Errorf("policy: category %s: duplicate domain %q", c.ID, d)
			}
			memberOf[lower] = true
		}
	}

	for _, n := range p.NativeCategories {
		if !NativeCategories[n.ID] {
			return fmt.Errorf("policy: unknown native category %q", n.ID)
		}
	}
	for _, n := range p.NativeServices {
		if !NativeServices[n.ID] {
			return fmt.Errorf("policy: unknown native service %q", n.ID)
		}
	}

	p.Warnings = append(p.Warnings, subdomainWarnings(p)...)
	return nil
}

// subdomainWarnings implements spec.md §3's "subdomain relationships... are
// legal and generate a warning, not an error": a parent domain in one list
// and a child in the other.
func subdomainWarnings(p *Policy) []string {
	var warnings []string
	for _, b := range p.Blocklist {
		for _, a := range p.Allowlist {
			bl := strings.ToLower(b.Domain)
			al := strings.ToLower(a.Domain)
			if bl == al {
				continue
			}
			if strings.HasSuffix(al, "."+bl) {
				warnings = append(warnings, fmt.Sprintf(
					"%s is an allowlisted subdomain of blocklisted %s", a.Domain, b.Domain))
			}
			if strings.HasSuffix(bl, "."+al) {
				warnings = append(warnings, fmt.Sprintf(
					"%s is a blocklisted subdomain of allowlisted %s", b.Domain, a.Domain))
			}
		}
	}
	return warnings
}
