package policy

import (
	"encoding/json"
	"fmt"

	"domainguard/internal/clock"
)

// rawPolicy mirrors the on-disk JSON shape (spec.md §6) before conversion
// into the validated Policy/clock.Schedule types.
type rawPolicy struct {
	Version  string `json:"version" validate:"required"`
	Settings struct {
		Timezone string `json:"timezone" validate:"required"`
		Editor   string `json:"editor,omitempty"`
	} `json:"settings" validate:"required"`
	Notifications json.RawMessage  `json:"notifications,omitempty"`
	Blocklist     []rawDomainEntry `json:"blocklist"`
	Allowlist     []rawDomainEntry `json:"allowlist"`
	Categories    []rawCategory    `json:"categories,omitempty"`
	NextDNS       *rawNextDNS      `json:"nextdns,omitempty"`
	Protection    *rawProtection   `json:"protection,omitempty"`
}

type rawDomainEntry struct {
	Domain       string      `json:"domain" validate:"required"`
	Description  string      `json:"description,omitempty"`
	UnblockDelay string      `json:"unblock_delay,omitempty"`
	Schedule     *rawSchedule `json:"schedule,omitempty"`
	Locked       bool        `json:"locked,omitempty"`
}

type rawCategory struct {
	ID           string       `json:"id"`
	Domains      []string     `json:"domains"`
	Schedule     *rawSchedule `json:"schedule,omitempty"`
	UnblockDelay string       `json:"unblock_delay,omitempty"`
}

type rawNativeEntry struct {
	ID           string       `json:"id"`
	Schedule     *rawSchedule `json:"schedule,omitempty"`
	UnblockDelay string       `json:"unblock_delay,omitempty"`
	Locked       bool         `json:"locked,omitempty"`
}

type rawNextDNS struct {
	Categories []rawNativeEntry `json:"categories,omitempty"`
	Services   []rawNativeEntry `json:"services,omitempty"`
	Global     struct {
		ForceSafeSearch   bool `json:"force_safesearch"`
		YoutubeRestricted bool `json:"youtube_restricted"`
		BlockBypass       bool `json:"block_bypass"`
	} `json:"global,omitempty"`
}

type rawProtection struct {
	UnlockDelayHours int `json:"unlock_delay_hours,omitempty"`
}

type rawSchedule struct {
	AvailableHours []rawRule `json:"available_hours"`
}

type rawRule struct {
	Days       []string       `json:"days"`
	TimeRanges []rawTimeRange `json:"time_ranges"`
}

type rawTimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (r *rawSchedule) toSchedule() (*clock.Schedule, error) {
	if r == nil {
		return nil, nil
	}
	if len(r.AvailableHours) == 0 {
		return nil, fmt.Errorf("policy: schedule must have at least one rule")
	}
	rules := make([]clock.Rule, 0, len(r.AvailableHours))
	for _, rr := range r.AvailableHours {
		dayset, err := parseDaySet(rr.Days)
		if err != nil {
			return nil, err
		}
		ranges := make([]clock.TimeRange, 0, len(rr.TimeRanges))
		for _, tr := range rr.TimeRanges {
			if err := validateHHMM(tr.Start); err != nil {
				return nil, err
			}
			if err := validateHHMM(tr.End); err != nil {
				return nil, err
			}
			ranges = append(ranges, clock.TimeRange{Start: tr.Start, End: tr.End})
		}
		if len(ranges) == 0 {
			return nil, fmt.Errorf("policy: schedule rule has no time_ranges")
		}
		rules = append(rules, clock.Rule{Days: dayset, Ranges: ranges})
	}
	return &clock.Schedule{Rules: rules}, nil
}

func (r *rawDomainEntry) toEntry() (DomainEntry, error) {
	delayStr := r.UnblockDelay
	if delayStr == "" {
		delayStr = "0"
	}
	delay, err := ParseDelay(delayStr)
	if err != nil {
		return DomainEntry{}, err
	}
	sched, err := r.Schedule.toSchedule()
	if err != nil {
		return DomainEntry{}, err
	}
	return DomainEntry{
		Domain:       r.Domain,
		Description:  r.Description,
		UnblockDelay: delay,
		Schedule:     sched,
		Locked:       r.Locked,
	}, nil
}

func (r *rawCategory) toCategory() (Category, error) {
	delayStr := r.UnblockDelay
	if delayStr == "" {
		delayStr = "0"
	}
	delay, err := ParseDelay(delayStr)
	if err != nil {
		return Category{}, err
	}
	sched, err := r.Schedule.toSchedule()
	if err != nil {
		return Category{}, err
	}
	return Category{ID: r.ID, Domains: r.Domains, Schedule: sched, UnblockDelay: delay}, nil
}

func (r *rawNativeEntry) toNative() (NativeEntry, error) {
	delayStr := r.UnblockDelay
	if delayStr == "" {
		delayStr = "0"
	}
	delay, err := ParseDelay(delayStr)
	if err != nil {
		return NativeEntry{}, err
	}
	sched, err := r.Schedule.toSchedule()
	if err != nil {
		return NativeEntry{}, err
	}
	return NativeEntry{ID: r.ID, Schedule: sched, UnblockDelay: delay, Locked: r.Locked}, nil
}

func (rp *rawPolicy) toPolicy() (*Policy, error) {
	p := &Policy{
		Version: rp.Version,
		Settings: Settings{
			Timezone: rp.Settings.Timezone,
			Editor:   rp.Settings.Editor,
		},
		Notifications: rp.Notifications,
		Protection:    Protection{UnlockDelayHours: 48},
	}

	for _, e := range rp.Blocklist {
		entry, err := e.toEntry()
		if err != nil {
			return nil, fmt.Errorf("policy: blocklist %s: %w", e.Domain, err)
		}
		p.Blocklist = append(p.Blocklist, entry)
	}
	for _, e := range rp.Allowlist {
		entry, err := e.toEntry()
		if err != nil {
			return nil, fmt.Errorf("policy: allowlist %s: %w", e.Domain, err)
		}
		p.Allowlist = append(p.Allowlist, entry)
	}
	for _, c := range rp.Categories {
		cat, err := c.toCategory()
		if err != nil {
			return nil, fmt.Errorf("policy: category %s: %w", c.ID, err)
		}
		p.Categories = append(p.Categories, cat)
	}
	if rp.NextDNS != nil {
		for _, c := range rp.NextDNS.Categories {
			n, err := c.toNative()
			if err != nil {
				return nil, fmt.Errorf("policy: native category %s: %w", c.ID, err)
			}
			p.NativeCategories = append(p.NativeCategories, n)
		}
		for _, s := range rp.NextDNS.Services {
			n, err := s.toNative()
			if err != nil {
				return nil, fmt.Errorf("policy: native service %s: %w", s.ID, err)
			}
			p.NativeServices = append(p.NativeServices, n)
		}
		p.Global = GlobalFlags{
			ForceSafeSearch:   rp.NextDNS.Global.ForceSafeSearch,
			YoutubeRestricted: rp.NextDNS.Global.YoutubeRestricted,
			BlockBypass:       rp.NextDNS.Global.BlockBypass,
		}
	}
	if rp.Protection != nil && rp.Protection.UnlockDelayHours != 0 {
		p.Protection.UnlockDelayHours = rp.Protection.UnlockDelayHours
	}

	return p, nil
}
