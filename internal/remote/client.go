// Package remote implements the Remote State Client (C2): a cached,
// rate-limited, retrying HTTP client over the NextDNS API, plus a Fake for
// tests that never touches the network.
package remote

import (
	"context"
)

// Client is the typed surface the reconciler depends on. The production
// implementation is *nextDNSClient; tests use *Fake.
type Client interface {
	GetDenylist(ctx context.Context) ([]string, error)
	GetAllowlist(ctx context.Context) ([]string, error)
	AddDeny(ctx context.Context, domain string) error
	RemoveDeny(ctx context.Context, domain string) error
	AddAllow(ctx context.Context, domain string) error
	RemoveAllow(ctx context.Context, domain string) error
	SetCategory(ctx context.Context, id string, active bool) error
	SetService(ctx context.Context, id string, active bool) error
	GetParentalControl(ctx context.Context) (ParentalControlState, error)
	UpdateParentalControlGlobal(ctx context.Context, flags GlobalFlags) error
}

// ParentalControlState is the remote's current category/service toggle
// state.
type ParentalControlState struct {
	ActiveCategories map[string]bool
	ActiveServices   map[string]bool
	Global           GlobalFlags
}

// GlobalFlags mirrors policy.GlobalFlags without importing internal/policy,
// keeping this package free of a dependency on the policy model.
type GlobalFlags struct {
	ForceSafeSearch   bool
	YoutubeRestricted bool
	BlockBypass       bool
}
