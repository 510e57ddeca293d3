package main

import (
	"errors"

	"domainguard/internal/errs"
)

// Exit codes from spec.md §6.
const (
	exitOK           = 0
	exitGeneral      = 1
	exitConfig       = 2
	exitRemote       = 3
	exitValidation   = 4
	exitPermission   = 5
	exitInterrupted  = 130
)

// exitCodeFor maps the typed error taxonomy (spec.md §7) onto the exit
// codes the CLI surface commits to (spec.md §6).
func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	var cfgErr *errs.ConfigError
	if errors.As(err, &cfgErr) {
		return exitConfig
	}
	var transient *errs.RemoteTransient
	if errors.As(err, &transient) {
		return exitRemote
	}
	var permanent *errs.RemotePermanent
	if errors.As(err, &permanent) {
		return exitRemote
	}
	var conflict *errs.PolicyConflict
	if errors.As(err, &conflict) {
		return exitValidation
	}
	var override *errs.OverrideViolation
	if errors.As(err, &override) {
		return exitPermission
	}
	var corruption *errs.StateCorruption
	if errors.As(err, &corruption) {
		return exitGeneral
	}
	return exitGeneral
}
