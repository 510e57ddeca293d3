// Package main wires domainguard's core packages into ndbctl, the
// operator CLI surface (spec.md §6). Flag parsing and help/version text
// are the out-of-scope "command-line parser" (spec.md §1); this tree
// exists only to route verbs to internal/reconcile, internal/pending,
// internal/override, internal/protection, and internal/watchdog, the way
// the teacher's cmd/parenta/main.go is thin wiring over internal/services.
package main

import (
	"fmt"
	"os"

	"domainguard/internal/audit"
	"domainguard/internal/clock"
	"domainguard/internal/config"
	"domainguard/internal/events"
	"domainguard/internal/override"
	"domainguard/internal/pending"
	"domainguard/internal/policy"
	"domainguard/internal/protection"
	"domainguard/internal/reconcile"
	"domainguard/internal/remote"

	"go.uber.org/zap"
)

// app bundles every component the CLI verbs need. One app is constructed
// per invocation in main(); none of this is global mutable state.
type app struct {
	cfg         *config.Config
	log         *zap.Logger
	policyMgr   *policy.Manager
	remote      remote.Client
	pendingSt   *pending.Store
	pause       *override.PauseState
	panicState  *override.PanicState
	auditLog    *audit.Logger
	eventBus    *events.Bus
	pinGate     *protection.Gate
	unlockSt    *protection.UnlockStore
	reconciler  *reconcile.Reconciler
	clock       clock.Clock
}

func newApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("ndbctl: load config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("ndbctl: create data dir: %w", err)
	}

	log, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("ndbctl: init logger: %w", err)
	}

	policyMgr := policy.NewManager(cfg.PolicyPath(), log)
	if err := policyMgr.Reload(); err != nil {
		log.Warn("initial policy load failed", zap.Error(err))
	}

	pendingSt, err := pending.New(cfg.PendingPath())
	if err != nil {
		return nil, fmt.Errorf("ndbctl: pending store: %w", err)
	}
	unlockSt, err := protection.NewUnlockStore(cfg.UnlockRequestsPath())
	if err != nil {
		return nil, fmt.Errorf("ndbctl: unlock store: %w", err)
	}
	auditLog, err := audit.New(cfg.AuditLogPath())
	if err != nil {
		return nil, fmt.Errorf("ndbctl: audit log: %w", err)
	}

	remoteClient, err := remote.New(remote.Config{
		BaseURL:        cfg.Remote.BaseURL,
		APIKey:         os.Getenv("NEXTDNS_API_KEY"),
		ProfileID:      cfg.Remote.ProfileID,
		RequestTimeout: cfg.Remote.RequestTimeout,
		MaxRetries:     cfg.Remote.MaxRetries,
		CacheTTL:       cfg.Remote.CacheTTL,
		RateLimitReq:   cfg.Remote.RateLimitReq,
		RateLimitWin:   cfg.Remote.RateLimitWindow,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("ndbctl: remote client: %w", err)
	}

	a := &app{
		cfg:        cfg,
		log:        log,
		policyMgr:  policyMgr,
		remote:     remoteClient,
		pendingSt:  pendingSt,
		pause:      override.NewPauseState(cfg.PausePath()),
		panicState: override.NewPanicState(cfg.PanicPath()),
		auditLog:   auditLog,
		eventBus:   events.NewBus(64),
		pinGate:    protection.New(cfg.PinHashPath(), cfg.PinSessionPath(), cfg.PinAttemptsPath()),
		unlockSt:   unlockSt,
		clock:      clock.RealClock{},
	}
	a.reconciler = &reconcile.Reconciler{
		Policy:  a.policyMgr,
		Remote:  a.remote,
		Pending: a.pendingSt,
		Pause:   a.pause,
		Panic:   a.panicState,
		Clock:   a.clock,
		Audit:   a.auditLog,
		Events:  a.eventBus,
		Log:     a.log,
	}
	return a, nil
}

func (a *app) close() {
	_ = a.log.Sync()
}
