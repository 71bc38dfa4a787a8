package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/triagehq/triage-cli/internal/oracle"
	"github.com/triagehq/triage-cli/internal/rules"
	"github.com/triagehq/triage-cli/internal/service"
	"github.com/triagehq/triage-cli/internal/store"
	anthropicpkg "github.com/triagehq/triage-cli/pkg/anthropic"
)

// triageEnv holds the initialized store, rules, and service shared by the
// run/serve/tickets commands.
type triageEnv struct {
	Store   store.Store
	Rules   *rules.Manager
	Service *service.Service
}

// Close releases the env's resources.
func (e *triageEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates the config for the given mode and wires the store,
// priority rules, guarded oracle client, and service.
func initEnv(ctx context.Context, mode string) (*triageEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	rulesMgr := rules.NewManager(cfg.Rules.Path)

	client := oracle.NewGuard(anthropicpkg.NewClient(cfg.Anthropic.Key), oracle.Options{
		RequestsPerSecond: cfg.Anthropic.RequestsPerSecond,
		Burst:             cfg.Anthropic.Burst,
	})

	svc := service.New(cfg, st, rulesMgr, client)

	return &triageEnv{Store: st, Rules: rulesMgr, Service: svc}, nil
}

// initReadOnlyEnv opens the store and rules without the oracle client, for
// commands that never call the API (tickets, export, status).
func initReadOnlyEnv(ctx context.Context) (*triageEnv, error) {
	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	rulesMgr := rules.NewManager(cfg.Rules.Path)
	svc := service.New(cfg, st, rulesMgr, nil)

	return &triageEnv{Store: st, Rules: rulesMgr, Service: svc}, nil
}
