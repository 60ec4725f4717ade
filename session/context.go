// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"

	"github.com/featurebasedb/sqlgateway/catalog"
	"github.com/featurebasedb/sqlgateway/environment"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/processor"
)

// ExecutionContext binds one configuration snapshot of a session to the
// catalogs and the query processor statements run against. It is never
// modified; a configuration change produces a new one.
type ExecutionContext struct {
	env     *environment.Environment
	config  environment.ExecutionConfig
	catalog *catalog.Manager
	proc    processor.Processor
	version uint64
	// fingerprint identifies the overlay the context was built from.
	fingerprint uint64
}

// Environment returns the effective environment: the session's base
// environment enriched with its overlay.
func (ec *ExecutionContext) Environment() *environment.Environment { return ec.env }

// Config returns the typed execution options.
func (ec *ExecutionContext) Config() environment.ExecutionConfig { return ec.config }

// Catalog returns the session's catalog manager.
func (ec *ExecutionContext) Catalog() *catalog.Manager { return ec.catalog }

// Processor returns the processor of the configured deployment target.
func (ec *ExecutionContext) Processor() processor.Processor { return ec.proc }

// Version returns the overlay version the context was built from.
func (ec *ExecutionContext) Version() uint64 { return ec.version }

// build derives the execution context of env. The catalog manager holds the
// session's catalog state (current catalog and database, temporary objects,
// modules) and is carried over from prev when there is one; everything else
// is derived anew. On failure prev is left as it was.
func (s *Session) build(ctx context.Context, env *environment.Environment, version uint64, prev *ExecutionContext) (*ExecutionContext, error) {
	cfg, err := env.ExecutionConfig()
	if err != nil {
		return nil, errors.Wrapc(err, ErrExecutionContextBuild, "Invalid execution configuration")
	}
	proc, err := s.cfg.Cluster.Processor(cfg.DeploymentTarget)
	if err != nil {
		return nil, errors.Wrapc(err, ErrExecutionContextBuild, "Could not connect to the deployment target")
	}

	ec := &ExecutionContext{env: env, config: cfg, proc: proc, version: version}
	if prev == nil {
		mgr, err := catalog.NewManager(ctx, catalog.ManagerConfig{
			Factories: s.cfg.Factories,
			Registry:  s.cfg.Registry,
			Dialect:   cfg.Dialect,
			Logger:    s.logger,
		})
		if err != nil {
			return nil, errors.Wrapc(err, ErrExecutionContextBuild, "Could not create catalog manager")
		}
		mgr.SetAnalyzer(proc.Analyzer(mgr))
		if err := mgr.Apply(ctx, env); err != nil {
			if cerr := mgr.Close(); cerr != nil {
				s.logger.Warnf("closing catalog manager: %v", cerr)
			}
			return nil, errors.Wrapc(err, ErrExecutionContextBuild, "Could not apply the session environment")
		}
		ec.catalog = mgr
		return ec, nil
	}

	mgr := prev.catalog
	if err := switchCurrent(ctx, mgr, prev.config, cfg); err != nil {
		return nil, errors.Wrapc(err, ErrExecutionContextBuild, "Could not switch the current catalog")
	}
	mgr.SetDialect(cfg.Dialect)
	mgr.SetAnalyzer(proc.Analyzer(mgr))
	ec.catalog = mgr
	return ec, nil
}

// switchCurrent applies changed current-catalog and current-database
// options. A failure restores the previous current catalog and database.
func switchCurrent(ctx context.Context, mgr *catalog.Manager, prev, next environment.ExecutionConfig) error {
	if prev.CurrentCatalog == next.CurrentCatalog && prev.CurrentDatabase == next.CurrentDatabase {
		return nil
	}
	oldCatalog, oldDatabase := mgr.CurrentCatalog(), mgr.CurrentDatabase()
	err := func() error {
		if next.CurrentCatalog != "" && next.CurrentCatalog != prev.CurrentCatalog {
			if err := mgr.SetCurrentCatalog(next.CurrentCatalog); err != nil {
				return err
			}
		}
		if next.CurrentDatabase != "" {
			return mgr.SetCurrentDatabase(ctx, []string{next.CurrentDatabase})
		}
		return nil
	}()
	if err != nil {
		_ = mgr.SetCurrentDatabase(ctx, []string{oldCatalog, oldDatabase})
	}
	return err
}
