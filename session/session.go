// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package session holds the state of client sessions: the configuration
// overlay, the execution context derived from it, and the session's jobs
// and results.
package session

import (
	"context"
	"sort"
	"sync"

	"github.com/cespare/xxhash"
	"github.com/featurebasedb/sqlgateway/catalog"
	"github.com/featurebasedb/sqlgateway/environment"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/functions"
	"github.com/featurebasedb/sqlgateway/job"
	"github.com/featurebasedb/sqlgateway/logger"
	"github.com/featurebasedb/sqlgateway/processor"
	"github.com/featurebasedb/sqlgateway/result"
)

const (
	ErrSessionNotFound       errors.Code = "SessionNotFound"
	ErrDuplicateSession      errors.Code = "DuplicateSession"
	ErrSessionClosed         errors.Code = "SessionClosed"
	ErrExecutionContextBuild errors.Code = "ExecutionContextBuild"
)

// Config holds what sessions are built from.
type Config struct {
	// Defaults is the environment every session environment is merged
	// onto.
	Defaults *environment.Environment
	Cluster  *processor.Cluster
	// Factories open catalogs by type name, in addition to the built-in
	// memory catalogs.
	Factories map[string]catalog.Factory
	Registry  *functions.Registry
	// ChangelogCapacity bounds the changes a changelog result buffers.
	ChangelogCapacity int
	Logger            logger.Logger
}

// Session is one client conversation. Its operations are expected to be
// called by one client at a time; they are safe to call concurrently with
// Close.
type Session struct {
	id     string
	base   *environment.Environment
	cfg    Config
	logger logger.Logger

	results *result.Store
	jobs    *job.Supervisor

	mu sync.Mutex
	// version counts overlay changes. checked is the version the cached
	// execution context was last found current at. The context is rebuilt
	// only when the overlay's fingerprint differs from the one it was
	// built from.
	overlay map[string]string
	version uint64
	checked uint64
	ec      *ExecutionContext
	closed  bool
}

func newSession(id string, env *environment.Environment, cfg Config) *Session {
	log := cfg.Logger.WithPrefix("session " + id + ": ")
	return &Session{
		id:      id,
		base:    environment.Merge(cfg.Defaults, env),
		cfg:     cfg,
		logger:  log,
		results: result.NewStore(cfg.ChangelogCapacity),
		jobs:    job.NewSupervisor(log),
		overlay: make(map[string]string),
		version: 1,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Results returns the session's result store.
func (s *Session) Results() *result.Store { return s.results }

// Jobs returns the session's job supervisor.
func (s *Session) Jobs() *job.Supervisor { return s.jobs }

// Logger returns the session's logger.
func (s *Session) Logger() logger.Logger { return s.logger }

func (s *Session) errClosed() error {
	return errors.Newf(ErrSessionClosed, "Session '%s' has been closed", s.id)
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Context returns the execution context of the current overlay, building
// it if the overlay changed since the last build. A failed build keeps the
// previous context.
func (s *Session) Context(ctx context.Context) (*ExecutionContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, s.errClosed()
	}
	if s.ec != nil && s.checked == s.version {
		return s.ec, nil
	}
	fp := fingerprint(s.overlay)
	if s.ec != nil && s.ec.fingerprint == fp {
		s.checked = s.version
		return s.ec, nil
	}

	env := environment.Enrich(s.base, s.overlay)
	ec, err := s.build(ctx, env, s.version, s.ec)
	if err != nil {
		return nil, err
	}
	ec.fingerprint = fp
	if s.ec != nil {
		s.logger.Debugf("rebuilt execution context at version %d", s.version)
	}
	s.ec, s.checked = ec, s.version
	return ec, nil
}

// fingerprint hashes the overlay independent of map order.
func fingerprint(overlay map[string]string) uint64 {
	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := xxhash.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(overlay[k]))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// SetProperty sets an overlay property. The execution context is rebuilt
// on next use.
func (s *Session) SetProperty(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.errClosed()
	}
	s.overlay[key] = value
	s.version++
	return nil
}

// ResetProperty removes an overlay property.
func (s *Session) ResetProperty(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.errClosed()
	}
	if _, ok := s.overlay[key]; ok {
		delete(s.overlay, key)
		s.version++
	}
	return nil
}

// ResetProperties clears the overlay.
func (s *Session) ResetProperties() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.errClosed()
	}
	if len(s.overlay) > 0 {
		s.overlay = make(map[string]string)
		s.version++
	}
	return nil
}

// Overlay returns a copy of the overlay.
func (s *Session) Overlay() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.overlay))
	for k, v := range s.overlay {
		out[k] = v
	}
	return out
}

// Properties returns the effective configuration: overlay over the
// session environment over the defaults, flattened to full keys.
func (s *Session) Properties() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, s.errClosed()
	}
	return environment.Enrich(s.base, s.overlay).Flatten(), nil
}

// PropertyKeys returns the keys of Properties, sorted.
func PropertyKeys(props map[string]string) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// close cancels the session's running jobs, then releases its results and
// catalogs.
func (s *Session) close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ec := s.ec
	s.ec = nil
	s.mu.Unlock()

	err := s.jobs.Close(ctx)
	s.results.Close()
	if ec != nil {
		if cerr := ec.catalog.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
