// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"sort"
	"sync"

	"github.com/featurebasedb/sqlgateway/environment"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/logger"
	"github.com/featurebasedb/sqlgateway/processor"
	"golang.org/x/sync/errgroup"
)

// Registry maps session identifiers to sessions.
type Registry struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry whose sessions are built from cfg.
func NewRegistry(cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = logger.NopLogger
	}
	if cfg.Defaults == nil {
		cfg.Defaults = environment.Defaults()
	}
	if cfg.Cluster == nil {
		cfg.Cluster = processor.NewCluster()
	}
	return &Registry{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Open creates session id from env layered on the registry defaults and
// builds its execution context. The identifier must not be in use.
func (r *Registry) Open(ctx context.Context, id string, env *environment.Environment) (*Session, error) {
	s := newSession(id, env, r.cfg)

	r.mu.Lock()
	if _, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return nil, errors.Newf(ErrDuplicateSession, "Found another session with the same session identifier: %s", id)
	}
	r.sessions[id] = s
	r.mu.Unlock()

	// The session is visible while it builds; Context serializes on the
	// session's own lock so other sessions are not held up.
	if _, err := s.Context(ctx); err != nil {
		r.mu.Lock()
		if r.sessions[id] == s {
			delete(r.sessions, id)
		}
		r.mu.Unlock()
		if cerr := s.close(ctx); cerr != nil {
			r.cfg.Logger.Warnf("closing session %s after failed open: %v", id, cerr)
		}
		return nil, err
	}

	// A Close during the build removed the session; it is closed, or about
	// to be, by that call.
	r.mu.RLock()
	removed := r.sessions[id] != s
	r.mu.RUnlock()
	if removed || s.Closed() {
		return nil, s.errClosed()
	}
	r.cfg.Logger.Infof("opened session %s", id)
	return s, nil
}

// Get returns session id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, errNotFound(id)
	}
	return s, nil
}

func errNotFound(id string) error {
	return errors.Newf(ErrSessionNotFound, "Session '%s' does not exist.", id)
}

// Close removes session id, cancels its jobs and releases its resources.
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return errNotFound(id)
	}
	delete(r.sessions, id)
	r.mu.Unlock()

	if err := s.close(ctx); err != nil {
		return errors.Wrapf(err, "closing session %s", id)
	}
	r.cfg.Logger.Infof("closed session %s", id)
	return nil
}

// IDs returns the identifiers of every open session, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes every session concurrently and returns the first error.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var eg errgroup.Group
	for id, s := range sessions {
		id, s := id, s
		eg.Go(func() error {
			if err := s.close(ctx); err != nil {
				return errors.Wrapf(err, "closing session %s", id)
			}
			return nil
		})
	}
	return eg.Wait()
}
