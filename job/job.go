// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package job tracks the jobs a session submitted to its query processor.
// The processor is polled for status; terminal states are sticky, and the
// cause of a failure stays attached to the job.
package job

import (
	"context"
	"sort"
	"sync"

	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/logger"
	"github.com/featurebasedb/sqlgateway/processor"
)

// ErrClosed is returned when a job is tracked by a supervisor whose
// session is closing.
const ErrClosed errors.Code = "SupervisorClosed"

// Handle is the gateway's view of one submitted job.
type Handle struct {
	proc processor.Processor
	id   processor.JobID
	sql  string

	mu   sync.Mutex
	info processor.JobInfo
}

// ID returns the processor's job id.
func (h *Handle) ID() processor.JobID { return h.id }

// SQL returns the statement the job runs.
func (h *Handle) SQL() string { return h.sql }

// Last returns the last known state without polling.
func (h *Handle) Last() processor.JobInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.info
}

// Status polls the processor unless the job already reached a terminal
// state. A job the processor no longer knows is reported as FAILED.
func (h *Handle) Status(ctx context.Context) (processor.JobInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.info.Status.Terminal() {
		return h.info, nil
	}

	info, err := h.proc.Status(ctx, h.id)
	if errors.Is(err, processor.ErrJobNotFound) {
		info = processor.JobInfo{
			ID:     h.id,
			Status: processor.JobFailed,
			Err:    errors.Wrapc(err, processor.ErrJobNotFound, "Job is no longer known to the processor"),
		}
	} else if err != nil {
		return h.info, errors.Wrapf(err, "polling job %s", h.id)
	}
	if info.Status == processor.JobFailed && info.Err == nil {
		info.Err = errors.Errorf("job %s failed", h.id)
	}
	h.info = info
	return info, nil
}

// Cancel asks the processor to stop the job. It has no effect on a job in a
// terminal state. Termination is observed through Status.
func (h *Handle) Cancel(ctx context.Context) error {
	if h.Last().Status.Terminal() {
		return nil
	}
	if err := h.proc.Cancel(ctx, h.id); err != nil && !errors.Is(err, processor.ErrJobNotFound) {
		return errors.Wrapf(err, "cancelling job %s", h.id)
	}
	return nil
}

// forget releases the job in the processor.
func (h *Handle) forget(ctx context.Context) error {
	if err := h.proc.Forget(ctx, h.id); err != nil {
		return errors.Wrapf(err, "releasing job %s", h.id)
	}
	return nil
}

// Supervisor holds the handles of one session's jobs. A job stays known to
// its processor until the supervisor removes it.
type Supervisor struct {
	mu      sync.Mutex
	handles map[processor.JobID]*Handle
	closed  bool
	logger  logger.Logger
}

// NewSupervisor returns an empty supervisor.
func NewSupervisor(log logger.Logger) *Supervisor {
	if log == nil {
		log = logger.NopLogger
	}
	return &Supervisor{
		handles: make(map[processor.JobID]*Handle),
		logger:  log,
	}
}

// Track starts tracking job id of proc. It fails with ErrClosed once the
// supervisor is closed; the caller then owns the job.
func (s *Supervisor) Track(proc processor.Processor, id processor.JobID, sql string) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.Newf(ErrClosed, "Could not track job %s: the session is closed", id)
	}
	h := &Handle{
		proc: proc,
		id:   id,
		sql:  sql,
		info: processor.JobInfo{ID: id, Status: processor.JobCreated},
	}
	s.handles[id] = h
	return h, nil
}

// Get returns the handle of job id.
func (s *Supervisor) Get(id processor.JobID) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[id]
	if !ok {
		return nil, errors.Newf(processor.ErrJobNotFound, "Could not find job '%s'", id)
	}
	return h, nil
}

// Remove stops tracking job id and releases it in the processor.
func (s *Supervisor) Remove(ctx context.Context, id processor.JobID) {
	s.mu.Lock()
	h, ok := s.handles[id]
	delete(s.handles, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := h.forget(ctx); err != nil {
		s.logger.Warnf("%v", err)
	}
}

// Handles returns every tracked handle ordered by job id.
func (s *Supervisor) Handles() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// CancelAll cancels every job not known to be terminal and returns the
// first error.
func (s *Supervisor) CancelAll(ctx context.Context) error {
	var first error
	for _, h := range s.Handles() {
		if err := h.Cancel(ctx); err != nil {
			s.logger.Warnf("cancelling job %s: %v", h.ID(), err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Close cancels every job, releases them in their processors and stops
// tracking new ones. It returns the first cancellation error.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	err := s.CancelAll(ctx)
	for _, h := range s.Handles() {
		s.Remove(ctx, h.ID())
	}
	return err
}
