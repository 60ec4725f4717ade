// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package task provides the worker pool query jobs run on.
//
// A job spends most of its life waiting: on a source to produce rows, on a
// rate limiter, or on a changelog consumer to make room in a full buffer.
// The pool aims for N workers which are not waiting. A job announces a wait
// with Block and its end with Unblock; when fewer than N workers are left
// unblocked, Block starts another one, and surplus workers retire once they
// finish their current task.
//
// A buffered channel used as a semaphore does not fit here: a job which stops
// waiting would have to reacquire a slot, and would block again on the
// semaphore at exactly the moment it became able to make progress.
package task
