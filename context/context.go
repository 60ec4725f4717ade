// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package context carries request scoped gateway values on a
// context.Context.
package context

import "context"

// Empty struct to avoid allocations
type contextKeyRequestID struct{}
type contextKeySessionID struct{}
type contextKeyBlocker struct{}

func RequestID(ctx context.Context) (requestID string, ok bool) {
	requestID, ok = ctx.Value(contextKeyRequestID{}).(string)
	return
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID{}, requestID)
}

// SessionID gets the id of the session a request runs on behalf of.
func SessionID(ctx context.Context) (sessionID string, ok bool) {
	sessionID, ok = ctx.Value(contextKeySessionID{}).(string)
	return
}

func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, contextKeySessionID{}, sessionID)
}

// Blocker is told when a goroutine is about to wait on something other than
// CPU, so a worker pool can run another worker in the meantime.
type Blocker interface {
	Block()
	Unblock()
}

// WithBlocker makes a new context which carries b.
func WithBlocker(ctx context.Context, b Blocker) context.Context {
	return context.WithValue(ctx, contextKeyBlocker{}, b)
}

// BlockerFrom returns the Blocker carried by ctx, or a no-op one.
func BlockerFrom(ctx context.Context) Blocker {
	if b, ok := ctx.Value(contextKeyBlocker{}).(Blocker); ok {
		return b
	}
	return nopBlocker{}
}

type nopBlocker struct{}

func (nopBlocker) Block()   {}
func (nopBlocker) Unblock() {}
