// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

package plugin

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/samber/oops"
)

// Scope is a cancellation scope for asynchronous plugin work.
//
// A Scope is derived from a parent context: cancelling the parent cancels
// the scope, cancelling the scope leaves the parent and sibling scopes
// untouched. Failures of work started with Go are routed to the scope's
// failure handler and never escape the goroutine.
type Scope struct {
	ctx       context.Context
	cancel    context.CancelFunc
	onFailure FailureHandler

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// NewScope derives a scope from parent. A nil parent means
// context.Background(); a nil onFailure logs failures with slog.Default().
func NewScope(parent context.Context, onFailure FailureHandler) *Scope {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Scope{
		ctx:       ctx,
		cancel:    cancel,
		onFailure: onFailure,
	}
}

// Context returns the scope's context. It is done once the scope or any of
// its ancestors is cancelled.
func (s *Scope) Context() context.Context { return s.ctx }

// Done is shorthand for Context().Done().
func (s *Scope) Done() <-chan struct{} { return s.ctx.Done() }

// Err returns nil while the scope is live and the context error afterwards.
func (s *Scope) Err() error { return s.ctx.Err() }

// Go runs fn on a new goroutine bound to the scope. It reports false, and
// does not run fn, if the scope is already cancelled or being waited on.
//
// An error returned by fn, or a panic inside it, is reported to the failure
// handler. context.Canceled returned after the scope was cancelled is the
// expected way to stop and is not reported.
func (s *Scope) Go(fn func(ctx context.Context) error) bool {
	s.mu.Lock()
	if s.closing || s.ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				s.Fail(oops.In("scope").Code("TASK_FAILURE").Errorf("task panicked: %v", rec))
			}
		}()

		err := fn(s.ctx)
		if err == nil {
			return
		}
		if s.ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return
		}
		s.Fail(oops.In("scope").Code("TASK_FAILURE").Wrap(err))
	}()
	return true
}

// Fail reports err to the failure handler. It is safe to call from any
// goroutine; a panicking handler is contained and logged.
func (s *Scope) Fail(err error) {
	if err == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("failure handler panicked", "panic", rec, "error", err)
		}
	}()

	if s.onFailure == nil {
		slog.Error("unhandled plugin failure", "error", err)
		return
	}
	s.onFailure(err)
}

// Cancel cancels the scope and every task started on it. It does not wait.
func (s *Scope) Cancel() { s.cancel() }

// Wait blocks until every task started with Go has returned. Once Wait has
// been called, Go refuses new work.
func (s *Scope) Wait() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.wg.Wait()
}
