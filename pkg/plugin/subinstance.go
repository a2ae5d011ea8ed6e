// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

package plugin

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/samber/oops"

	"github.com/pce-editor/pce/pkg/errutil"
)

// Hooks are the lifecycle callbacks a plugin author implements.
//
// Hooks run on the goroutine calling Enable or Disable and must not call
// Enable, Disable or Destroy on their own instance.
type Hooks interface {
	OnEnable()
	OnDisable()
}

// NopHooks implements Hooks with no-ops.
type NopHooks struct{}

// OnEnable does nothing.
func (NopHooks) OnEnable() {}

// OnDisable does nothing.
func (NopHooks) OnDisable() {}

// State is the lifecycle state of a SubInstance.
type State int32

// SubInstance states. Disabled is the initial state; Destroyed is terminal.
const (
	StateDisabled State = iota
	StateEnabled
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateEnabled:
		return "enabled"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// FailureObserver is told about every failure of every SubInstance created
// under a context carrying it. Hosts use it for metrics.
type FailureObserver func(pluginName string, err error)

type failureObserverKey struct{}

// WithFailureObserver returns a copy of ctx carrying obs.
func WithFailureObserver(ctx context.Context, obs FailureObserver) context.Context {
	return context.WithValue(ctx, failureObserverKey{}, obs)
}

func failureObserverFrom(ctx context.Context) FailureObserver {
	obs, _ := ctx.Value(failureObserverKey{}).(FailureObserver)
	return obs
}

// Option configures a SubInstance.
type Option func(*SubInstance)

// WithLogger sets the logger. The instance adds plugin and editor attributes.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SubInstance) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFailureHandler replaces the default handler, which logs the failure.
func WithFailureHandler(h FailureHandler) Option {
	return func(s *SubInstance) {
		s.onFailure = h
	}
}

// SubInstance is the live service a plugin provides to one editor. Plugin
// types embed *SubInstance and implement Hooks:
//
//	type counter struct {
//		*plugin.SubInstance
//		keys atomic.Int64
//	}
//
//	func (c *counter) OnEnable()  {}
//	func (c *counter) OnDisable() {}
//
//	func (p counterPlugin) CreateSubInstance(ed plugin.Editor, parent context.Context) (plugin.Instance, error) {
//		c := &counter{}
//		c.SubInstance = plugin.NewSubInstance("counter", ed, parent, c)
//		err := plugin.SubscribeFunc(c, func(plugin.KeyPress) (plugin.Disposition, error) {
//			c.keys.Add(1)
//			return plugin.Continue, nil
//		})
//		return c, err
//	}
//
// SubInstance is safe for concurrent use.
type SubInstance struct {
	name      string
	editor    Editor
	hooks     Hooks
	registry  *Registry
	scope     *Scope
	logger    *slog.Logger
	onFailure FailureHandler
	observer  FailureObserver

	// lifecycle serializes Enable, Disable and Destroy, hooks included.
	lifecycle sync.Mutex
	state     atomic.Int32
}

// NewSubInstance creates a disabled SubInstance for editor whose scope is a
// child of parent. A nil hooks means NopHooks.
func NewSubInstance(name string, editor Editor, parent context.Context, hooks Hooks, opts ...Option) *SubInstance {
	if parent == nil {
		parent = context.Background()
	}
	if hooks == nil {
		hooks = NopHooks{}
	}

	s := &SubInstance{
		name:     name,
		editor:   editor,
		hooks:    hooks,
		logger:   slog.Default(),
		observer: failureObserverFrom(parent),
	}
	for _, opt := range opts {
		opt(s)
	}

	attrs := []any{"plugin", name}
	if editor != nil {
		attrs = append(attrs, "editor", editor.ID())
	}
	s.logger = s.logger.With(attrs...)
	s.registry = NewRegistry(s.logger)
	s.scope = NewScope(parent, s.handleFailure)
	s.state.Store(int32(StateDisabled))
	return s
}

// Name returns the plugin name the instance was created with.
func (s *SubInstance) Name() string { return s.name }

// Editor returns the editor this instance serves. It never changes.
func (s *SubInstance) Editor() Editor { return s.editor }

// Logger returns the instance logger.
func (s *SubInstance) Logger() *slog.Logger { return s.logger }

// Context returns the instance scope's context, cancelled on Destroy or when
// the parent is cancelled.
func (s *SubInstance) Context() context.Context { return s.scope.Context() }

// State returns the current lifecycle state.
func (s *SubInstance) State() State { return State(s.state.Load()) }

// Enabled reports whether the instance is enabled.
func (s *SubInstance) Enabled() bool { return s.State() == StateEnabled }

// SubscribeKind registers consumer for events of kind. It fails once the
// instance is destroyed.
func (s *SubInstance) SubscribeKind(kind Kind, consumer Consumer) error {
	if s.State() == StateDestroyed {
		return oops.In("plugin").Code("INSTANCE_DESTROYED").
			With("plugin", s.name).
			With("kind", kind.String()).
			Errorf("subscribe on destroyed instance")
	}
	return s.registry.Subscribe(kind, consumer)
}

// InvokeConsumers dispatches event to this instance's consumers. It returns
// Intercept if a consumer intercepted the event and Continue otherwise.
// Consumer failures are reported to the failure handler, never returned.
//
// A destroyed instance ignores every event. Disabled instances still
// dispatch: skipping them is the host's job, using Enabled.
func (s *SubInstance) InvokeConsumers(event Event) Disposition {
	if event == nil || s.State() == StateDestroyed {
		return Continue
	}
	if s.registry.Dispatch(event, s.Fail) == Intercept {
		return Intercept
	}
	return Continue
}

// Enable moves a disabled instance to enabled and runs OnEnable. It is a
// no-op when already enabled or destroyed.
func (s *SubInstance) Enable() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.State() != StateDisabled {
		return
	}
	s.state.Store(int32(StateEnabled))
	s.runHook("on_enable", s.hooks.OnEnable)
}

// Disable moves an enabled instance to disabled and runs OnDisable. It is a
// no-op when already disabled or destroyed.
func (s *SubInstance) Disable() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.State() != StateEnabled {
		return
	}
	s.state.Store(int32(StateDisabled))
	s.runHook("on_disable", s.hooks.OnDisable)
}

// Destroy cancels the instance scope whatever the current state, which
// cancels all asynchronous work started with Go. Hooks are not run.
// Destroy is idempotent and does not wait; see Wait.
func (s *SubInstance) Destroy() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.State() == StateDestroyed {
		return
	}
	s.state.Store(int32(StateDestroyed))
	s.scope.Cancel()
	s.logger.Debug("plugin instance destroyed")
}

// Wait blocks until every task started with Go has returned.
func (s *SubInstance) Wait() { s.scope.Wait() }

// Go runs fn asynchronously on the instance scope. See Scope.Go.
func (s *SubInstance) Go(fn func(ctx context.Context) error) bool {
	return s.scope.Go(fn)
}

// Fail reports err to the instance failure handler. Plugin code may use it
// for failures it detects itself.
func (s *SubInstance) Fail(err error) {
	s.scope.Fail(err)
}

func (s *SubInstance) runHook(hook string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			s.Fail(oops.In("plugin").Code("HOOK_FAILURE").
				With("hook", hook).
				Errorf("hook panicked: %v", rec))
		}
	}()
	fn()
}

// handleFailure is the scope's failure handler.
func (s *SubInstance) handleFailure(err error) {
	err = oops.With("plugin", s.name).Wrap(err)
	if s.onFailure != nil {
		s.onFailure(err)
	} else {
		errutil.LogError(s.logger, "plugin failure", err)
	}
	if s.observer != nil {
		s.observer(s.name, err)
	}
}
