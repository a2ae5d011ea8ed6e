// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

// Package host attaches plugins to an editor and dispatches editor events
// to them in priority order.
package host

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pce-editor/pce/internal/observability"
	"github.com/pce-editor/pce/pkg/errutil"
	"github.com/pce-editor/pce/pkg/plugin"
)

var tracer = otel.Tracer("github.com/pce-editor/pce/internal/host")

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger. Instances derive theirs from it.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics records dispatch and failure metrics to m.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// attachment is one plugin instance attached to the editor.
type attachment struct {
	name     string
	priority int
	seq      uint64
	inst     plugin.Instance
}

// Outcome is the result of dispatching one event.
type Outcome struct {
	Disposition plugin.Disposition
	// InterceptedBy names the plugin that intercepted the event, if any.
	InterceptedBy string
}

// Dispatcher owns the plugin instances of one editor.
//
// Instances are created with the dispatcher's root context as parent, so
// Close cancels every one of them. Events go to enabled instances in
// descending priority, ties in attach order, until one intercepts.
//
// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	editor  plugin.Editor
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger
	metrics *observability.Metrics

	mu       sync.RWMutex
	attached []*attachment
	byName   map[string]*attachment

	// pending holds names whose instance is being created.
	pending map[string]struct{}
	seq     uint64
	closed  bool
}

// NewDispatcher creates a dispatcher for editor whose root context is
// derived from ctx.
func NewDispatcher(ctx context.Context, editor plugin.Editor, opts ...Option) *Dispatcher {
	if ctx == nil {
		ctx = context.Background()
	}
	d := &Dispatcher{
		editor:  editor,
		logger:  slog.Default(),
		byName:  make(map[string]*attachment),
		pending: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.ctx, d.cancel = context.WithCancel(plugin.WithFailureObserver(ctx, d.observeFailure))
	return d
}

// Context returns the root context shared by all attached instances.
func (d *Dispatcher) Context() context.Context { return d.ctx }

// Attach creates p's instance for the editor. The instance starts disabled.
//
// The instance is created without holding the dispatcher lock, so a slow
// plugin setup does not delay events to plugins already attached.
func (d *Dispatcher) Attach(p plugin.Plugin, priority int) error {
	if p == nil {
		return oops.In("host").Code("INVALID_DESCRIPTION").Errorf("plugin is nil")
	}
	desc := p.Description()
	if err := desc.Validate(); err != nil {
		return oops.In("host").With("plugin", desc.Name).Wrap(err)
	}

	if err := d.reserve(desc.Name); err != nil {
		return err
	}

	inst, err := p.CreateSubInstance(d.editor, d.ctx)
	if err == nil && inst == nil {
		err = oops.In("host").Code("INVALID_DESCRIPTION").Errorf("plugin created a nil instance")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, desc.Name)

	if err != nil {
		return oops.In("host").With("plugin", desc.Name).Hint("failed to create instance").Wrap(err)
	}
	if d.closed {
		inst.Destroy()
		return closedErr(desc.Name)
	}

	d.seq++
	a := &attachment{name: desc.Name, priority: priority, seq: d.seq, inst: inst}
	d.attached = append(d.attached, a)
	sort.SliceStable(d.attached, func(i, j int) bool {
		if d.attached[i].priority != d.attached[j].priority {
			return d.attached[i].priority > d.attached[j].priority
		}
		return d.attached[i].seq < d.attached[j].seq
	})
	d.byName[desc.Name] = a
	d.metrics.SetAttached(len(d.attached))

	d.logger.Info("plugin attached",
		"plugin", desc.Name,
		"version", desc.Version,
		"priority", priority)
	return nil
}

// Detach destroys the named instance and waits for its outstanding work.
func (d *Dispatcher) Detach(name string) error {
	d.mu.Lock()
	a, ok := d.byName[name]
	if !ok {
		d.mu.Unlock()
		return notFound(name)
	}
	delete(d.byName, name)
	d.attached = slices.DeleteFunc(d.attached, func(x *attachment) bool { return x == a })
	d.metrics.SetAttached(len(d.attached))
	d.mu.Unlock()

	a.inst.Destroy()
	a.inst.Wait()
	d.logger.Info("plugin detached", "plugin", name)
	return nil
}

// Enable enables the named instance.
func (d *Dispatcher) Enable(name string) error {
	a, err := d.lookup(name)
	if err != nil {
		return err
	}
	a.inst.Enable()
	return nil
}

// Disable disables the named instance. It stops receiving events.
func (d *Dispatcher) Disable(name string) error {
	a, err := d.lookup(name)
	if err != nil {
		return err
	}
	a.inst.Disable()
	return nil
}

// EnableAll enables every attached instance in dispatch order.
func (d *Dispatcher) EnableAll() {
	for _, a := range d.snapshot() {
		a.inst.Enable()
	}
}

// Dispatch delivers event to the enabled instances and returns Intercept if
// one of them intercepted it, Continue otherwise.
func (d *Dispatcher) Dispatch(event plugin.Event) plugin.Disposition {
	return d.DispatchOutcome(event).Disposition
}

// DispatchOutcome is Dispatch reporting which plugin intercepted the event.
func (d *Dispatcher) DispatchOutcome(event plugin.Event) Outcome {
	if event == nil {
		return Outcome{Disposition: plugin.Continue}
	}

	start := time.Now()
	kind := kindLabel(event)
	ctx, span := tracer.Start(d.ctx, "dispatch "+kind, trace.WithAttributes(
		attribute.String("pce.event.kind", kind),
		attribute.String("pce.event.id", event.EventHeader().ID.String()),
	))
	defer span.End()

	for _, a := range d.snapshot() {
		if !a.inst.Enabled() {
			continue
		}
		if a.inst.InvokeConsumers(event) == plugin.Intercept {
			d.metrics.RecordDispatch(kind, a.name, time.Since(start))
			span.SetAttributes(attribute.String("pce.intercepted_by", a.name))
			d.logger.DebugContext(ctx, "event intercepted", "kind", kind, "plugin", a.name)
			return Outcome{Disposition: plugin.Intercept, InterceptedBy: a.name}
		}
	}
	d.metrics.RecordDispatch(kind, "", time.Since(start))
	return Outcome{Disposition: plugin.Continue}
}

// Plugins returns the attached plugin names in dispatch order.
func (d *Dispatcher) Plugins() []string {
	snap := d.snapshot()
	names := make([]string, len(snap))
	for i, a := range snap {
		names[i] = a.name
	}
	return names
}

// Close cancels the root context, destroys every instance and waits for
// their outstanding work until ctx is done. Close is idempotent.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	all := d.attached
	d.attached = nil
	d.byName = make(map[string]*attachment)
	d.metrics.SetAttached(0)
	d.mu.Unlock()

	d.cancel()
	for _, a := range all {
		a.inst.Destroy()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, a := range all {
			a.inst.Wait()
		}
	}()

	select {
	case <-done:
		d.logger.Info("dispatcher closed", "plugins", len(all))
		return nil
	case <-ctx.Done():
		return oops.In("host").Code("SHUTDOWN_TIMEOUT").With("plugins", len(all)).
			Hint("plugin work did not finish before the shutdown deadline").Wrap(ctx.Err())
	}
}

// reserve claims name for an Attach in progress.
func (d *Dispatcher) reserve(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return closedErr(name)
	}
	_, attached := d.byName[name]
	_, pending := d.pending[name]
	if attached || pending {
		return oops.In("host").Code("DUPLICATE_PLUGIN").With("plugin", name).Errorf("plugin already attached")
	}
	d.pending[name] = struct{}{}
	return nil
}

func (d *Dispatcher) snapshot() []*attachment {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.attached)
}

func (d *Dispatcher) lookup(name string) (*attachment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.byName[name]
	if !ok {
		return nil, notFound(name)
	}
	return a, nil
}

// observeFailure sees every contained failure of every attached instance.
func (d *Dispatcher) observeFailure(name string, err error) {
	code := ""
	if c := errutil.Code(err); c != nil {
		code = fmt.Sprint(c)
	}
	d.metrics.RecordFailure(name, code)
}

func closedErr(name string) error {
	return oops.In("host").Code("DISPATCHER_CLOSED").With("plugin", name).Errorf("dispatcher is closed")
}

func notFound(name string) error {
	return oops.In("host").Code("PLUGIN_NOT_FOUND").With("plugin", name).Errorf("plugin not attached")
}

func kindLabel(event plugin.Event) string {
	kind := plugin.KindOfEvent(event)
	if name := plugin.KindName(kind); name != "" {
		return name
	}
	return kind.String()
}
