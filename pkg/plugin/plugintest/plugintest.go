// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

// Package plugintest provides fakes for testing plugins and hosts.
package plugintest

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/pce-editor/pce/pkg/plugin"
)

// Editor is a fake plugin.Editor.
type Editor struct {
	Name string
}

// ID returns Name.
func (e *Editor) ID() string { return e.Name }

// Recorder records consumer invocations in order.
type Recorder struct {
	mu    sync.Mutex
	calls []string
}

// Record appends label.
func (r *Recorder) Record(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, label)
}

// Calls returns a copy of the recorded labels.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// Reset forgets all calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// Consumer returns a consumer of E that records label and returns d.
func Consumer[E plugin.Event](r *Recorder, label string, d plugin.Disposition) plugin.ConsumerFunc[E] {
	return func(E) (plugin.Disposition, error) {
		r.Record(label)
		return d, nil
	}
}

// ErrConsumer is the error returned by FailingConsumer.
var ErrConsumer = errors.New("consumer failed")

// FailingConsumer returns a consumer of E that records label and fails.
func FailingConsumer[E plugin.Event](r *Recorder, label string) plugin.ConsumerFunc[E] {
	return func(E) (plugin.Disposition, error) {
		r.Record(label)
		return plugin.Continue, ErrConsumer
	}
}

// PanickingConsumer returns a consumer of E that records label and panics.
func PanickingConsumer[E plugin.Event](r *Recorder, label string) plugin.ConsumerFunc[E] {
	return func(E) (plugin.Disposition, error) {
		r.Record(label)
		panic("consumer " + label + " panicked")
	}
}

// Hooks counts lifecycle hook invocations.
type Hooks struct {
	Enables  atomic.Int32
	Disables atomic.Int32
}

// OnEnable counts an enable.
func (h *Hooks) OnEnable() { h.Enables.Add(1) }

// OnDisable counts a disable.
func (h *Hooks) OnDisable() { h.Disables.Add(1) }

// Failures collects errors passed to a failure handler.
type Failures struct {
	mu   sync.Mutex
	errs []error
}

// Handle implements plugin.FailureHandler.
func (f *Failures) Handle(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

// Errors returns a copy of the collected errors.
func (f *Failures) Errors() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.errs)
}

// Len returns the number of collected errors.
func (f *Failures) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errs)
}

// Plugin is a configurable plugin.Plugin whose instances are plain
// SubInstances.
type Plugin struct {
	Name    string
	Version string
	Hooks   plugin.Hooks
	// Setup runs on every new instance, typically to subscribe consumers.
	Setup func(s *plugin.SubInstance) error

	mu        sync.Mutex
	instances []*plugin.SubInstance
}

// Description implements plugin.Plugin. Version defaults to 1.0.0.
func (p *Plugin) Description() plugin.Description {
	v := p.Version
	if v == "" {
		v = "1.0.0"
	}
	return plugin.Description{Name: p.Name, Version: v}
}

// CreateSubInstance implements plugin.Plugin.
func (p *Plugin) CreateSubInstance(editor plugin.Editor, parent context.Context) (plugin.Instance, error) {
	s := plugin.NewSubInstance(p.Name, editor, parent, p.Hooks)
	if p.Setup != nil {
		if err := p.Setup(s); err != nil {
			s.Destroy()
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.instances = append(p.instances, s)
	return s, nil
}

// Instances returns the instances created so far.
func (p *Plugin) Instances() []*plugin.SubInstance {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.instances)
}
