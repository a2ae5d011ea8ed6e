// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

package lua

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	plugins "github.com/pce-editor/pce/internal/plugin"
	"github.com/pce-editor/pce/internal/plugin/hostfunc"
	pluginapi "github.com/pce-editor/pce/pkg/plugin"
)

// Compile-time interface check.
var _ pluginapi.Plugin = (*Plugin)(nil)

// Plugin is a loaded Lua plugin. It holds compiled code only; every
// SubInstance runs that code in a Lua state of its own.
type Plugin struct {
	manifest *plugins.Manifest
	proto    *lua.FunctionProto
	factory  *StateFactory
	funcs    *hostfunc.Functions
	logger   *slog.Logger
}

// Description returns the manifest's metadata.
func (p *Plugin) Description() pluginapi.Description {
	return p.manifest.Description()
}

// Manifest returns the plugin manifest.
func (p *Plugin) Manifest() *plugins.Manifest { return p.manifest }

// CreateSubInstance creates a Lua state for editor and runs the plugin's
// top-level code in it, which registers the script's handlers. The state is
// closed once the instance scope is cancelled.
func (p *Plugin) CreateSubInstance(editor pluginapi.Editor, parent context.Context) (pluginapi.Instance, error) {
	name := p.manifest.Name
	in := &instance{}
	in.SubInstance = pluginapi.NewSubInstance(name, editor, parent, in, pluginapi.WithLogger(p.logger))

	L, err := p.factory.NewState(in.Context())
	if err != nil {
		in.Destroy()
		return nil, oops.In("lua").With("plugin", name).Hint("failed to create state").Wrap(err)
	}
	in.L = L

	editorID := ""
	if editor != nil {
		editorID = editor.ID()
	}
	p.funcs.Register(L, hostfunc.Binding{
		Plugin:    name,
		EditorID:  editorID,
		Logger:    in.Logger(),
		Subscribe: in.subscribe,
	})

	if !in.Go(in.closeWhenDone) {
		in.Destroy()
		in.close()
		return nil, oops.In("lua").With("plugin", name).Errorf("parent context already done")
	}

	if err := in.run(p.proto); err != nil {
		in.Destroy()
		return nil, oops.In("lua").Code("INVALID_SCRIPT").With("plugin", name).Hint("top-level code failed").Wrap(err)
	}
	return in, nil
}

// instance is the SubInstance of a Lua plugin. The Lua state is not safe
// for concurrent use, so every call into it holds mu.
type instance struct {
	*pluginapi.SubInstance

	mu        sync.Mutex
	L         *lua.LState
	closed    bool
	onEnable  *lua.LFunction
	onDisable *lua.LFunction
}

func (in *instance) run(proto *lua.FunctionProto) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	in.L.Push(in.L.NewFunctionFromProto(proto))
	if err := in.L.PCall(0, lua.MultRet, nil); err != nil {
		return err
	}
	in.L.SetTop(0)

	in.onEnable, _ = in.L.GetGlobal("on_enable").(*lua.LFunction)
	in.onDisable, _ = in.L.GetGlobal("on_disable").(*lua.LFunction)
	return nil
}

// OnEnable calls the script's on_enable, if any.
func (in *instance) OnEnable() { in.callHook("on_enable", &in.onEnable) }

// OnDisable calls the script's on_disable, if any.
func (in *instance) OnDisable() { in.callHook("on_disable", &in.onDisable) }

func (in *instance) callHook(hook string, slot **lua.LFunction) {
	in.mu.Lock()
	defer in.mu.Unlock()
	fn := *slot
	if fn == nil || in.closed {
		return
	}

	if err := in.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
		in.Fail(oops.In("lua").Code("HOOK_FAILURE").With("hook", hook).Wrap(err))
	}
}

// subscribe backs pce.subscribe.
func (in *instance) subscribe(kind pluginapi.Kind, kindName string, fn *lua.LFunction) error {
	return in.SubscribeKind(kind, pluginapi.ConsumerFunc[pluginapi.Event](func(event pluginapi.Event) (pluginapi.Disposition, error) {
		return in.handle(kindName, fn, event)
	}))
}

func (in *instance) handle(kindName string, fn *lua.LFunction, event pluginapi.Event) (pluginapi.Disposition, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return pluginapi.Continue, nil
	}

	if err := in.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, eventTable(in.L, kindName, event)); err != nil {
		return pluginapi.Continue, oops.In("lua").With("kind", kindName).Wrap(err)
	}
	ret := in.L.Get(-1)
	in.L.Pop(1)
	return toDisposition(ret)
}

func (in *instance) closeWhenDone(ctx context.Context) error {
	<-ctx.Done()
	in.close()
	return nil
}

func (in *instance) close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return
	}
	in.closed = true
	in.L.Close()
}
