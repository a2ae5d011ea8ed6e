// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

// Package hostfunc provides host functions to Lua plugins.
//
// Host functions expose editor capabilities to plugins in a controlled way.
// Functions that reach into the editor require capability checks.
package hostfunc

import (
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/pce-editor/pce/internal/plugin/capability"
	pluginapi "github.com/pce-editor/pce/pkg/plugin"
)

// GlobalName is the Lua global holding the host function table.
const GlobalName = "pce"

// SubscribeFunc registers a Lua handler for an event kind on the calling
// plugin's instance.
type SubscribeFunc func(kind pluginapi.Kind, kindName string, handler *lua.LFunction) error

// Binding ties one Lua state to the plugin instance it runs for.
type Binding struct {
	Plugin    string
	EditorID  string
	Logger    *slog.Logger
	Subscribe SubscribeFunc
}

// Functions provides host functions to Lua plugins.
type Functions struct {
	enforcer *capability.Enforcer
}

// New creates host functions checking capabilities against enforcer.
// Panics if enforcer is nil.
func New(enforcer *capability.Enforcer) *Functions {
	if enforcer == nil {
		panic("hostfunc.New: enforcer cannot be nil")
	}
	return &Functions{enforcer: enforcer}
}

// Enforcer returns the capability enforcer.
func (f *Functions) Enforcer() *capability.Enforcer { return f.enforcer }

// Register installs the pce table in ls for b.
func (f *Functions) Register(ls *lua.LState, b Binding) {
	if b.Logger == nil {
		b.Logger = slog.Default().With("plugin", b.Plugin)
	}

	mod := ls.NewTable()

	// No capability required.
	ls.SetField(mod, "log", ls.NewFunction(logFn(b.Logger)))
	ls.SetField(mod, "new_id", ls.NewFunction(newIDFn))
	ls.SetField(mod, "editor_id", ls.NewFunction(editorIDFn(b.EditorID)))
	ls.SetField(mod, "kinds", kindsTable(ls))
	for _, d := range []pluginapi.Disposition{pluginapi.Continue, pluginapi.Intercept, pluginapi.Unsubscribe} {
		ls.SetField(mod, strings.ToUpper(d.String()), lua.LString(d.String()))
	}

	// Checked per kind inside.
	ls.SetField(mod, "subscribe", ls.NewFunction(f.subscribeFn(b)))

	ls.SetGlobal(GlobalName, mod)
}

func logFn(logger *slog.Logger) lua.LGFunction {
	return func(L *lua.LState) int {
		level := L.CheckString(1)
		message := L.CheckString(2)

		switch level {
		case "debug":
			logger.Debug(message)
		case "info":
			logger.Info(message)
		case "warn":
			logger.Warn(message)
		case "error":
			logger.Error(message)
		default:
			logger.Info(message)
		}
		return 0
	}
}

func newIDFn(L *lua.LState) int {
	L.Push(lua.LString(ulid.Make().String()))
	return 1
}

func editorIDFn(id string) lua.LGFunction {
	return func(L *lua.LState) int {
		L.Push(lua.LString(id))
		return 1
	}
}

func kindsTable(ls *lua.LState) *lua.LTable {
	t := ls.NewTable()
	for _, name := range pluginapi.BuiltinKindNames() {
		t.Append(lua.LString(name))
	}
	return t
}

// subscribeFn implements pce.subscribe(kind, handler). It raises a Lua error
// for unknown kinds, missing capabilities and rejected subscriptions.
func (f *Functions) subscribeFn(b Binding) lua.LGFunction {
	return func(L *lua.LState) int {
		name := L.CheckString(1)
		handler := L.CheckFunction(2)

		kind, ok := pluginapi.LookupKind(name)
		if !ok {
			L.RaiseError("unknown event kind %q", name)
			return 0
		}
		if err := f.enforcer.Require(b.Plugin, capability.Subscribe(name)); err != nil {
			L.RaiseError("capability denied: %s requires %s", b.Plugin, capability.Subscribe(name))
			return 0
		}
		if b.Subscribe == nil {
			L.RaiseError("subscribe not available")
			return 0
		}
		if err := b.Subscribe(kind, name, handler); err != nil {
			L.RaiseError("%s", oops.Wrapf(err, "subscribe %s", name).Error())
			return 0
		}
		return 0
	}
}
