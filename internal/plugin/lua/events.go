// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

package lua

import (
	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	pluginapi "github.com/pce-editor/pce/pkg/plugin"
)

// unrecognized is handed to the registry for return values that name no
// disposition. The registry treats it as Continue.
const unrecognized pluginapi.Disposition = -1

// eventTable converts event to the table passed to Lua handlers.
func eventTable(L *lua.LState, kindName string, event pluginapi.Event) *lua.LTable {
	t := L.NewTable()
	h := event.EventHeader()
	L.SetField(t, "kind", lua.LString(kindName))
	L.SetField(t, "id", lua.LString(h.ID.String()))
	L.SetField(t, "timestamp", lua.LNumber(h.Timestamp.UnixMilli()))

	switch e := event.(type) {
	case pluginapi.KeyPress:
		L.SetField(t, "key", lua.LString(e.Key))
		if e.Rune != 0 {
			L.SetField(t, "char", lua.LString(string(e.Rune)))
		}
		mods := L.NewTable()
		L.SetField(mods, "shift", lua.LBool(e.Modifiers.Has(pluginapi.ModShift)))
		L.SetField(mods, "ctrl", lua.LBool(e.Modifiers.Has(pluginapi.ModCtrl)))
		L.SetField(mods, "alt", lua.LBool(e.Modifiers.Has(pluginapi.ModAlt)))
		L.SetField(mods, "meta", lua.LBool(e.Modifiers.Has(pluginapi.ModMeta)))
		L.SetField(t, "mods", mods)
	case pluginapi.SelectionChange:
		L.SetField(t, "from", positionTable(L, e.Start))
		L.SetField(t, "to", positionTable(L, e.End))
		L.SetField(t, "empty", lua.LBool(e.Empty()))
	case pluginapi.TextChange:
		L.SetField(t, "from", positionTable(L, e.Start))
		L.SetField(t, "to", positionTable(L, e.End))
		L.SetField(t, "text", lua.LString(e.Text))
	case pluginapi.Lifecycle:
		L.SetField(t, "phase", lua.LString(e.Phase.String()))
	}
	return t
}

func positionTable(L *lua.LState, p pluginapi.Position) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "line", lua.LNumber(p.Line))
	L.SetField(t, "column", lua.LNumber(p.Column))
	return t
}

// toDisposition maps a handler's return value to a Disposition. Handlers
// may return nothing, a disposition name, or its numeric code.
func toDisposition(v lua.LValue) (pluginapi.Disposition, error) {
	switch val := v.(type) {
	case *lua.LNilType:
		return pluginapi.Continue, nil
	case lua.LString:
		if d, ok := pluginapi.ParseDisposition(string(val)); ok {
			return d, nil
		}
		return unrecognized, nil
	case lua.LNumber:
		n := float64(val)
		if n != float64(int(n)) {
			return unrecognized, nil
		}
		return pluginapi.Disposition(int(n)), nil
	default:
		return pluginapi.Continue, oops.In("lua").
			With("returned", v.Type().String()).
			Errorf("handler returned a %s, want a disposition", v.Type().String())
	}
}
