// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

package hostfunc_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/pce-editor/pce/internal/plugin/capability"
	"github.com/pce-editor/pce/internal/plugin/hostfunc"
	pluginapi "github.com/pce-editor/pce/pkg/plugin"
)

type subscription struct {
	kind pluginapi.Kind
	name string
}

func setup(t *testing.T, grants []string, subscribe hostfunc.SubscribeFunc) (*lua.LState, *bytes.Buffer) {
	t.Helper()

	enforcer := capability.NewEnforcer()
	require.NoError(t, enforcer.SetGrants("spell", grants))

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	L := lua.NewState()
	t.Cleanup(L.Close)

	hostfunc.New(enforcer).Register(L, hostfunc.Binding{
		Plugin:    "spell",
		EditorID:  "ed-7",
		Logger:    logger,
		Subscribe: subscribe,
	})
	return L, &buf
}

func TestNew_PanicsOnNilEnforcer(t *testing.T) {
	assert.Panics(t, func() { hostfunc.New(nil) })
}

func TestLog(t *testing.T) {
	L, buf := setup(t, nil, nil)

	require.NoError(t, L.DoString(`
		pce.log("debug", "d-msg")
		pce.log("warn", "w-msg")
		pce.log("bogus", "fallback-msg")
	`))

	out := buf.String()
	assert.Contains(t, out, "level=DEBUG msg=d-msg")
	assert.Contains(t, out, "level=WARN msg=w-msg")
	assert.Contains(t, out, "level=INFO msg=fallback-msg")
}

func TestNewIDAndEditorID(t *testing.T) {
	L, _ := setup(t, nil, nil)

	require.NoError(t, L.DoString(`id = pce.new_id(); ed = pce.editor_id()`))

	_, err := ulid.Parse(L.GetGlobal("id").String())
	assert.NoError(t, err)
	assert.Equal(t, "ed-7", L.GetGlobal("ed").String())
}

func TestKinds(t *testing.T) {
	L, _ := setup(t, nil, nil)

	require.NoError(t, L.DoString(`n = #pce.kinds; first = pce.kinds[1]`))
	assert.Equal(t, lua.LNumber(len(pluginapi.BuiltinKindNames())), L.GetGlobal("n"))
	assert.Equal(t, "key_press", L.GetGlobal("first").String())
}

func TestSubscribe(t *testing.T) {
	var got []subscription
	record := func(kind pluginapi.Kind, name string, _ *lua.LFunction) error {
		got = append(got, subscription{kind: kind, name: name})
		return nil
	}

	t.Run("granted", func(t *testing.T) {
		got = nil
		L, _ := setup(t, []string{"events.subscribe.*"}, record)

		require.NoError(t, L.DoString(`pce.subscribe("key_press", function(e) end)`))
		require.Len(t, got, 1)
		assert.Equal(t, pluginapi.KindOf[pluginapi.KeyPress](), got[0].kind)
		assert.Equal(t, "key_press", got[0].name)
	})

	t.Run("capability denied", func(t *testing.T) {
		got = nil
		L, _ := setup(t, []string{"events.subscribe.lifecycle"}, record)

		err := L.DoString(`pce.subscribe("text_change", function(e) end)`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "capability denied")
		assert.Empty(t, got)
	})

	t.Run("unknown kind", func(t *testing.T) {
		got = nil
		L, _ := setup(t, []string{"**"}, record)

		err := L.DoString(`pce.subscribe("mouse_move", function(e) end)`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown event kind "mouse_move"`)
	})

	t.Run("handler must be a function", func(t *testing.T) {
		L, _ := setup(t, []string{"**"}, record)
		assert.Error(t, L.DoString(`pce.subscribe("key_press", 42)`))
	})

	t.Run("subscription rejected", func(t *testing.T) {
		L, _ := setup(t, []string{"**"}, func(pluginapi.Kind, string, *lua.LFunction) error {
			return errors.New("instance destroyed")
		})

		err := L.DoString(`pce.subscribe("key_press", function(e) end)`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "instance destroyed")
	})
}

func TestDispositionConstants(t *testing.T) {
	L, _ := setup(t, nil, nil)

	require.NoError(t, L.DoString(`c, i, u = pce.CONTINUE, pce.INTERCEPT, pce.UNSUBSCRIBE`))
	assert.Equal(t, "continue", L.GetGlobal("c").String())
	assert.Equal(t, "intercept", L.GetGlobal("i").String())
	assert.Equal(t, "unsubscribe", L.GetGlobal("u").String())
}
