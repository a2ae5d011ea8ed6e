// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

package host

import (
	"strings"
	"unicode/utf8"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/pce-editor/pce/pkg/plugin"
)

// Script is a recorded sequence of editor events, replayed through a
// Dispatcher by the headless host.
//
//	events:
//	  - kind: key_press
//	    key: j
//	    mods: [ctrl]
//	  - kind: text_change
//	    from: {line: 0, column: 0}
//	    text: hello
type Script struct {
	Events []ScriptEvent `yaml:"events"`
}

// ScriptEvent is one entry of a Script. Which fields apply depends on Kind.
type ScriptEvent struct {
	Kind  string           `yaml:"kind"`
	Key   string           `yaml:"key,omitempty"`
	Char  string           `yaml:"char,omitempty"`
	Mods  []string         `yaml:"mods,omitempty"`
	From  plugin.Position  `yaml:"from,omitempty"`
	To    *plugin.Position `yaml:"to,omitempty"`
	Text  string           `yaml:"text,omitempty"`
	Phase string           `yaml:"phase,omitempty"`
}

var modifierNames = map[string]plugin.Modifier{
	"shift": plugin.ModShift,
	"ctrl":  plugin.ModCtrl,
	"alt":   plugin.ModAlt,
	"meta":  plugin.ModMeta,
}

var phaseNames = map[string]plugin.LifecyclePhase{
	"attached":  plugin.PhaseAttached,
	"focused":   plugin.PhaseFocused,
	"blurred":   plugin.PhaseBlurred,
	"detaching": plugin.PhaseDetaching,
}

// ParseScript decodes a YAML event script into events, stamping each with
// a fresh header in script order.
func ParseScript(data []byte) ([]plugin.Event, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, oops.In("script").Code("INVALID_SCRIPT").Wrapf(err, "parse event script")
	}

	events := make([]plugin.Event, 0, len(s.Events))
	for i, se := range s.Events {
		event, err := se.toEvent()
		if err != nil {
			return nil, oops.In("script").With("index", i).Wrap(err)
		}
		events = append(events, event)
	}
	return events, nil
}

func (se ScriptEvent) toEvent() (plugin.Event, error) {
	if _, ok := plugin.LookupKind(se.Kind); !ok {
		return nil, oops.In("script").Code("INVALID_KIND").
			With("kind", se.Kind).
			Hint("one of " + strings.Join(plugin.BuiltinKindNames(), ", ")).
			Errorf("unknown event kind %q", se.Kind)
	}

	to := se.From
	if se.To != nil {
		to = *se.To
	}

	switch se.Kind {
	case "key_press":
		return se.keyPress()
	case "selection_change":
		return plugin.SelectionChange{Header: plugin.NewHeader(), Start: se.From, End: to}, nil
	case "text_change":
		return plugin.TextChange{Header: plugin.NewHeader(), Start: se.From, End: to, Text: se.Text}, nil
	default:
		phase, ok := phaseNames[strings.ToLower(se.Phase)]
		if !ok {
			return nil, oops.In("script").Code("INVALID_SCRIPT").
				With("phase", se.Phase).
				Errorf("unknown lifecycle phase %q", se.Phase)
		}
		return plugin.Lifecycle{Header: plugin.NewHeader(), Phase: phase}, nil
	}
}

func (se ScriptEvent) keyPress() (plugin.Event, error) {
	if se.Key == "" {
		return nil, oops.In("script").Code("INVALID_SCRIPT").Errorf("key_press without key")
	}

	var mods plugin.Modifier
	for _, name := range se.Mods {
		m, ok := modifierNames[strings.ToLower(name)]
		if !ok {
			return nil, oops.In("script").Code("INVALID_SCRIPT").
				With("modifier", name).
				Errorf("unknown modifier %q", name)
		}
		mods |= m
	}

	// Single printable keys produce their own character unless char says
	// otherwise.
	char := se.Char
	if char == "" && utf8.RuneCountInString(se.Key) == 1 {
		char = se.Key
	}
	var r rune
	if char != "" {
		r, _ = utf8.DecodeRuneInString(char)
	}

	return plugin.KeyPress{Header: plugin.NewHeader(), Key: se.Key, Rune: r, Modifiers: mods}, nil
}
