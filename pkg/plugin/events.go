// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

package plugin

import "slices"

// Modifier is a bit set of keyboard modifiers held during a key press.
type Modifier uint8

// Keyboard modifiers.
const (
	ModShift Modifier = 1 << iota
	ModCtrl
	ModAlt
	ModMeta
)

// Has reports whether all bits of m2 are set in m.
func (m Modifier) Has(m2 Modifier) bool { return m&m2 == m2 }

// Position is a zero-based line/column location in the editor buffer.
type Position struct {
	Line   int
	Column int
}

// Less reports whether p sorts before other.
func (p Position) Less(other Position) bool {
	if p.Line != other.Line {
		return p.Line < other.Line
	}
	return p.Column < other.Column
}

// KeyPress is emitted for every keystroke delivered to the editor.
type KeyPress struct {
	Header
	// Key is the symbolic key name ("a", "Enter", "Backspace").
	Key string
	// Rune is the character produced, or 0 for non-printing keys.
	Rune      rune
	Modifiers Modifier
}

// SelectionChange is emitted when the selection or caret moves.
// Start equals End for a bare caret.
type SelectionChange struct {
	Header
	Start Position
	End   Position
}

// Empty reports whether the selection is a bare caret.
func (s SelectionChange) Empty() bool { return s.Start == s.End }

// TextChange is emitted after the buffer content changed. The text in
// [Start, End) was replaced by Text.
type TextChange struct {
	Header
	Start Position
	End   Position
	Text  string
}

// LifecyclePhase is a transition of the editor surface.
type LifecyclePhase uint8

// Editor lifecycle phases.
const (
	PhaseAttached LifecyclePhase = iota
	PhaseFocused
	PhaseBlurred
	PhaseDetaching
)

func (p LifecyclePhase) String() string {
	switch p {
	case PhaseAttached:
		return "attached"
	case PhaseFocused:
		return "focused"
	case PhaseBlurred:
		return "blurred"
	case PhaseDetaching:
		return "detaching"
	default:
		return "unknown"
	}
}

// Lifecycle is emitted when the editor surface changes phase.
type Lifecycle struct {
	Header
	Phase LifecyclePhase
}

// Names of the built-in event kinds, as used in manifests and scripts.
var builtinKinds = map[string]Kind{
	"key_press":        KindOf[KeyPress](),
	"selection_change": KindOf[SelectionChange](),
	"text_change":      KindOf[TextChange](),
	"lifecycle":        KindOf[Lifecycle](),
}

// LookupKind returns the built-in kind called name.
func LookupKind(name string) (Kind, bool) {
	k, ok := builtinKinds[name]
	return k, ok
}

// KindName returns the script name of a built-in kind, or "" for any other.
func KindName(k Kind) string {
	for name, kind := range builtinKinds {
		if kind == k {
			return name
		}
	}
	return ""
}

// BuiltinKindNames returns the names of the built-in kinds, sorted.
func BuiltinKindNames() []string {
	names := make([]string, 0, len(builtinKinds))
	for name := range builtinKinds {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
