// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

package host

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/samber/oops"

	"github.com/pce-editor/pce/pkg/plugin"
)

// The compact script format writes one event per line:
//
//	# comments run to the end of the line
//	key ctrl+shift+j
//	key Escape
//	key "+"
//	text 0:0 "hello"
//	text 0:0-0:5 ""
//	select 1:2-1:6
//	lifecycle focused
//
// Positions are line:column; a missing end position equals the start.
var compactLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "comment", Pattern: `#[^\n]*`},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Number", Pattern: `\d+`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Punct", Pattern: `[+:\-]`},
	{Name: "whitespace", Pattern: `\s+`},
})

type compactScript struct {
	Events []*compactEvent `parser:"@@*"`
}

type compactEvent struct {
	Pos       lexer.Position `parser:""`
	Key       *compactKey    `parser:"  'key' @@"`
	Text      *compactText   `parser:"| 'text' @@"`
	Select    *compactRange  `parser:"| 'select' @@"`
	Lifecycle *string        `parser:"| 'lifecycle' @Ident"`
}

// compactKey is a '+'-joined chord; the last part is the key.
type compactKey struct {
	Parts []string `parser:"@(Ident | String | Number) ('+' @(Ident | String | Number))*"`
}

type compactText struct {
	Range *compactRange `parser:"@@"`
	Text  string        `parser:"@String"`
}

type compactRange struct {
	Start compactPos  `parser:"@@"`
	End   *compactPos `parser:"('-' @@)?"`
}

type compactPos struct {
	Line   int `parser:"@Number ':'"`
	Column int `parser:"@Number"`
}

var compactParser = participle.MustBuild[compactScript](
	participle.Lexer(compactLexer),
	participle.Unquote("String"),
)

// ParseCompactScript decodes a script in the compact line format.
func ParseCompactScript(data []byte) ([]plugin.Event, error) {
	script, err := compactParser.ParseBytes("", data)
	if err != nil {
		return nil, oops.In("script").Code("INVALID_SCRIPT").Wrapf(err, "parse compact script")
	}

	events := make([]plugin.Event, 0, len(script.Events))
	for i, ce := range script.Events {
		event, err := ce.scriptEvent().toEvent()
		if err != nil {
			return nil, oops.In("script").
				With("index", i).
				With("position", fmt.Sprintf("%d:%d", ce.Pos.Line, ce.Pos.Column)).
				Wrap(err)
		}
		events = append(events, event)
	}
	return events, nil
}

func (ce *compactEvent) scriptEvent() ScriptEvent {
	switch {
	case ce.Key != nil:
		n := len(ce.Key.Parts)
		return ScriptEvent{Kind: "key_press", Key: ce.Key.Parts[n-1], Mods: ce.Key.Parts[:n-1]}
	case ce.Text != nil:
		from, to := ce.Text.Range.bounds()
		return ScriptEvent{Kind: "text_change", From: from, To: to, Text: ce.Text.Text}
	case ce.Select != nil:
		from, to := ce.Select.bounds()
		return ScriptEvent{Kind: "selection_change", From: from, To: to}
	default:
		return ScriptEvent{Kind: "lifecycle", Phase: *ce.Lifecycle}
	}
}

func (r *compactRange) bounds() (plugin.Position, *plugin.Position) {
	from := plugin.Position{Line: r.Start.Line, Column: r.Start.Column}
	if r.End == nil {
		return from, nil
	}
	return from, &plugin.Position{Line: r.End.Line, Column: r.End.Column}
}

// LoadScript reads an event script from path. Files ending in .yaml or .yml
// are YAML scripts; anything else is in the compact format.
func LoadScript(path string) ([]plugin.Event, error) {
	data, err := os.ReadFile(path) //nolint:gosec // the script path is chosen by the operator
	if err != nil {
		return nil, oops.In("script").With("path", path).Hint("failed to read event script").Wrap(err)
	}

	var events []plugin.Event
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		events, err = ParseScript(data)
	default:
		events, err = ParseCompactScript(data)
	}
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return events, nil
}
