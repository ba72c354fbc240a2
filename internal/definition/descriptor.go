// Package definition parses command definition headers into descriptors.
//
// A definition looks like:
//
//	#!/bin/argparse
//	! rps
//	@ Play rock paper scissors against the bot.
//	% %(prog)s <choice>
//	; choice | choices=rock,paper,scissors | help="your move"
//	; -q --quiet | action=store_true
//	|||
//	echo "$choice"
package definition

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Type is the coercion applied to an argument token.
type Type string

const (
	TypeStr   Type = "str"
	TypeInt   Type = "int"
	TypeFloat Type = "float"
	TypeID    Type = "id"
	TypeTryID Type = "try_id"
	TypeTime  Type = "time"
)

// Arity is how many tokens an argument consumes.
type Arity int

const (
	ExactlyOne Arity = iota
	OptionalOne
	ZeroOrMore
	OneOrMore
)

func (a Arity) String() string {
	switch a {
	case OptionalOne:
		return "?"
	case ZeroOrMore:
		return "*"
	case OneOrMore:
		return "+"
	default:
		return "1"
	}
}

// Action is what a flag does when present.
type Action int

const (
	ActionStore Action = iota
	ActionStoreTrue
)

// ArgSpec declares a single positional argument or flag.
type ArgSpec struct {
	Name    string // primary name; flags keep their dashes
	Alias   string // short flag alias
	Type    Type
	Arity   Arity
	Default *string
	Choices []string
	Action  Action
	Dest    string
	Help    string
}

// Positional reports whether the argument is a positional argument.
func (a *ArgSpec) Positional() bool { return !strings.HasPrefix(a.Name, "-") }

// Required reports whether the argument must be supplied.
func (a *ArgSpec) Required() bool {
	return a.Positional() && (a.Arity == ExactlyOne || a.Arity == OneOrMore)
}

// Multiple reports whether the bound value is a sequence.
func (a *ArgSpec) Multiple() bool { return a.Arity == ZeroOrMore || a.Arity == OneOrMore }

// Flags returns the flag spellings, alias first.
func (a *ArgSpec) Flags() []string {
	if a.Positional() {
		return nil
	}
	if a.Alias != "" {
		return []string{a.Alias, a.Name}
	}
	return []string{a.Name}
}

// Matches reports whether token names this flag.
func (a *ArgSpec) Matches(token string) bool {
	return !a.Positional() && (token == a.Name || (a.Alias != "" && token == a.Alias))
}

func (a *ArgSpec) metavar() string {
	if len(a.Choices) > 0 {
		return "{" + strings.Join(a.Choices, ",") + "}"
	}
	if a.Positional() {
		return a.Name
	}
	return strings.ToUpper(a.Dest)
}

func (a *ArgSpec) usage() string {
	var s string
	switch {
	case a.Action == ActionStoreTrue:
		s = a.Flags()[0]
	case !a.Positional():
		s = a.Flags()[0] + " " + a.arityForm()
	default:
		s = a.arityForm()
	}
	if !a.Required() && a.Arity != ZeroOrMore || !a.Positional() {
		return "[" + s + "]"
	}
	return s
}

func (a *ArgSpec) arityForm() string {
	m := a.metavar()
	switch a.Arity {
	case OptionalOne:
		if a.Positional() {
			return m
		}
		return "[" + m + "]"
	case ZeroOrMore:
		return "[" + m + " ...]"
	case OneOrMore:
		return m + " [" + m + " ...]"
	default:
		return m
	}
}

// Descriptor is an immutable parsed command definition.
type Descriptor struct {
	Name    string
	Summary string
	Usage   string
	Epilog  string
	Args    []ArgSpec
	Source  string
	Body    *syntax.File
}

// Positionals returns the positional specs in declaration order.
func (d *Descriptor) Positionals() []*ArgSpec {
	var out []*ArgSpec
	for i := range d.Args {
		if d.Args[i].Positional() {
			out = append(out, &d.Args[i])
		}
	}
	return out
}

// Flag returns the flag spec named by token.
func (d *Descriptor) Flag(token string) (*ArgSpec, bool) {
	for i := range d.Args {
		if d.Args[i].Matches(token) {
			return &d.Args[i], true
		}
	}
	return nil, false
}

// UsageLine renders the usage template, or a generated one.
func (d *Descriptor) UsageLine() string {
	if d.Usage != "" {
		return strings.ReplaceAll(d.Usage, "%(prog)s", d.Name)
	}
	parts := []string{d.Name, "[-h]"}
	for i := range d.Args {
		if !d.Args[i].Positional() {
			parts = append(parts, d.Args[i].usage())
		}
	}
	for _, a := range d.Positionals() {
		parts = append(parts, a.usage())
	}
	return strings.Join(parts, " ")
}

// Help renders the help text shown for -h.
func (d *Descriptor) Help() string {
	var b strings.Builder
	fmt.Fprintf(&b, "usage: %s\n", d.UsageLine())
	if d.Summary != "" {
		fmt.Fprintf(&b, "\n%s\n", d.Summary)
	}

	pos := d.Positionals()
	if len(pos) > 0 {
		b.WriteString("\npositional arguments:\n")
		for _, a := range pos {
			writeHelpRow(&b, a.Name, a.help())
		}
	}

	b.WriteString("\noptions:\n")
	writeHelpRow(&b, "-h, --help", "show this help message and exit")
	for i := range d.Args {
		a := &d.Args[i]
		if a.Positional() {
			continue
		}
		label := strings.Join(a.Flags(), ", ")
		if a.Action != ActionStoreTrue {
			label += " " + a.metavar()
		}
		writeHelpRow(&b, label, a.help())
	}

	if d.Epilog != "" {
		fmt.Fprintf(&b, "\n%s\n", d.Epilog)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *ArgSpec) help() string {
	h := a.Help
	if a.Default != nil && *a.Default != "" {
		h = strings.TrimSpace(h + " (default: " + *a.Default + ")")
	}
	return h
}

func writeHelpRow(b *strings.Builder, label, help string) {
	if help == "" {
		fmt.Fprintf(b, "  %s\n", label)
		return
	}
	if len(label) < 22 {
		fmt.Fprintf(b, "  %-22s%s\n", label, help)
		return
	}
	fmt.Fprintf(b, "  %s\n  %-22s%s\n", label, "", help)
}
