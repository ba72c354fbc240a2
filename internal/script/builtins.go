package script

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/FUFSoB/cli-bot-discord/internal/binder"
	"github.com/FUFSoB/cli-bot-discord/internal/definition"
	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
)

type builtinFunc func(ctx context.Context, s *Session, c *call) ([]any, error)

type builtin struct {
	desc *definition.Descriptor
	// raw builtins get their tokens unbound.
	raw bool
	run builtinFunc
}

// call is one builtin invocation.
type call struct {
	name  string
	args  []any
	vals  binder.Values
	stdin []any
	piped bool
}

// input returns stdin, or the positional list when nothing was piped.
func (c *call) input(dest string) []any {
	if l := c.vals.List(dest); len(l) > 0 {
		return l
	}
	if v := c.vals.Get(dest); v != nil {
		if _, isList := v.([]any); !isList {
			return []any{v}
		}
	}
	return flatten(c.stdin)
}

var builtins map[string]*builtin

func init() {
	builtins = make(map[string]*builtin)
	registerNav()
	registerText()
	registerControl()
	registerSink()
	registerMeta()
}

func register(header string, run builtinFunc) {
	d := definition.MustParseHeader(header)
	builtins[d.Name] = &builtin{desc: d, run: run}
}

func registerRaw(header string, run builtinFunc) {
	d := definition.MustParseHeader(header)
	builtins[d.Name] = &builtin{desc: d, raw: true, run: run}
}

func (s *Session) callBuiltin(ctx context.Context, name string, b *builtin, args []any, in input) ([]any, error) {
	c := &call{name: name, args: args, stdin: in.values, piped: in.ok}
	if b.raw {
		if len(args) > 0 && (args[0] == "-h" || args[0] == "--help") {
			return []any{b.desc.Help()}, nil
		}
		c.vals = binder.Values{Args: map[string]any{}, Raw: args}
		return b.run(ctx, s, c)
	}

	vals, err := binder.Bind(b.desc, args, binder.WithClock(s.engine.now))
	if errors.Is(err, binder.ErrHelp) {
		return []any{b.desc.Help()}, nil
	}
	if err != nil {
		return nil, err
	}
	c.vals = vals
	return b.run(ctx, s, c)
}

// BuiltinNames lists builtin commands, sorted.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func registerMeta() {
	register(`! help
@ Show help for a command, or list every command.
; command | nargs=?`, runHelp)

	register(`! commands
@ List defined commands.`, func(_ context.Context, s *Session, _ *call) ([]any, error) {
		var out []any
		for _, c := range s.engine.registry.GetAll() {
			out = append(out, c.Name())
		}
		return out, nil
	})
}

func runHelp(_ context.Context, s *Session, c *call) ([]any, error) {
	name := c.vals.String("command")
	if name == "" {
		var b strings.Builder
		b.WriteString("builtins:\n  ")
		b.WriteString(strings.Join(BuiltinNames(), " "))
		if cmds := s.engine.registry.GetAll(); len(cmds) > 0 {
			b.WriteString("\n\ncommands:\n")
			for _, cmd := range cmds {
				b.WriteString("  " + cmd.Name())
				if d := cmd.Description(); d != "" {
					b.WriteString(" - " + d)
				}
				b.WriteByte('\n')
			}
		}
		return []any{strings.TrimRight(b.String(), "\n")}, nil
	}

	if d := definedDescriptor(s.engine.registry.Get(name)); d != nil {
		return []any{d.Help()}, nil
	}
	if b, ok := builtins[name]; ok {
		return []any{b.desc.Help()}, nil
	}
	return nil, shellerr.New(shellerr.UnknownCommandError, "help: no such command: %s", name)
}
