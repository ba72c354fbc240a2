package definition

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
	"github.com/FUFSoB/cli-bot-discord/internal/source"
)

// Separator divides the header from the body.
const Separator = "|||"

var (
	commandName = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]*$`)
	// builtins may also be named like shell punctuation commands
	builtinName = regexp.MustCompile(`^(?:\[|:|[A-Za-z0-9_][A-Za-z0-9_-]*)$`)
	identName   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	shortFlag   = regexp.MustCompile(`^-[A-Za-z0-9]$`)
	longFlag    = regexp.MustCompile(`^--[A-Za-z0-9][A-Za-z0-9_-]*$`)
)

// Parse parses a complete definition: header, separator, body.
// origin names the definition in error messages.
func Parse(text, origin string) (*Descriptor, error) {
	d, body, ok, err := parseHeader(text, origin, commandName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shellerr.New(shellerr.DefinitionSyntaxError, "%s: missing body separator %q", origin, Separator)
	}

	d.Source = body
	file, err := source.Parse(body, d.Name)
	if err != nil {
		return nil, err
	}
	d.Body = file
	return d, nil
}

// ParseHeader parses a header without a body.
func ParseHeader(text, origin string) (*Descriptor, error) {
	d, _, _, err := parseHeader(text, origin, commandName)
	return d, err
}

// MustParseHeader parses a builtin header and panics on error. Builtin
// names may also be "[" or ":".
func MustParseHeader(text string) *Descriptor {
	d, _, _, err := parseHeader(text, "builtin", builtinName)
	if err != nil {
		panic(err)
	}
	return d
}

type lineError struct {
	origin string
	no     int
	text   string
}

func (l lineError) errorf(format string, args ...any) error {
	e := shellerr.New(shellerr.DefinitionSyntaxError, format, args...)
	e.Msg = l.origin + ":" + strconv.Itoa(l.no) + ": " + e.Msg + ": " + strings.TrimSpace(l.text)
	return e
}

func parseHeader(text, origin string, names *regexp.Regexp) (*Descriptor, string, bool, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	d := &Descriptor{}

	// continuation target for sigil-less lines
	var cont *string
	var contSep string

	dests := map[string]bool{}
	seenOptional, seenVariadic := false, false
	first := true

	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		le := lineError{origin: origin, no: i + 1, text: raw}

		if line == "" {
			continue
		}
		if first && strings.HasPrefix(line, "#!") {
			first = false
			fields := strings.Fields(strings.TrimPrefix(line, "#!"))
			if len(fields) == 0 || path.Base(fields[0]) != "argparse" {
				return nil, "", false, le.errorf("unsupported interpreter")
			}
			continue
		}
		first = false

		if line == Separator {
			if err := finish(d, origin); err != nil {
				return nil, "", false, err
			}
			return d, strings.Join(lines[i+1:], "\n"), true, nil
		}

		sigil, rest := line[0], strings.TrimSpace(line[1:])
		switch sigil {
		case '#':
			continue
		case '!':
			if d.Name != "" {
				return nil, "", false, le.errorf("duplicate name line")
			}
			if !names.MatchString(rest) {
				return nil, "", false, le.errorf("invalid command name %q", rest)
			}
			d.Name = rest
			cont = nil
		case '@':
			d.Summary = rest
			cont, contSep = &d.Summary, " "
		case '%':
			d.Usage = rest
			cont, contSep = &d.Usage, "\n"
		case '$':
			d.Epilog = rest
			cont, contSep = &d.Epilog, "\n"
		case ';':
			spec, err := parseArg(rest, le)
			if err != nil {
				return nil, "", false, err
			}
			if dests[spec.Dest] {
				return nil, "", false, le.errorf("duplicate destination %q", spec.Dest)
			}
			dests[spec.Dest] = true
			// one variadic positional may sit anywhere; it takes what later
			// positionals leave over
			if spec.Positional() {
				switch {
				case spec.Multiple():
					if seenVariadic {
						return nil, "", false, le.errorf("argument %q: only one variadic positional is allowed", spec.Name)
					}
					seenVariadic = true
				case spec.Required() && seenOptional:
					return nil, "", false, le.errorf("required argument %q follows an optional one", spec.Name)
				case !spec.Required():
					seenOptional = true
				}
			}
			d.Args = append(d.Args, spec)
			cont = nil
		default:
			if cont == nil {
				return nil, "", false, le.errorf("unexpected line")
			}
			*cont += contSep + line
		}
	}

	if err := finish(d, origin); err != nil {
		return nil, "", false, err
	}
	return d, "", false, nil
}

func finish(d *Descriptor, origin string) error {
	if d.Name == "" {
		return shellerr.New(shellerr.DefinitionSyntaxError, "%s: missing name line", origin)
	}
	return nil
}

func parseArg(rest string, le lineError) (ArgSpec, error) {
	tokens, err := tokenize(rest)
	if err != nil {
		return ArgSpec{}, le.errorf("%v", err)
	}

	var names []string
	var mods []string
	for _, tok := range tokens {
		switch {
		case tok == "|":
		case strings.Contains(tok, "="):
			mods = append(mods, tok)
		case len(mods) == 0:
			names = append(names, tok)
		default:
			return ArgSpec{}, le.errorf("unexpected token %q", tok)
		}
	}

	spec := ArgSpec{Type: TypeStr}
	if err := assignNames(&spec, names); err != nil {
		return ArgSpec{}, le.errorf("%v", err)
	}

	arityGiven := false
	for _, m := range mods {
		key, value, _ := strings.Cut(m, "=")
		switch key {
		case "type":
			switch Type(value) {
			case TypeStr, TypeInt, TypeFloat, TypeID, TypeTryID, TypeTime:
				spec.Type = Type(value)
			default:
				return ArgSpec{}, le.errorf("unknown type %q", value)
			}
		case "nargs":
			arityGiven = true
			switch value {
			case "1":
				spec.Arity = ExactlyOne
			case "?":
				spec.Arity = OptionalOne
			case "*":
				spec.Arity = ZeroOrMore
			case "+":
				spec.Arity = OneOrMore
			default:
				return ArgSpec{}, le.errorf("unknown nargs %q", value)
			}
		case "default":
			v := value
			spec.Default = &v
		case "choices":
			for _, c := range strings.Split(value, ",") {
				if c = strings.TrimSpace(c); c != "" {
					spec.Choices = append(spec.Choices, c)
				}
			}
			if len(spec.Choices) == 0 {
				return ArgSpec{}, le.errorf("empty choices")
			}
		case "action":
			switch value {
			case "store":
				spec.Action = ActionStore
			case "store_true":
				spec.Action = ActionStoreTrue
			default:
				return ArgSpec{}, le.errorf("unknown action %q", value)
			}
		case "dest":
			if !identName.MatchString(value) {
				return ArgSpec{}, le.errorf("invalid dest %q", value)
			}
			spec.Dest = value
		case "help":
			spec.Help = value
		default:
			return ArgSpec{}, le.errorf("unknown modifier %q", key)
		}
	}

	if spec.Action == ActionStoreTrue {
		if spec.Positional() {
			return ArgSpec{}, le.errorf("store_true requires a flag")
		}
		if arityGiven || len(spec.Choices) > 0 {
			return ArgSpec{}, le.errorf("store_true takes no nargs or choices")
		}
	}
	return spec, nil
}

func assignNames(spec *ArgSpec, names []string) error {
	switch len(names) {
	case 1:
		n := names[0]
		switch {
		case identName.MatchString(n):
			spec.Name = n
		case shortFlag.MatchString(n), longFlag.MatchString(n):
			spec.Name = n
		default:
			return fmt.Errorf("invalid argument name %q", n)
		}
	case 2:
		a, b := names[0], names[1]
		if longFlag.MatchString(a) && shortFlag.MatchString(b) {
			a, b = b, a
		}
		if !shortFlag.MatchString(a) || !longFlag.MatchString(b) {
			return fmt.Errorf("expected a short and a long flag, got %q %q", a, b)
		}
		spec.Name, spec.Alias = b, a
	default:
		return errors.New("expected one name or two flag names")
	}

	if spec.Name == "-h" || spec.Name == "--help" || spec.Alias == "-h" {
		return errors.New("-h/--help is reserved")
	}
	spec.Dest = strings.ReplaceAll(strings.TrimLeft(spec.Name, "-"), "-", "_")
	return nil
}

// tokenize splits an argument line on whitespace. Single and double quotes
// group, backslash escapes the next byte outside single quotes.
func tokenize(s string) ([]string, error) {
	var out []string
	var cur strings.Builder
	var quote byte
	inToken := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else if c == '\\' && quote == '"' && i+1 < len(s) {
				i++
				cur.WriteByte(s[i])
			} else {
				cur.WriteByte(c)
			}
		case c == '\'' || c == '"':
			quote = c
			inToken = true
		case c == '\\' && i+1 < len(s):
			i++
			cur.WriteByte(s[i])
			inToken = true
		case c == ' ' || c == '\t':
			if inToken {
				out = append(out, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteByte(c)
			inToken = true
		}
	}
	if quote != 0 {
		return nil, errors.New("unterminated quote")
	}
	if inToken {
		out = append(out, cur.String())
	}
	return out, nil
}
