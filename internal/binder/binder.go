// Package binder matches invocation tokens against a command descriptor.
package binder

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/FUFSoB/cli-bot-discord/internal/definition"
	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
)

// ErrHelp is returned when -h or --help is present.
var ErrHelp = errors.New("help requested")

// Values holds bound arguments keyed by destination name.
type Values struct {
	Args map[string]any
	Raw  []any
}

// Get returns a bound value.
func (v Values) Get(dest string) any { return v.Args[dest] }

// String returns a bound value as a string, or "" when unset.
func (v Values) String(dest string) string {
	switch x := v.Args[dest].(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// Bool returns a bound boolean, false when unset.
func (v Values) Bool(dest string) bool {
	b, _ := v.Args[dest].(bool)
	return b
}

// Int returns a bound int64 and whether it was set.
func (v Values) Int(dest string) (int64, bool) {
	n, ok := v.Args[dest].(int64)
	return n, ok
}

// List returns a bound sequence.
func (v Values) List(dest string) []any {
	l, _ := v.Args[dest].([]any)
	return l
}

// Option configures Bind.
type Option func(*binder)

// WithClock sets the time source used by the time type.
func WithClock(now func() time.Time) Option {
	return func(b *binder) { b.now = now }
}

type binder struct {
	desc *definition.Descriptor
	now  func() time.Time
}

type flagHit struct {
	spec   *definition.ArgSpec
	tokens []any
	bare   bool
}

// Bind binds tokens against desc. String tokens may be flags; any other value
// is positional.
func Bind(desc *definition.Descriptor, tokens []any, opts ...Option) (Values, error) {
	b := &binder{desc: desc, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b.bind(tokens)
}

func (b *binder) bind(tokens []any) (Values, error) {
	vals := Values{Args: make(map[string]any), Raw: tokens}

	positional, hits, err := b.split(tokens)
	if err != nil {
		return vals, err
	}

	if err := b.assignPositionals(vals.Args, positional); err != nil {
		return vals, err
	}
	for _, hit := range hits {
		if err := b.assignFlag(vals.Args, hit); err != nil {
			return vals, err
		}
	}
	if err := b.applyDefaults(vals.Args); err != nil {
		return vals, err
	}
	return vals, nil
}

// split separates flag occurrences from positional tokens.
func (b *binder) split(tokens []any) ([]any, []flagHit, error) {
	var positional []any
	var hits []flagHit
	flagsDone := false

	for i := 0; i < len(tokens); i++ {
		s, isString := tokens[i].(string)
		if !isString || flagsDone || !strings.HasPrefix(s, "-") || s == "-" {
			positional = append(positional, tokens[i])
			continue
		}
		if s == "--" {
			flagsDone = true
			continue
		}
		if s == "-h" || s == "--help" {
			return nil, nil, ErrHelp
		}

		name, inline, hasInline := s, "", false
		if strings.HasPrefix(s, "--") {
			name, inline, hasInline = strings.Cut(s, "=")
		}

		spec, ok := b.desc.Flag(name)
		if !ok {
			if !flagShape.MatchString(s) {
				positional = append(positional, s)
				continue
			}
			return nil, nil, shellerr.New(shellerr.UnrecognizedArgumentError, "unrecognized argument: %s", s)
		}

		hit := flagHit{spec: spec}
		switch {
		case spec.Action == definition.ActionStoreTrue:
			if hasInline {
				return nil, nil, shellerr.New(shellerr.UnrecognizedArgumentError, "%s takes no value", name)
			}
		case hasInline:
			hit.tokens = []any{inline}
		case spec.Arity == definition.ExactlyOne:
			if i+1 >= len(tokens) {
				return nil, nil, shellerr.New(shellerr.MissingArgumentError, "argument %s: expected one value", name)
			}
			i++
			hit.tokens = []any{tokens[i]}
		case spec.Arity == definition.OptionalOne:
			if i+1 < len(tokens) && !b.isFlag(tokens[i+1]) {
				i++
				hit.tokens = []any{tokens[i]}
			} else {
				hit.bare = true
			}
		default:
			for i+1 < len(tokens) && !b.isFlag(tokens[i+1]) {
				i++
				hit.tokens = append(hit.tokens, tokens[i])
			}
			if spec.Arity == definition.OneOrMore && len(hit.tokens) == 0 {
				return nil, nil, shellerr.New(shellerr.MissingArgumentError, "argument %s: expected at least one value", name)
			}
		}
		hits = append(hits, hit)
	}
	return positional, hits, nil
}

func (b *binder) isFlag(tok any) bool {
	s, ok := tok.(string)
	if !ok {
		return false
	}
	if s == "--" || s == "-h" || s == "--help" {
		return true
	}
	name, _, _ := strings.Cut(s, "=")
	_, found := b.desc.Flag(name)
	return found
}

func (b *binder) assignPositionals(out map[string]any, tokens []any) error {
	specs := b.desc.Positionals()

	// minimum tokens still needed by specs after index i
	need := make([]int, len(specs)+1)
	for i := len(specs) - 1; i >= 0; i-- {
		need[i] = need[i+1]
		if specs[i].Required() {
			need[i]++
		}
	}

	pos := 0
	for i, spec := range specs {
		avail := len(tokens) - pos - need[i+1]
		var take int
		switch spec.Arity {
		case definition.ExactlyOne:
			take = 1
		case definition.OptionalOne:
			take = min(1, max(avail, 0))
		default:
			take = max(avail, 0)
		}

		if spec.Required() && (avail < 1 || pos+take > len(tokens)) {
			return shellerr.New(shellerr.MissingArgumentError, "the following arguments are required: %s", b.missing(specs[i:]))
		}
		if take == 0 {
			continue
		}

		chunk := tokens[pos : pos+take]
		pos += take

		if spec.Multiple() {
			list := make([]any, 0, len(chunk))
			for _, tok := range chunk {
				v, err := b.coerce(spec, tok)
				if err != nil {
					return err
				}
				list = append(list, v)
			}
			out[spec.Dest] = list
			continue
		}

		v, err := b.coerce(spec, chunk[0])
		if err != nil {
			return err
		}
		out[spec.Dest] = v
	}

	if pos < len(tokens) {
		extra := make([]string, 0, len(tokens)-pos)
		for _, tok := range tokens[pos:] {
			extra = append(extra, fmt.Sprint(tok))
		}
		return shellerr.New(shellerr.UnrecognizedArgumentError, "unrecognized arguments: %s", strings.Join(extra, " "))
	}
	return nil
}

func (b *binder) missing(specs []*definition.ArgSpec) string {
	var names []string
	for _, s := range specs {
		if s.Required() {
			names = append(names, s.Name)
		}
	}
	return strings.Join(names, ", ")
}

func (b *binder) assignFlag(out map[string]any, hit flagHit) error {
	spec := hit.spec
	switch {
	case spec.Action == definition.ActionStoreTrue:
		out[spec.Dest] = true
		return nil
	case hit.bare:
		v, err := b.defaultValue(spec)
		if err != nil {
			return err
		}
		if v == nil {
			v = true
		}
		out[spec.Dest] = v
		return nil
	case spec.Multiple():
		list, _ := out[spec.Dest].([]any)
		for _, tok := range hit.tokens {
			v, err := b.coerce(spec, tok)
			if err != nil {
				return err
			}
			list = append(list, v)
		}
		out[spec.Dest] = list
		return nil
	default:
		v, err := b.coerce(spec, hit.tokens[0])
		if err != nil {
			return err
		}
		out[spec.Dest] = v
		return nil
	}
}

func (b *binder) applyDefaults(out map[string]any) error {
	for i := range b.desc.Args {
		spec := &b.desc.Args[i]
		if _, ok := out[spec.Dest]; ok {
			continue
		}
		v, err := b.defaultValue(spec)
		if err != nil {
			return err
		}
		out[spec.Dest] = v
	}
	return nil
}

func (b *binder) defaultValue(spec *definition.ArgSpec) (any, error) {
	switch {
	case spec.Action == definition.ActionStoreTrue:
		return false, nil
	case spec.Default != nil:
		v, err := definition.Coerce(spec.Type, *spec.Default, b.now())
		if err != nil {
			return nil, attribute(err, spec)
		}
		if spec.Multiple() {
			return []any{v}, nil
		}
		return v, nil
	case spec.Multiple():
		return []any{}, nil
	default:
		return nil, nil
	}
}

func (b *binder) coerce(spec *definition.ArgSpec, tok any) (any, error) {
	s, isString := tok.(string)
	if !isString {
		if spec.Type == definition.TypeStr || spec.Type == "" {
			if err := checkChoice(spec, fmt.Sprint(tok)); err != nil {
				return nil, err
			}
			return tok, nil
		}
		s = fmt.Sprint(tok)
	}

	v, err := definition.Coerce(spec.Type, s, b.now())
	if err != nil {
		return nil, attribute(err, spec)
	}
	if err := checkChoice(spec, s); err != nil {
		return nil, err
	}
	return v, nil
}

func checkChoice(spec *definition.ArgSpec, s string) error {
	if len(spec.Choices) == 0 {
		return nil
	}
	for _, c := range spec.Choices {
		if c == s {
			return nil
		}
	}
	return shellerr.New(shellerr.InvalidChoiceError, "argument %s: invalid choice: %q (choose from %s)",
		spec.Name, s, strings.Join(spec.Choices, ", "))
}

func attribute(err error, spec *definition.ArgSpec) error {
	var se *shellerr.Error
	if errors.As(err, &se) {
		c := *se
		c.Msg = "argument " + spec.Name + ": " + se.Msg
		return &c
	}
	return err
}

// flagShape matches tokens that look like an option: a dash and a letter,
// no whitespace. Negative numbers and dashed text are positionals.
var flagShape = regexp.MustCompile(`^(?:-[A-Za-z][A-Za-z0-9]*|--[A-Za-z][A-Za-z0-9_-]*(?:=.*)?)$`)
