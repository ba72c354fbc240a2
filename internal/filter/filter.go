// Package filter implements the %clause%clause path suffix that selects,
// slices and rewrites the children of a node.
package filter

import (
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"

	"github.com/FUFSoB/cli-bot-discord/internal/graph"
	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
)

// Collapse modes.
const (
	collapseNone   = ""
	collapseReturn = "return"
	collapseFirst  = "first"
	collapseRandom = "random"
)

type clause struct {
	key   string
	value string
	apply func([]graph.Entry) ([]graph.Entry, error)
}

// Filter is a parsed clause pipeline.
type Filter struct {
	text     string
	clauses  []clause
	collapse string
}

// Result is what a filter leaves behind: either a sequence of entries or,
// for collapsing filters, one entry.
type Result struct {
	Entries []graph.Entry
	Single  *graph.Entry
}

// Collapsed reports whether the result is a single element.
func (r Result) Collapsed() bool { return r.Single != nil }

// String returns the filter text without the leading %.
func (f *Filter) String() string { return f.text }

// Parse parses a filter segment such as "%name=^a%range=:3%return". The
// leading % is optional.
func Parse(segment string) (*Filter, error) {
	text := strings.TrimPrefix(segment, "%")
	f := &Filter{text: text}
	for _, part := range split(text) {
		switch part {
		case collapseReturn, collapseFirst, collapseRandom:
			if f.collapse == collapseNone {
				f.collapse = part
			}
			continue
		case "":
			continue
		}

		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, shellerr.New(shellerr.CommandError, "filter: unknown clause %q", part)
		}
		c := clause{key: key, value: value}
		var err error
		switch key {
		case "name":
			c.apply, err = byName(value)
		case "range":
			c.apply, err = byRange(value)
		case "relative":
			c.apply = byRelative(value)
		case "type":
			c.apply = byType(value)
		case "inside":
			c.apply = byInside(value)
		default:
			return nil, shellerr.New(shellerr.CommandError, "filter: unknown clause %q", key)
		}
		if err != nil {
			return nil, err
		}
		f.clauses = append(f.clauses, c)
	}
	return f, nil
}

// split cuts on unescaped %, unescaping \% in the parts.
func split(s string) []string {
	var parts []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\\' && i+1 < len(s) && s[i+1] == '%':
			cur.WriteByte('%')
			i++
		case s[i] == '%':
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(s[i])
		}
	}
	return append(parts, cur.String())
}

// Apply runs the clauses over entries in order, then collapses.
func (f *Filter) Apply(entries []graph.Entry) (Result, error) {
	out := append([]graph.Entry(nil), entries...)
	for _, c := range f.clauses {
		var err error
		if out, err = c.apply(out); err != nil {
			return Result{}, err
		}
	}

	switch f.collapse {
	case collapseReturn:
		if len(out) != 1 {
			return Result{}, shellerr.New(shellerr.FilterCardinalityError,
				"filter %%%s: expected exactly one element, got %d", f.text, len(out))
		}
		return Result{Single: &out[0]}, nil
	case collapseFirst:
		if len(out) == 0 {
			return Result{}, shellerr.New(shellerr.FilterCardinalityError, "filter %%%s: no elements", f.text)
		}
		return Result{Single: &out[0]}, nil
	case collapseRandom:
		if len(out) == 0 {
			return Result{}, shellerr.New(shellerr.FilterCardinalityError, "filter %%%s: no elements", f.text)
		}
		return Result{Single: &out[rand.IntN(len(out))]}, nil
	}
	return Result{Entries: out}, nil
}

func byName(pattern string) (func([]graph.Entry) ([]graph.Entry, error), error) {
	re, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		return nil, shellerr.Wrap(shellerr.CommandError, err, "filter: name=%s", pattern)
	}
	return func(in []graph.Entry) ([]graph.Entry, error) {
		var out []graph.Entry
		for _, e := range in {
			if re.MatchString(e.Name) {
				out = append(out, e)
			}
		}
		return out, nil
	}, nil
}

func byRange(spec string) (func([]graph.Entry) ([]graph.Entry, error), error) {
	parts := strings.Split(spec, ":")
	if len(parts) > 3 {
		return nil, shellerr.New(shellerr.CommandError, "filter: range=%s: too many bounds", spec)
	}
	bounds := make([]*int, len(parts))
	for i, p := range parts {
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, shellerr.New(shellerr.CommandError, "filter: range=%s: invalid bound %q", spec, p)
		}
		bounds[i] = &n
	}

	if len(parts) == 1 {
		if bounds[0] == nil {
			return nil, shellerr.New(shellerr.CommandError, "filter: range=: empty index")
		}
		idx := *bounds[0]
		return func(in []graph.Entry) ([]graph.Entry, error) {
			i := idx
			if i < 0 {
				i += len(in)
			}
			if i < 0 || i >= len(in) {
				return nil, nil
			}
			return []graph.Entry{in[i]}, nil
		}, nil
	}

	var start, stop, step *int
	start, stop = bounds[0], bounds[1]
	if len(parts) == 3 {
		step = bounds[2]
	}
	if step != nil && *step == 0 {
		return nil, shellerr.New(shellerr.CommandError, "filter: range=%s: slice step cannot be zero", spec)
	}
	return func(in []graph.Entry) ([]graph.Entry, error) {
		var out []graph.Entry
		for _, i := range Slice(len(in), start, stop, step) {
			out = append(out, in[i])
		}
		return out, nil
	}, nil
}

// Slice returns the indices selected by a slice expression [start:stop:step] over
// a sequence of length n. Nil bounds are open. step must not be zero.
func Slice(n int, start, stop, step *int) []int {
	st := 1
	if step != nil {
		st = *step
	}

	adjust := func(b *int, def int) int {
		if b == nil {
			return def
		}
		v := *b
		if v < 0 {
			v += n
			if v < 0 {
				if st < 0 {
					return -1
				}
				return 0
			}
		} else if v >= n {
			if st < 0 {
				return n - 1
			}
			return n
		}
		return v
	}

	var out []int
	if st > 0 {
		lo, hi := adjust(start, 0), adjust(stop, n)
		for i := lo; i < hi; i += st {
			out = append(out, i)
		}
		return out
	}
	hi, lo := adjust(start, n-1), adjust(stop, -1)
	for i := hi; i > lo; i += st {
		out = append(out, i)
	}
	return out
}

func byRelative(spec string) func([]graph.Entry) ([]graph.Entry, error) {
	switch {
	case strings.HasPrefix(spec, "^"):
		dir := strings.TrimPrefix(spec, "^")
		return func(in []graph.Entry) ([]graph.Entry, error) {
			out := make([]graph.Entry, len(in))
			for i, e := range in {
				out[i] = graph.Entry{Name: dir + "/" + e.Name, Value: e.Value}
			}
			return out, nil
		}
	case strings.Contains(spec, "="):
		prefix, repl, _ := strings.Cut(spec, "=")
		return func(in []graph.Entry) ([]graph.Entry, error) {
			out := make([]graph.Entry, len(in))
			for i, e := range in {
				name := e.Name
				if strings.HasPrefix(name, prefix) {
					name = repl + strings.TrimPrefix(name, prefix)
				}
				out[i] = graph.Entry{Name: name, Value: e.Value}
			}
			return out, nil
		}
	default:
		return func(in []graph.Entry) ([]graph.Entry, error) {
			var out []graph.Entry
			for _, e := range in {
				v, ok := descend(e.Value, spec)
				if !ok {
					continue
				}
				out = append(out, graph.Entry{Name: e.Name + "/" + spec, Value: v})
			}
			return out, nil
		}
	}
}

// descend follows a slash-separated attribute path from v.
func descend(v any, path string) (any, bool) {
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." {
			continue
		}
		n, ok := v.(graph.Node)
		if !ok {
			return nil, false
		}
		if v, ok = n.Attr(seg); !ok {
			return nil, false
		}
	}
	return v, true
}

func byType(kind string) func([]graph.Entry) ([]graph.Entry, error) {
	return func(in []graph.Entry) ([]graph.Entry, error) {
		var out []graph.Entry
		for _, e := range in {
			if strings.Contains(kindOf(e.Value), kind) {
				out = append(out, e)
			}
		}
		return out, nil
	}
}

// kindOf names the type of an entry value, qualified by variant for nodes.
func kindOf(v any) string {
	switch v := v.(type) {
	case graph.Node:
		return graph.TypeName(v)
	case string:
		return "str"
	case int, int64:
		return "int"
	case float64:
		return "float"
	case bool:
		return "bool"
	case nil:
		return "none"
	default:
		return "unknown"
	}
}

func byInside(spec string) func([]graph.Entry) ([]graph.Entry, error) {
	path, want, op := spec, "", ""
	if p, v, ok := strings.Cut(spec, "!="); ok {
		path, want, op = p, v, "!="
	} else if p, v, ok := strings.Cut(spec, "=="); ok {
		path, want, op = p, v, "=="
	}
	return func(in []graph.Entry) ([]graph.Entry, error) {
		var out []graph.Entry
		for _, e := range in {
			v, ok := descend(e.Value, path)
			if !ok {
				continue
			}
			switch op {
			case "==":
				ok = graph.Scalar(v) == want
			case "!=":
				ok = graph.Scalar(v) != want
			}
			if ok {
				out = append(out, e)
			}
		}
		return out, nil
	}
}
