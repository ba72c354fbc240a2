// Package mapping implements the key=value tables scripts build with
// `mapping` and read back through `pointer` and `get`.
package mapping

import (
	"strings"

	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
)

// Wildcard is the fallback key.
const Wildcard = "*"

// Pair is one table row.
type Pair struct {
	Key   string
	Value string
}

// Table is an ordered key/value table.
type Table struct {
	pairs    []Pair
	index    map[string]int
	foldCase bool
}

// Option configures a table.
type Option func(*Table)

// FoldCase matches keys case-insensitively.
func FoldCase() Option {
	return func(t *Table) { t.foldCase = true }
}

// New parses "key=value" pairs. A pair without "=" and a repeated key are
// errors.
func New(pairs []string, opts ...Option) (*Table, error) {
	t := &Table{index: make(map[string]int, len(pairs))}
	for _, o := range opts {
		o(t)
	}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, shellerr.New(shellerr.CommandError, "mapping: %q is not a key=value pair", p)
		}
		nk := t.norm(k)
		if _, dup := t.index[nk]; dup {
			return nil, shellerr.New(shellerr.CommandError, "mapping: duplicate key %q", k)
		}
		t.index[nk] = len(t.pairs)
		t.pairs = append(t.pairs, Pair{Key: k, Value: v})
	}
	return t, nil
}

func (t *Table) norm(k string) string {
	if t.foldCase {
		return strings.ToLower(k)
	}
	return k
}

// Pairs returns the rows in declaration order.
func (t *Table) Pairs() []Pair { return t.pairs }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.pairs) }

// Resolve returns the value for key. With fallback, an undeclared key
// resolves to the wildcard value when the table has one.
func (t *Table) Resolve(key string, fallback bool) (string, error) {
	if i, ok := t.index[t.norm(key)]; ok {
		return t.pairs[i].Value, nil
	}
	if fallback {
		if i, ok := t.index[Wildcard]; ok {
			return t.pairs[i].Value, nil
		}
	}
	return "", shellerr.New(shellerr.UnmappedKeyError, "get: key %q is not mapped", key)
}

// Reverse returns the first key whose value is value.
func (t *Table) Reverse(value string, fallback bool) (string, error) {
	for _, p := range t.pairs {
		if p.Value == value || (t.foldCase && strings.EqualFold(p.Value, value)) {
			return p.Key, nil
		}
	}
	if fallback {
		if i, ok := t.index[Wildcard]; ok {
			return t.pairs[i].Value, nil
		}
	}
	return "", shellerr.New(shellerr.UnmappedKeyError, "get: value %q is not mapped", value)
}

// String renders the table as space-separated pairs.
func (t *Table) String() string {
	parts := make([]string, len(t.pairs))
	for i, p := range t.pairs {
		parts[i] = p.Key + "=" + p.Value
	}
	return strings.Join(parts, " ")
}

// Pointer selects a key from a table. Reverse selects by value instead.
type Pointer struct {
	Key     string
	Reverse bool
}

func (p Pointer) String() string { return p.Key }

// Get resolves the pointer against the table.
func Get(t *Table, p Pointer, fallback bool) (string, error) {
	if p.Reverse {
		return t.Reverse(p.Key, fallback)
	}
	return t.Resolve(p.Key, fallback)
}

// Select finds the table and pointer among piped values, as `get` reads them.
func Select(values []any) (*Table, Pointer, error) {
	var (
		table  *Table
		ptr    Pointer
		hasPtr bool
	)
	for _, v := range values {
		switch v := v.(type) {
		case *Table:
			table = v
		case Pointer:
			ptr, hasPtr = v, true
		}
	}
	switch {
	case table == nil:
		return nil, Pointer{}, shellerr.New(shellerr.CommandError, "get: no mapping in input")
	case !hasPtr:
		return nil, Pointer{}, shellerr.New(shellerr.CommandError, "get: no pointer in input")
	}
	return table, ptr, nil
}
