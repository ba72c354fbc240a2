package graph

import (
	"strconv"
	"strings"
)

// Entry is a named child value.
type Entry struct {
	Name  string
	Value any
}

// ObjectNode is a fixed container such as the root or /current.
type ObjectNode struct {
	name   string
	fields []Entry
}

// NewObject returns a container with the given ordered fields.
func NewObject(name string, fields ...Entry) *ObjectNode {
	return &ObjectNode{name: name, fields: fields}
}

func (n *ObjectNode) node()          {}
func (n *ObjectNode) Kind() Kind     { return KindObject }
func (n *ObjectNode) Name() string   { return n.name }
func (n *ObjectNode) String() string { return n.name }

func (n *ObjectNode) Entries() []string {
	out := make([]string, 0, len(n.fields)+2)
	for _, f := range n.fields {
		out = append(out, f.Name)
	}
	return append(out, metaNames(n)...)
}

func (n *ObjectNode) Attr(name string) (any, bool) {
	if strings.HasPrefix(name, ".") {
		return meta(n, name)
	}
	for _, f := range n.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// LookupNode resolves children on demand. Strict lookups report a miss as
// not found rather than a missing path.
type LookupNode struct {
	name   string
	strict bool
	fn     func(string) (any, bool)
}

// NewLookup returns a lookup container.
func NewLookup(name string, strict bool, fn func(string) (any, bool)) *LookupNode {
	return &LookupNode{name: name, strict: strict, fn: fn}
}

func (n *LookupNode) node()             {}
func (n *LookupNode) Kind() Kind        { return KindObject }
func (n *LookupNode) Name() string      { return n.name }
func (n *LookupNode) String() string    { return n.name }
func (n *LookupNode) Entries() []string { return metaNames(n) }
func (n *LookupNode) Strict() bool      { return n.strict }

func (n *LookupNode) Attr(name string) (any, bool) {
	if strings.HasPrefix(name, ".") {
		return meta(n, name)
	}
	return n.fn(name)
}

// ListNode is an ordered sequence of uniquely named entries.
type ListNode struct {
	label string
	items []Entry
}

// NewList names each value by its node name, or its text for scalars.
func NewList(label string, values []any) *ListNode {
	items := make([]Entry, len(values))
	for i, v := range values {
		items[i] = Entry{Name: EntryName(v), Value: v}
	}
	return NewListEntries(label, items)
}

// NewListEntries returns a list over entries. Duplicate names get " (1)",
// " (2)" suffixes in order of appearance.
func NewListEntries(label string, items []Entry) *ListNode {
	seen := make(map[string]int, len(items))
	out := make([]Entry, len(items))
	for i, it := range items {
		name := it.Name
		if name == "" {
			name = strconv.Itoa(i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = name + " (" + strconv.Itoa(n+1) + ")"
		} else {
			seen[name] = 0
		}
		out[i] = Entry{Name: name, Value: it.Value}
	}
	return &ListNode{label: label, items: out}
}

func (n *ListNode) node()        {}
func (n *ListNode) Kind() Kind   { return KindList }
func (n *ListNode) Name() string { return n.label }

func (n *ListNode) String() string {
	names := make([]string, len(n.items))
	for i, it := range n.items {
		names[i] = it.Name
	}
	return strings.Join(names, ", ")
}

func (n *ListNode) Entries() []string {
	out := make([]string, 0, len(n.items)+3)
	for _, it := range n.items {
		out = append(out, it.Name)
	}
	return append(out, MetaType, MetaStr, MetaCount)
}

func (n *ListNode) Attr(name string) (any, bool) {
	if name == MetaCount {
		return len(n.items), true
	}
	if strings.HasPrefix(name, ".") {
		return meta(n, name)
	}
	for _, it := range n.items {
		if it.Name == name {
			return it.Value, true
		}
	}
	return nil, false
}

// Items returns the entries in order.
func (n *ListNode) Items() []Entry { return n.items }

// Len returns the number of entries.
func (n *ListNode) Len() int { return len(n.items) }

// Values returns the entry values in order.
func (n *ListNode) Values() []any {
	out := make([]any, len(n.items))
	for i, it := range n.items {
		out[i] = it.Value
	}
	return out
}

// NullNode stands for an absent entity, e.g. the guild of a DM.
type NullNode struct{}

// Null is the shared null node.
var Null = &NullNode{}

func (n *NullNode) node()                        {}
func (n *NullNode) Kind() Kind                   { return KindNull }
func (n *NullNode) Name() string                 { return "null" }
func (n *NullNode) String() string               { return "null" }
func (n *NullNode) Entries() []string            { return metaNames(n) }
func (n *NullNode) Attr(name string) (any, bool) { return meta(n, name) }

// UnknownNode wraps an entity type the graph has no view for.
type UnknownNode struct{ Label string }

func (n *UnknownNode) node()                        {}
func (n *UnknownNode) Kind() Kind                   { return KindUnknown }
func (n *UnknownNode) Name() string                 { return n.Label }
func (n *UnknownNode) String() string               { return n.Label }
func (n *UnknownNode) Entries() []string            { return metaNames(n) }
func (n *UnknownNode) Attr(name string) (any, bool) { return meta(n, name) }

// EntryName is the name a value gets inside a list.
func EntryName(v any) string {
	if n, ok := v.(Node); ok {
		return n.Name()
	}
	return Scalar(v)
}
