// Package navigator resolves slash-separated paths over the object graph.
package navigator

import (
	"strings"

	"github.com/FUFSoB/cli-bot-discord/internal/filter"
	"github.com/FUFSoB/cli-bot-discord/internal/graph"
	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
)

// StartPath is where a fresh cursor points.
const StartPath = "/current/user"

// Cursor is a position in the graph. It is a value; moving returns a new one.
type Cursor struct {
	Path []string
	Node graph.Node

	// trail[i] is the node at Path[:i].
	trail []graph.Node
}

// String renders the cursor path, escaping slashes inside segment names.
func (c Cursor) String() string { return Join(c.Path) }

// Target is a resolved path. Value is a node or a scalar.
type Target struct {
	Path  []string
	Value any

	trail []graph.Node
}

// String renders the target path.
func (t Target) String() string { return Join(t.Path) }

// Node returns the target as a node, if it is one.
func (t Target) Node() (graph.Node, bool) {
	n, ok := t.Value.(graph.Node)
	return n, ok
}

// Navigator walks paths from a fixed root.
type Navigator struct {
	root graph.Node
}

// New returns a navigator over root.
func New(root graph.Node) *Navigator {
	return &Navigator{root: root}
}

// Root returns a cursor at the root.
func (nv *Navigator) Root() Cursor {
	return Cursor{Node: nv.root, trail: []graph.Node{nv.root}}
}

// Start returns a cursor at the invoking user, or the root when the graph
// has no current user.
func (nv *Navigator) Start() Cursor {
	cur, err := nv.Cd(nv.Root(), StartPath)
	if err != nil {
		return nv.Root()
	}
	return cur
}

// Resolve walks path from cur. A leading slash starts from the root.
func (nv *Navigator) Resolve(cur Cursor, path string) (Target, error) {
	if strings.HasPrefix(path, "/") || (cur.Node == nil && len(cur.Path) == 0) {
		cur = nv.Root()
	}
	segs := append([]string(nil), cur.Path...)
	trail := append([]graph.Node(nil), cur.trail...)
	if len(trail) != len(segs)+1 {
		// A cursor built outside the navigator; walk it again.
		t, err := nv.walk(segs)
		if err != nil {
			return Target{}, err
		}
		trail = t.trail
	}

	var value any = trail[len(trail)-1]
	for _, seg := range withFilters(Split(path)) {
		switch seg {
		case "", ".":
			continue
		case "..":
			if _, isNode := value.(graph.Node); !isNode {
				segs = segs[:len(segs)-1]
			} else if len(segs) > 0 {
				segs = segs[:len(segs)-1]
				trail = trail[:len(trail)-1]
			}
			value = trail[len(trail)-1]
			continue
		}

		n, ok := value.(graph.Node)
		if !ok {
			return Target{}, shellerr.New(shellerr.PathResolutionError,
				"%s: not a container", Join(segs))
		}
		name, next, err := step(n, seg, segs)
		if err != nil {
			return Target{}, err
		}
		segs = append(segs, name)
		value = next
		if child, ok := next.(graph.Node); ok {
			trail = append(trail, child)
		}
	}
	return Target{Path: segs, Value: value, trail: trail}, nil
}

// walk resolves an absolute segment list.
func (nv *Navigator) walk(segs []string) (Target, error) {
	trail := []graph.Node{nv.root}
	var path []string
	for _, seg := range segs {
		name, next, err := step(trail[len(trail)-1], seg, path)
		if err != nil {
			return Target{}, err
		}
		child, ok := next.(graph.Node)
		if !ok {
			return Target{}, shellerr.New(shellerr.PathResolutionError, "%s: not a container", Join(append(path, name)))
		}
		path = append(path, name)
		trail = append(trail, child)
	}
	return Target{Path: path, Value: trail[len(trail)-1], trail: trail}, nil
}

// Cd moves the cursor. The target must be a node.
func (nv *Navigator) Cd(cur Cursor, path string) (Cursor, error) {
	t, err := nv.Resolve(cur, path)
	if err != nil {
		return cur, err
	}
	return At(t)
}

// At turns a resolved target into a cursor.
func At(t Target) (Cursor, error) {
	n, ok := t.Node()
	if !ok {
		return Cursor{}, shellerr.New(shellerr.PathResolutionError, "%s: not a container", t.String())
	}
	return Cursor{Path: t.Path, Node: n, trail: t.trail}, nil
}

func step(n graph.Node, seg string, at []string) (string, any, error) {
	if strings.HasPrefix(seg, "%") {
		return applyFilter(n, seg)
	}

	v, ok := n.Attr(seg)
	if ok {
		return seg, v, nil
	}
	if l, lazy := n.(*graph.LookupNode); lazy && l.Strict() {
		return "", nil, shellerr.New(shellerr.NotFoundError, "%s: %q not found", Join(at), seg)
	}
	if strings.Contains(seg, "/") {
		// Names produced by a relative filter, e.g. "Admin/mention".
		var cur any = n
		for _, part := range strings.Split(seg, "/") {
			node, isNode := cur.(graph.Node)
			if !isNode {
				break
			}
			if cur, ok = node.Attr(part); !ok {
				break
			}
		}
		if ok {
			return seg, cur, nil
		}
	}
	return "", nil, shellerr.New(shellerr.PathResolutionError, "%s: no such entry %q", Join(at), seg)
}

func applyFilter(n graph.Node, seg string) (string, any, error) {
	f, err := filter.Parse(seg)
	if err != nil {
		return "", nil, err
	}
	res, err := f.Apply(Entries(n))
	if err != nil {
		return "", nil, err
	}
	if res.Collapsed() {
		return res.Single.Name, res.Single.Value, nil
	}
	return seg, graph.NewListEntries(seg, res.Entries), nil
}

// Entries pairs every child name of n with its value, in order.
func Entries(n graph.Node) []graph.Entry {
	names := n.Entries()
	out := make([]graph.Entry, 0, len(names))
	for _, name := range names {
		v, ok := n.Attr(name)
		if !ok {
			continue
		}
		out = append(out, graph.Entry{Name: name, Value: v})
	}
	return out
}

// Split cuts a path on unescaped slashes. "\/" stays inside a segment as "/".
func Split(path string) []string {
	var segs []string
	var cur strings.Builder
	for i := 0; i < len(path); i++ {
		switch {
		case path[i] == '\\' && i+1 < len(path) && path[i+1] == '/':
			cur.WriteByte('/')
			i++
		case path[i] == '/':
			segs = append(segs, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(path[i])
		}
	}
	return append(segs, cur.String())
}

// withFilters splits "name%filter" segments into "name" and "%filter".
// "\%" in a name is a literal percent.
func withFilters(segs []string) []string {
	out := make([]string, 0, len(segs))
	for _, seg := range segs {
		if strings.HasPrefix(seg, "%") {
			out = append(out, seg)
			continue
		}
		i := unescapedPercent(seg)
		if i < 0 {
			out = append(out, strings.ReplaceAll(seg, `\%`, "%"))
			continue
		}
		out = append(out, strings.ReplaceAll(seg[:i], `\%`, "%"), seg[i:])
	}
	return out
}

func unescapedPercent(s string) int {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '%':
			return i
		}
	}
	return -1
}

// Join renders segments as an absolute path.
func Join(segs []string) string {
	if len(segs) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, s := range segs {
		b.WriteByte('/')
		b.WriteString(strings.ReplaceAll(s, "/", `\/`))
	}
	return b.String()
}
