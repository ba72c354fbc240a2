package graph

import (
	"strings"
	"time"
)

// Describe renders a value for display: scalars as text, lists one entry per
// line and other nodes as "name: value" lines over their direct attributes.
func Describe(v any) string {
	n, ok := v.(Node)
	if !ok {
		return Scalar(v)
	}
	switch n.Kind() {
	case KindList:
		l := n.(*ListNode)
		lines := make([]string, 0, l.Len())
		for _, it := range l.Items() {
			lines = append(lines, it.Name)
		}
		return strings.Join(lines, "\n")
	case KindNull, KindID, KindColor, KindUnicodeEmoji:
		return n.String()
	case KindObject, KindUser, KindMember, KindGuild, KindChannel, KindRole,
		KindEmoji, KindMessage, KindActivity, KindPermissions:
		var b strings.Builder
		for _, name := range n.Entries() {
			if strings.HasPrefix(name, ".") {
				continue
			}
			val, _ := n.Attr(name)
			b.WriteString(name)
			b.WriteString(": ")
			b.WriteString(summary(val))
			b.WriteByte('\n')
		}
		return strings.TrimSuffix(b.String(), "\n")
	default:
		return "unknown"
	}
}

func summary(v any) string {
	switch v := v.(type) {
	case *ListNode:
		return "[" + v.String() + "]"
	case *LookupNode:
		return "<" + v.Name() + ">"
	case Node:
		return v.String()
	default:
		return Scalar(v)
	}
}

// ToJSON converts a value into plain maps, slices and scalars, expanding
// nested nodes up to depth levels. Deeper nodes become their display string.
func ToJSON(v any, depth int) any {
	switch v := v.(type) {
	case nil:
		return nil
	case time.Time:
		if v.IsZero() {
			return nil
		}
		return v.UTC().Format(time.RFC3339)
	case string, bool, int, int64, float64:
		return v
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = ToJSON(e, depth)
		}
		return out
	case Node:
		return nodeJSON(v, depth)
	default:
		return Scalar(v)
	}
}

func nodeJSON(n Node, depth int) any {
	switch n.Kind() {
	case KindNull:
		return nil
	case KindID, KindUnicodeEmoji:
		return n.String()
	case KindColor:
		return n.(*ColorNode).Hex()
	case KindList:
		l := n.(*ListNode)
		if depth <= 0 {
			return l.String()
		}
		out := make([]any, 0, l.Len())
		for _, v := range l.Values() {
			out = append(out, ToJSON(v, depth-1))
		}
		return out
	case KindObject, KindUser, KindMember, KindGuild, KindChannel, KindRole,
		KindEmoji, KindMessage, KindActivity, KindPermissions:
		if _, lazy := n.(*LookupNode); lazy || depth <= 0 {
			return n.String()
		}
		out := map[string]any{"type": TypeName(n)}
		for _, name := range n.Entries() {
			if strings.HasPrefix(name, ".") {
				continue
			}
			val, _ := n.Attr(name)
			if _, lazy := val.(*LookupNode); lazy {
				continue
			}
			out[name] = ToJSON(val, depth-1)
		}
		return out
	default:
		return "unknown"
	}
}
