package script

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/FUFSoB/cli-bot-discord/internal/graph"
	"github.com/FUFSoB/cli-bot-discord/internal/mapping"
	"github.com/FUFSoB/cli-bot-discord/internal/navigator"
	"github.com/FUFSoB/cli-bot-discord/internal/sink"
)

// Str renders a script value as text.
func Str(v any) string {
	switch v := v.(type) {
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = Str(e)
		}
		return strings.Join(parts, " ")
	case sink.Payload:
		return v.String()
	case sink.Handle:
		return v.MessageID
	case navigator.Cursor:
		return v.String()
	case *mapping.Table:
		return v.String()
	case mapping.Pointer:
		return v.Key
	case time.Duration:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return graph.Scalar(v)
	}
}

// single collapses a command's output into one value: nothing is the empty
// string, one element is itself and more are a list.
func single(out []any) any {
	switch len(out) {
	case 0:
		return ""
	case 1:
		return out[0]
	default:
		return out
	}
}

// elements expands a value the way an unquoted expansion does.
func elements(v any) []any {
	switch v := v.(type) {
	case nil:
		return nil
	case []any:
		return v
	case *graph.ListNode:
		return v.Values()
	case string:
		fields := strings.Fields(v)
		out := make([]any, len(fields))
		for i, f := range fields {
			out[i] = f
		}
		return out
	default:
		return []any{v}
	}
}

// flatten expands lists inside values, one level.
func flatten(values []any) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		switch v := v.(type) {
		case []any:
			out = append(out, v...)
		case *graph.ListNode:
			out = append(out, v.Values()...)
		default:
			out = append(out, v)
		}
	}
	return out
}

func strs(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = Str(v)
	}
	return out
}

func length(v any) int {
	switch v := v.(type) {
	case nil:
		return 0
	case []any:
		return len(v)
	case *graph.ListNode:
		return v.Len()
	default:
		return utf8.RuneCountInString(Str(v))
	}
}

func isEmpty(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	}
	return false
}

// toInt reads an integer from a typed value or its text.
func toInt(v any) (int64, bool) {
	switch v := v.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
		return 0, false
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	s := strings.TrimSpace(Str(v))
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func asList(v any) []any {
	switch v := v.(type) {
	case nil:
		return nil
	case []any:
		return v
	case *graph.ListNode:
		return v.Values()
	default:
		return []any{v}
	}
}
