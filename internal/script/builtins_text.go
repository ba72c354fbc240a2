package script

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/itchyny/gojq"

	"github.com/FUFSoB/cli-bot-discord/internal/definition"
	"github.com/FUFSoB/cli-bot-discord/internal/graph"
	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
	"github.com/FUFSoB/cli-bot-discord/pkg/util"
)

const defaultJSONDepth = 2

func registerText() {
	registerRaw(`! echo
@ Output the arguments.
$ A single argument is passed through with its type.
  Only leading -n flags are options; any other text is output as is.
; -n --no-space | action=store_true | help="join without spaces"
; args | nargs=*`, runEcho)

	registerRaw(`! true
@ Succeed.`, func(context.Context, *Session, *call) ([]any, error) { return nil, nil })

	registerRaw(`! :
@ Do nothing and succeed.`, func(context.Context, *Session, *call) ([]any, error) { return nil, nil })

	registerRaw(`! false
@ Fail with a false status.`, func(context.Context, *Session, *call) ([]any, error) { return nil, errFalse })

	testHelp := `
@ Evaluate a condition.
$ Operators: == = != -eq -ne -lt -le -gt -ge in -z -n ! -a -o ( ).
  "x in a,b c" checks membership.`
	registerRaw("! test"+testHelp, func(_ context.Context, _ *Session, c *call) ([]any, error) {
		return nil, testStatus(c.args)
	})
	registerRaw("! ["+testHelp, func(_ context.Context, _ *Session, c *call) ([]any, error) {
		n := len(c.args)
		if n == 0 || Str(c.args[n-1]) != "]" {
			return nil, shellerr.New(shellerr.CommandError, "missing ]")
		}
		return nil, testStatus(c.args[:n-1])
	})

	register(`! count
@ Count the arguments, or the stdin values.
; items | nargs=*`, func(_ context.Context, _ *Session, c *call) ([]any, error) {
		return []any{int64(len(c.input("items")))}, nil
	})

	register(`! join
@ Join values into one string.
; -s --sep | default=" " | help="separator"
; items | nargs=*`, func(_ context.Context, _ *Session, c *call) ([]any, error) {
		return []any{strings.Join(strs(c.input("items")), c.vals.String("sep"))}, nil
	})

	register(`! split
@ Split text into values.
; -s --sep | help="separator, whitespace when empty"
; text | nargs=?`, runSplit)

	register(`! upper
@ Upper-case text.
; text | nargs=*`, mapText(strings.ToUpper))

	register(`! lower
@ Lower-case text.
; text | nargs=*`, mapText(strings.ToLower))

	register(`! head
@ Output the first values.
; -n --lines | type=int | default=10
; items | nargs=*`, func(_ context.Context, _ *Session, c *call) ([]any, error) {
		items := lines(c.input("items"))
		n, _ := c.vals.Int("lines")
		return items[:clamp(n, len(items))], nil
	})

	register(`! tail
@ Output the last values.
; -n --lines | type=int | default=10
; items | nargs=*`, func(_ context.Context, _ *Session, c *call) ([]any, error) {
		items := lines(c.input("items"))
		n, _ := c.vals.Int("lines")
		return items[len(items)-clamp(n, len(items)):], nil
	})

	register(`! choice
@ Output one value at random.
; items | nargs=*`, func(_ context.Context, _ *Session, c *call) ([]any, error) {
		items := c.input("items")
		if len(items) == 0 {
			return nil, shellerr.New(shellerr.CommandError, "nothing to choose from")
		}
		return []any{items[rand.IntN(len(items))]}, nil
	})

	register(`! range
@ Output a sequence of integers.
% %(prog)s [start] stop [step]
; bounds | type=int | nargs=+`, runRange)

	register(`! seconds
@ Output a duration as whole seconds.
; duration`, func(_ context.Context, _ *Session, c *call) ([]any, error) {
		d, err := toDuration(c.vals.Get("duration"))
		if err != nil {
			return nil, err
		}
		return []any{int64(d / time.Second)}, nil
	})

	register(`! date
@ Format a time.
$ Placeholders: YYYY YY MM DD hh mm ss. Times are UTC.
; -f --format | default="YYYY-MM-DD hh:mm:ss"
; time | type=time | nargs=? | help="relative time such as 1h30m, default now"`, runDate)

	register(`! humanize
@ Render a value for people.
; -k --kind | choices=time,bytes,comma,ordinal | default=time
; value`, runHumanize)

	register(`! json
@ Convert values to JSON.
; -d --depth | type=int | default=2 | help="levels of nested nodes to expand"
; value | nargs=?`, runJSON)

	register(`! jq
@ Run a jq filter over the JSON of stdin.
; -r --raw | action=store_true | help="output strings without quotes"
; filter`, runJq)
}

func runEcho(_ context.Context, _ *Session, c *call) ([]any, error) {
	args := c.args
	sep := " "
	for len(args) > 0 {
		flag, _ := args[0].(string)
		if flag != "-n" && flag != "--no-space" {
			break
		}
		sep = ""
		args = args[1:]
	}
	if len(args) > 0 && args[0] == "--" {
		args = args[1:]
	}
	if len(args) == 1 {
		return []any{args[0]}, nil
	}
	return []any{strings.Join(strs(args), sep)}, nil
}

func testStatus(args []any) error {
	ok, err := evalTest(args)
	if err != nil {
		return err
	}
	if !ok {
		return errFalse
	}
	return nil
}

func runSplit(_ context.Context, _ *Session, c *call) ([]any, error) {
	text := Str(c.vals.Get("text"))
	if c.vals.Get("text") == nil {
		text = Str(flatten(c.stdin))
	}
	var parts []string
	if sep := c.vals.String("sep"); sep != "" {
		parts = strings.Split(text, sep)
	} else {
		parts = strings.Fields(text)
	}
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

func mapText(fn func(string) string) builtinFunc {
	return func(_ context.Context, _ *Session, c *call) ([]any, error) {
		items := c.input("text")
		out := make([]any, len(items))
		for i, v := range items {
			out[i] = fn(Str(v))
		}
		return out, nil
	}
}

// lines splits a single multi-line text into its lines.
func lines(items []any) []any {
	if len(items) != 1 {
		return items
	}
	s, ok := items[0].(string)
	if !ok || !strings.Contains(s, "\n") {
		return items
	}
	parts := strings.Split(strings.TrimRight(s, "\n"), "\n")
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out
}

func clamp(n int64, size int) int {
	if n < 0 {
		return 0
	}
	return min(int(n), size)
}

func runRange(_ context.Context, s *Session, c *call) ([]any, error) {
	bounds := c.vals.List("bounds")
	var start, stop, step int64 = 0, 0, 1
	switch len(bounds) {
	case 1:
		stop = bounds[0].(int64)
	case 2:
		start, stop = bounds[0].(int64), bounds[1].(int64)
	case 3:
		start, stop, step = bounds[0].(int64), bounds[1].(int64), bounds[2].(int64)
	default:
		return nil, shellerr.New(shellerr.UnrecognizedArgumentError, "expected at most 3 bounds")
	}
	if step == 0 {
		return nil, shellerr.New(shellerr.CommandError, "step must not be zero")
	}

	var out []any
	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		if len(out) >= s.engine.maxLoop {
			return nil, shellerr.New(shellerr.CommandError, "range exceeds %d values", s.engine.maxLoop)
		}
		out = append(out, i)
	}
	return out, nil
}

func toDuration(v any) (time.Duration, error) {
	switch v := v.(type) {
	case time.Duration:
		return v, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	}
	return definition.ParseDuration(Str(v))
}

func runDate(_ context.Context, s *Session, c *call) ([]any, error) {
	t, ok := c.vals.Get("time").(time.Time)
	if !ok {
		t = s.engine.now()
	}
	return []any{util.FormatDateTpl(t.UnixMilli(), c.vals.String("format"))}, nil
}

func runHumanize(_ context.Context, s *Session, c *call) ([]any, error) {
	v := c.vals.Get("value")
	kind := c.vals.String("kind")
	if kind == "time" {
		t, ok := v.(time.Time)
		if !ok {
			var err error
			if t, err = toTime(v, s.engine.now()); err != nil {
				return nil, err
			}
		}
		return []any{humanize.RelTime(t, s.engine.now(), "ago", "from now")}, nil
	}

	n, ok := toInt(v)
	if !ok {
		return nil, shellerr.New(shellerr.TypeCoercionError, "%q is not an integer", Str(v))
	}
	switch kind {
	case "bytes":
		if n < 0 {
			return nil, shellerr.New(shellerr.CommandError, "negative size %d", n)
		}
		return []any{humanize.Bytes(uint64(n))}, nil
	case "comma":
		return []any{humanize.Comma(n)}, nil
	default:
		return []any{humanize.Ordinal(int(n))}, nil
	}
}

// toTime reads a timestamp: RFC 3339 text, a node creation time, or a
// relative duration from now.
func toTime(v any, now time.Time) (time.Time, error) {
	if n, ok := v.(graph.Node); ok {
		if created, ok := n.Attr("created_at"); ok {
			if t, ok := created.(time.Time); ok {
				return t, nil
			}
		}
	}
	text := Str(v)
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, nil
	}
	t, err := definition.Coerce(definition.TypeTime, text, now)
	if err != nil {
		return time.Time{}, err
	}
	return t.(time.Time), nil
}

func jsonInput(c *call, dest string) any {
	if v := c.vals.Get(dest); v != nil {
		return v
	}
	return single(c.stdin)
}

func runJSON(_ context.Context, _ *Session, c *call) ([]any, error) {
	depth, ok := c.vals.Int("depth")
	if !ok {
		depth = defaultJSONDepth
	}
	data, err := json.MarshalIndent(plain(jsonInput(c, "value"), int(depth)), "", "  ")
	if err != nil {
		return nil, shellerr.Wrap(shellerr.CommandError, err, "encode")
	}
	return []any{string(data)}, nil
}

// plain converts script values into JSON-ready data.
func plain(v any, depth int) any {
	switch v := v.(type) {
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = plain(e, depth)
		}
		return out
	case graph.Node:
		return graph.ToJSON(v, depth)
	case string, int64, float64, bool, nil:
		return v
	default:
		return Str(v)
	}
}

func runJq(_ context.Context, _ *Session, c *call) ([]any, error) {
	query, err := gojq.Parse(c.vals.String("filter"))
	if err != nil {
		return nil, shellerr.Wrap(shellerr.CommandError, err, "parse filter")
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, shellerr.Wrap(shellerr.CommandError, err, "compile filter")
	}

	in, err := jqInput(single(c.stdin))
	if err != nil {
		return nil, err
	}

	var out []any
	iter := code.Run(in)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return nil, shellerr.Wrap(shellerr.CommandError, err, "run filter")
		}
		if s, ok := v.(string); ok && c.vals.Bool("raw") {
			out = append(out, s)
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, shellerr.Wrap(shellerr.CommandError, err, "encode result")
		}
		out = append(out, string(data))
	}
	return out, nil
}

// jqInput turns stdin into the plain JSON types gojq expects. Text is
// parsed as JSON when it is valid JSON.
func jqInput(v any) (any, error) {
	if s, ok := v.(string); ok {
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			return parsed, nil
		}
		return s, nil
	}
	data, err := json.Marshal(plain(v, defaultJSONDepth))
	if err != nil {
		return nil, shellerr.Wrap(shellerr.CommandError, err, "encode input")
	}
	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, shellerr.Wrap(shellerr.CommandError, err, "decode input")
	}
	return parsed, nil
}
