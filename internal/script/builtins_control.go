package script

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/FUFSoB/cli-bot-discord/internal/mapping"
	"github.com/FUFSoB/cli-bot-discord/internal/scheduler"
	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
	"github.com/FUFSoB/cli-bot-discord/internal/source"
)

func registerControl() {
	register(`! storage
@ Read or write a named slot shared by the whole invocation.
$ With stdin the slot is written, otherwise its value is output.
; -l --list | action=store_true | help="append instead of overwrite"
; -p --pop | action=store_true | help="remove and output the last value"
; -c --clear | action=store_true | help="remove the slot"
; -e --exists | action=store_true | help="succeed when the slot is set"
; name`, runStorage)

	register(`! params
@ Set invocation parameters.
$ Keys: return_on_error, send, prefix, suffix, syntax. A bare key toggles it.
; -s --show | action=store_true | help="output the current values"
; items | nargs=* | help="key[=value]"`, runParams)

	registerRaw(`! return
@ Stop the function or command and output the values.`, func(_ context.Context, _ *Session, c *call) ([]any, error) {
		values := c.args
		if len(values) == 0 && c.piped {
			values = c.stdin
		}
		return nil, &returnSignal{values: values}
	})

	registerRaw(`! break
@ Leave the innermost loop, or n loops.`, loopBuiltin(true))

	registerRaw(`! continue
@ Skip to the next iteration of the innermost loop, or the nth.`, loopBuiltin(false))

	register(`! unset
@ Remove variables.
; names | nargs=+`, func(_ context.Context, s *Session, c *call) ([]any, error) {
		for _, n := range c.vals.List("names") {
			s.env.Unset(Str(n))
		}
		return nil, nil
	})

	register(`! sleep
@ Wait for a duration.
; duration`, runSleep)

	register(`! mapping
@ Build a key to value table.
; -i --ignore-case | action=store_true
; pairs | nargs=+ | help="key=value, * is the fallback key"`, func(_ context.Context, _ *Session, c *call) ([]any, error) {
		var opts []mapping.Option
		if c.vals.Bool("ignore_case") {
			opts = append(opts, mapping.FoldCase())
		}
		t, err := mapping.New(strs(c.vals.List("pairs")), opts...)
		if err != nil {
			return nil, err
		}
		return []any{t}, nil
	})

	register(`! pointer
@ Select a key of a mapping.
; -r --reverse | action=store_true | help="select by value"
; key`, func(_ context.Context, _ *Session, c *call) ([]any, error) {
		return []any{mapping.Pointer{Key: Str(c.vals.Get("key")), Reverse: c.vals.Bool("reverse")}}, nil
	})

	register(`! get
@ Resolve a pointer against a mapping.
$ The mapping and the pointer come from the arguments or stdin.
; -f --fallback | action=store_true | help="use the * key for unmapped keys"
; values | nargs=*`, func(_ context.Context, _ *Session, c *call) ([]any, error) {
		values := append(flatten(c.vals.List("values")), flatten(c.stdin)...)
		t, p, err := mapping.Select(values)
		if err != nil {
			return nil, err
		}
		v, err := mapping.Get(t, p, c.vals.Bool("fallback"))
		if err != nil {
			return nil, err
		}
		return []any{v}, nil
	})

	registerRaw(`! schedule
@ Run a command later, as if invoked again from here.
% %(prog)s duration command...`, runSchedule)
}

func runStorage(_ context.Context, s *Session, c *call) ([]any, error) {
	name := Str(c.vals.Get("name"))
	st := s.storage
	switch {
	case c.vals.Bool("exists"):
		if !st.Exists(name) {
			return nil, errFalse
		}
		return nil, nil
	case c.vals.Bool("clear"):
		st.Clear(name)
		return nil, nil
	case c.vals.Bool("pop"):
		v, err := st.Pop(name)
		if err != nil {
			return nil, err
		}
		return []any{v}, nil
	case c.piped:
		st.Put(name, flatten(c.stdin), c.vals.Bool("list"))
		return nil, nil
	}
	v, ok := st.Get(name)
	if !ok {
		return nil, nil
	}
	return []any{v}, nil
}

func runParams(_ context.Context, s *Session, c *call) ([]any, error) {
	items := c.vals.List("items")
	for _, it := range items {
		if err := s.params.Set(Str(it)); err != nil {
			return nil, err
		}
	}
	if c.vals.Bool("show") || len(items) == 0 {
		return []any{strings.Join(s.params.Lines(), "\n")}, nil
	}
	return nil, nil
}

func loopBuiltin(brk bool) builtinFunc {
	return func(_ context.Context, _ *Session, c *call) ([]any, error) {
		n := 1
		if len(c.args) > 0 {
			v, err := strconv.Atoi(Str(c.args[0]))
			if err != nil || v < 1 {
				return nil, shellerr.New(shellerr.CommandError, "%s: loop count out of range", Str(c.args[0]))
			}
			n = v
		}
		return nil, &loopSignal{brk: brk, depth: n}
	}
}

func runSleep(ctx context.Context, s *Session, c *call) ([]any, error) {
	d, err := toDuration(c.vals.Get("duration"))
	if err != nil {
		return nil, err
	}
	if d > s.engine.maxRead {
		return nil, shellerr.New(shellerr.CommandError, "%s exceeds the limit of %s", d, s.engine.maxRead)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
		return nil, nil
	}
}

func runSchedule(_ context.Context, s *Session, c *call) ([]any, error) {
	if len(c.args) < 2 {
		return nil, shellerr.New(shellerr.MissingArgumentError, "usage: schedule duration command...")
	}
	if s.engine.scheduler == nil {
		return nil, shellerr.New(shellerr.SchedulingError, "scheduling is not available")
	}
	d, err := toDuration(c.args[0])
	if err != nil {
		return nil, err
	}

	var command string
	if words := c.args[1:]; len(words) == 1 {
		command = Str(words[0])
	} else {
		quoted := make([]string, len(words))
		for i, w := range words {
			quoted[i] = source.Quote(Str(w))
		}
		command = strings.Join(quoted, " ")
	}

	job, err := s.engine.scheduler.Schedule(d, command, scheduler.Origin{
		UserID:    s.gctx.UserID,
		GuildID:   s.gctx.GuildID,
		ChannelID: s.gctx.ChannelID,
		MessageID: s.gctx.MessageID,
	})
	if err != nil {
		return nil, err
	}
	return []any{job.ID, job.FireAt}, nil
}
