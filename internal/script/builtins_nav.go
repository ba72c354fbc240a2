package script

import (
	"context"
	"strings"

	"github.com/FUFSoB/cli-bot-discord/internal/graph"
	"github.com/FUFSoB/cli-bot-discord/internal/navigator"
	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
)

func registerNav() {
	register(`! pwd
@ Output the current position.`, func(_ context.Context, s *Session, _ *call) ([]any, error) {
		return []any{s.cursor}, nil
	})

	register(`! cd
@ Change the current position.
$ With no path, return to the start. "cd -" returns to the previous position.
; path | nargs=? | help="path or saved cursor"`, runCd)

	register(`! ls
@ List entries.
; -a --all | action=store_true | help="include dot entries"
; -l --long | action=store_true | help="show entry types"
; path | nargs=?`, runLs)

	register(`! cat
@ Output the values at paths, or stdin.
; -d --describe | action=store_true | help="render values as text"
; paths | nargs=*`, runCat)

	register(`! find
@ Search users, members, guilds, channels, roles and emojis by name.
; -x --exact | action=store_true | help="match whole names only"
; -f --fuzzy | action=store_true | help="match as a subsequence"
; -g --guild | action=store_true | help="only entities of the current guild"
; query`, runFind)

	register(`! get-id
@ Look up any entity by ID or mention.
; id | type=id`, func(_ context.Context, s *Session, c *call) ([]any, error) {
		t, err := s.nav.Resolve(s.nav.Root(), "/get/"+c.vals.String("id"))
		if err != nil {
			return nil, err
		}
		return []any{t.Value}, nil
	})
}

func runCd(_ context.Context, s *Session, c *call) ([]any, error) {
	var next navigator.Cursor
	var err error
	switch p := c.vals.Get("path").(type) {
	case nil:
		next = s.nav.Start()
	case navigator.Cursor:
		next, err = s.nav.Cd(p, ".")
	default:
		path := Str(p)
		if path == "-" {
			if s.oldpwd == nil {
				return nil, shellerr.New(shellerr.CommandError, "OLDPWD not set")
			}
			next = *s.oldpwd
			break
		}
		next, err = s.nav.Cd(s.cursor, path)
	}
	if err != nil {
		return nil, err
	}
	prev := s.cursor
	s.oldpwd = &prev
	s.cursor = next
	return nil, nil
}

func (s *Session) resolve(arg any) (navigator.Target, error) {
	switch p := arg.(type) {
	case nil:
		return s.nav.Resolve(s.cursor, ".")
	case navigator.Cursor:
		return s.nav.Resolve(p, ".")
	default:
		return s.nav.Resolve(s.cursor, Str(p))
	}
}

func runLs(_ context.Context, s *Session, c *call) ([]any, error) {
	t, err := s.resolve(c.vals.Get("path"))
	if err != nil {
		return nil, err
	}
	n, ok := t.Node()
	if !ok {
		return []any{t.Path[len(t.Path)-1]}, nil
	}

	// A filtered listing outputs the matched values themselves.
	_, isList := n.(*graph.ListNode)
	all, long := c.vals.Bool("all"), c.vals.Bool("long")
	var out []any
	for _, e := range navigator.Entries(n) {
		if !all && strings.HasPrefix(e.Name, ".") {
			continue
		}
		switch {
		case long:
			out = append(out, kindLabel(e.Value)+"\t"+e.Name)
		case isList:
			out = append(out, e.Value)
		default:
			out = append(out, e.Name)
		}
	}
	return out, nil
}

func kindLabel(v any) string {
	if n, ok := v.(graph.Node); ok {
		return graph.TypeName(n)
	}
	return "value"
}

func runCat(_ context.Context, s *Session, c *call) ([]any, error) {
	paths := c.vals.List("paths")
	var values []any
	if len(paths) == 0 {
		values = append(values, c.stdin...)
	}
	for _, p := range paths {
		t, err := s.resolve(p)
		if err != nil {
			return nil, err
		}
		values = append(values, t.Value)
	}
	if !c.vals.Bool("describe") {
		return values, nil
	}
	out := make([]any, len(values))
	for i, v := range values {
		if _, ok := v.(graph.Node); ok {
			out[i] = graph.Describe(v)
		} else {
			out[i] = Str(v)
		}
	}
	return out, nil
}

func runFind(_ context.Context, s *Session, c *call) ([]any, error) {
	opts := graph.FindOptions{Exact: c.vals.Bool("exact"), Fuzzy: c.vals.Bool("fuzzy")}
	if c.vals.Bool("guild") {
		if !s.gctx.InGuild() {
			return nil, shellerr.New(shellerr.CommandError, "not in a guild")
		}
		opts.GuildID = s.gctx.GuildID
	}
	return []any{s.index.Find(c.vals.String("query"), opts)}, nil
}
