package script

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
)

// Env is a chain of variable scopes.
type Env struct {
	vars   map[string]any
	parent *Env
}

// NewEnv returns a scope nested in parent. parent may be nil.
func NewEnv(parent *Env) *Env {
	return &Env{vars: make(map[string]any), parent: parent}
}

// Get looks name up through the chain.
func (e *Env) Get(name string) (any, bool) {
	for s := e; s != nil; s = s.parent {
		if v, ok := s.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Set assigns in the nearest scope holding name, else in e.
func (e *Env) Set(name string, v any) {
	for s := e; s != nil; s = s.parent {
		if _, ok := s.vars[name]; ok {
			s.vars[name] = v
			return
		}
	}
	e.vars[name] = v
}

// Local assigns in e only.
func (e *Env) Local(name string, v any) { e.vars[name] = v }

// Unset removes name from the nearest scope holding it.
func (e *Env) Unset(name string) {
	for s := e; s != nil; s = s.parent {
		if _, ok := s.vars[name]; ok {
			delete(s.vars, name)
			return
		}
	}
}

// Flatten copies the visible variables into a single new scope.
func (e *Env) Flatten() *Env {
	var chain []*Env
	for s := e; s != nil; s = s.parent {
		chain = append(chain, s)
	}
	out := NewEnv(nil)
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].vars {
			out.vars[k] = v
		}
	}
	return out
}

type slot struct {
	values []any
	list   bool
}

// Storage holds named slots shared by every command of one invocation.
type Storage struct {
	slots map[string]*slot
}

// NewStorage returns empty storage.
func NewStorage() *Storage {
	return &Storage{slots: make(map[string]*slot)}
}

// Put writes values into a slot. With appendMode the slot becomes a list and
// grows; otherwise it is replaced.
func (s *Storage) Put(name string, values []any, appendMode bool) {
	sl, ok := s.slots[name]
	if !ok || !appendMode {
		sl = &slot{}
		s.slots[name] = sl
	}
	if appendMode {
		sl.list = true
		sl.values = append(sl.values, values...)
		return
	}
	sl.values = append([]any(nil), values...)
	sl.list = len(values) > 1
}

// Get returns the slot value: a list for list slots, else the single value.
func (s *Storage) Get(name string) (any, bool) {
	sl, ok := s.slots[name]
	if !ok {
		return nil, false
	}
	if sl.list {
		return append([]any(nil), sl.values...), true
	}
	if len(sl.values) == 0 {
		return "", true
	}
	return sl.values[0], true
}

// Pop removes and returns the last value of a slot.
func (s *Storage) Pop(name string) (any, error) {
	sl, ok := s.slots[name]
	if !ok || len(sl.values) == 0 {
		return nil, shellerr.New(shellerr.CommandError, "storage %q is empty", name)
	}
	v := sl.values[len(sl.values)-1]
	sl.values = sl.values[:len(sl.values)-1]
	return v, nil
}

// Clear removes a slot.
func (s *Storage) Clear(name string) { delete(s.slots, name) }

// Exists reports whether a slot is set.
func (s *Storage) Exists(name string) bool {
	_, ok := s.slots[name]
	return ok
}

// Clone copies the storage for a subshell.
func (s *Storage) Clone() *Storage {
	out := NewStorage()
	for k, sl := range s.slots {
		out.slots[k] = &slot{values: append([]any(nil), sl.values...), list: sl.list}
	}
	return out
}

// Params are invocation-wide switches set by the params builtin.
type Params struct {
	ReturnOnError bool
	Send          bool
	Prefix        string
	Suffix        string
	Syntax        string
}

func defaultParams() *Params { return &Params{Send: true} }

// Set applies one key[=value] item. A bare boolean key toggles it and a bare
// text key clears it.
func (p *Params) Set(item string) error {
	key, value, hasValue := strings.Cut(item, "=")
	switch key {
	case "return_on_error", "send":
		target := &p.ReturnOnError
		if key == "send" {
			target = &p.Send
		}
		if !hasValue {
			*target = !*target
			return nil
		}
		b, err := strconv.ParseBool(value)
		if err != nil {
			return shellerr.New(shellerr.TypeCoercionError, "params: %s expects a boolean, got %q", key, value)
		}
		*target = b
	case "prefix":
		p.Prefix = value
	case "suffix":
		p.Suffix = value
	case "syntax":
		p.Syntax = value
	default:
		return shellerr.New(shellerr.CommandError, "params: unknown key %q", key)
	}
	return nil
}

// Lines renders the current values, sorted by key.
func (p *Params) Lines() []string {
	kv := map[string]string{
		"return_on_error": strconv.FormatBool(p.ReturnOnError),
		"send":            strconv.FormatBool(p.Send),
		"prefix":          strconv.Quote(p.Prefix),
		"suffix":          strconv.Quote(p.Suffix),
		"syntax":          strconv.Quote(p.Syntax),
	}
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = fmt.Sprintf("%s=%s", k, kv[k])
	}
	return out
}
