package script

import (
	"context"
	"errors"
	"path"
	"strconv"

	"github.com/rs/zerolog/log"
	"mvdan.cc/sh/v3/syntax"

	"github.com/FUFSoB/cli-bot-discord/internal/binder"
	"github.com/FUFSoB/cli-bot-discord/internal/definition"
	"github.com/FUFSoB/cli-bot-discord/internal/graph"
	"github.com/FUFSoB/cli-bot-discord/internal/navigator"
	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
	"github.com/FUFSoB/cli-bot-discord/internal/sink"
)

// Session is the state of one invocation. It is never shared.
type Session struct {
	engine *Engine
	gctx   graph.Context
	index  *graph.Index
	nav    *navigator.Navigator

	cursor navigator.Cursor
	oldpwd *navigator.Cursor

	env     *Env
	args    []any
	name    string
	storage *Storage
	params  *Params
	funcs   map[string]*function
	status  int
	depth   int

	handles []sink.Handle
}

// Context returns the invocation context.
func (s *Session) Context() graph.Context { return s.gctx }

// Params returns the invocation switches.
func (s *Session) Params() *Params { return s.params }

type function struct {
	body *syntax.Stmt
	env  *Env
}

type input struct {
	values []any
	ok     bool
	// here marks input from a <<< redirect.
	here bool
}

type returnSignal struct{ values []any }

func (*returnSignal) Error() string { return "return: not in a function or command" }

type loopSignal struct {
	brk   bool
	depth int
}

func (l *loopSignal) Error() string {
	if l.brk {
		return "break: not in a loop"
	}
	return "continue: not in a loop"
}

// errFalse is a false exit status. It is not a failure.
var errFalse = errors.New("false")

func isSignal(err error) bool {
	var ret *returnSignal
	var loop *loopSignal
	return errors.As(err, &ret) || errors.As(err, &loop)
}

func (s *Session) run(ctx context.Context, stmts []*syntax.Stmt, in input) ([]any, error) {
	var out []any
	for _, st := range stmts {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := s.stmt(ctx, st, in)
		out = append(out, res...)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func (s *Session) stmt(ctx context.Context, st *syntax.Stmt, in input) ([]any, error) {
	if st.Background || st.Coprocess {
		return nil, shellerr.New(shellerr.CommandError, "background execution is not supported")
	}
	for _, r := range st.Redirs {
		if r.Op != syntax.WordHdoc {
			return nil, shellerr.New(shellerr.CommandError, "unsupported redirection %s", r.Op)
		}
		v, err := s.expandOne(ctx, r.Word)
		if err != nil {
			return nil, err
		}
		in = input{values: []any{v}, ok: true, here: true}
	}
	if st.Cmd == nil {
		return nil, nil
	}

	out, err := s.command(ctx, st.Cmd, in)
	switch {
	case errors.Is(err, errFalse):
		s.status, err = 1, nil
	case err != nil:
		if !isSignal(err) {
			s.status = 1
		}
		return out, err
	case simple(st.Cmd):
		s.status = 0
	}
	if st.Negated {
		if s.status == 0 {
			s.status = 1
		} else {
			s.status = 0
		}
	}
	return out, nil
}

func simple(c syntax.Command) bool {
	switch c.(type) {
	case *syntax.CallExpr, *syntax.TestClause, *syntax.ArithmCmd, *syntax.DeclClause, *syntax.FuncDecl:
		return true
	}
	return false
}

func (s *Session) command(ctx context.Context, c syntax.Command, in input) ([]any, error) {
	switch c := c.(type) {
	case *syntax.CallExpr:
		return s.callExpr(ctx, c, in)
	case *syntax.BinaryCmd:
		return s.binary(ctx, c, in)
	case *syntax.Block:
		return s.run(ctx, c.Stmts, in)
	case *syntax.Subshell:
		return s.subshell(ctx, c, in)
	case *syntax.IfClause:
		return s.ifClause(ctx, c, in)
	case *syntax.WhileClause:
		return s.whileClause(ctx, c, in)
	case *syntax.ForClause:
		return s.forClause(ctx, c, in)
	case *syntax.CaseClause:
		return s.caseClause(ctx, c, in)
	case *syntax.FuncDecl:
		s.funcs[c.Name.Value] = &function{body: c.Body, env: s.env}
		return nil, nil
	case *syntax.DeclClause:
		return nil, s.declare(ctx, c)
	case *syntax.TestClause:
		ok, err := s.testExpr(ctx, c.X)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errFalse
		}
		return nil, nil
	case *syntax.ArithmCmd:
		n, err := s.arith(ctx, c.X)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, errFalse
		}
		return nil, nil
	default:
		return nil, shellerr.New(shellerr.CommandError, "unsupported statement %T", c)
	}
}

// cond runs a condition list. A failing command counts as false unless
// return_on_error is set.
func (s *Session) cond(ctx context.Context, stmts []*syntax.Stmt) (bool, []any, error) {
	out, err := s.run(ctx, stmts, input{})
	if err != nil {
		if isSignal(err) || s.params.ReturnOnError || ctx.Err() != nil {
			return false, out, err
		}
		log.Debug().Err(err).Msg("Condition failed")
		s.status = 1
		return false, out, nil
	}
	return s.status == 0, out, nil
}

func (s *Session) binary(ctx context.Context, c *syntax.BinaryCmd, in input) ([]any, error) {
	switch c.Op {
	case syntax.Pipe, syntax.PipeAll:
		left, err := s.stmt(ctx, c.X, in)
		if err != nil {
			return nil, err
		}
		return s.stmt(ctx, c.Y, input{values: left, ok: true})
	case syntax.AndStmt, syntax.OrStmt:
		ok, out, err := s.cond(ctx, []*syntax.Stmt{c.X})
		if err != nil {
			return out, err
		}
		if ok != (c.Op == syntax.AndStmt) {
			return out, nil
		}
		res, err := s.stmt(ctx, c.Y, in)
		return append(out, res...), err
	}
	return nil, shellerr.New(shellerr.CommandError, "unsupported operator %s", c.Op)
}

func (s *Session) subshell(ctx context.Context, c *syntax.Subshell, in input) ([]any, error) {
	env, storage, cursor, oldpwd := s.env, s.storage, s.cursor, s.oldpwd
	funcs := make(map[string]*function, len(s.funcs))
	for k, v := range s.funcs {
		funcs[k] = v
	}
	saved := s.funcs
	s.env, s.storage, s.funcs = env.Flatten(), storage.Clone(), funcs
	defer func() {
		s.env, s.storage, s.cursor, s.oldpwd, s.funcs = env, storage, cursor, oldpwd, saved
	}()
	return s.run(ctx, c.Stmts, in)
}

func (s *Session) ifClause(ctx context.Context, c *syntax.IfClause, in input) ([]any, error) {
	var out []any
	for ; c != nil; c = c.Else {
		if len(c.Cond) == 0 {
			res, err := s.run(ctx, c.Then, in)
			return append(out, res...), err
		}
		ok, res, err := s.cond(ctx, c.Cond)
		out = append(out, res...)
		if err != nil {
			return out, err
		}
		if ok {
			res, err := s.run(ctx, c.Then, in)
			return append(out, res...), err
		}
	}
	s.status = 0
	return out, nil
}

// loopControl consumes a break or continue aimed at this loop.
func loopControl(err error) (stop bool, rest error) {
	var l *loopSignal
	if !errors.As(err, &l) {
		return true, err
	}
	if l.depth > 1 {
		return true, &loopSignal{brk: l.brk, depth: l.depth - 1}
	}
	return l.brk, nil
}

func (s *Session) whileClause(ctx context.Context, c *syntax.WhileClause, in input) ([]any, error) {
	var out []any
	for n := 0; ; n++ {
		if n >= s.engine.maxLoop {
			return out, shellerr.New(shellerr.CommandError, "loop exceeded %d iterations", s.engine.maxLoop)
		}
		ok, res, err := s.cond(ctx, c.Cond)
		out = append(out, res...)
		if err != nil {
			return out, err
		}
		if ok == c.Until {
			break
		}
		res, err = s.run(ctx, c.Do, in)
		out = append(out, res...)
		if err != nil {
			stop, rest := loopControl(err)
			if rest != nil {
				return out, rest
			}
			if stop {
				break
			}
		}
	}
	s.status = 0
	return out, nil
}

func (s *Session) forClause(ctx context.Context, c *syntax.ForClause, in input) ([]any, error) {
	switch loop := c.Loop.(type) {
	case *syntax.WordIter:
		items := s.args
		if loop.InPos.IsValid() || len(loop.Items) > 0 {
			var err error
			if items, err = s.fieldsAll(ctx, loop.Items); err != nil {
				return nil, err
			}
		}
		if len(items) > s.engine.maxLoop {
			return nil, shellerr.New(shellerr.CommandError, "loop exceeded %d iterations", s.engine.maxLoop)
		}
		// i is the index of this loop only; the outer value comes back after
		outer, hadOuter := s.env.Get("i")
		defer func() {
			if hadOuter {
				s.env.Set("i", outer)
			} else {
				s.env.Unset("i")
			}
		}()

		var out []any
		for i, item := range items {
			s.env.Set("i", int64(i))
			s.env.Set(loop.Name.Value, item)
			res, err := s.run(ctx, c.Do, in)
			out = append(out, res...)
			if err != nil {
				stop, rest := loopControl(err)
				if rest != nil {
					return out, rest
				}
				if stop {
					break
				}
			}
		}
		s.status = 0
		return out, nil
	case *syntax.CStyleLoop:
		return s.cstyle(ctx, loop, c.Do, in)
	}
	return nil, shellerr.New(shellerr.CommandError, "unsupported loop")
}

func (s *Session) cstyle(ctx context.Context, loop *syntax.CStyleLoop, body []*syntax.Stmt, in input) ([]any, error) {
	if loop.Init != nil {
		if _, err := s.arith(ctx, loop.Init); err != nil {
			return nil, err
		}
	}
	var out []any
	for n := 0; ; n++ {
		if n >= s.engine.maxLoop {
			return out, shellerr.New(shellerr.CommandError, "loop exceeded %d iterations", s.engine.maxLoop)
		}
		if loop.Cond != nil {
			v, err := s.arith(ctx, loop.Cond)
			if err != nil {
				return out, err
			}
			if v == 0 {
				break
			}
		}
		res, err := s.run(ctx, body, in)
		out = append(out, res...)
		if err != nil {
			stop, rest := loopControl(err)
			if rest != nil {
				return out, rest
			}
			if stop {
				break
			}
		}
		if loop.Post != nil {
			if _, err := s.arith(ctx, loop.Post); err != nil {
				return out, err
			}
		}
	}
	s.status = 0
	return out, nil
}

func (s *Session) caseClause(ctx context.Context, c *syntax.CaseClause, in input) ([]any, error) {
	subject, err := s.expandString(ctx, c.Word)
	if err != nil {
		return nil, err
	}
	var out []any
	matched := false
	for _, item := range c.Items {
		if !matched {
			for _, pw := range item.Patterns {
				pat, err := s.expandString(ctx, pw)
				if err != nil {
					return out, err
				}
				if ok, _ := path.Match(pat, subject); ok || pat == subject {
					matched = true
					break
				}
			}
		}
		if !matched {
			continue
		}
		res, err := s.run(ctx, item.Stmts, in)
		out = append(out, res...)
		if err != nil {
			return out, err
		}
		switch item.Op {
		case syntax.Fallthrough:
			continue
		case syntax.Resume:
			matched = false
			continue
		}
		break
	}
	s.status = 0
	return out, nil
}

func (s *Session) declare(ctx context.Context, c *syntax.DeclClause) error {
	set := s.env.Local
	switch c.Variant.Value {
	case "local", "declare", "typeset":
	case "export", "readonly":
		set = s.env.Set
	default:
		return shellerr.New(shellerr.CommandError, "%s: not supported", c.Variant.Value)
	}
	for _, as := range c.Args {
		if as.Name == nil {
			return shellerr.New(shellerr.CommandError, "%s: expected a variable name", c.Variant.Value)
		}
		if err := s.assign(ctx, as, set); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) assign(ctx context.Context, as *syntax.Assign, set func(string, any)) error {
	name := as.Name.Value
	var v any = ""
	switch {
	case as.Array != nil:
		list := []any{}
		for _, el := range as.Array.Elems {
			if el.Value == nil {
				continue
			}
			fs, err := s.fields(ctx, el.Value)
			if err != nil {
				return err
			}
			list = append(list, fs...)
		}
		v = list
	case as.Value != nil:
		var err error
		if v, err = s.expandOne(ctx, as.Value); err != nil {
			return err
		}
	}

	cur, exists := s.lookup(name)
	if as.Index != nil {
		idx, err := s.arith(ctx, as.Index)
		if err != nil {
			return err
		}
		list := append([]any(nil), asList(cur)...)
		if idx < 0 {
			idx += int64(len(list))
		}
		if idx < 0 || idx > int64(s.engine.maxLoop) {
			return shellerr.New(shellerr.CommandError, "%s[%d]: bad array subscript", name, idx)
		}
		for int64(len(list)) <= idx {
			list = append(list, "")
		}
		list[idx] = v
		set(name, list)
		return nil
	}

	if as.Append && exists {
		switch c := cur.(type) {
		case []any:
			v = append(append([]any(nil), c...), asList(v)...)
		default:
			v = Str(cur) + Str(v)
		}
	}
	set(name, v)
	return nil
}

// lookup resolves variables and the special parameters.
func (s *Session) lookup(name string) (any, bool) {
	switch name {
	case "@", "*":
		return append([]any(nil), s.args...), true
	case "#":
		return int64(len(s.args)), true
	case "?":
		return int64(s.status), true
	case "0":
		return s.name, true
	case "PWD":
		return s.cursor.String(), true
	case "OLDPWD":
		if s.oldpwd == nil {
			return "", false
		}
		return s.oldpwd.String(), true
	}
	if n, err := strconv.Atoi(name); err == nil && n > 0 {
		if n > len(s.args) {
			return "", false
		}
		return s.args[n-1], true
	}
	return s.env.Get(name)
}

func litWord(w *syntax.Word) (string, bool) {
	if w == nil || len(w.Parts) != 1 {
		return "", false
	}
	lit, ok := w.Parts[0].(*syntax.Lit)
	if !ok {
		return "", false
	}
	return lit.Value, true
}

func (s *Session) callExpr(ctx context.Context, ce *syntax.CallExpr, in input) ([]any, error) {
	if len(ce.Args) == 0 {
		for _, as := range ce.Assigns {
			if err := s.assign(ctx, as, s.env.Set); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	if len(ce.Assigns) > 0 {
		saved := s.env
		s.env = NewEnv(saved)
		defer func() { s.env = saved }()
		for _, as := range ce.Assigns {
			if err := s.assign(ctx, as, s.env.Local); err != nil {
				return nil, err
			}
		}
	}

	if name, ok := litWord(ce.Args[0]); ok && name == "try" {
		return s.try(ctx, ce.Args[1:], in)
	}

	fields, err := s.fieldsAll(ctx, ce.Args)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	name := Str(fields[0])
	log.Debug().Str("command", name).Int("args", len(fields)-1).Msg("Run")
	return s.invoke(ctx, name, fields[1:], in)
}

// try runs words in a protected region. On failure the output is the input
// default: the here-string, else piped stdin, else nothing.
func (s *Session) try(ctx context.Context, words []*syntax.Word, in input) ([]any, error) {
	cmdIn := in
	if in.here {
		cmdIn = input{}
	}

	var out []any
	var err error
	if len(words) == 1 && len(words[0].Parts) == 1 {
		if cs, ok := words[0].Parts[0].(*syntax.CmdSubst); ok {
			var v any
			v, err = s.cmdSubst(ctx, cs)
			out = []any{v}
		}
	}
	if out == nil && err == nil {
		var fields []any
		fields, err = s.fieldsAll(ctx, words)
		if err == nil {
			if len(fields) == 0 {
				return nil, shellerr.New(shellerr.MissingArgumentError, "try: missing command")
			}
			out, err = s.invoke(ctx, Str(fields[0]), fields[1:], cmdIn)
			if errors.Is(err, errFalse) {
				err = nil
			}
		}
	}

	if err == nil {
		return out, nil
	}
	if isSignal(err) || ctx.Err() != nil {
		return out, err
	}
	log.Debug().Err(err).Msg("Try absorbed error")
	s.status = 0
	return append([]any(nil), in.values...), nil
}

func (s *Session) invoke(ctx context.Context, name string, args []any, in input) ([]any, error) {
	if f, ok := s.funcs[name]; ok {
		return s.callFunc(ctx, name, f, args, in)
	}
	if c := s.engine.registry.Get(name); c != nil {
		return s.callDefined(ctx, c.Name(), func(call *Call) error {
			return c.Run(ctx, call.invocation())
		}, args, in)
	}
	if b, ok := builtins[name]; ok {
		out, err := s.callBuiltin(ctx, name, b, args, in)
		if err != nil && !errors.Is(err, errFalse) && !isSignal(err) {
			err = shellerr.Attribute(err, name)
		}
		return out, err
	}
	return nil, shellerr.New(shellerr.UnknownCommandError, "%s: command not found", name)
}

func (s *Session) callFunc(ctx context.Context, name string, f *function, args []any, in input) ([]any, error) {
	if s.depth >= s.engine.maxDepth {
		return nil, shellerr.New(shellerr.CommandError, "%s: maximum call depth exceeded", name)
	}
	env, savedArgs, savedName := s.env, s.args, s.name
	s.env, s.args, s.name = NewEnv(f.env), args, name
	s.depth++
	defer func() {
		s.env, s.args, s.name = env, savedArgs, savedName
		s.depth--
	}()

	out, err := s.stmt(ctx, f.body, in)
	var ret *returnSignal
	if errors.As(err, &ret) {
		return append(out, ret.values...), nil
	}
	return out, err
}

func (s *Session) callDefined(ctx context.Context, name string, run func(*Call) error, args []any, in input) ([]any, error) {
	if s.depth >= s.engine.maxDepth {
		return nil, shellerr.New(shellerr.CommandError, "%s: maximum call depth exceeded", name)
	}
	call := &Call{Session: s, Name: name, Tokens: args, Stdin: in.values, Piped: in.ok}
	err := run(call)
	if err != nil && !errors.Is(err, errFalse) {
		err = shellerr.Attribute(err, name)
	}
	return call.Output, err
}

// runDefined runs a definition body with a fresh environment. Storage,
// params and the sink stay shared; the cursor is restored afterwards.
func (s *Session) runDefined(ctx context.Context, desc *definition.Descriptor, vals binder.Values, in input) ([]any, error) {
	env, args, name, funcs := s.env, s.args, s.name, s.funcs
	cursor, oldpwd := s.cursor, s.oldpwd
	s.env = NewEnv(nil)
	for dest, v := range vals.Args {
		s.env.Local(dest, v)
	}
	s.args, s.name, s.funcs = vals.Raw, desc.Name, make(map[string]*function)
	s.depth++
	defer func() {
		s.env, s.args, s.name, s.funcs = env, args, name, funcs
		s.cursor, s.oldpwd = cursor, oldpwd
		s.depth--
	}()

	out, err := s.run(ctx, desc.Body.Stmts, in)
	return settle(out, err)
}
