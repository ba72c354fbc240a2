package script

import (
	"context"
	"errors"
	"math/rand/v2"
	"path"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"mvdan.cc/sh/v3/syntax"

	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
)

func (s *Session) fieldsAll(ctx context.Context, words []*syntax.Word) ([]any, error) {
	var out []any
	for _, w := range words {
		fs, err := s.fields(ctx, w)
		if err != nil {
			return nil, err
		}
		out = append(out, fs...)
	}
	return out, nil
}

// fields expands one word into command fields.
func (s *Session) fields(ctx context.Context, w *syntax.Word) ([]any, error) {
	if len(w.Parts) == 1 {
		switch p := w.Parts[0].(type) {
		case *syntax.ParamExp:
			v, err := s.param(ctx, p)
			if err != nil {
				return nil, err
			}
			return elements(v), nil
		case *syntax.CmdSubst:
			v, err := s.cmdSubst(ctx, p)
			if err != nil {
				return nil, err
			}
			return elements(v), nil
		case *syntax.DblQuoted:
			if len(p.Parts) == 1 {
				if pe, ok := p.Parts[0].(*syntax.ParamExp); ok && isAllParams(pe) {
					v, err := s.param(ctx, pe)
					if err != nil {
						return nil, err
					}
					return asList(v), nil
				}
			}
		}
	}
	if v, typed, err := s.typed(ctx, w); err != nil || typed {
		return []any{v}, err
	}

	fb := &fieldBuilder{}
	if err := s.buildFields(ctx, fb, w.Parts, false); err != nil {
		return nil, err
	}
	return fb.finish(), nil
}

// isAllParams matches "$@" and "${name[@]}", which expand to one field per
// element even when quoted.
func isAllParams(pe *syntax.ParamExp) bool {
	if pe.Param == nil || pe.Length || pe.Excl || pe.Exp != nil || pe.Slice != nil || pe.Repl != nil {
		return false
	}
	if pe.Index == nil {
		return pe.Param.Value == "@"
	}
	w, ok := pe.Index.(*syntax.Word)
	if !ok {
		return false
	}
	lit, ok := litWord(w)
	return ok && lit == "@"
}

// typed handles a word that is exactly one quoted expansion or arithmetic
// expansion. Those keep their value type.
func (s *Session) typed(ctx context.Context, w *syntax.Word) (any, bool, error) {
	if len(w.Parts) != 1 {
		return nil, false, nil
	}
	switch p := w.Parts[0].(type) {
	case *syntax.ArithmExp:
		n, err := s.arith(ctx, p.X)
		return n, true, err
	case *syntax.DblQuoted:
		if len(p.Parts) != 1 {
			return nil, false, nil
		}
		switch q := p.Parts[0].(type) {
		case *syntax.ParamExp:
			v, err := s.param(ctx, q)
			if l, ok := v.([]any); ok && q.Param.Value == "*" {
				v = Str(l)
			}
			return v, true, err
		case *syntax.CmdSubst:
			v, err := s.cmdSubst(ctx, q)
			return v, true, err
		case *syntax.ArithmExp:
			n, err := s.arith(ctx, q.X)
			return n, true, err
		}
	}
	return nil, false, nil
}

// expandOne expands a word without field splitting.
func (s *Session) expandOne(ctx context.Context, w *syntax.Word) (any, error) {
	if w == nil {
		return "", nil
	}
	if len(w.Parts) == 1 {
		switch p := w.Parts[0].(type) {
		case *syntax.ParamExp:
			return s.param(ctx, p)
		case *syntax.CmdSubst:
			return s.cmdSubst(ctx, p)
		}
	}
	if v, typed, err := s.typed(ctx, w); err != nil || typed {
		return v, err
	}
	fb := &fieldBuilder{join: true}
	if err := s.buildFields(ctx, fb, w.Parts, false); err != nil {
		return nil, err
	}
	return fb.cur.String(), nil
}

func (s *Session) expandString(ctx context.Context, w *syntax.Word) (string, error) {
	v, err := s.expandOne(ctx, w)
	return Str(v), err
}

// fieldBuilder assembles fields from word parts. Unquoted expansions split
// on whitespace; join disables splitting.
type fieldBuilder struct {
	join   bool
	cur    strings.Builder
	active bool
	out    []any
}

func (f *fieldBuilder) write(s string) {
	f.cur.WriteString(s)
	f.active = true
}

func (f *fieldBuilder) split(s string) {
	if f.join {
		f.write(s)
		return
	}
	words := strings.Fields(s)
	if len(words) == 0 {
		return
	}
	if s[0] == ' ' || s[0] == '\t' || s[0] == '\n' {
		f.flush()
	}
	for i, w := range words {
		if i > 0 {
			f.flush()
		}
		f.write(w)
	}
	last, _ := utf8.DecodeLastRuneInString(s)
	if unicode.IsSpace(last) {
		f.flush()
	}
}

func (f *fieldBuilder) flush() {
	if f.active {
		f.out = append(f.out, f.cur.String())
	}
	f.cur.Reset()
	f.active = false
}

func (f *fieldBuilder) finish() []any {
	f.flush()
	return f.out
}

func (s *Session) buildFields(ctx context.Context, fb *fieldBuilder, parts []syntax.WordPart, quoted bool) error {
	for _, part := range parts {
		switch p := part.(type) {
		case *syntax.Lit:
			if quoted {
				fb.write(unescapeQuoted(p.Value))
			} else {
				fb.write(unescape(p.Value))
			}
		case *syntax.SglQuoted:
			v := p.Value
			if p.Dollar {
				v = ansiC(v)
			}
			fb.write(v)
		case *syntax.DblQuoted:
			fb.active = true
			if err := s.buildFields(ctx, fb, p.Parts, true); err != nil {
				return err
			}
		case *syntax.ParamExp:
			v, err := s.param(ctx, p)
			if err != nil {
				return err
			}
			s.emit(fb, v, quoted)
		case *syntax.CmdSubst:
			v, err := s.cmdSubst(ctx, p)
			if err != nil {
				return err
			}
			s.emit(fb, v, quoted)
		case *syntax.ArithmExp:
			n, err := s.arith(ctx, p.X)
			if err != nil {
				return err
			}
			fb.write(strconv.FormatInt(n, 10))
		default:
			return shellerr.New(shellerr.CommandError, "unsupported word part %T", part)
		}
	}
	return nil
}

func (s *Session) emit(fb *fieldBuilder, v any, quoted bool) {
	if quoted {
		fb.write(Str(v))
		return
	}
	fb.split(Str(v))
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			if s[i] == '\n' {
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func unescapeQuoted(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '$', '`', '"', '\\':
				i++
			case '\n':
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func ansiC(s string) string {
	r := strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\\`, `\`, `\'`, "'", `\"`, `"`, `\e`, "\x1b", `\r`, "\r")
	return r.Replace(s)
}

func (s *Session) cmdSubst(ctx context.Context, cs *syntax.CmdSubst) (any, error) {
	out, err := s.run(ctx, cs.Stmts, input{})
	var ret *returnSignal
	if errors.As(err, &ret) {
		out, err = append(out, ret.values...), nil
	}
	if err != nil {
		return nil, err
	}
	return single(out), nil
}

func (s *Session) param(ctx context.Context, pe *syntax.ParamExp) (any, error) {
	if pe.Param == nil {
		return "", nil
	}
	name := pe.Param.Value
	var v any
	var set bool
	if name == "RANDOM" {
		v, set = int64(rand.IntN(32768)), true
	} else {
		v, set = s.lookup(name)
	}

	if pe.Excl && pe.Index == nil {
		v, set = s.lookup(Str(v))
	}

	if pe.Index != nil {
		var err error
		if v, set, err = s.subscript(ctx, v, set, pe.Index); err != nil {
			return nil, err
		}
	}

	if pe.Length {
		return int64(length(v)), nil
	}

	if pe.Slice != nil {
		return s.slice(ctx, v, pe.Slice)
	}

	if pe.Repl != nil {
		orig, err := s.expandString(ctx, pe.Repl.Orig)
		if err != nil {
			return nil, err
		}
		with, err := s.expandString(ctx, pe.Repl.With)
		if err != nil {
			return nil, err
		}
		n := 1
		if pe.Repl.All {
			n = -1
		}
		if orig == "" {
			return Str(v), nil
		}
		return strings.Replace(Str(v), orig, with, n), nil
	}

	if pe.Exp != nil {
		return s.paramOp(ctx, name, v, set, pe.Exp)
	}
	if !set {
		return "", nil
	}
	return v, nil
}

func (s *Session) subscript(ctx context.Context, v any, set bool, idx syntax.ArithmExpr) (any, bool, error) {
	if w, ok := idx.(*syntax.Word); ok {
		if lit, ok := litWord(w); ok && (lit == "@" || lit == "*") {
			return asList(v), set, nil
		}
	}
	if !set {
		return "", false, nil
	}
	n, err := s.arith(ctx, idx)
	if err != nil {
		return nil, false, err
	}
	list := asList(v)
	if n < 0 {
		n += int64(len(list))
	}
	if n < 0 || n >= int64(len(list)) {
		return "", false, nil
	}
	return list[n], true, nil
}

func (s *Session) slice(ctx context.Context, v any, sl *syntax.Slice) (any, error) {
	off, err := s.arith(ctx, sl.Offset)
	if err != nil {
		return nil, err
	}
	list, isList := v.([]any)
	if !isList {
		if l := asList(v); len(l) > 1 {
			list, isList = l, true
		}
	}
	n := int64(utf8.RuneCountInString(Str(v)))
	if isList {
		n = int64(len(list))
	}

	if off < 0 {
		off = max(n+off, 0)
	}
	off = min(off, n)
	end := n
	if sl.Length != nil {
		l, err := s.arith(ctx, sl.Length)
		if err != nil {
			return nil, err
		}
		if l < 0 {
			end = n + l
		} else {
			end = off + l
		}
		end = min(max(end, off), n)
	}

	if isList {
		return append([]any(nil), list[off:end]...), nil
	}
	return string([]rune(Str(v))[off:end]), nil
}

func (s *Session) paramOp(ctx context.Context, name string, v any, set bool, exp *syntax.Expansion) (any, error) {
	empty := !set || isEmpty(v)
	word := func() (any, error) { return s.expandOne(ctx, exp.Word) }

	switch exp.Op {
	case syntax.DefaultUnset, syntax.DefaultUnsetOrNull:
		if !set || (exp.Op == syntax.DefaultUnsetOrNull && empty) {
			return word()
		}
		return v, nil
	case syntax.AlternateUnset, syntax.AlternateUnsetOrNull:
		if !set || (exp.Op == syntax.AlternateUnsetOrNull && empty) {
			return "", nil
		}
		return word()
	case syntax.AssignUnset, syntax.AssignUnsetOrNull:
		if !set || (exp.Op == syntax.AssignUnsetOrNull && empty) {
			w, err := word()
			if err != nil {
				return nil, err
			}
			s.env.Set(name, w)
			return w, nil
		}
		return v, nil
	case syntax.ErrorUnset, syntax.ErrorUnsetOrNull:
		if !set || (exp.Op == syntax.ErrorUnsetOrNull && empty) {
			msg, err := s.expandString(ctx, exp.Word)
			if err != nil {
				return nil, err
			}
			if msg == "" {
				msg = "parameter not set"
			}
			return nil, shellerr.New(shellerr.CommandError, "%s: %s", name, msg)
		}
		return v, nil
	case syntax.RemSmallPrefix, syntax.RemLargePrefix, syntax.RemSmallSuffix, syntax.RemLargeSuffix:
		pat, err := s.expandString(ctx, exp.Word)
		if err != nil {
			return nil, err
		}
		return trimPattern(Str(v), pat, exp.Op), nil
	case syntax.UpperFirst, syntax.UpperAll, syntax.LowerFirst, syntax.LowerAll:
		return changeCase(Str(v), exp.Op), nil
	}
	return nil, shellerr.New(shellerr.CommandError, "unsupported expansion %s", exp.Op)
}

func trimPattern(s, pat string, op syntax.ParExpOperator) string {
	match := func(x string) bool {
		ok, err := path.Match(pat, x)
		return (err == nil && ok) || x == pat
	}
	runes := []rune(s)
	n := len(runes)
	switch op {
	case syntax.RemSmallPrefix:
		for i := 0; i <= n; i++ {
			if match(string(runes[:i])) {
				return string(runes[i:])
			}
		}
	case syntax.RemLargePrefix:
		for i := n; i >= 0; i-- {
			if match(string(runes[:i])) {
				return string(runes[i:])
			}
		}
	case syntax.RemSmallSuffix:
		for i := n; i >= 0; i-- {
			if match(string(runes[i:])) {
				return string(runes[:i])
			}
		}
	case syntax.RemLargeSuffix:
		for i := 0; i <= n; i++ {
			if match(string(runes[i:])) {
				return string(runes[:i])
			}
		}
	}
	return s
}

func changeCase(s string, op syntax.ParExpOperator) string {
	if s == "" {
		return s
	}
	switch op {
	case syntax.UpperAll:
		return strings.ToUpper(s)
	case syntax.LowerAll:
		return strings.ToLower(s)
	}
	r, size := utf8.DecodeRuneInString(s)
	if op == syntax.UpperFirst {
		r = unicode.ToUpper(r)
	} else {
		r = unicode.ToLower(r)
	}
	return string(r) + s[size:]
}

func (s *Session) arith(ctx context.Context, x syntax.ArithmExpr) (int64, error) {
	switch x := x.(type) {
	case *syntax.Word:
		return s.arithWord(ctx, x)
	case *syntax.ParenArithm:
		return s.arith(ctx, x.X)
	case *syntax.UnaryArithm:
		return s.unaryArith(ctx, x)
	case *syntax.BinaryArithm:
		return s.binaryArith(ctx, x)
	}
	return 0, shellerr.New(shellerr.CommandError, "unsupported arithmetic %T", x)
}

func (s *Session) arithWord(ctx context.Context, w *syntax.Word) (int64, error) {
	text, err := s.expandString(ctx, w)
	if err != nil {
		return 0, err
	}
	return s.arithValue(text, 0)
}

// arithValue reads a number, following variable names up to a few levels.
// An unset name reads as zero only when it is written in the expression.
func (s *Session) arithValue(text string, depth int) (int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil
	}
	if n, ok := toInt(text); ok {
		return n, nil
	}
	if syntax.ValidName(text) && depth < 8 {
		v, ok := s.lookup(text)
		if !ok && depth > 0 {
			return 0, shellerr.New(shellerr.TypeCoercionError, "%q is not an integer", text)
		}
		if !ok {
			return 0, nil
		}
		if n, ok := toInt(v); ok {
			return n, nil
		}
		return s.arithValue(Str(v), depth+1)
	}
	return 0, shellerr.New(shellerr.TypeCoercionError, "%q is not an integer", text)
}

func arithName(x syntax.ArithmExpr) (string, bool) {
	w, ok := x.(*syntax.Word)
	if !ok {
		return "", false
	}
	name, ok := litWord(w)
	return name, ok && syntax.ValidName(name)
}

func (s *Session) unaryArith(ctx context.Context, x *syntax.UnaryArithm) (int64, error) {
	if x.Op == syntax.Inc || x.Op == syntax.Dec {
		name, ok := arithName(x.X)
		if !ok {
			return 0, shellerr.New(shellerr.CommandError, "%s: operand must be a variable", x.Op)
		}
		old, err := s.arithValue(name, 0)
		if err != nil {
			return 0, err
		}
		next := old + 1
		if x.Op == syntax.Dec {
			next = old - 1
		}
		s.env.Set(name, next)
		if x.Post {
			return old, nil
		}
		return next, nil
	}

	v, err := s.arith(ctx, x.X)
	if err != nil {
		return 0, err
	}
	switch x.Op {
	case syntax.Not:
		return boolInt(v == 0), nil
	case syntax.BitNegation:
		return ^v, nil
	case syntax.Plus:
		return v, nil
	case syntax.Minus:
		return -v, nil
	}
	return 0, shellerr.New(shellerr.CommandError, "unsupported operator %s", x.Op)
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (s *Session) binaryArith(ctx context.Context, x *syntax.BinaryArithm) (int64, error) {
	switch x.Op {
	case syntax.AndArit, syntax.OrArit:
		l, err := s.arith(ctx, x.X)
		if err != nil {
			return 0, err
		}
		if (x.Op == syntax.AndArit) == (l == 0) {
			return boolInt(l != 0), nil
		}
		r, err := s.arith(ctx, x.Y)
		return boolInt(r != 0), err
	case syntax.TernQuest:
		c, err := s.arith(ctx, x.X)
		if err != nil {
			return 0, err
		}
		branches, ok := x.Y.(*syntax.BinaryArithm)
		if !ok || branches.Op != syntax.TernColon {
			return 0, shellerr.New(shellerr.CommandError, "malformed ternary")
		}
		if c != 0 {
			return s.arith(ctx, branches.X)
		}
		return s.arith(ctx, branches.Y)
	case syntax.Assgn, syntax.AddAssgn, syntax.SubAssgn, syntax.MulAssgn, syntax.QuoAssgn,
		syntax.RemAssgn, syntax.AndAssgn, syntax.OrAssgn, syntax.XorAssgn, syntax.ShlAssgn, syntax.ShrAssgn:
		return s.assignArith(ctx, x)
	}

	l, err := s.arith(ctx, x.X)
	if err != nil {
		return 0, err
	}
	r, err := s.arith(ctx, x.Y)
	if err != nil {
		return 0, err
	}
	return applyArith(x.Op, l, r)
}

func applyArith(op syntax.BinAritOperator, l, r int64) (int64, error) {
	switch op {
	case syntax.Add:
		return l + r, nil
	case syntax.Sub:
		return l - r, nil
	case syntax.Mul:
		return l * r, nil
	case syntax.Quo, syntax.Rem:
		if r == 0 {
			return 0, shellerr.New(shellerr.CommandError, "division by zero")
		}
		if op == syntax.Quo {
			return l / r, nil
		}
		return l % r, nil
	case syntax.Pow:
		if r < 0 {
			return 0, shellerr.New(shellerr.CommandError, "exponent less than 0")
		}
		out := int64(1)
		for ; r > 0; r-- {
			out *= l
		}
		return out, nil
	case syntax.Eql:
		return boolInt(l == r), nil
	case syntax.Neq:
		return boolInt(l != r), nil
	case syntax.Lss:
		return boolInt(l < r), nil
	case syntax.Leq:
		return boolInt(l <= r), nil
	case syntax.Gtr:
		return boolInt(l > r), nil
	case syntax.Geq:
		return boolInt(l >= r), nil
	case syntax.And:
		return l & r, nil
	case syntax.Or:
		return l | r, nil
	case syntax.Xor:
		return l ^ r, nil
	case syntax.Shl:
		return l << uint64(r&63), nil
	case syntax.Shr:
		return l >> uint64(r&63), nil
	case syntax.Comma:
		return r, nil
	}
	return 0, shellerr.New(shellerr.CommandError, "unsupported operator %s", op)
}

var assignOps = map[syntax.BinAritOperator]syntax.BinAritOperator{
	syntax.AddAssgn: syntax.Add,
	syntax.SubAssgn: syntax.Sub,
	syntax.MulAssgn: syntax.Mul,
	syntax.QuoAssgn: syntax.Quo,
	syntax.RemAssgn: syntax.Rem,
	syntax.AndAssgn: syntax.And,
	syntax.OrAssgn:  syntax.Or,
	syntax.XorAssgn: syntax.Xor,
	syntax.ShlAssgn: syntax.Shl,
	syntax.ShrAssgn: syntax.Shr,
}

func (s *Session) assignArith(ctx context.Context, x *syntax.BinaryArithm) (int64, error) {
	name, ok := arithName(x.X)
	if !ok {
		return 0, shellerr.New(shellerr.CommandError, "%s: left side must be a variable", x.Op)
	}
	r, err := s.arith(ctx, x.Y)
	if err != nil {
		return 0, err
	}
	if op, ok := assignOps[x.Op]; ok {
		l, err := s.arithValue(name, 0)
		if err != nil {
			return 0, err
		}
		if r, err = applyArith(op, l, r); err != nil {
			return 0, err
		}
	}
	s.env.Set(name, r)
	return r, nil
}
