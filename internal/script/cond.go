package script

import (
	"context"
	"path"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
)

func (s *Session) testExpr(ctx context.Context, x syntax.TestExpr) (bool, error) {
	switch x := x.(type) {
	case *syntax.Word:
		v, err := s.expandOne(ctx, x)
		return !isEmpty(v) && Str(v) != "", err
	case *syntax.ParenTest:
		return s.testExpr(ctx, x.X)
	case *syntax.UnaryTest:
		return s.unaryTest(ctx, x)
	case *syntax.BinaryTest:
		return s.binaryTest(ctx, x)
	}
	return false, shellerr.New(shellerr.CommandError, "unsupported test %T", x)
}

func (s *Session) unaryTest(ctx context.Context, x *syntax.UnaryTest) (bool, error) {
	if x.Op == syntax.TsNot {
		ok, err := s.testExpr(ctx, x.X)
		return !ok, err
	}
	w, ok := x.X.(*syntax.Word)
	if !ok {
		return false, shellerr.New(shellerr.CommandError, "%s: expected a word", x.Op)
	}
	switch x.Op {
	case syntax.TsVarSet:
		name, err := s.expandString(ctx, w)
		if err != nil {
			return false, err
		}
		_, set := s.lookup(name)
		return set, nil
	case syntax.TsEmpStr, syntax.TsNempStr:
		v, err := s.expandString(ctx, w)
		if err != nil {
			return false, err
		}
		return (v == "") == (x.Op == syntax.TsEmpStr), nil
	}
	return false, shellerr.New(shellerr.CommandError, "unsupported test operator %s", x.Op)
}

func (s *Session) binaryTest(ctx context.Context, x *syntax.BinaryTest) (bool, error) {
	switch x.Op {
	case syntax.AndTest, syntax.OrTest:
		l, err := s.testExpr(ctx, x.X)
		if err != nil {
			return false, err
		}
		if l == (x.Op == syntax.OrTest) {
			return l, nil
		}
		return s.testExpr(ctx, x.Y)
	}

	lw, lok := x.X.(*syntax.Word)
	rw, rok := x.Y.(*syntax.Word)
	if !lok || !rok {
		return false, shellerr.New(shellerr.CommandError, "%s: expected words", x.Op)
	}
	l, err := s.expandString(ctx, lw)
	if err != nil {
		return false, err
	}
	r, err := s.expandString(ctx, rw)
	if err != nil {
		return false, err
	}

	switch x.Op {
	case syntax.TsMatch, syntax.TsMatchShort, syntax.TsNoMatch:
		ok := l == r
		if !ok && !quotedWord(rw) {
			ok, _ = path.Match(r, l)
		}
		return ok == (x.Op != syntax.TsNoMatch), nil
	case syntax.TsReMatch:
		re, err := regexp.Compile(r)
		if err != nil {
			return false, shellerr.Wrap(shellerr.CommandError, err, "=~: bad pattern %q", r)
		}
		return re.MatchString(l), nil
	case syntax.TsBefore, syntax.TsAfter:
		if a, ok := toInt(l); ok {
			if b, ok := toInt(r); ok {
				return (a < b) == (x.Op == syntax.TsBefore) && a != b, nil
			}
		}
		if x.Op == syntax.TsBefore {
			return l < r, nil
		}
		return l > r, nil
	case syntax.TsEql, syntax.TsNeq, syntax.TsLss, syntax.TsLeq, syntax.TsGtr, syntax.TsGeq:
		return compareInts(x.Op.String(), l, r)
	}
	return false, shellerr.New(shellerr.CommandError, "unsupported test operator %s", x.Op)
}

func quotedWord(w *syntax.Word) bool {
	for _, p := range w.Parts {
		switch p.(type) {
		case *syntax.SglQuoted, *syntax.DblQuoted:
			return true
		}
	}
	return false
}

func compareInts(op string, l, r any) (bool, error) {
	a, ok := toInt(l)
	if !ok {
		return false, shellerr.New(shellerr.TypeCoercionError, "%s: integer expected, got %q", op, Str(l))
	}
	b, ok := toInt(r)
	if !ok {
		return false, shellerr.New(shellerr.TypeCoercionError, "%s: integer expected, got %q", op, Str(r))
	}
	switch op {
	case "-eq":
		return a == b, nil
	case "-ne":
		return a != b, nil
	case "-lt":
		return a < b, nil
	case "-le":
		return a <= b, nil
	case "-gt":
		return a > b, nil
	case "-ge":
		return a >= b, nil
	}
	return false, shellerr.New(shellerr.CommandError, "unknown comparison %s", op)
}

// testParser evaluates the tokens of `[`/`test`.
type testParser struct {
	toks []any
	pos  int
}

func evalTest(toks []any) (bool, error) {
	if n := len(toks); n > 0 && Str(toks[n-1]) == "]" {
		toks = toks[:n-1]
	}
	if len(toks) == 0 {
		return false, nil
	}
	p := &testParser{toks: toks}
	ok, err := p.or()
	if err != nil {
		return false, err
	}
	if p.pos < len(p.toks) {
		return false, shellerr.New(shellerr.CommandError, "[: unexpected %q", Str(p.toks[p.pos]))
	}
	return ok, nil
}

func (p *testParser) peek() (string, bool) {
	if p.pos >= len(p.toks) {
		return "", false
	}
	return Str(p.toks[p.pos]), true
}

func (p *testParser) next() (any, bool) {
	if p.pos >= len(p.toks) {
		return nil, false
	}
	t := p.toks[p.pos]
	p.pos++
	return t, true
}

func (p *testParser) or() (bool, error) {
	ok, err := p.and()
	for err == nil {
		if t, _ := p.peek(); t != "-o" {
			break
		}
		p.pos++
		var r bool
		if r, err = p.and(); err == nil {
			ok = ok || r
		}
	}
	return ok, err
}

func (p *testParser) and() (bool, error) {
	ok, err := p.not()
	for err == nil {
		if t, _ := p.peek(); t != "-a" {
			break
		}
		p.pos++
		var r bool
		if r, err = p.not(); err == nil {
			ok = ok && r
		}
	}
	return ok, err
}

func (p *testParser) not() (bool, error) {
	if t, ok := p.peek(); ok && t == "!" && p.pos+1 < len(p.toks) {
		p.pos++
		v, err := p.not()
		return !v, err
	}
	return p.primary()
}

var testBinary = map[string]bool{
	"==": true, "=": true, "!=": true, "in": true,
	"-eq": true, "-ne": true, "-lt": true, "-le": true, "-gt": true, "-ge": true,
}

func (p *testParser) primary() (bool, error) {
	t, ok := p.peek()
	if !ok {
		return false, shellerr.New(shellerr.CommandError, "[: missing argument")
	}

	if t == "(" {
		p.pos++
		v, err := p.or()
		if err != nil {
			return false, err
		}
		if c, _ := p.peek(); c != ")" {
			return false, shellerr.New(shellerr.CommandError, "[: missing )")
		}
		p.pos++
		return v, nil
	}

	// -z and -n are operators unless they are the left side of a comparison.
	if (t == "-z" || t == "-n") && p.pos+1 < len(p.toks) {
		comparison := testBinary[Str(p.toks[p.pos+1])] && p.pos+2 < len(p.toks)
		if !comparison {
			p.pos++
			v, _ := p.next()
			return isEmpty(v) == (t == "-z"), nil
		}
	}

	left, _ := p.next()
	op, ok := p.peek()
	if !ok || !testBinary[op] {
		return !isEmpty(left), nil
	}
	p.pos++

	if op == "in" {
		return p.membership(left)
	}
	right, ok := p.next()
	if !ok {
		return false, shellerr.New(shellerr.CommandError, "[: %s: missing right operand", op)
	}
	switch op {
	case "==", "=":
		return Str(left) == Str(right), nil
	case "!=":
		return Str(left) != Str(right), nil
	}
	return compareInts(op, left, right)
}

// membership reads operands up to -a, -o or ) and checks left against them.
// Operands split on whitespace, and on commas unless left contains one.
func (p *testParser) membership(left any) (bool, error) {
	needle := Str(left)
	commas := !strings.Contains(needle, ",")
	var items []string
	for {
		t, ok := p.peek()
		if !ok || t == "-a" || t == "-o" || t == ")" {
			break
		}
		tok, _ := p.next()
		for _, v := range flatten([]any{tok}) {
			for _, f := range strings.Fields(Str(v)) {
				if commas {
					items = append(items, strings.Split(f, ",")...)
				} else {
					items = append(items, f)
				}
			}
		}
	}
	if len(items) == 0 {
		return false, shellerr.New(shellerr.CommandError, "[: in: missing operands")
	}
	for _, it := range items {
		if it == needle {
			return true, nil
		}
	}
	return false, nil
}
