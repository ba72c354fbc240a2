package script

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FUFSoB/cli-bot-discord/internal/graph"
	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
)

func TestControlFlow(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{"if", "if true; then echo a; else echo b; fi", []string{"a"}},
		{"elif", "x=2\nif [ $x -eq 1 ]; then echo one\nelif [ $x -eq 2 ]; then echo two\nelse echo many\nfi", []string{"two"}},
		{"failing condition", "if nosuch; then echo a; else echo b; fi", []string{"b"}},
		{"negation", "if ! false; then echo yes; fi", []string{"yes"}},
		{"and or", "true && echo and\nfalse || echo or\nfalse && echo never", []string{"and", "or"}},
		{"for index", `for x in a b c; do echo "$i:$x"; done`, []string{"0:a", "1:b", "2:c"}},
		{"nested loop index", "for a in x y; do for b in p q; do true; done; echo $a$i; done", []string{"x0", "y1"}},
		{"loop index restored", "i=5; for x in a; do true; done; echo $i", []string{"5"}},
		{"loop index unset after", `for x in a; do true; done; echo "[$i]"`, []string{"[]"}},
		{"for break", "for x in 1 2 3 4; do [ $x -eq 3 ] && break; echo $x; done", []string{"1", "2"}},
		{"for continue", "for x in 1 2 3; do [ $x -eq 2 ] && continue; echo $x; done", []string{"1", "3"}},
		{"nested break", "for a in 1 2; do for b in x y; do echo $a$b; break 2; done; done", []string{"1x"}},
		{"while", "n=0\nwhile [ $n -lt 3 ]; do n=$((n + 1)); done\necho $n", []string{"3"}},
		{"until", "n=5\nuntil [ $n -le 2 ]; do n=$((n - 1)); done\necho $n", []string{"2"}},
		{"c-style for", "for ((k = 0; k < 3; k++)); do echo $k; done", []string{"0", "1", "2"}},
		{"case", "case rock in p*) echo paper;; r*) echo rock;; *) echo other;; esac", []string{"rock"}},
		{"case default", "case zz in a) echo a;; *) echo other;; esac", []string{"other"}},
		{"case fallthrough", "case a in a) echo one;& b) echo two;; c) echo three;; esac", []string{"one", "two"}},
		{"subshell", "x=1\n(x=2; echo $x)\necho $x", []string{"2", "1"}},
		{"block", "{ echo a; echo b; }", []string{"a", "b"}},
		{"status", "false\necho $?\ntrue\necho $?", []string{"1", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			assert.Equal(t, tt.want, h.texts(tt.src))
		})
	}
}

func TestFunctions(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{"arguments", "greet() { echo \"hi $1 of $#\"; }\ngreet bob carol", []string{"hi bob of 2"}},
		{"closure by reference", "x=1\nf() { echo $x; }\nx=2\nf", []string{"2"}},
		{"counter", "n=0\ninc() { n=$((n + 1)); }\ninc; inc; inc\necho $n", []string{"3"}},
		{"local", "v=outer\nf() { local v=inner; echo $v; }\nf\necho $v", []string{"inner", "outer"}},
		{"return values", "f() { echo a; return b c; echo never; }\nf", []string{"a", "b", "c"}},
		{"return from pipe", "f() { echo piped | return; }\nx=$(f)\necho got $x", []string{"got piped"}},
		{"all args", `f() { for a in "$@"; do echo "<$a>"; done; }` + "\nf 'a b' c", []string{"<a b>", "<c>"}},
		{"top level return", "echo a\nreturn b\necho never", []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			assert.Equal(t, tt.want, h.texts(tt.src))
		})
	}
}

func TestLimits(t *testing.T) {
	h := newHarness(t, WithLoopLimit(5))
	oc := h.run("while true; do x=1; done")
	require.Error(t, oc.Err)
	assert.True(t, shellerr.Is(oc.Err, shellerr.CommandError))

	oc = h.run("f() { f; }\nf")
	require.Error(t, oc.Err)
	assert.Contains(t, oc.Err.Error(), "maximum call depth")

	oc = h.run("range 10")
	require.Error(t, oc.Err)

	oc = h.run("echo hi &")
	require.Error(t, oc.Err)
	oc = h.run("echo hi > out.txt")
	require.Error(t, oc.Err)
}

func TestExpansion(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{"trim and case", "s=hello.world.txt\necho ${s%.*} ${s##*.} ${s^^}", []string{"hello.world txt HELLO.WORLD.TXT"}},
		{"length slice replace", "s=hello.world.txt\necho ${#s} ${s:0:5} ${s/world/there}", []string{"15 hello hello.there.txt"}},
		{"defaults", "echo ${u:-fallback}\necho ${u:=kept}\necho $u", []string{"fallback", "kept", "kept"}},
		{"alternate", "v=1\necho \"[${v:+set}]\" \"[${w:+set}]\"", []string{"[set] []"}},
		{"indirect", "name=target\ntarget=found\necho ${!name}", []string{"found"}},
		{"arrays", "arr=(a b c)\necho ${arr[1]} ${#arr[@]}\narr+=(d)\necho \"${arr[@]}\"", []string{"b 3", "a b c d"}},
		{"word splitting", "v='a  b'\nfor w in $v; do echo \"<$w>\"; done\nfor w in \"$v\"; do echo \"<$w>\"; done", []string{"<a>", "<b>", "<a  b>"}},
		{"command substitution", "x=$(echo inner)\necho \"outer $x\"", []string{"outer inner"}},
		{"ansi c", "echo $'a\\tb'", []string{"a\tb"}},
		{"arithmetic", "echo $(( 2 ** 10 + 7 % 4 ))\necho $(( 7 / 2 )) $(( 1 < 2 ? 10 : 20 ))", []string{"1027", "3 10"}},
		{"arithmetic assignment", "x=5\n(( x += 3 ))\necho $x", []string{"8"}},
		{"positional default", "echo ${1:-none}", []string{"none"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			assert.Equal(t, tt.want, h.texts(tt.src))
		})
	}
}

func TestExpansionErrors(t *testing.T) {
	h := newHarness(t)
	oc := h.run("echo $(( 1 / 0 ))")
	assert.True(t, shellerr.Is(oc.Err, shellerr.CommandError))

	oc = h.run("x=abc\necho $(( x + 1 ))")
	assert.True(t, shellerr.Is(oc.Err, shellerr.TypeCoercionError))

	oc = h.run("echo ${missing:?not set}")
	require.Error(t, oc.Err)
	assert.Contains(t, oc.Err.Error(), "not set")
}

func TestTypedValues(t *testing.T) {
	h := newHarness(t)

	oc := h.run("r=$(cat /current/guild/roles/%name=A%return)\necho \"$r\"")
	require.NoError(t, oc.Err)
	require.Len(t, oc.Output, 1)
	role, ok := oc.Output[0].(*graph.RoleNode)
	require.True(t, ok, "got %T", oc.Output[0])
	assert.Equal(t, "Admin", role.Name())

	oc = h.run("echo $(( 40 + 2 ))")
	require.NoError(t, oc.Err)
	assert.Equal(t, []any{int64(42)}, oc.Output)

	oc = h.run(`for r in $(ls /current/guild/roles/%name=[^.]); do echo "$r"; done`)
	require.NoError(t, oc.Err)
	require.Len(t, oc.Output, 3)
	names := make([]string, len(oc.Output))
	for i, v := range oc.Output {
		n, ok := v.(*graph.RoleNode)
		require.True(t, ok, "got %T", v)
		names[i] = n.Name()
	}
	assert.Equal(t, []string{"Admin", "Member", "@everyone"}, names)
}

func TestConditions(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"[ a = a ]", true},
		{"[ a != a ]", false},
		{"[ 10 -gt 9 ]", true},
		{"[ -z '' ]", true},
		{"[ -n '' ]", false},
		{"[ b in a,b,c ]", true},
		{"[ d in 'a b c' ]", false},
		{"[ 1 -eq 1 -a 2 -eq 3 ]", false},
		{"[ 1 -eq 1 -o 2 -eq 3 ]", true},
		{"[ ! '(' 1 -eq 2 ')' ]", true},
		{"test x == x", true},
		{"[[ 10 > 9 ]]", true},
		{"[[ abc == a* ]]", true},
		{"[[ abc == 'a*' ]]", false},
		{"[[ abc =~ ^a.c$ ]]", true},
		{"[[ -n x && ! -z y ]]", true},
		{"[[ -v undefined ]]", false},
		{"[[ 2 -le 1 || 3 -ge 3 ]]", true},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			h := newHarness(t)
			got := h.texts(tt.src + " && echo yes || echo no")
			assert.Equal(t, []string{map[bool]string{true: "yes", false: "no"}[tt.want]}, got)
		})
	}
}

func TestBracketRequiresClose(t *testing.T) {
	h := newHarness(t)
	oc := h.run("[ a = a")
	require.Error(t, oc.Err)
	assert.True(t, strings.Contains(oc.Err.Error(), "missing ]"))
}
