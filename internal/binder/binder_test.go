package binder

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FUFSoB/cli-bot-discord/internal/definition"
	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func bind(t *testing.T, header string, tokens ...any) (Values, error) {
	t.Helper()
	d, err := definition.ParseHeader(header, "test")
	require.NoError(t, err)
	return Bind(d, tokens, WithClock(func() time.Time { return now }))
}

func TestZeroOrMorePreservesOrder(t *testing.T) {
	header := "! sum\n; numbers | type=int | nargs=*"
	for n := 0; n <= 6; n++ {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			tokens := make([]any, n)
			want := make([]any, n)
			for i := 0; i < n; i++ {
				tokens[i] = fmt.Sprint(n - i)
				want[i] = int64(n - i)
			}
			vals, err := bind(t, header, tokens...)
			require.NoError(t, err)
			assert.Equal(t, want, vals.List("numbers"))
		})
	}
}

func TestGreedyPositionals(t *testing.T) {
	header := "! mv\n; first\n; middle | nargs=*\n; last"
	vals, err := bind(t, header, "a", "b", "c", "d")
	require.NoError(t, err)

	want := map[string]any{"first": "a", "middle": []any{"b", "c"}, "last": "d"}
	if diff := cmp.Diff(want, vals.Args); diff != "" {
		t.Errorf("bound mismatch (-want +got):\n%s", diff)
	}

	vals, err = bind(t, header, "a", "d")
	require.NoError(t, err)
	assert.Equal(t, []any{}, vals.List("middle"))
}

func TestOptionalPositional(t *testing.T) {
	header := "! greet\n; name\n; greeting | nargs=? | default=hello"

	vals, err := bind(t, header, "bob")
	require.NoError(t, err)
	assert.Equal(t, "hello", vals.String("greeting"))

	vals, err = bind(t, header, "bob", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", vals.String("greeting"))
}

func TestFlags(t *testing.T) {
	header := `! send
; text | nargs=*
; -c --channel | type=id
; -r --reply | action=store_true
; -t --title | default=untitled
; -e --emoji | nargs=*`

	vals, err := bind(t, header, "hello", "-r", "--channel", "123456789012345678", "world", "-e", "a", "b", "--title=Hi there")
	require.NoError(t, err)

	assert.Equal(t, []any{"hello", "world"}, vals.List("text"))
	assert.Equal(t, "123456789012345678", vals.String("channel"))
	assert.True(t, vals.Bool("reply"))
	assert.Equal(t, "Hi there", vals.String("title"))
	assert.Equal(t, []any{"a", "b"}, vals.List("emoji"))

	vals, err = bind(t, header)
	require.NoError(t, err)
	assert.False(t, vals.Bool("reply"))
	assert.Equal(t, "untitled", vals.String("title"))
	assert.Nil(t, vals.Get("channel"))
	assert.Equal(t, []any{}, vals.List("emoji"))
}

func TestDoubleDashAndNegativeNumbers(t *testing.T) {
	header := "! calc\n; values | nargs=* | type=int\n; -v --verbose | action=store_true"
	vals, err := bind(t, header, "-5", "--", "-v")
	require.Error(t, err)
	assert.True(t, shellerr.Is(err, shellerr.TypeCoercionError))

	vals, err = bind(t, header, "-5", "3", "-v")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(-5), int64(3)}, vals.List("values"))
	assert.True(t, vals.Bool("verbose"))
}

func TestDashedTextIsPositional(t *testing.T) {
	header := "! say\n; words | nargs=*\n; -l --loud | action=store_true"
	vals, err := bind(t, header, "- Spotify", "-1 apples", "-2.5", "-", "-l")
	require.NoError(t, err)
	assert.Equal(t, []any{"- Spotify", "-1 apples", "-2.5", "-"}, vals.List("words"))
	assert.True(t, vals.Bool("loud"))

	for _, tok := range []string{"-inf", "-nan", "-x", "--quiet", "--mode=fast and loud"} {
		_, err := bind(t, header, tok)
		require.Error(t, err, tok)
		assert.True(t, shellerr.Is(err, shellerr.UnrecognizedArgumentError), "%s: got %v", tok, err)
	}
}

func TestTypedTokensPassThrough(t *testing.T) {
	type node struct{ name string }
	n := &node{name: "general"}

	vals, err := bind(t, "! show\n; target", n)
	require.NoError(t, err)
	assert.Same(t, n, vals.Get("target"))

	vals, err = bind(t, "! count\n; amount | type=int", int64(3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), vals.Get("amount"))
}

func TestBindErrors(t *testing.T) {
	tests := []struct {
		name   string
		header string
		tokens []any
		kind   shellerr.Kind
	}{
		{"missing required", "! a\n; x\n; y", []any{"1"}, shellerr.MissingArgumentError},
		{"missing one-or-more", "! a\n; x | nargs=+", nil, shellerr.MissingArgumentError},
		{"flag without value", "! a\n; -n --name", []any{"-n"}, shellerr.MissingArgumentError},
		{"bad int", "! a\n; x | type=int", []any{"many"}, shellerr.TypeCoercionError},
		{"bad choice", "! a\n; x | choices=rock,paper", []any{"lizard"}, shellerr.InvalidChoiceError},
		{"unknown flag", "! a\n; x | nargs=?", []any{"--force"}, shellerr.UnrecognizedArgumentError},
		{"surplus", "! a\n; x", []any{"1", "2"}, shellerr.UnrecognizedArgumentError},
		{"store_true value", "! a\n; --yes | action=store_true", []any{"--yes=1"}, shellerr.UnrecognizedArgumentError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bind(t, tt.header, tt.tokens...)
			require.Error(t, err)
			assert.True(t, shellerr.Is(err, tt.kind), "got %v", err)
		})
	}
}

func TestIDAndTryID(t *testing.T) {
	_, err := bind(t, "! whois\n; user | type=id", "somebody")
	require.Error(t, err)
	assert.True(t, shellerr.Is(err, shellerr.TypeCoercionError))
	assert.Contains(t, err.Error(), "argument user")

	vals, err := bind(t, "! whois\n; user | type=try_id", "somebody")
	require.NoError(t, err)
	assert.Equal(t, "somebody", vals.String("user"))

	vals, err = bind(t, "! whois\n; user | type=try_id", "<@!123456789012345678>")
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678", vals.String("user"))
}

func TestTimeArgument(t *testing.T) {
	vals, err := bind(t, "! remind\n; when | type=time\n; text | nargs=*", "10m", "stretch")
	require.NoError(t, err)
	assert.Equal(t, now.Add(10*time.Minute), vals.Get("when"))
}

func TestHelp(t *testing.T) {
	_, err := bind(t, "! a\n; x", "--help")
	assert.ErrorIs(t, err, ErrHelp)
}
