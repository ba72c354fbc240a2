package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type named string

func (n named) Name() string                             { return string(n) }
func (n named) Description() string                      { return "desc " + string(n) }
func (n named) Run(context.Context, *Invocation) error { return nil }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(named("b")))
	require.NoError(t, r.Register(named("a")))
	assert.Error(t, r.Register(named("a")))

	all := r.GetAll()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Name())
	assert.Nil(t, r.Get("missing"))

	r.Replace([]Command{named("c")})
	assert.Equal(t, 1, r.Len())
	assert.NotNil(t, r.Get("c"))
}

func TestApplyOrder(t *testing.T) {
	var order []string
	mw := func(tag string) Middleware {
		return func(c Command) Command {
			return Wrap(c, func(ctx context.Context, inv *Invocation) error {
				order = append(order, tag)
				return c.Run(ctx, inv)
			})
		}
	}
	c := Apply(named("x"), mw("inner"), mw("outer"))
	require.NoError(t, c.Run(context.Background(), &Invocation{}))
	assert.Equal(t, []string{"outer", "inner"}, order)
	assert.Equal(t, named("x"), Root(c))
	assert.Equal(t, "desc x", c.Description())
}
