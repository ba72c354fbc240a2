package sink

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FUFSoB/cli-bot-discord/internal/graph"
	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
)

func TestRecorder(t *testing.T) {
	var out bytes.Buffer
	r := NewRecorder()
	r.Out = &out
	ctx := context.Background()
	gc := graph.Context{UserID: "u1", ChannelID: "c1"}

	h1, err := r.Send(ctx, gc, Delivery{Content: "hello", Mode: Reply})
	require.NoError(t, err)
	assert.Equal(t, Handle{ChannelID: "c1", MessageID: "sent-1"}, h1)

	h2, err := r.Send(ctx, gc, Delivery{Mode: DM, UserID: "u2", Embeds: []Payload{{Title: "T", Description: "line1\nline2", Footer: Footer{Text: "f"}}}})
	require.NoError(t, err)
	assert.Equal(t, "dm:u2", h2.ChannelID)

	h3, err := r.Send(ctx, gc, Delivery{Content: "x", Mode: Channel, ChannelID: "c9"})
	require.NoError(t, err)
	assert.Equal(t, "c9", h3.ChannelID)

	require.NoError(t, r.React(ctx, h1, "👍"))
	assert.Equal(t, []Reaction{{Handle: h1, Emoji: "👍"}}, r.Reactions())
	assert.Equal(t, []string{"hello", "", "x"}, r.Contents())
	assert.Equal(t, "hello\n┌ T\n│ line1\n│ line2\n└ f\nx\n[reacted 👍 to sent-1]\n", out.String())
}

func TestRecorderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRecorder().Send(ctx, graph.Context{}, Delivery{Content: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScriptedReader(t *testing.T) {
	r := NewScriptedReader(
		Input{Value: "maybe"},
		Input{Value: "rock", UserID: "other"},
		Input{Value: "Paper"},
	)
	ctx := context.Background()
	gc := graph.Context{UserID: "me"}

	in, err := r.Read(ctx, gc, ReadRequest{Choices: []string{"rock", "paper", "scissors"}})
	require.NoError(t, err)
	assert.Equal(t, "Paper", in.Value)
	assert.Equal(t, "me", in.UserID)

	in, err = r.Read(ctx, gc, ReadRequest{User: "other", Choices: []string{"rock"}})
	require.NoError(t, err)
	assert.Equal(t, "rock", in.Value)

	_, err = r.Read(ctx, gc, ReadRequest{Reactions: []string{"✅"}})
	assert.True(t, shellerr.Is(err, shellerr.TimeoutError))

	r.Push(Input{Value: "✅"})
	in, err = r.Read(ctx, gc, ReadRequest{Reactions: []string{"✅", "❌"}})
	require.NoError(t, err)
	assert.Equal(t, "✅", in.Value)
	assert.Len(t, r.Requests(), 4)
}

func TestModeAndDelivery(t *testing.T) {
	m := Reply | Webhook
	assert.True(t, m.Has(Reply))
	assert.True(t, m.Has(Webhook))
	assert.False(t, m.Has(DM))
	assert.True(t, Delivery{}.Empty())
	assert.False(t, Delivery{Embeds: []Payload{{}}}.Empty())
	assert.Equal(t, "T\nD", Payload{Title: "T", Description: "D"}.String())
}
