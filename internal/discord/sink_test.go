package discord

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FUFSoB/cli-bot-discord/internal/graph"
	"github.com/FUFSoB/cli-bot-discord/internal/sink"
	"github.com/FUFSoB/cli-bot-discord/pkg/retrylimit"
)

type sentMessage struct {
	channel string
	msg     *discordgo.MessageSend
}

type fakeREST struct {
	mu        sync.Mutex
	sent      []sentMessage
	dms       []string
	hooks     []*discordgo.Webhook
	created   int
	executed  []*discordgo.WebhookParams
	reactions []string
	failures  []error
	member    *discordgo.Member
}

func (f *fakeREST) fail() error {
	if len(f.failures) == 0 {
		return nil
	}
	err := f.failures[0]
	f.failures = f.failures[1:]
	return err
}

func (f *fakeREST) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return nil, err
	}
	f.sent = append(f.sent, sentMessage{channelID, data})
	return &discordgo.Message{ID: "m" + string(rune('0'+len(f.sent))), ChannelID: channelID}, nil
}

func (f *fakeREST) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dms = append(f.dms, recipientID)
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}

func (f *fakeREST) ChannelWebhooks(channelID string, _ ...discordgo.RequestOption) ([]*discordgo.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hooks, nil
}

func (f *fakeREST) WebhookCreate(channelID, name, avatar string, _ ...discordgo.RequestOption) (*discordgo.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	h := &discordgo.Webhook{ID: "hook", Token: "token", Name: name, ChannelID: channelID}
	f.hooks = append(f.hooks, h)
	return h, nil
}

func (f *fakeREST) WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, data)
	return &discordgo.Message{ID: "w1", ChannelID: "c1"}, nil
}

func (f *fakeREST) MessageReactionAdd(channelID, messageID, emojiID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return err
	}
	f.reactions = append(f.reactions, channelID+"/"+messageID+"/"+emojiID)
	return nil
}

func (f *fakeREST) GuildMember(guildID, userID string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	if f.member == nil {
		return nil, restErr(http.StatusNotFound)
	}
	return f.member, nil
}

func restErr(code int) error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: code, Status: http.StatusText(code)}}
}

func newTestSink(rest REST) *Sink {
	cfg := retrylimit.DefaultRetryConfig()
	cfg.MaxAttempts = 3
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = time.Millisecond
	cfg.RateLimitDelay = time.Millisecond
	return NewSink(rest, retrylimit.NewAdaptiveLimiter(100, 1, 100, 1, 0.5), WithRetry(cfg))
}

var guildCtx = graph.Context{UserID: "u1", GuildID: "g1", ChannelID: "c1", MessageID: "msg1"}

func TestSendReply(t *testing.T) {
	rest := &fakeREST{}
	s := newTestSink(rest)

	h, err := s.Send(context.Background(), guildCtx, sink.Delivery{
		Content: "hello",
		Mode:    sink.Reply,
		ReplyTo: &sink.Handle{ChannelID: "c1", MessageID: "msg1"},
	})
	require.NoError(t, err)
	assert.Equal(t, sink.Handle{ChannelID: "c1", MessageID: "m1"}, h)

	require.Len(t, rest.sent, 1)
	got := rest.sent[0]
	assert.Equal(t, "c1", got.channel)
	assert.Equal(t, "hello", got.msg.Content)
	require.NotNil(t, got.msg.Reference)
	assert.Equal(t, "msg1", got.msg.Reference.MessageID)
	assert.Equal(t, "g1", got.msg.Reference.GuildID)
	require.NotNil(t, got.msg.Reference.FailIfNotExists)
	assert.False(t, *got.msg.Reference.FailIfNotExists)
}

func TestSendModes(t *testing.T) {
	rest := &fakeREST{}
	s := newTestSink(rest)
	ctx := context.Background()

	_, err := s.Send(ctx, guildCtx, sink.Delivery{Content: "psst", Mode: sink.DM})
	require.NoError(t, err)
	_, err = s.Send(ctx, guildCtx, sink.Delivery{Content: "psst", Mode: sink.DM, UserID: "u2"})
	require.NoError(t, err)
	_, err = s.Send(ctx, guildCtx, sink.Delivery{Content: "there", Mode: sink.Channel, ChannelID: "c9"})
	require.NoError(t, err)

	assert.Equal(t, []string{"u1", "u2"}, rest.dms)
	require.Len(t, rest.sent, 3)
	assert.Equal(t, []string{"dm-u1", "dm-u2", "c9"}, []string{rest.sent[0].channel, rest.sent[1].channel, rest.sent[2].channel})
	assert.Nil(t, rest.sent[2].msg.Reference)

	h, err := s.Send(ctx, guildCtx, sink.Delivery{})
	require.NoError(t, err)
	assert.True(t, h.IsZero())
	assert.Len(t, rest.sent, 3, "empty deliveries are not sent")
}

func TestSendWebhook(t *testing.T) {
	rest := &fakeREST{
		hooks:  []*discordgo.Webhook{{ID: "other", Name: "someone else", Token: "x"}},
		member: &discordgo.Member{Nick: "Ally", User: &discordgo.User{ID: "u1", Username: "alice"}},
	}
	s := newTestSink(rest)
	ctx := context.Background()

	for range 2 {
		_, err := s.Send(ctx, guildCtx, sink.Delivery{Content: "as you", Mode: sink.Webhook})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, rest.created, "the webhook is created once and reused")
	require.Len(t, rest.executed, 2)
	assert.Equal(t, "Ally", rest.executed[0].Username)
	assert.Equal(t, "as you", rest.executed[0].Content)

	// webhooks need a guild channel
	dm := graph.Context{UserID: "u1", ChannelID: "dm1"}
	_, err := s.Send(ctx, dm, sink.Delivery{Content: "hi", Mode: sink.Webhook})
	require.NoError(t, err)
	require.Len(t, rest.sent, 1)
	assert.Equal(t, "dm1", rest.sent[0].channel)
}

func TestSendRetries(t *testing.T) {
	rest := &fakeREST{failures: []error{restErr(http.StatusBadGateway), restErr(http.StatusTooManyRequests)}}
	s := newTestSink(rest)

	_, err := s.Send(context.Background(), guildCtx, sink.Delivery{Content: "eventually", Mode: sink.Channel})
	require.NoError(t, err)
	assert.Len(t, rest.sent, 1)

	rest.failures = []error{restErr(http.StatusForbidden)}
	_, err = s.Send(context.Background(), guildCtx, sink.Delivery{Content: "denied", Mode: sink.Channel})
	require.Error(t, err)
	var re *discordgo.RESTError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusForbidden, re.Response.StatusCode)
	assert.Len(t, rest.sent, 1, "client errors are not retried")
}

func TestReact(t *testing.T) {
	rest := &fakeREST{}
	s := newTestSink(rest)
	require.NoError(t, s.React(context.Background(), sink.Handle{ChannelID: "c1", MessageID: "m1"}, "thonk:5"))
	assert.Equal(t, []string{"c1/m1/thonk:5"}, rest.reactions)
}

func TestSendTruncates(t *testing.T) {
	rest := &fakeREST{}
	s := newTestSink(rest)
	long := strings.Repeat("é", maxContentLength+10)
	_, err := s.Send(context.Background(), guildCtx, sink.Delivery{Content: long, Mode: sink.Channel})
	require.NoError(t, err)
	got := []rune(rest.sent[0].msg.Content)
	assert.Len(t, got, maxContentLength)
	assert.Equal(t, '…', got[len(got)-1])
}

func TestEmbed(t *testing.T) {
	got := Embed(sink.Payload{
		Title:       "Title",
		Description: "Body",
		Color:       0xff0000,
		URL:         "https://example.com",
		Thumbnail:   "https://example.com/t.png",
		Image:       "https://example.com/i.png",
		Author:      sink.Author{Name: "alice", IconURL: "https://example.com/a.png"},
		Footer:      sink.Footer{Text: "id 1"},
	})
	want := &discordgo.MessageEmbed{
		Type:        discordgo.EmbedTypeRich,
		Title:       "Title",
		Description: "Body",
		Color:       0xff0000,
		URL:         "https://example.com",
		Thumbnail:   &discordgo.MessageEmbedThumbnail{URL: "https://example.com/t.png"},
		Image:       &discordgo.MessageEmbedImage{URL: "https://example.com/i.png"},
		Author:      &discordgo.MessageEmbedAuthor{Name: "alice", IconURL: "https://example.com/a.png"},
		Footer:      &discordgo.MessageEmbedFooter{Text: "id 1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Embed mismatch (-want +got):\n%s", diff)
	}

	bare := Embed(sink.Payload{Description: "only"})
	assert.Nil(t, bare.Thumbnail)
	assert.Nil(t, bare.Author)
	assert.Nil(t, bare.Footer)

	many := make([]sink.Payload, maxEmbeds+3)
	assert.Len(t, Embeds(many), maxEmbeds)
	assert.Nil(t, Embeds(nil))
}
