package discord

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/FUFSoB/cli-bot-discord/internal/config"
	"github.com/FUFSoB/cli-bot-discord/internal/graph"
	"github.com/FUFSoB/cli-bot-discord/internal/script"
	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
	"github.com/FUFSoB/cli-bot-discord/internal/sink"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestParsePrefix(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		ok      bool
	}{
		{"prefix", "$echo hi", "echo hi", true},
		{"prefix with space", "$   echo hi", "echo hi", true},
		{"mention", "<@42> echo hi", "echo hi", true},
		{"nickname mention", "<@!42>\necho hi", "echo hi", true},
		{"other mention", "<@7> echo hi", "", false},
		{"plain text", "echo hi", "", false},
		{"prefix only", "$", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePrefix(tt.content, "$", "42")
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

type fakeEvents struct {
	mu       sync.Mutex
	handlers map[int]interface{}
	next     int
	added    chan struct{}
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{handlers: make(map[int]interface{}), added: make(chan struct{}, 4)}
}

func (f *fakeEvents) AddHandler(h interface{}) func() {
	f.mu.Lock()
	id := f.next
	f.next++
	f.handlers[id] = h
	f.mu.Unlock()
	f.added <- struct{}{}
	return func() {
		f.mu.Lock()
		delete(f.handlers, id)
		f.mu.Unlock()
	}
}

func (f *fakeEvents) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

func (f *fakeEvents) emit(ev interface{}) {
	f.mu.Lock()
	hs := make([]interface{}, 0, len(f.handlers))
	for _, h := range f.handlers {
		hs = append(hs, h)
	}
	f.mu.Unlock()
	for _, h := range hs {
		switch fn := h.(type) {
		case func(*discordgo.Session, *discordgo.MessageCreate):
			if e, ok := ev.(*discordgo.MessageCreate); ok {
				fn(nil, e)
			}
		case func(*discordgo.Session, *discordgo.MessageReactionAdd):
			if e, ok := ev.(*discordgo.MessageReactionAdd); ok {
				fn(nil, e)
			}
		}
	}
}

func message(id, user, channel, content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: id, ChannelID: channel, Content: content, Author: &discordgo.User{ID: user},
	}}
}

type readResult struct {
	in  sink.Input
	err error
}

func startRead(ctx context.Context, r *Reader, c graph.Context, req sink.ReadRequest) <-chan readResult {
	out := make(chan readResult, 1)
	go func() {
		in, err := r.Read(ctx, c, req)
		out <- readResult{in, err}
	}()
	return out
}

func TestReadMessage(t *testing.T) {
	ev := newFakeEvents()
	r := NewReader(ev)
	c := graph.Context{UserID: "u1", ChannelID: "c1"}

	res := startRead(context.Background(), r, c, sink.ReadRequest{Choices: []string{"yes", "no"}, Timeout: time.Second})
	<-ev.added

	ev.emit(message("1", "u2", "c1", "yes"))   // someone else
	ev.emit(message("2", "u1", "c2", "yes"))   // another channel
	ev.emit(message("3", "u1", "c1", "maybe")) // not a choice
	ev.emit(message("4", "u1", "c1", "No"))

	got := <-res
	require.NoError(t, got.err)
	assert.Equal(t, sink.Input{Value: "No", UserID: "u1", Handle: sink.Handle{ChannelID: "c1", MessageID: "4"}}, got.in)
	assert.Zero(t, ev.count(), "handler removed after read")
}

func TestReadReaction(t *testing.T) {
	ev := newFakeEvents()
	r := NewReader(ev)
	c := graph.Context{UserID: "u1", ChannelID: "c1"}

	res := startRead(context.Background(), r, c, sink.ReadRequest{
		Reactions: []string{"👍", "👎"},
		Message:   &sink.Handle{ChannelID: "c1", MessageID: "m1"},
		Timeout:   time.Second,
	})
	<-ev.added

	react := func(msg, user, emoji string) *discordgo.MessageReactionAdd {
		return &discordgo.MessageReactionAdd{MessageReaction: &discordgo.MessageReaction{
			UserID: user, MessageID: msg, ChannelID: "c1", Emoji: discordgo.Emoji{Name: emoji},
		}}
	}
	ev.emit(message("x", "u1", "c1", "typed instead"))
	ev.emit(react("m2", "u1", "👍"))
	ev.emit(react("m1", "u1", "🎉"))
	ev.emit(react("m1", "u1", "👎"))

	got := <-res
	require.NoError(t, got.err)
	assert.Equal(t, "👎", got.in.Value)
	assert.Equal(t, "m1", got.in.Handle.MessageID)
}

func TestReadTimeout(t *testing.T) {
	ev := newFakeEvents()
	r := NewReader(ev)
	_, err := r.Read(context.Background(), graph.Context{UserID: "u1", ChannelID: "c1"}, sink.ReadRequest{Timeout: 10 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, shellerr.Is(err, shellerr.TimeoutError))
	assert.Zero(t, ev.count())
}

func TestReadCancelled(t *testing.T) {
	ev := newFakeEvents()
	r := NewReader(ev)
	ctx, cancel := context.WithCancel(context.Background())

	res := startRead(ctx, r, graph.Context{UserID: "u1", ChannelID: "c1"}, sink.ReadRequest{Timeout: time.Minute})
	<-ev.added
	cancel()

	got := <-res
	assert.ErrorIs(t, got.err, context.Canceled)
}

type fakeExecutor struct {
	mu       sync.Mutex
	runs     []script.Invocation
	reported []script.Outcome
	err      error
}

func (f *fakeExecutor) Execute(ctx context.Context, inv script.Invocation) script.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, inv)
	return script.Outcome{Err: f.err}
}

func (f *fakeExecutor) ReportError(ctx context.Context, c graph.Context, oc script.Outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reported = append(f.reported, oc)
	return nil
}

func newTestBot(t *testing.T, exec Executor) (*Bot, *graph.Fixture) {
	t.Helper()
	f, err := os.Open("../graph/testdata/guild.yaml")
	require.NoError(t, err)
	defer f.Close()
	fx, err := graph.LoadFixture(f)
	require.NoError(t, err)

	cfg := &config.Config{CommandPrefix: "$", DiscordGuildBlacklist: []string{"666"}}
	return NewBot(&discordgo.Session{State: fx.State}, cfg, exec, nil), fx
}

func TestBotHandle(t *testing.T) {
	exec := &fakeExecutor{}
	b, fx := newTestBot(t, exec)
	self := fx.State.User.ID

	msg := func(author *discordgo.User, guild, content string) *discordgo.Message {
		return &discordgo.Message{ID: "m", ChannelID: "c", GuildID: guild, Content: content, Author: author}
	}
	human := &discordgo.User{ID: "u1", Username: "alice"}

	b.handle(msg(human, "g", "$echo hi"))
	b.handle(msg(human, "g", "<@"+self+"> echo mention"))
	b.handle(msg(human, "g", "no prefix"))
	b.handle(msg(human, "g", "$   "))
	b.handle(msg(&discordgo.User{ID: "b", Bot: true}, "g", "$echo bot"))
	b.handle(msg(&discordgo.User{ID: self}, "g", "$echo self"))
	b.handle(msg(human, "666", "$echo blacklisted"))
	b.handle(nil)

	require.Len(t, exec.runs, 2)
	assert.Equal(t, "echo hi", exec.runs[0].Source)
	assert.Equal(t, "echo mention", exec.runs[1].Source)
	assert.Equal(t, "u1", exec.runs[0].Context.UserID)
	assert.NotNil(t, exec.runs[0].Index)
	assert.Empty(t, exec.reported)
}

func TestBotReportsFailures(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("boom")}
	b, _ := newTestBot(t, exec)

	b.handle(&discordgo.Message{ID: "m", ChannelID: "c", Content: "$false", Author: &discordgo.User{ID: "u1"}})
	require.Len(t, exec.reported, 1)
	assert.EqualError(t, exec.reported[0].Err, "boom")
}

func TestBotMessageEdit(t *testing.T) {
	exec := &fakeExecutor{}
	b, _ := newTestBot(t, exec)
	edited := &discordgo.Message{ID: "m", ChannelID: "c", Content: "$echo v2", Author: &discordgo.User{ID: "u1"}}

	b.onMessageUpdate(nil, &discordgo.MessageUpdate{Message: edited, BeforeUpdate: &discordgo.Message{Content: "$echo v2"}})
	assert.Empty(t, exec.runs, "unchanged content is ignored")

	b.onMessageUpdate(nil, &discordgo.MessageUpdate{Message: edited, BeforeUpdate: &discordgo.Message{Content: "$echo v1"}})
	require.Len(t, exec.runs, 1)
	assert.Equal(t, "echo v2", exec.runs[0].Source)
}
