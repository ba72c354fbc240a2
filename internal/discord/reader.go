package discord

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/FUFSoB/cli-bot-discord/internal/graph"
	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
	"github.com/FUFSoB/cli-bot-discord/internal/sink"
)

const defaultReadTimeout = time.Minute

// HandlerAdder registers gateway event handlers. *discordgo.Session
// implements it; the returned func removes the handler.
type HandlerAdder interface {
	AddHandler(handler interface{}) func()
}

// Reader waits for messages or reactions from the invoking user.
type Reader struct {
	events HandlerAdder
}

func NewReader(events HandlerAdder) *Reader { return &Reader{events: events} }

func (r *Reader) Read(ctx context.Context, c graph.Context, req sink.ReadRequest) (sink.Input, error) {
	user := req.User
	if user == "" {
		user = c.UserID
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}

	got := make(chan sink.Input, 1)
	offer := func(in sink.Input) {
		select {
		case got <- in:
		default:
		}
	}

	var remove func()
	if len(req.Reactions) > 0 {
		remove = r.events.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageReactionAdd) {
			if e.MessageReaction == nil || e.UserID != user || e.ChannelID != c.ChannelID {
				return
			}
			if req.Message != nil && e.MessageID != req.Message.MessageID {
				return
			}
			emoji := e.Emoji.APIName()
			if !req.AcceptsReaction(emoji) {
				return
			}
			offer(sink.Input{
				Value:  emoji,
				UserID: e.UserID,
				Handle: sink.Handle{ChannelID: e.ChannelID, MessageID: e.MessageID},
			})
		})
	} else {
		remove = r.events.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageCreate) {
			if e.Message == nil || e.Author == nil || e.Author.ID != user || e.ChannelID != c.ChannelID {
				return
			}
			if !req.Accepts(e.Content) {
				return
			}
			offer(sink.Input{
				Value:  e.Content,
				UserID: e.Author.ID,
				Handle: sink.Handle{ChannelID: e.ChannelID, MessageID: e.ID},
			})
		})
	}
	defer remove()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case in := <-got:
		return in, nil
	case <-timer.C:
		return sink.Input{}, shellerr.New(shellerr.TimeoutError, "read: no input within %s", timeout)
	case <-ctx.Done():
		return sink.Input{}, ctx.Err()
	}
}

var _ sink.Reader = (*Reader)(nil)
