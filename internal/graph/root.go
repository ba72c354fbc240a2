package graph

import "github.com/bwmarrin/discordgo"

// Context identifies the entities an invocation starts from.
type Context struct {
	UserID    string
	GuildID   string
	ChannelID string
	MessageID string

	// Message is the invoking message, used when the state has not cached it.
	Message *discordgo.Message
}

// InGuild reports whether the invocation came from a guild channel.
func (c Context) InGuild() bool { return c.GuildID != "" }

// NewRoot builds the root container for an invocation.
func NewRoot(ix *Index, ctx Context) *ObjectNode {
	return NewObject("/",
		Entry{"current", Current(ix, ctx)},
		Entry{"get", NewLookup("get", true, func(id string) (any, bool) {
			n, ok := ix.Lookup(id)
			return n, ok
		})},
		Entry{"find", NewLookup("find", false, func(q string) (any, bool) {
			return ix.Find(q, FindOptions{}), true
		})},
	)
}

// Current is the /current container: the invoking user, member, guild,
// channel, message and the bot itself. Entities that do not apply are null.
func Current(ix *Index, ctx Context) *ObjectNode {
	var user any = Null
	if u := ix.User(ctx.UserID); u != nil {
		user = ix.user(u)
	} else if ctx.Message != nil && ctx.Message.Author != nil {
		user = ix.user(ctx.Message.Author)
	} else if ctx.UserID != "" {
		user = &IDNode{ID: ctx.UserID}
	}

	var member any = Null
	if ctx.InGuild() {
		member = ix.memberNode(ctx.GuildID, ctx.UserID)
	}

	var channel any = Null
	if c := ix.channel(ctx.ChannelID); c != nil {
		channel = ix.channelNode(c)
	} else if ctx.ChannelID != "" {
		channel = &IDNode{ID: ctx.ChannelID}
	}

	var message any = Null
	if m, ok := ix.messages[ctx.MessageID]; ok {
		message = ix.messageNode(m)
	} else if ctx.Message != nil {
		message = ix.messageNode(ctx.Message)
	}

	var bot any = Null
	if ix.bot != nil {
		bot = ix.user(ix.bot)
		if ctx.InGuild() {
			if m, ok := ix.Member(ctx.GuildID, ix.bot.ID); ok {
				bot = m
			}
		}
	}

	return NewObject("current",
		Entry{"user", user},
		Entry{"member", member},
		Entry{"guild", ix.guildNode(ctx.GuildID)},
		Entry{"channel", channel},
		Entry{"message", message},
		Entry{"bot", bot},
	)
}
