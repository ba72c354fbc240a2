package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/FUFSoB/cli-bot-discord/internal/graph"
	"github.com/FUFSoB/cli-bot-discord/internal/sink"
	"github.com/FUFSoB/cli-bot-discord/pkg/retrylimit"
)

const (
	maxContentLength     = 2000
	maxDescriptionLength = 4096
	maxTitleLength       = 256
	maxEmbeds            = 10
	sendAttempts         = 3
	webhookName          = "cli-bot"
)

// REST is the part of *discordgo.Session the sink calls.
type REST interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelWebhooks(channelID string, options ...discordgo.RequestOption) ([]*discordgo.Webhook, error)
	WebhookCreate(channelID, name, avatar string, options ...discordgo.RequestOption) (*discordgo.Webhook, error)
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
}

// Sink delivers script output through the Discord REST API.
type Sink struct {
	rest  REST
	lim   *retrylimit.AdaptiveLimiter
	retry retrylimit.RetryConfig

	mu       sync.Mutex
	webhooks map[string]*discordgo.Webhook
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithRetry replaces the retry policy of REST calls.
func WithRetry(cfg retrylimit.RetryConfig) SinkOption { return func(s *Sink) { s.retry = cfg } }

// NewSink wraps a REST client. Every call waits on lim.
func NewSink(rest REST, lim *retrylimit.AdaptiveLimiter, opts ...SinkOption) *Sink {
	s := &Sink{rest: rest, lim: lim, webhooks: make(map[string]*discordgo.Webhook)}
	s.retry = retrylimit.DefaultRetryConfig()
	s.retry.MaxAttempts = sendAttempts
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// restError exposes the HTTP status of a discordgo error to the retry loop.
type restError struct{ *discordgo.RESTError }

func (e restError) StatusCode() int {
	if e.Response == nil {
		return 0
	}
	return e.Response.StatusCode
}

func (e restError) Unwrap() error { return e.RESTError }

func classify(err error) error {
	var re *discordgo.RESTError
	if errors.As(err, &re) {
		return restError{re}
	}
	return err
}

func (s *Sink) call(ctx context.Context, fn func(opts ...discordgo.RequestOption) error) error {
	return retrylimit.WithRetryConfig(ctx, func() error {
		return classify(fn(discordgo.WithContext(ctx)))
	}, s.lim, s.retry)
}

func (s *Sink) Send(ctx context.Context, c graph.Context, d sink.Delivery) (sink.Handle, error) {
	if d.Empty() {
		return sink.Handle{}, nil
	}
	content := truncate(d.Content, maxContentLength)
	embeds := Embeds(d.Embeds)

	switch {
	case d.Mode.Has(sink.Webhook) && c.InGuild():
		return s.sendWebhook(ctx, c, content, embeds)
	case d.Mode.Has(sink.DM):
		user := d.UserID
		if user == "" {
			user = c.UserID
		}
		var ch *discordgo.Channel
		err := s.call(ctx, func(opts ...discordgo.RequestOption) (err error) {
			ch, err = s.rest.UserChannelCreate(user, opts...)
			return err
		})
		if err != nil {
			return sink.Handle{}, fmt.Errorf("open dm with %s: %w", user, err)
		}
		return s.sendMessage(ctx, ch.ID, &discordgo.MessageSend{Content: content, Embeds: embeds})
	case d.Mode.Has(sink.Channel):
		channel := d.ChannelID
		if channel == "" {
			channel = c.ChannelID
		}
		return s.sendMessage(ctx, channel, &discordgo.MessageSend{Content: content, Embeds: embeds})
	default:
		msg := &discordgo.MessageSend{Content: content, Embeds: embeds}
		channel := c.ChannelID
		if d.ReplyTo != nil && !d.ReplyTo.IsZero() {
			if d.ReplyTo.ChannelID != "" {
				channel = d.ReplyTo.ChannelID
			}
			fail := false
			msg.Reference = &discordgo.MessageReference{
				MessageID:       d.ReplyTo.MessageID,
				ChannelID:       channel,
				GuildID:         c.GuildID,
				FailIfNotExists: &fail,
			}
		}
		return s.sendMessage(ctx, channel, msg)
	}
}

func (s *Sink) sendMessage(ctx context.Context, channelID string, msg *discordgo.MessageSend) (sink.Handle, error) {
	msg.AllowedMentions = &discordgo.MessageAllowedMentions{
		Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers},
	}
	var sent *discordgo.Message
	err := s.call(ctx, func(opts ...discordgo.RequestOption) (err error) {
		sent, err = s.rest.ChannelMessageSendComplex(channelID, msg, opts...)
		return err
	})
	if err != nil {
		return sink.Handle{}, fmt.Errorf("send to %s: %w", channelID, err)
	}
	return sink.Handle{ChannelID: sent.ChannelID, MessageID: sent.ID}, nil
}

func (s *Sink) sendWebhook(ctx context.Context, c graph.Context, content string, embeds []*discordgo.MessageEmbed) (sink.Handle, error) {
	hook, err := s.webhook(ctx, c.ChannelID)
	if err != nil {
		return sink.Handle{}, err
	}

	params := &discordgo.WebhookParams{Content: content, Embeds: embeds}
	var m *discordgo.Member
	err = s.call(ctx, func(opts ...discordgo.RequestOption) (err error) {
		m, err = s.rest.GuildMember(c.GuildID, c.UserID, opts...)
		return err
	})
	if err != nil {
		log.Warn().Err(err).Str("user", c.UserID).Msg("Failed to fetch member for webhook")
	} else {
		params.Username = m.DisplayName()
		params.AvatarURL = m.AvatarURL("")
	}

	var sent *discordgo.Message
	err = s.call(ctx, func(opts ...discordgo.RequestOption) (err error) {
		sent, err = s.rest.WebhookExecute(hook.ID, hook.Token, true, params, opts...)
		return err
	})
	if err != nil {
		return sink.Handle{}, fmt.Errorf("execute webhook in %s: %w", c.ChannelID, err)
	}
	return sink.Handle{ChannelID: sent.ChannelID, MessageID: sent.ID}, nil
}

// webhook returns the bot's webhook in a channel, creating it on first use.
func (s *Sink) webhook(ctx context.Context, channelID string) (*discordgo.Webhook, error) {
	s.mu.Lock()
	hook, ok := s.webhooks[channelID]
	s.mu.Unlock()
	if ok {
		return hook, nil
	}

	var hooks []*discordgo.Webhook
	err := s.call(ctx, func(opts ...discordgo.RequestOption) (err error) {
		hooks, err = s.rest.ChannelWebhooks(channelID, opts...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list webhooks in %s: %w", channelID, err)
	}
	for _, h := range hooks {
		if h.Name == webhookName && h.Token != "" {
			hook = h
			break
		}
	}
	if hook == nil {
		err = s.call(ctx, func(opts ...discordgo.RequestOption) (err error) {
			hook, err = s.rest.WebhookCreate(channelID, webhookName, "", opts...)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("create webhook in %s: %w", channelID, err)
		}
	}

	s.mu.Lock()
	s.webhooks[channelID] = hook
	s.mu.Unlock()
	return hook, nil
}

func (s *Sink) React(ctx context.Context, h sink.Handle, emoji string) error {
	err := s.call(ctx, func(opts ...discordgo.RequestOption) error {
		return s.rest.MessageReactionAdd(h.ChannelID, h.MessageID, emoji, opts...)
	})
	if err != nil {
		return fmt.Errorf("react %s: %w", emoji, err)
	}
	return nil
}

// Embeds maps payloads to Discord embeds, dropping any beyond the limit.
func Embeds(ps []sink.Payload) []*discordgo.MessageEmbed {
	if len(ps) == 0 {
		return nil
	}
	if len(ps) > maxEmbeds {
		ps = ps[:maxEmbeds]
	}
	out := make([]*discordgo.MessageEmbed, len(ps))
	for i, p := range ps {
		out[i] = Embed(p)
	}
	return out
}

// Embed maps one payload.
func Embed(p sink.Payload) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Type:        discordgo.EmbedTypeRich,
		Title:       truncate(p.Title, maxTitleLength),
		Description: truncate(p.Description, maxDescriptionLength),
		Color:       p.Color,
		URL:         p.URL,
	}
	if p.Thumbnail != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: p.Thumbnail}
	}
	if p.Image != "" {
		e.Image = &discordgo.MessageEmbedImage{URL: p.Image}
	}
	if p.Author.Name != "" {
		e.Author = &discordgo.MessageEmbedAuthor{Name: p.Author.Name, IconURL: p.Author.IconURL}
	}
	if p.Footer.Text != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: p.Footer.Text, IconURL: p.Footer.IconURL}
	}
	return e
}

// truncate cuts s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

var _ sink.Sink = (*Sink)(nil)
