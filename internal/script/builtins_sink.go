package script

import (
	"context"
	"strconv"
	"strings"

	"github.com/FUFSoB/cli-bot-discord/internal/graph"
	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
	"github.com/FUFSoB/cli-bot-discord/internal/sink"
)

func registerSink() {
	register(`! embed
@ Build a rich embed.
$ An empty description takes the stdin text.
; -t --title
; -d --description
; -c --color | help="#rrggbb, 0xrrggbb or decimal"
; -u --url
; --thumbnail
; --author
; --author-icon
; --footer
; --footer-icon
; --image`, runEmbed)

	register(`! send
@ Deliver stdin and text now.
$ Without a mode the message goes to the current channel, or the one given with -c.
; -D --dm | type=id | nargs=? | help="direct message a user, the invoker when bare"
; -r --reply | action=store_true | help="reply to the invoking message"
; -w --webhook | action=store_true | help="post as the invoker through a webhook"
; -c --channel | type=id
; text | nargs=*`, runSend)

	register(`! react
@ Add reactions to a message.
; -m --message | help="message handle or ID, the invoking message by default"
; emojis | nargs=+`, runReact)

	register(`! read
@ Wait for a message or a reaction.
; -c --choices | nargs=+ | help="accepted answers"
; -r --reactions | nargs=+ | help="wait for one of these reactions"
; -m --message | help="message the reactions must be on"
; -u --user | type=id | help="whose input counts, the invoker by default"
; -t --timeout | default=60s`, runRead)
}

func runEmbed(_ context.Context, _ *Session, c *call) ([]any, error) {
	p := sink.Payload{
		Title:       c.vals.String("title"),
		Description: c.vals.String("description"),
		URL:         c.vals.String("url"),
		Thumbnail:   c.vals.String("thumbnail"),
		Image:       c.vals.String("image"),
		Author:      sink.Author{Name: c.vals.String("author"), IconURL: c.vals.String("author_icon")},
		Footer:      sink.Footer{Text: c.vals.String("footer"), IconURL: c.vals.String("footer_icon")},
	}
	if p.Description == "" && len(c.stdin) > 0 {
		p.Description = strings.Join(strs(flatten(c.stdin)), "\n")
	}
	if v := c.vals.Get("color"); v != nil {
		color, err := parseColor(v)
		if err != nil {
			return nil, err
		}
		p.Color = color
	}
	return []any{p}, nil
}

func parseColor(v any) (int, error) {
	if n, ok := v.(*graph.ColorNode); ok {
		return n.Value, nil
	}
	s := strings.TrimSpace(Str(v))
	base := 10
	switch {
	case strings.HasPrefix(s, "#"):
		s, base = s[1:], 16
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		s, base = s[2:], 16
	}
	n, err := strconv.ParseInt(s, base, 32)
	if err != nil || n < 0 || n > 0xffffff {
		return 0, shellerr.New(shellerr.TypeCoercionError, "invalid color %q", Str(v))
	}
	return int(n), nil
}

func runSend(ctx context.Context, s *Session, c *call) ([]any, error) {
	values := flatten(c.stdin)
	if text := c.vals.List("text"); len(text) > 0 {
		values = append(values, strings.Join(strs(text), " "))
	}
	d := Render(values, &Params{})
	if d.Empty() {
		return nil, shellerr.New(shellerr.CommandError, "nothing to send")
	}

	switch dm := c.vals.Get("dm").(type) {
	case nil:
	case string:
		d.Mode |= sink.DM
		d.UserID = dm
	default:
		d.Mode |= sink.DM
		d.UserID = s.gctx.UserID
	}
	if c.vals.Bool("reply") {
		d.Mode |= sink.Reply
		d.ReplyTo = &sink.Handle{ChannelID: s.gctx.ChannelID, MessageID: s.gctx.MessageID}
	}
	if c.vals.Bool("webhook") {
		d.Mode |= sink.Webhook
		d.ChannelID = s.gctx.ChannelID
	}
	if id := c.vals.String("channel"); id != "" {
		d.Mode |= sink.Channel
		d.ChannelID = id
	}
	if d.Mode == 0 {
		d.Mode = sink.Channel
		d.ChannelID = s.gctx.ChannelID
	}

	h, err := s.engine.sink.Send(ctx, s.gctx, d)
	if err != nil {
		return nil, err
	}
	s.handles = append(s.handles, h)
	return []any{h}, nil
}

// messageHandle reads a message reference: a handle, a message node or an ID
// in the current channel.
func (s *Session) messageHandle(v any) (sink.Handle, error) {
	switch v := v.(type) {
	case nil:
		return sink.Handle{ChannelID: s.gctx.ChannelID, MessageID: s.gctx.MessageID}, nil
	case sink.Handle:
		return v, nil
	case *graph.MessageNode:
		return sink.Handle{ChannelID: v.M.ChannelID, MessageID: v.M.ID}, nil
	}
	id := Str(v)
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return sink.Handle{}, shellerr.New(shellerr.TypeCoercionError, "invalid message %q", id)
	}
	return sink.Handle{ChannelID: s.gctx.ChannelID, MessageID: id}, nil
}

// emojiName renders an emoji the way the chat API names reactions.
func emojiName(v any) string {
	switch v := v.(type) {
	case *graph.EmojiNode:
		return v.E.APIName()
	case *graph.UnicodeEmojiNode:
		return v.Value
	}
	s := Str(v)
	if strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") {
		// <:name:id> and <a:name:id>
		parts := strings.Split(strings.Trim(s, "<>"), ":")
		if len(parts) == 3 {
			return parts[1] + ":" + parts[2]
		}
	}
	return s
}

func runReact(ctx context.Context, s *Session, c *call) ([]any, error) {
	h, err := s.messageHandle(c.vals.Get("message"))
	if err != nil {
		return nil, err
	}
	for _, e := range flatten(c.vals.List("emojis")) {
		if err := s.engine.sink.React(ctx, h, emojiName(e)); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func runRead(ctx context.Context, s *Session, c *call) ([]any, error) {
	if s.engine.reader == nil {
		return nil, shellerr.New(shellerr.CommandError, "input is not available here")
	}
	timeout := defaultReadTimeout
	if v := c.vals.Get("timeout"); v != nil {
		d, err := toDuration(v)
		if err != nil {
			return nil, err
		}
		timeout = d
	}
	if timeout <= 0 || timeout > s.engine.maxRead {
		return nil, shellerr.New(shellerr.CommandError, "timeout must be between 0s and %s", s.engine.maxRead)
	}

	req := sink.ReadRequest{
		Choices: strs(flatten(c.vals.List("choices"))),
		User:    c.vals.String("user"),
		Timeout: timeout,
	}
	for _, r := range flatten(c.vals.List("reactions")) {
		req.Reactions = append(req.Reactions, emojiName(r))
	}
	if len(req.Reactions) > 0 || c.vals.Get("message") != nil {
		msg := c.vals.Get("message")
		if msg == nil && len(s.handles) > 0 {
			msg = s.handles[len(s.handles)-1]
		}
		h, err := s.messageHandle(msg)
		if err != nil {
			return nil, err
		}
		req.Message = &h
	}

	in, err := s.engine.reader.Read(ctx, s.gctx, req)
	if err != nil {
		return nil, err
	}
	return []any{in.Value}, nil
}
