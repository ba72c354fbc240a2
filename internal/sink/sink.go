// Package sink defines where script output goes and where interactive input
// comes from. The Discord adapter implements both against a live session.
package sink

import (
	"context"
	"strings"
	"time"

	"github.com/FUFSoB/cli-bot-discord/internal/graph"
)

// Author is an embed author line.
type Author struct {
	Name    string
	IconURL string
}

// Footer is an embed footer line.
type Footer struct {
	Text    string
	IconURL string
}

// Payload is one rich embed.
type Payload struct {
	Title       string
	Description string
	Color       int
	URL         string
	Thumbnail   string
	Image       string
	Author      Author
	Footer      Footer
}

func (p Payload) String() string {
	parts := make([]string, 0, 2)
	if p.Title != "" {
		parts = append(parts, p.Title)
	}
	if p.Description != "" {
		parts = append(parts, p.Description)
	}
	return strings.Join(parts, "\n")
}

// Mode selects how a delivery reaches the chat.
type Mode uint8

const (
	// Reply answers the invoking message.
	Reply Mode = 1 << iota
	// DM sends to UserID's direct channel.
	DM
	// Webhook posts through a channel webhook impersonating the invoker.
	Webhook
	// Channel posts to ChannelID.
	Channel
)

// Has reports whether all bits of o are set.
func (m Mode) Has(o Mode) bool { return m&o == o }

// Handle identifies a delivered message.
type Handle struct {
	ChannelID string
	MessageID string
}

func (h Handle) String() string { return h.MessageID }

// IsZero reports whether nothing was delivered.
func (h Handle) IsZero() bool { return h.MessageID == "" }

// Delivery is one outgoing message.
type Delivery struct {
	Content   string
	Embeds    []Payload
	Mode      Mode
	ChannelID string
	UserID    string
	ReplyTo   *Handle
}

// Empty reports whether the delivery carries nothing to send.
func (d Delivery) Empty() bool { return d.Content == "" && len(d.Embeds) == 0 }

// Sink delivers output.
type Sink interface {
	Send(ctx context.Context, c graph.Context, d Delivery) (Handle, error)
	React(ctx context.Context, h Handle, emoji string) error
}

// ReadRequest filters the input a read waits for.
type ReadRequest struct {
	// Choices restricts message content to one of these values.
	Choices []string
	// Reactions waits for one of these reactions instead of a message.
	Reactions []string
	// Message is the message reactions must be added to.
	Message *Handle
	// User is the user whose input counts. Empty means the invoker.
	User    string
	Timeout time.Duration
}

// Input is what a read received.
type Input struct {
	Value  string
	UserID string
	Handle Handle
}

// Reader waits for user input.
type Reader interface {
	Read(ctx context.Context, c graph.Context, req ReadRequest) (Input, error)
}

// Accepts reports whether value satisfies the request's choices.
func (r ReadRequest) Accepts(value string) bool {
	if len(r.Choices) == 0 {
		return true
	}
	for _, c := range r.Choices {
		if strings.EqualFold(c, value) {
			return true
		}
	}
	return false
}

// AcceptsReaction reports whether emoji is one of the wanted reactions.
func (r ReadRequest) AcceptsReaction(emoji string) bool {
	if len(r.Reactions) == 0 {
		return true
	}
	for _, e := range r.Reactions {
		if e == emoji {
			return true
		}
	}
	return false
}
