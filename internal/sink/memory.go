package sink

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/FUFSoB/cli-bot-discord/internal/graph"
	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
)

// Sent is a recorded delivery.
type Sent struct {
	Handle   Handle
	Context  graph.Context
	Delivery Delivery
}

// Reaction is a recorded reaction.
type Reaction struct {
	Handle Handle
	Emoji  string
}

// Recorder is an in-memory sink. When Out is set every delivery is also
// printed to it.
type Recorder struct {
	Out io.Writer

	mu        sync.Mutex
	next      int
	sent      []Sent
	reactions []Reaction
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Send(ctx context.Context, c graph.Context, d Delivery) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	channel := c.ChannelID
	if d.Mode.Has(Channel) && d.ChannelID != "" {
		channel = d.ChannelID
	}
	if d.Mode.Has(DM) {
		channel = "dm:" + d.UserID
	}
	h := Handle{ChannelID: channel, MessageID: "sent-" + strconv.Itoa(r.next)}
	r.sent = append(r.sent, Sent{Handle: h, Context: c, Delivery: d})

	if r.Out != nil {
		fmt.Fprint(r.Out, Render(d))
	}
	return h, nil
}

func (r *Recorder) React(ctx context.Context, h Handle, emoji string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reactions = append(r.reactions, Reaction{Handle: h, Emoji: emoji})
	if r.Out != nil {
		fmt.Fprintf(r.Out, "[reacted %s to %s]\n", emoji, h.MessageID)
	}
	return nil
}

// Sent returns the recorded deliveries in order.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// Reactions returns the recorded reactions in order.
func (r *Recorder) Reactions() []Reaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Reaction(nil), r.reactions...)
}

// Contents returns the text content of every delivery.
func (r *Recorder) Contents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.sent))
	for i, s := range r.sent {
		out[i] = s.Delivery.Content
	}
	return out
}

// Render formats a delivery as plain text.
func Render(d Delivery) string {
	var b strings.Builder
	if d.Content != "" {
		b.WriteString(d.Content)
		b.WriteByte('\n')
	}
	for _, e := range d.Embeds {
		b.WriteString("┌ ")
		if e.Author.Name != "" {
			b.WriteString(e.Author.Name + " · ")
		}
		b.WriteString(e.Title)
		b.WriteByte('\n')
		for _, line := range strings.Split(e.Description, "\n") {
			if line != "" {
				b.WriteString("│ " + line + "\n")
			}
		}
		if e.Footer.Text != "" {
			b.WriteString("└ " + e.Footer.Text + "\n")
		}
	}
	return b.String()
}

// ScriptedReader answers reads from a fixed queue of inputs. A read that no
// queued input satisfies times out at once.
type ScriptedReader struct {
	mu     sync.Mutex
	inputs []Input
	reqs   []ReadRequest
}

// NewScriptedReader returns a reader that will hand out inputs in order.
func NewScriptedReader(inputs ...Input) *ScriptedReader {
	return &ScriptedReader{inputs: inputs}
}

// Push queues more inputs.
func (r *ScriptedReader) Push(inputs ...Input) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = append(r.inputs, inputs...)
}

// Requests returns every request seen so far.
func (r *ScriptedReader) Requests() []ReadRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ReadRequest(nil), r.reqs...)
}

func (r *ScriptedReader) Read(ctx context.Context, c graph.Context, req ReadRequest) (Input, error) {
	if err := ctx.Err(); err != nil {
		return Input{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)

	user := req.User
	if user == "" {
		user = c.UserID
	}
	for i, in := range r.inputs {
		if in.UserID != "" && in.UserID != user {
			continue
		}
		ok := req.Accepts(in.Value)
		if len(req.Reactions) > 0 {
			ok = req.AcceptsReaction(in.Value)
		}
		if !ok {
			continue
		}
		r.inputs = append(r.inputs[:i], r.inputs[i+1:]...)
		if in.UserID == "" {
			in.UserID = user
		}
		return in, nil
	}
	return Input{}, shellerr.New(shellerr.TimeoutError, "read: no input within %s", req.Timeout)
}
