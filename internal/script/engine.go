// Package script runs command scripts against the object graph.
//
// A script is parsed as bash and evaluated by a typed interpreter: values that
// flow through pipelines and substitutions keep their graph types instead of
// being flattened to text. Output left over at the end of an invocation is
// delivered to the sink as one reply.
package script

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/FUFSoB/cli-bot-discord/internal/graph"
	"github.com/FUFSoB/cli-bot-discord/internal/navigator"
	"github.com/FUFSoB/cli-bot-discord/internal/scheduler"
	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
	"github.com/FUFSoB/cli-bot-discord/internal/sink"
	"github.com/FUFSoB/cli-bot-discord/internal/source"
	"github.com/FUFSoB/cli-bot-discord/pkg/cmd"
)

const (
	defaultReadTimeout    = time.Minute
	defaultReadTimeoutMax = 5 * time.Minute
	defaultLoopLimit      = 10000
	defaultDepthLimit     = 32

	errorColor = 0xE74C3C
)

// Scheduler registers deferred invocations.
type Scheduler interface {
	Schedule(d time.Duration, command string, origin scheduler.Origin) (scheduler.Job, error)
}

// Invocation is one script to run.
type Invocation struct {
	Source  string
	Context graph.Context
	Index   *graph.Index
}

// Outcome is the result of an invocation.
type Outcome struct {
	Output []any
	Err    error
	// Handled is set when return_on_error stopped the script.
	Handled bool
	Handles []sink.Handle
}

// Option configures an Engine.
type Option func(*Engine)

// WithReader sets where read waits for input.
func WithReader(r sink.Reader) Option { return func(e *Engine) { e.reader = r } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithReadTimeoutMax caps the timeout accepted by read and sleep.
func WithReadTimeoutMax(d time.Duration) Option { return func(e *Engine) { e.maxRead = d } }

// WithLoopLimit caps iterations of a single loop.
func WithLoopLimit(n int) Option { return func(e *Engine) { e.maxLoop = n } }

// WithIndexSource sets how scheduled jobs get a fresh graph index.
func WithIndexSource(fn func() *graph.Index) Option { return func(e *Engine) { e.index = fn } }

// Engine runs invocations. It is safe for concurrent use; all mutable state
// lives in per-invocation sessions.
type Engine struct {
	registry  *cmd.Registry
	sink      sink.Sink
	reader    sink.Reader
	scheduler Scheduler
	index     func() *graph.Index
	now       func() time.Time
	maxRead   time.Duration
	maxLoop   int
	maxDepth  int
}

// New returns an engine that resolves defined commands in reg and delivers
// to out.
func New(reg *cmd.Registry, out sink.Sink, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		sink:     out,
		now:      time.Now,
		maxRead:  defaultReadTimeoutMax,
		maxLoop:  defaultLoopLimit,
		maxDepth: defaultDepthLimit,
	}
	for _, o := range opts {
		o(e)
	}
	if e.registry == nil {
		e.registry = cmd.NewRegistry()
	}
	if e.index == nil {
		e.index = func() *graph.Index { return graph.NewIndex(nil) }
	}
	return e
}

// SetScheduler attaches the scheduler used by the schedule builtin.
func (e *Engine) SetScheduler(s Scheduler) { e.scheduler = s }

// Registry returns the defined commands.
func (e *Engine) Registry() *cmd.Registry { return e.registry }

// Execute parses and runs inv, then delivers the remaining output.
func (e *Engine) Execute(ctx context.Context, inv Invocation) Outcome {
	file, err := source.Parse(inv.Source, "invocation")
	if err != nil {
		return Outcome{Err: err}
	}

	s := e.newSession(inv)
	out, err := s.run(ctx, file.Stmts, input{})
	out, err = settle(out, err)

	oc := Outcome{Output: out, Err: err, Handles: s.handles}
	if err != nil {
		oc.Handled = s.params.ReturnOnError
		log.Debug().
			Err(err).
			Bool("handled", oc.Handled).
			Str("guild", inv.Context.GuildID).
			Str("user", inv.Context.UserID).
			Msg("Invocation failed")
		if !oc.Handled {
			return oc
		}
	}

	if s.params.Send {
		if derr := e.deliver(ctx, s, out); derr != nil && oc.Err == nil {
			oc.Err = derr
		}
	}
	oc.Handles = s.handles
	return oc
}

// settle turns control signals that reached the top into plain completion.
func settle(out []any, err error) ([]any, error) {
	var ret *returnSignal
	if errors.As(err, &ret) {
		return append(out, ret.values...), nil
	}
	var loop *loopSignal
	if errors.As(err, &loop) {
		return out, nil
	}
	return out, err
}

func (e *Engine) newSession(inv Invocation) *Session {
	ix := inv.Index
	if ix == nil {
		ix = e.index()
	}
	nav := navigator.New(graph.NewRoot(ix, inv.Context))
	return &Session{
		engine:  e,
		gctx:    inv.Context,
		index:   ix,
		nav:     nav,
		cursor:  nav.Start(),
		env:     NewEnv(nil),
		storage: NewStorage(),
		params:  defaultParams(),
		funcs:   make(map[string]*function),
	}
}

// Render builds the final text and embeds from leftover output.
func Render(out []any, p *Params) sink.Delivery {
	var lines []string
	var embeds []sink.Payload
	for _, v := range flatten(out) {
		switch v := v.(type) {
		case nil, sink.Handle:
		case sink.Payload:
			embeds = append(embeds, v)
		case *graph.ListNode:
			lines = append(lines, graph.Describe(v))
		default:
			lines = append(lines, Str(v))
		}
	}

	text := strings.Join(lines, "\n")
	if text != "" {
		if p.Syntax != "" {
			text = "```" + p.Syntax + "\n" + text + "\n```"
		}
		text = p.Prefix + text + p.Suffix
	}
	return sink.Delivery{Content: text, Embeds: embeds}
}

func (e *Engine) deliver(ctx context.Context, s *Session, out []any) error {
	d := Render(out, s.params)
	if d.Empty() {
		return nil
	}
	d.Mode = sink.Reply
	d.ReplyTo = &sink.Handle{ChannelID: s.gctx.ChannelID, MessageID: s.gctx.MessageID}
	h, err := e.sink.Send(ctx, s.gctx, d)
	if err != nil {
		return shellerr.Wrap(shellerr.CommandError, err, "deliver output")
	}
	s.handles = append(s.handles, h)
	return nil
}

// ErrorPayload is the embed shown for a failed invocation.
func ErrorPayload(err error, handled bool) sink.Payload {
	p := sink.Payload{
		Title:       "Error",
		Description: shellerr.KindOf(err).String() + ": " + err.Error(),
		Color:       errorColor,
	}
	if handled {
		p.Footer = sink.Footer{Text: "handled"}
	}
	return p
}

// ReportError replies to the invoking message with the error embed.
func (e *Engine) ReportError(ctx context.Context, c graph.Context, oc Outcome) error {
	if oc.Err == nil {
		return nil
	}
	d := sink.Delivery{
		Embeds:  []sink.Payload{ErrorPayload(oc.Err, oc.Handled)},
		Mode:    sink.Reply,
		ReplyTo: &sink.Handle{ChannelID: c.ChannelID, MessageID: c.MessageID},
	}
	_, err := e.sink.Send(ctx, c, d)
	return err
}

// RunJob executes a fired scheduled job as a fresh invocation from its
// origin. Failures are reported in the origin channel and returned.
func (e *Engine) RunJob(ctx context.Context, job scheduler.Job) error {
	c := graph.Context{
		UserID:    job.Origin.UserID,
		GuildID:   job.Origin.GuildID,
		ChannelID: job.Origin.ChannelID,
		MessageID: job.Origin.MessageID,
	}
	oc := e.Execute(ctx, Invocation{Source: job.Command, Context: c, Index: e.index()})
	if oc.Err == nil {
		return nil
	}
	if err := e.ReportError(ctx, c, oc); err != nil {
		log.Warn().Err(err).Str("job", job.ID).Msg("Failed to report job error")
	}
	return oc.Err
}
