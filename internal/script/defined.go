package script

import (
	"context"
	"errors"

	"github.com/FUFSoB/cli-bot-discord/internal/binder"
	"github.com/FUFSoB/cli-bot-discord/internal/definition"
	"github.com/FUFSoB/cli-bot-discord/internal/graph"
	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
	"github.com/FUFSoB/cli-bot-discord/pkg/cmd"
)

// Defined is a command declared by a definition file.
type Defined struct {
	Desc *definition.Descriptor
}

// NewDefined wraps a parsed definition as a registry command.
func NewDefined(d *definition.Descriptor) *Defined { return &Defined{Desc: d} }

func (d *Defined) Name() string        { return d.Desc.Name }
func (d *Defined) Description() string { return d.Desc.Summary }

// Run binds the call's tokens and runs the body in the calling session.
func (d *Defined) Run(ctx context.Context, inv *cmd.Invocation) error {
	c, ok := inv.Data.(*Call)
	if !ok || c.Session == nil {
		return shellerr.New(shellerr.CommandError, "%s: can only run inside a script", d.Desc.Name)
	}
	vals, err := binder.Bind(d.Desc, c.Tokens, binder.WithClock(c.Session.engine.now))
	if errors.Is(err, binder.ErrHelp) {
		c.Output = append(c.Output, d.Desc.Help())
		return nil
	}
	if err != nil {
		return err
	}
	out, err := c.Session.runDefined(ctx, d.Desc, vals, input{values: c.Stdin, ok: c.Piped})
	c.Output = append(c.Output, out...)
	return err
}

// Call is the payload of a defined command invocation. Middleware reads it
// from cmd.Invocation.Data.
type Call struct {
	Session *Session
	Name    string
	Tokens  []any
	Stdin   []any
	Piped   bool
	Output  []any
}

// Context returns the invocation context of the calling session.
func (c *Call) Context() graph.Context { return c.Session.gctx }

func (c *Call) invocation() *cmd.Invocation {
	return &cmd.Invocation{Args: strs(c.Tokens), Data: c}
}

func definedDescriptor(c cmd.Command) *definition.Descriptor {
	if c == nil {
		return nil
	}
	if d, ok := cmd.Root(c).(*Defined); ok {
		return d.Desc
	}
	return nil
}
