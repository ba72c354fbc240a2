// Package cmd provides the command core: a command is something with a name,
// a description and Run(ctx, invocation). Who dispatches it (the script
// interpreter, the CLI) is defined by the caller.
package cmd

import "context"

// Invocation carries arguments and an opaque payload. The interpreter sets
// Data to its typed call so commands can reach typed tokens and the session.
type Invocation struct {
	Args []string
	Data any
}

// Command is the universal contract: identity plus execution.
type Command interface {
	Name() string
	Description() string
	Run(ctx context.Context, inv *Invocation) error
}
