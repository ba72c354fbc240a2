package middleware

import (
	"context"
	"slices"

	"github.com/FUFSoB/cli-bot-discord/internal/script"
	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
	"github.com/FUFSoB/cli-bot-discord/pkg/cmd"
)

// WithGuildOnly refuses the named commands outside a guild. With no names
// every command is guild-only.
func WithGuildOnly(names ...string) cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		if len(names) > 0 && !slices.Contains(names, c.Name()) {
			return c
		}
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			if call, ok := inv.Data.(*script.Call); ok && !call.Context().InGuild() {
				return shellerr.New(shellerr.CommandError, "%s: only available in a guild", c.Name())
			}
			return c.Run(ctx, inv)
		})
	}
}
