package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/FUFSoB/cli-bot-discord/internal/script"
	"github.com/FUFSoB/cli-bot-discord/pkg/cmd"
)

// WithCommandLogger wraps a command to log its execution
func WithCommandLogger() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			start := time.Now()
			err := c.Run(ctx, inv)

			call, ok := inv.Data.(*script.Call)
			if !ok {
				return err
			}
			gctx := call.Context()
			ev := log.Debug()
			if err != nil {
				ev = ev.Err(err)
			}
			ev.Str("command", c.Name()).
				Str("user", gctx.UserID).
				Str("guild", gctx.GuildID).
				Str("channel", gctx.ChannelID).
				Dur("took", time.Since(start)).
				Msg("Command finished")
			return err
		})
	}
}
