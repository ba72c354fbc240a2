package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/FUFSoB/cli-bot-discord/internal/script"
	"github.com/FUFSoB/cli-bot-discord/internal/storage"
	"github.com/FUFSoB/cli-bot-discord/pkg/cmd"
)

// HistoryStore records command calls.
type HistoryStore interface {
	AppendCommandToHistory(guildID string, record storage.CommandHistoryRecord) error
}

// WithHistory records every call of a command, failed or not.
func WithHistory(store HistoryStore) cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			err := c.Run(ctx, inv)

			call, ok := inv.Data.(*script.Call)
			if !ok {
				return err
			}
			gctx := call.Context()
			record := storage.CommandHistoryRecord{
				ChannelID: gctx.ChannelID,
				UserID:    gctx.UserID,
				Command:   c.Name(),
				Args:      inv.Args,
				Failed:    err != nil,
				Datetime:  time.Now(),
			}
			if m := gctx.Message; m != nil && m.Author != nil {
				record.Username = m.Author.Username
			}
			if e := store.AppendCommandToHistory(gctx.GuildID, record); e != nil {
				log.Warn().Err(e).Str("command", c.Name()).Msg("Failed to record command")
			}
			return err
		})
	}
}
