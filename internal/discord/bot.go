package discord

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/FUFSoB/cli-bot-discord/internal/config"
	"github.com/FUFSoB/cli-bot-discord/internal/graph"
	"github.com/FUFSoB/cli-bot-discord/internal/script"
)

// Executor runs scripts and reports their failures.
type Executor interface {
	Execute(ctx context.Context, inv script.Invocation) script.Outcome
	ReportError(ctx context.Context, c graph.Context, oc script.Outcome) error
}

// Restorer reloads persisted scheduled jobs.
type Restorer interface {
	Restore(ctx context.Context) (int, error)
}

// Bot is a Discord bot
type Bot struct {
	dg     *discordgo.Session
	cfg    *config.Config
	exec   Executor
	jobs   Restorer
	ctx    context.Context
	once   sync.Once
	events sync.WaitGroup
}

// NewBot wires a session to the script engine. jobs may be nil.
func NewBot(dg *discordgo.Session, cfg *config.Config, exec Executor, jobs Restorer) *Bot {
	return &Bot{dg: dg, cfg: cfg, exec: exec, jobs: jobs, ctx: context.Background()}
}

// Run opens the gateway and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.ctx = ctx
	b.dg.Identify.Intents = discordgo.IntentsAll
	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onGuildCreate)
	b.dg.AddHandler(b.onMessageCreate)
	b.dg.AddHandler(b.onMessageUpdate)

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer b.dg.Close()

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received, waiting for running scripts")
	b.events.Wait()
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	for _, g := range r.Guilds {
		b.leaveIfBlacklisted(s, g.ID)
	}

	if err := s.UpdateGameStatus(0, b.cfg.CommandPrefix+" help"); err != nil {
		log.Warn().Err(err).Msg("Failed to set status")
	}

	b.once.Do(func() {
		if b.jobs == nil {
			return
		}
		if _, err := b.jobs.Restore(b.ctx); err != nil {
			log.Error().Err(err).Msg("Failed to restore scheduled jobs")
		}
	})

	log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("Discord bot is running")
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if b.leaveIfBlacklisted(s, g.ID) {
		return
	}
	log.Debug().Str("guild", g.ID).Str("name", g.Name).Msg("Guild available")
}

func (b *Bot) leaveIfBlacklisted(s *discordgo.Session, guildID string) bool {
	if !b.isGuildBlacklisted(guildID) {
		return false
	}
	log.Info().Str("guild", guildID).Msg("Leaving blacklisted guild")
	if err := s.GuildLeave(guildID); err != nil {
		log.Error().Err(err).Str("guild", guildID).Msg("Failed to leave guild")
	}
	return true
}

func (b *Bot) isGuildBlacklisted(guildID string) bool {
	return guildID != "" && slices.Contains(b.cfg.DiscordGuildBlacklist, guildID)
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	b.handle(m.Message)
}

// onMessageUpdate reruns an edited message when its text changed.
func (b *Bot) onMessageUpdate(s *discordgo.Session, m *discordgo.MessageUpdate) {
	if m.BeforeUpdate != nil && m.BeforeUpdate.Content == m.Content {
		return
	}
	b.handle(m.Message)
}

func (b *Bot) selfID() string {
	if b.dg.State == nil || b.dg.State.User == nil {
		return ""
	}
	return b.dg.State.User.ID
}

// handle runs msg as a script when it carries the prefix.
func (b *Bot) handle(msg *discordgo.Message) {
	if msg == nil || msg.Author == nil || msg.Author.Bot || msg.Author.ID == b.selfID() {
		return
	}
	if b.isGuildBlacklisted(msg.GuildID) {
		return
	}
	src, ok := ParsePrefix(msg.Content, b.cfg.CommandPrefix, b.selfID())
	if !ok || src == "" {
		return
	}

	b.events.Add(1)
	defer b.events.Done()

	gctx := graph.Context{
		UserID:    msg.Author.ID,
		GuildID:   msg.GuildID,
		ChannelID: msg.ChannelID,
		MessageID: msg.ID,
		Message:   msg,
	}
	log.Debug().Str("user", gctx.UserID).Str("guild", gctx.GuildID).Str("channel", gctx.ChannelID).Msg("Running script")

	oc := b.exec.Execute(b.ctx, script.Invocation{
		Source:  src,
		Context: gctx,
		Index:   graph.NewIndex(b.dg.State),
	})
	if oc.Err == nil {
		return
	}
	log.Error().Err(oc.Err).Bool("handled", oc.Handled).Str("user", gctx.UserID).Str("channel", gctx.ChannelID).Msg("Script failed")
	if err := b.exec.ReportError(b.ctx, gctx, oc); err != nil {
		log.Warn().Err(err).Str("channel", gctx.ChannelID).Msg("Failed to report script error")
	}
}

// ParsePrefix strips the command prefix or a leading bot mention from
// content. It reports false when neither is present.
func ParsePrefix(content, prefix, botID string) (string, bool) {
	content = strings.ReplaceAll(content, "<@!", "<@")
	prefixes := []string{prefix}
	if botID != "" {
		prefixes = append(prefixes, "<@"+botID+">")
	}
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(content, p) {
			return strings.TrimLeft(strings.TrimPrefix(content, p), " \t\r\n"), true
		}
	}
	return "", false
}
