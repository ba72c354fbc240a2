// cmd/discord/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/FUFSoB/cli-bot-discord/internal/config"
	"github.com/FUFSoB/cli-bot-discord/internal/discord"
	"github.com/FUFSoB/cli-bot-discord/internal/graph"
	"github.com/FUFSoB/cli-bot-discord/internal/loader"
	"github.com/FUFSoB/cli-bot-discord/internal/logging"
	"github.com/FUFSoB/cli-bot-discord/internal/middleware"
	"github.com/FUFSoB/cli-bot-discord/internal/scheduler"
	"github.com/FUFSoB/cli-bot-discord/internal/script"
	"github.com/FUFSoB/cli-bot-discord/internal/storage"
	"github.com/FUFSoB/cli-bot-discord/pkg/cmd"
	"github.com/FUFSoB/cli-bot-discord/pkg/jobmgr"
	"github.com/FUFSoB/cli-bot-discord/pkg/retrylimit"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	log.Info().Msg("Starting cli-bot...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(cfg.StoragePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.StoragePath).Msg("Failed to open storage")
	}
	defer store.Close()

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Discord session")
	}

	mws := []cmd.Middleware{middleware.WithCommandLogger()}
	if cfg.HistoryEnabled {
		mws = append(mws, middleware.WithHistory(store))
	}
	mws = append(mws, middleware.WithGuildOnly(cfg.GuildOnlyCommands...))

	reg := cmd.NewRegistry()
	descs, err := loader.Load(afero.NewOsFs(), cfg.ScriptsDir, reg, mws...)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.ScriptsDir).Msg("Failed to load defined commands")
	}
	log.Info().Int("commands", len(descs)).Str("dir", cfg.ScriptsDir).Msg("Defined commands loaded")

	lim := retrylimit.NewAdaptiveLimiter(rate.Limit(cfg.SinkRate), 1, 50, 1, 0.5)
	engine := script.New(reg, discord.NewSink(dg, lim),
		script.WithReader(discord.NewReader(dg)),
		script.WithReadTimeoutMax(cfg.ReadTimeoutMax),
		script.WithIndexSource(func() *graph.Index { return graph.NewIndex(dg.State) }),
	)

	mgr := jobmgr.NewManager(func(s string) { log.Debug().Str("jobs", s).Msg("Scheduled jobs changed") })
	sched := scheduler.New(engine.RunJob, scheduler.WithStore(store), scheduler.WithManager(mgr))
	defer sched.Close()
	engine.SetScheduler(sched)

	bot := discord.NewBot(dg, cfg, engine, sched)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down...")
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Discord bot error")
		return
	}
	log.Info().Msg("Discord bot exited cleanly")
}
