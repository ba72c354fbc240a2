package main

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/FUFSoB/cli-bot-discord/internal/loader"
	"github.com/FUFSoB/cli-bot-discord/internal/middleware"
	"github.com/FUFSoB/cli-bot-discord/internal/scheduler"
	"github.com/FUFSoB/cli-bot-discord/internal/script"
	"github.com/FUFSoB/cli-bot-discord/internal/sink"
	"github.com/FUFSoB/cli-bot-discord/pkg/cmd"
)

var (
	runFixture string
	runScript  string
	runInputs  []string
	runWait    time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run a script and print what the bot would send",
	Long: `Run a script from a file, from -e, or from stdin against the fixture guild.

Every delivery is printed in order. Reads are answered from --input values;
a read with no matching input times out at once.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runFixture, "fixture", "f", "", "YAML fixture describing the guild (default: built-in)")
	runCmd.Flags().StringVarP(&runScript, "script", "e", "", "script source")
	runCmd.Flags().StringArrayVarP(&runInputs, "input", "i", nil, "answer for the next read, may repeat")
	runCmd.Flags().DurationVar(&runWait, "wait", 0, "keep running this long for scheduled jobs")
	rootCmd.AddCommand(runCmd)
}

func runRun(c *cobra.Command, args []string) error {
	src, err := scriptSource(c, args)
	if err != nil {
		return err
	}

	fx, err := loadFixture(runFixture)
	if err != nil {
		return err
	}

	reg := cmd.NewRegistry()
	if scriptsDir != "" {
		if _, err := loader.Load(fs, scriptsDir, reg, middleware.WithCommandLogger()); err != nil {
			return err
		}
	}

	inputs := make([]sink.Input, len(runInputs))
	for i, v := range runInputs {
		inputs[i] = sink.Input{Value: v, UserID: fx.Context.UserID}
	}

	rec := sink.NewRecorder()
	engine := script.New(reg, rec,
		script.WithReader(sink.NewScriptedReader(inputs...)),
		script.WithIndexSource(fx.Index),
	)
	sched := scheduler.New(engine.RunJob)
	defer sched.Close()
	engine.SetScheduler(sched)

	ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gctx := fx.Context
	if m, err := fx.State.Message(gctx.ChannelID, gctx.MessageID); err == nil {
		gctx.Message = m
	}

	oc := engine.Execute(ctx, script.Invocation{Source: src, Context: gctx, Index: fx.Index()})
	if oc.Err != nil {
		if err := engine.ReportError(ctx, gctx, oc); err != nil {
			log.Warn().Err(err).Msg("Failed to report script error")
		}
	}

	if runWait > 0 && len(sched.Pending()) > 0 {
		select {
		case <-time.After(runWait):
		case <-ctx.Done():
		}
	}

	out := c.OutOrStdout()
	for _, s := range rec.Sent() {
		fmt.Fprint(out, sink.Render(s.Delivery))
	}
	return oc.Err
}

func scriptSource(c *cobra.Command, args []string) (string, error) {
	switch {
	case runScript != "" && len(args) > 0:
		return "", errors.New("pass either a file or -e, not both")
	case runScript != "":
		return runScript, nil
	case len(args) == 1:
		b, err := afero.ReadFile(fs, args[0])
		if err != nil {
			return "", fmt.Errorf("read script: %w", err)
		}
		return string(b), nil
	default:
		b, err := io.ReadAll(c.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
}
