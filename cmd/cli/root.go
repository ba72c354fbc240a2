package main

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/FUFSoB/cli-bot-discord/internal/graph"
	"github.com/FUFSoB/cli-bot-discord/internal/logging"
)

//go:embed fixture.yaml
var defaultFixture []byte

var (
	// Global flags
	scriptsDir string
	logLevel   string
	fs         afero.Fs = afero.NewOsFs()
)

var rootCmd = &cobra.Command{
	Use:   "cli-bot",
	Short: "Run bot scripts without Discord",
	Long: `cli-bot runs shell-like bot scripts against a fake guild loaded from a
YAML fixture and prints what the bot would have sent.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logging.Config{Level: logLevel, Pretty: true, Output: cmd.ErrOrStderr()})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&scriptsDir, "scripts", "s", "", "directory of defined commands (*.sh)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadFixture reads path, or the built-in single-guild fixture when path is
// empty.
func loadFixture(path string) (*graph.Fixture, error) {
	if path == "" {
		return graph.LoadFixture(bytes.NewReader(defaultFixture))
	}
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()
	return graph.LoadFixture(f)
}
