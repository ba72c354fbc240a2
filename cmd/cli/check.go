package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/FUFSoB/cli-bot-discord/internal/loader"
	"github.com/FUFSoB/cli-bot-discord/internal/script"
)

var checkCmd = &cobra.Command{
	Use:   "check [dir]",
	Short: "Parse every defined command without running it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		dir := scriptsDir
		if len(args) == 1 {
			dir = args[0]
		}
		if dir == "" {
			return errors.New("no scripts directory: pass one or use --scripts")
		}
		descs, err := loader.Scan(fs, dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.OutOrStdout(), "%d commands ok\n", len(descs))
		return nil
	},
}

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List builtin and defined commands",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(c.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, name := range script.BuiltinNames() {
			fmt.Fprintf(w, "%s\tbuiltin\n", name)
		}
		if scriptsDir != "" {
			descs, err := loader.Scan(fs, scriptsDir)
			if err != nil {
				return err
			}
			for _, d := range descs {
				fmt.Fprintf(w, "%s\t%s\n", d.Name, d.Summary)
			}
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(checkCmd, commandsCmd)
}
