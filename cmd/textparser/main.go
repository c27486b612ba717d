// Command textparser runs a TOML parser definition over text inputs
// and prints the resulting records.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/textparser-go/textparser/pkgs/config"
	"github.com/textparser-go/textparser/pkgs/engine"
	"github.com/textparser-go/textparser/pkgs/interp"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "textparser",
		Short:         "Rule-driven text parsing",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newCheckCmd())
	return rootCmd
}

func newRunCmd() *cobra.Command {
	var (
		rulesFile  string
		jsonOutput bool
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "run -r rules.toml [input...]",
		Short: "Run a parser definition over inputs and print records",
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := config.Load(rulesFile)
			if err != nil {
				return err
			}
			if watch {
				if len(args) == 0 {
					return fmt.Errorf("--watch needs at least one input file")
				}
				return watchInputs(cmd, def, args, jsonOutput)
			}
			return runOnce(cmd, def, args, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&rulesFile, "rules", "r", "", "parser definition file (TOML)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print records as JSON")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-run when an input file changes")
	_ = cmd.MarkFlagRequired("rules")
	return cmd
}

func newCheckCmd() *cobra.Command {
	var rulesFile string

	cmd := &cobra.Command{
		Use:   "check -r rules.toml",
		Short: "Validate that a parser definition compiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := config.Load(rulesFile)
			if err != nil {
				return err
			}
			if _, err := def.NewEngine(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rule(s) OK\n", rulesFile, len(def.Rules))
			return nil
		},
	}

	cmd.Flags().StringVarP(&rulesFile, "rules", "r", "", "parser definition file (TOML)")
	_ = cmd.MarkFlagRequired("rules")
	return cmd
}

// runOnce builds a fresh engine and parses each input (stdin when
// none) with it in turn
func runOnce(cmd *cobra.Command, def *config.File, inputs []string, jsonOutput bool) error {
	eng, err := def.NewEngine()
	if err != nil {
		return err
	}

	if len(inputs) == 0 {
		if err := eng.ReadFrom(cmd.InOrStdin()); err != nil {
			return err
		}
		return printRecords(cmd, eng, jsonOutput)
	}

	for _, path := range inputs {
		if err := eng.ReadFile(path); err != nil {
			return err
		}
		if err := printRecords(cmd, eng, jsonOutput); err != nil {
			return err
		}
	}
	return nil
}

func printRecords(cmd *cobra.Command, eng *engine.Engine, jsonOutput bool) error {
	records := eng.Records()
	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		return enc.Encode(records)
	}
	for _, rec := range records {
		fmt.Fprintln(cmd.OutOrStdout(), interp.Str(rec))
	}
	return nil
}

// watchInputs re-runs the parser whenever one of the inputs changes
func watchInputs(cmd *cobra.Command, def *config.File, inputs []string, jsonOutput bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, path := range inputs {
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("cannot watch %s: %w", path, err)
		}
	}

	if err := runOnce(cmd, def, inputs, jsonOutput); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := runOnce(cmd, def, inputs, jsonOutput); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Watch error: %v\n", werr)
		}
	}
}
