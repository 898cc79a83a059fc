package commands

import (
	"encoding/json"
	"fmt"
	"io"

	config "github.com/maheshrc27/postpilot/configs"
	"github.com/maheshrc27/postpilot/internal/bootstrap"
	"github.com/maheshrc27/postpilot/internal/logging"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "postctl",
	Short: "Operate the post review and publishing pipeline",
	Long: `postctl drives the post lifecycle from the command line: create posts
for review, approve or reject them, and publish whatever is due.

Configuration comes from the environment, an optional .env file and an
optional config.yaml in the working directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command. Errors are returned for main to print.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// withApp loads configuration and wires the services for one command. Logs go
// to stderr and the publish log so stdout only carries results.
func withApp(cmd *cobra.Command, fn func(app *bootstrap.App) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	log, logCloser, err := logging.NewWithConsole("postctl", cfg.LogFile, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer logCloser.Close()

	app, err := bootstrap.New(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(app)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
