package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"alertmanager/internal/app"
	"alertmanager/internal/clock"
	"alertmanager/internal/config"
	"alertmanager/internal/notify"

	"github.com/spf13/cobra"
)

const (
	exitRuntime = 1
	exitUsage   = 2
)

// exitError carries process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// env abstracts process environment for commands.
type env struct {
	lookup   func(string) (string, bool)
	sendMail notify.SendMailFunc
	serve    func(ctx context.Context, source config.ConfigSource) error
}

// main runs alertmanager CLI.
// Params: CLI args; `serve` is the default command.
// Returns: process exit code 2 for usage/config source errors, 1 for runtime failures.
func main() {
	os.Exit(run(os.Args[1:], os.Stderr, env{
		lookup: os.LookupEnv,
		serve:  serveService,
	}))
}

func run(args []string, stderr io.Writer, environment env) int {
	root := newRootCommand(environment)
	root.SetArgs(args)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		var coded *exitError
		if errors.As(err, &coded) {
			return coded.code
		}
		return exitUsage
	}
	return 0
}

func newRootCommand(environment env) *cobra.Command {
	var configFile, configDir string

	serve := func(cmd *cobra.Command, _ []string) error {
		source, err := config.FromCLI(configFile, configDir)
		if err != nil {
			return &exitError{code: exitUsage, err: err}
		}
		if err := environment.serve(cmd.Context(), source); err != nil {
			return &exitError{code: exitRuntime, err: err}
		}
		return nil
	}

	root := &cobra.Command{
		Use:           "alertmanager",
		Short:         "Routes alerts to receivers through a configurable decision tree",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	root.PersistentFlags().StringVar(&configFile, "config-file", "", "path to one TOML config file")
	root.PersistentFlags().StringVar(&configDir, "config-dir", "", "path to directory with TOML config fragments")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the alert manager service",
		Args:  cobra.NoArgs,
		RunE:  serve,
	})
	root.AddCommand(&cobra.Command{
		Use:   "send-email",
		Short: "Send one email described by environment variables (used by the email receiver)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := notify.SendMailFromEnv(environment.lookup, environment.sendMail); err != nil {
				return &exitError{code: exitRuntime, err: err}
			}
			return nil
		},
	})
	return root
}

func serveService(ctx context.Context, source config.ConfigSource) error {
	service, err := app.NewService(source, clock.RealClock{})
	if err != nil {
		return fmt.Errorf("service init failed: %w", err)
	}
	if err := service.Run(ctx); err != nil {
		return fmt.Errorf("service run failed: %w", err)
	}
	return nil
}
