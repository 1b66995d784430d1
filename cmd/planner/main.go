package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/glr76/PlannyWeb/internal/app"
	"github.com/glr76/PlannyWeb/internal/auth"
	"github.com/glr76/PlannyWeb/internal/config"
	"github.com/glr76/PlannyWeb/internal/obs"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var loadOpts config.LoadOptions
	root := &cobra.Command{
		Use:           "planner",
		Short:         "Planner file service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&loadOpts.ConfigFile, "config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().StringVar(&loadOpts.EnvFile, "env-file", "", "dotenv file loaded before the environment (default .env when present)")

	root.AddCommand(newServeCmd(&loadOpts), newConfigCmd(&loadOpts), newHashPasswordCmd())
	return root
}

func newServeCmd(loadOpts *config.LoadOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the planner API and static files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*loadOpts)
			if err != nil {
				return err
			}
			logger := obs.NewLogger(obs.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stderr)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx, cfg, logger)
		},
	}
}

func newConfigCmd(loadOpts *config.LoadOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*loadOpts)
			if err != nil {
				return err
			}
			warnings, err := config.Validate(cfg)
			out := cmd.OutOrStdout()
			fmt.Fprint(out, cfg.String())
			for _, warning := range warnings {
				fmt.Fprintf(out, "warning: %s\n", warning)
			}
			return err
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print an argon2id hash for USERS_JSON",
		Long:  "Print an argon2id hash for a USERS_JSON pw_hash field. Without an argument the password is read from the first line of stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password is empty")
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
