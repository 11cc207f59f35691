// Package main is the keypanel command: a terminal rendition of the loader
// key panel talking to the self-service HTTP API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		// cobra has already printed the error
		os.Exit(1)
	}
}

// newRootCmd builds the command tree with its own viper instance so tests
// can run commands in isolation.
func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "keypanel",
		Short: "Manage the loader keys assigned to your three device slots.",
		Long: `keypanel shows the three device slots of the remote user and the
state of the loader key assigned to each. Keys can be generated for empty
slots and removed from assigned ones. A generated key is shown once.

Running without a subcommand prints the panel.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initConfig(v, cfgFile); err != nil {
				return err
			}
			level := slog.LevelWarn
			if v.GetBool("verbose") {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, v)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.keypanel.yaml)")
	cmd.PersistentFlags().String("url", "http://localhost:2000", "self-service server base URL")
	cmd.PersistentFlags().String("user", "", "remote user sent in the REMOTE_USER header")
	cmd.PersistentFlags().Duration("timeout", 10*time.Second, "request timeout")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	v.BindPFlag("url", cmd.PersistentFlags().Lookup("url"))
	v.BindPFlag("user", cmd.PersistentFlags().Lookup("user"))
	v.BindPFlag("timeout", cmd.PersistentFlags().Lookup("timeout"))
	v.BindPFlag("verbose", cmd.PersistentFlags().Lookup("verbose"))

	cmd.AddCommand(newStatusCmd(v))
	cmd.AddCommand(newGenerateCmd(v))
	cmd.AddCommand(newRemoveCmd(v))
	cmd.AddCommand(newWatchCmd(v))

	return cmd
}

// initConfig wires environment variables prefixed with KEYPANEL_ and an
// optional YAML config file into v.
func initConfig(v *viper.Viper, cfgFile string) error {
	v.SetEnvPrefix("KEYPANEL")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		return v.ReadInConfig()
	}

	home, err := os.UserHomeDir()
	if err == nil {
		v.AddConfigPath(home)
	}
	v.SetConfigType("yaml")
	v.SetConfigName(".keypanel")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}
