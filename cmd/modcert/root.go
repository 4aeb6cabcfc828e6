package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	logLevel    string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "modcert",
	Short: "Moderated message publication certified by a quorum of moderators",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(logLevel)); err != nil {
			return err
		}
		slog.SetLogLoggerLevel(lvl)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "~/.modcert/config.toml", "Path to the config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Address to serve prometheus metrics on. Disabled if empty")

	rootCmd.AddCommand(
		initCmd,
		keygenCmd,
		moderateCmd,
		submitCmd,
		deleteCmd,
		reportCmd,
		listCmd,
		modConfigCmd,
		logsCmd,
	)
}
