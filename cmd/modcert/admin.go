package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iykyk-syn/modcert"
)

var modConfigCmd = &cobra.Command{
	Use:   "mod-config",
	Short: "Show or change moderation config of the local moderator",
}

var modConfigShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show moderation config",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := openNode(offline)
		if err != nil {
			return err
		}
		defer n.Close()

		cfg, err := n.store.GetModConfig(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println("forbidden:", strings.Join(cfg.Forbidden, ", "))
		for cat, th := range cfg.Thresholds {
			fmt.Printf("threshold %s: %v\n", cat, th)
		}
		return nil
	},
}

var (
	forbidden  []string
	thresholds []string
)

var modConfigSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Replace moderation config",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := modcert.ModConfig{
			Forbidden:  forbidden,
			Thresholds: make(map[string]float64, len(thresholds)),
		}
		for _, th := range thresholds {
			cat, val, ok := strings.Cut(th, "=")
			if !ok {
				return fmt.Errorf("threshold %q is not category=value", th)
			}
			v, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fmt.Errorf("threshold %q: %w", th, err)
			}
			cfg.Thresholds[cat] = v
		}

		n, err := openNode(offline)
		if err != nil {
			return err
		}
		defer n.Close()
		return n.store.SaveModConfig(cmd.Context(), cfg)
	},
}

func init() {
	modConfigSetCmd.Flags().StringSliceVar(&forbidden, "forbidden", nil, "Forbidden words")
	modConfigSetCmd.Flags().StringSliceVar(&thresholds, "threshold", nil, "Category thresholds as category=value")
	modConfigCmd.AddCommand(modConfigShowCmd, modConfigSetCmd)
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print decisions of the local moderator",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := openNode(offline)
		if err != nil {
			return err
		}
		defer n.Close()

		logs, err := n.store.FetchModerationLogs(cmd.Context())
		if err != nil {
			return err
		}
		for _, e := range logs {
			fmt.Printf("%s %s %q\n", time.Unix(e.Timestamp, 0).Format(time.RFC3339), e.Status, e.Content)
		}
		return nil
	},
}
