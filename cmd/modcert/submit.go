package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/iykyk-syn/modcert/p2p"
	"github.com/iykyk-syn/modcert/quorum"
	"github.com/iykyk-syn/modcert/submit"
)

var verbose bool

var submitCmd = &cobra.Command{
	Use:   "submit [content]",
	Short: "Certify and publish a message",
	Long: `Certify and publish a message.
Without arguments every line read from stdin is submitted as a separate message
and SIGHUP reloads the moderator set from the config file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		n, err := openNode(client)
		if err != nil {
			return err
		}
		defer n.Close()

		cfg := n.holder.Config()
		rule, err := quorum.ParseRejectRule(cfg.RejectRule)
		if err != nil {
			return err
		}
		ctrl, err := submit.NewController(
			n.signer,
			n.holder,
			p2p.NewTransport(n.host),
			n.store,
			submit.WithTimeouts(cfg.PerAttemptTimeout.Duration, cfg.SubmissionTimeout.Duration),
			submit.WithThreshold(cfg.QuorumThreshold),
			submit.WithRejectRule(rule),
			submit.WithRegisterer(prometheus.DefaultRegisterer),
			submit.WithProgress(printProgress),
		)
		if err != nil {
			return err
		}

		if len(args) == 1 {
			out, err := ctrl.Submit(ctx, args[0])
			printOutcome(out)
			return err
		}

		stopMetrics := serveMetrics()
		defer stopMetrics()
		return submitLines(ctx, n, ctrl)
	},
}

func init() {
	submitCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print every moderator response")
}

func submitLines(ctx context.Context, n *node, ctrl *submit.Controller) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			out, err := ctrl.Submit(ctx, line)
			printOutcome(out)
			if err != nil && !errors.Is(err, submit.ErrRejected) && !errors.Is(err, submit.ErrTimedOut) {
				fmt.Println(err)
			}
		case <-hup:
			if err := n.holder.Reload(configPath); err != nil {
				slog.Error("reloading config", "err", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func printProgress(out submit.Outcome) {
	if !verbose {
		return
	}
	fmt.Printf("  %s: %d judgments so far\n", out.Cert.ID(), len(out.Cert.ModCerts))
}

func printOutcome(out submit.Outcome) {
	if out.Cert.PublicKey == nil {
		fmt.Println(out.State)
		return
	}
	fmt.Printf("%s %s (%d judgments, threshold %d)\n",
		out.Cert.ID(), out.State, len(out.Cert.ModCerts), out.Diagnostics.Threshold)
	if !verbose {
		return
	}
	for _, r := range out.Diagnostics.Responses {
		if r.Err != nil {
			fmt.Printf("  %s %s: %v\n", r.Moderator.Addr, r.Result, r.Err)
			continue
		}
		fmt.Printf("  %s %s\n", r.Moderator.Addr, r.Result)
	}
}
