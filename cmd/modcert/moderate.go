package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/iykyk-syn/modcert/moderator"
	"github.com/iykyk-syn/modcert/p2p"
)

var moderateCmd = &cobra.Command{
	Use:   "moderate",
	Short: "Run a moderator judging messages with the forbidden words policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		n, err := openNode(serving)
		if err != nil {
			return err
		}
		defer n.Close()

		if err = n.printAddrs(); err != nil {
			return err
		}

		svc := moderator.NewService(
			n.signer,
			moderator.NewForbiddenWords(n.store),
			moderator.WithLogSink(n.store),
		)

		srv := p2p.NewServer(n.host, svc)
		srv.Start()
		defer srv.Stop()

		pSub, err := pubsub.NewFloodSub(ctx, n.host)
		if err != nil {
			return err
		}
		reports := p2p.NewReportTopic(n.holder.Config().Network, pSub, svc.Review)
		if err = reports.Start(); err != nil {
			return err
		}
		defer reports.Stop(ctx) //nolint: errcheck

		// other moderators relay reports too
		n.connectModerators(ctx)

		stopMetrics := serveMetrics()
		defer stopMetrics()

		fmt.Println("Moderating. Press Ctrl+C to stop.")
		<-ctx.Done()
		return nil
	},
}

// serveMetrics serves prometheus metrics if enabled and returns the func stopping it.
func serveMetrics() func() {
	if metricsAddr == "" {
		return func() {}
	}

	srv := &http.Server{
		Addr:              metricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: time.Second * 5,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("serving metrics", "err", err)
		}
	}()
	return func() {
		_ = srv.Shutdown(context.Background())
	}
}
