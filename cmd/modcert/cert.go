package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iykyk-syn/modcert"
	"github.com/iykyk-syn/modcert/action"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <author-hex> <ts>",
	Short: "Request deletion of your own certified message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		n, err := openNode(offline)
		if err != nil {
			return err
		}
		defer n.Close()

		cert, err := n.findCert(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if err = action.NewDeleter(n.signer, n.store).Delete(ctx, cert.MsgCert); err != nil {
			return err
		}
		fmt.Println(cert.ID(), "deleted")
		return nil
	},
}

var reportWait time.Duration

var reportCmd = &cobra.Command{
	Use:   "report <author-hex> <ts> <reason>",
	Short: "Report a certified message to moderators",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		n, err := openNode(client)
		if err != nil {
			return err
		}
		defer n.Close()

		cert, err := n.findCert(ctx, args[0], args[1])
		if err != nil {
			return err
		}

		topic, err := n.reportTopic(ctx, reportWait)
		if err != nil {
			return err
		}
		defer topic.Stop(ctx) //nolint: errcheck

		envelope, err := action.NewReporter(n.signer.ID(), topic).Report(ctx, cert.MsgCert, args[2])
		if err != nil {
			return err
		}
		fmt.Printf("%s reported to %d peers: %s\n", envelope.ID(), len(topic.Peers()), envelope.Reason)
		return nil
	},
}

func init() {
	reportCmd.Flags().DurationVar(&reportWait, "wait", time.Second*5, "How long to wait for moderators to join the report topic")
}

var (
	listTs  int64
	listAll bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored certified messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		n, err := openNode(offline)
		if err != nil {
			return err
		}
		defer n.Close()

		var certs []modcert.RetMsgCert
		if listTs > 0 {
			certs, err = n.store.FetchByTimestamp(ctx, listTs)
		} else {
			certs, err = n.store.FetchAll(ctx)
		}
		if err != nil {
			return err
		}

		for _, c := range certs {
			if c.Deleted == modcert.DeletedYes && !listAll {
				continue
			}
			var mark string
			if c.Deleted == modcert.DeletedYes {
				mark = " [deleted]"
			}
			fmt.Printf("%s (%d judgments)%s\n  %s\n", c.ID(), len(c.ModCerts), mark, c.Msg.Content)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().Int64Var(&listTs, "ts", 0, "Only list messages with the timestamp")
	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "Include deleted messages")
}
