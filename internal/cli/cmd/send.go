package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/strand-protocol/unp/pkg/engine"
)

var (
	sendWantAck bool
	sendRetries int
	sendIsQuery bool
	sendTimeout time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send <addr> <command> [json-payload]",
	Short: "Send one command or query to a UNP peer",
	Long: `send transmits a single Command (default) or Query (--query) to
addr, optionally waiting for delivery (--ack) or a response (--query).`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		addrStr, command := args[0], args[1]
		var payload any
		if len(args) == 3 {
			if err := json.Unmarshal([]byte(args[2]), &payload); err != nil {
				return fmt.Errorf("parse payload: %w", err)
			}
		}

		peer, err := net.ResolveUDPAddr("udp", addrStr)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", addrStr, err)
		}

		e, err := engine.StartClient(engine.Options{
			ProtocolSignature: cfg.Signature(),
			MaxPacketSize:     cfg.MaxPacketSize,
			AckResendTimeout:  cfg.AckResendTimeout,
			AckForgetTimeout:  cfg.AckForgetTimeout,
			Logger:            &logger,
		})
		if err != nil {
			return fmt.Errorf("start client: %w", err)
		}
		defer e.Close()

		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		opts := engine.SendOptions{WantAck: sendWantAck, Retries: sendRetries}

		if sendIsQuery {
			w, err := e.SendQuery(ctx, peer, command, payload, opts)
			if err != nil {
				return fmt.Errorf("send query: %w", err)
			}
			resp, err := w.Wait(ctx)
			if err != nil {
				return fmt.Errorf("await response: %w", err)
			}
			out, err := json.MarshalIndent(resp.Payload, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[session %s] %s\n", sessionID, out)
			return nil
		}

		if err := e.SendCommand(ctx, peer, command, payload, opts); err != nil {
			return fmt.Errorf("send command: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "[session %s] sent %q to %s\n", sessionID, command, peer)
		return nil
	},
}

func init() {
	sendCmd.Flags().BoolVar(&sendWantAck, "ack", false, "request a delivery acknowledgement")
	sendCmd.Flags().IntVar(&sendRetries, "retries", 2, "resend attempts when --ack is set")
	sendCmd.Flags().BoolVar(&sendIsQuery, "query", false, "send a Query and wait for its Response")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 3*time.Second, "overall deadline for the send (and response wait, if --query)")
	rootCmd.AddCommand(sendCmd)
}
