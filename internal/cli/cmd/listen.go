package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/strand-protocol/unp/pkg/engine"
	"github.com/strand-protocol/unp/pkg/protocol"
)

var (
	listenPort int
	listenEcho bool
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Run a UNP listener that prints inbound \"ping\" commands and events",
	Long: `listen starts a UNP server on the configured port and prints every
inbound Command or Event whose command is "ping". With --echo, every inbound
"echo" Query is also printed and answered with its own payload. Messages of
other types or commands are not printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port := listenPort
		if port == 0 {
			port = 6477
		}

		e, err := engine.StartServer(engine.Options{
			ServerPort:        port,
			ProtocolSignature: cfg.Signature(),
			MaxPacketSize:     cfg.MaxPacketSize,
			AckResendTimeout:  cfg.AckResendTimeout,
			AckForgetTimeout:  cfg.AckForgetTimeout,
			Logger:            &logger,
		})
		if err != nil {
			return fmt.Errorf("start server: %w", err)
		}
		defer e.Close()

		print := func(ctx context.Context, m *protocol.Message) {
			out, _ := json.Marshal(m.Payload)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s%s from %s: %s\n", m.Type, m.Type, m.CommandString(), m.Sender, out)
		}
		e.OnCommand("ping", print)
		e.OnEvent("ping", print)

		if listenEcho {
			e.OnQuery("echo", func(ctx context.Context, q *protocol.Message) {
				print(ctx, q)
				if err := e.SendResponseFor(ctx, q, q.Payload, engine.SendOptions{}); err != nil {
					logger.Warn().Err(err).Msg("echo reply failed")
				}
			})
		}

		fmt.Fprintf(cmd.OutOrStdout(), "listening on :%d (ctrl-c to stop)\n", port)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		return nil
	},
}

func init() {
	listenCmd.Flags().IntVar(&listenPort, "port", 6477, "UDP port to listen on")
	listenCmd.Flags().BoolVar(&listenEcho, "echo", false, "answer inbound \"echo\" queries with their own payload")
	rootCmd.AddCommand(listenCmd)
}
