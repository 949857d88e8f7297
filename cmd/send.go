package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/luma/eventmsg/client"
	"github.com/luma/eventmsg/protocol"
)

var (
	bridgeAddr string
	from       uint8
	to         uint8
	group      uint8
	waitFor    string
	timeout    time.Duration
)

func init() {
	flags := SendCmd.Flags()

	flags.StringVar(&bridgeAddr, "bridge", "127.0.0.1:7363", "Address of the bridge")
	flags.Uint8Var(&from, "from", 0x00, "Address to send from")
	flags.Uint8Var(&to, "to", protocol.Broadcast, "Address to send to")
	flags.Uint8Var(&group, "group", 0x00, "Group to send to")
	flags.StringVar(&waitFor, "wait-for", "", "Wait for an event with this name and print its payload")
	flags.DurationVar(&timeout, "timeout", 5*time.Second, "How long to wait for the bridge")
}

var SendCmd = &cobra.Command{
	Use:   "send EVENT [PAYLOAD]",
	Short: "Send one event through a bridge",
	Long: `Send one event through a bridge

Usage
	eventmsg send PING --wait-for PONG
	eventmsg send SET on --to 0x10

`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		var payload []byte
		if len(args) > 1 {
			payload = []byte(args[1])
		}

		conn, err := client.New(client.Options{Addr: from, Group: group})
		if err != nil {
			return err
		}

		if err := conn.Connect(ctx, bridgeAddr); err != nil {
			return err
		}
		defer conn.Disconnect()

		h := protocol.NewHeader(from, to, group)

		if waitFor == "" {
			n, err := conn.Node().Send(args[0], payload, h)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Sent %s (%d bytes)\n", args[0], n)
			return nil
		}

		reply, err := conn.Request(ctx, args[0], payload, h, waitFor)
		if err != nil {
			return fmt.Errorf("waiting for %s: %w", waitFor, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s from 0x%02X: %s\n", reply.Name, reply.Header.Sender, reply.Text())
		return nil
	},
}
