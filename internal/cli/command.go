package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-concierge/internal/bus"
	"github.com/loqalabs/loqa-concierge/internal/config"
	"github.com/loqalabs/loqa-concierge/internal/protocol"
)

func newCommandCmd(opts *options) *cobra.Command {
	var (
		servers []string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "command <session-id> <message|send|listen|stop|language> [text]",
		Short: "Drive a mounted session over the bus",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, action := args[0], args[1]
			payload := protocol.SessionCommand{Action: action}
			rest := strings.Join(args[2:], " ")
			switch action {
			case protocol.ActionLanguage:
				if rest == "" {
					return errors.New("language requires a tag")
				}
				payload.Language = rest
			case protocol.ActionMessage, protocol.ActionSend:
				payload.Text = rest
			case protocol.ActionListen, protocol.ActionStop:
			default:
				return fmt.Errorf("unknown action %q", action)
			}

			busCfg := config.BusConfig{Servers: servers, ConnectTimeout: int(timeout.Milliseconds())}
			if len(busCfg.Servers) == 0 {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				busCfg = cfg.Bus
				busCfg.Embedded = false
			}
			client, err := bus.Connect(cmd.Context(), "concierge-ctl", busCfg, opts.logger(cmd))
			if err != nil {
				return err
			}
			defer client.Close()

			data, err := json.Marshal(payload)
			if err != nil {
				return err
			}
			msg, err := client.Conn().Request(protocol.SessionCommandSubject(sessionID), data, timeout)
			if err != nil {
				return fmt.Errorf("send command: %w", err)
			}
			var ack protocol.CommandAck
			if err := json.Unmarshal(msg.Data, &ack); err != nil {
				return fmt.Errorf("decode ack: %w", err)
			}
			if !ack.OK {
				return fmt.Errorf("command rejected: %s", ack.Error)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return err
		},
	}
	cmd.Flags().StringSliceVar(&servers, "servers", nil, "NATS servers; defaults to bus.servers from the configuration")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "How long to wait for the acknowledgement")
	return cmd
}
