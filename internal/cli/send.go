package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-concierge/internal/gateway"
	"github.com/loqalabs/loqa-concierge/internal/httpclient"
)

var errAssistantFailure = errors.New("assistant reported a failure")

func newSendCmd(opts *options) *cobra.Command {
	var (
		endpoint string
		proxy    string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message to the assistant and print its reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if endpoint == "" {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				endpoint = cfg.Assistant.Endpoint
				if proxy == "" {
					proxy = cfg.Assistant.Proxy
				}
			}
			httpClient, err := httpclient.New(timeout, proxy)
			if err != nil {
				return err
			}
			client, err := gateway.New(endpoint, httpClient, opts.logger(cmd))
			if err != nil {
				return err
			}
			reply, err := client.Send(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), reply.Display()); err != nil {
				return err
			}
			if reply.Kind != gateway.Success {
				return errAssistantFailure
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Assistant endpoint; defaults to assistant.endpoint from the configuration")
	cmd.Flags().StringVar(&proxy, "proxy", "", "SOCKS5 proxy address")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	return cmd
}
