package cli

import (
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jalmargyyk/pe-dhcpd/dhcpd"
)

var replayCmd = &cobra.Command{
	Use:   "replay capture.pcap",
	Short: "Show how a packet capture would be answered",
	Long: `Replay runs every DHCP request found in a pcap capture (as written by
tcpdump -w or by serve --trace-file) through the reply logic and prints
requests and replies. Nothing is sent on the network.`,
	Args: cobra.ExactArgs(1),
	PreRun: func(cmd *cobra.Command, args []string) {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			fatalf("Error binding flags: %s", err)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := replyConfigFromViper(viper.GetViper())
		if err != nil {
			fatalf("Error reading configuration: %s", err)
		}
		if cfg.Options.ServerIP == nil {
			// Replies only need some identifier here, don't fail offline.
			if cfg.Options.ServerIP, err = dhcpd.GuessServerIP(); err != nil {
				cfg.Options.ServerIP = net.IPv4zero
			}
		}
		if err := cfg.Options.Validate(); err != nil {
			fatalf("Invalid reply options: %s", err)
		}
		logger, err := newLogger(logConfigFromViper(viper.GetViper()))
		if err != nil {
			fatalf("Error creating logger: %s", err)
		}
		defer func() { _ = logger.Sync() }()

		f, err := os.Open(args[0])
		if err != nil {
			fatalf("Error opening capture: %s", err)
		}
		defer f.Close()

		s := &dhcpd.Server{
			Transformer: dhcpd.Transformer{Options: cfg.Options},
			Events:      dhcpd.LogEvents(logger.Sugar()),
			DropInvalid: cfg.DropInvalid,
		}
		stats, err := s.Replay(f, cmd.OutOrStdout())
		if err != nil {
			fatalf("Error replaying %s: %s", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d packets, %d requests, %d replies\n", stats.Packets, stats.Requests, stats.Replies)
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replyFlags(replayCmd.Flags())
	logFlags(replayCmd.Flags())
}
