// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gsdump",
	Short: "gsdump - offline decoder for cloud game streaming captures",
	Long: `gsdump reads a pcap or pcapng capture of a game streaming session and decodes
every UDP datagram: STUN, connection probing, SRTP-protected RTP and the
multiplexed control and data channels carried inside it.

Features:
  - SRTP decryption (AES-CM/HMAC-SHA1 and AEAD AES-128-GCM) with rollover tracking
  - Probe round correlation and mux channel directory
  - Text or JSON record output with hexdumps of undecodable payloads
  - Rewrite mode: a new capture with decrypted RTP payloads substituted`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (YAML, root key gsdump)")

	// Add subcommands
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
