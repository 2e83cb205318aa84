// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit status categories. The pipeline core reports errors; mapping them
// to process statuses happens here.
const (
	StatusUsage      = 1 // bad flags / host-program error
	StatusNoInput    = 2 // output stage enabled without an input source
	StatusOpenFailed = 3 // capture source failed to open
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "pktdump",
	Short: "pktdump - replay captured traffic through a pipeline of packet stages",
	Long: `pktdump reads a recorded capture file and runs every frame through an
ordered pipeline of pluggable stages. A stage may filter frames, mutate
them in place, claim them away from later stages, or export them (hex
dump, protocol print, pcap rewrite). Any frame not claimed by a stage is
returned to the capture buffer pool at the end of its batch.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path")
	rootCmd.AddCommand(runCmd)
}

// exitWithStatus prints the error with source context and terminates with
// the given status category.
func exitWithStatus(status int, msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(status)
}
