// Package main is the entry point for the pktdump replay pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/pktpipe/pktdump/cmd"
	_ "github.com/pktpipe/pktdump/plugins"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cmd.StatusUsage)
	}
}
