// Command p2p-agent is the peer agent daemon's entry point: a cobra
// command tree with a root command holding persistent flags,
// cobra.OnInitialize wiring logging, and subcommands registered in
// init(). Exit codes follow a fixed contract: 0 clean, 1 generic, 2
// config invalid, 3 diagnostics critical, 4 another instance running.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}
