package cmd

import "fmt"

// Version information, injected at build time via ldflags.
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func printVersion() {
	fmt.Printf("haven %s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
}
