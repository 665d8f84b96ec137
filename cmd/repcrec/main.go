// Command repcrec replays a transactional instruction stream against the
// replicated concurrency-control engine in internal/engine and prints the
// resulting read/commit/abort/dump lines.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
