// Command engine is the local-rag-engine's terminal entrypoint: a small
// set of cobra subcommands for indexing folders, running hybrid retrieval
// queries, and managing agents and the backing database.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
