// Command docsearch searches a generated documentation site from the
// terminal: one-shot queries, target resolution, an interactive session that
// reads one keystroke line at a time, and site manifest publishing.
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
