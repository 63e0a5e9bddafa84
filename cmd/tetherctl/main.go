// Command tetherctl talks to a node from the shell: it issues HTTP calls,
// manages the stored token and streams WebSocket events.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
