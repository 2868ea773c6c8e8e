// Command voicectl runs the glass-order conversation engine outside Lambda:
// an interactive chat, an HTTP/WebSocket server and journal inspection.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
