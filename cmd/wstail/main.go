// wstail connects to the backend WebSocket and streams decoded frames to the
// console.
//
// Usage: wstail --url ws://localhost:3001/ws [--verbose] [--type custom_event]
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
