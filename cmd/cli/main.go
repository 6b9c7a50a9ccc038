// Command cli runs the command pipeline locally: list the catalog, dispatch
// single invocations or start an interactive console.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
