// Command stocksync runs and inspects the offline-first inventory sync.
package main

import (
	"errors"
	"fmt"
	"os"
)

// errSilent fails a command whose error was already shown to the user.
var errSilent = errors.New("silent")

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errSilent) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
