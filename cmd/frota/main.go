// Command frota is the fleet exchange client: field catalog, CSV exports
// and the import preview/confirm workflow, from the command line or a
// terminal UI.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "erro:", err)
		}
		os.Exit(1)
	}
}
