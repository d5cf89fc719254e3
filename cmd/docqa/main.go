// Command docqa answers questions about local documents without running the
// HTTP service.
package main

import (
	"fmt"
	"os"

	"docqa/cmd/docqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
