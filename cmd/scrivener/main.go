// Command scrivener generates documentation comments for source files via an
// asynchronous LLM batch API.
package main

import (
	"fmt"
	"os"

	"github.com/scrivener-tools/scrivener/internal/cli"
)

// version is overridden by the linker at release build time.
var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
