// Command sheetbase manages a store from the command line: it inspects and
// dumps tables, creates stores and tabs, seeds fake data and runs
// migrations.
package main

import (
	"fmt"
	"os"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
