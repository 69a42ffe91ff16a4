package main

import (
	"os"

	"github.com/engramhq/engram/pkg/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
