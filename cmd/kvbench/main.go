package main

import (
	"os"

	"kvbench/cmd/kvbench/cmd"
)

func main() {
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
