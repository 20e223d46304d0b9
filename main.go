// Package main is the entry point for gsdump, the game streaming capture decoder.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/gsdump/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
