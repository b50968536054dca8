package main

import (
	"fmt"
	"os"

	"github.com/foramoment/engram-ai-memory/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "engram:", err)
		os.Exit(1)
	}
}
