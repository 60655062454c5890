package main

import (
	"os"

	"github.com/0x6d61/necrosis/internal/cli"
)

func main() {
	// fang prints the error itself.
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
