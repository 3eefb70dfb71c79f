package main

import (
	"os"

	"github.com/varianta/varianta/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
