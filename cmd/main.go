package main

import (
	"fmt"
	"os"

	"github.com/xhad/annotscan/internal/ui"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.FormatError(err))
		os.Exit(1)
	}
}
