package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"ifrs9-ecl/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}
