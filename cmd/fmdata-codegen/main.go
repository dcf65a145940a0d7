package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/Ratio1/fmdata_sdk_go/internal/cli"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
	root := cli.NewRootCmd(version, buildDate)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
