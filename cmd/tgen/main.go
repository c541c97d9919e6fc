package main

import (
	"fmt"
	"os"

	"github.com/zjy-dev/tgen/cmd/tgen/app"
)

func main() {
	if err := app.NewTgenCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
