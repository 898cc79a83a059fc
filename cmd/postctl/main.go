package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/maheshrc27/postpilot/cmd/postctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
