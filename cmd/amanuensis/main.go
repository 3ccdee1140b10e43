// Package main provides the entry point for the amanuensis CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/amanuensis/cmd/amanuensis/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
