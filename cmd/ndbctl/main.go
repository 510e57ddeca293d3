package main

import (
	"fmt"
	"os"
)

// Version is stamped at build time; left at its default outside release
// builds, matching the teacher's cmd/parenta/main.go Version var.
var Version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitGeneral)
	}
}
