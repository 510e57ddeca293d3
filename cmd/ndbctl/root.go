package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ndbctl",
	Short: "Reconciles a personal domain-blocking policy against a NextDNS profile",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to ndbctl's settings file")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(unblockCmd)
	rootCmd.AddCommand(allowCmd)
	rootCmd.AddCommand(disallowCmd)
	rootCmd.AddCommand(panicCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(watchdogCmd)
	rootCmd.AddCommand(protectionCmd)
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ndbctl.json"
	}
	return home + "/.domainguard/ndbctl.json"
}

// withApp constructs the app for a command, runs fn, and always closes it,
// translating errors into the exit code taxonomy on the way out.
func withApp(fn func(a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		a, err := newApp(configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitConfig)
		}
		defer a.close()

		if err := fn(a, cmd, args); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitCodeFor(err))
		}
	}
}
