package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "dmphub",
	Short: "DMPHub — Data Management Plan registry",
	Long:  "DMPHub ingests machine-actionable Data Management Plans from partner systems, provisions accounts for their contributors, and serves them back under per-caller visibility rules.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/dmphub.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
