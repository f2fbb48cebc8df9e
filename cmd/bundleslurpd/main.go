package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "bundleslurpd",
	Short: "bundleslurpd flattens clinical bundles into a date partitioned warehouse",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $PWD/bundleslurpd.yaml)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(discoverCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
