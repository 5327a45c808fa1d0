package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tabilist",
	Short: "Tabilist travel wishlist tracker",
	Long:  "Tabilist is the backend for a travel wishlist tracker, providing account signup and login, cookie-based session management, and shared account groups with invitations.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/tabilist.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
