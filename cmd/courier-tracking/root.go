package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "courier-tracking",
	Short: "Delivery tracking and live courier position sync",
	Long: `courier-tracking drives the delivery state machine, keeps the courier
position in sync with the tracking store and streams the live map.
Configuration is read from the environment.`,
	SilenceUsage: true,
}
