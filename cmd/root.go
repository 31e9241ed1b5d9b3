package cmd

import (
	"github.com/spf13/cobra"

	"github.com/garystafford/product-video-generator-app/config"
)

func Root(config *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{}
	rootCmd.AddCommand(server(config))
	rootCmd.AddCommand(batch(config))
	return rootCmd
}
