package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the Minerva version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("minerva version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
