package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luma/eventmsg/internal/meta"
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "eventmsg", meta.GetInfo())
	},
}
