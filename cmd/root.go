package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luma/eventmsg/cmd/gen"
)

// Path to an optional TOML config file
var configPath string

var RootCmd = &cobra.Command{
	Use:   "eventmsg",
	Short: "Bridge and tools for the eventmsg device protocol",
	Long: `Bridge and tools for the eventmsg device protocol

Devices exchange small named events in byte stuffed frames. The bridge accepts
devices over TCP, websockets and serial lines and routes events between them.`,
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")

	RootCmd.AddCommand(StartCmd)
	RootCmd.AddCommand(SendCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

func Execute() {
	if err := RootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
