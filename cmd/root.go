package cmd

import (
	"fmt"
	"os"

	"github.com/makeflow/ordered-lock/cmd/lock"
	"github.com/makeflow/ordered-lock/cmd/serve"
	"github.com/makeflow/ordered-lock/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "olock",
		Short: "single-threaded ordered distributed lock service",
		Long: fmt.Sprintf(`ordered-lock (v%s)

A distributed lock service granting named locks on one or more resources
in strict request arrival order, with ttl based expiry and a client that
reconnects and auto-extends.`, Version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of ordered-lock",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ordered-lock v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, gob). json is the cross-language wire format"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
