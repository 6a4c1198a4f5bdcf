package cmd

import (
	"flag"

	"github.com/spf13/cobra"
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	v := newViper()
	rootCmd := &cobra.Command{
		Use:           "collabctl",
		Short:         "Join and edit ideasync collaboration sessions from the terminal",
		Long:          "collabctl connects to an ideasync relay, creates or joins collaborative sessions and streams their events while you edit the shared idea.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	bindPersistentFlags(rootCmd, v)
	// glog registers its flags on the standard flag set
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	rootCmd.AddCommand(
		newVersionCmd(),
		newCreateCmd(v),
		newJoinCmd(v),
		newShowCmd(v),
		newListCmd(v),
	)
	return rootCmd
}
