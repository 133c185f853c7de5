package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// app carries what every subcommand needs; tests swap its parts
type app struct {
	configPath string
	out        io.Writer
	staging    stagingFactory
	live       liveFactory
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sr",
		Short:         "Secret Review CLI: propose, review and inspect secret changes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if a.out == nil {
				a.out = cmd.OutOrStdout()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", defaultConfigPath(), "path to the CLI config file")

	cmd.AddCommand(newConfigureCmd(a))
	cmd.AddCommand(newProposeCmd(a))
	cmd.AddCommand(newApproveCmd(a))
	cmd.AddCommand(newRejectCmd(a))
	cmd.AddCommand(newRollbackCmd(a))
	cmd.AddCommand(newPullCmd(a))
	cmd.AddCommand(newHistoryCmd(a))
	cmd.AddCommand(newStatusCmd(a))
	return cmd
}

func Execute() {
	a := &app{staging: newAWSStagingStore, live: newAWSLiveReader}
	if err := newRootCmd(a).Execute(); err != nil {
		if errors.Is(err, errAuthExpired) {
			fmt.Fprintln(os.Stderr, "Authentication expired. Run: sr configure --token <NEW_TOKEN>")
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func (a *app) client() (*apiClient, error) {
	cfg, err := loadConfig(a.configPath)
	if err != nil {
		return nil, err
	}
	return newAPIClient(cfg), nil
}
