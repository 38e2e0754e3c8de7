package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reel/internal/ipc"
)

func newProvisionCommand(ctx *commandContext) *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Converge the OBS capture layout without recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Provision(profile)
				if err != nil {
					return err
				}
				if !resp.Applied {
					return fmt.Errorf("provisioning failed: %s", resp.Message)
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "Capture profile to provision")
	return cmd
}
