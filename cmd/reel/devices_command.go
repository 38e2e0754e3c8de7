package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reel/internal/devices"
)

func newDevicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List attached capture hardware",
		RunE: func(cmd *cobra.Command, args []string) error {
			inventory, err := devices.Enumerate(cmd.Context())
			if err != nil {
				return fmt.Errorf("enumerate devices: %w", err)
			}
			stdout := cmd.OutOrStdout()
			if len(inventory.Video) == 0 && len(inventory.Audio) == 0 {
				fmt.Fprintln(stdout, "No capture devices detected")
				return nil
			}

			rows := make([][]string, 0, len(inventory.Video)+len(inventory.Audio))
			for _, device := range inventory.Video {
				rows = append(rows, []string{"video", device.Name, device.Path})
			}
			for _, device := range inventory.Audio {
				rows = append(rows, []string{"audio", device.Name, device.Path})
			}
			table := renderTable(
				[]string{"Type", "Name", "Path"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
			)
			fmt.Fprintln(stdout, table)
			return nil
		},
	}
}
