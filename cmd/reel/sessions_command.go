package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"reel/internal/ipc"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	var project string
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List past recording sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Sessions(project, limit)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Sessions) == 0 {
					fmt.Fprintln(stdout, "No sessions recorded")
					return nil
				}

				rows := make([][]string, 0, len(resp.Sessions))
				for _, session := range resp.Sessions {
					rows = append(rows, []string{
						session.Project,
						session.Profile,
						session.Status,
						fmt.Sprintf("%d", session.Artifacts),
						formatSize(session.Bytes),
						formatSessionDuration(session.DurationSeconds),
						session.StartedAt,
					})
				}
				table := renderTable(
					[]string{"Project", "Profile", "Status", "Files", "Size", "Duration", "Started"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
				)
				fmt.Fprintln(stdout, table)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Only show sessions for this project")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of sessions to show")
	return cmd
}

func formatSessionDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return time.Duration(seconds * float64(time.Second)).Round(time.Second).String()
}

func formatSize(n int64) string {
	if n <= 0 {
		return "-"
	}
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
