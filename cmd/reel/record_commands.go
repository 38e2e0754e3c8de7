package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"reel/internal/ipc"
)

func newRecordCommand(ctx *commandContext) *cobra.Command {
	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Control recording sessions",
	}

	recordCmd.AddCommand(newRecordStartCommand(ctx))
	recordCmd.AddCommand(newRecordStopCommand(ctx))
	recordCmd.AddCommand(newRecordStatusCommand(ctx))

	return recordCmd
}

func newRecordStartCommand(ctx *commandContext) *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:   "start <project>",
		Short: "Start recording a session for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Start(args[0], profile)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if !resp.Started {
					return fmt.Errorf("recording not started: %s", resp.Message)
				}
				fmt.Fprintf(stdout, "Recording started (session %s)\n", resp.SessionID)
				fmt.Fprintf(stdout, "Session directory: %s\n", resp.SessionDir)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "Capture profile to provision")
	return cmd
}

func newRecordStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the active recording session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Stop()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if !resp.Stopped {
					return fmt.Errorf("recording not stopped: %s", resp.Message)
				}
				duration := time.Duration(resp.DurationSeconds * float64(time.Second)).Round(time.Second)
				fmt.Fprintf(stdout, "Recording stopped after %s\n", duration)
				for _, artifact := range resp.Artifacts {
					fmt.Fprintf(stdout, "  %s\n", artifact)
				}
				if resp.Message != "" {
					fmt.Fprintln(stdout, resp.Message)
				}
				return nil
			})
		},
	}
}

func newRecordStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of the active session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				connKind := statusError
				connMsg := "disconnected"
				if resp.Connected {
					connKind = statusOK
					connMsg = "connected"
				}
				fmt.Fprintln(stdout, renderStatusLine("OBS", connKind, connMsg, colorize))
				fmt.Fprintln(stdout, renderStatusLine("State", statusInfo, resp.State, colorize))
				if resp.SessionID != "" {
					fmt.Fprintln(stdout, renderStatusLine("Session", statusInfo, resp.SessionID, colorize))
					fmt.Fprintln(stdout, renderStatusLine("Project", statusInfo, resp.Project, colorize))
					fmt.Fprintln(stdout, renderStatusLine("Directory", statusInfo, resp.SessionDir, colorize))
					fmt.Fprintln(stdout, renderStatusLine("Started", statusInfo, resp.StartedAt, colorize))
				}
				return nil
			})
		},
	}
}
