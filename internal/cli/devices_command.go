package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func newDevicesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List playback devices",
		Long:  "Devices enumerates the playback devices visible to the audio backend, with the token number that identifies each one, and marks the system default.",
		RunE:  runDevicesE,
	}

	cmd.Flags().Bool("refresh", false, "Re-enumerate devices instead of using the cached list")

	return cmd
}

func runDevicesE(cmd *cobra.Command, args []string) error {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		slog.Error("CLI instance not found in context")
		return fmt.Errorf("CLI instance not found in context")
	}

	refresh, _ := cmd.Flags().GetBool("refresh")
	if refresh {
		if err := cli.deviceRegistry.Refresh(); err != nil {
			cmd.PrintErrf("Error enumerating devices: %v\n", err)
			return fmt.Errorf("failed to enumerate devices: %w", err)
		}
	}

	devices, err := cli.deviceRegistry.List()
	if err != nil {
		cmd.PrintErrf("Error enumerating devices: %v\n", err)
		return fmt.Errorf("failed to enumerate devices: %w", err)
	}

	if len(devices) == 0 {
		cmd.Println("No playback devices found")
		return nil
	}

	interactive := cli.isInteractiveTerminal(int(os.Stdout.Fd()))
	slog.Debug("listing playback devices", "count", len(devices), "interactive", interactive)

	for _, dev := range devices {
		marker := " "
		if dev.IsDefault {
			marker = "*"
		}
		cmd.Printf("%s %3d  %s\n", marker, dev.Token, dev.Name)
	}
	if interactive {
		cmd.Println("\n* = system default")
	}

	return nil
}
