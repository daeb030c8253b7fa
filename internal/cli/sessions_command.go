package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

func newSessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Show recent playback sessions",
		RunE:  runSessionsE,
	}

	cmd.Flags().IntP("limit", "n", 10, "Number of sessions to show")

	return cmd
}

func runSessionsE(cmd *cobra.Command, args []string) error {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		slog.Error("CLI instance not found in context")
		return fmt.Errorf("CLI instance not found in context")
	}

	cfg, err := loadAndValidateConfig(cmd, cli)
	if err != nil {
		return err
	}

	recorder := cli.openSessionDB(cfg)
	if recorder == nil {
		cmd.PrintErrln("Session history is disabled or unavailable")
		return fmt.Errorf("session history unavailable")
	}

	limit, _ := cmd.Flags().GetInt("limit")
	records, err := recorder.Recent(limit)
	if err != nil {
		cmd.PrintErrf("Error reading session history: %v\n", err)
		return fmt.Errorf("failed to read session history: %w", err)
	}

	if len(records) == 0 {
		cmd.Println("No sessions recorded yet")
		return nil
	}

	for _, rec := range records {
		duration := "running"
		if rec.StoppedAt != nil {
			duration = rec.StoppedAt.Sub(rec.StartedAt).Round(time.Second).String()
		}

		device := rec.DeviceName
		if device == "" {
			device = "default"
		}

		cmd.Printf("%s  %-8s  %d track(s)  %d Hz  %s\n",
			rec.StartedAt.Format("2006-01-02 15:04:05"),
			duration, rec.TrackCount, rec.SampleRate, device)

		for _, file := range rec.Files {
			cmd.Printf("    %s\n", file)
		}
		if rec.CapturePath != "" {
			cmd.Printf("    -> %s\n", rec.CapturePath)
		}
	}

	return nil
}
