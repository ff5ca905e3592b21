package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"livewatcher.com/config"
	"livewatcher.com/shell"
)

const (
	batchAddGap        = 3 * time.Second
	batchStatusEvery   = time.Minute
	defaultBatchConfig = "batch-config.json"
)

var batchFile string

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Monitor every room listed in a batch file",
	Long: `Reads the rooms and settings from a batch file and monitors them until
interrupted. A default file is written when none exists or it cannot be parsed.`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "config", defaultBatchConfig, "batch file")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	batch, written, err := config.LoadBatch(batchFile)
	if err != nil {
		return err
	}
	if written {
		fmt.Fprintf(out, "wrote default batch file %s\n", batchFile)
	} else {
		fmt.Fprintf(out, "loaded batch file %s\n", batchFile)
	}

	runCfg := batch.Settings.Apply(cfg)
	if err := runCfg.Validate(); err != nil {
		return fmt.Errorf("invalid batch settings: %w", err)
	}

	m, err := newMonitor(runCfg)
	if err != nil {
		return err
	}
	defer m.shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(out, "adding %d rooms\n", len(batch.Rooms))
	for i, room := range batch.Rooms {
		if i > 0 {
			select {
			case <-ctx.Done():
				fmt.Fprintln(out, "stopping...")
				return nil
			case <-time.After(batchAddGap):
			}
		}
		fmt.Fprintf(out, "adding %s - %s\n", room.Name, room.URL)
		m.Add(ctx, room.URL, room.Name)
	}

	fmt.Fprintln(out, "all rooms added, press Ctrl+C to stop")
	ticker := time.NewTicker(batchStatusEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "stopping...")
			return nil
		case <-ticker.C:
			shell.PrintStatus(out, m.Status())
		}
	}
}
