package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"livewatcher.com/shell"
)

const (
	liveURLKey       = "live_url"
	watchFirstStatus = 5 * time.Second
	watchStatusEvery = 30 * time.Second
)

var errNoLiveURL = errors.New("no room url: pass --url or set LIVE_URL")

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Monitor a single room",
	Example: `  livewatcher watch --url https://live.douyin.com/415069212308
  LIVE_URL=https://live.douyin.com/415069212308 livewatcher watch`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().String("url", "", "room url (defaults to LIVE_URL)")
	cobra.CheckErr(viper.BindPFlag(liveURLKey, watchCmd.Flags().Lookup("url")))
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	url := viper.GetString(liveURLKey)
	if url == "" {
		return errNoLiveURL
	}
	out := cmd.OutOrStdout()

	m, err := newMonitor(cfg)
	if err != nil {
		return err
	}
	defer m.shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id, ok := m.ExtractRoomID(url)
	if !ok {
		id = "unknown"
	}
	fmt.Fprintf(out, "monitoring %s\n", url)
	if !m.Add(ctx, url, "room_"+id) {
		return fmt.Errorf("could not add room %s", url)
	}
	fmt.Fprintln(out, "press Ctrl+C to stop")

	first := time.NewTimer(watchFirstStatus)
	defer first.Stop()
	ticker := time.NewTicker(watchStatusEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "stopping...")
			return nil
		case <-first.C:
			shell.PrintStatus(out, m.Status())
		case <-ticker.C:
			shell.PrintStatus(out, m.Status())
		}
	}
}
