package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"livewatcher.com/config"
	"livewatcher.com/recorder"
	"livewatcher.com/server"
)

const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the recording API and the product webhook inbox",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Int("port", config.Defaults().Port, "listen port")
	cobra.CheckErr(viper.BindPFlag(config.KeyPort, serveCmd.Flags().Lookup("port")))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	base, err := os.Getwd()
	if err != nil {
		return err
	}
	rec := recorder.NewManager(cfg.FFmpegPath, base, cfg.RecordDir, cfg.LogDir, log)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.New(rec, cfg.PublicDir, log).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Infof("listening on http://localhost:%d", cfg.Port)
		log.Infof("static files: %s", filepath.Join(base, cfg.PublicDir))
		log.Infof("recording logs: %s", filepath.Join(base, cfg.LogDir))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("stopping all recordings")
	rec.StopAll(shutdownGrace)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("could not shut down: %w", err)
	}
	return nil
}
