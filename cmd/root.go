package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"livewatcher.com/config"
	"livewatcher.com/database"
	"livewatcher.com/scraper"
	"livewatcher.com/watcher"
	"livewatcher.com/webhook"
)

var (
	settingsFile string
	envFile      string

	cfg config.Config
	log = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "livewatcher",
	Short: "Watch livestream rooms for newly shown products",
	Long: `livewatcher opens a headless browser per livestream room, captures the
products the room shows from its API traffic and its page, stores new ones
and forwards them to a webhook.

Run without a subcommand to get the interactive shell.`,
	SilenceUsage:      true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return initConfig() },
	RunE:              runShell,
}

// Execute runs the root command. It is called by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	defaults := config.Defaults()
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&settingsFile, "settings", "", "settings file (yaml, json or toml)")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	pf.String("webhook", defaults.Webhook, "url new products are posted to, empty to disable")
	pf.Int("max-rooms", defaults.MaxRooms, "maximum number of rooms monitored at once")
	pf.Int("poll", int(defaults.PollInterval.Seconds()), "seconds between page scans")
	pf.Bool("headless", defaults.Headless, "run the browsers headless")
	pf.String("db", defaults.DBPath, "product store path")
	pf.String("rooms-file", defaults.RoomsFile, "file the monitored rooms are saved to")
	pf.String("log-level", defaults.LogLevel, "log level")

	for key, flag := range map[string]string{
		config.KeyWebhook:    "webhook",
		config.KeyMaxRooms:   "max-rooms",
		config.KeyPollDOMSec: "poll",
		config.KeyHeadless:   "headless",
		config.KeyDBPath:     "db",
		config.KeyRoomsFile:  "rooms-file",
		config.KeyLogLevel:   "log-level",
	} {
		cobra.CheckErr(viper.BindPFlag(key, pf.Lookup(flag)))
	}
}

func initConfig() error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("could not load %s: %w", envFile, err)
	}

	if settingsFile != "" {
		viper.SetConfigFile(settingsFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("could not read settings: %w", err)
		}
	}

	var err error
	if cfg, err = config.Load(viper.GetViper()); err != nil {
		return err
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", config.KeyLogLevel, err)
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}

// monitor is everything a front end needs to run rooms.
type monitor struct {
	*watcher.Registry
	launcher *scraper.PlaywrightLauncher
}

func newMonitor(cfg config.Config) (*monitor, error) {
	opts, err := watcher.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := database.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("could not open product store: %w", err)
	}

	launcher := scraper.NewPlaywrightLauncher(log)
	forwarder := webhook.NewClient(cfg.Webhook, cfg.WebhookRetries, cfg.WebhookTimeout, log)
	reg := watcher.NewRegistry(opts, launcher, store, forwarder, watcher.NewRoomFile(cfg.RoomsFile), log)
	return &monitor{Registry: reg, launcher: launcher}, nil
}

// shutdown removes every room and stops the browser driver.
func (m *monitor) shutdown() {
	m.RemoveAll(context.Background())
	if err := m.launcher.Close(); err != nil {
		log.WithError(err).Warn("could not stop playwright")
	}
}
