package config

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/spf13/viper"
)

var DefaultWebhook = "http://localhost:8790/api/product/new"

var DefaultRoomPattern = `live\.[\w.-]+/(\d+)`

// ProductAPIPatterns are the URL fragments of responses that carry product lists.
var ProductAPIPatterns = []string{
	"/webcast/product/",
	"/aweme/v1/web/product/",
	"/api/product/",
}

// ProductSelectors are tried in order and every match of every selector is collected.
var ProductSelectors = []string{
	`[data-e2e="product-item"]`,
	".product-item",
	".product-card",
	`[class*="product"]`,
	`[class*="goods"]`,
}

const (
	KeyWebhook        = "webhook"
	KeyPollDOMSec     = "poll_dom_sec"
	KeyMaxRooms       = "max_rooms"
	KeyRoomsFile      = "rooms_file"
	KeyProfilesDir    = "profiles_dir"
	KeyDBPath         = "db_path"
	KeyHeadless       = "headless"
	KeyNavTimeoutSec  = "nav_timeout_sec"
	KeyRestoreDelay   = "restore_delay_sec"
	KeyRoomPattern    = "room_pattern"
	KeyPort           = "port"
	KeyRecordDir      = "record_dir"
	KeyLogDir         = "log_dir"
	KeyPublicDir      = "public_dir"
	KeyFFmpegPath     = "ffmpeg_path"
	KeyLogLevel       = "log_level"
	KeyWebhookRetries = "webhook_retries"
	KeyWebhookTimeout = "webhook_timeout_sec"
)

type Config struct {
	Webhook        string
	PollInterval   time.Duration
	MaxRooms       int
	RoomsFile      string
	ProfilesDir    string
	DBPath         string
	Headless       bool
	NavTimeout     time.Duration
	RestoreDelay   time.Duration
	RoomPattern    string
	Port           int
	RecordDir      string
	LogDir         string
	PublicDir      string
	FFmpegPath     string
	LogLevel       string
	WebhookRetries int
	WebhookTimeout time.Duration
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyWebhook, DefaultWebhook)
	v.SetDefault(KeyPollDOMSec, 15)
	v.SetDefault(KeyMaxRooms, 5)
	v.SetDefault(KeyRoomsFile, "rooms.json")
	v.SetDefault(KeyProfilesDir, "profiles")
	v.SetDefault(KeyDBPath, "products.db")
	v.SetDefault(KeyHeadless, true)
	v.SetDefault(KeyNavTimeoutSec, 30)
	v.SetDefault(KeyRestoreDelay, 2)
	v.SetDefault(KeyRoomPattern, DefaultRoomPattern)
	v.SetDefault(KeyPort, 8790)
	v.SetDefault(KeyRecordDir, "recordings/douyin")
	v.SetDefault(KeyLogDir, "debug")
	v.SetDefault(KeyPublicDir, "public")
	v.SetDefault(KeyFFmpegPath, "ffmpeg")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyWebhookRetries, 3)
	v.SetDefault(KeyWebhookTimeout, 10)
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	v := viper.New()
	SetDefaults(v)
	return FromViper(v)
}

func FromViper(v *viper.Viper) Config {
	return Config{
		Webhook:        v.GetString(KeyWebhook),
		PollInterval:   time.Duration(v.GetInt(KeyPollDOMSec)) * time.Second,
		MaxRooms:       v.GetInt(KeyMaxRooms),
		RoomsFile:      v.GetString(KeyRoomsFile),
		ProfilesDir:    v.GetString(KeyProfilesDir),
		DBPath:         v.GetString(KeyDBPath),
		Headless:       v.GetBool(KeyHeadless),
		NavTimeout:     time.Duration(v.GetInt(KeyNavTimeoutSec)) * time.Second,
		RestoreDelay:   time.Duration(v.GetInt(KeyRestoreDelay)) * time.Second,
		RoomPattern:    v.GetString(KeyRoomPattern),
		Port:           v.GetInt(KeyPort),
		RecordDir:      v.GetString(KeyRecordDir),
		LogDir:         v.GetString(KeyLogDir),
		PublicDir:      v.GetString(KeyPublicDir),
		FFmpegPath:     v.GetString(KeyFFmpegPath),
		LogLevel:       v.GetString(KeyLogLevel),
		WebhookRetries: v.GetInt(KeyWebhookRetries),
		WebhookTimeout: time.Duration(v.GetInt(KeyWebhookTimeout)) * time.Second,
	}
}

// Load reads defaults, the optional config file and the environment into a
// validated Config.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)
	v.AutomaticEnv()

	cfg := FromViper(v)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.MaxRooms <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", KeyMaxRooms, c.MaxRooms))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyPollDOMSec))
	}
	if c.NavTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyNavTimeoutSec))
	}
	if c.RestoreDelay < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeyRestoreDelay))
	}
	if c.WebhookRetries < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1", KeyWebhookRetries))
	}
	if re, err := regexp.Compile(c.RoomPattern); err != nil {
		errs = append(errs, fmt.Errorf("could not compile %s: %w", KeyRoomPattern, err))
	} else if re.NumSubexp() != 1 {
		errs = append(errs, fmt.Errorf("%s needs exactly one capture group", KeyRoomPattern))
	}
	return errors.Join(errs...)
}
