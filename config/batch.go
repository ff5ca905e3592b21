package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

type BatchRoom struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

type BatchSettings struct {
	MaxRooms     int    `json:"maxRooms"`
	PollInterval int    `json:"pollInterval"`
	Webhook      string `json:"webhook"`
}

type Batch struct {
	Rooms    []BatchRoom   `json:"rooms"`
	Settings BatchSettings `json:"settings"`
}

// DefaultBatch is written out when no usable batch file exists.
var DefaultBatch = Batch{
	Rooms: []BatchRoom{
		{URL: "https://live.douyin.com/69376413096", Name: "room-one"},
		{URL: "https://live.douyin.com/12345678", Name: "room-two"},
		{URL: "https://live.douyin.com/87654321", Name: "room-three"},
	},
	Settings: BatchSettings{
		MaxRooms:     5,
		PollInterval: 15,
		Webhook:      DefaultWebhook,
	},
}

// LoadBatch reads the batch file at path. A missing or unparsable file is
// replaced by DefaultBatch, and written reports that it happened.
func LoadBatch(path string) (b Batch, written bool, err error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Batch{}, false, fmt.Errorf("could not read batch file: %w", err)
	default:
		if err := json.Unmarshal(data, &b); err == nil {
			return b, false, nil
		}
	}

	out, err := json.MarshalIndent(DefaultBatch, "", "  ")
	if err != nil {
		return Batch{}, false, err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return Batch{}, false, fmt.Errorf("could not write default batch file: %w", err)
	}
	return DefaultBatch, true, nil
}

// Apply overrides cfg with the non-zero batch settings.
func (s BatchSettings) Apply(cfg Config) Config {
	if s.MaxRooms > 0 {
		cfg.MaxRooms = s.MaxRooms
	}
	if s.PollInterval > 0 {
		cfg.PollInterval = time.Duration(s.PollInterval) * time.Second
	}
	if s.Webhook != "" {
		cfg.Webhook = s.Webhook
	}
	return cfg
}
