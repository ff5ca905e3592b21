package watcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"livewatcher.com/models"
)

// RoomRecord is the persisted projection of a Room.
type RoomRecord struct {
	ID      string           `json:"id"`
	URL     string           `json:"url"`
	Name    string           `json:"name"`
	Status  models.RoomState `json:"status"`
	AddedAt time.Time        `json:"addedAt"`
}

type roomSet struct {
	Rooms []RoomRecord `json:"rooms"`
}

// RoomFile stores the intended room set as a JSON document that is
// rewritten in full on every change.
type RoomFile struct {
	Path string

	mu sync.Mutex
}

func NewRoomFile(path string) *RoomFile {
	return &RoomFile{Path: path}
}

// Load returns the persisted rooms in file order. A missing file is an
// empty set.
func (f *RoomFile) Load() ([]RoomRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", f.Path, err)
	}

	var set roomSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", f.Path, err)
	}
	return set.Rooms, nil
}

func (f *RoomFile) Save(records []RoomRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if records == nil {
		records = []RoomRecord{}
	}
	data, err := json.MarshalIndent(roomSet{Rooms: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal room set: %w", err)
	}

	if dir := filepath.Dir(f.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("could not create %s: %w", dir, err)
		}
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("could not write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		return fmt.Errorf("could not replace %s: %w", f.Path, err)
	}
	return nil
}
