// Package watcher tracks livestream rooms, one browser session each, and
// pipes the products they show into the product store and webhook.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"livewatcher.com/config"
	"livewatcher.com/database"
	"livewatcher.com/models"
	"livewatcher.com/scraper"
	"livewatcher.com/webhook"
)

var (
	ErrInvalidURL   = errors.New("invalid room url")
	ErrDuplicate    = errors.New("room already monitored")
	ErrCapacity     = errors.New("room capacity reached")
	ErrRoomNotFound = errors.New("room not found")
)

type ProductStore interface {
	SaveProducts(raw []models.RawProduct, room models.RoomContext, source models.Source) (database.SaveResult, error)
	Stats() (database.Stats, error)
	Close() error
}

type Forwarder interface {
	Send(ctx context.Context, products []models.Product, room models.RoomContext) webhook.Result
}

type Options struct {
	MaxRooms     int
	PollInterval time.Duration
	NavTimeout   time.Duration
	RestoreDelay time.Duration
	ProfilesDir  string
	Headless     bool
	RoomPattern  *regexp.Regexp
	APIPatterns  []string
	Selectors    []string
}

func OptionsFromConfig(cfg config.Config) (Options, error) {
	re, err := regexp.Compile(cfg.RoomPattern)
	if err != nil {
		return Options{}, fmt.Errorf("could not compile room pattern: %w", err)
	}
	return Options{
		MaxRooms:     cfg.MaxRooms,
		PollInterval: cfg.PollInterval,
		NavTimeout:   cfg.NavTimeout,
		RestoreDelay: cfg.RestoreDelay,
		ProfilesDir:  cfg.ProfilesDir,
		Headless:     cfg.Headless,
		RoomPattern:  re,
		APIPatterns:  config.ProductAPIPatterns,
		Selectors:    config.ProductSelectors,
	}, nil
}

// Status is what the status command shows: every room plus store totals.
type Status struct {
	Rooms    []models.RoomInfo
	Store    database.Stats
	StoreErr error
}

// Registry is the single source of truth for tracked rooms.
type Registry struct {
	opts      Options
	launcher  scraper.Launcher
	store     ProductStore
	forwarder Forwarder
	file      *RoomFile
	log       logrus.FieldLogger

	mu    sync.Mutex
	rooms map[string]*Room

	persistMu sync.Mutex
}

func NewRegistry(opts Options, launcher scraper.Launcher, store ProductStore, forwarder Forwarder, file *RoomFile, log logrus.FieldLogger) *Registry {
	if opts.RoomPattern == nil {
		opts.RoomPattern = regexp.MustCompile(config.DefaultRoomPattern)
	}
	return &Registry{
		opts:      opts,
		launcher:  launcher,
		store:     store,
		forwarder: forwarder,
		file:      file,
		log:       log,
		rooms:     make(map[string]*Room),
	}
}

// ExtractRoomID returns the numeric room id embedded in url.
func (r *Registry) ExtractRoomID(url string) (string, bool) {
	m := r.opts.RoomPattern.FindStringSubmatch(url)
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// Add starts monitoring url. It reports false, leaving the registry as it
// was, when the url is invalid, the room is already tracked, capacity is
// reached or the browser could not be brought up.
func (r *Registry) Add(ctx context.Context, url, name string) bool {
	room, err := r.reserve(url, name)
	if err != nil {
		r.log.WithField("url", url).WithError(err).Warn("could not add room")
		return false
	}

	room.log.Infof("adding room %s", room.URL)
	if err := r.start(ctx, room); err != nil {
		room.log.WithError(err).Error("could not start room")
		r.removeRoom(room)
		return false
	}

	room.log.Info("room is being monitored")
	r.persist()
	return true
}

func (r *Registry) reserve(url, name string) (*Room, error) {
	id, ok := r.ExtractRoomID(url)
	if !ok {
		return nil, ErrInvalidURL
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rooms[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	if len(r.rooms) >= r.opts.MaxRooms {
		return nil, fmt.Errorf("%w (%d)", ErrCapacity, r.opts.MaxRooms)
	}

	room := newRoom(id, url, name, r.log)
	r.rooms[id] = room
	return room, nil
}

func (r *Registry) start(ctx context.Context, room *Room) error {
	session, err := r.launcher.Launch(ctx, scraper.LaunchOptions{
		RoomID:      room.ID,
		UserDataDir: filepath.Join(r.opts.ProfilesDir, room.ID),
		Headless:    r.opts.Headless,
	})
	if err != nil {
		return err
	}
	if err := room.attach(session); err != nil {
		return err
	}

	m := newMonitor(room, session, r.store, r.forwarder, r.opts)
	m.attach()

	if err := session.Navigate(ctx, room.URL, r.opts.NavTimeout); err != nil {
		return err
	}
	if err := room.activate(); err != nil {
		return err
	}
	room.setPoller(m.startPolling())
	return nil
}

// Remove stops monitoring id and releases its browser session.
func (r *Registry) Remove(ctx context.Context, id string) bool {
	r.mu.Lock()
	room, ok := r.rooms[id]
	r.mu.Unlock()
	if !ok {
		r.log.WithField("room_id", id).Warn(ErrRoomNotFound)
		return false
	}
	if !r.removeRoom(room) {
		room.log.Warn("room is already stopping")
		return false
	}
	return true
}

// removeRoom tears room down and drops it from the map only while the map
// still holds this exact room, so a slot re-added under the same id is kept.
func (r *Registry) removeRoom(room *Room) bool {
	session, poller, ok := room.beginStop()
	if !ok {
		return false
	}
	room.log.Info("removing room")

	if poller != nil {
		poller.Stop()
	}
	if session != nil {
		if err := session.Close(); err != nil {
			room.log.WithError(err).Warn("could not close browser session")
		}
	}

	r.mu.Lock()
	owned := r.rooms[room.ID] == room
	if owned {
		delete(r.rooms, room.ID)
	}
	r.mu.Unlock()

	if owned {
		r.persist()
	}
	room.log.Info("room stopped")
	return true
}

func (r *Registry) snapshot() []*Room {
	r.mu.Lock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.Unlock()

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].AddedAt.Equal(rooms[j].AddedAt) {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].AddedAt.Before(rooms[j].AddedAt)
	})
	return rooms
}

// List returns a snapshot of every tracked room, oldest first.
func (r *Registry) List() []models.RoomInfo {
	rooms := r.snapshot()
	infos := make([]models.RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		infos = append(infos, room.Info())
	}
	return infos
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *Registry) Status() Status {
	st := Status{Rooms: r.List()}
	st.Store, st.StoreErr = r.store.Stats()
	return st
}

// Restore re-adds every persisted room in file order, pausing between
// launches. It returns how many rooms were added.
func (r *Registry) Restore(ctx context.Context) int {
	records, err := r.file.Load()
	if err != nil {
		r.log.WithError(err).Error("could not load persisted rooms")
		return 0
	}
	if len(records) == 0 {
		return 0
	}

	r.log.Infof("restoring %d rooms from %s", len(records), r.file.Path)
	restored := 0
	for i, rec := range records {
		if i > 0 && r.opts.RestoreDelay > 0 {
			select {
			case <-ctx.Done():
				return restored
			case <-time.After(r.opts.RestoreDelay):
			}
		}
		if r.Add(ctx, rec.URL, rec.Name) {
			restored++
		}
	}
	return restored
}

// RemoveAll removes every room and releases the product store.
func (r *Registry) RemoveAll(ctx context.Context) {
	r.log.Info("stopping all rooms")
	for _, room := range r.snapshot() {
		r.Remove(ctx, room.ID)
	}
	if err := r.store.Close(); err != nil {
		r.log.WithError(err).Warn("could not close product store")
	}
}

func (r *Registry) persist() {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	rooms := r.snapshot()
	records := make([]RoomRecord, 0, len(rooms))
	for _, room := range rooms {
		records = append(records, RoomRecord{
			ID:      room.ID,
			URL:     room.URL,
			Name:    room.Name,
			Status:  room.State(),
			AddedAt: room.AddedAt,
		})
	}
	if err := r.file.Save(records); err != nil {
		r.log.WithError(err).Error("could not save rooms")
	}
}
