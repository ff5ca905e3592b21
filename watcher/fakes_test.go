package watcher

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"livewatcher.com/config"
	"livewatcher.com/database"
	"livewatcher.com/models"
	"livewatcher.com/scraper"
	"livewatcher.com/webhook"
)

type fakeResponse struct {
	url         string
	contentType string
	body        []byte
	err         error
}

func (r fakeResponse) URL() string           { return r.url }
func (r fakeResponse) ContentType() string   { return r.contentType }
func (r fakeResponse) Body() ([]byte, error) { return r.body, r.err }

type fakeSession struct {
	mu          sync.Mutex
	handler     func(scraper.Response)
	navigateErr error
	navigated   []string
	scrape      []models.RawProduct
	scrapeErr   error
	scrapes     int
	closes      int
}

func (s *fakeSession) OnResponse(h func(scraper.Response)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *fakeSession) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigated = append(s.navigated, url)
	return s.navigateErr
}

func (s *fakeSession) ScrapeDOM(ctx context.Context, selectors []string) ([]models.RawProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrapes++
	return s.scrape, s.scrapeErr
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSession) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func (s *fakeSession) emit(r scraper.Response) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	h(r)
}

type fakeLauncher struct {
	mu        sync.Mutex
	sessions  map[string]*fakeSession
	launchErr error
	navErr    error
	entered   chan struct{}
	release   chan struct{}
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{sessions: make(map[string]*fakeSession)}
}

func (l *fakeLauncher) Launch(ctx context.Context, opts scraper.LaunchOptions) (scraper.Session, error) {
	l.mu.Lock()
	entered, release := l.entered, l.release
	l.entered, l.release = nil, nil
	l.mu.Unlock()
	if entered != nil {
		close(entered)
		<-release
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	s := &fakeSession{navigateErr: l.navErr}
	l.sessions[opts.RoomID] = s
	return s, nil
}

// holdNext blocks the next Launch until release is called. entered is closed
// once that Launch is waiting.
func (l *fakeLauncher) holdNext() (entered <-chan struct{}, release func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entered = make(chan struct{})
	l.release = make(chan struct{})
	return l.entered, func() { close(l.release) }
}

func (l *fakeLauncher) session(id string) *fakeSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessions[id]
}

// fakeStore reports every product new the first time its title is seen.
type fakeStore struct {
	mu      sync.Mutex
	seen    map[string]bool
	calls   int
	saveErr error
	closed  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{seen: make(map[string]bool)}
}

func (s *fakeStore) SaveProducts(raw []models.RawProduct, room models.RoomContext, source models.Source) (database.SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.saveErr != nil {
		return database.SaveResult{}, s.saveErr
	}
	var res database.SaveResult
	for _, r := range raw {
		title, _ := r["title"].(string)
		item := database.ItemResult{}
		if !s.seen[title] {
			s.seen[title] = true
			item.IsNew = true
			item.Product = &models.Product{Title: title, RoomID: room.RoomID, Source: string(source)}
			res.NewCount++
		}
		res.Results = append(res.Results, item)
	}
	return res, nil
}

func (s *fakeStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *fakeStore) Stats() (database.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return database.Stats{Total: len(s.seen), Today: len(s.seen)}, nil
}

func (s *fakeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

type fakeForwarder struct {
	mu    sync.Mutex
	sent  []models.Product
	calls int
}

func (f *fakeForwarder) Send(ctx context.Context, products []models.Product, room models.RoomContext) webhook.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.sent = append(f.sent, products...)
	return webhook.Result{SuccessCount: len(products)}
}

func (f *fakeForwarder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var errBoom = errors.New("boom")

type harness struct {
	reg       *Registry
	launcher  *fakeLauncher
	store     *fakeStore
	forwarder *fakeForwarder
	file      *RoomFile
}

func newHarness(t *testing.T, maxRooms int) *harness {
	t.Helper()
	cfg := config.Defaults()
	cfg.MaxRooms = maxRooms
	cfg.PollInterval = time.Hour
	cfg.RestoreDelay = 0
	cfg.ProfilesDir = filepath.Join(t.TempDir(), "profiles")
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		t.Fatalf("OptionsFromConfig() error = %v", err)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	h := &harness{
		launcher:  newFakeLauncher(),
		store:     newFakeStore(),
		forwarder: &fakeForwarder{},
		file:      NewRoomFile(filepath.Join(t.TempDir(), "rooms.json")),
	}
	h.reg = NewRegistry(opts, h.launcher, h.store, h.forwarder, h.file, log)
	t.Cleanup(func() { h.reg.RemoveAll(context.Background()) })
	return h
}
