package watcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"livewatcher.com/models"
	"livewatcher.com/scraper"
)

var errRoomStopping = errors.New("room is stopping")

// Room is one tracked livestream. Its session is owned exclusively by the
// room and released by Registry.Remove.
type Room struct {
	ID      string
	URL     string
	Name    string
	AddedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	log    logrus.FieldLogger

	mu      sync.Mutex
	state   models.RoomState
	session scraper.Session
	poller  *repeatingTask

	apiCaptured atomic.Uint64
	domCaptured atomic.Uint64
	totalSaved  atomic.Uint64
	webhookSent atomic.Uint64
}

func newRoom(id, url, name string, log logrus.FieldLogger) *Room {
	if name == "" {
		name = "room_" + id
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Room{
		ID:      id,
		URL:     url,
		Name:    name,
		AddedAt: time.Now().UTC(),
		ctx:     ctx,
		cancel:  cancel,
		log:     log.WithFields(logrus.Fields{"room_id": id, "room_name": name}),
		state:   models.RoomStarting,
	}
}

func (r *Room) State() models.RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Room) Session() scraper.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// attach hands the session to the room. A room already being removed closes
// the session itself instead.
func (r *Room) attach(s scraper.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == models.RoomStopping {
		if err := s.Close(); err != nil {
			r.log.WithError(err).Warn("could not close session")
		}
		return errRoomStopping
	}
	r.session = s
	return nil
}

func (r *Room) activate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != models.RoomStarting {
		return errRoomStopping
	}
	r.state = models.RoomActive
	return nil
}

func (r *Room) setPoller(p *repeatingTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == models.RoomStopping {
		p.Stop()
		return
	}
	r.poller = p
}

// beginStop moves the room to stopping and detaches its session. It returns
// false when the room was already stopping.
func (r *Room) beginStop() (scraper.Session, *repeatingTask, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == models.RoomStopping {
		return nil, nil, false
	}
	r.state = models.RoomStopping
	r.cancel()
	s, p := r.session, r.poller
	r.session, r.poller = nil, nil
	return s, p, true
}

func (r *Room) roomContext() models.RoomContext {
	return models.RoomContext{RoomID: r.ID, RoomName: r.Name, RoomURL: r.URL}
}

func (r *Room) addCaptured(source models.Source, n int) {
	switch source {
	case models.SourceAPI:
		r.apiCaptured.Add(uint64(n))
	case models.SourceDOM:
		r.domCaptured.Add(uint64(n))
	}
}

func (r *Room) Stats() models.RoomStats {
	return models.RoomStats{
		APICaptured: r.apiCaptured.Load(),
		DOMCaptured: r.domCaptured.Load(),
		TotalSaved:  r.totalSaved.Load(),
		WebhookSent: r.webhookSent.Load(),
	}
}

func (r *Room) Info() models.RoomInfo {
	return models.RoomInfo{
		ID:      r.ID,
		Name:    r.Name,
		URL:     r.URL,
		Status:  r.State(),
		AddedAt: r.AddedAt,
		Stats:   r.Stats(),
	}
}
