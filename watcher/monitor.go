package watcher

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"livewatcher.com/models"
	"livewatcher.com/scraper"
)

// monitor watches one room through two channels: intercepted product API
// responses and periodic DOM scraping. Both feed ingest.
type monitor struct {
	room      *Room
	session   scraper.Session
	store     ProductStore
	forwarder Forwarder
	opts      Options
	log       logrus.FieldLogger
}

func newMonitor(room *Room, session scraper.Session, store ProductStore, forwarder Forwarder, opts Options) *monitor {
	return &monitor{
		room:      room,
		session:   session,
		store:     store,
		forwarder: forwarder,
		opts:      opts,
		log:       room.log,
	}
}

func (m *monitor) attach() {
	m.session.OnResponse(m.handleResponse)
}

func (m *monitor) startPolling() *repeatingTask {
	return startRepeating(m.room.ctx, m.opts.PollInterval,
		func() bool { return m.room.State() == models.RoomActive },
		m.poll,
	)
}

// handleResponse is channel A. Failures here are expected noise and only
// logged at debug level.
func (m *monitor) handleResponse(resp scraper.Response) {
	if m.room.State() == models.RoomStopping {
		return
	}
	if !scraper.IsProductResponse(resp.URL(), resp.ContentType(), m.opts.APIPatterns) {
		return
	}

	m.safely("api", func() error {
		body, err := resp.Body()
		if err != nil {
			m.log.WithError(err).Debug("could not read product response")
			return nil
		}
		products, found, err := scraper.DecodeProducts(body)
		if err != nil {
			m.log.WithError(err).Debug("could not decode product response")
			return nil
		}
		if found == 0 {
			return nil
		}
		m.log.Infof("api captured %d products", found)
		return m.ingest(m.room.ctx, products, found, models.SourceAPI)
	})
}

// poll is channel B, one cycle of the DOM scraping loop.
func (m *monitor) poll(ctx context.Context) {
	m.safely("dom", func() error {
		products, err := m.session.ScrapeDOM(ctx, m.opts.Selectors)
		if err != nil {
			return fmt.Errorf("could not scrape page: %w", err)
		}
		if len(products) == 0 {
			return nil
		}
		m.log.Infof("dom captured %d products", len(products))
		return m.ingest(ctx, products, len(products), models.SourceDOM)
	})
}

// ingest saves raw products and forwards the new ones. Raw counters grow by
// captured, the number of list entries seen, which exceeds len(raw) when an API
// list holds non-object entries. Saved and webhook counters only grow by what
// the store reports new.
func (m *monitor) ingest(ctx context.Context, raw []models.RawProduct, captured int, source models.Source) error {
	info := m.room.roomContext()

	res, err := m.store.SaveProducts(raw, info, source)
	if err != nil {
		return fmt.Errorf("could not save products: %w", err)
	}
	m.room.addCaptured(source, captured)
	if res.NewCount <= 0 {
		return nil
	}

	m.room.totalSaved.Add(uint64(res.NewCount))
	m.log.Infof("saved %d new products", res.NewCount)

	var fresh []models.Product
	for _, r := range res.Results {
		if r.IsNew && r.Product != nil {
			fresh = append(fresh, *r.Product)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	sent := m.forwarder.Send(ctx, fresh, info)
	if sent.SuccessCount > 0 {
		m.room.webhookSent.Add(uint64(sent.SuccessCount))
	}
	return nil
}

// safely runs one channel step, logging its error or panic with room
// context so it cannot take down the room or its neighbours.
func (m *monitor) safely(channel string, step func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			m.log.WithField("channel", channel).Errorf("panic while processing products: %v", rec)
		}
	}()
	if err := step(); err != nil {
		m.log.WithField("channel", channel).WithError(err).Error("could not process products")
	}
}
