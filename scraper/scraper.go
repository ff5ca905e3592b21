package scraper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/sirupsen/logrus"
	"livewatcher.com/models"
)

// Response is the part of an intercepted network response a room monitor reads.
type Response interface {
	URL() string
	ContentType() string
	Body() ([]byte, error)
}

// Session owns one isolated browser and the page watching a single room.
type Session interface {
	OnResponse(handler func(Response))
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	ScrapeDOM(ctx context.Context, selectors []string) ([]models.RawProduct, error)
	Close() error
}

type LaunchOptions struct {
	RoomID      string
	UserDataDir string
	Headless    bool
}

type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Session, error)
}

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

const antiDetectionScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'languages', { get: () => ['zh-CN', 'zh', 'en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
window.chrome = window.chrome || { runtime: {} };
`

// PlaywrightLauncher starts the Playwright driver on first use and launches
// one persistent Chromium context per room.
type PlaywrightLauncher struct {
	Log logrus.FieldLogger

	once   sync.Once
	pw     *playwright.Playwright
	runErr error
}

func NewPlaywrightLauncher(log logrus.FieldLogger) *PlaywrightLauncher {
	return &PlaywrightLauncher{Log: log}
}

func (l *PlaywrightLauncher) driver() (*playwright.Playwright, error) {
	l.once.Do(func() {
		l.pw, l.runErr = playwright.Run()
		if l.runErr != nil {
			l.runErr = fmt.Errorf("could not start playwright: %w", l.runErr)
		}
	})
	return l.pw, l.runErr
}

func (l *PlaywrightLauncher) Launch(ctx context.Context, opts LaunchOptions) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := l.driver()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.UserDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create profile dir %s: %w", opts.UserDataDir, err)
	}
	dir, err := filepath.Abs(opts.UserDataDir)
	if err != nil {
		return nil, err
	}

	browser, err := pw.Chromium.LaunchPersistentContext(dir, playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:          playwright.Bool(opts.Headless),
		UserAgent:         playwright.String(userAgent),
		Locale:            playwright.String("zh-CN"),
		Viewport:          &playwright.Size{Width: 1366, Height: 768},
		Args:              []string{"--disable-blink-features=AutomationControlled", "--no-sandbox", "--mute-audio"},
		IgnoreDefaultArgs: []string{"--enable-automation"},
	})
	if err != nil {
		return nil, fmt.Errorf("could not launch browser: %w", err)
	}

	if err := browser.AddInitScript(playwright.Script{Content: playwright.String(antiDetectionScript)}); err != nil {
		browser.Close()
		return nil, fmt.Errorf("could not install init script: %w", err)
	}

	var page playwright.Page
	if pages := browser.Pages(); len(pages) > 0 {
		page = pages[0]
	} else if page, err = browser.NewPage(); err != nil {
		browser.Close()
		return nil, fmt.Errorf("could not create page: %w", err)
	}

	return &playwrightSession{browser: browser, page: page, log: l.Log.WithField("room_id", opts.RoomID)}, nil
}

// Close stops the Playwright driver. Sessions must be closed first.
func (l *PlaywrightLauncher) Close() error {
	if l.pw == nil {
		return nil
	}
	return l.pw.Stop()
}

type playwrightSession struct {
	browser playwright.BrowserContext
	page    playwright.Page
	log     logrus.FieldLogger
}

func (s *playwrightSession) OnResponse(handler func(Response)) {
	s.page.OnResponse(func(r playwright.Response) {
		// blocking calls inside playwright event callbacks deadlock the driver
		go func() {
			defer func() {
				if rec := recover(); rec != nil {
					s.log.Errorf("response handler panicked: %v", rec)
				}
			}()
			handler(playwrightResponse{r})
		}()
	})
}

func (s *playwrightSession) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("could not goto %s: %w", url, err)
	}
	return nil
}

func (s *playwrightSession) ScrapeDOM(ctx context.Context, selectors []string) ([]models.RawProduct, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := s.page.Evaluate(domProductsScript, selectors)
	if err != nil {
		return nil, fmt.Errorf("could not evaluate product script: %w", err)
	}
	return toRawProducts(out), nil
}

func (s *playwrightSession) Close() error {
	return s.browser.Close()
}

type playwrightResponse struct {
	r playwright.Response
}

func (p playwrightResponse) URL() string { return p.r.URL() }

func (p playwrightResponse) ContentType() string {
	for k, v := range p.r.Headers() {
		if strings.EqualFold(k, "content-type") {
			return v
		}
	}
	return ""
}

func (p playwrightResponse) Body() ([]byte, error) { return p.r.Body() }
