// internal/browser/session.go

// Package browser adapts a headless Chrome instance to the schemas.Page
// read surface. It is the only package that imports chromedp; the core
// pipeline stays driver-agnostic.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/locus/internal/config"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultEvaluateTimeout   = 10 * time.Second
)

// Session owns one browser process and tab. Not safe for concurrent use;
// one session per automation run.
type Session struct {
	id     string
	logger *zap.Logger
	cfg    config.BrowserConfig

	ctx         context.Context
	ctxCancel   context.CancelFunc
	allocCancel context.CancelFunc
}

// NewSession launches a browser and opens a blank tab. Close must be
// called to release the process.
func NewSession(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.EvaluateTimeout <= 0 {
		cfg.EvaluateTimeout = defaultEvaluateTimeout
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
	)
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// Prime the browser process so launch failures surface here rather
	// than on the first navigation.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	id := uuid.NewString()
	s := &Session{
		id:          id,
		logger:      logger.Named("browser").With(zap.String("session_id", id)),
		cfg:         cfg,
		ctx:         tabCtx,
		ctxCancel:   tabCancel,
		allocCancel: allocCancel,
	}
	s.logger.Info("Browser session started.", zap.Bool("headless", cfg.Headless))
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Navigate loads the URL and waits for the document body to be ready.
func (s *Session) Navigate(url string) error {
	navCtx, cancel := context.WithTimeout(s.ctx, s.cfg.NavigationTimeout)
	defer cancel()

	s.logger.Debug("Navigating.", zap.String("url", url))
	err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// Page returns the schemas.Page adapter for the session's tab.
func (s *Session) Page() *Page {
	return &Page{session: s}
}

// Close tears down the tab and the browser process.
func (s *Session) Close() {
	s.ctxCancel()
	s.allocCancel()
	s.logger.Info("Browser session closed.")
}
