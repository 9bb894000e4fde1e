// Package browser manages a single shared connection to an already running
// Chrome exposed over the DevTools protocol, plus per-URL text rendering on
// top of it. All state is held by the Manager; callers inject one instead of
// reaching for globals.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Session is a live browser connection that tabs can be opened against.
type Session interface {
	Context() context.Context
	Close()
}

// DialFunc establishes a Session against a DevTools endpoint. The passed
// context bounds connection setup only, not the session lifetime.
type DialFunc func(ctx context.Context, cdpURL string) (Session, error)

// Config controls connection and rendering behavior.
type Config struct {
	CDPURL         string
	ConnectTimeout time.Duration
	Retries        int
	Backoff        time.Duration
	NavTimeout     time.Duration
	PollAttempts   int
	PollInterval   time.Duration
	MinTextChars   int
	UserAgent      string
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 45 * time.Second
	}
	if c.Retries <= 0 {
		c.Retries = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 800 * time.Millisecond
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 45 * time.Second
	}
	if c.PollAttempts <= 0 {
		c.PollAttempts = 20
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MinTextChars <= 0 {
		c.MinTextChars = 200
	}
}

// Manager owns the shared browser session. Connection setup is lazy and the
// established session is reused until it errors, the endpoint changes, or
// Close is called. Navigation is serialized; the remote Chrome is a single
// shared browser and parallel tabs trip its bot checks.
type Manager struct {
	cfg    Config
	logger *zap.Logger
	dial   DialFunc
	render renderFunc

	navSem chan struct{}

	mu       sync.Mutex
	sess     Session
	endpoint string
}

// NewManager builds a Manager that dials real Chrome over chromedp.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	return NewManagerWithDial(cfg, logger, dialCDP)
}

// NewManagerWithDial builds a Manager with a custom dialer (primarily for testing).
func NewManagerWithDial(cfg Config, logger *zap.Logger, dial DialFunc) *Manager {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		cfg:    cfg,
		logger: logger,
		dial:   dial,
		navSem: make(chan struct{}, 1),
	}
	m.render = m.renderTab
	return m
}

// Enabled reports whether a DevTools endpoint is configured at all.
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.CDPURL != ""
}

// SetEndpoint switches the DevTools endpoint, tearing down any session that
// was established against a different one.
func (m *Manager) SetEndpoint(cdpURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cdpURL == m.cfg.CDPURL {
		return
	}
	m.closeLocked()
	m.cfg.CDPURL = cdpURL
}

// Invalidate drops the current session so the next use reconnects.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

// Close tears down the current session. The Manager stays usable; a later
// call simply reconnects.
func (m *Manager) Close() {
	m.Invalidate()
}

func (m *Manager) closeLocked() {
	if m.sess != nil {
		m.sess.Close()
		m.sess = nil
		m.endpoint = ""
	}
}

// session returns the shared session, dialing with retries when there is
// none. The caller must not hold m.mu.
func (m *Manager) session(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.CDPURL == "" {
		return nil, fmt.Errorf("browser.cdp_url is not set")
	}
	if m.sess != nil && m.endpoint == m.cfg.CDPURL {
		return m.sess, nil
	}
	m.closeLocked()

	var lastErr error
	for attempt := 0; attempt < m.cfg.Retries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, m.cfg.Backoff*(1<<(attempt-1))); err != nil {
				return nil, err
			}
		}
		dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
		sess, err := m.dial(dialCtx, m.cfg.CDPURL)
		cancel()
		if err == nil {
			m.sess = sess
			m.endpoint = m.cfg.CDPURL
			return sess, nil
		}
		lastErr = err
		m.logger.Warn("browser connect failed",
			zap.String("cdp_url", m.cfg.CDPURL),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return nil, fmt.Errorf("connect browser at %s after %d attempts: %w", m.cfg.CDPURL, m.cfg.Retries, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait before reconnect: %w", ctx.Err())
	}
}

type cdpSession struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

func (s *cdpSession) Context() context.Context { return s.ctx }

func (s *cdpSession) Close() {
	s.cancel()
	s.allocCancel()
}

func dialCDP(ctx context.Context, cdpURL string) (Session, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), cdpURL)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// Warm up now so connection failures surface here, not mid-render.
	runCtx, runCancel := context.WithCancel(browserCtx)
	stop := forwardCancel(ctx, runCancel)
	err := chromedp.Run(runCtx)
	stop()
	runCancel()
	if err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("attach to browser: %w", err)
	}
	return &cdpSession{ctx: browserCtx, cancel: cancel, allocCancel: allocCancel}, nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
