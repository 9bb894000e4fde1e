package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/wfekih/jobradar/internal/jobs"
)

// renderFunc opens a tab on an established session and extracts page text.
type renderFunc func(ctx context.Context, sess Session, rawURL string) (string, error)

// FetchText navigates the shared browser to rawURL and returns the readable
// page text. Only session acquisition is retried; the render itself gets a
// single attempt, and a failure invalidates the session so the next call
// reconnects. The returned text is raw; classification and truncation are
// the caller's concern.
func (m *Manager) FetchText(ctx context.Context, rawURL string) (string, error) {
	select {
	case m.navSem <- struct{}{}:
		defer func() { <-m.navSem }()
	case <-ctx.Done():
		return "", fmt.Errorf("wait navigation slot: %w", ctx.Err())
	}

	sess, err := m.session(ctx)
	if err != nil {
		return "", err
	}
	text, err := m.render(ctx, sess, rawURL)
	if err != nil {
		m.logger.Warn("browser render failed",
			zap.String("url", rawURL),
			zap.Error(err),
		)
		m.Invalidate()
		return "", fmt.Errorf("render %s: %w", rawURL, err)
	}
	return text, nil
}

func (m *Manager) renderTab(ctx context.Context, sess Session, rawURL string) (string, error) {
	tabCtx, cancelTab := chromedp.NewContext(sess.Context())
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, m.cfg.NavTimeout)
	defer cancelTask()

	stop := forwardCancel(ctx, cancelTask)
	defer stop()

	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(m.cfg.UserAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}

	// Challenge interstitials usually clear within a few seconds. Poll the
	// body until the markers disappear or the attempts run out, then extract
	// whatever is there and let the caller classify it.
	for attempt := 0; attempt < m.cfg.PollAttempts; attempt++ {
		var body string
		if err := chromedp.Run(taskCtx, chromedp.Text("body", &body, chromedp.ByQuery)); err != nil {
			return "", fmt.Errorf("read body: %w", err)
		}
		if body != "" && !jobs.LooksBlocked(body) {
			break
		}
		if err := sleepTask(taskCtx, m.cfg.PollInterval); err != nil {
			return "", err
		}
	}

	var text string
	if err := chromedp.Run(taskCtx, chromedp.Evaluate(selectorScript(m.cfg.MinTextChars), &text)); err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	return text, nil
}

func sleepTask(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("challenge wait: %w", ctx.Err())
	}
}

// selectorScript prefers the main content region and falls back through
// progressively broader selectors; a region shorter than minChars is skipped
// unless nothing better exists.
func selectorScript(minChars int) string {
	return fmt.Sprintf(`(() => {
	const selectors = ["main", "article", "[role='main']", ".content", "body"];
	const norm = (s) => (s || "").replace(/\s+/g, " ").trim();
	let best = "";
	for (const sel of selectors) {
		const el = document.querySelector(sel);
		if (!el) continue;
		const text = norm(el.innerText || el.textContent || "");
		if (text.length > %d) return text;
		if (text.length > best.length) best = text;
	}
	return best;
})()`, minChars)
}
