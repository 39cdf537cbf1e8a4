package browser

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/diaperwatch/diaperwatch-cli/internal/resilience"
)

// RodOptions configures the rod-backed renderer.
type RodOptions struct {
	// BinPath is the Chromium binary. Empty looks one up or downloads it.
	BinPath  string
	Headless bool
	// PageTimeout bounds a whole render. Default: 30s.
	PageTimeout time.Duration
	// ScreenshotDir, when set, receives a PNG for every blocked render.
	ScreenshotDir string
	ProxyURL      string
}

// RodRenderer renders pages with go-rod and go-rod/stealth. The browser is
// launched on first use and shared by all renders.
type RodRenderer struct {
	opts RodOptions

	mu      sync.Mutex
	browser *rod.Browser
}

// NewRodRenderer returns a renderer; no browser is started until Render.
func NewRodRenderer(opts RodOptions) *RodRenderer {
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = 30 * time.Second
	}
	return &RodRenderer{opts: opts}
}

func (r *RodRenderer) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}

	bin := r.opts.BinPath
	if bin == "" {
		if path, ok := launcher.LookPath(); ok {
			bin = path
		} else {
			zap.L().Info("browser: no local chromium found, downloading")
			path, err := launcher.NewBrowser().Get()
			if err != nil {
				return nil, eris.Wrap(err, "browser: download chromium")
			}
			bin = path
		}
	}

	l := launcher.New().
		Headless(r.opts.Headless).
		Bin(bin).
		NoSandbox(true)
	if r.opts.ProxyURL != "" {
		l = l.Proxy(r.opts.ProxyURL)
	}

	b, err := launchAndConnect(l, connectRod)
	if err != nil {
		return nil, err
	}
	zap.L().Info("browser: started", zap.String("bin", bin), zap.Bool("headless", r.opts.Headless))
	r.browser = b
	return b, nil
}

// browserLauncher is the part of *launcher.Launcher that owns the Chromium
// process.
type browserLauncher interface {
	Launch() (string, error)
	Kill()
}

// launchAndConnect starts Chromium and attaches to it. The process is killed
// when attaching fails.
func launchAndConnect(l browserLauncher, connect func(controlURL string) (*rod.Browser, error)) (*rod.Browser, error) {
	controlURL, err := l.Launch()
	if err != nil {
		return nil, eris.Wrap(err, "browser: launch")
	}
	b, err := connect(controlURL)
	if err != nil {
		l.Kill()
		return nil, eris.Wrap(err, "browser: connect")
	}
	return b, nil
}

func connectRod(controlURL string) (*rod.Browser, error) {
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, err
	}
	return b, nil
}

// Render loads req.URL in a fresh stealth page. The page is closed on every
// path, including context cancellation.
func (r *RodRenderer) Render(ctx context.Context, req RenderRequest) (*RenderResult, error) {
	req = req.withDefaults()

	b, err := r.ensureBrowser()
	if err != nil {
		return nil, err
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, eris.Wrap(err, "browser: open page")
	}
	defer func() { _ = page.Close() }()

	pg := page.Context(ctx).Timeout(r.opts.PageTimeout)

	if err := pg.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: req.UserAgent}); err != nil {
		return nil, eris.Wrap(err, "browser: set user agent")
	}

	if err := injectCookies(pg, req); err != nil {
		return nil, err
	}
	if err := injectLocalStorage(pg, req.LocalStorage); err != nil {
		return nil, err
	}

	if err := pg.Navigate(req.URL); err != nil {
		return nil, eris.Wrapf(err, "browser: navigate %s", req.URL)
	}
	if err := pg.WaitLoad(); err != nil {
		return nil, eris.Wrap(err, "browser: wait load")
	}

	found := true
	if req.WaitSelector != "" {
		_, err := pg.Timeout(req.WaitTimeout).Element(req.WaitSelector)
		found = err == nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	for i := 0; i < req.Scrolls; i++ {
		if _, err := pg.Eval(`() => window.scrollBy(0, window.innerHeight)`); err != nil {
			break
		}
		if err := resilience.Sleep(ctx, req.ScrollPause); err != nil {
			return nil, err
		}
	}

	html, err := pg.HTML()
	if err != nil {
		return nil, eris.Wrap(err, "browser: read html")
	}

	res := &RenderResult{FinalURL: req.URL, HTML: html}
	if info, err := pg.Info(); err == nil {
		res.FinalURL = info.URL
	}
	res.Outcome, res.BlockReason = classify(html, found)

	if res.Outcome == OutcomeBlocked {
		r.screenshot(pg, req.URL)
	}
	zap.L().Debug("browser: rendered",
		zap.String("url", req.URL),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("bytes", len(html)),
	)
	return res, nil
}

func injectCookies(page *rod.Page, req RenderRequest) error {
	if len(req.Cookies) == 0 {
		return nil
	}
	params := make([]*proto.NetworkCookieParam, 0, len(req.Cookies))
	for _, c := range req.Cookies {
		p := &proto.NetworkCookieParam{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path}
		if c.Domain == "" {
			p.URL = req.URL
		}
		params = append(params, p)
	}
	return eris.Wrap(page.SetCookies(params), "browser: set cookies")
}

// injectLocalStorage registers a script that seeds localStorage before any
// page script runs.
func injectLocalStorage(page *rod.Page, entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return eris.Wrap(err, "browser: encode local storage")
	}
	js := `(() => { const e = ` + string(data) + `; for (const k in e) { try { localStorage.setItem(k, e[k]); } catch (_) {} } })()`
	if _, err := page.EvalOnNewDocument(js); err != nil {
		return eris.Wrap(err, "browser: inject local storage")
	}
	return nil
}

func (r *RodRenderer) screenshot(page *rod.Page, rawURL string) {
	if r.opts.ScreenshotDir == "" {
		return
	}
	img, err := page.Screenshot(false, nil)
	if err != nil {
		zap.L().Debug("browser: screenshot failed", zap.Error(err))
		return
	}
	if err := os.MkdirAll(r.opts.ScreenshotDir, 0o755); err != nil {
		return
	}
	name := screenshotName(rawURL, time.Now())
	path := filepath.Join(r.opts.ScreenshotDir, name)
	if err := os.WriteFile(path, img, 0o644); err != nil {
		zap.L().Debug("browser: write screenshot", zap.Error(err))
		return
	}
	zap.L().Info("browser: saved block screenshot", zap.String("path", path))
}

func screenshotName(rawURL string, at time.Time) string {
	slug := strings.NewReplacer("https://", "", "http://", "", "/", "_", "?", "_", "&", "_", "=", "-").Replace(rawURL)
	if len(slug) > 80 {
		slug = slug[:80]
	}
	return at.UTC().Format("20060102T150405") + "_" + slug + ".png"
}

// Close shuts the browser down if it was started.
func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	return eris.Wrap(err, "browser: close")
}
