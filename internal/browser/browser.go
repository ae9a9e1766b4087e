package browser

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Browser owns one playwright session and one browser context. The
// orchestrator opens it once per crawl run and reuses it for every
// fetch; presenting a single consistent browsing identity is part of
// the anti-detection posture.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgents     []string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       false,
		Timeout:        30 * time.Second,
		UserAgents:     []string{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"},
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "tr-TR,tr;q=0.9,en-US;q=0.8,en;q=0.7",
		TimezoneID:     "Europe/Istanbul",
		Locale:         "tr-TR",
	}
}

func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	userAgent := opts.UserAgents[rand.Intn(len(opts.UserAgents))]

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
			"--lang=" + opts.AcceptLanguage,
			"--user-agent=" + userAgent,
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	b, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:         &userAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language": opts.AcceptLanguage,
			"DNT":             "1",
		},
	}

	context, err := b.NewContext(contextOpts)
	if err != nil {
		b.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	// navigator.webdriver gives the session away before any page logic
	// runs, so mask it in every document of this context.
	if err := context.AddInitScript(playwright.Script{
		Content: playwright.String(`Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`),
	}); err != nil {
		context.Close()
		b.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to add stealth script: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: b,
		context: context,
		logger:  slog.Default().With("component", "browser"),
	}, nil
}

// NewPage opens a page in the shared context, wrapped as the driver the
// fetcher state machine consumes.
func (b *Browser) NewPage() (*Page, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(DefaultOptions().Timeout.Milliseconds()))

	return &Page{page: page, logger: b.logger}, nil
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	return nil
}

// Page adapts a playwright page to the fetch.PageDriver contract.
type Page struct {
	page   playwright.Page
	logger *slog.Logger
}

func (p *Page) Navigate(url string) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (p *Page) Content() (string, error) {
	content, err := p.page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return content, nil
}

func (p *Page) CurrentURL() string {
	return p.page.URL()
}

// Scroll performs the non-functional humanlike scroll gesture: smooth
// scroll part-way down, pause, scroll back. No data effect.
func (p *Page) Scroll() {
	target := 100 + rand.Intn(700)
	script := fmt.Sprintf(`window.scrollTo({top: %d, behavior: 'smooth'})`, target)
	if _, err := p.page.Evaluate(script); err != nil {
		p.logger.Debug("scroll gesture failed", "error", err)
		return
	}
	time.Sleep(time.Duration(1000+rand.Intn(1000)) * time.Millisecond)
	p.page.Evaluate(`window.scrollTo({top: 0, behavior: 'smooth'})`)
}

func (p *Page) Close() error {
	return p.page.Close()
}
