// Package fetch drives one page-at-a-time retrieval through a browser
// session. Each fetch runs a small state machine: Navigating (bounded
// transport retries) -> Challenged (unbounded polling while a bot or
// login interstitial blocks the page) -> Ready.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"
)

// ErrFetchFailed marks a navigation that kept failing at the transport
// level after all retry attempts.
var ErrFetchFailed = errors.New("fetch failed")

// PageDriver is the slice of browser behavior the state machine needs.
// The playwright adapter lives in internal/browser; tests substitute a
// fake so challenge resolution can be simulated without real delay.
type PageDriver interface {
	Navigate(url string) error
	Content() (string, error)
	CurrentURL() string
	Scroll()
}

// PageKind selects which content markers prove the expected page has
// actually rendered.
type PageKind int

const (
	PageIndex PageKind = iota
	PageDetail
)

func (k PageKind) String() string {
	if k == PageDetail {
		return "detail"
	}
	return "index"
}

// contentMarkers returns the substrings whose presence means the real
// page is showing, challenge or not.
func (k PageKind) contentMarkers() []string {
	if k == PageDetail {
		return []string{"classifiedDetail"}
	}
	return []string{"searchResultsItem"}
}

// challengeBodyMarkers are the bot-interstitial signatures the site has
// used; challengeURLMarkers are the login-wall redirect patterns.
var (
	challengeBodyMarkers = []string{"Olağandışı", "Olağan dışı", "robot", "captcha"}
	challengeURLMarkers  = []string{"UyeGiris", "giris-yap", "secure.sahibinden.com/giris"}
)

// SleepFunc waits for d or until ctx is done. Injected so tests resolve
// challenge polls instantly.
type SleepFunc func(ctx context.Context, d time.Duration) error

func CtxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type Options struct {
	MaxRetries    int
	RetryDelay    time.Duration
	ChallengePoll time.Duration
	// MarkerSettle bounds how long a settled page without challenge or
	// content markers is re-polled before being accepted as-is. An empty
	// index page is the pagination stop signal, so a slow render must
	// not be mistaken for end of catalog.
	MarkerSettle time.Duration
	PaceMin      time.Duration
	PaceMax      time.Duration
	Sleep        SleepFunc
}

func DefaultOptions() Options {
	return Options{
		MaxRetries:    3,
		RetryDelay:    2 * time.Second,
		ChallengePoll: 2 * time.Second,
		MarkerSettle:  15 * time.Second,
		PaceMin:       2 * time.Second,
		PaceMax:       5 * time.Second,
		Sleep:         CtxSleep,
	}
}

// Fetcher serializes fetches over a single page session; there is never
// more than one in-flight request.
type Fetcher struct {
	driver PageDriver
	opts   Options
	logger *slog.Logger
}

func New(driver PageDriver, opts Options, logger *slog.Logger) *Fetcher {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.Sleep == nil {
		opts.Sleep = CtxSleep
	}
	return &Fetcher{
		driver: driver,
		opts:   opts,
		logger: logger.With("component", "fetcher"),
	}
}

// Fetch navigates to url and returns the raw page content once the
// expected markers for kind are visible, or the page settled without a
// challenge. Challenge interstitials are waited out indefinitely: they
// resolve only through out-of-band human action, and returning wrong
// content would corrupt the store while waiting merely stalls it.
func (f *Fetcher) Fetch(ctx context.Context, url string, kind PageKind) (string, error) {
	if err := f.navigate(ctx, url); err != nil {
		return "", err
	}

	content, err := f.awaitReady(ctx, url, kind)
	if err != nil {
		return "", err
	}

	// Humanlike pacing between fetches; no data effect.
	f.driver.Scroll()
	f.pace(ctx)

	return content, nil
}

// navigate issues the browser navigation, retrying transport failures
// with exponential pacing up to the attempt bound.
func (f *Fetcher) navigate(ctx context.Context, url string) error {
	var lastErr error
	delay := f.opts.RetryDelay

	for attempt := 1; attempt <= f.opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = f.driver.Navigate(url)
		if lastErr == nil {
			return nil
		}

		f.logger.Warn("navigation failed",
			"url", url, "attempt", attempt, "max_attempts", f.opts.MaxRetries, "error", lastErr)

		if attempt < f.opts.MaxRetries {
			if err := f.opts.Sleep(ctx, delay); err != nil {
				return err
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%w: %s after %d attempts: %v", ErrFetchFailed, url, f.opts.MaxRetries, lastErr)
}

// awaitReady polls the page until the expected content shows. While a
// challenge signature is present the wait is unbounded; cancellation
// comes only from ctx.
func (f *Fetcher) awaitReady(ctx context.Context, url string, kind PageKind) (string, error) {
	challenged := false
	settlePolls := 0
	maxSettlePolls := 0
	if f.opts.ChallengePoll > 0 {
		maxSettlePolls = int(f.opts.MarkerSettle / f.opts.ChallengePoll)
	}

	for {
		content, err := f.driver.Content()
		if err != nil {
			return "", fmt.Errorf("%w: reading %s: %v", ErrFetchFailed, url, err)
		}

		if containsAny(content, kind.contentMarkers()) {
			if challenged {
				f.logger.Info("challenge resolved", "url", url, "kind", kind.String())
			}
			return content, nil
		}

		isChallenge := containsAny(content, challengeBodyMarkers) ||
			containsAny(f.driver.CurrentURL(), challengeURLMarkers)
		if !isChallenge {
			if challenged {
				challenged = false
				f.logger.Info("challenge resolved", "url", url, "kind", kind.String())
			}
			// Settled page without the expected markers: either a render
			// still in flight or a genuinely empty index page. The empty
			// page is the pagination stop signal, so give the markers a
			// bounded window before accepting the content as-is.
			if settlePolls >= maxSettlePolls {
				return content, nil
			}
			settlePolls++
		} else {
			settlePolls = 0
			if !challenged {
				challenged = true
				f.logger.Warn("challenge detected, waiting for manual resolution",
					"url", url, "current_url", f.driver.CurrentURL())
			}
		}

		if err := f.opts.Sleep(ctx, f.opts.ChallengePoll); err != nil {
			return "", err
		}
	}
}

func (f *Fetcher) pace(ctx context.Context) {
	if f.opts.PaceMax <= f.opts.PaceMin {
		f.opts.Sleep(ctx, f.opts.PaceMin)
		return
	}
	jitter := time.Duration(rand.Int63n(int64(f.opts.PaceMax - f.opts.PaceMin)))
	f.opts.Sleep(ctx, f.opts.PaceMin+jitter)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
