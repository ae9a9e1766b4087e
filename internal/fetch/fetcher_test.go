package fetch

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver scripts a sequence of page states: each Content call
// consumes the next state.
type fakeDriver struct {
	navErr      []error
	navCalls    int
	contents    []string
	contentIdx  int
	url         string
	scrollCalls int
}

func (d *fakeDriver) Navigate(url string) error {
	d.navCalls++
	if len(d.navErr) > 0 {
		err := d.navErr[0]
		d.navErr = d.navErr[1:]
		return err
	}
	return nil
}

func (d *fakeDriver) Content() (string, error) {
	if d.contentIdx >= len(d.contents) {
		return d.contents[len(d.contents)-1], nil
	}
	c := d.contents[d.contentIdx]
	d.contentIdx++
	return c, nil
}

func (d *fakeDriver) CurrentURL() string { return d.url }
func (d *fakeDriver) Scroll()            { d.scrollCalls++ }

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func testOptions() Options {
	opts := DefaultOptions()
	opts.Sleep = noSleep
	return opts
}

func newTestFetcher(d *fakeDriver) *Fetcher {
	return New(d, testOptions(), slog.Default())
}

func TestFetchReturnsContentWhenMarkersPresent(t *testing.T) {
	driver := &fakeDriver{
		contents: []string{`<table><tr class="searchResultsItem"></tr></table>`},
		url:      "https://www.sahibinden.com/bmw-x5",
	}

	content, err := newTestFetcher(driver).Fetch(context.Background(), driver.url, PageIndex)
	require.NoError(t, err)
	assert.Contains(t, content, "searchResultsItem")
	assert.Equal(t, 1, driver.scrollCalls)
}

func TestFetchRetriesTransportFailures(t *testing.T) {
	driver := &fakeDriver{
		navErr:   []error{errors.New("net::ERR_CONNECTION_RESET"), errors.New("timeout")},
		contents: []string{`<div class="classifiedDetail"></div>`},
	}

	content, err := newTestFetcher(driver).Fetch(context.Background(), "https://example.test", PageDetail)
	require.NoError(t, err)
	assert.Contains(t, content, "classifiedDetail")
	assert.Equal(t, 3, driver.navCalls)
}

func TestFetchFailsAfterBoundedAttempts(t *testing.T) {
	driver := &fakeDriver{
		navErr: []error{
			errors.New("refused"), errors.New("refused"), errors.New("refused"),
		},
		contents: []string{""},
	}

	_, err := newTestFetcher(driver).Fetch(context.Background(), "https://example.test", PageIndex)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Equal(t, 3, driver.navCalls)
}

func TestFetchWaitsOutChallenge(t *testing.T) {
	driver := &fakeDriver{
		contents: []string{
			`<html>Olağandışı bir erişim algılandı captcha</html>`,
			`<html>Olağandışı bir erişim algılandı captcha</html>`,
			`<table><tr class="searchResultsItem" data-id="1"></tr></table>`,
		},
	}

	content, err := newTestFetcher(driver).Fetch(context.Background(), "https://example.test", PageIndex)
	require.NoError(t, err)
	assert.Contains(t, content, "searchResultsItem")
	assert.Equal(t, 3, driver.contentIdx)
}

func TestFetchDetectsLoginWallByURL(t *testing.T) {
	driver := &fakeDriver{
		contents: []string{
			`<html>some interstitial</html>`,
			`<div class="classifiedDetail"></div>`,
		},
		url: "https://secure.sahibinden.com/giris?return=x",
	}

	content, err := newTestFetcher(driver).Fetch(context.Background(), "https://example.test", PageDetail)
	require.NoError(t, err)
	assert.Contains(t, content, "classifiedDetail")
}

func TestFetchContentMarkerOverridesChallengeText(t *testing.T) {
	// Stray "robot" text on a page that already shows listing rows must
	// not be treated as an interstitial.
	driver := &fakeDriver{
		contents: []string{
			`<table><tr class="searchResultsItem" data-id="1"><td>robot süpürge hediyeli</td></tr></table>`,
		},
	}

	content, err := newTestFetcher(driver).Fetch(context.Background(), "https://example.test", PageIndex)
	require.NoError(t, err)
	assert.Contains(t, content, "data-id")
	assert.Equal(t, 1, driver.contentIdx)
}

func TestFetchReturnsSettledPageWithoutMarkers(t *testing.T) {
	// Beyond catalog depth the site renders a page with no rows at all;
	// once the settle window is spent that must come back as content,
	// not an error or an endless wait.
	driver := &fakeDriver{
		contents: []string{`<html><body>Sonuç bulunamadı</body></html>`},
	}

	content, err := newTestFetcher(driver).Fetch(context.Background(), "https://example.test", PageIndex)
	require.NoError(t, err)
	assert.Contains(t, content, "Sonuç bulunamadı")
}

func TestFetchWaitsForSlowRenderWithinSettleWindow(t *testing.T) {
	// The listing rows can arrive a few polls after domcontentloaded; a
	// page that is momentarily bare must not be declared empty, since an
	// empty index page ends the target's pagination.
	driver := &fakeDriver{
		contents: []string{
			`<html><body></body></html>`,
			`<html><body></body></html>`,
			`<table><tr class="searchResultsItem" data-id="1"></tr></table>`,
		},
	}

	content, err := newTestFetcher(driver).Fetch(context.Background(), "https://example.test", PageIndex)
	require.NoError(t, err)
	assert.Contains(t, content, "searchResultsItem")
	assert.Equal(t, 3, driver.contentIdx)
}

func TestFetchSettleWindowBoundsEmptyPagePolls(t *testing.T) {
	driver := &fakeDriver{
		contents: []string{`<html><body>Sonuç bulunamadı</body></html>`},
	}

	opts := testOptions()
	opts.ChallengePoll = 2 * time.Second
	opts.MarkerSettle = 4 * time.Second
	opts.PaceMin = time.Millisecond
	opts.PaceMax = time.Millisecond
	settlePolls := 0
	opts.Sleep = func(ctx context.Context, d time.Duration) error {
		if d == opts.ChallengePoll {
			settlePolls++
		}
		return ctx.Err()
	}

	content, err := New(driver, opts, slog.Default()).Fetch(context.Background(), "https://example.test", PageIndex)
	require.NoError(t, err)
	assert.Contains(t, content, "Sonuç bulunamadı")
	assert.Equal(t, 2, settlePolls)
}

func TestFetchChallengeCancelledByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	driver := &fakeDriver{
		contents: []string{`<html>captcha</html>`},
	}

	opts := testOptions()
	polls := 0
	opts.Sleep = func(ctx context.Context, d time.Duration) error {
		polls++
		if polls >= 2 {
			cancel()
		}
		return ctx.Err()
	}

	_, err := New(driver, opts, slog.Default()).Fetch(ctx, "https://example.test", PageIndex)
	assert.ErrorIs(t, err, context.Canceled)
}
