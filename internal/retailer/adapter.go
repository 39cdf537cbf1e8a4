// Package retailer turns retailer search pages into normalized diaper
// listings. Every adapter shares one search loop; adapters only contribute
// their URL shapes and page parsers.
package retailer

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/diaperwatch/diaperwatch-cli/internal/browser"
	"github.com/diaperwatch/diaperwatch-cli/internal/extract"
	"github.com/diaperwatch/diaperwatch-cli/internal/fetcher"
	"github.com/diaperwatch/diaperwatch-cli/internal/model"
	"github.com/diaperwatch/diaperwatch-cli/internal/resilience"
)

// Adapter searches one retailer for diaper listings.
type Adapter interface {
	Name() string
	// SearchDiapers returns the valid listings found for every brand and
	// size combination. It returns an error only when ctx is done.
	SearchDiapers(ctx context.Context, params model.SearchParams) ([]model.ProductListing, error)
}

// Options tune adapter behavior.
type Options struct {
	// Delay is the base pause between requests. The actual pause is
	// Delay + rand[0, Delay), scaled by how many variants were already tried.
	// Zero disables pacing.
	Delay time.Duration
	// BaseURL overrides the retailer's site root.
	BaseURL string
	// Renderer, when set, is used for retailers that support a headless
	// browser fallback after HTTP fetches are blocked.
	Renderer browser.Renderer
	// Now is the clock used for LastFetchedAt. Default: time.Now.
	Now func() time.Time
}

// rawItem is a product tile as scraped, before any validation.
type rawItem struct {
	Title     string
	PriceText string
	URL       string
	InStock   bool
}

// candidate is one URL to try for a query phrasing.
type candidate struct {
	URL  string
	JSON bool
}

// renderSpec enables the browser fallback for a site.
type renderSpec struct {
	WaitSelector string
	Scrolls      int
}

// site describes the retailer-specific parts of a search.
type site struct {
	name    string
	baseURL string
	// candidates returns the ordered URLs to try for one query phrasing.
	candidates func(base, query string) []candidate
	// parse extracts raw items from a fetched page.
	parse  func(body []byte, pageURL string) ([]rawItem, error)
	render *renderSpec
}

// SiteAdapter implements Adapter on top of a site description.
type SiteAdapter struct {
	site     site
	fetcher  fetcher.Fetcher
	renderer browser.Renderer
	delay    time.Duration
	now      func() time.Time
}

func newSiteAdapter(s site, f fetcher.Fetcher, opts Options) *SiteAdapter {
	if opts.BaseURL != "" {
		s.baseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	a := &SiteAdapter{
		site:    s,
		fetcher: f,
		delay:   opts.Delay,
		now:     now,
	}
	if s.render != nil {
		a.renderer = opts.Renderer
	}
	return a
}

// Name returns the retailer identifier.
func (a *SiteAdapter) Name() string { return a.site.name }

// SearchDiapers implements Adapter.
func (a *SiteAdapter) SearchDiapers(ctx context.Context, params model.SearchParams) (out []model.ProductListing, err error) {
	log := zap.L().With(zap.String("retailer", a.site.name))

	defer func() {
		if r := recover(); r != nil {
			log.Error("retailer: adapter panic recovered",
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
			err = nil
			if ctx.Err() != nil {
				err = ctx.Err()
			}
		}
	}()

	requests := 0
	for _, brand := range params.Brands {
		for _, size := range params.Sizes {
			found, reqs, err := a.searchCombination(ctx, brand, size, params.Min(), requests)
			requests += reqs
			out = append(out, found...)
			if err != nil {
				return out, err
			}
			log.Debug("retailer: combination done",
				zap.String("brand", brand),
				zap.String("size", size),
				zap.Int("listings", len(found)),
			)
		}
	}
	return out, nil
}

// searchCombination tries every query phrasing and candidate URL for one
// brand and size until minProducts listings are collected. prior is the number
// of requests already made in this search, used to skip the initial pause.
func (a *SiteAdapter) searchCombination(ctx context.Context, brand, size string, minProducts, prior int) ([]model.ProductListing, int, error) {
	c := newCollector()
	requests := 0
	variantsTried := 0

	for _, query := range queryPhrasings(brand, size) {
		for _, cand := range a.site.candidates(a.site.baseURL, url.QueryEscape(query)) {
			if c.len() >= minProducts {
				return c.listings(), requests, nil
			}
			if prior+requests > 0 {
				if err := resilience.Sleep(ctx, a.pause(variantsTried)); err != nil {
					return c.listings(), requests, err
				}
			}
			requests++
			variantsTried++

			items, err := a.load(ctx, cand)
			if err != nil {
				if ctx.Err() != nil {
					return c.listings(), requests, ctx.Err()
				}
				zap.L().Warn("retailer: variant failed",
					zap.String("retailer", a.site.name),
					zap.String("url", cand.URL),
					zap.Stringer("class", resilience.Classify(err)),
					zap.Error(err),
				)
				continue
			}

			fetchedAt := a.now()
			for _, it := range items {
				l, reason := normalize(a.site.name, it, brand, size, cand.URL, fetchedAt)
				if reason != "" {
					zap.L().Debug("retailer: item skipped",
						zap.String("retailer", a.site.name),
						zap.String("title", it.Title),
						zap.String("reason", reason),
					)
					continue
				}
				c.add(l)
			}
		}
	}
	return c.listings(), requests, nil
}

// load fetches and parses one candidate, falling back to the browser when the
// site supports it and HTTP was blocked.
func (a *SiteAdapter) load(ctx context.Context, cand candidate) ([]rawItem, error) {
	var opts []fetcher.Option
	if cand.JSON {
		opts = append(opts, fetcher.WithMinBody(0), fetcher.WithHeader("Accept", "application/json"))
	}

	resp, err := a.fetcher.Fetch(ctx, cand.URL, opts...)
	if err == nil {
		return a.site.parse(resp.Body, resp.URL)
	}
	if a.renderer == nil || cand.JSON || !resilience.IsBlocked(err) || ctx.Err() != nil {
		return nil, err
	}

	zap.L().Info("retailer: http blocked, rendering in browser",
		zap.String("retailer", a.site.name),
		zap.String("url", cand.URL),
	)
	res, rerr := a.renderer.Render(ctx, browser.RenderRequest{
		URL:          cand.URL,
		WaitSelector: a.site.render.WaitSelector,
		Scrolls:      a.site.render.Scrolls,
	})
	if rerr != nil {
		return nil, eris.Wrap(rerr, "retailer: render")
	}
	switch res.Outcome {
	case browser.OutcomeBlocked:
		return nil, &resilience.BlockedError{URL: cand.URL, Reason: res.BlockReason}
	case browser.OutcomeEmpty:
		return nil, nil
	}
	return a.site.parse([]byte(res.HTML), res.FinalURL)
}

// pause returns Delay + rand[0, Delay) scaled by 1 + 0.5 per variant tried.
func (a *SiteAdapter) pause(variantsTried int) time.Duration {
	if a.delay <= 0 {
		return 0
	}
	d := a.delay + time.Duration(rand.Int64N(int64(a.delay)))
	return time.Duration(float64(d) * (1 + 0.5*float64(variantsTried)))
}

func queryPhrasings(brand, size string) []string {
	return []string{
		fmt.Sprintf("%s diapers size %s", brand, size),
		fmt.Sprintf("%s size %s", brand, size),
		fmt.Sprintf("%s couches taille %s", brand, size),
	}
}

// normalize converts a raw item into a listing, or returns the reason it was
// rejected.
func normalize(retailer string, it rawItem, brand, size, pageURL string, fetchedAt time.Time) (model.ProductListing, string) {
	title := strings.Join(strings.Fields(it.Title), " ")
	if !extract.IsDiaperProduct(title, brand) {
		return model.ProductListing{}, "not a diaper product of brand"
	}
	if !extract.MatchesSize(title, size) {
		return model.ProductListing{}, "size mismatch"
	}
	price, ok := extract.ParsePrice(it.PriceText)
	if !ok {
		return model.ProductListing{}, "no price"
	}
	count, ok := extract.ExtractCount(title)
	if !ok {
		return model.ProductListing{}, "no count"
	}

	l := model.NewListing(brand, extract.ExtractProductLine(title, brand), size, retailer,
		count, price, absoluteURL(pageURL, it.URL), it.InStock, fetchedAt)
	if err := l.Validate(); err != nil {
		return model.ProductListing{}, err.Error()
	}
	return l, ""
}

// collector dedupes listings by natural key, keeping the lowest price per
// unit and first-seen order.
type collector struct {
	order []model.ListingKey
	byKey map[model.ListingKey]model.ProductListing
}

func newCollector() *collector {
	return &collector{byKey: make(map[model.ListingKey]model.ProductListing)}
}

func (c *collector) add(l model.ProductListing) {
	k := l.Key()
	prev, ok := c.byKey[k]
	if !ok {
		c.order = append(c.order, k)
		c.byKey[k] = l
		return
	}
	if l.PricePerUnit < prev.PricePerUnit {
		c.byKey[k] = l
	}
}

func (c *collector) len() int { return len(c.order) }

func (c *collector) listings() []model.ProductListing {
	out := make([]model.ProductListing, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.byKey[k])
	}
	return out
}

func absoluteURL(pageURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return pageURL
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
