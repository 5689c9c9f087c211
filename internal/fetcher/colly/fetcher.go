// Package collyfetcher implements crawler.Fetcher for HTML verdict listings
// using gocolly. Each work unit maps to one listing page for a single day.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/verdict-crawler/internal/crawler"
	"github.com/JakeFAU/verdict-crawler/internal/hash/sha256"
	"github.com/JakeFAU/verdict-crawler/internal/policy/ratelimit"
)

// DatePlaceholder is replaced by the unit's ISO date in Config.ListingURL.
const DatePlaceholder = "{date}"

// Selectors locate verdict fields in listing and detail pages. Item-level
// selectors are evaluated relative to each Item element.
type Selectors struct {
	Listing      string `mapstructure:"listing"`
	Item         string `mapstructure:"item"`
	Reference    string `mapstructure:"reference"`
	CaseNumber   string `mapstructure:"case_number"`
	Court        string `mapstructure:"court"`
	DecisionDate string `mapstructure:"decision_date"`
	Title        string `mapstructure:"title"`
	Link         string `mapstructure:"link"`
	Confidential string `mapstructure:"confidential"`
	Technical    string `mapstructure:"technical"`
	FullText     string `mapstructure:"full_text"`
}

// DefaultSelectors match the reference listing markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Listing:      "#verdicts",
		Item:         ".verdict",
		Reference:    ".reference",
		CaseNumber:   ".case-number",
		Court:        ".court",
		DecisionDate: ".decision-date",
		Title:        ".title",
		Link:         "a.detail",
		Confidential: ".confidential",
		Technical:    ".technical",
		FullText:     "#verdict-text",
	}
}

// Config controls collector behavior.
type Config struct {
	ListingURL    string
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	DateLayout    string
	Selectors     Selectors
	RateLimit     ratelimit.Config
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	hasher        *sha256.Hasher
	limiter       *ratelimit.Limiter
	logger        *zap.Logger
}

var _ crawler.Fetcher = (*Fetcher)(nil)

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if !strings.Contains(cfg.ListingURL, DatePlaceholder) {
		return nil, fmt.Errorf("listing url %q must contain %s", cfg.ListingURL, DatePlaceholder)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Selectors = withDefaults(cfg.Selectors)
	if cfg.DateLayout == "" {
		cfg.DateLayout = crawler.DateLayout
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	// Clones share the base collector's HTTP backend, so transport and
	// timeout are only set here.
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newRobotsTransport(newHTTPTransport(), logger))
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		hasher:        sha256.New(),
		limiter:       ratelimit.New(cfg.RateLimit),
		logger:        logger,
	}, nil
}

// ListingURL returns the listing page address for a day.
func (f *Fetcher) ListingURL(day time.Time) string {
	return strings.ReplaceAll(f.cfg.ListingURL, DatePlaceholder, day.UTC().Format(crawler.DateLayout))
}

// Fetch retrieves the listing for the unit's day and applies the filters.
func (f *Fetcher) Fetch(ctx context.Context, unit crawler.WorkUnit, filters crawler.Filters) (crawler.FetchResult, error) {
	day, err := unitDay(unit)
	if err != nil {
		return crawler.FetchResult{}, err
	}
	listingURL := f.ListingURL(day)

	page, err := f.scrapeListing(ctx, listingURL, day)
	if err != nil {
		return crawler.FetchResult{}, err
	}
	f.logger.Debug("listing scraped", zap.String("url", listingURL), zap.Int("items", len(page)))
	if len(page) == 0 {
		return crawler.FetchResult{Skipped: true, SkipReason: "no verdicts listed"}, nil
	}

	kept := make([]crawler.Verdict, 0, len(page))
	for _, it := range page {
		if filters.SkipConfidential && it.confidential {
			continue
		}
		if it.verdict.Technical && !filters.IncludeTechnical {
			continue
		}
		kept = append(kept, it.verdict)
	}
	if len(kept) == 0 {
		return crawler.FetchResult{
			Skipped:    true,
			SkipReason: fmt.Sprintf("all %d verdicts filtered", len(page)),
		}, nil
	}

	if filters.FullText {
		for i := range kept {
			if err := f.captureFullText(ctx, &kept[i]); err != nil {
				return crawler.FetchResult{}, err
			}
		}
	}

	return crawler.FetchResult{Record: crawler.Record{
		UnitID:    unit.ID,
		SourceURL: listingURL,
		Verdicts:  kept,
	}}, nil
}

type listingItem struct {
	verdict      crawler.Verdict
	confidential bool
}

func (f *Fetcher) scrapeListing(ctx context.Context, listingURL string, day time.Time) ([]listingItem, error) {
	sel := f.cfg.Selectors
	var (
		items    []listingItem
		found    bool
		parseErr error
	)
	collector := f.newCollector()
	collector.OnHTML(sel.Listing, func(e *colly.HTMLElement) {
		if found {
			return
		}
		found = true
		e.ForEach(sel.Item, func(i int, el *colly.HTMLElement) {
			if parseErr != nil {
				return
			}
			it, err := f.parseItem(el, day)
			if err != nil {
				parseErr = fmt.Errorf("%w: item %d on %s: %v", crawler.ErrMalformed, i, listingURL, err)
				return
			}
			items = append(items, it)
		})
	})

	if err := f.visit(ctx, collector, listingURL); err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s has no %q element", crawler.ErrMalformed, listingURL, sel.Listing)
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return items, nil
}

func (f *Fetcher) parseItem(el *colly.HTMLElement, day time.Time) (listingItem, error) {
	sel := f.cfg.Selectors
	ref := strings.TrimSpace(el.ChildText(sel.Reference))
	if ref == "" {
		return listingItem{}, errors.New("missing reference")
	}
	v := crawler.Verdict{
		Reference:    ref,
		CaseNumber:   strings.TrimSpace(el.ChildText(sel.CaseNumber)),
		Court:        strings.TrimSpace(el.ChildText(sel.Court)),
		DecisionDate: day,
		Title:        strings.TrimSpace(el.ChildText(sel.Title)),
		Technical:    matches(el, sel.Technical),
	}
	if raw := strings.TrimSpace(el.ChildText(sel.DecisionDate)); raw != "" {
		d, err := time.ParseInLocation(f.cfg.DateLayout, raw, time.UTC)
		if err != nil {
			return listingItem{}, fmt.Errorf("decision date %q: %w", raw, err)
		}
		v.DecisionDate = d
	}
	if href := strings.TrimSpace(el.ChildAttr(sel.Link, "href")); href != "" {
		v.URL = el.Request.AbsoluteURL(href)
	}
	return listingItem{verdict: v, confidential: matches(el, sel.Confidential)}, nil
}

func (f *Fetcher) captureFullText(ctx context.Context, v *crawler.Verdict) error {
	if v.URL == "" {
		return fmt.Errorf("%w: verdict %s has no detail link", crawler.ErrMalformed, v.Reference)
	}
	var (
		text  string
		found bool
	)
	collector := f.newCollector()
	collector.OnHTML(f.cfg.Selectors.FullText, func(e *colly.HTMLElement) {
		if found {
			return
		}
		found = true
		text = strings.TrimSpace(e.Text)
	})
	if err := f.visit(ctx, collector, v.URL); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s has no %q element", crawler.ErrMalformed, v.URL, f.cfg.Selectors.FullText)
	}
	v.FullText = text
	v.ContentHash = f.hasher.HashText(text)
	return nil
}

func (f *Fetcher) newCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	return collector
}

// visit runs one synchronous Visit and maps failures onto the fault taxonomy.
func (f *Fetcher) visit(ctx context.Context, collector *colly.Collector, target string) error {
	if err := f.limiter.Wait(ctx, target); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
		}
		return fmt.Errorf("%w: %v", crawler.ErrTimeout, err)
	}

	// The request is bound to ctx, so a deadline aborts the open connection
	// instead of leaving it to the collector's own request timeout.
	collector.Context = ctx

	var respErr error
	collector.OnError(func(r *colly.Response, err error) {
		respErr = responseError(r, target, err)
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		<-done
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if respErr != nil {
			return respErr
		}
		if err != nil {
			return fmt.Errorf("colly visit %s: %w", target, err)
		}
		return nil
	}
}

func responseError(r *colly.Response, target string, err error) error {
	status := 0
	if r != nil {
		status = r.StatusCode
	}
	switch status {
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%w: %s returned %d", crawler.ErrNotFound, target, status)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s returned %d", crawler.ErrTimeout, target, status)
	}
	if status != 0 {
		return fmt.Errorf("%s returned %d: %w", target, status, err)
	}
	return fmt.Errorf("colly response %s: %w", target, err)
}

func matches(el *colly.HTMLElement, selector string) bool {
	return selector != "" && el.DOM.Find(selector).Length() > 0
}

func unitDay(unit crawler.WorkUnit) (time.Time, error) {
	if unit.HasDate() {
		return unit.Date, nil
	}
	d, err := crawler.ParseDate(unit.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: unit %q has no listing date", crawler.ErrMalformed, unit.ID)
	}
	return d, nil
}

func withDefaults(s Selectors) Selectors {
	d := DefaultSelectors()
	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&s.Listing, d.Listing)
	fill(&s.Item, d.Item)
	fill(&s.Reference, d.Reference)
	fill(&s.CaseNumber, d.CaseNumber)
	fill(&s.Court, d.Court)
	fill(&s.DecisionDate, d.DecisionDate)
	fill(&s.Title, d.Title)
	fill(&s.Link, d.Link)
	fill(&s.Confidential, d.Confidential)
	fill(&s.Technical, d.Technical)
	fill(&s.FullText, d.FullText)
	return s
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
