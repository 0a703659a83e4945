// Package discovery crawls a site starting from one address and
// extracts contact email addresses, preferring contact-like pages.
package discovery

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/passivleads/emailfinder/internal/discovery/detector"
	"github.com/passivleads/emailfinder/internal/metrics"
	"github.com/passivleads/emailfinder/internal/policy/ratelimit"
)

// Defaults applied when a caller passes zero values.
const (
	DefaultMaxPages = 10
	DefaultTimeout  = 10 * time.Second
)

// Renderer executes JavaScript for pages the static fetch cannot see
// through. Optional.
type Renderer interface {
	Render(ctx context.Context, pageURL string) ([]byte, error)
}

// Config controls crawl behavior.
type Config struct {
	MaxPages  int
	Timeout   time.Duration
	UserAgent string
}

// Options override Config per call. Zero fields fall back to Config.
type Options struct {
	MaxPages int
	Timeout  time.Duration
}

// Result is the outcome of one site crawl.
type Result struct {
	// Emails holds discovered addresses in first-discovery order,
	// de-duplicated.
	Emails []string
	// PagesScraped counts pages actually fetched.
	PagesScraped int
	// ImportantPages lists visited contact-like page URLs.
	ImportantPages []string
	// Rendered reports whether any page needed a headless render.
	Rendered bool
}

// Finder crawls one site at a time per call. It is safe for concurrent
// use; each call clones the base collector.
type Finder struct {
	cfg      Config
	limiter  *ratelimit.Limiter
	detector *detector.Heuristic
	renderer Renderer
	logger   *zap.Logger
	base     *colly.Collector
}

// New builds a Finder. limiter and renderer may be nil.
func New(cfg Config, limiter *ratelimit.Limiter, renderer Renderer, logger *zap.Logger) *Finder {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base := colly.NewCollector(colly.Async(false))
	base.IgnoreRobotsTxt = true
	// Clones share the visited-URL store; revisits must stay legal so
	// crawling the same site twice works. Per-crawl dedupe happens in
	// the frontier's visited map.
	base.AllowURLRevisit = true
	base.WithTransport(newHTTPTransport())
	return &Finder{
		cfg:      cfg,
		limiter:  limiter,
		detector: detector.NewHeuristic(0),
		renderer: renderer,
		logger:   logger,
		base:     base,
	}
}

// Discover implements the single-address lookup used by batch jobs.
func (f *Finder) Discover(ctx context.Context, address string) ([]string, error) {
	res, err := f.Crawl(ctx, address, Options{})
	if err != nil {
		return nil, err
	}
	return res.Emails, nil
}

// Crawl walks the site breadth-first up to the page cap, visiting
// contact-like pages first. A failed root fetch fails the crawl; a
// failed secondary page is skipped.
func (f *Finder) Crawl(ctx context.Context, address string, opts Options) (Result, error) {
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = f.cfg.MaxPages
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}

	root, err := url.Parse(address)
	if err != nil {
		return Result{}, parseError(address, err)
	}
	if root.Scheme == "" || root.Host == "" {
		return Result{}, parseError(address, fmt.Errorf("address %q has no scheme or host", address))
	}

	var (
		result   Result
		frontier = []candidate{{url: root.String(), priority: priorityOf(root.String())}}
		visited  = map[string]bool{}
		seen     = map[string]struct{}{}
	)

	addEmails := func(addrs []string) {
		for _, a := range addrs {
			key := strings.ToLower(a)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			result.Emails = append(result.Emails, a)
		}
	}

	for len(frontier) > 0 && result.PagesScraped < maxPages {
		if err := ctx.Err(); err != nil {
			if result.PagesScraped == 0 {
				return Result{}, classify(root.Host, err)
			}
			break
		}

		next := popNext(&frontier)
		if visited[next.url] {
			continue
		}
		visited[next.url] = true

		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, next.url); err != nil {
				if result.PagesScraped == 0 {
					return Result{}, classify(root.Host, err)
				}
				break
			}
		}

		page, err := f.fetchPage(ctx, next.url, timeout)
		if err != nil {
			metrics.ObservePage(next.url, "error")
			if result.PagesScraped == 0 {
				return Result{}, classify(root.Host, err)
			}
			f.logger.Debug("secondary page fetch failed",
				zap.String("url", next.url), zap.Error(err))
			continue
		}
		metrics.ObservePage(next.url, "ok")
		result.PagesScraped++
		if next.priority == priorityContact {
			result.ImportantPages = append(result.ImportantPages, next.url)
		}

		body := page.body
		if f.renderer != nil && f.detector.ShouldPromote(page.status, body) {
			if rendered, rerr := f.renderer.Render(ctx, next.url); rerr == nil {
				body = rendered
				result.Rendered = true
			} else {
				f.logger.Debug("headless render failed",
					zap.String("url", next.url), zap.Error(rerr))
			}
		}

		addEmails(page.mailtos)
		addEmails(extractEmails(body))

		for _, link := range page.links {
			if sameSite(root, link) && !visited[link] {
				frontier = append(frontier, candidate{url: link, priority: priorityOf(link)})
			}
		}
	}

	return result, nil
}

type page struct {
	status  int
	body    []byte
	links   []string
	mailtos []string
}

func (f *Finder) fetchPage(ctx context.Context, pageURL string, timeout time.Duration) (page, error) {
	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(timeout)

	var (
		p        page
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		p.status = r.StatusCode
		p.body = append([]byte(nil), r.Body...)
	})
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := e.Attr("href")
		if strings.HasPrefix(href, "mailto:") {
			if addr, ok := cleanMailto(href); ok {
				p.mailtos = append(p.mailtos, addr)
			}
			return
		}
		if abs := e.Request.AbsoluteURL(href); abs != "" {
			p.links = append(p.links, stripFragment(abs))
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()

	select {
	case <-ctx.Done():
		return page{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return page{}, fmt.Errorf("visit %s: %w", pageURL, err)
		}
		if fetchErr != nil {
			return page{}, fmt.Errorf("fetch %s: %w", pageURL, fetchErr)
		}
		return p, nil
	}
}

type candidate struct {
	url      string
	priority int
}

const (
	priorityContact = 0
	priorityOther   = 1
)

var contactMarkers = []string{
	"contact", "about", "a-propos", "apropos", "team", "equipe",
	"impressum", "mentions-legales", "legal", "support",
}

func priorityOf(link string) int {
	lower := strings.ToLower(link)
	for _, marker := range contactMarkers {
		if strings.Contains(lower, marker) {
			return priorityContact
		}
	}
	return priorityOther
}

// popNext removes and returns the best candidate: contact-like pages
// first, submission order within the same priority.
func popNext(frontier *[]candidate) candidate {
	sort.SliceStable(*frontier, func(i, j int) bool {
		return (*frontier)[i].priority < (*frontier)[j].priority
	})
	next := (*frontier)[0]
	*frontier = (*frontier)[1:]
	return next
}

func sameSite(root *url.URL, link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	rootHost := strings.TrimPrefix(root.Hostname(), "www.")
	return host != "" && host == rootHost
}

func stripFragment(link string) string {
	if i := strings.IndexByte(link, '#'); i >= 0 {
		return link[:i]
	}
	return link
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
