package harvester

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gocolly/colly/v2"
	"github.com/mfenderov/wikibot/internal/mediawiki"
	"github.com/mfenderov/wikibot/internal/processor"
	"github.com/mfenderov/wikibot/internal/retry"
	"github.com/mfenderov/wikibot/pkg/models"
)

// Config holds harvester configuration.
type Config struct {
	RequestDelay    time.Duration // pause between requests to the wiki
	Concurrency     int           // parallel page requests
	MaxRetries      int
	RetryBaseDelay  time.Duration
	Timeout         time.Duration
	UserAgent       string
	MinContentChars int // pages with less plain text are skipped
	Namespace       int
}

// Harvester crawls a MediaWiki instance into a snapshot.
type Harvester struct {
	config    Config
	processor *processor.Processor
	now       func() time.Time
}

// New creates a new Harvester with the given configuration.
func New(config Config) *Harvester {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "wikibot/1.0"
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &Harvester{
		config:    config,
		processor: processor.New(),
		now:       time.Now,
	}
}

// Result holds the outcome of a harvest run.
type Result struct {
	Snapshot *models.Snapshot
	Listed   int              // distinct titles returned by the listing
	Warnings []PageFetchError // pages that were skipped, in listing order
	Duration time.Duration
}

// Partial reports whether some listed pages were left out of the snapshot.
func (r *Result) Partial() bool {
	return len(r.Warnings) > 0
}

func (h *Harvester) retryPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries: h.config.MaxRetries,
		BaseDelay:  h.config.RetryBaseDelay,
		MaxDelay:   30 * time.Second,
	}
}

// Harvest lists every page of the wiki at baseURL, fetches and normalizes
// each one and returns the resulting snapshot. An unreachable listing is a
// *FetchError; pages that fail individually end up in Result.Warnings.
func (h *Harvester) Harvest(ctx context.Context, baseURL string) (*Result, error) {
	start := time.Now()

	client, err := mediawiki.New(mediawiki.Config{
		BaseURL:   baseURL,
		UserAgent: h.config.UserAgent,
		Timeout:   h.config.Timeout,
		Namespace: h.config.Namespace,
		Retry:     h.retryPolicy(),

		RequestDelay: h.config.RequestDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create mediawiki client: %w", err)
	}

	slog.Info("starting harvest", "url", client.BaseURL())

	titles, err := client.ListTitles(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &FetchError{URL: client.BaseURL(), Err: err}
	}
	titles = dedupe(titles)
	slog.Info("listed pages", "count", len(titles))

	pages, failures := h.fetchPages(ctx, client, titles)
	if ctx.Err() != nil {
		slog.Info("harvest cancelled by context", "pages_fetched", len(pages))
		return nil, ctx.Err()
	}

	result := &Result{
		Snapshot: &models.Snapshot{
			GeneratedAt:   h.now().UTC(),
			SourceBaseURL: client.BaseURL(),
			Pages:         make([]models.WikiPage, 0, len(pages)),
		},
		Listed: len(titles),
	}

	// Listing order keeps snapshots of an unchanged wiki identical.
	for _, title := range titles {
		if page, ok := pages[title]; ok {
			result.Snapshot.Pages = append(result.Snapshot.Pages, page)
			continue
		}
		if failure, ok := failures[title]; ok {
			result.Warnings = append(result.Warnings, failure)
		}
	}

	if err := result.Snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("harvested snapshot is invalid: %w", err)
	}

	result.Duration = time.Since(start)
	slog.Info("harvest complete",
		"url", client.BaseURL(),
		"pages", len(result.Snapshot.Pages),
		"skipped", len(result.Warnings),
		"duration", result.Duration)

	return result, nil
}

// fetchPages downloads the rendered HTML of every title through a rate
// limited collector and normalizes it.
func (h *Harvester) fetchPages(ctx context.Context, client *mediawiki.Client, titles []string) (map[string]models.WikiPage, map[string]PageFetchError) {
	pages := make(map[string]models.WikiPage, len(titles))
	failures := make(map[string]PageFetchError)
	var mu sync.Mutex

	policy := h.retryPolicy()

	fail := func(title string, status, attempts int, err error) {
		slog.Warn("skipping page", "title", title, "status", status, "attempts", attempts, "error", err)
		mu.Lock()
		failures[title] = PageFetchError{
			Title:    title,
			URL:      client.PageURL(title),
			Status:   status,
			Attempts: attempts,
			Err:      err,
		}
		mu.Unlock()
	}

	c := colly.NewCollector(
		colly.UserAgent(h.config.UserAgent),
		colly.Async(true),
		colly.StdlibContext(ctx),
	)

	// Set rate limiting
	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       h.config.RequestDelay,
		Parallelism: h.config.Concurrency,
	})

	// Set timeout
	c.SetRequestTimeout(h.config.Timeout)

	// Check for cancellation before each request
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			slog.Debug("harvest cancelled", "url", r.URL.String())
			r.Abort()
		}
	})

	c.OnResponse(func(r *colly.Response) {
		title := r.Ctx.Get("title")
		attempts := attemptOf(r.Ctx)

		parsed, err := mediawiki.DecodeParse(r.Body)
		if err != nil {
			fail(title, r.StatusCode, attempts, err)
			return
		}

		normalized, err := h.processor.Process(parsed.HTML)
		if err != nil {
			fail(title, r.StatusCode, attempts, err)
			return
		}
		if utf8.RuneCountInString(normalized.Content) < max(h.config.MinContentChars, 1) {
			fail(title, r.StatusCode, attempts, ErrContentTooShort)
			return
		}

		page := models.WikiPage{
			Title:           title,
			URL:             client.PageURL(title),
			Content:         normalized.Content,
			SectionHeadings: normalized.Headings,
			FetchedAt:       h.now().UTC(),
		}

		mu.Lock()
		pages[title] = page
		mu.Unlock()

		slog.Debug("fetched page", "title", title, "size", len(page.Content), "headings", len(page.SectionHeadings))
	})

	c.OnError(func(r *colly.Response, err error) {
		title := r.Ctx.Get("title")
		attempt := attemptOf(r.Ctx)

		if ctx.Err() == nil && mediawiki.Retryable(r.StatusCode) && attempt <= policy.MaxRetries {
			delay := policy.Backoff(attempt)
			slog.Debug("retrying page", "title", title, "attempt", attempt, "delay", delay, "error", err)
			r.Ctx.Put("attempt", attempt+1)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			retryErr := r.Request.Retry()
			if retryErr == nil {
				return
			}
			err = retryErr
		}

		fail(title, r.StatusCode, attempt, err)
	})

	for _, title := range titles {
		reqCtx := colly.NewContext()
		reqCtx.Put("title", title)
		reqCtx.Put("attempt", 1)

		if err := c.Request(http.MethodGet, client.ParseURL(title), nil, reqCtx, nil); err != nil {
			fail(title, 0, 0, err)
		}
	}

	// Wait for all requests to finish
	c.Wait()

	return pages, failures
}

func attemptOf(ctx *colly.Context) int {
	if n, ok := ctx.GetAny("attempt").(int); ok {
		return n
	}
	return 1
}

// dedupe drops repeated titles, keeping the first position of each. A title
// is fetched once, so the record is the same whichever duplicate wins; only
// its place in the snapshot follows the first listing.
func dedupe(titles []string) []string {
	seen := make(map[string]struct{}, len(titles))
	out := make([]string, 0, len(titles))
	for _, t := range titles {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
