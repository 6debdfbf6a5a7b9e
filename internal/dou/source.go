package dou

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/gazette-watch/internal/gazette"
)

// Defaults for the public in.gov.br endpoints.
const (
	DefaultBaseURL = "https://www.in.gov.br/leiturajornal"
	DefaultWebURL  = "https://www.in.gov.br"

	queryDateLayout  = "02-01-2006"
	archiveMediaType = "text/html; charset=utf-8"
)

// Config controls how sections are fetched.
type Config struct {
	BaseURL       string
	WebURL        string
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	MaxAttempts   uint
	Backoff       time.Duration
	ArchivePrefix string
	// Limiter paces requests when set.
	Limiter RateLimiter
}

// RateLimiter blocks until a request to url may be sent.
type RateLimiter interface {
	Wait(ctx context.Context, url string) error
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

// Temporary reports whether a retry may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Source implements gazette.EntrySource against the DOU website.
type Source struct {
	cfg       Config
	transport *http.Transport
	archive   gazette.BlobStore
	logger    *zap.Logger
}

// NewSource builds a Source. archive may be nil to skip archiving raw pages.
func NewSource(cfg Config, archive gazette.BlobStore, logger *zap.Logger) *Source {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.WebURL == "" {
		cfg.WebURL = DefaultWebURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Source{
		cfg:       cfg,
		transport: newHTTPTransport(),
		archive:   archive,
		logger:    logger,
	}
}

// PageURL returns the leitura do jornal URL for a section and day.
func (s *Source) PageURL(section gazette.Section, day time.Time) string {
	q := url.Values{}
	q.Set("data", day.Format(queryDateLayout))
	q.Set("secao", string(section))
	return s.cfg.BaseURL + "?" + q.Encode()
}

// Fetch downloads and parses one section for day.
func (s *Source) Fetch(ctx context.Context, section gazette.Section, day time.Time) ([]gazette.Entry, error) {
	pageURL := s.PageURL(section, day)
	logger := s.logger.With(zap.String("section", string(section)), zap.String("url", pageURL))

	var body []byte
	err := retry.Do(
		func() error {
			b, err := s.fetchOnce(ctx, pageURL)
			if err != nil {
				return err
			}
			body = b
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(s.cfg.MaxAttempts),
		retry.Delay(s.cfg.Backoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("section fetch failed, retrying", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch section %s: %w", section, err)
	}

	s.archivePage(ctx, section, day, body, logger)

	entries, err := ParsePage(body, section, day, s.cfg.WebURL)
	if err != nil {
		return nil, fmt.Errorf("parse section %s: %w", section, err)
	}
	logger.Info("section fetched", zap.Int("entries", len(entries)), zap.Int("bytes", len(body)))
	return entries, nil
}

// fetchOnce performs one visit. Cancelling ctx aborts the request in flight.
func (s *Source) fetchOnce(ctx context.Context, pageURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("colly fetch canceled: %w", err)
	}
	if s.cfg.Limiter != nil {
		if err := s.cfg.Limiter.Wait(ctx, pageURL); err != nil {
			return nil, err
		}
	}
	var (
		body     []byte
		fetchErr error
	)
	collector := s.newCollector(ctx)
	if s.cfg.UserAgent != "" {
		collector.UserAgent = s.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !s.cfg.RespectRobots

	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = &StatusError{URL: pageURL, StatusCode: r.StatusCode}
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return nil, fetchErr
		}
		if err != nil {
			return nil, fmt.Errorf("colly visit failed: %w", err)
		}
		return body, nil
	}
}

// newCollector builds a collector whose requests are aborted when ctx ends.
// Collectors share the transport, so connections are reused across attempts.
func (s *Source) newCollector(ctx context.Context) *colly.Collector {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(&contextTransport{ctx: ctx, base: s.transport})
	c.SetRequestTimeout(s.cfg.Timeout)
	return c
}

// contextTransport cancels in-flight requests when ctx ends, on top of the
// client's own timeout.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqCtx, cancel := context.WithCancel(req.Context())
	stop := context.AfterFunc(t.ctx, cancel)
	release := func() {
		stop()
		cancel()
	}

	resp, err := t.base.RoundTrip(req.WithContext(reqCtx))
	if err != nil {
		release()
		return nil, err
	}
	resp.Body = &releasingBody{ReadCloser: resp.Body, release: release}
	return resp, nil
}

// releasingBody frees the request context once the body is closed.
type releasingBody struct {
	io.ReadCloser
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.release()
	return err
}

func (s *Source) archivePage(ctx context.Context, section gazette.Section, day time.Time, body []byte, logger *zap.Logger) {
	if s.archive == nil {
		return
	}
	key := path.Join(s.cfg.ArchivePrefix, day.Format(gazette.DateLayout), string(section)+".html")
	uri, err := s.archive.PutObject(ctx, key, archiveMediaType, body)
	if err != nil {
		logger.Warn("failed to archive page", zap.String("key", key), zap.Error(err))
		return
	}
	logger.Debug("page archived", zap.String("uri", uri))
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
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
