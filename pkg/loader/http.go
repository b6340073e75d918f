package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/cachecontrol"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/aleksaelezovic/jsonld/pkg/jsonld"
	"github.com/aleksaelezovic/jsonld/pkg/store"
)

const (
	acceptHeader = "application/ld+json, application/json;q=0.9, */*;q=0.1"

	// DefaultMaxRedirects bounds the redirect chain of one request
	DefaultMaxRedirects = 10
	// DefaultTTL applies to cachable responses without an explicit expiry
	DefaultTTL = time.Hour
	// MaxDocumentSize caps the body read for a single document
	MaxDocumentSize = 32 << 20
)

// HTTPLoader loads documents over HTTP(S). Concurrent loads of the same URL
// share one request, and fresh responses are served from the cache.
type HTTPLoader struct {
	client       *http.Client
	cache        Cache
	logger       *zap.Logger
	metrics      *Metrics
	maxRedirects int
	defaultTTL   time.Duration
	userAgent    string
	timeout      time.Duration
	now          func() time.Time

	group singleflight.Group
}

// Option configures an HTTPLoader
type Option func(*HTTPLoader)

// WithClient sets the HTTP client. Its CheckRedirect is replaced.
func WithClient(client *http.Client) Option {
	return func(l *HTTPLoader) { l.client = client }
}

// WithCache sets the document cache; nil disables caching
func WithCache(cache Cache) Option {
	return func(l *HTTPLoader) { l.cache = cache }
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *HTTPLoader) { l.logger = logger }
}

func WithMetrics(metrics *Metrics) Option {
	return func(l *HTTPLoader) { l.metrics = metrics }
}

func WithMaxRedirects(n int) Option {
	return func(l *HTTPLoader) { l.maxRedirects = n }
}

func WithDefaultTTL(ttl time.Duration) Option {
	return func(l *HTTPLoader) { l.defaultTTL = ttl }
}

// WithUserAgent sets the User-Agent header of outgoing requests
func WithUserAgent(ua string) Option {
	return func(l *HTTPLoader) { l.userAgent = ua }
}

// WithTimeout bounds each request, redirects included. Zero keeps the
// client's own setting.
func WithTimeout(d time.Duration) Option {
	return func(l *HTTPLoader) { l.timeout = d }
}

// NewHTTPLoader creates a loader with an in-memory cache unless WithCache
// says otherwise
func NewHTTPLoader(opts ...Option) *HTTPLoader {
	l := &HTTPLoader{
		logger:       zap.NewNop(),
		maxRedirects: DefaultMaxRedirects,
		defaultTTL:   DefaultTTL,
		now:          time.Now,
	}
	l.cache = NewMemoryCache(nil)
	for _, opt := range opts {
		opt(l)
	}
	if mc, ok := l.cache.(*MemoryCache); ok && mc.metrics == nil {
		mc.metrics = l.metrics
	}

	var client http.Client
	if l.client != nil {
		client = *l.client
	} else {
		client.Timeout = 30 * time.Second
	}
	if l.timeout > 0 {
		client.Timeout = l.timeout
	}
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > l.maxRedirects {
			return fmt.Errorf("stopped after %d redirects", l.maxRedirects)
		}
		return nil
	}
	l.client = &client
	return l
}

// LoadDocument implements jsonld.DocumentLoader
func (l *HTTPLoader) LoadDocument(ctx context.Context, rawURL string) (*jsonld.RemoteDocument, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, loadError(rawURL, "only http and https URLs can be loaded", err)
	}

	if l.cache != nil {
		if entry, ok := l.cache.Get(rawURL); ok {
			doc, err := remoteFromEntry(entry)
			if err == nil {
				l.metrics.recordRequest("cache", "hit")
				l.logger.Debug("document served from cache", zap.String("url", rawURL))
				return doc, nil
			}
			l.logger.Warn("discarding unreadable cache entry", zap.String("url", rawURL), zap.Error(err))
		}
	}

	// the shared fetch outlives any single caller's cancellation
	fetchCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(rawURL, func() (any, error) {
		return l.fetch(fetchCtx, rawURL, true)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, loadError(rawURL, "load cancelled", ctx.Err())
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		l.logger.Debug("joined in-flight fetch", zap.String("url", rawURL))
	}

	// callers must not share one parsed tree
	entry := res.Val.(*store.Entry)
	return remoteFromEntry(entry)
}

// fetch performs the request. followAlternate allows one hop through a
// rel="alternate" Link to a JSON-LD representation.
func (l *HTTPLoader) fetch(ctx context.Context, rawURL string, followAlternate bool) (*store.Entry, error) {
	start := l.now()
	defer l.metrics.recordFetch(start)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		l.metrics.recordRequest("network", "error")
		return nil, loadError(rawURL, "invalid request", err)
	}
	req.Header.Set("Accept", acceptHeader)
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		l.metrics.recordRequest("network", "error")
		return nil, loadError(rawURL, "request failed", err)
	}
	defer resp.Body.Close()

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	if resp.StatusCode != http.StatusOK {
		l.metrics.recordRequest("network", statusClass(resp.StatusCode))
		return nil, loadError(rawURL, fmt.Sprintf("unexpected status %s", resp.Status), nil)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}
	links := parseLinks(resp.Header.Values("Link"))

	if !isJSONMediaType(mediaType) {
		if followAlternate {
			for _, ln := range links {
				if ln.hasRel(relAlternate) && ln.params["type"] == "application/ld+json" {
					target, err := resolve(finalURL, ln.target)
					if err != nil {
						break
					}
					l.logger.Debug("following alternate link",
						zap.String("url", finalURL), zap.String("target", target))
					_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, MaxDocumentSize))
					return l.fetch(ctx, target, false)
				}
			}
		}
		l.metrics.recordRequest("network", "unsupported_media_type")
		return nil, loadError(rawURL, fmt.Sprintf("unsupported content type %q", mediaType), nil)
	}

	entry := &store.Entry{
		URL:         finalURL,
		ContentType: mediaType,
		Profile:     params["profile"],
		StoredAt:    l.now(),
	}

	if mediaType != "application/ld+json" {
		var contexts []string
		for _, ln := range links {
			if ln.hasRel(relContext) {
				target, err := resolve(finalURL, ln.target)
				if err != nil {
					return nil, loadError(rawURL, "invalid context link", err)
				}
				contexts = append(contexts, target)
			}
		}
		if len(contexts) > 1 {
			l.metrics.recordRequest("network", "error")
			return nil, &jsonld.Error{
				Code:    jsonld.MultipleContextLinkHeaders,
				Message: fmt.Sprintf("%s carries %d context links", rawURL, len(contexts)),
			}
		}
		if len(contexts) == 1 {
			entry.ContextURL = contexts[0]
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxDocumentSize+1))
	if err != nil {
		l.metrics.recordRequest("network", "error")
		return nil, loadError(rawURL, "reading body failed", err)
	}
	if len(body) > MaxDocumentSize {
		l.metrics.recordRequest("network", "error")
		return nil, loadError(rawURL, "document too large", nil)
	}
	if _, err := jsonld.ParseJSON(bytes.NewReader(body)); err != nil {
		l.metrics.recordRequest("network", "error")
		return nil, loadError(rawURL, "invalid JSON", err)
	}
	entry.Body = body
	l.metrics.recordRequest("network", "ok")

	l.store(rawURL, req, resp, entry)
	l.logger.Debug("document fetched",
		zap.String("url", rawURL),
		zap.String("final_url", finalURL),
		zap.String("content_type", mediaType),
		zap.Duration("elapsed", l.now().Sub(start)))
	return entry, nil
}

func (l *HTTPLoader) store(rawURL string, req *http.Request, resp *http.Response, entry *store.Entry) {
	if l.cache == nil {
		return
	}
	if resp.Request != nil {
		req = resp.Request
	}
	reasons, expires, err := cachecontrol.CachableResponse(req, resp, cachecontrol.Options{})
	if err != nil || len(reasons) > 0 {
		l.logger.Debug("response not cachable", zap.String("url", rawURL), zap.Any("reasons", reasons), zap.Error(err))
		return
	}
	if expires.IsZero() {
		expires = l.now().Add(l.defaultTTL)
	}
	if !expires.After(l.now()) {
		return
	}
	entry.Expires = expires
	if err := l.cache.Put(rawURL, entry); err != nil {
		l.logger.Warn("failed to cache document", zap.String("url", rawURL), zap.Error(err))
	}
}

func remoteFromEntry(entry *store.Entry) (*jsonld.RemoteDocument, error) {
	doc, err := jsonld.ParseJSON(bytes.NewReader(entry.Body))
	if err != nil {
		return nil, loadError(entry.URL, "invalid JSON", err)
	}
	return &jsonld.RemoteDocument{
		DocumentURL: entry.URL,
		Document:    doc,
		ContextURL:  entry.ContextURL,
		ContentType: entry.ContentType,
		Profile:     entry.Profile,
	}, nil
}

func isJSONMediaType(mediaType string) bool {
	return mediaType == "application/json" ||
		mediaType == "application/ld+json" ||
		strings.HasSuffix(mediaType, "+json")
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "other"
	}
}

func loadError(rawURL, msg string, err error) *jsonld.Error {
	var jerr *jsonld.Error
	if errors.As(err, &jerr) {
		return jerr
	}
	return &jsonld.Error{
		Code:    jsonld.LoadingDocumentFailed,
		Message: fmt.Sprintf("%s: %s", rawURL, msg),
		Err:     err,
	}
}
