package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/kapu/hololive-widget-go/internal/constants"
	"github.com/kapu/hololive-widget-go/internal/service/cache"
	"github.com/kapu/hololive-widget-go/pkg/errors"
	"go.uber.org/zap"
)

// Options describe one request. Two Options that differ in any field produce
// different cache keys.
type Options struct {
	Method  string
	Query   url.Values
	Headers map[string]string
	// TTL overrides the fetcher default when positive.
	TTL time.Duration
}

// JSONFetcher is what data sources depend on.
type JSONFetcher interface {
	FetchJSON(ctx context.Context, rawURL string, opts Options, dest any) error
	FetchRaw(ctx context.Context, rawURL string, opts Options) ([]byte, error)
}

// Fetcher retrieves remote documents behind a TTL cache of raw bodies. It
// never retries; callers own retry scheduling.
type Fetcher struct {
	httpClient *http.Client
	cache      *cache.TTLCache[[]byte]
	defaultTTL time.Duration
	userAgent  string
	logger     *zap.Logger
}

// NewFetcher builds a fetcher. A nil cache disables caching.
func NewFetcher(httpClient *http.Client, bodyCache *cache.TTLCache[[]byte], defaultTTL time.Duration, logger *zap.Logger) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.APIConfig.HTTPTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultTTL <= 0 {
		defaultTTL = constants.CacheTTL.SourceData
	}
	return &Fetcher{
		httpClient: httpClient,
		cache:      bodyCache,
		defaultTTL: defaultTTL,
		userAgent:  constants.APIConfig.UserAgent,
		logger:     logger,
	}
}

// FetchJSON decodes the (possibly cached) body into dest. The body is decoded
// on every call so callers never share decoded values.
func (f *Fetcher) FetchJSON(ctx context.Context, rawURL string, opts Options, dest any) error {
	body, err := f.fetch(ctx, rawURL, opts, validateJSON)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, dest); err != nil {
		if f.cache != nil {
			f.cache.Delete(CacheKey(rawURL, opts))
		}
		return errors.NewFetchError("Failed to decode response", rawURL, 0, err)
	}
	return nil
}

func (f *Fetcher) FetchRaw(ctx context.Context, rawURL string, opts Options) ([]byte, error) {
	body, err := f.fetch(ctx, rawURL, opts, nil)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), body...), nil
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string, opts Options, validate func([]byte) error) ([]byte, error) {
	load := func(ctx context.Context) ([]byte, error) {
		body, err := f.do(ctx, rawURL, opts)
		if err != nil {
			return nil, err
		}
		if validate != nil {
			if err := validate(body); err != nil {
				return nil, errors.NewFetchError("Invalid response body", rawURL, 0, err)
			}
		}
		return body, nil
	}

	if f.cache == nil {
		return load(ctx)
	}

	ttl := f.defaultTTL
	if opts.TTL > 0 {
		ttl = opts.TTL
	}
	return f.cache.GetOrFetch(ctx, CacheKey(rawURL, opts), ttl, load)
}

func (f *Fetcher) do(ctx context.Context, rawURL string, opts Options) ([]byte, error) {
	reqURL, err := buildURL(rawURL, opts.Query)
	if err != nil {
		return nil, errors.NewFetchError("Invalid request URL", rawURL, 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, method(opts), reqURL, nil)
	if err != nil {
		return nil, errors.NewFetchError("Failed to build request", rawURL, 0, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")
	for name, value := range opts.Headers {
		req.Header.Set(name, value)
	}

	started := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.logger.Warn("Request failed", zap.String("url", reqURL), zap.Error(err))
		return nil, errors.NewFetchError("Request failed", rawURL, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, constants.APIConfig.MaxResponseSize))
	if err != nil {
		return nil, errors.NewFetchError("Failed to read response", rawURL, resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.logger.Warn("Unexpected status",
			zap.String("url", reqURL),
			zap.Int("status", resp.StatusCode),
		)
		return nil, errors.NewFetchError(fmt.Sprintf("HTTP %d", resp.StatusCode), rawURL, resp.StatusCode, nil)
	}

	f.logger.Debug("Fetched",
		zap.String("url", reqURL),
		zap.Int("bytes", len(body)),
		zap.Duration("took", time.Since(started)),
	)
	return body, nil
}

// CacheKey is the canonical signature of a request: method, URL without
// query, merged query sorted by name, and headers sorted by canonical name.
func CacheKey(rawURL string, opts Options) string {
	var b strings.Builder
	b.WriteString(method(opts))
	b.WriteByte(' ')

	if u, err := url.Parse(rawURL); err == nil {
		query := mergeQuery(u.Query(), opts.Query)
		u.RawQuery = ""
		u.Fragment = ""
		b.WriteString(u.String())
		if encoded := query.Encode(); encoded != "" {
			b.WriteByte('?')
			b.WriteString(encoded)
		}
	} else {
		b.WriteString(rawURL)
	}

	if len(opts.Headers) > 0 {
		names := make([]string, 0, len(opts.Headers))
		canonical := make(map[string]string, len(opts.Headers))
		for name, value := range opts.Headers {
			key := http.CanonicalHeaderKey(name)
			names = append(names, key)
			canonical[key] = value
		}
		sort.Strings(names)
		for _, name := range names {
			b.WriteString(" ")
			b.WriteString(name)
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(canonical[name]))
		}
	}
	return b.String()
}

func method(opts Options) string {
	if opts.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(opts.Method)
}

func buildURL(rawURL string, extra url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if len(extra) > 0 {
		u.RawQuery = mergeQuery(u.Query(), extra).Encode()
	}
	return u.String(), nil
}

func mergeQuery(base, extra url.Values) url.Values {
	merged := url.Values{}
	for name, values := range base {
		merged[name] = append(merged[name], values...)
	}
	for name, values := range extra {
		merged[name] = append(merged[name], values...)
	}
	return merged
}

func validateJSON(body []byte) error {
	if !json.Valid(body) {
		return fmt.Errorf("body is not valid JSON")
	}
	return nil
}
