package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/primewallet/walletclient/internal/logging"
)

const (
	csrfPath        = "/sanctum/csrf-cookie"
	csrfCookieName  = "XSRF-TOKEN"
	csrfHeader      = "X-XSRF-TOKEN"
	requestIDHeader = "X-Request-ID"
	defaultTimeout  = 30 * time.Second
)

// Scheme selects how requests carry the session credential.
type Scheme string

const (
	// SchemeCookie relies on session cookies plus an anti-forgery token.
	SchemeCookie Scheme = "cookie"
	// SchemeToken sends a bearer token issued by the login endpoint.
	SchemeToken Scheme = "token"
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	Scheme     Scheme
	Timeout    time.Duration
	Logger     *slog.Logger
	HTTPClient *http.Client
}

// Request describes one API call. Path is relative to the /api root.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header
	// SkipCSRF neither primes nor attaches the anti-forgery token.
	SkipCSRF bool
	// SuppressUnauthorized keeps a 401 from reaching the unauthorized callback.
	SuppressUnauthorized bool
}

// Response is the success envelope of a 2xx call.
type Response struct {
	Status int
	Data   json.RawMessage
}

// Decode unmarshals the response body into v.
func (r Response) Decode(v any) error {
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Client performs API calls with session credentials attached. It never
// changes session state itself; 401s are reported through OnUnauthorized.
type Client struct {
	site    *url.URL
	apiRoot string
	scheme  Scheme
	http    *http.Client
	jar     *sessionJar
	logger  *slog.Logger

	mu             sync.RWMutex
	token          string
	onUnauthorized func(error)

	primeMu sync.Mutex
}

// New builds a Client for the backend rooted at opts.BaseURL.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("base url is required")
	}
	site, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if site.Scheme == "" || site.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", opts.BaseURL)
	}

	scheme := opts.Scheme
	if scheme == "" {
		scheme = SchemeCookie
	}
	if scheme != SchemeCookie && scheme != SchemeToken {
		return nil, fmt.Errorf("unknown credential scheme %q", scheme)
	}

	hc := &http.Client{}
	if opts.HTTPClient != nil {
		clone := *opts.HTTPClient
		hc = &clone
	}
	jar := newSessionJar()
	hc.Jar = jar
	if opts.Timeout > 0 {
		hc.Timeout = opts.Timeout
	} else if hc.Timeout == 0 {
		hc.Timeout = defaultTimeout
	}

	return &Client{
		site:    site,
		apiRoot: site.String() + "/api",
		scheme:  scheme,
		http:    hc,
		jar:     jar,
		logger:  logging.Component(opts.Logger, "transport"),
	}, nil
}

// OnUnauthorized registers the callback invoked on unsuppressed 401s.
func (c *Client) OnUnauthorized(fn func(err error)) {
	c.mu.Lock()
	c.onUnauthorized = fn
	c.mu.Unlock()
}

// SetToken stores the bearer token used by SchemeToken.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// ResetCredentials drops cookies, the anti-forgery token and any bearer token.
func (c *Client) ResetCredentials() {
	c.jar.reset()
	c.SetToken("")
}

// Get issues a GET against the API root.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post issues a POST with a JSON body against the API root.
func (c *Client) Post(ctx context.Context, path string, body any) (Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

// Do sends req and classifies the outcome.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	unsafe := isStateChanging(method)
	useCSRF := unsafe && c.scheme == SchemeCookie && !req.SkipCSRF

	if useCSRF {
		if err := c.ensureCSRF(ctx); err != nil {
			if IsAbort(err) {
				return Response{}, err
			}
			c.logger.Warn("csrf priming failed", slog.Any("error", err))
		}
	}

	target := c.endpoint(req.Path, req.Query)

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return Response{}, fmt.Errorf("encode %s %s: %w", method, req.Path, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return Response{}, fmt.Errorf("build %s %s: %w", method, req.Path, err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Requested-With", "XMLHttpRequest")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	requestID := httpReq.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
		httpReq.Header.Set(requestIDHeader, requestID)
	}
	if useCSRF {
		if token := c.csrfToken(); token != "" {
			httpReq.Header.Set(csrfHeader, token)
		}
	}
	if c.scheme == SchemeToken {
		c.mu.RLock()
		token := c.token
		c.mu.RUnlock()
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, c.failure(ctx, method, target, requestID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, c.failure(ctx, method, target, requestID, err)
	}

	data := normalizeBody(raw)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Response{Status: resp.StatusCode, Data: data}, nil
	}

	apiErr := &APIError{Status: resp.StatusCode, Data: data, URL: target}
	attrs := []any{
		slog.String("method", method),
		slog.String("path", req.Path),
		slog.Int("status", resp.StatusCode),
		slog.String("request_id", requestID),
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Debug("unauthenticated response", attrs...)
		if !req.SuppressUnauthorized {
			c.notifyUnauthorized(apiErr)
		}
		return Response{}, apiErr
	}
	c.logger.Warn("api error", append(attrs, slog.String("message", apiErr.Message()))...)
	return Response{}, apiErr
}

// PrimeCSRF fetches a fresh anti-forgery cookie. It talks to the site root
// directly and never recurses into priming.
func (c *Client) PrimeCSRF(ctx context.Context) error {
	target := c.site.String() + csrfPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build csrf request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	httpReq.Header.Set(requestIDHeader, requestID)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return c.failure(ctx, http.MethodGet, target, requestID, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Data: normalizeBody(raw), URL: target}
	}
	return nil
}

func (c *Client) ensureCSRF(ctx context.Context) error {
	if c.csrfToken() != "" {
		return nil
	}
	c.primeMu.Lock()
	defer c.primeMu.Unlock()
	if c.csrfToken() != "" {
		return nil
	}
	return c.PrimeCSRF(ctx)
}

func (c *Client) csrfToken() string {
	for _, cookie := range c.jar.Cookies(c.site) {
		if cookie.Name != csrfCookieName {
			continue
		}
		if decoded, err := url.QueryUnescape(cookie.Value); err == nil {
			return decoded
		}
		return cookie.Value
	}
	return ""
}

func (c *Client) notifyUnauthorized(err error) {
	c.mu.RLock()
	fn := c.onUnauthorized
	c.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

func (c *Client) failure(ctx context.Context, method, target, requestID string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		c.logger.Debug("request aborted", slog.String("method", method), slog.String("url", target), slog.String("request_id", requestID))
		return &AbortError{URL: target, Err: ctx.Err()}
	}
	c.logger.Error("request failed", slog.String("method", method), slog.String("url", target), slog.String("request_id", requestID), slog.Any("error", err))
	return &NetworkError{URL: target, Err: err}
}

func (c *Client) endpoint(path string, query url.Values) string {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := c.apiRoot + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

func isStateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func normalizeBody(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return json.RawMessage("null")
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	encoded, _ := json.Marshal(string(trimmed))
	return encoded
}

// sessionJar lets ResetCredentials swap cookie state while requests are in flight.
type sessionJar struct {
	mu  sync.RWMutex
	jar *cookiejar.Jar
}

func newSessionJar() *sessionJar {
	jar, _ := cookiejar.New(nil)
	return &sessionJar{jar: jar}
}

func (j *sessionJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	inner := j.jar
	j.mu.RUnlock()
	inner.SetCookies(u, cookies)
}

func (j *sessionJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	inner := j.jar
	j.mu.RUnlock()
	return inner.Cookies(u)
}

func (j *sessionJar) reset() {
	fresh, _ := cookiejar.New(nil)
	j.mu.Lock()
	j.jar = fresh
	j.mu.Unlock()
}
