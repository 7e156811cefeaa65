package treeherder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultUserAgent identifies requests made by this client.
const DefaultUserAgent = "thsubmit"

// DefaultTimeout bounds each request when no HTTP client is supplied.
const DefaultTimeout = 30 * time.Second

const (
	resultSetPath = "api/project/%s/resultset/"
	jobsPath      = "/api/project/%s/jobs/"
	jobsViewPath  = "/#/jobs?repo=%s&revision=%s"

	maxErrorBody = 2048
)

// Client talks to a single Treeherder instance.
type Client struct {
	baseURL   *url.URL
	creds     Credentials
	http      *http.Client
	userAgent string
	logger    *zap.Logger

	now   func() time.Time
	nonce func() string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger for request diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient creates a client for the Treeherder instance at rawURL.
//
// Credentials are only checked when submitting; the result-set lookup is an
// anonymous read.
func NewClient(rawURL string, creds Credentials, opts ...Option) (*Client, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, ErrMissingURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse treeherder url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("treeherder url %q: scheme must be http or https", rawURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("treeherder url %q: host is required", rawURL)
	}

	c := &Client{
		baseURL:   u,
		creds:     creds,
		http:      &http.Client{Timeout: DefaultTimeout},
		userAgent: DefaultUserAgent,
		logger:    zap.NewNop(),
		now:       time.Now,
		nonce:     newNonce,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the configured Treeherder URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// hostURL returns scheme://host of the configured URL, dropping any path.
func (c *Client) hostURL() *url.URL {
	return &url.URL{Scheme: c.baseURL.Scheme, Host: c.baseURL.Host}
}

// resultSetURL resolves the lookup endpoint relative to the configured URL.
func (c *Client) resultSetURL(repository, revision string) string {
	ref := &url.URL{
		Path:     fmt.Sprintf(resultSetPath, repository),
		RawQuery: url.Values{"revision": []string{revision}}.Encode(),
	}
	return c.baseURL.ResolveReference(ref).String()
}

// JobsURL returns the web UI link that shows jobs for a repository revision.
func (c *Client) JobsURL(repository, revision string) string {
	return c.hostURL().String() + fmt.Sprintf(jobsViewPath, url.QueryEscape(repository), url.QueryEscape(revision))
}

type resultSetResponse struct {
	Results []struct {
		RevisionHash string `json:"revision_hash"`
		Revision     string `json:"revision"`
	} `json:"results"`
}

// RevisionHash looks up the result set for a revision and returns its hash.
//
// Returns an error wrapping ErrRevisionNotFound when Treeherder has no
// result set for the revision.
func (c *Client) RevisionHash(ctx context.Context, repository, revision string) (string, error) {
	lookupURL := c.resultSetURL(repository, revision)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return "", &APIError{Op: "RevisionHash", URL: lookupURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	c.logger.Debug("Looking up revision hash", zap.String("url", lookupURL))

	body, status, err := c.do(req)
	if err != nil {
		return "", &APIError{Op: "RevisionHash", URL: lookupURL, StatusCode: status, Body: truncate(body), Err: err}
	}

	var parsed resultSetResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &APIError{Op: "RevisionHash", URL: lookupURL, StatusCode: status, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(parsed.Results) == 0 || parsed.Results[0].RevisionHash == "" {
		return "", &APIError{
			Op:  "RevisionHash",
			URL: lookupURL,
			Err: fmt.Errorf("%w: unable to determine revision hash for %s, perhaps it has not been ingested by Treeherder", ErrRevisionNotFound, revision),
		}
	}

	return parsed.Results[0].RevisionHash, nil
}

// PostCollection submits a job collection for a repository.
func (c *Client) PostCollection(ctx context.Context, repository string, jobs JobCollection) error {
	postURL := c.hostURL().ResolveReference(&url.URL{Path: fmt.Sprintf(jobsPath, repository)})

	if err := c.creds.Validate(); err != nil {
		return &APIError{Op: "PostCollection", URL: postURL.String(), Err: err}
	}

	payload, err := jobs.JSON()
	if err != nil {
		return &APIError{Op: "PostCollection", URL: postURL.String(), Err: fmt.Errorf("encode collection: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postURL.String(), bytes.NewReader(payload))
	if err != nil {
		return &APIError{Op: "PostCollection", URL: postURL.String(), Err: err}
	}
	const contentType = "application/json"
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Authorization", hawkHeader(c.creds, hawkRequest{
		Method:      http.MethodPost,
		URL:         postURL,
		ContentType: contentType,
		Payload:     payload,
		Timestamp:   c.now(),
		Nonce:       c.nonce(),
	}))

	c.logger.Debug("Posting job collection",
		zap.String("url", postURL.String()),
		zap.Int("jobs", len(jobs)),
		zap.Int("bytes", len(payload)))

	body, status, err := c.do(req)
	if err != nil {
		return &APIError{Op: "PostCollection", URL: postURL.String(), StatusCode: status, Body: truncate(body), Err: err}
	}
	return nil
}

// do executes a request and classifies non-2xx responses.
func (c *Client) do(req *http.Request) ([]byte, int, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, readErr := io.ReadAll(resp.Body)

	c.logger.Debug("Treeherder response",
		zap.String("method", req.Method),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return body, resp.StatusCode, ErrUnauthorized
	case resp.StatusCode >= 500:
		return body, resp.StatusCode, ErrUnavailable
	case resp.StatusCode/100 != 2:
		return body, resp.StatusCode, fmt.Errorf("unexpected status %s", http.StatusText(resp.StatusCode))
	}
	if readErr != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", readErr)
	}
	return body, resp.StatusCode, nil
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}

// StatusCode returns the HTTP status carried by err, or zero.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
