package stormpath

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const DefaultBaseURL = "https://api.stormpath.com/v1"

// pageSize is the largest page the API hands out.
const pageSize = 100

type Option func(c *Client) error

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		c.hc = client
		return nil
	}
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Client) error {
		c.logger = logger.Named("stormpath")
		return nil
	}
}

// WithAPIKey authenticates every request with an API key pair.
func WithAPIKey(id, secret string) Option {
	return func(c *Client) error {
		if id == "" || secret == "" {
			return errors.New("API key id and secret must both be set")
		}
		c.apiKeyID = id
		c.apiKeySecret = secret
		return nil
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		c.userAgent = ua
		return nil
	}
}

type Client struct {
	hc           *http.Client
	logger       *zap.SugaredLogger
	url          url.URL
	apiKeyID     string
	apiKeySecret string
	userAgent    string

	tenantMu sync.Mutex
	tenant   *Tenant
}

var _ TenantAPI = (*Client)(nil)

func Open(serviceURL url.URL, opts ...Option) (*Client, error) {
	c := Client{
		hc:        http.DefaultClient,
		logger:    zap.NewNop().Sugar(),
		url:       serviceURL,
		userAgent: "stormpath-migrate",
	}
	c.url.Path = strings.TrimSuffix(c.url.Path, "/")
	for _, opt := range opts {
		if err := opt(&c); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

func (c *Client) WithOpts(opts ...Option) (*Client, error) {
	newC := &Client{
		hc:           c.hc,
		logger:       c.logger,
		url:          c.url,
		apiKeyID:     c.apiKeyID,
		apiKeySecret: c.apiKeySecret,
		userAgent:    c.userAgent,
	}
	for _, opt := range opts {
		if err := opt(newC); err != nil {
			return nil, err
		}
	}
	return newC, nil
}

func (c *Client) String() string {
	return c.url.String()
}

// CurrentTenant returns the tenant owning the API key. It is fetched once and
// cached for the lifetime of the client.
func (c *Client) CurrentTenant(ctx context.Context) (*Tenant, error) {
	c.tenantMu.Lock()
	defer c.tenantMu.Unlock()
	if c.tenant != nil {
		return c.tenant, nil
	}
	var tenant Tenant
	if _, err := c.doGET(ctx, "/tenants/current", nil, &tenant); err != nil {
		return nil, errors.Wrap(err, "fetching current tenant")
	}
	c.tenant = &tenant
	return c.tenant, nil
}

type collectionPage[T any] struct {
	Href   string `json:"href"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
	Size   int    `json:"size"`
	Items  []T    `json:"items"`
}

// listAll walks every page of a collection.
func listAll[T any](ctx context.Context, c *Client, href string, params url.Values) ([]T, error) {
	var all []T
	offset := 0
	for {
		p := url.Values{}
		for k, v := range params {
			p[k] = v
		}
		p.Set("offset", strconv.Itoa(offset))
		p.Set("limit", strconv.Itoa(pageSize))

		var page collectionPage[T]
		if _, err := c.doGET(ctx, href, p, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		offset += len(page.Items)
		if len(page.Items) == 0 || offset >= page.Size {
			return all, nil
		}
	}
}

// getOptional fetches a single resource, mapping 404 to a nil result.
func getOptional[T any](ctx context.Context, c *Client, href string, params url.Values) (*T, error) {
	var out T
	if _, err := c.doGET(ctx, href, params, &out); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// getLinked follows a link that may be absent.
func getLinked[T any](ctx context.Context, c *Client, link *Link) (*T, error) {
	if link == nil || link.Href == "" {
		return nil, nil
	}
	return getOptional[T](ctx, c, link.Href, nil)
}

func (c *Client) doGET(
	ctx context.Context,
	path string,
	params url.Values,
	output interface{}) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, params, nil, output)
}

func (c *Client) doPOST(
	ctx context.Context,
	path string,
	params url.Values,
	input interface{},
	output interface{}) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, params, input, output)
}

func (c *Client) doDELETE(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	params url.Values,
	input interface{},
	output interface{}) (*http.Response, error) {
	req, err := c.newRequest(method, path, params, input)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)

	startTime := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &transportError{err: fmt.Errorf("%s request to %s failed: %w", method, req.URL, err)}
	}
	defer func() {
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
	}()

	err, ok := c.checkResponse(req, resp, startTime)
	if ok {
		return resp, err
	}

	if err := decodeResponseAsJSON(resp, resp.Body, output); err != nil {
		c.logger.Warnf("Response error: %s", err)
		return resp, err
	}
	return resp, nil
}

func (c *Client) newRequest(method string, path string, params url.Values, input interface{}) (*http.Request, error) {
	url := c.formatURL(path, params)

	var body io.Reader
	if input != nil {
		b, err := json.Marshal(input)
		if err != nil {
			return nil, errors.Wrapf(err, "encoding %s request to %s", method, url)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if input != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.apiKeyID != "" {
		req.SetBasicAuth(c.apiKeyID, c.apiKeySecret)
	}

	return req, nil
}

// formatURL accepts either an absolute resource href or a path relative to
// the service URL.
func (c *Client) formatURL(path string, params url.Values) string {
	var u url.URL
	if parsed, err := url.Parse(path); err == nil && parsed.IsAbs() {
		u = *parsed
	} else {
		u = c.url
		u.Path = c.url.Path + path
	}
	if params != nil {
		q := u.Query()
		for k, v := range params {
			q[k] = v
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) checkResponse(
	req *http.Request,
	resp *http.Response,
	startTime time.Time) (error, bool) {
	c.logger.Debugw(req.Method,
		"url", req.URL.String(),
		"time", time.Since(startTime).Seconds(),
		"status", resp.StatusCode)
	return errorFromResponse(req, resp, "Stormpath")
}
