// Package postgrest reads entity collections from a PostgREST endpoint such
// as the REST interface of a Supabase project.
package postgrest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmynk/cantina/internal/fetch"
)

const (
	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 30 * time.Second

	// DefaultPageSize matches the default max-rows of a Supabase project.
	DefaultPageSize = 1000

	// maxErrorBody caps how much of an error response is kept.
	maxErrorBody = 512
)

// Ensure Client implements fetch.Fetcher
var _ fetch.Fetcher = (*Client)(nil)

// Client is a read-only PostgREST client.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	timeout  time.Duration
	pageSize int
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout. Exceeding it yields a
// *fetch.TransportError with Timeout set.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithPageSize sets the page size used to walk large collections. A size
// <= 0 issues a single request per query.
func WithPageSize(n int) Option {
	return func(c *Client) {
		c.pageSize = n
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for the project at baseURL (e.g.
// "https://xyz.supabase.co") authenticating with apiKey.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/") + "/rest/v1",
		apiKey:   strings.TrimSpace(apiKey),
		http:     &http.Client{},
		timeout:  DefaultTimeout,
		pageSize: DefaultPageSize,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch implements fetch.Fetcher. When paging is enabled it keeps requesting
// pages until one comes back short. Paged queries are always ordered by the
// collection key, since offsets over an unordered result may repeat or skip
// rows.
func (c *Client) Fetch(ctx context.Context, collection fetch.Collection, q fetch.Query) ([]json.RawMessage, error) {
	if c.pageSize <= 0 {
		return c.get(ctx, collection, q, 0, 0)
	}
	q.Order = fetch.StableOrder(collection, q.Order)

	var out []json.RawMessage
	for offset := 0; ; offset += c.pageSize {
		page, err := c.get(ctx, collection, q, c.pageSize, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < c.pageSize {
			return out, nil
		}
		c.logger.Debug("Fetching next page", "collection", collection, "offset", offset+c.pageSize)
	}
}

// Ping reads a single guardian id to check the URL and the key.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, fetch.Guardians, fetch.Query{Select: "id"}, 1, 0)
	return err
}

func (c *Client) get(ctx context.Context, collection fetch.Collection, q fetch.Query, limit, offset int) ([]json.RawMessage, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint := c.baseURL + "/" + string(collection) + "?" + encodeQuery(q, limit, offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &fetch.TransportError{Collection: collection, Err: err}
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &fetch.TransportError{Collection: collection, Timeout: isTimeout(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &fetch.TransportError{
			Collection: collection,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(b)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &fetch.TransportError{Collection: collection, Timeout: isTimeout(err), Err: err}
	}
	return decodeRecords(collection, body)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
}

// decodeRecords requires a JSON array whose elements are all objects.
func decodeRecords(collection fetch.Collection, body []byte) ([]json.RawMessage, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, &fetch.MalformedResponseError{Collection: collection, Reason: "body is not a JSON array", Err: err}
	}
	for i, r := range records {
		trimmed := strings.TrimSpace(string(r))
		if !strings.HasPrefix(trimmed, "{") {
			return nil, &fetch.MalformedResponseError{
				Collection: collection,
				Reason:     fmt.Sprintf("element %d is not an object", i),
			}
		}
	}
	return records, nil
}

// encodeQuery renders q in PostgREST's horizontal filtering syntax.
func encodeQuery(q fetch.Query, limit, offset int) string {
	v := url.Values{}
	if q.Select != "" {
		v.Set("select", q.Select)
	}
	for _, f := range q.Filters {
		switch f.Op {
		case fetch.OpIn:
			quoted := make([]string, len(f.Values))
			for i, val := range f.Values {
				quoted[i] = quoteValue(val)
			}
			v.Add(f.Field, "in.("+strings.Join(quoted, ",")+")")
		default:
			val := ""
			if len(f.Values) > 0 {
				val = f.Values[0]
			}
			v.Add(f.Field, string(f.Op)+"."+val)
		}
	}
	if q.Order != "" {
		v.Set("order", q.Order)
	}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
		v.Set("offset", strconv.Itoa(offset))
	}
	return v.Encode()
}

// quoteValue double-quotes list values containing characters that PostgREST
// reserves inside in.(...).
func quoteValue(s string) string {
	if !strings.ContainsAny(s, `,.:()" `) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
