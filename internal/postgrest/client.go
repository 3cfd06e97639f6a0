package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/fieldsync/internal/record"
	"github.com/roach88/fieldsync/internal/remote"
)

const (
	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 30 * time.Second

	// pageSize is the number of rows fetched per List request.
	pageSize = 1000
)

// Config configures a Client.
type Config struct {
	// BaseURL is the project URL, e.g. https://xyz.supabase.co.
	BaseURL string

	// APIKey is the anon/public key sent as the apikey header.
	APIKey string

	// AccessToken is the user session JWT. When empty, APIKey is used as the bearer.
	AccessToken string

	// Timeout bounds each request. Defaults to DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the transport (tests).
	HTTPClient *http.Client

	// Now overrides the clock used for token expiry checks (tests).
	Now func() time.Time
}

// Client is a remote.Store backed by PostgREST.
type Client struct {
	base   *url.URL
	apiKey string
	http   *http.Client
	now    func() time.Time
	tracer trace.Tracer

	mu    sync.RWMutex
	token string
}

var (
	_ remote.Store  = (*Client)(nil)
	_ remote.Pinger = (*Client)(nil)
)

// New creates a Client from cfg.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("postgrest: base url is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("postgrest: api key is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("postgrest: parse base url: %w", err)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		base:   base,
		apiKey: cfg.APIKey,
		http:   hc,
		now:    now,
		tracer: otel.Tracer("github.com/roach88/fieldsync/internal/postgrest"),
		token:  cfg.AccessToken,
	}, nil
}

// SetAccessToken replaces the session token used for subsequent requests.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Insert creates a row and returns its server-assigned id.
func (c *Client) Insert(ctx context.Context, table string, payload record.Payload) (string, error) {
	var rows []map[string]any
	err := c.do(ctx, "insert", http.MethodPost, table, nil, payload, &rows)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", &remote.Error{Kind: remote.KindOther, Status: http.StatusCreated, Message: "insert returned no representation"}
	}
	id := record.Payload(rows[0]).ID()
	if id == "" {
		return "", &remote.Error{Kind: remote.KindOther, Status: http.StatusCreated, Message: "insert returned a row without id"}
	}
	return id, nil
}

// Exists reports whether a row with id exists.
func (c *Client) Exists(ctx context.Context, table, id string) (bool, error) {
	q := url.Values{"id": {"eq." + id}, "select": {"id"}}
	var rows []map[string]any
	if err := c.do(ctx, "exists", http.MethodGet, table, q, nil, &rows); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// Update modifies the row with id. Returns remote.ErrNotFound if no row matched.
func (c *Client) Update(ctx context.Context, table, id string, payload record.Payload) error {
	q := url.Values{"id": {"eq." + id}}
	var rows []map[string]any
	if err := c.do(ctx, "update", http.MethodPatch, table, q, payload, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return remote.ErrNotFound
	}
	return nil
}

// Delete removes the row with id. Returns remote.ErrNotFound if no row matched.
func (c *Client) Delete(ctx context.Context, table, id string) error {
	q := url.Values{"id": {"eq." + id}}
	var rows []map[string]any
	if err := c.do(ctx, "delete", http.MethodDelete, table, q, nil, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return remote.ErrNotFound
	}
	return nil
}

// List fetches every row of table, newest first, paging pageSize rows at a time.
func (c *Client) List(ctx context.Context, table string) ([]remote.Row, error) {
	out := []remote.Row{}
	for offset := 0; ; {
		q := url.Values{
			"select": {"*"},
			"order":  {"created_at.desc"},
			"limit":  {fmt.Sprint(pageSize)},
			"offset": {fmt.Sprint(offset)},
		}
		var chunk []map[string]any
		if err := c.do(ctx, "list", http.MethodGet, table, q, nil, &chunk); err != nil {
			return nil, err
		}
		for _, m := range chunk {
			out = append(out, toRow(m))
		}
		if len(chunk) < pageSize {
			return out, nil
		}
		offset += len(chunk)
	}
}

// Ping checks that the endpoint is reachable and the credentials are accepted.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, "", nil, nil, nil)
}

func toRow(m map[string]any) remote.Row {
	row := remote.Row{ID: record.Payload(m).ID(), Data: record.Payload(m)}
	if s, ok := m["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			row.CreatedAt = t.UTC()
		}
	}
	return row
}

// bearer returns the token to send, or an auth error if the session token has
// already expired.
func (c *Client) bearer() (string, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	if token == "" {
		return c.apiKey, nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", &remote.Error{Kind: remote.KindAuth, Code: "token_malformed", Message: "access token is malformed", Err: err}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return "", &remote.Error{Kind: remote.KindAuth, Code: "token_malformed", Message: "access token exp claim is invalid", Err: err}
	}
	if exp != nil && !c.now().Before(exp.Time) {
		return "", &remote.Error{Kind: remote.KindAuth, Code: "token_expired", Message: "access token expired"}
	}
	return token, nil
}

func (c *Client) do(ctx context.Context, op, method, table string, query url.Values, body any, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "postgrest."+op, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("db.table", table),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(attribute.String("remote.kind", string(remote.KindOf(err))))
		}
		span.End()
	}()

	token, err := c.bearer()
	if err != nil {
		return err
	}

	u := *c.base
	u.Path = u.Path + "/rest/v1/" + url.PathEscape(table)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &remote.Error{Kind: remote.KindOther, Message: "encode request body", Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return &remote.Error{Kind: remote.KindOther, Message: "build request", Err: err}
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return remote.NewTransientError(0, fmt.Sprintf("%s %s", method, table), err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return remote.NewTransientError(resp.StatusCode, "read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &remote.Error{Kind: remote.KindOther, Status: resp.StatusCode, Message: "decode response body", Err: err}
	}
	return nil
}
