package toolkit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Client talks to a ServeRest deployment.
type Client struct {
	BaseURL string

	http    *http.Client
	limiter *rate.Limiter
}

// Request describes one HTTP call relative to the client's base URL.
// Path may contain {name} placeholders filled from PathParams.
type Request struct {
	Method     string
	Path       string
	PathParams map[string]string
	Query      url.Values
	Headers    map[string]string
	Body       any
	OmitAccept bool
}

type Response struct {
	URL       string
	Status    int
	Header    http.Header
	Body      []byte
	LatencyMS int64
}

func NewClient(cfg Config) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.RequestTimeout},
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

// BuildURL joins the base URL with the request path, escaping every path
// parameter as a single segment.
func BuildURL(baseURL, path string, pathParams map[string]string, query url.Values) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("base url must be absolute, got=%q", baseURL)
	}

	raw := path
	escaped := path
	for k, v := range pathParams {
		raw = strings.ReplaceAll(raw, "{"+k+"}", v)
		escaped = strings.ReplaceAll(escaped, "{"+k+"}", url.PathEscape(v))
	}
	if strings.Contains(escaped, "{") {
		return "", fmt.Errorf("unresolved path parameter in %q", path)
	}
	basePath := strings.TrimRight(u.Path, "/")
	u.Path = basePath + raw
	u.RawPath = basePath + escaped

	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// Do sends req and reads the whole response body. Non-2xx statuses are not errors.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	fullURL, err := BuildURL(c.BaseURL, req.Path, req.PathParams, req.Query)
	if err != nil {
		return Response{}, fmt.Errorf("build url: %w", err)
	}
	res := Response{URL: fullURL}

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return res, fmt.Errorf("marshal body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return res, fmt.Errorf("new request: %w", err)
	}
	if !req.OmitAccept {
		httpReq.Header.Set("Accept", "application/json")
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return res, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	start := time.Now()
	log.Debugf("toolkit.client: sending method=%s url=%s", req.Method, fullURL)
	resp, err := c.http.Do(httpReq)
	res.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		return res, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return res, fmt.Errorf("read body: %w", err)
	}
	res.Status = resp.StatusCode
	res.Header = resp.Header
	res.Body = raw
	log.Debugf("toolkit.client: received method=%s url=%s status=%d latency_ms=%d", req.Method, fullURL, res.Status, res.LatencyMS)
	return res, nil
}

// CreateUser posts payload to /usuarios. payload is usually a User, but fixtures
// with deliberately wrong types are sent as maps.
func (c *Client) CreateUser(ctx context.Context, payload any) (MessageResponse, int, error) {
	res, err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/usuarios", Body: payload})
	if err != nil {
		return MessageResponse{}, 0, err
	}
	var msg MessageResponse
	if err := decodeBody(res, &msg); err != nil {
		return MessageResponse{}, res.Status, err
	}
	return msg, res.Status, nil
}

func (c *Client) ListUsers(ctx context.Context, query url.Values) (UserList, error) {
	res, err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/usuarios", Query: query})
	if err != nil {
		return UserList{}, err
	}
	if res.Status != http.StatusOK {
		return UserList{}, fmt.Errorf("list users failed with status=%d body=%s", res.Status, truncateForLog(res.Body, 500))
	}
	var list UserList
	if err := decodeBody(res, &list); err != nil {
		return UserList{}, err
	}
	return list, nil
}

func (c *Client) GetUser(ctx context.Context, id string) (User, int, error) {
	res, err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/usuarios/{id}", PathParams: map[string]string{"id": id}})
	if err != nil {
		return User{}, 0, err
	}
	if res.Status != http.StatusOK {
		return User{}, res.Status, nil
	}
	var u User
	if err := decodeBody(res, &u); err != nil {
		return User{}, res.Status, err
	}
	return u, res.Status, nil
}

func (c *Client) DeleteUser(ctx context.Context, id string) (MessageResponse, int, error) {
	res, err := c.Do(ctx, Request{Method: http.MethodDelete, Path: "/usuarios/{id}", PathParams: map[string]string{"id": id}})
	if err != nil {
		return MessageResponse{}, 0, err
	}
	var msg MessageResponse
	if err := decodeBody(res, &msg); err != nil {
		return MessageResponse{}, res.Status, err
	}
	return msg, res.Status, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (LoginResponse, int, error) {
	payload := map[string]string{"email": email, "password": password}
	res, err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/login", Body: payload})
	if err != nil {
		return LoginResponse{}, 0, err
	}
	var lr LoginResponse
	if err := decodeBody(res, &lr); err != nil {
		return LoginResponse{}, res.Status, err
	}
	return lr, res.Status, nil
}

// ---------- helpers

func decodeBody(res Response, out any) error {
	if len(bytes.TrimSpace(res.Body)) == 0 {
		return fmt.Errorf("empty response body status=%d", res.Status)
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return fmt.Errorf("decode response status=%d body=%s: %w", res.Status, truncateForLog(res.Body, 300), err)
	}
	return nil
}

// truncateForLog cuts body to at most max bytes without splitting a UTF-8
// sequence.
func truncateForLog(body []byte, max int) string {
	if len(body) <= max {
		return string(body)
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut]) + "..."
}

// TruncateForLog shortens body for log lines and report fields.
func TruncateForLog(body []byte, max int) string {
	return truncateForLog(body, max)
}
