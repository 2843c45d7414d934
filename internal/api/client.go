package api

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

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"kasirinaja/terminal/internal/apperror"
	"kasirinaja/terminal/internal/session"
)

var (
	// ErrNotFound matches any 404 from the backend.
	ErrNotFound = apperror.ErrNotFound
	// ErrTransport marks failures where no response was received. The
	// backend may or may not have acted on the request.
	ErrTransport = errors.New("backend unreachable")
)

const idempotencyHeader = "Idempotency-Key"

// Client talks to the REST backend. It carries no timeout of its own;
// callers bound calls through their context.
type Client struct {
	baseURL string
	http    *http.Client
	auth    session.AuthContext
	limiter *rate.Limiter
	log     logrus.FieldLogger
}

func NewClient(baseURL string, ratePerSecond float64, httpClient *http.Client, logger logrus.FieldLogger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if ratePerSecond <= 0 {
		ratePerSecond = 10
	}
	burst := int(ratePerSecond)
	if burst < 1 {
		burst = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		log:     logger.WithField("module", "api"),
	}
}

// WithAuth returns a client that sends the given bearer token. The rate
// limiter is shared with the receiver.
func (c *Client) WithAuth(auth session.AuthContext) *Client {
	cp := *c
	cp.auth = auth
	return &cp
}

func (c *Client) Auth() session.AuthContext {
	return c.auth
}

type request struct {
	method         string
	path           string
	query          url.Values
	body           any
	idempotencyKey string
}

func (c *Client) do(ctx context.Context, req request, out any) error {
	raw, err := c.doRaw(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", req.method, req.path, err)
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, req request) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s %s: %w: %w", req.method, req.path, ErrTransport, err)
	}

	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("%s %s: encode request: %w", req.method, req.path, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if header := c.auth.AuthorizationHeader(); header != "" {
		httpReq.Header.Set("Authorization", header)
	}
	if req.idempotencyKey != "" {
		httpReq.Header.Set(idempotencyHeader, req.idempotencyKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %w", req.method, req.path, ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read response: %w: %w", req.method, req.path, ErrTransport, err)
	}

	c.log.WithFields(logrus.Fields{
		"method": req.method,
		"path":   req.path,
		"status": resp.StatusCode,
	}).Debug("backend call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperror.FromResponse(resp.StatusCode, raw)
	}
	return raw, nil
}

// decodeList accepts either a bare JSON array or a paginated
// {"results": [...]} envelope.
func decodeList[T any](raw []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	var page struct {
		Results []T `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}
