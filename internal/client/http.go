package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/TemirB/orderfeed/internal/domain"
	"github.com/TemirB/orderfeed/internal/stream"
)

// StatusError is a non-2xx answer that is worth retrying.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// HTTP talks to the order server: the push stream and the read snapshot.
// It implements both Transport and Fetcher.
type HTTP struct {
	base   *url.URL
	client *http.Client
}

// NewHTTP builds a client for the server at baseURL. The http.Client must not
// carry a Timeout, since streams are long-lived; nil uses a fresh one.
func NewHTTP(baseURL string, client *http.Client) (*HTTP, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("server url %q must be absolute", baseURL)
	}
	if client == nil {
		client = &http.Client{}
	}
	return &HTTP{base: u, client: client}, nil
}

// Open starts GET /api/stream. The stream lives until ctx is done or the
// server ends it.
func (h *HTTP) Open(ctx context.Context, shopID, token string) (Stream, error) {
	u := h.base.JoinPath("api", "stream")
	q := url.Values{}
	q.Set("shop_id", shopID)
	q.Set("token", token)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return &httpStream{body: resp.Body, dec: stream.NewDecoder(resp.Body)}, nil
}

// Fetch reads the shop's current orders.
func (h *HTTP) Fetch(ctx context.Context, shopID, token string) ([]domain.Order, error) {
	u := h.base.JoinPath("api", "shops", shopID, "orders")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var orders []domain.Order
	if err := json.NewDecoder(resp.Body).Decode(&orders); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return orders, nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrDenied, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return nil
}

type httpStream struct {
	body io.ReadCloser
	dec  *stream.Decoder
}

func (s *httpStream) Next() (stream.Frame, error) { return s.dec.Next() }

func (s *httpStream) Close() error { return s.body.Close() }
