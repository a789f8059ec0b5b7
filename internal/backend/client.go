package backend

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

	"github.com/retailops/notifier/internal/contracts"
)

const (
	PathOrderStats  = "/api/v1/orders/stats"
	PathPendingCOD  = "/api/v1/finance/cod/pending"
	PathReturs      = "/api/v1/returs"
	PathDriverTasks = "/api/v1/driver/orders"
)

// ErrUnauthorized is returned for 401 and 403 responses.
var ErrUnauthorized = errors.New("backend rejected credentials")

// StatusError describes any other non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Code, e.Body)
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CODGroup is one driver's pending cash-on-delivery orders.
type CODGroup struct {
	DriverID string            `json:"driver_id"`
	Orders   []json.RawMessage `json:"orders"`
}

type Retur struct {
	ID                string     `json:"id"`
	OrderID           string     `json:"order_id,omitempty"`
	Status            string     `json:"status"`
	RefundDisbursedAt *time.Time `json:"refund_disbursed_at,omitempty"`
}

type DriverTask struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number,omitempty"`
	Status      string `json:"status,omitempty"`
}

func (c *Client) OrderStats(ctx context.Context) (contracts.OrderStats, error) {
	stats := contracts.OrderStats{}
	if err := c.get(ctx, PathOrderStats, nil, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (c *Client) PendingCOD(ctx context.Context) ([]CODGroup, error) {
	var groups []CODGroup
	if err := c.get(ctx, PathPendingCOD, nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (c *Client) Returs(ctx context.Context) ([]Retur, error) {
	var returs []Retur
	if err := c.get(ctx, PathReturs, nil, &returs); err != nil {
		return nil, err
	}
	return returs, nil
}

func (c *Client) DriverTasks(ctx context.Context, driverID string) ([]DriverTask, error) {
	q := url.Values{}
	if driverID != "" {
		q.Set("driver_id", driverID)
	}
	var tasks []DriverTask
	if err := c.get(ctx, PathDriverTasks, q, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request GET %s: %w", path, err)
	}
	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return fmt.Errorf("reading response body: %w", readErr)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("GET %s: %w", path, ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &StatusError{Method: http.MethodGet, Path: path, Code: resp.StatusCode, Body: truncate(string(body), 200)}
	}
	if err := decode(body, result); err != nil {
		return fmt.Errorf("decoding GET %s: %w", path, err)
	}
	return nil
}

// decode accepts both a bare payload and one wrapped as {"data": ...}.
func decode(body []byte, result any) error {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil
	}
	if body[0] == '{' {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 {
			body = envelope.Data
			if bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
				return nil
			}
		}
	}
	return json.Unmarshal(body, result)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
