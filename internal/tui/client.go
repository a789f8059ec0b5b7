package tui

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/retailops/notifier/internal/app/session"
)

// Client talks to the notifier HTTP API on behalf of one operator.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	stream     *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		stream:     &http.Client{},
	}
}

func (c *Client) CreateSession(ctx context.Context) (session.State, error) {
	var st session.State
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", nil, &st); err != nil {
		return session.State{}, fmt.Errorf("client.CreateSession: %w", err)
	}
	return st, nil
}

func (c *Client) CloseSession(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/v1/sessions/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("client.CloseSession: %w", err)
	}
	return nil
}

func (c *Client) MarkSeen(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+url.PathEscape(id)+"/seen", nil, nil); err != nil {
		return fmt.Errorf("client.MarkSeen: %w", err)
	}
	return nil
}

func (c *Client) DismissToast(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+url.PathEscape(id)+"/toast/dismiss", nil, nil); err != nil {
		return fmt.Errorf("client.DismissToast: %w", err)
	}
	return nil
}

// Focus asks every coordinator of the session to refresh now.
func (c *Client) Focus(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+url.PathEscape(id)+"/focus", nil, nil); err != nil {
		return fmt.Errorf("client.Focus: %w", err)
	}
	return nil
}

// Stream reads the session event stream until ctx ends or the server closes
// it. The first state frame is a full session.State; later ones are
// session.Update values.
func (c *Client) Stream(ctx context.Context, id string, onState func(session.State), onUpdate func(session.Update)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/sessions/"+url.PathEscape(id)+"/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.stream.Do(req)
	if err != nil {
		return fmt.Errorf("client.Stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("client.Stream: %s", statusMessage(resp))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	var event string
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			event = ""
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && event == "state":
			data := []byte(strings.TrimPrefix(line, "data: "))
			if first {
				var st session.State
				if err := json.Unmarshal(data, &st); err != nil {
					return fmt.Errorf("client.Stream: decoding state: %w", err)
				}
				first = false
				onState(st)
				continue
			}
			var u session.Update
			if err := json.Unmarshal(data, &u); err != nil {
				continue
			}
			onUpdate(u)
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("client.Stream: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s", statusMessage(resp))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func statusMessage(resp *http.Response) string {
	var payload struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return fmt.Sprintf("%d: %s", resp.StatusCode, payload.Error)
	}
	return resp.Status
}
