package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal REST client for the upstream PLC gateway. The
// gateway owns the latched alarm bits; the core only asks it to act.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient constructs a gateway client.
func NewClient(baseURL, token string) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("gateway: empty base url")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// AckResponse reports the gateway's handling of a reset request.
type AckResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// SendAcknowledge asks the gateway to clear latched alarm bits on every
// connected channel.
func (c *Client) SendAcknowledge(ctx context.Context, requestedBy string, requestedAt time.Time) (AckResponse, error) {
	if c == nil {
		return AckResponse{}, errors.New("gateway: nil client")
	}
	body := map[string]any{
		"requested_by": requestedBy,
		"requested_at": requestedAt.UTC().Format(time.RFC3339),
	}
	var resp AckResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/alarms/acknowledge", body, &resp); err != nil {
		return AckResponse{}, err
	}
	return resp, nil
}

// WriteVariable pushes a variable value down to the gateway so panels
// attached to it see rule-driven set_value changes.
func (c *Client) WriteVariable(ctx context.Context, name, value string) error {
	if name == "" {
		return errors.New("gateway: empty variable name")
	}
	body := map[string]any{"name": name, "value": value}
	return c.doJSON(ctx, http.MethodPost, "/api/v1/variables/write", body, nil)
}

var errNotFound = errors.New("gateway: not found")

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
