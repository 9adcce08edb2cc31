package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client triggers manual sweeps on a running instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient targets the control API at addr (host:port or URL).
func NewClient(addr string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{baseURL: strings.TrimRight(base, "/"), http: httpClient}
}

// Sweep asks the server to sweep a channel on behalf of userID. A
// response with failed sources is returned together with an error.
func (c *Client) Sweep(ctx context.Context, channelID string, userID int64) (SweepResponse, error) {
	body, err := json.Marshal(SweepRequest{ChannelID: channelID, UserID: userID})
	if err != nil {
		return SweepResponse{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sweep", bytes.NewReader(body))
	if err != nil {
		return SweepResponse{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return SweepResponse{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusBadGateway:
		var out SweepResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return SweepResponse{}, fmt.Errorf("decode response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return out, fmt.Errorf("sweep finished with failures")
		}
		return out, nil
	default:
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return SweepResponse{}, fmt.Errorf("server error: %s: %s", resp.Status, apiErr.Error)
		}
		return SweepResponse{}, fmt.Errorf("server error: %s", resp.Status)
	}
}
