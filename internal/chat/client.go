package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sitterspot/realtime/internal/domain"
)

// TokenFunc supplies the current bearer token per request.
type TokenFunc func() string

// Client fetches message history over REST.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenFunc
}

func NewClient(baseURL string, token TokenFunc) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{}, token: token}
}

func (c *Client) FetchMessages(ctx context.Context, roomID domain.RoomID) ([]domain.Message, error) {
	url := fmt.Sprintf("%s/messages/chat/%s", c.baseURL, roomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat history %s: %s", roomID, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var out []domain.Message
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out, nil
}
