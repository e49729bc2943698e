// Package pins keeps the local pin collection consistent with the
// backend: REST fetches, push events, and the marker arena.
package pins

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sitterspot/realtime/internal/domain"
)

// NotFoundError is a 404 carrying the id of the pin the backend no
// longer knows. It drives targeted local deletion, never a full wipe.
type NotFoundError struct {
	PinID domain.PinID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("pin %s not found", e.PinID)
}

// TokenFunc supplies the current bearer token per request; tokens
// rotate outside this layer.
type TokenFunc func() string

type Client struct {
	baseURL string
	http    *http.Client
	token   TokenFunc
}

func NewClient(baseURL string, token TokenFunc) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{},
		token:   token,
	}
}

func (c *Client) FetchAll(ctx context.Context) ([]domain.Pin, error) {
	return c.get(ctx, "/api/location-pins/all-pins")
}

func (c *Client) FetchInBounds(ctx context.Context, b domain.Bounds) ([]domain.Pin, error) {
	q := url.Values{}
	q.Set("north", fmt.Sprintf("%f", b.North))
	q.Set("south", fmt.Sprintf("%f", b.South))
	q.Set("east", fmt.Sprintf("%f", b.East))
	q.Set("west", fmt.Sprintf("%f", b.West))
	return c.get(ctx, "/api/location-pins/in-bounds?"+q.Encode())
}

func (c *Client) SearchByOwner(ctx context.Context, owner domain.UserID) ([]domain.Pin, error) {
	q := url.Values{}
	q.Set("userId", string(owner))
	return c.get(ctx, "/api/location-pins/search?"+q.Encode())
}

func (c *Client) get(ctx context.Context, path string) ([]domain.Pin, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
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

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		var nf struct {
			PinID domain.PinID `json:"pinId"`
		}
		if json.Unmarshal(body, &nf) == nil && nf.PinID != "" {
			return nil, &NotFoundError{PinID: nf.PinID}
		}
		return nil, fmt.Errorf("pins: %s: %s", path, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pins: %s: %s", path, resp.Status)
	}

	var out []domain.Pin
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out, nil
}
