// Package identity asks the identity service whether a user id exists.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, serviceToken string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      serviceToken,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Exists reports whether the identity service knows userID.
func (c *Client) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/internal/users/"+userID.String(), nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("network error calling identity service: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("identity service returned status %d", resp.StatusCode)
	}
}

// AllowAll treats every id as known. Used when no identity service is configured.
type AllowAll struct{}

func (AllowAll) Exists(context.Context, uuid.UUID) (bool, error) { return true, nil }
