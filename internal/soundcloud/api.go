package soundcloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// User is the subset of the SoundCloud user resource used after sign-in.
type User struct {
	ID        int64  `json:"id"`
	URN       string `json:"urn"`
	Username  string `json:"username"`
	Permalink string `json:"permalink_url"`
}

// Me returns the user the client is authenticated as. baseURL defaults to APIBaseURL.
func Me(ctx context.Context, client *http.Client, baseURL string) (*User, error) {
	if baseURL == "" {
		baseURL = APIBaseURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(baseURL, "/")+"/me", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json; charset=utf-8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting /me: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// Drain a bounded amount so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("requesting /me: unexpected status %d", resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decoding /me response: %w", err)
	}
	return &user, nil
}
