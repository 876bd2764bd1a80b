package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

const apiBase = "https://api.github.com"

// Client is a thin GitHub REST client. A token is optional; without one
// requests run unauthenticated against the public rate limit.
type Client struct {
	http *http.Client
}

func NewClient(ctx context.Context, token string) *Client {
	var hc *http.Client
	if token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(ctx, src)
	} else {
		hc = &http.Client{}
	}
	hc.Timeout = 15 * time.Second
	return &Client{http: hc}
}

// RepoExists reports whether "owner/repo" names a repository visible to
// the client. 404 is a definitive no, not an error.
func (c *Client) RepoExists(ctx context.Context, fullName string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"/repos/"+fullName, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("github repo lookup: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("github repo lookup: unexpected status %d", resp.StatusCode)
	}
}

// RepoDescription fetches the description line for "owner/repo", or ""
// when the repository has none.
func (c *Client) RepoDescription(ctx context.Context, fullName string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"/repos/"+fullName, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("github repo lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("github repo lookup: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(body, "description").String(), nil
}
