// Package githubhost implements vcs.Host on the GitHub REST API.
package githubhost

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/fyrsmithlabs/launchpad/internal/config"
)

// NewClient creates a GitHub client authenticated with token. A non-empty
// baseURL points the client at GitHub Enterprise or a test server.
func NewClient(ctx context.Context, token config.Secret, baseURL string) (*github.Client, error) {
	if !token.IsSet() {
		return nil, fmt.Errorf("GitHub token not set")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token.Value()})
	client := github.NewClient(oauth2.NewClient(ctx, ts))

	if baseURL != "" {
		if err := SetBaseURL(client, baseURL); err != nil {
			return nil, err
		}
	}
	return client, nil
}

// SetBaseURL points client at a different API root.
func SetBaseURL(client *github.Client, baseURL string) error {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid GitHub base URL: %w", err)
	}
	client.BaseURL = u
	client.UploadURL = u
	return nil
}
