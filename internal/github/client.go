package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/ThalesMMS/replicant/internal/config"
)

// ErrRateLimited signals that the API refused the listing because the rate
// limit is exhausted. This aborts the whole run before any planning happens.
var ErrRateLimited = errors.New("github API rate limit exhausted")

const (
	defaultBaseURL = "https://api.github.com"
	userAgent      = "replicant-mirror-cli"
	perPage        = 100
)

// Repository is the remote-side descriptor the planner works from. It is
// produced once per run and never mutated.
type Repository struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	CloneURL      string `json:"clone_url"`
	Fork          bool   `json:"fork"`
	DefaultBranch string `json:"default_branch"`
	Owner         Owner  `json:"owner"`
}

// Owner carries the login needed to build nested mirror paths.
type Owner struct {
	Login string `json:"login"`
}

type account struct {
	Login string `json:"login"`
}

// Client lists repositories from the GitHub API with full pagination. A
// listing is always complete or an error; callers never see a partial page
// set, which is what makes exact-mirror deletion safe downstream.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates an API client. The token is optional; unauthenticated
// requests work but hit much lower rate limits.
func NewClient(token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		token:      token,
	}
}

// WithBaseURL points the client at a different API root. Used by tests.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = url
	return c
}

// ListRepositories returns the deduplicated descriptor set for the given mode
// and user, fully paginated.
func (c *Client) ListRepositories(ctx context.Context, mode config.Mode, user string) ([]Repository, error) {
	switch mode {
	case config.ModeOwn:
		repos, err := fetchPaged[Repository](ctx, c, fmt.Sprintf("/users/%s/repos", user),
			fmt.Sprintf("repositories for user %s", user))
		if err != nil {
			return nil, err
		}
		return dedupe(repos), nil

	case config.ModeStars:
		repos, err := fetchPaged[Repository](ctx, c, fmt.Sprintf("/users/%s/starred", user),
			fmt.Sprintf("starred repositories for user %s", user))
		if err != nil {
			return nil, err
		}
		return dedupe(repos), nil

	case config.ModeFollowing:
		accounts, err := fetchPaged[account](ctx, c, fmt.Sprintf("/users/%s/following", user),
			fmt.Sprintf("following list for user %s", user))
		if err != nil {
			return nil, err
		}
		return c.listForAccounts(ctx, accounts)

	case config.ModeFollowers:
		accounts, err := fetchPaged[account](ctx, c, fmt.Sprintf("/users/%s/followers", user),
			fmt.Sprintf("followers list for user %s", user))
		if err != nil {
			return nil, err
		}
		return c.listForAccounts(ctx, accounts)

	default:
		return nil, fmt.Errorf("unknown mode: %s", mode)
	}
}

// listForAccounts fans out to every account's repository list, deduplicating
// by full name and sorting for a deterministic plan order.
func (c *Client) listForAccounts(ctx context.Context, accounts []account) ([]Repository, error) {
	byFullName := make(map[string]Repository)
	seen := make(map[string]bool)

	for _, a := range accounts {
		if seen[a.Login] {
			continue
		}
		seen[a.Login] = true

		repos, err := fetchPaged[Repository](ctx, c, fmt.Sprintf("/users/%s/repos", a.Login),
			fmt.Sprintf("repositories for user %s", a.Login))
		if err != nil {
			return nil, err
		}

		for _, r := range repos {
			if _, ok := byFullName[r.FullName]; !ok {
				byFullName[r.FullName] = r
			}
		}
	}

	result := make([]Repository, 0, len(byFullName))
	for _, r := range byFullName {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].FullName < result[j].FullName
	})

	return result, nil
}

// fetchPaged walks GitHub's page sequence until an empty page. Any mid-listing
// failure fails the whole fetch; there is no partial result.
func fetchPaged[T any](ctx context.Context, c *Client, path, label string) ([]T, error) {
	var items []T

	for page := 1; ; page++ {
		url := fmt.Sprintf("%s%s?per_page=%d&page=%d", c.baseURL, path, perPage, page)

		pageItems, err := fetchOne[T](ctx, c, url, label)
		if err != nil {
			return nil, err
		}

		// Pagination ends when a page comes back empty.
		if len(pageItems) == 0 {
			break
		}
		items = append(items, pageItems...)
	}

	return items, nil
}

func fetchOne[T any](ctx context.Context, c *Client, url, label string) ([]T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", label, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", label, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		if isRateLimited(resp) {
			return nil, fmt.Errorf("fetching %s: %w", label, ErrRateLimited)
		}
		return nil, fmt.Errorf("GitHub API returned %s while fetching %s", resp.Status, label)
	}

	var items []T
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to parse response for %s: %w", label, err)
	}

	return items, nil
}

// isRateLimited distinguishes limit exhaustion from other 403/429 responses.
func isRateLimited(resp *http.Response) bool {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
		return false
	}
	return resp.Header.Get("X-RateLimit-Remaining") == "0"
}

// dedupe drops repeated full names, keeping arrival order.
func dedupe(repos []Repository) []Repository {
	seen := make(map[string]bool, len(repos))
	result := repos[:0]
	for _, r := range repos {
		if seen[r.FullName] {
			continue
		}
		seen[r.FullName] = true
		result = append(result, r)
	}
	return result
}
