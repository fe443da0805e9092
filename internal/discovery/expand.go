package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v68/github"
)

const (
	orgPrefix  = "github-org:"
	userPrefix = "github-user:"

	// listRepoLimit caps API enumeration so a typo'd org name pointing at a
	// huge account cannot balloon a run.
	listRepoLimit = 1000
)

// NeedsExpansion reports whether any project entry requires an API lookup.
// Callers use this to skip token resolution entirely for plain URL lists.
func NeedsExpansion(projects []string) bool {
	for _, p := range projects {
		if strings.HasPrefix(p, orgPrefix) || strings.HasPrefix(p, userPrefix) {
			return true
		}
	}
	return false
}

// Expand resolves github-org: and github-user: entries into clone URLs,
// preserving order and passing every other entry through unchanged.
// Duplicate clone URLs are dropped.
func Expand(ctx context.Context, client *Client, projects []string) ([]string, error) {
	out := make([]string, 0, len(projects))
	seen := make(map[string]struct{}, len(projects))

	add := func(entry string) {
		if _, ok := seen[entry]; ok {
			return
		}
		seen[entry] = struct{}{}
		out = append(out, entry)
	}

	for _, project := range projects {
		switch {
		case strings.HasPrefix(project, orgPrefix):
			org := strings.TrimSpace(strings.TrimPrefix(project, orgPrefix))
			if org == "" {
				return nil, fmt.Errorf("invalid project entry %q: missing organization name", project)
			}
			urls, err := listOrgCloneURLs(ctx, client, org)
			if err != nil {
				return nil, err
			}
			for _, u := range urls {
				add(u)
			}
		case strings.HasPrefix(project, userPrefix):
			user := strings.TrimSpace(strings.TrimPrefix(project, userPrefix))
			if user == "" {
				return nil, fmt.Errorf("invalid project entry %q: missing user name", project)
			}
			urls, err := listUserCloneURLs(ctx, client, user)
			if err != nil {
				return nil, err
			}
			for _, u := range urls {
				add(u)
			}
		default:
			add(project)
		}
	}

	return out, nil
}

func listOrgCloneURLs(ctx context.Context, client *Client, org string) ([]string, error) {
	urls := make([]string, 0, 100)

	opts := &github.RepositoryListByOrgOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		repos, resp, err := client.Client.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories for org %s: %w", org, err)
		}
		for _, repo := range repos {
			if url, ok := usableCloneURL(repo); ok {
				urls = append(urls, url)
			}
			if len(urls) >= listRepoLimit {
				return urls, nil
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return urls, nil
}

func listUserCloneURLs(ctx context.Context, client *Client, user string) ([]string, error) {
	urls := make([]string, 0, 100)

	opts := &github.RepositoryListByUserOptions{
		ListOptions: github.ListOptions{PerPage: 100},
		Type:        "owner",
	}
	for {
		repos, resp, err := client.Client.Repositories.ListByUser(ctx, user, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories for user %s: %w", user, err)
		}
		for _, repo := range repos {
			if url, ok := usableCloneURL(repo); ok {
				urls = append(urls, url)
			}
			if len(urls) >= listRepoLimit {
				return urls, nil
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return urls, nil
}

// usableCloneURL filters out repositories that a patch series cannot act on:
// archived repositories reject pushes, and forks usually track an upstream
// that should be patched instead.
func usableCloneURL(repo *github.Repository) (string, bool) {
	if repo.GetArchived() || repo.GetFork() {
		return "", false
	}
	url := repo.GetCloneURL()
	if url == "" {
		return "", false
	}
	return url, true
}
