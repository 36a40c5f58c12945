package remote

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/go-github/v60/github"

	"github.com/kallestad/driftmark/internal/apperr"
	"github.com/kallestad/driftmark/internal/models"
)

// listPageSize is the fixed page size for repository listings.
const listPageSize = 100

// ValidateToken checks the credential by fetching the authenticated
// user. An invalid token returns false, never an error.
func (c *Client) ValidateToken(ctx context.Context) bool {
	_, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		c.logger.Debug("token validation failed", slog.String("error", err.Error()))
		return false
	}
	return true
}

// ListRepositories returns up to one page of the user's repositories,
// most recently updated first.
func (c *Client) ListRepositories(ctx context.Context) ([]models.Repository, error) {
	repos, _, err := c.gh.Repositories.List(ctx, "", &github.RepositoryListOptions{
		Sort:        "updated",
		ListOptions: github.ListOptions{PerPage: listPageSize},
	})
	if err != nil {
		return nil, mapErr("list repositories", err, nil)
	}
	out := make([]models.Repository, 0, len(repos))
	for _, r := range repos {
		out = append(out, repoModel(r))
	}
	return out, nil
}

// CreateRepository creates a private, auto-initialized repository with
// the fixed journal description. A taken name fails with ErrRepoExists.
func (c *Client) CreateRepository(ctx context.Context, name string) (*models.Repository, error) {
	if name == "" {
		return nil, apperr.ErrValidation
	}
	repo, _, err := c.gh.Repositories.Create(ctx, "", &github.Repository{
		Name:        github.String(name),
		Description: github.String(repoDescription),
		Private:     github.Bool(true),
		AutoInit:    github.Bool(true),
	})
	if err != nil {
		return nil, mapErr("create repository", err, map[int]error{
			http.StatusUnprocessableEntity: apperr.ErrRepoExists,
		})
	}
	m := repoModel(repo)
	return &m, nil
}

// GetRepository fetches repository metadata.
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*models.Repository, error) {
	r, _, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, mapErr("get repository", err, nil)
	}
	m := repoModel(r)
	return &m, nil
}

// CountContributors returns the number of contributors on the first
// listing page; input for the repository classifier.
func (c *Client) CountContributors(ctx context.Context, owner, repo string) (int, error) {
	contribs, _, err := c.gh.Repositories.ListContributors(ctx, owner, repo, &github.ListContributorsOptions{
		ListOptions: github.ListOptions{PerPage: listPageSize},
	})
	if err != nil {
		return 0, mapErr("list contributors", err, nil)
	}
	return len(contribs), nil
}

func repoModel(r *github.Repository) models.Repository {
	return models.Repository{
		ID:          r.GetID(),
		Name:        r.GetName(),
		FullName:    r.GetFullName(),
		Owner:       r.GetOwner().GetLogin(),
		Private:     r.GetPrivate(),
		Description: r.GetDescription(),
		CreatedAt:   r.GetCreatedAt().Time,
		UpdatedAt:   r.GetUpdatedAt().Time,
	}
}
