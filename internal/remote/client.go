// Package remote implements the GitHub-backed repository client. It owns
// all wire concerns: request shaping, response parsing, base64 content
// transport, and mapping API failures onto the apperr taxonomy.
package remote

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v60/github"

	"github.com/kallestad/driftmark/internal/apperr"
)

// EntriesDir is the repository folder that holds journal entries.
const EntriesDir = "entries"

// repoDescription is used when creating the journal repository.
const repoDescription = "Personal journal entries managed by Driftmark"

// Client wraps the GitHub API for a single token. All operations are
// single-shot: reads are safe to retry, writes are not retried at all.
type Client struct {
	gh     *github.Client
	logger *slog.Logger
}

// NewClient creates a client for the given token. baseURL overrides the
// API endpoint (empty means api.github.com); it exists for tests and
// GitHub Enterprise setups.
func NewClient(token, baseURL string, logger *slog.Logger) (*Client, error) {
	hc := &http.Client{Timeout: 30 * time.Second}
	gh := github.NewClient(hc).WithAuthToken(token)

	if baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("remote: parse base url: %w", err)
		}
		gh.BaseURL = u
		gh.UploadURL = u
	}

	return &Client{
		gh:     gh,
		logger: logger.With(slog.String("component", "remote")),
	}, nil
}

// mapErr converts a go-github error into a typed apperr error. The
// fallback sentinel covers status codes the caller wants to interpret
// specially (e.g. 422 means different things on create vs. update).
func mapErr(op string, err error, overrides map[int]error) error {
	if err == nil {
		return nil
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		status := ghErr.Response.StatusCode
		if sentinel, ok := overrides[status]; ok {
			return apperr.Remote(op, status, sentinel)
		}
		switch status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return apperr.Remote(op, status, apperr.ErrAuth)
		case http.StatusNotFound:
			return apperr.Remote(op, status, apperr.ErrNotFound)
		case http.StatusConflict:
			return apperr.Remote(op, status, apperr.ErrRevisionConflict)
		}
		return apperr.Remote(op, status, fmt.Errorf("%s", ghErr.Message))
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return apperr.Remote(op, http.StatusForbidden, apperr.ErrNetwork)
	}

	return fmt.Errorf("%s: %w: %v", op, apperr.ErrNetwork, err)
}
