package remote

import (
	"context"
	"errors"
	"net/http"
	"path"

	"github.com/google/go-github/v60/github"

	"github.com/kallestad/driftmark/internal/apperr"
	"github.com/kallestad/driftmark/internal/models"
)

// Entry is one item of a remote directory listing.
type Entry struct {
	Name string
	Type string // "file" or "dir"
	SHA  string
}

// FileData is a decoded remote file.
type FileData struct {
	Content  string
	Revision string
}

// ReadDirectory lists the entries at dir. A missing directory yields an
// empty list, not an error: that is the normal state of a fresh journal
// repository before the first push.
func (c *Client) ReadDirectory(ctx context.Context, cfg models.ConnectionConfig, dir string) ([]Entry, error) {
	_, listing, _, err := c.gh.Repositories.GetContents(ctx, cfg.Owner, cfg.Repo, dir, nil)
	if err != nil {
		mapped := mapErr("read directory", err, nil)
		if errors.Is(mapped, apperr.ErrNotFound) {
			return []Entry{}, nil
		}
		return nil, mapped
	}
	out := make([]Entry, 0, len(listing))
	for _, item := range listing {
		out = append(out, Entry{
			Name: item.GetName(),
			Type: item.GetType(),
			SHA:  item.GetSHA(),
		})
	}
	return out, nil
}

// ReadFile fetches and decodes a file. Content travels base64-encoded on
// the wire; the returned string is the decoded UTF-8 text.
func (c *Client) ReadFile(ctx context.Context, cfg models.ConnectionConfig, filePath string) (*FileData, error) {
	fc, _, _, err := c.gh.Repositories.GetContents(ctx, cfg.Owner, cfg.Repo, filePath, nil)
	if err != nil {
		return nil, mapErr("read file", err, nil)
	}
	if fc == nil {
		return nil, apperr.Remote("read file", http.StatusNotFound, apperr.ErrNotFound)
	}
	content, err := fc.GetContent()
	if err != nil {
		return nil, mapErr("decode file", err, nil)
	}
	return &FileData{Content: content, Revision: fc.GetSHA()}, nil
}

// WriteFile creates the file when revision is empty, or updates in place
// when a revision is given. A stale revision fails with
// ErrRevisionConflict and leaves the other writer's content intact; the
// caller decides what to do, there is no blind overwrite here.
func (c *Client) WriteFile(ctx context.Context, cfg models.ConnectionConfig, filePath, content, message, revision string) (string, error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: []byte(content),
	}

	conflictOverrides := map[int]error{
		http.StatusConflict:            apperr.ErrRevisionConflict,
		http.StatusUnprocessableEntity: apperr.ErrRevisionConflict,
	}

	var resp *github.RepositoryContentResponse
	var err error
	if revision == "" {
		resp, _, err = c.gh.Repositories.CreateFile(ctx, cfg.Owner, cfg.Repo, filePath, opts)
	} else {
		opts.SHA = github.String(revision)
		resp, _, err = c.gh.Repositories.UpdateFile(ctx, cfg.Owner, cfg.Repo, filePath, opts)
	}
	if err != nil {
		return "", mapErr("write file", err, conflictOverrides)
	}
	return resp.GetContent().GetSHA(), nil
}

// DeleteFile removes a remote file; the current revision is required.
func (c *Client) DeleteFile(ctx context.Context, cfg models.ConnectionConfig, filePath, message, revision string) error {
	_, _, err := c.gh.Repositories.DeleteFile(ctx, cfg.Owner, cfg.Repo, filePath, &github.RepositoryContentFileOptions{
		Message: github.String(message),
		SHA:     github.String(revision),
	})
	if err != nil {
		return mapErr("delete file", err, map[int]error{
			http.StatusConflict:            apperr.ErrRevisionConflict,
			http.StatusUnprocessableEntity: apperr.ErrRevisionConflict,
		})
	}
	return nil
}

// EntryPath returns the repository path of a journal entry.
func EntryPath(name string) string {
	return path.Join(EntriesDir, name)
}
