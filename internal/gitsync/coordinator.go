// Package gitsync implements the sync coordinator: it maintains the
// illusion of a single logical file set present both locally and in the
// remote repository, with the remote store authoritative once connected.
package gitsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kallestad/driftmark/internal/apperr"
	"github.com/kallestad/driftmark/internal/models"
	"github.com/kallestad/driftmark/internal/remote"
)

// State is the coordinator's connection lifecycle state.
type State string

// Coordinator states. Busy is held while a bulk operation is in flight;
// a second sync request during Busy fails fast with ErrBusy instead of
// racing the first.
const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateBusy         State = "busy"
)

// RemoteStore is the slice of the remote client the coordinator needs.
type RemoteStore interface {
	ValidateToken(ctx context.Context) bool
	GetRepository(ctx context.Context, owner, repo string) (*models.Repository, error)
	CreateRepository(ctx context.Context, name string) (*models.Repository, error)
	ReadDirectory(ctx context.Context, cfg models.ConnectionConfig, dir string) ([]remote.Entry, error)
	ReadFile(ctx context.Context, cfg models.ConnectionConfig, path string) (*remote.FileData, error)
	WriteFile(ctx context.Context, cfg models.ConnectionConfig, path, content, message, revision string) (string, error)
	DeleteFile(ctx context.Context, cfg models.ConnectionConfig, path, message, revision string) error
}

// ClientFactory builds a RemoteStore for a credential token.
type ClientFactory func(token string) (RemoteStore, error)

// PushFailure records one file that could not be pushed.
type PushFailure struct {
	File models.JournalFile
	Err  error
}

// BulkResult partitions a bulk push: every input file lands in exactly
// one of Synced, Failed or Skipped (drafts are skipped). Failed entries
// keep the original, unmutated file.
type BulkResult struct {
	Synced  []models.JournalFile
	Failed  []PushFailure
	Skipped []string
}

// ReconcileResult is the outcome of a two-way reconciliation pass.
// When Conflicts is non-empty, nothing was written to the remote store
// and Push is nil.
type ReconcileResult struct {
	Merged    []models.JournalFile
	Conflicts []models.JournalFile
	Push      *BulkResult
}

// Coordinator orchestrates the remote client to implement connect,
// push, pull and reconciliation.
type Coordinator struct {
	newClient ClientFactory
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	state     State
	client    RemoteStore
	cfg       models.ConnectionConfig
	conflicts []models.JournalFile
}

// NewCoordinator creates a disconnected coordinator.
func NewCoordinator(factory ClientFactory, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		newClient: factory,
		logger:    logger.With(slog.String("component", "gitsync")),
		now:       time.Now,
		state:     StateDisconnected,
	}
}

// SetClock overrides the coordinator's notion of now. Test hook.
func (c *Coordinator) SetClock(now func() time.Time) { c.now = now }

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether a remote store is active.
func (c *Coordinator) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected || c.state == StateBusy
}

// Config returns the active connection config.
func (c *Coordinator) Config() models.ConnectionConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Conflicts returns the unresolved conflict set from the last reconcile.
func (c *Coordinator) Conflicts() []models.JournalFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.JournalFile, len(c.conflicts))
	copy(out, c.conflicts)
	return out
}

// Connect validates the credential and confirms or creates the target
// repository. Any failure lands back in Disconnected; there is no
// partial "credential stored but no repository" state.
func (c *Coordinator) Connect(ctx context.Context, cfg models.ConnectionConfig) (*models.Repository, error) {
	c.mu.Lock()
	if c.state == StateBusy || c.state == StateConnecting {
		c.mu.Unlock()
		return nil, apperr.ErrBusy
	}
	c.state = StateConnecting
	c.mu.Unlock()

	repo, client, err := c.establish(ctx, cfg)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateDisconnected
		c.client = nil
		c.cfg = models.ConnectionConfig{}
		return nil, err
	}
	c.state = StateConnected
	c.client = client
	c.cfg = cfg
	c.conflicts = nil
	c.logger.Info("connected", slog.String("repo", cfg.Owner+"/"+cfg.Repo))
	return repo, nil
}

func (c *Coordinator) establish(ctx context.Context, cfg models.ConnectionConfig) (*models.Repository, RemoteStore, error) {
	if cfg.Token == "" || cfg.Owner == "" || cfg.Repo == "" {
		return nil, nil, fmt.Errorf("incomplete connection config: %w", apperr.ErrValidation)
	}
	client, err := c.newClient(cfg.Token)
	if err != nil {
		return nil, nil, err
	}
	if !client.ValidateToken(ctx) {
		return nil, nil, fmt.Errorf("token rejected: %w", apperr.ErrAuth)
	}

	repo, err := client.GetRepository(ctx, cfg.Owner, cfg.Repo)
	if err == nil {
		return repo, client, nil
	}
	if !isNotFound(err) {
		return nil, nil, err
	}

	// Repository does not exist yet; create it.
	repo, err = client.CreateRepository(ctx, cfg.Repo)
	if err != nil {
		return nil, nil, err
	}
	return repo, client, nil
}

// Resume restores a previously persisted connection without a network
// round trip; used at startup. The next remote call surfaces any staleness.
func (c *Coordinator) Resume(cfg models.ConnectionConfig) error {
	client, err := c.newClient(cfg.Token)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateConnected
	c.client = client
	c.cfg = cfg
	c.conflicts = nil
	return nil
}

// Disconnect drops the active connection and conflict set.
func (c *Coordinator) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateDisconnected
	c.client = nil
	c.cfg = models.ConnectionConfig{}
	c.conflicts = nil
}

// begin transitions Connected → Busy, rejecting overlapping syncs.
func (c *Coordinator) begin() (RemoteStore, models.ConnectionConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateBusy:
		return nil, models.ConnectionConfig{}, apperr.ErrBusy
	case StateConnected:
		c.state = StateBusy
		return c.client, c.cfg, nil
	default:
		return nil, models.ConnectionConfig{}, apperr.ErrNotConnected
	}
}

func (c *Coordinator) end() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateBusy {
		c.state = StateConnected
	}
}

// session returns the client and config for single-file operations,
// which do not take the Busy state.
func (c *Coordinator) session() (RemoteStore, models.ConnectionConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected && c.state != StateBusy {
		return nil, models.ConnectionConfig{}, apperr.ErrNotConnected
	}
	return c.client, c.cfg, nil
}

// PushOne writes one file to entries/<name>. On success the returned
// copy carries the new revision and sync stamp; on failure the caller's
// file is returned unchanged alongside the error.
func (c *Coordinator) PushOne(ctx context.Context, f models.JournalFile) (models.JournalFile, error) {
	client, cfg, err := c.session()
	if err != nil {
		return f, err
	}
	return c.pushOne(ctx, client, cfg, f)
}

func (c *Coordinator) pushOne(ctx context.Context, client RemoteStore, cfg models.ConnectionConfig, f models.JournalFile) (models.JournalFile, error) {
	if f.IsDraft() {
		return f, fmt.Errorf("draft files are not synced: %w", apperr.ErrValidation)
	}
	message := "Update " + f.Name
	revision, err := client.WriteFile(ctx, cfg, remote.EntryPath(f.Name), f.Content, message, f.RemoteRevision)
	if err != nil {
		return f, err
	}
	synced := c.now()
	f.RemoteRevision = revision
	f.LastSyncedAt = &synced
	return f, nil
}

// PushAll pushes every file independently; one failure never aborts the
// rest. Drafts are skipped.
func (c *Coordinator) PushAll(ctx context.Context, files []models.JournalFile) (*BulkResult, error) {
	client, cfg, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer c.end()
	return c.pushAll(ctx, client, cfg, files), nil
}

func (c *Coordinator) pushAll(ctx context.Context, client RemoteStore, cfg models.ConnectionConfig, files []models.JournalFile) *BulkResult {
	res := &BulkResult{}
	for _, f := range files {
		if f.IsDraft() {
			res.Skipped = append(res.Skipped, f.ID)
			continue
		}
		pushed, err := c.pushOne(ctx, client, cfg, f)
		if err != nil {
			c.logger.Warn("push failed", slog.String("name", f.Name), slog.String("error", err.Error()))
			res.Failed = append(res.Failed, PushFailure{File: f, Err: err})
			continue
		}
		res.Synced = append(res.Synced, pushed)
	}
	return res
}

// PullAll lists entries/ and reads every markdown file. Ids are derived
// from names so repeated pulls are stable; CreatedAt comes from a
// YYYY-MM-DD name prefix when present. The remote store tracks no
// per-file modification time at this granularity, so UpdatedAt is the
// pull time — a documented precision loss.
func (c *Coordinator) PullAll(ctx context.Context) ([]models.JournalFile, error) {
	client, cfg, err := c.session()
	if err != nil {
		return nil, err
	}
	return c.pullAll(ctx, client, cfg)
}

func (c *Coordinator) pullAll(ctx context.Context, client RemoteStore, cfg models.ConnectionConfig) ([]models.JournalFile, error) {
	listing, err := client.ReadDirectory(ctx, cfg, remote.EntriesDir)
	if err != nil {
		return nil, err
	}

	files := make([]models.JournalFile, 0, len(listing))
	for _, entry := range listing {
		if entry.Type != "file" || !strings.HasSuffix(entry.Name, models.MarkdownExt) {
			continue
		}
		data, err := client.ReadFile(ctx, cfg, remote.EntryPath(entry.Name))
		if err != nil {
			return nil, err
		}
		now := c.now()
		files = append(files, models.JournalFile{
			ID:             models.IDFromName(entry.Name),
			Name:           entry.Name,
			Content:        data.Content,
			CreatedAt:      models.CreatedAtFromName(entry.Name, now),
			UpdatedAt:      now,
			RemoteRevision: data.Revision,
			LastSyncedAt:   &now,
		})
	}
	return files, nil
}

// Reconcile runs the two-way merge between the given local files and
// the current remote state:
//
//   - byte-identical pairs are a no-op
//   - pairs that differ while the local copy was edited since its last
//     sync are conflicts; no winner is guessed
//   - pairs that differ otherwise resolve to the greater UpdatedAt
//   - one-sided files pass through
//
// When any conflict is found nothing is written back; both stores stay
// byte-for-byte as found and the conflict set is returned for external
// resolution. Otherwise the merged set is pushed before returning.
func (c *Coordinator) Reconcile(ctx context.Context, local []models.JournalFile) (*ReconcileResult, error) {
	client, cfg, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer c.end()

	remoteFiles, err := c.pullAll(ctx, client, cfg)
	if err != nil {
		return nil, err
	}

	merged, conflicts := merge(local, remoteFiles)

	if len(conflicts) > 0 {
		c.mu.Lock()
		c.conflicts = conflicts
		c.mu.Unlock()
		c.logger.Info("reconcile found conflicts", slog.Int("count", len(conflicts)))
		return &ReconcileResult{Conflicts: conflicts}, nil
	}

	push := c.pushAll(ctx, client, cfg, merged)
	return &ReconcileResult{Merged: applyPush(merged, push), Push: push}, nil
}

// merge is the pure reconciliation core: no I/O, no state.
func merge(local, remoteFiles []models.JournalFile) (merged, conflicts []models.JournalFile) {
	remoteByName := make(map[string]models.JournalFile, len(remoteFiles))
	for _, rf := range remoteFiles {
		remoteByName[rf.Name] = rf
	}

	localNames := make(map[string]struct{}, len(local))
	for _, lf := range local {
		if lf.IsDraft() {
			continue
		}
		localNames[lf.Name] = struct{}{}

		rf, ok := remoteByName[lf.Name]
		if !ok {
			// Local-only: pass through untouched.
			merged = append(merged, lf)
			continue
		}
		if lf.Content == rf.Content {
			// Keep the local copy; it carries the richer metadata.
			merged = append(merged, lf)
			continue
		}
		if editedSinceSync(lf) {
			conflicts = append(conflicts, lf)
			continue
		}
		if lf.UpdatedAt.After(rf.UpdatedAt) {
			merged = append(merged, lf)
		} else {
			merged = append(merged, rf)
		}
	}

	// Remote-only files are added as-is.
	for _, rf := range remoteFiles {
		if _, ok := localNames[rf.Name]; !ok {
			merged = append(merged, rf)
		}
	}
	return merged, conflicts
}

// editedSinceSync reports whether the local copy was modified after its
// last known sync. A never-synced local file that collides with a
// remote name counts as edited: its content cannot be proven to derive
// from the remote copy.
func editedSinceSync(f models.JournalFile) bool {
	if f.LastSyncedAt == nil {
		return true
	}
	return f.UpdatedAt.After(*f.LastSyncedAt)
}

// applyPush replaces merged entries with their pushed versions where the
// push succeeded; failures keep the pre-push file.
func applyPush(merged []models.JournalFile, push *BulkResult) []models.JournalFile {
	syncedByName := make(map[string]models.JournalFile, len(push.Synced))
	for _, f := range push.Synced {
		syncedByName[f.Name] = f
	}
	out := make([]models.JournalFile, 0, len(merged))
	for _, f := range merged {
		if s, ok := syncedByName[f.Name]; ok {
			out = append(out, s)
		} else {
			out = append(out, f)
		}
	}
	return out
}

// ResolveConflicts pushes one definitive version per conflicted name and
// clears the conflict set. A resolution overwrites whatever revision the
// remote currently holds: the conflicted local copy may never have been
// synced, or may carry a stale revision, so each is refreshed first.
func (c *Coordinator) ResolveConflicts(ctx context.Context, resolved []models.JournalFile) (*BulkResult, error) {
	client, cfg, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer c.end()

	for i := range resolved {
		data, err := client.ReadFile(ctx, cfg, remote.EntryPath(resolved[i].Name))
		switch {
		case err == nil:
			resolved[i].RemoteRevision = data.Revision
		case isNotFound(err):
			resolved[i].RemoteRevision = ""
		}
	}

	res := c.pushAll(ctx, client, cfg, resolved)

	c.mu.Lock()
	c.conflicts = nil
	c.mu.Unlock()
	return res, nil
}

// DeleteRemote removes a file's remote copy. A file that was never
// synced has nothing to delete remotely, which is an error rather than
// a silent no-op.
func (c *Coordinator) DeleteRemote(ctx context.Context, f models.JournalFile) error {
	client, cfg, err := c.session()
	if err != nil {
		return err
	}
	if f.RemoteRevision == "" {
		return fmt.Errorf("%s was never synced: %w", f.Name, apperr.ErrValidation)
	}
	return client.DeleteFile(ctx, cfg, remote.EntryPath(f.Name), "Delete "+f.Name, f.RemoteRevision)
}

func isNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}
