package gitsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kallestad/driftmark/internal/apperr"
	"github.com/kallestad/driftmark/internal/models"
	"github.com/kallestad/driftmark/internal/remote"
)

type fakeFile struct {
	content string
	sha     string
}

// fakeRemote is an in-memory RemoteStore. Files live under a flat
// entries/ prefix, revisions are counter-based.
type fakeRemote struct {
	mu         sync.Mutex
	validToken bool
	repos      map[string]models.Repository
	files      map[string]fakeFile
	messages   []string
	writeErr   map[string]error
	revCounter int

	listGate chan struct{} // when set, ReadDirectory blocks until closed
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		validToken: true,
		repos:      map[string]models.Repository{},
		files:      map[string]fakeFile{},
		writeErr:   map[string]error{},
	}
}

func (f *fakeRemote) addRepo(owner, name string) {
	f.repos[owner+"/"+name] = models.Repository{Name: name, Owner: owner, FullName: owner + "/" + name, Private: true}
}

func (f *fakeRemote) putFile(name, content string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revCounter++
	sha := fmt.Sprintf("sha-%d", f.revCounter)
	f.files[name] = fakeFile{content: content, sha: sha}
	return sha
}

func (f *fakeRemote) ValidateToken(ctx context.Context) bool { return f.validToken }

func (f *fakeRemote) GetRepository(ctx context.Context, owner, repo string) (*models.Repository, error) {
	if r, ok := f.repos[owner+"/"+repo]; ok {
		return &r, nil
	}
	return nil, apperr.Remote("get repository", http.StatusNotFound, apperr.ErrNotFound)
}

func (f *fakeRemote) CreateRepository(ctx context.Context, name string) (*models.Repository, error) {
	key := "owner/" + name
	if _, ok := f.repos[key]; ok {
		return nil, apperr.Remote("create repository", http.StatusUnprocessableEntity, apperr.ErrRepoExists)
	}
	r := models.Repository{Name: name, Owner: "owner", FullName: key, Private: true}
	f.repos[key] = r
	return &r, nil
}

func (f *fakeRemote) ReadDirectory(ctx context.Context, cfg models.ConnectionConfig, dir string) ([]remote.Entry, error) {
	if f.listGate != nil {
		<-f.listGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []remote.Entry
	for name, file := range f.files {
		out = append(out, remote.Entry{Name: name, Type: "file", SHA: file.sha})
	}
	return out, nil
}

func (f *fakeRemote) ReadFile(ctx context.Context, cfg models.ConnectionConfig, path string) (*remote.FileData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := strings.TrimPrefix(path, "entries/")
	file, ok := f.files[name]
	if !ok {
		return nil, apperr.Remote("read file", http.StatusNotFound, apperr.ErrNotFound)
	}
	return &remote.FileData{Content: file.content, Revision: file.sha}, nil
}

func (f *fakeRemote) WriteFile(ctx context.Context, cfg models.ConnectionConfig, path, content, message, revision string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := strings.TrimPrefix(path, "entries/")
	if err, ok := f.writeErr[name]; ok {
		return "", err
	}
	existing, exists := f.files[name]
	if exists && revision != existing.sha {
		return "", apperr.Remote("write file", http.StatusConflict, apperr.ErrRevisionConflict)
	}
	if !exists && revision != "" {
		return "", apperr.Remote("write file", http.StatusConflict, apperr.ErrRevisionConflict)
	}
	f.revCounter++
	sha := fmt.Sprintf("sha-%d", f.revCounter)
	f.files[name] = fakeFile{content: content, sha: sha}
	f.messages = append(f.messages, message)
	return sha, nil
}

func (f *fakeRemote) DeleteFile(ctx context.Context, cfg models.ConnectionConfig, path, message, revision string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := strings.TrimPrefix(path, "entries/")
	existing, ok := f.files[name]
	if !ok {
		return apperr.Remote("delete file", http.StatusNotFound, apperr.ErrNotFound)
	}
	if revision != existing.sha {
		return apperr.Remote("delete file", http.StatusConflict, apperr.ErrRevisionConflict)
	}
	delete(f.files, name)
	f.messages = append(f.messages, message)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() models.ConnectionConfig {
	return models.ConnectionConfig{Token: "tok", Owner: "owner", Repo: "journal"}
}

func connected(t *testing.T, fake *fakeRemote) *Coordinator {
	t.Helper()
	fake.addRepo("owner", "journal")
	c := NewCoordinator(func(string) (RemoteStore, error) { return fake, nil }, testLogger())
	if _, err := c.Connect(context.Background(), testConfig()); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestConnect_ExistingRepo(t *testing.T) {
	fake := newFakeRemote()
	fake.addRepo("owner", "journal")
	c := NewCoordinator(func(string) (RemoteStore, error) { return fake, nil }, testLogger())

	repo, err := c.Connect(context.Background(), testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if repo.FullName != "owner/journal" {
		t.Errorf("repo = %+v", repo)
	}
	if c.State() != StateConnected {
		t.Errorf("state = %v", c.State())
	}
}

func TestConnect_CreatesMissingRepo(t *testing.T) {
	fake := newFakeRemote()
	c := NewCoordinator(func(string) (RemoteStore, error) { return fake, nil }, testLogger())

	repo, err := c.Connect(context.Background(), testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if repo == nil || repo.Name != "journal" {
		t.Errorf("repo = %+v", repo)
	}
	if _, ok := fake.repos["owner/journal"]; !ok {
		t.Error("repository was not created")
	}
}

func TestConnect_BadToken(t *testing.T) {
	fake := newFakeRemote()
	fake.validToken = false
	c := NewCoordinator(func(string) (RemoteStore, error) { return fake, nil }, testLogger())

	_, err := c.Connect(context.Background(), testConfig())
	if !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("state = %v, want disconnected after failure", c.State())
	}
	if c.Connected() {
		t.Error("Connected() = true after failed connect")
	}
}

func TestConnect_IncompleteConfig(t *testing.T) {
	c := NewCoordinator(func(string) (RemoteStore, error) { return newFakeRemote(), nil }, testLogger())
	_, err := c.Connect(context.Background(), models.ConnectionConfig{Token: "tok"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestPushOne_NotConnected(t *testing.T) {
	c := NewCoordinator(func(string) (RemoteStore, error) { return newFakeRemote(), nil }, testLogger())
	_, err := c.PushOne(context.Background(), models.JournalFile{ID: "a", Name: "a.md"})
	if !errors.Is(err, apperr.ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestPushOne_Create(t *testing.T) {
	fake := newFakeRemote()
	c := connected(t, fake)
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })

	f := models.JournalFile{ID: "a", Name: "monday.md", Content: "# Monday"}
	pushed, err := c.PushOne(context.Background(), f)
	if err != nil {
		t.Fatal(err)
	}
	if pushed.RemoteRevision == "" {
		t.Error("no revision recorded")
	}
	if pushed.LastSyncedAt == nil || !pushed.LastSyncedAt.Equal(now) {
		t.Errorf("LastSyncedAt = %v", pushed.LastSyncedAt)
	}
	if got := fake.files["monday.md"].content; got != "# Monday" {
		t.Errorf("remote content = %q", got)
	}
	if len(fake.messages) != 1 || fake.messages[0] != "Update monday.md" {
		t.Errorf("messages = %v", fake.messages)
	}
}

func TestPushOne_StaleRevision(t *testing.T) {
	fake := newFakeRemote()
	c := connected(t, fake)
	fake.putFile("monday.md", "theirs")

	f := models.JournalFile{ID: "a", Name: "monday.md", Content: "mine", RemoteRevision: "stale"}
	got, err := c.PushOne(context.Background(), f)
	if !errors.Is(err, apperr.ErrRevisionConflict) {
		t.Fatalf("err = %v, want ErrRevisionConflict", err)
	}
	if got.Content != "mine" || got.RemoteRevision != "stale" {
		t.Errorf("file mutated on failure: %+v", got)
	}
	if fake.files["monday.md"].content != "theirs" {
		t.Error("remote overwritten despite stale revision")
	}
}

func TestPushOne_Draft(t *testing.T) {
	fake := newFakeRemote()
	c := connected(t, fake)

	_, err := c.PushOne(context.Background(), models.JournalFile{ID: models.NewDraftID(), Name: "d.md"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestPushAll_Partition(t *testing.T) {
	fake := newFakeRemote()
	c := connected(t, fake)
	fake.writeErr["bad.md"] = apperr.Remote("write file", http.StatusBadGateway, apperr.ErrNetwork)

	draftID := models.NewDraftID()
	files := []models.JournalFile{
		{ID: "ok", Name: "ok.md", Content: "fine"},
		{ID: "bad", Name: "bad.md", Content: "fails"},
		{ID: draftID, Name: "draft.md", Content: "skip"},
	}

	res, err := c.PushAll(context.Background(), files)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Synced) != 1 || res.Synced[0].Name != "ok.md" {
		t.Errorf("Synced = %+v", res.Synced)
	}
	if len(res.Failed) != 1 || res.Failed[0].File.Name != "bad.md" {
		t.Errorf("Failed = %+v", res.Failed)
	}
	if !errors.Is(res.Failed[0].Err, apperr.ErrNetwork) {
		t.Errorf("failure err = %v", res.Failed[0].Err)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != draftID {
		t.Errorf("Skipped = %v", res.Skipped)
	}
	if c.State() != StateConnected {
		t.Errorf("state = %v after PushAll", c.State())
	}
}

func TestPullAll(t *testing.T) {
	fake := newFakeRemote()
	c := connected(t, fake)
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })

	fake.putFile("2026-01-05-plan.md", "plan")
	fake.putFile("readme.txt", "ignored")

	files, err := c.PullAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("files = %+v", files)
	}
	f := files[0]
	if f.ID != models.IDFromName("2026-01-05-plan.md") {
		t.Errorf("id = %q", f.ID)
	}
	if want := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC); !f.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", f.CreatedAt, want)
	}
	if f.LastSyncedAt == nil || !f.LastSyncedAt.Equal(now) {
		t.Errorf("LastSyncedAt = %v", f.LastSyncedAt)
	}
	if f.RemoteRevision == "" {
		t.Error("no revision on pulled file")
	}
}

func TestPullAll_EmptyRepository(t *testing.T) {
	fake := newFakeRemote()
	c := connected(t, fake)

	files, err := c.PullAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Errorf("files = %+v", files)
	}
}

func TestMerge_ByteEqualKeepsLocal(t *testing.T) {
	synced := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	local := []models.JournalFile{{ID: "local-id", Name: "a.md", Content: "same", UpdatedAt: synced, LastSyncedAt: &synced}}
	remoteFiles := []models.JournalFile{{ID: "a-md", Name: "a.md", Content: "same", UpdatedAt: synced.Add(time.Hour)}}

	merged, conflicts := merge(local, remoteFiles)
	if len(conflicts) != 0 {
		t.Fatalf("conflicts = %+v", conflicts)
	}
	if len(merged) != 1 || merged[0].ID != "local-id" {
		t.Errorf("merged = %+v", merged)
	}
}

func TestMerge_EditedSinceSyncConflicts(t *testing.T) {
	synced := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	edited := synced.Add(time.Hour)
	local := []models.JournalFile{{ID: "l", Name: "a.md", Content: "mine", UpdatedAt: edited, LastSyncedAt: &synced}}
	remoteFiles := []models.JournalFile{{ID: "r", Name: "a.md", Content: "theirs", UpdatedAt: edited.Add(time.Hour)}}

	_, conflicts := merge(local, remoteFiles)
	if len(conflicts) != 1 || conflicts[0].Content != "mine" {
		t.Errorf("conflicts = %+v", conflicts)
	}
}

func TestMerge_NeverSyncedCollisionConflicts(t *testing.T) {
	local := []models.JournalFile{{ID: "l", Name: "a.md", Content: "mine", UpdatedAt: time.Now()}}
	remoteFiles := []models.JournalFile{{ID: "r", Name: "a.md", Content: "theirs", UpdatedAt: time.Now()}}

	_, conflicts := merge(local, remoteFiles)
	if len(conflicts) != 1 {
		t.Errorf("conflicts = %+v", conflicts)
	}
}

func TestMerge_UnsyncedEditRemoteNewerWins(t *testing.T) {
	synced := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	local := []models.JournalFile{{ID: "l", Name: "a.md", Content: "old", UpdatedAt: synced, LastSyncedAt: &synced}}
	remoteFiles := []models.JournalFile{{ID: "r", Name: "a.md", Content: "new", UpdatedAt: synced.Add(time.Hour)}}

	merged, conflicts := merge(local, remoteFiles)
	if len(conflicts) != 0 {
		t.Fatalf("conflicts = %+v", conflicts)
	}
	if len(merged) != 1 || merged[0].Content != "new" {
		t.Errorf("merged = %+v", merged)
	}
}

func TestMerge_OneSidedPassThrough(t *testing.T) {
	synced := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	local := []models.JournalFile{
		{ID: "l", Name: "local-only.md", Content: "l", UpdatedAt: synced},
		{ID: models.NewDraftID(), Name: "draft.md", Content: "d", UpdatedAt: synced},
	}
	remoteFiles := []models.JournalFile{{ID: "r", Name: "remote-only.md", Content: "r", UpdatedAt: synced}}

	merged, conflicts := merge(local, remoteFiles)
	if len(conflicts) != 0 {
		t.Fatalf("conflicts = %+v", conflicts)
	}
	names := map[string]bool{}
	for _, f := range merged {
		names[f.Name] = true
	}
	if !names["local-only.md"] || !names["remote-only.md"] {
		t.Errorf("merged = %+v", merged)
	}
	if names["draft.md"] {
		t.Error("draft leaked into merge")
	}
}

func TestReconcile_ConflictWritesNothing(t *testing.T) {
	fake := newFakeRemote()
	c := connected(t, fake)
	fake.putFile("a.md", "theirs")

	synced := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	local := []models.JournalFile{{ID: "l", Name: "a.md", Content: "mine", UpdatedAt: synced.Add(time.Hour), LastSyncedAt: &synced}}

	res, err := c.Reconcile(context.Background(), local)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Conflicts) != 1 {
		t.Fatalf("conflicts = %+v", res.Conflicts)
	}
	if res.Push != nil {
		t.Error("push happened despite conflicts")
	}
	if len(fake.messages) != 0 {
		t.Errorf("remote writes happened: %v", fake.messages)
	}
	if fake.files["a.md"].content != "theirs" {
		t.Error("remote content changed")
	}
	if got := c.Conflicts(); len(got) != 1 || got[0].Name != "a.md" {
		t.Errorf("stored conflicts = %+v", got)
	}
	if c.State() != StateConnected {
		t.Errorf("state = %v after reconcile", c.State())
	}
}

func TestReconcile_NoConflictsPushesMerged(t *testing.T) {
	fake := newFakeRemote()
	c := connected(t, fake)
	fake.putFile("remote-only.md", "r")

	local := []models.JournalFile{{ID: "l", Name: "local-only.md", Content: "l", UpdatedAt: time.Now()}}

	res, err := c.Reconcile(context.Background(), local)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Conflicts) != 0 {
		t.Fatalf("conflicts = %+v", res.Conflicts)
	}
	if len(res.Merged) != 2 {
		t.Errorf("merged = %+v", res.Merged)
	}
	if _, ok := fake.files["local-only.md"]; !ok {
		t.Error("local-only file not pushed")
	}
	// The pushed copy in Merged carries its new revision.
	for _, f := range res.Merged {
		if f.Name == "local-only.md" && f.RemoteRevision == "" {
			t.Error("merged copy missing pushed revision")
		}
	}
}

func TestReconcile_RejectsOverlap(t *testing.T) {
	fake := newFakeRemote()
	fake.listGate = make(chan struct{})
	c := connected(t, fake)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := c.Reconcile(context.Background(), nil)
		done <- err
	}()
	<-started
	// Wait for the first reconcile to take the busy state.
	for i := 0; i < 100 && c.State() != StateBusy; i++ {
		time.Sleep(time.Millisecond)
	}

	if _, err := c.Reconcile(context.Background(), nil); !errors.Is(err, apperr.ErrBusy) {
		t.Errorf("overlapping reconcile err = %v, want ErrBusy", err)
	}

	close(fake.listGate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if c.State() != StateConnected {
		t.Errorf("state = %v after reconcile finished", c.State())
	}
}

func TestResolveConflicts_ClearsSet(t *testing.T) {
	fake := newFakeRemote()
	c := connected(t, fake)
	fake.putFile("a.md", "theirs")

	// The local copy was never synced, so it has no revision to write
	// with; resolution must still overwrite the remote copy.
	local := []models.JournalFile{{ID: "l", Name: "a.md", Content: "mine", UpdatedAt: time.Now()}}
	if _, err := c.Reconcile(context.Background(), local); err != nil {
		t.Fatal(err)
	}
	if len(c.Conflicts()) != 1 {
		t.Fatal("no conflict recorded")
	}

	resolved := local[0]
	resolved.Content = "merged by hand"
	res, err := c.ResolveConflicts(context.Background(), []models.JournalFile{resolved})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Synced) != 1 {
		t.Fatalf("synced = %+v, failed = %+v", res.Synced, res.Failed)
	}
	if fake.files["a.md"].content != "merged by hand" {
		t.Errorf("remote content = %q", fake.files["a.md"].content)
	}
	if len(c.Conflicts()) != 0 {
		t.Error("conflict set not cleared")
	}
}

func TestDeleteRemote(t *testing.T) {
	fake := newFakeRemote()
	c := connected(t, fake)
	sha := fake.putFile("a.md", "x")

	f := models.JournalFile{ID: "l", Name: "a.md", RemoteRevision: sha}
	if err := c.DeleteRemote(context.Background(), f); err != nil {
		t.Fatal(err)
	}
	if _, ok := fake.files["a.md"]; ok {
		t.Error("remote file survived delete")
	}
	if len(fake.messages) != 1 || fake.messages[0] != "Delete a.md" {
		t.Errorf("messages = %v", fake.messages)
	}
}

func TestDeleteRemote_NeverSynced(t *testing.T) {
	fake := newFakeRemote()
	c := connected(t, fake)

	err := c.DeleteRemote(context.Background(), models.JournalFile{ID: "l", Name: "a.md"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
