package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kallestad/driftmark/internal/apperr"
	"github.com/kallestad/driftmark/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := NewClient("test-token", srv.URL, logger)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func writeGitHubErr(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"message":%q}`, message)
}

func testCfg() models.ConnectionConfig {
	return models.ConnectionConfig{Token: "test-token", Owner: "octo", Repo: "journal"}
}

func TestValidateToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			writeGitHubErr(w, http.StatusUnauthorized, "bad credentials")
			return
		}
		fmt.Fprint(w, `{"login":"octo"}`)
	})
	c := newTestClient(t, mux)

	if !c.ValidateToken(context.Background()) {
		t.Error("valid token rejected")
	}
}

func TestValidateToken_Invalid(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		writeGitHubErr(w, http.StatusUnauthorized, "bad credentials")
	})
	c := newTestClient(t, mux)

	if c.ValidateToken(context.Background()) {
		t.Error("invalid token accepted")
	}
}

func TestGetRepository(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/journal", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":7,"name":"journal","full_name":"octo/journal","private":true,"owner":{"login":"octo"},"description":"my journal"}`)
	})
	c := newTestClient(t, mux)

	repo, err := c.GetRepository(context.Background(), "octo", "journal")
	if err != nil {
		t.Fatal(err)
	}
	if repo.ID != 7 || repo.FullName != "octo/journal" || repo.Owner != "octo" || !repo.Private {
		t.Errorf("repo = %+v", repo)
	}
}

func TestGetRepository_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/journal", func(w http.ResponseWriter, r *http.Request) {
		writeGitHubErr(w, http.StatusNotFound, "Not Found")
	})
	c := newTestClient(t, mux)

	_, err := c.GetRepository(context.Background(), "octo", "journal")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	var re *apperr.RemoteError
	if !errors.As(err, &re) || re.StatusCode != http.StatusNotFound {
		t.Errorf("err = %#v, want RemoteError with 404", err)
	}
}

func TestCreateRepository(t *testing.T) {
	var created struct {
		Name     string `json:"name"`
		Private  *bool  `json:"private"`
		AutoInit *bool  `json:"auto_init"`
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /user/repos", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&created); err != nil {
			writeGitHubErr(w, http.StatusBadRequest, err.Error())
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id":1,"name":%q,"full_name":"octo/%s","private":true,"owner":{"login":"octo"}}`, created.Name, created.Name)
	})
	c := newTestClient(t, mux)

	repo, err := c.CreateRepository(context.Background(), "journal")
	if err != nil {
		t.Fatal(err)
	}
	if repo.Name != "journal" {
		t.Errorf("repo = %+v", repo)
	}
	if created.Private == nil || !*created.Private {
		t.Error("repository not requested private")
	}
	if created.AutoInit == nil || !*created.AutoInit {
		t.Error("repository not auto-initialized")
	}
}

func TestCreateRepository_NameTaken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /user/repos", func(w http.ResponseWriter, r *http.Request) {
		writeGitHubErr(w, http.StatusUnprocessableEntity, "name already exists on this account")
	})
	c := newTestClient(t, mux)

	_, err := c.CreateRepository(context.Background(), "journal")
	if !errors.Is(err, apperr.ErrRepoExists) {
		t.Fatalf("err = %v, want ErrRepoExists", err)
	}
}

func TestCreateRepository_EmptyName(t *testing.T) {
	c := newTestClient(t, http.NewServeMux())
	if _, err := c.CreateRepository(context.Background(), ""); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestListRepositories(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user/repos", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("sort"); got != "updated" {
			t.Errorf("sort = %q", got)
		}
		fmt.Fprint(w, `[{"id":1,"name":"a","owner":{"login":"octo"}},{"id":2,"name":"b","owner":{"login":"octo"}}]`)
	})
	c := newTestClient(t, mux)

	repos, err := c.ListRepositories(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(repos) != 2 || repos[0].Name != "a" || repos[1].Name != "b" {
		t.Errorf("repos = %+v", repos)
	}
}

func TestCountContributors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/journal/contributors", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"login":"octo"},{"login":"other"}]`)
	})
	c := newTestClient(t, mux)

	n, err := c.CountContributors(context.Background(), "octo", "journal")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("n = %d", n)
	}
}

func TestReadDirectory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/journal/contents/entries", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"name":"a.md","type":"file","sha":"s1"},{"name":"sub","type":"dir","sha":"s2"}]`)
	})
	c := newTestClient(t, mux)

	entries, err := c.ReadDirectory(context.Background(), testCfg(), "entries")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Name != "a.md" || entries[0].Type != "file" || entries[0].SHA != "s1" {
		t.Errorf("entries[0] = %+v", entries[0])
	}
}

func TestReadDirectory_MissingIsEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/journal/contents/entries", func(w http.ResponseWriter, r *http.Request) {
		writeGitHubErr(w, http.StatusNotFound, "Not Found")
	})
	c := newTestClient(t, mux)

	entries, err := c.ReadDirectory(context.Background(), testCfg(), "entries")
	if err != nil {
		t.Fatalf("missing directory should not error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %+v", entries)
	}
}

func TestReadFile(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("# Monday\n\nwrote things"))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/journal/contents/entries/a.md", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"type":"file","name":"a.md","sha":"abc123","encoding":"base64","content":%q}`, encoded)
	})
	c := newTestClient(t, mux)

	data, err := c.ReadFile(context.Background(), testCfg(), "entries/a.md")
	if err != nil {
		t.Fatal(err)
	}
	if data.Content != "# Monday\n\nwrote things" {
		t.Errorf("content = %q", data.Content)
	}
	if data.Revision != "abc123" {
		t.Errorf("revision = %q", data.Revision)
	}
}

func TestReadFile_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/journal/contents/entries/a.md", func(w http.ResponseWriter, r *http.Request) {
		writeGitHubErr(w, http.StatusNotFound, "Not Found")
	})
	c := newTestClient(t, mux)

	if _, err := c.ReadFile(context.Background(), testCfg(), "entries/a.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestWriteFile_Create(t *testing.T) {
	var body struct {
		Message string  `json:"message"`
		Content string  `json:"content"`
		SHA     *string `json:"sha"`
	}
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /repos/octo/journal/contents/entries/a.md", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeGitHubErr(w, http.StatusBadRequest, err.Error())
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"content":{"sha":"new-sha"}}`)
	})
	c := newTestClient(t, mux)

	rev, err := c.WriteFile(context.Background(), testCfg(), "entries/a.md", "hello", "Update a.md", "")
	if err != nil {
		t.Fatal(err)
	}
	if rev != "new-sha" {
		t.Errorf("revision = %q", rev)
	}
	if body.Message != "Update a.md" {
		t.Errorf("message = %q", body.Message)
	}
	if body.SHA != nil {
		t.Error("create sent a sha")
	}
	decoded, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil || string(decoded) != "hello" {
		t.Errorf("content on the wire = %q (%v)", body.Content, err)
	}
}

func TestWriteFile_UpdateSendsRevision(t *testing.T) {
	var body struct {
		SHA *string `json:"sha"`
	}
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /repos/octo/journal/contents/entries/a.md", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeGitHubErr(w, http.StatusBadRequest, err.Error())
			return
		}
		fmt.Fprint(w, `{"content":{"sha":"sha-2"}}`)
	})
	c := newTestClient(t, mux)

	rev, err := c.WriteFile(context.Background(), testCfg(), "entries/a.md", "hello", "Update a.md", "sha-1")
	if err != nil {
		t.Fatal(err)
	}
	if rev != "sha-2" {
		t.Errorf("revision = %q", rev)
	}
	if body.SHA == nil || *body.SHA != "sha-1" {
		t.Errorf("sha on the wire = %v", body.SHA)
	}
}

func TestWriteFile_StaleRevision(t *testing.T) {
	for _, status := range []int{http.StatusConflict, http.StatusUnprocessableEntity} {
		mux := http.NewServeMux()
		mux.HandleFunc("PUT /repos/octo/journal/contents/entries/a.md", func(w http.ResponseWriter, r *http.Request) {
			writeGitHubErr(w, status, "does not match")
		})
		c := newTestClient(t, mux)

		_, err := c.WriteFile(context.Background(), testCfg(), "entries/a.md", "x", "Update a.md", "stale")
		if !errors.Is(err, apperr.ErrRevisionConflict) {
			t.Errorf("status %d: err = %v, want ErrRevisionConflict", status, err)
		}
	}
}

func TestWriteFile_Unauthorized(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /repos/octo/journal/contents/entries/a.md", func(w http.ResponseWriter, r *http.Request) {
		writeGitHubErr(w, http.StatusUnauthorized, "bad credentials")
	})
	c := newTestClient(t, mux)

	_, err := c.WriteFile(context.Background(), testCfg(), "entries/a.md", "x", "Update a.md", "")
	if !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
}

func TestDeleteFile(t *testing.T) {
	var body struct {
		Message string  `json:"message"`
		SHA     *string `json:"sha"`
	}
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /repos/octo/journal/contents/entries/a.md", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeGitHubErr(w, http.StatusBadRequest, err.Error())
			return
		}
		fmt.Fprint(w, `{"content":null}`)
	})
	c := newTestClient(t, mux)

	if err := c.DeleteFile(context.Background(), testCfg(), "entries/a.md", "Delete a.md", "sha-1"); err != nil {
		t.Fatal(err)
	}
	if body.Message != "Delete a.md" {
		t.Errorf("message = %q", body.Message)
	}
	if body.SHA == nil || *body.SHA != "sha-1" {
		t.Errorf("sha on the wire = %v", body.SHA)
	}
}

func TestNetworkFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := NewClient("tok", "http://127.0.0.1:1", logger)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetRepository(context.Background(), "octo", "journal"); !errors.Is(err, apperr.ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
}

func TestEntryPath(t *testing.T) {
	if got := EntryPath("a.md"); got != "entries/a.md" {
		t.Errorf("EntryPath = %q", got)
	}
}
