package models

import (
	"strings"
	"testing"
	"time"
)

func TestIDFromName_Stable(t *testing.T) {
	a := IDFromName("2026-08-31-Morning Pages.md")
	b := IDFromName("2026-08-31-Morning Pages.md")
	if a != b {
		t.Fatalf("ids differ for same name: %q vs %q", a, b)
	}
	if a != "2026-08-31-morning-pages-md" {
		t.Errorf("id = %q", a)
	}
}

func TestIDFromName_TrimsSeparators(t *testing.T) {
	got := IDFromName("--hello!!.md--")
	if strings.HasPrefix(got, "-") || strings.HasSuffix(got, "-") {
		t.Errorf("id not trimmed: %q", got)
	}
}

func TestNewDraftID_IsDraft(t *testing.T) {
	f := JournalFile{ID: NewDraftID()}
	if !f.IsDraft() {
		t.Error("draft id not recognized as draft")
	}
	g := JournalFile{ID: NewFileID()}
	if g.IsDraft() {
		t.Error("file id recognized as draft")
	}
}

func TestEnsureMarkdownName(t *testing.T) {
	if got := EnsureMarkdownName("monday"); got != "monday.md" {
		t.Errorf("got %q", got)
	}
	if got := EnsureMarkdownName("monday.md"); got != "monday.md" {
		t.Errorf("got %q", got)
	}
}

func TestCreatedAtFromName_DatePrefix(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	got := CreatedAtFromName("2026-01-15-notes.md", now)
	want := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCreatedAtFromName_NoPrefix(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	if got := CreatedAtFromName("notes.md", now); !got.Equal(now) {
		t.Errorf("got %v, want fallback %v", got, now)
	}
	// Malformed date falls back too.
	if got := CreatedAtFromName("2026-99-99-notes.md", now); !got.Equal(now) {
		t.Errorf("got %v, want fallback %v", got, now)
	}
}
