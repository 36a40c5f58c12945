package localstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kallestad/driftmark/internal/models"
)

// Vault holds journal entries as a flat directory of markdown files.
// Entry names are the file names; nesting is not supported.
type Vault struct {
	root string // absolute path to the entries directory
}

// NewVault creates a Vault rooted at the given directory.
// The directory must already exist.
func NewVault(root string) (*Vault, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("vault: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("vault: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault: root is not a directory: %s", abs)
	}
	return &Vault{root: abs}, nil
}

// Root returns the absolute vault directory.
func (v *Vault) Root() string { return v.root }

// safeName validates an entry name and resolves it under the vault root.
// Names with separators or traversal elements are rejected.
func (v *Vault) safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("vault: empty name")
	}
	if name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("vault: invalid entry name: %s", name)
	}
	if !strings.HasSuffix(name, models.MarkdownExt) {
		return "", fmt.Errorf("vault: not a markdown entry: %s", name)
	}
	return filepath.Join(v.root, name), nil
}

// VaultEntry is file metadata from a directory listing.
type VaultEntry struct {
	Name     string
	Checksum string
	ModTime  time.Time
}

// List returns metadata for every markdown entry, sorted by name.
func (v *Vault) List() ([]VaultEntry, error) {
	dirents, err := os.ReadDir(v.root)
	if err != nil {
		return nil, fmt.Errorf("vault: list: %w", err)
	}
	var out []VaultEntry
	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(d.Name(), models.MarkdownExt) {
			continue
		}
		info, err := d.Info()
		if err != nil {
			return nil, fmt.Errorf("vault: stat %s: %w", d.Name(), err)
		}
		data, err := os.ReadFile(filepath.Join(v.root, d.Name()))
		if err != nil {
			return nil, fmt.Errorf("vault: read %s: %w", d.Name(), err)
		}
		out = append(out, VaultEntry{
			Name:     d.Name(),
			Checksum: checksum(data),
			ModTime:  info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Read returns the raw bytes of an entry.
func (v *Vault) Read(name string) ([]byte, error) {
	abs, err := v.safeName(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("vault: read %s: %w", name, err)
	}
	return data, nil
}

// Exists reports whether an entry is present on disk.
func (v *Vault) Exists(name string) bool {
	abs, err := v.safeName(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (v *Vault) Write(name string, content []byte) error {
	abs, err := v.safeName(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(v.root, ".driftmark-tmp-*")
	if err != nil {
		return fmt.Errorf("vault: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("vault: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("vault: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("vault: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("vault: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes an entry from the vault.
func (v *Vault) Delete(name string) error {
	abs, err := v.safeName(name)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("vault: delete %s: %w", name, err)
	}
	return nil
}

// Rename moves an entry to a new name within the vault.
func (v *Vault) Rename(oldName, newName string) error {
	absOld, err := v.safeName(oldName)
	if err != nil {
		return err
	}
	absNew, err := v.safeName(newName)
	if err != nil {
		return err
	}
	if err := os.Rename(absOld, absNew); err != nil {
		return fmt.Errorf("vault: rename: %w", err)
	}
	return nil
}

func checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
