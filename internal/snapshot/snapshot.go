// Package snapshot exports a repository to a directory and imports it back.
//
// Layout:
//
//	<dir>/blobs/<blob id>.blob   canonical blob encoding
//	<dir>/commits.json           Manifest, commits in creation order
//
// Files are written atomically. A snapshot is a host-side export, not a
// durable store: commits are replayed through Repo.AddCommit on load.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/renameio"

	"github.com/organization-ai-projects/ai-search/internal/blob"
	"github.com/organization-ai-projects/ai-search/internal/repo"
)

var ErrCorrupt = errors.New("corrupt snapshot")

const (
	blobDir      = "blobs"
	blobExt      = ".blob"
	ManifestName = "commits.json"
)

// BlobPath returns the file holding blob id inside dir.
func BlobPath(dir string, id blob.ID) string {
	return filepath.Join(dir, blobDir, string(id)+blobExt)
}

// Save writes every blob and commit of r into dir.
func Save(dir string, r *repo.Repo) error {
	if err := os.MkdirAll(filepath.Join(dir, blobDir), 0o755); err != nil {
		return err
	}

	store := r.Blobs()
	for _, id := range store.IDs() {
		path := BlobPath(dir, id)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		b, err := store.Get(id)
		if err != nil {
			return err
		}
		if err := renameio.WriteFile(path, b.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write blob %s: %w", id, err)
		}
	}

	m := Manifest{Version: FormatVersion}
	for _, c := range r.History() {
		rec, err := EncodeCommit(c)
		if err != nil {
			return err
		}
		m.Commits = append(m.Commits, rec)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(dir, ManifestName), data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest reads dir's commits.json.
func ReadManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: manifest: %v", ErrCorrupt, err)
	}
	if m.Version != FormatVersion {
		return Manifest{}, fmt.Errorf("%w: manifest version %d, want %d", ErrCorrupt, m.Version, FormatVersion)
	}
	return m, nil
}

// Load rebuilds a repository from dir. Every blob is checked against the
// id in its file name.
func Load(dir string) (*repo.Repo, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}

	r := repo.New()
	entries, err := os.ReadDir(filepath.Join(dir, blobDir))
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, blobExt) {
			continue
		}
		id := blob.ID(strings.TrimSuffix(name, blobExt))
		b, err := readBlob(filepath.Join(dir, blobDir, name), id)
		if err != nil {
			return nil, err
		}
		if _, err := r.PutBlob(b); err != nil {
			return nil, fmt.Errorf("blob %s: %w", id, err)
		}
	}

	for _, rec := range m.Commits {
		c, err := rec.Commit()
		if err != nil {
			return nil, err
		}
		if _, err := r.AddCommit(c); err != nil {
			return nil, fmt.Errorf("%w: commit %s: %v", ErrCorrupt, rec.ID, err)
		}
	}
	return r, nil
}

func readBlob(path string, id blob.ID) (blob.Blob, error) {
	if _, err := id.CID(); err != nil {
		return blob.Blob{}, fmt.Errorf("%w: blob name %s: %v", ErrCorrupt, id, err)
	}
	f, err := openMapped(path)
	if err != nil {
		return blob.Blob{}, err
	}
	defer func() { _ = f.Close() }()

	got, err := blob.ComputeID(f.Data)
	if err != nil {
		return blob.Blob{}, err
	}
	if got != id {
		return blob.Blob{}, fmt.Errorf("%w: blob %s hashes to %s", ErrCorrupt, id, got)
	}
	b, err := blob.Decode(f.Data)
	if err != nil {
		return blob.Blob{}, fmt.Errorf("%w: blob %s: %v", ErrCorrupt, id, err)
	}
	return b, nil
}
