package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/armatrix/mcp-bridge-go/conversation"
)

// FileStore persists documents as JSON files.
//
// With an empty directory, names are used as plain file paths relative to
// the working directory, absolute paths included. With a directory, names
// must be local paths inside it.
type FileStore struct {
	dir string
}

var _ Lister = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at dir. A non-empty dir is created
// if it does not exist.
func NewFileStore(dir string) (*FileStore, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the root directory, or "" when unrestricted.
func (f *FileStore) Dir() string { return f.dir }

// Save writes doc to the named file, replacing any existing content.
func (f *FileStore) Save(_ context.Context, name string, doc Document) error {
	path, err := f.path(name)
	if err != nil {
		return err
	}
	if doc.History == nil {
		doc.History = conversation.History{}
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// Load reads the named document.
func (f *FileStore) Load(_ context.Context, name string) (Document, error) {
	path, err := f.path(name)
	if err != nil {
		return Document{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Document{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return Document{}, fmt.Errorf("read session file: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %s: %w", ErrMalformed, name, err)
	}
	return doc, nil
}

// Delete removes the named document.
func (f *FileStore) Delete(_ context.Context, name string) error {
	path, err := f.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// List returns the names of the .json files in the store directory, sorted.
func (f *FileStore) List(_ context.Context) ([]string, error) {
	dir := f.dir
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read session dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	slices.Sort(names)
	return names, nil
}

func (f *FileStore) path(name string) (string, error) {
	if name == "" {
		return "", ErrInvalidName
	}
	if f.dir == "" {
		return name, nil
	}
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %s", ErrInvalidName, name)
	}
	return filepath.Join(f.dir, name), nil
}
