package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"notesync/internal/collection"
)

const (
	tempFilePrefix = ".tmp-"
	schemasFile    = "_schemas.json"
)

// JSONFile keeps each collection as one pretty-printed JSON object in
// dir/<collection>.json, mapping item key to item, and the schema registry
// in dir/_schemas.json. Every Load reads a whole file and every Save
// rewrites it.
type JSONFile struct {
	dir string
	log *zap.Logger
}

func NewJSONFile(dir string, log *zap.Logger) *JSONFile {
	if log == nil {
		log = zap.NewNop()
	}
	return &JSONFile{dir: dir, log: log}
}

// Path is the file holding the named collection.
func (s *JSONFile) Path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

func (s *JSONFile) Load(_ context.Context, name string) (collection.Items, error) {
	return s.readDoc(s.Path(name)), nil
}

func (s *JSONFile) Save(_ context.Context, name string, items collection.Items) error {
	return s.writeDoc(s.Path(name), items)
}

// Collections lists the collection files that hold at least one item.
func (s *JSONFile) Collections(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".json")
		if e.IsDir() || !ok || collection.CheckName(name) != nil {
			continue
		}
		if len(s.readDoc(s.Path(name))) > 0 {
			names = append(names, name)
		}
	}
	return names, nil
}

func (s *JSONFile) LoadSchemas(_ context.Context) (collection.Items, error) {
	return s.readDoc(filepath.Join(s.dir, schemasFile)), nil
}

func (s *JSONFile) SaveSchemas(_ context.Context, schemas collection.Items) error {
	return s.writeDoc(filepath.Join(s.dir, schemasFile), schemas)
}

func (s *JSONFile) Close() error { return nil }

// readDoc returns an empty document when the file is missing or is not a
// JSON object. Entries are kept as raw bytes whatever they hold, so a Save
// writes them back unchanged.
func (s *JSONFile) readDoc(path string) collection.Items {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("data file unreadable, treating as empty", zap.String("path", path), zap.Error(err))
		}
		return collection.Items{}
	}

	var doc collection.Items
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		s.log.Warn("data file corrupt, treating as empty", zap.String("path", path), zap.Error(err))
		return collection.Items{}
	}
	return doc
}

// writeDoc creates the directory if needed and replaces the file via a
// rename, so readers see either the old document or the new one.
func (s *JSONFile) writeDoc(path string, doc collection.Items) error {
	if doc == nil {
		doc = collection.Items{}
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return writeFileAtomic(path, b, 0o644)
}

func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(filename), tempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", filename, err)
	}
	return nil
}
