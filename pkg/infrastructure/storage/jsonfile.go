package storage

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"shoppinglist/pkg/domain/model"
)

// FileRepository keeps the whole shopping list as one JSON array document on
// disk. It implements model.ItemRepository.
type FileRepository struct {
	path string
}

// NewFileRepository opens the document at path, creating an empty one (and
// its parent directory) if none exists yet.
func NewFileRepository(path string) (*FileRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create data directory")
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
			return nil, errors.Wrap(err, "initialize shopping list document")
		}
	} else if err != nil {
		return nil, errors.Wrap(err, "stat shopping list document")
	}

	return &FileRepository{path: path}, nil
}

func (r *FileRepository) LoadAll() ([]model.Item, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, errors.Wrap(err, "read shopping list document")
	}

	var items []model.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, errors.Wrap(model.ErrCorruptStore, err.Error())
	}
	return items, nil
}

// ReplaceAll overwrites the document with the given collection. The new
// content goes to a temporary file first and is renamed into place, so a
// failed write never leaves a torn document behind.
func (r *FileRepository) ReplaceAll(items []model.Item) error {
	if items == nil {
		items = []model.Item{}
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode shopping list document")
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".shopping-list-*.json")
	if err != nil {
		return errors.Wrap(err, "create temporary document")
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "write shopping list document")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "close temporary document")
	}

	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "replace shopping list document")
	}
	return nil
}
