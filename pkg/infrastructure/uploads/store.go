package uploads

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"shoppinglist/pkg/domain/model"
)

// DiskStore keeps uploaded attachments as individual files in a content
// directory. It implements model.AttachmentStore. References have the form
// "uploads/<name>" so they double as retrieval URLs.
type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create upload directory")
	}
	return &DiskStore{dir: dir}, nil
}

// Save stores the upload under {field}-{timestamp}-{random}{ext}, keeping the
// original filename's extension. The random component is a UUID, so generated
// names never collide with existing files.
func (s *DiskStore) Save(upload *model.Upload) (string, error) {
	field := upload.Field
	if field == "" {
		field = "file"
	}

	name := fmt.Sprintf("%s-%d-%s%s", field, time.Now().UnixMilli(), uuid.NewString(), filepath.Ext(upload.Name))

	file, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", errors.Wrap(err, "create attachment file")
	}

	if _, err := io.Copy(file, upload.Content); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", errors.Wrap(err, "write attachment file")
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", errors.Wrap(err, "close attachment file")
	}

	return path.Join("uploads", name), nil
}

// Delete removes the referenced file. A reference that no longer resolves is
// treated as already deleted.
func (s *DiskStore) Delete(ref string) error {
	if err := os.Remove(s.resolve(ref)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove attachment file")
	}
	return nil
}

func (s *DiskStore) Open(ref string) (io.ReadCloser, error) {
	file, err := os.Open(s.resolve(ref))
	if os.IsNotExist(err) {
		return nil, model.ErrAttachmentNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "open attachment file")
	}
	return file, nil
}

// resolve maps a reference to its file, stripping any directory components so
// a crafted reference cannot escape the content directory.
func (s *DiskStore) resolve(ref string) string {
	return filepath.Join(s.dir, filepath.Base(ref))
}
