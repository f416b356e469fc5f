package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
)

// Storage persists downloaded media and returns the URL path the API serves
// it under.
type Storage interface {
	SaveCover(id int64, data []byte) (string, error)
	SaveFile(id int64, filename string, data []byte) (string, error)
}

// LocalStorage writes media under a root directory on the local disk. The
// returned paths are rooted at /media, which the server mounts as a static
// route over the same directory.
type LocalStorage struct {
	rootDir string
}

func NewLocalStorage(rootDir string) (*LocalStorage, error) {
	for _, sub := range []string{"covers", "files"} {
		if err := os.MkdirAll(filepath.Join(rootDir, sub), 0o755); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	return &LocalStorage{rootDir: rootDir}, nil
}

// SaveCover stores cover image bytes under the given id (covers are keyed
// by the message that carried them). The extension comes from content
// sniffing rather than any filename, since photos arrive without one.
func (s *LocalStorage) SaveCover(id int64, data []byte) (string, error) {
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", errors.Errorf("cover %d is %s, not an image", id, mtype.String())
	}

	name := fmt.Sprintf("%d%s", id, mtype.Extension())
	if err := s.write(filepath.Join("covers", name), data); err != nil {
		return "", err
	}
	return "/media/covers/" + name, nil
}

// SaveFile stores a book file under its original (sanitized) filename,
// prefixed with the book id to keep names unique.
func (s *LocalStorage) SaveFile(id int64, filename string, data []byte) (string, error) {
	name := sanitizeFilename(filename)
	if name == "" {
		name = "file" + mimetype.Detect(data).Extension()
	}
	name = fmt.Sprintf("%d_%s", id, name)

	if err := s.write(filepath.Join("files", name), data); err != nil {
		return "", err
	}
	return "/media/files/" + name, nil
}

func (s *LocalStorage) write(rel string, data []byte) error {
	return errors.WithStack(os.WriteFile(filepath.Join(s.rootDir, rel), data, 0o644))
}

var unsafeFilenameRE = regexp.MustCompile(`[^\pL\pN._ -]+`)

func sanitizeFilename(filename string) string {
	name := filepath.Base(filename)
	name = unsafeFilenameRE.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._ ")
	return name
}
