package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// FSStore implements Store on the local filesystem. Intended for
// development and tests; the public URL is baseURL + "/" + key, assuming
// something else serves the directory.
type FSStore struct {
	dir     string
	baseURL string
}

// NewFS creates a filesystem blob store rooted at dir.
func NewFS(dir, baseURL string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "blob: create dir %s", dir)
	}
	return &FSStore{
		dir:     dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

func (s *FSStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	path := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", eris.Wrapf(err, "blob: create dir for %s", key)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "blob: write %s", key)
	}
	return s.baseURL + "/" + key, nil
}
