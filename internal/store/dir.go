package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pagescribe/pagescribe/constants"
	"github.com/pagescribe/pagescribe/internal/pages"
)

// DirStore keeps one markdown file per page inside a single output folder,
// named by the page's filename stem so the input index convention carries
// over to the artifacts.
type DirStore struct {
	dir string
}

// NewDirStore creates the output folder if needed and returns a store over it.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output folder: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

// Dir returns the output folder backing the store.
func (s *DirStore) Dir() string {
	return s.dir
}

// Path returns the artifact path for p.
func (s *DirStore) Path(p pages.Page) string {
	return filepath.Join(s.dir, p.Stem+constants.ArtifactExtension)
}

// Exists reports whether p's artifact is present.
func (s *DirStore) Exists(p pages.Page) (bool, error) {
	st, err := os.Stat(s.Path(p))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking artifact: %w", err)
	}
	return !st.IsDir(), nil
}

// Write persists text atomically: temp file in the same folder, then rename.
// A crash mid-write leaves at most a stray temp file, never a partial
// artifact at the canonical path.
func (s *DirStore) Write(p pages.Page, text string) error {
	return writeFileAtomic(s.Path(p), []byte(text), 0o644)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	_ = tmp.Sync() // best-effort durability
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
