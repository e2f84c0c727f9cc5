package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/invoice-processor/internal/entity"
	"github.com/joseph-ayodele/invoice-processor/internal/ingest"
)

// Archive is the directory filed invoice documents are moved into. It never overwrites a
// different document: a name collision with other content gets a hash suffix.
type Archive struct {
	dir string
}

func NewArchive(dir string) *Archive {
	return &Archive{dir: dir}
}

// Holds reports whether the archive already contains name with the given content hash,
// either under name itself or under its collision-suffixed variant.
func (a *Archive) Holds(name, sha256Hex string) (string, bool, error) {
	for _, candidate := range []string{name, suffixedName(name, sha256Hex)} {
		path := filepath.Join(a.dir, candidate)
		h, err := ingest.HashFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", false, err
		}
		if h == sha256Hex {
			return path, true, nil
		}
	}
	return "", false, nil
}

// File moves the staged document into the archive and returns its archived path.
func (a *Archive) File(doc entity.Document) (string, error) {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	if path, ok, err := a.Holds(doc.Filename, doc.SHA256); err != nil {
		return "", err
	} else if ok {
		if err := os.Remove(doc.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("remove staged duplicate: %w", err)
		}
		return path, nil
	}

	dest := filepath.Join(a.dir, doc.Filename)
	if _, err := os.Stat(dest); err == nil {
		dest = filepath.Join(a.dir, suffixedName(doc.Filename, doc.SHA256))
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat %s: %w", dest, err)
	}

	if err := moveFile(doc.Path, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// suffixedName turns "inv.pdf" into "inv-<first 8 hex of hash>.pdf".
func suffixedName(name, sha256Hex string) string {
	short := sha256Hex
	if len(short) > 8 {
		short = short[:8]
	}
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "-" + short + ext
}

// moveFile renames src to dst, falling back to copy and remove when they sit on different
// filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("sync %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("close %s: %w", dst, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove %s: %w", src, err)
	}
	return nil
}
