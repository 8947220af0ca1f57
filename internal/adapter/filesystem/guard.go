package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/vertextoedge/safefetch/internal/domain"
)

// Resolve proves that relPath names a file strictly under the base directory,
// creating missing parent directories one component at a time. Symlinks met
// along the way must resolve inside the base directory's real path.
func (m *Manager) Resolve(relPath string) (domain.ResolvedPath, error) {
	clean, err := m.checkLexical(relPath)
	if err != nil {
		return domain.ResolvedPath{}, err
	}

	parts := strings.Split(clean, string(filepath.Separator))
	dir := m.baseDir
	for _, part := range parts[:len(parts)-1] {
		dir, err = m.descend(relPath, dir, part)
		if err != nil {
			return domain.ResolvedPath{}, err
		}
	}

	rp := domain.NewResolvedPath(m.baseDir, clean)
	for _, p := range []string{rp.Target, rp.Staging} {
		if err := m.checkLeaf(relPath, p); err != nil {
			return domain.ResolvedPath{}, err
		}
	}
	return rp, nil
}

// checkLexical rejects paths that are unsafe before touching the filesystem.
func (m *Manager) checkLexical(relPath string) (string, error) {
	escape := func(reason string) (string, error) {
		return "", domain.NewPathEscapeError(m.baseDir, relPath, reason)
	}

	switch {
	case relPath == "":
		return escape("empty path")
	case filepath.IsAbs(relPath) || filepath.VolumeName(relPath) != "" || isSeparator(relPath[0]):
		return escape("absolute path")
	case isSeparator(relPath[len(relPath)-1]):
		return escape("path ends with a separator")
	}

	for _, seg := range strings.FieldsFunc(relPath, func(r rune) bool { return r < 0x80 && isSeparator(byte(r)) }) {
		if seg == ".." {
			return escape("parent directory reference")
		}
	}

	clean := filepath.Clean(filepath.FromSlash(relPath))
	if clean == "." {
		return escape("path does not extend base directory")
	}
	return clean, nil
}

// descend moves from dir into its child component, creating it if missing.
// It returns the real path of the child.
func (m *Manager) descend(relPath, dir, name string) (string, error) {
	next := filepath.Join(dir, name)

	info, err := os.Lstat(next)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.Mkdir(next, 0755); err != nil && !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("failed to create directory %s: %w", next, err)
		}
		info, err = os.Lstat(next)
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", next, err)
	}

	if info.Mode()&fs.ModeSymlink != 0 {
		real, err := filepath.EvalSymlinks(next)
		if err != nil {
			return "", domain.NewPathEscapeError(m.baseDir, relPath, "dangling symlink "+next)
		}
		if !m.contains(real) {
			return "", domain.NewPathEscapeError(m.baseDir, relPath, "symlink "+next+" leaves base directory")
		}
		if info, err = os.Stat(real); err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", real, err)
		}
		next = real
	}

	if !info.IsDir() {
		return "", domain.NewPathEscapeError(m.baseDir, relPath, next+" is not a directory")
	}
	return next, nil
}

// checkLeaf validates an existing target or staging path.
func (m *Manager) checkLeaf(relPath, p string) error {
	info, err := os.Lstat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", p, err)
	}

	if info.Mode()&fs.ModeSymlink != 0 {
		real, err := filepath.EvalSymlinks(p)
		if err != nil {
			return domain.NewPathEscapeError(m.baseDir, relPath, "dangling symlink "+p)
		}
		if !m.contains(real) {
			return domain.NewPathEscapeError(m.baseDir, relPath, "symlink "+p+" leaves base directory")
		}
		if info, err = os.Stat(real); err != nil {
			return fmt.Errorf("failed to stat %s: %w", real, err)
		}
	}

	if !info.Mode().IsRegular() {
		return domain.NewPathEscapeError(m.baseDir, relPath, p+" is not a regular file")
	}
	return nil
}

// contains reports whether real is a strict descendant of the base directory.
func (m *Manager) contains(real string) bool {
	rel, err := filepath.Rel(m.baseDir, real)
	if err != nil || rel == "." || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isSeparator(c byte) bool {
	return c == '/' || c == filepath.Separator
}
