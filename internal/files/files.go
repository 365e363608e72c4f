// Package files is the rooted file-area collaborator. Every operation
// takes path components already vetted by the wire decoder and resolves
// them strictly under the configured root; nothing here ever touches a
// path outside it.
package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	// ErrPathEscape indicates a path that would resolve outside the
	// file-area root.
	ErrPathEscape = errors.New("path escapes file area")
	// ErrNotFound indicates a missing file or folder.
	ErrNotFound = errors.New("file not found")
	// ErrExists indicates a creation target that already exists.
	ErrExists = errors.New("file already exists")
)

// Area serves a directory tree rooted at a configured path.
type Area struct {
	root string
}

// New opens a file area. The root must exist and be a directory.
func New(root string) (*Area, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve file area root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("open file area root %q: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("file area root %q is not a directory", abs)
	}
	return &Area{root: abs}, nil
}

// Root returns the absolute file-area root.
func (a *Area) Root() string { return a.root }

// resolve maps wire path components to an absolute path under the root.
// The wire decoder already refuses traversal components; this re-checks
// so the area stays safe against any other caller.
func (a *Area) resolve(parts []string) (string, error) {
	for _, part := range parts {
		if part == "" || part == "." || part == ".." ||
			strings.ContainsAny(part, "/\\\x00") {
			return "", ErrPathEscape
		}
	}
	joined := filepath.Join(append([]string{a.root}, parts...)...)
	if joined != a.root && !strings.HasPrefix(joined, a.root+string(filepath.Separator)) {
		return "", ErrPathEscape
	}
	return joined, nil
}

// Entry is one row of a folder listing. Size carries the byte size for
// files and the visible item count for folders.
type Entry struct {
	Name    string
	Size    uint32
	Type    string
	Creator string
	IsDir   bool
}

// Info is the metadata behind GetFileInfo and download headers.
type Info struct {
	Name       string
	Size       int64
	Type       string
	Creator    string
	Comment    string
	IsDir      bool
	ItemCount  int
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// List returns the visible entries of a folder, sorted by name.
// Dotfiles are hidden from clients.
func (a *Area) List(parts []string) ([]Entry, error) {
	dir, err := a.resolve(parts)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, mapOSError(err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if strings.HasPrefix(de.Name(), ".") {
			continue
		}

		entry := Entry{Name: de.Name(), IsDir: de.IsDir()}
		if de.IsDir() {
			entry.Type = FolderTypeCode
			entry.Size = uint32(a.countVisible(filepath.Join(dir, de.Name())))
		} else {
			info, err := de.Info()
			if err != nil {
				continue // raced with a delete
			}
			entry.Type, entry.Creator = TypeForName(de.Name())
			entry.Size = uint32(info.Size())
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// countVisible returns the number of non-hidden entries in dir.
func (a *Area) countVisible(dir string) int {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, de := range dirEntries {
		if !strings.HasPrefix(de.Name(), ".") {
			count++
		}
	}
	return count
}

// Info stats one path. The filesystem has no creation time we can rely
// on across platforms, so both dates report the modification time.
func (a *Area) Info(parts []string) (Info, error) {
	path, err := a.resolve(parts)
	if err != nil {
		return Info{}, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return Info{}, mapOSError(err)
	}

	info := Info{
		Name:       stat.Name(),
		Size:       stat.Size(),
		IsDir:      stat.IsDir(),
		CreatedAt:  stat.ModTime(),
		ModifiedAt: stat.ModTime(),
	}
	if stat.IsDir() {
		info.Type = FolderTypeCode
		info.ItemCount = a.countVisible(path)
	} else {
		info.Type, info.Creator = TypeForName(stat.Name())
	}
	return info, nil
}

// Open opens a file for reading.
func (a *Area) Open(parts []string) (*os.File, error) {
	path, err := a.resolve(parts)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, mapOSError(err)
	}
	return f, nil
}

// Exists reports whether a path is present.
func (a *Area) Exists(parts []string) bool {
	path, err := a.resolve(parts)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Mkdir creates a folder.
func (a *Area) Mkdir(parts []string) error {
	path, err := a.resolve(parts)
	if err != nil {
		return err
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		return mapOSError(err)
	}
	return nil
}

// Delete removes a file or an empty folder. Recursive deletes are
// deliberately not offered over the wire.
func (a *Area) Delete(parts []string) error {
	path, err := a.resolve(parts)
	if err != nil {
		return err
	}
	if path == a.root {
		return ErrPathEscape
	}
	if err := os.Remove(path); err != nil {
		return mapOSError(err)
	}
	return nil
}

// Move relocates a file or folder to another folder inside the area,
// keeping its name. Overwriting an existing target is refused.
func (a *Area) Move(srcParts, dstDirParts []string) error {
	src, err := a.resolve(srcParts)
	if err != nil {
		return err
	}
	dstDir, err := a.resolve(dstDirParts)
	if err != nil {
		return err
	}

	dst := filepath.Join(dstDir, filepath.Base(src))
	if _, err := os.Stat(dst); err == nil {
		return ErrExists
	}
	if err := os.Rename(src, dst); err != nil {
		return mapOSError(err)
	}
	return nil
}

// Upload is an in-progress file write: bytes land in a temporary file
// beside the target and move into place on Commit.
type Upload struct {
	File   *os.File
	target string
}

// CreateUpload starts an upload for the given target path. The target
// must not exist yet.
func (a *Area) CreateUpload(parts []string) (*Upload, error) {
	target, err := a.resolve(parts)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(target); err == nil {
		return nil, ErrExists
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".hpt*")
	if err != nil {
		return nil, mapOSError(err)
	}
	return &Upload{File: tmp, target: target}, nil
}

// Commit flushes the temporary file and renames it into place.
func (u *Upload) Commit() error {
	if err := u.File.Sync(); err != nil {
		u.Abort()
		return fmt.Errorf("sync upload: %w", err)
	}
	if err := u.File.Close(); err != nil {
		_ = os.Remove(u.File.Name())
		return fmt.Errorf("close upload: %w", err)
	}
	if err := os.Rename(u.File.Name(), u.target); err != nil {
		_ = os.Remove(u.File.Name())
		return mapOSError(err)
	}
	return nil
}

// Abort discards the temporary file.
func (u *Upload) Abort() {
	_ = u.File.Close()
	_ = os.Remove(u.File.Name())
}

// mapOSError converts filesystem errors to the package's sentinels
// where a sentinel exists, passing everything else through.
func mapOSError(err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, os.ErrExist):
		return ErrExists
	default:
		return err
	}
}
