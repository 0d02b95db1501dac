// Package fsutil builds the filesystems a run works on and copies files
// between them.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// OS is the host filesystem rooted at "/". Paths handed to it should be
// absolute; see Resolve.
type OS struct {
	billy.Filesystem
}

func NewOS() *OS {
	return &OS{Filesystem: osfs.New("/")}
}

func (o *OS) Chmod(name string, mode os.FileMode) error {
	return os.Chmod(name, mode)
}

func (o *OS) Lchown(name string, uid, gid int) error {
	return os.Lchown(name, uid, gid)
}

func (o *OS) Chown(name string, uid, gid int) error {
	return os.Chown(name, uid, gid)
}

func (o *OS) Chtimes(name string, atime, mtime time.Time) error {
	return os.Chtimes(name, atime, mtime)
}

// Resolve turns path into an absolute path for use with OS.
func Resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return abs, nil
}

// IsPDF reports whether name has a .pdf extension in any letter case.
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// Exists reports whether path exists on fsys.
func Exists(fsys billy.Filesystem, path string) (bool, error) {
	_, err := fsys.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
}

// IsDir reports whether path exists on fsys and is a directory.
func IsDir(fsys billy.Filesystem, path string) bool {
	fi, err := fsys.Stat(path)
	return err == nil && fi.IsDir()
}

// CopyFile copies src to dst byte for byte, replacing dst. Permission bits
// and the modification time are carried over when fsys supports
// billy.Change. A partially written dst is left in place; callers remove it.
func CopyFile(fsys billy.Filesystem, src, dst string) error {
	in, err := fsys.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	fi, err := fsys.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%s is a directory", src)
	}

	out, err := fsys.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}

	if ch, ok := fsys.(billy.Change); ok {
		if err := ch.Chmod(dst, fi.Mode().Perm()); err != nil {
			return fmt.Errorf("failed to set mode of %s: %w", dst, err)
		}
		if err := ch.Chtimes(dst, fi.ModTime(), fi.ModTime()); err != nil {
			return fmt.Errorf("failed to set times of %s: %w", dst, err)
		}
	}
	return nil
}

// RemoveIfExists deletes path and ignores a missing file.
func RemoveIfExists(fsys billy.Filesystem, path string) error {
	if err := fsys.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
