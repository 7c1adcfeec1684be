package file

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const appDirPerm os.FileMode = 0o750

const (
	// maxNameBytes leaves room for a counter suffix and extension inside the
	// 255 byte name limit of common filesystems.
	maxNameBytes = 200
	maxExtBytes  = 16
	// maxUniqueAttempts bounds the search for a free name.
	maxUniqueAttempts = 10000
)

var unsafeNameChars = regexp.MustCompile(`[\\/*?:"<>|\x00-\x1f]`)

// EnsureDir creates the directory if it does not exist.
func EnsureDir(dirPath string) error {
	if dirPath == "" {
		return errors.New("empty dir path")
	}
	if err := os.MkdirAll(dirPath, appDirPerm); err != nil { //nolint:gosec // app-owned data dir
		return fmt.Errorf("ensure dir: %w", err)
	}
	return nil
}

// SanitizeName replaces characters that are not allowed in file names and
// truncates the result to maxNameBytes on a rune boundary.
// An empty result falls back to "download".
func SanitizeName(name string) string {
	cleaned := strings.ToValidUTF8(name, "_")
	cleaned = strings.TrimSpace(unsafeNameChars.ReplaceAllString(cleaned, "_"))
	cleaned = strings.Trim(cleaned, ". ")
	cleaned = strings.TrimSpace(truncateBytes(cleaned, maxNameBytes))
	if cleaned == "" {
		return "download"
	}
	return cleaned
}

// UniqueName returns "<base>.<ext>" or, if taken inside dir, the first free
// "<base>_<n>.<ext>". Only existing names are skipped; any other stat error
// is returned.
func UniqueName(dir, base, ext string) (string, error) {
	base = SanitizeName(base)
	ext = strings.TrimPrefix(ext, ".")
	ext = truncateBytes(unsafeNameChars.ReplaceAllString(strings.ToValidUTF8(ext, "_"), "_"), maxExtBytes)

	candidate := joinName(base, "", ext)
	for counter := 1; counter <= maxUniqueAttempts; counter++ {
		_, err := os.Stat(filepath.Join(dir, candidate))
		switch {
		case os.IsNotExist(err):
			return candidate, nil
		case err != nil:
			return "", fmt.Errorf("check name %q: %w", candidate, err)
		}
		candidate = joinName(base, "_"+strconv.Itoa(counter), ext)
	}
	return "", fmt.Errorf("no free name for %q after %d attempts", base, maxUniqueAttempts)
}

func joinName(base, suffix, ext string) string {
	if ext == "" {
		return base + suffix
	}
	return base + suffix + "." + ext
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// MoveFile renames src to dst, replacing dst. When a rename is not possible
// (different filesystems) the content is copied atomically and src removed.
func MoveFile(src, dst string) error {
	if src == "" || dst == "" {
		return errors.New("empty path")
	}
	if err := EnsureDir(filepath.Dir(dst)); err != nil {
		return err
	}
	if _, err := os.Stat(dst); err == nil {
		_ = os.Remove(dst)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src) //nolint:gosec // path is produced by the downloader
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = in.Close() }()
	if err := CopyAtomic(dst, in); err != nil {
		return err
	}
	_ = in.Close()
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove source: %w", err)
	}
	return nil
}

// CopyAtomic writes data provided by the reader to the destination file atomically.
func CopyAtomic(filename string, reader io.Reader) error {
	dir := filepath.Dir(filename)
	if err := EnsureDir(dir); err != nil {
		return err
	}
	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tempFile.Name()
	if _, err := io.Copy(tempFile, reader); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("copy to temp: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, filename); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp: %w", err)
	}
	return nil
}
