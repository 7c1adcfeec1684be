package file

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"My Video", "My Video"},
		{`a/b\c:d*e?f"g<h>i|j`, "a_b_c_d_e_f_g_h_i_j"},
		{"   ", "download"},
		{"...", "download"},
		{"tab\there", "tab_here"},
	}
	for _, c := range cases {
		if got := SanitizeName(c.in); got != c.want {
			t.Fatalf("SanitizeName(%q)=%q want %q", c.in, got, c.want)
		}
	}

	long := strings.Repeat("x", 500)
	if got := SanitizeName(long); len(got) != maxNameBytes {
		t.Fatalf("expected long name truncated to %d bytes, got %d", maxNameBytes, len(got))
	}

	wide := SanitizeName(strings.Repeat("日", 100))
	if len(wide) > maxNameBytes {
		t.Fatalf("expected at most %d bytes, got %d", maxNameBytes, len(wide))
	}
	if !utf8.ValidString(wide) {
		t.Fatalf("expected valid UTF-8 after truncation, got %q", wide)
	}
	if wide != strings.Repeat("日", maxNameBytes/3) {
		t.Fatalf("expected %d whole runes, got %q", maxNameBytes/3, wide)
	}
}

func TestUniqueName(t *testing.T) {
	dir := t.TempDir()
	if got := mustUniqueName(t, dir, "clip", "mp4"); got != "clip.mp4" {
		t.Fatalf("expected clip.mp4, got %q", got)
	}
	if err := os.WriteFile(filepath.Join(dir, "clip.mp4"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := mustUniqueName(t, dir, "clip", ".mp4"); got != "clip_1.mp4" {
		t.Fatalf("expected clip_1.mp4, got %q", got)
	}
	if err := os.WriteFile(filepath.Join(dir, "clip_1.mp4"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := mustUniqueName(t, dir, "clip", "mp4"); got != "clip_2.mp4" {
		t.Fatalf("expected clip_2.mp4, got %q", got)
	}
	if got := mustUniqueName(t, dir, "clip", ""); got != "clip" {
		t.Fatalf("expected bare clip without extension, got %q", got)
	}
}

func TestUniqueNameLongMultibyteTitle(t *testing.T) {
	dir := t.TempDir()
	title := strings.Repeat("日", 100)

	type result struct {
		name string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		name, err := UniqueName(dir, title, "mp4")
		done <- result{name, err}
	}()

	var got result
	select {
	case got = <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("UniqueName did not return for a long multibyte title")
	}
	if got.err != nil {
		t.Fatalf("unique name: %v", got.err)
	}
	if len(got.name) > 255 {
		t.Fatalf("expected name within 255 bytes, got %d", len(got.name))
	}
	if !utf8.ValidString(got.name) {
		t.Fatalf("expected valid UTF-8 name, got %q", got.name)
	}
	if !strings.HasSuffix(got.name, ".mp4") {
		t.Fatalf("expected .mp4 extension kept, got %q", got.name)
	}

	path := filepath.Join(dir, got.name)
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("expected name usable on disk: %v", err)
	}
	next := mustUniqueName(t, dir, title, "mp4")
	if next == got.name || len(next) > 255 {
		t.Fatalf("expected a distinct name within limits, got %q", next)
	}
}

func TestUniqueNameReturnsStatErrors(t *testing.T) {
	notDir := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(notDir, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if name, err := UniqueName(notDir, "clip", "mp4"); err == nil {
		t.Fatalf("expected error when dir is a file, got name %q", name)
	}
}

func mustUniqueName(t *testing.T, dir, base, ext string) string {
	t.Helper()
	name, err := UniqueName(dir, base, ext)
	if err != nil {
		t.Fatalf("unique name: %v", err)
	}
	return name
}

func TestMoveFileReplacesDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "video_abc.mp4")
	dst := filepath.Join(dir, "final", "Title.mp4")
	if err := os.WriteFile(src, []byte("media"), 0o600); err != nil {
		t.Fatalf("write src: %v", err)
	}
	if err := EnsureDir(filepath.Dir(dst)); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := os.WriteFile(dst, []byte("old"), 0o600); err != nil {
		t.Fatalf("write dst: %v", err)
	}

	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("move: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read dst: %v", err)
	}
	if string(got) != "media" {
		t.Fatalf("expected moved content, got %q", got)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("expected source removed, stat err=%v", err)
	}
}

func TestCopyAtomic(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "nested", "out.bin")
	if err := CopyAtomic(dest, strings.NewReader("payload")); err != nil {
		t.Fatalf("copy: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil || string(got) != "payload" {
		t.Fatalf("unexpected content %q err=%v", got, err)
	}
}

func TestEnsureDirRejectsEmpty(t *testing.T) {
	if err := EnsureDir(""); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}
