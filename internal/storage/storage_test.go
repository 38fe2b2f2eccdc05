package storage

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestNewFileStore_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "uploads")
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Fatalf("expected dir to exist: %v", err)
	}
	if s.Dir != dir {
		t.Fatalf("unexpected Dir %q", s.Dir)
	}
	if _, err := NewFileStore("  "); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}

func TestPlace_NameShapeAndUniqueness(t *testing.T) {
	s, _ := NewFileStore(t.TempDir())
	s.now = func() time.Time { return time.UnixMilli(1700000000123) }

	a := s.Place("photo.png")
	b := s.Place("photo.png")
	if a.Name == b.Name {
		t.Fatalf("expected unique names, got %q twice", a.Name)
	}
	re := regexp.MustCompile(`^1700000000123-[0-9a-f-]{36}-photo\.png$`)
	if !re.MatchString(a.Name) {
		t.Fatalf("unexpected name %q", a.Name)
	}
	if a.Ref != "/uploads/"+a.Name {
		t.Fatalf("unexpected ref %q", a.Ref)
	}
	if filepath.Dir(a.Path) != s.Dir {
		t.Fatalf("path %q not inside %q", a.Path, s.Dir)
	}
}

func TestRemove_ExistingAndMissing(t *testing.T) {
	s, _ := NewFileStore(t.TempDir())
	p := s.Place("x.txt")
	if err := os.WriteFile(p.Path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Remove(p); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(p.Path); !os.IsNotExist(err) {
		t.Fatalf("file should be gone, stat err=%v", err)
	}
	if err := s.Remove(p); err != nil {
		t.Fatalf("removing a missing file should succeed, got %v", err)
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"report.pdf":          "report.pdf",
		"../../etc/passwd":    "passwd",
		`C:\Users\me\cv.docx`: "cv.docx",
		"my file (1).txt":     "my_file__1_.txt",
		"":                    "file",
		".env":                "env",
		"...":                 "file",
		"año.jpg":             "año.jpg",
	}
	for in, want := range cases {
		if got := SanitizeName(in); got != want {
			t.Errorf("SanitizeName(%q) = %q; want %q", in, got, want)
		}
	}
	long := strings.Repeat("a", 200) + ".txt"
	if got := SanitizeName(long); len([]rune(got)) != maxNameRunes {
		t.Errorf("expected name capped at %d runes, got %d", maxNameRunes, len([]rune(got)))
	}
}
