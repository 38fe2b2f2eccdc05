// Package storage decides where uploaded attachments live on the shared
// upload directory and how they are referenced from messages.
//
// Files are written by the HTTP layer (gin's SaveUploadedFile); this package
// only names, places and removes them.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// PublicPrefix is the URL prefix uploads are served under.
const PublicPrefix = "/uploads"

const maxNameRunes = 80

// FileStore places uploads in Dir.
type FileStore struct {
	Dir string
	now func() time.Time
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("upload dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &FileStore{Dir: dir, now: time.Now}, nil
}

// Placement is where a new upload goes.
type Placement struct {
	Name string // stored file name
	Path string // absolute or Dir-relative path on disk
	Ref  string // public reference stored on the message
}

// Place returns a unique placement for an upload named original. Names take
// the form <unix-ms>-<uuid>-<sanitized original>, so concurrent uploads never
// collide.
func (s *FileStore) Place(original string) Placement {
	name := fmt.Sprintf("%d-%s-%s", s.now().UnixMilli(), uuid.NewString(), SanitizeName(original))
	return Placement{
		Name: name,
		Path: filepath.Join(s.Dir, name),
		Ref:  PublicPrefix + "/" + name,
	}
}

// Remove deletes a previously placed file. Missing files are not an error.
func (s *FileStore) Remove(p Placement) error {
	if err := os.Remove(p.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// SanitizeName reduces a client-supplied file name to a safe base name:
// directory parts dropped, anything outside letters, digits, '.', '-' and
// '_' replaced with '_', and capped in length. An empty result becomes "file".
func SanitizeName(original string) string {
	base := filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	if base == "." || base == "/" {
		base = ""
	}
	var b strings.Builder
	n := 0
	for _, r := range base {
		if n == maxNameRunes {
			break
		}
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
		n++
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}
