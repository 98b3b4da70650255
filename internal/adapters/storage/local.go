package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
	ErrInvalidName     = errors.New("invalid file name")
)

// Kind selects the sub directory and the accepted extensions
type Kind string

const (
	KindAvatar  Kind = "avatars"
	KindCover   Kind = "covers"
	KindContent Kind = "content"
)

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}

var allowedExtensions = map[Kind][]string{
	KindAvatar:  imageExtensions,
	KindCover:   imageExtensions,
	KindContent: {".pdf"},
}

// Allowed reports whether a file name has an extension accepted for kind
func Allowed(kind Kind, name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range allowedExtensions[kind] {
		if e == ext {
			return true
		}
	}
	return false
}

// Local stores uploads on the local filesystem
type Local struct {
	root     string
	maxBytes int64
}

// NewLocal creates the upload directories under root
func NewLocal(root string, maxSizeMB int) (*Local, error) {
	for kind := range allowedExtensions {
		if err := os.MkdirAll(filepath.Join(root, string(kind)), 0o755); err != nil {
			return nil, fmt.Errorf("create upload dir: %w", err)
		}
	}
	return &Local{root: root, maxBytes: int64(maxSizeMB) << 20}, nil
}

// Root returns the base directory served as /uploads
func (l *Local) Root() string {
	return l.root
}

// Save writes r under a uuid-prefixed copy of originalName and returns the
// stored name relative to the root, e.g. "covers/5f0c..._dune.png".
func (l *Local) Save(kind Kind, originalName string, r io.Reader) (string, error) {
	if !Allowed(kind, originalName) {
		return "", ErrUnsupportedType
	}

	name := string(kind) + "/" + uuid.New().String() + "_" + sanitize(originalName)
	path := filepath.Join(l.root, filepath.FromSlash(name))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}

	src := r
	if l.maxBytes > 0 {
		src = io.LimitReader(r, l.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && l.maxBytes > 0 && n > l.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(path)
		if errors.Is(err, ErrTooLarge) {
			return "", err
		}
		return "", fmt.Errorf("write upload: %w", err)
	}

	return name, nil
}

// Remove deletes a stored file. Missing files are ignored.
func (l *Local) Remove(name string) error {
	if name == "" {
		return nil
	}
	path, err := l.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Open opens a stored file for reading
func (l *Local) Open(name string) (*os.File, error) {
	path, err := l.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

func (l *Local) resolve(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == "." || strings.HasPrefix(clean, "..") {
		return "", ErrInvalidName
	}
	return filepath.Join(l.root, clean), nil
}

// sanitize keeps letters, digits, dot, dash and underscore of the base name
func sanitize(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.ToLower(b.String())
}
