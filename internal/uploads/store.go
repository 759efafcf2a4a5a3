package uploads

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrUnsupportedType = errors.New("only jpeg and png images are accepted")
	ErrTooLarge        = errors.New("image exceeds the upload size limit")
)

var (
	jpegMagic = []byte{0xFF, 0xD8}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
)

// DiskStore writes validated image uploads under a single directory with
// generated names, so a client-chosen filename never touches the filesystem.
type DiskStore struct {
	dir      string
	maxBytes int64
}

func NewDiskStore(dir string, maxBytes int64) *DiskStore {
	return &DiskStore{dir: dir, maxBytes: maxBytes}
}

// Save validates and persists one multipart image. The stored basename is
// returned for persisting on the owning record. Content is checked by magic
// bytes; the declared Content-Type and extension alone are not trusted.
func (s *DiskStore) Save(fh *multipart.FileHeader) (string, error) {
	if fh.Size > s.maxBytes {
		return "", ErrTooLarge
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	switch ext {
	case ".jpg", ".jpeg", ".png":
	default:
		return "", ErrUnsupportedType
	}
	// Clients that declare a type must declare an image one. Generic
	// octet-stream declarations fall through to the magic-byte check.
	switch declared := fh.Header.Get("Content-Type"); declared {
	case "", "application/octet-stream", "image/jpeg", "image/png":
	default:
		return "", ErrUnsupportedType
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	head := make([]byte, len(pngMagic))
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if !validImageMagic(head) {
		return "", ErrUnsupportedType
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	name := uuid.NewString() + ext
	dst, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close()

	if _, err := dst.Write(head); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	written, err := io.Copy(dst, io.LimitReader(src, s.maxBytes))
	if err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	if int64(len(head))+written > s.maxBytes {
		_ = os.Remove(filepath.Join(s.dir, name))
		return "", ErrTooLarge
	}
	return name, nil
}

// Remove deletes a stored upload. Missing files are not an error so record
// cleanup stays idempotent.
func (s *DiskStore) Remove(name string) error {
	if name == "" {
		return nil
	}
	// The stored name is always a generated basename; reject anything else.
	if name != filepath.Base(name) {
		return fmt.Errorf("invalid upload name %q", name)
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}

// Dir is the directory served for stored images.
func (s *DiskStore) Dir() string { return s.dir }

func validImageMagic(head []byte) bool {
	return bytes.HasPrefix(head, jpegMagic) || bytes.HasPrefix(head, pngMagic)
}
