package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/urevent360-byte/urevent360-plus/internal/domain"
)

// ErrBlobTooLarge is returned when an upload exceeds the configured size
var ErrBlobTooLarge = errors.New("file exceeds the maximum upload size")

// Blob is an upload in flight
type Blob struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// StoredBlob is what the blob store kept
type StoredBlob struct {
	URL         string
	ContentType string
	Size        int64
}

// BlobStore persists file bytes and returns a stable URL
type BlobStore interface {
	Put(ctx context.Context, key string, blob *Blob) (*StoredBlob, error)
}

// LocalBlobStore writes blobs under a directory served at PublicBaseURL
type LocalBlobStore struct {
	dir      string
	baseURL  string
	maxBytes int64
}

// NewLocalBlobStore creates the upload directory when missing
func NewLocalBlobStore(dir, publicBaseURL string, maxBytes int64) (*LocalBlobStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = 25 << 20
	}
	return &LocalBlobStore{dir: dir, baseURL: strings.TrimRight(publicBaseURL, "/"), maxBytes: maxBytes}, nil
}

// Dir returns the root directory
func (l *LocalBlobStore) Dir() string {
	return l.dir
}

// Put writes the blob to <dir>/<key>. The content type is sniffed from the bytes.
func (l *LocalBlobStore) Put(ctx context.Context, key string, blob *Blob) (*StoredBlob, error) {
	clean := path.Clean("/" + key)[1:]
	if clean == "" || strings.HasPrefix(clean, "..") {
		return nil, fmt.Errorf("invalid blob key %q", key)
	}
	if blob.Size > l.maxBytes {
		return nil, ErrBlobTooLarge
	}

	body := io.LimitReader(blob.Body, l.maxBytes+1)
	var buf bytes.Buffer
	n, err := io.Copy(&buf, body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if n > l.maxBytes {
		return nil, ErrBlobTooLarge
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target := filepath.Join(l.dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	tmp := target + ".part"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("failed to store blob: %w", err)
	}

	contentType := blob.ContentType
	if contentType == "" {
		contentType = mimetype.Detect(buf.Bytes()).String()
	}
	return &StoredBlob{
		URL:         l.baseURL + "/" + clean,
		ContentType: contentType,
		Size:        n,
	}, nil
}

// sniffHead is how many leading bytes are inspected to detect a content type
const sniffHead = 3072

// sniff detects the content type of blob from its first bytes and rewinds the body
func sniff(blob *Blob) (*mimetype.MIME, error) {
	head := make([]byte, sniffHead)
	n, err := io.ReadFull(blob.Body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]
	blob.Body = io.MultiReader(bytes.NewReader(head), blob.Body)
	return mimetype.Detect(head), nil
}

// allowedUpload reports whether files of type mt may be stored as kind
func allowedUpload(kind domain.FileKind, mt *mimetype.MIME) bool {
	switch kind {
	case domain.FileKindGuestUpload, domain.FileKindGallery:
		for _, t := range []string{"image/jpeg", "image/png", "image/gif", "image/webp", "image/heic", "video/mp4", "video/quicktime"} {
			if mt.Is(t) {
				return true
			}
		}
		return false
	case domain.FileKindContract:
		return mt.Is("application/pdf")
	default:
		return true
	}
}
