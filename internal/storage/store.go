// Package storage provides scoped document storage with time-limited
// signed retrieval URLs. Requisition attachments, quote documents, and
// invoices all live here, keyed by uploader and parent entity so paths
// never collide and access stays auditable.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document describes a stored blob.
type Document struct {
	Key         string
	ContentType string
	Size        int64
	StoredAt    time.Time
}

// Store abstracts the blob backend.
type Store interface {
	Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (Document, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	SignedURL(key string, expiresAt time.Time) (string, error)
	VerifyURL(key, exp, sig string) error
}

var (
	// ErrNotFound indicates the blob does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrTooLarge indicates the upload exceeds the configured ceiling.
	ErrTooLarge = errors.New("storage: file too large")
	// ErrUnsupportedType indicates a content type outside the allow list.
	ErrUnsupportedType = errors.New("storage: unsupported content type")
	// ErrBadSignature indicates an invalid or expired signed URL.
	ErrBadSignature = errors.New("storage: invalid signature")
	// ErrInvalidKey indicates a malformed or traversal-attempting key.
	ErrInvalidKey = errors.New("storage: invalid key")
)

// Key builds a namespaced blob key from path segments, appending a random
// component so repeated uploads by the same caller never overwrite.
func Key(segments ...string) string {
	parts := make([]string, 0, len(segments)+1)
	for _, s := range segments {
		s = strings.Trim(strings.TrimSpace(s), "/")
		if s == "" {
			continue
		}
		parts = append(parts, s)
	}
	parts = append(parts, uuid.NewString())
	return strings.Join(parts, "/")
}
