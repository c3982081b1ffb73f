package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LocalStore stores blobs on the local filesystem under a root directory and
// signs retrieval URLs with HMAC-SHA256.
type LocalStore struct {
	root    string
	secret  []byte
	maxSize int64
	allowed map[string]struct{}
}

// LocalConfig configures a LocalStore.
type LocalConfig struct {
	Root         string
	Secret       string
	MaxSizeBytes int64
	ContentTypes []string
}

// NewLocalStore constructs a LocalStore, creating the root directory.
func NewLocalStore(cfg LocalConfig) (*LocalStore, error) {
	if cfg.Root == "" {
		return nil, errors.New("storage: root directory required")
	}
	if cfg.Secret == "" {
		return nil, errors.New("storage: signing secret required")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	allowed := make(map[string]struct{}, len(cfg.ContentTypes))
	for _, ct := range cfg.ContentTypes {
		allowed[strings.ToLower(strings.TrimSpace(ct))] = struct{}{}
	}
	return &LocalStore{
		root:    cfg.Root,
		secret:  []byte(cfg.Secret),
		maxSize: cfg.MaxSizeBytes,
		allowed: allowed,
	}, nil
}

// Put validates and writes a blob.
func (s *LocalStore) Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (Document, error) {
	if err := validateKey(key); err != nil {
		return Document{}, err
	}
	if s.maxSize > 0 && size > s.maxSize {
		return Document{}, ErrTooLarge
	}
	if len(s.allowed) > 0 {
		if _, ok := s.allowed[strings.ToLower(contentType)]; !ok {
			return Document{}, ErrUnsupportedType
		}
	}

	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Document{}, fmt.Errorf("storage: mkdir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Document{}, fmt.Errorf("storage: create: %w", err)
	}
	limit := size
	if s.maxSize > 0 && s.maxSize < limit {
		limit = s.maxSize
	}
	written, err := io.Copy(f, io.LimitReader(r, limit+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return Document{}, fmt.Errorf("storage: write: %w", err)
	}
	if written > limit {
		_ = os.Remove(path)
		return Document{}, ErrTooLarge
	}

	return Document{Key: key, ContentType: contentType, Size: written, StoredAt: time.Now()}, nil
}

// Open returns a reader for the blob.
func (s *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Delete removes a blob. Deleting a missing blob is not an error so cleanup
// after a failed insert can run unconditionally.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// SignedURL produces a relative URL valid until expiresAt.
func (s *LocalStore) SignedURL(key string, expiresAt time.Time) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	exp := strconv.FormatInt(expiresAt.Unix(), 10)
	return fmt.Sprintf("/documents/%s?exp=%s&sig=%s", key, exp, s.sign(key, exp)), nil
}

// VerifyURL checks the signature and expiry extracted from a signed URL.
func (s *LocalStore) VerifyURL(key, exp, sig string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	if time.Now().Unix() > expUnix {
		return ErrBadSignature
	}
	if !hmac.Equal([]byte(s.sign(key, exp)), []byte(sig)) {
		return ErrBadSignature
	}
	return nil
}

func (s *LocalStore) sign(key, exp string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(key))
	_, _ = mac.Write([]byte{'|'})
	_, _ = mac.Write([]byte(exp))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}
	return nil
}
