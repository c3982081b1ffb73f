package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(LocalConfig{
		Root:         t.TempDir(),
		Secret:       "test-secret",
		MaxSizeBytes: 64,
		ContentTypes: []string{"application/pdf"},
	})
	require.NoError(t, err)
	return store
}

func TestPutAndOpen(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	key := Key("supplier-7", "quote-11")
	doc, err := store.Put(ctx, key, "application/pdf", strings.NewReader("pdf-bytes"), 9)
	require.NoError(t, err)
	require.Equal(t, key, doc.Key)
	require.EqualValues(t, 9, doc.Size)

	reader, err := store.Open(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	require.NoError(t, reader.Close())
	require.NoError(t, err)
	require.Equal(t, "pdf-bytes", string(data))
}

func TestPutRejectsWrongType(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Put(context.Background(), Key("s", "q"), "image/png", strings.NewReader("x"), 1)
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestPutRejectsOversize(t *testing.T) {
	store := newTestStore(t)
	big := strings.Repeat("a", 100)
	_, err := store.Put(context.Background(), Key("s", "q"), "application/pdf", strings.NewReader(big), int64(len(big)))
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestPutRejectsUndeclaredOversize(t *testing.T) {
	store := newTestStore(t)
	// Declared size lies; the limit reader still catches the overflow.
	big := strings.Repeat("a", 100)
	_, err := store.Put(context.Background(), Key("s", "q"), "application/pdf", strings.NewReader(big), 10)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := Key("s", "q")
	_, err := store.Put(ctx, key, "application/pdf", strings.NewReader("x"), 1)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Open(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSignedURLRoundTrip(t *testing.T) {
	store := newTestStore(t)
	key := Key("s", "q")
	url, err := store.SignedURL(key, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Contains(t, url, "/documents/"+key)

	parts := strings.SplitN(url, "?", 2)
	require.Len(t, parts, 2)
	query := parts[1]
	var exp, sig string
	for _, kv := range strings.Split(query, "&") {
		pair := strings.SplitN(kv, "=", 2)
		switch pair[0] {
		case "exp":
			exp = pair[1]
		case "sig":
			sig = pair[1]
		}
	}
	require.NoError(t, store.VerifyURL(key, exp, sig))
	require.ErrorIs(t, store.VerifyURL(key, exp, "tampered"), ErrBadSignature)
}

func TestSignedURLExpired(t *testing.T) {
	store := newTestStore(t)
	key := Key("s", "q")
	exp := time.Now().Add(-time.Minute)
	sig := store.sign(key, "0")
	_ = exp
	require.ErrorIs(t, store.VerifyURL(key, "0", sig), ErrBadSignature)
}

func TestKeyRejectsTraversal(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Open(context.Background(), "../etc/passwd")
	require.ErrorIs(t, err, ErrInvalidKey)
}
