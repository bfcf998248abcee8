package fsblob

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/harborworks/fieldsync/internal/sync/blob"
	"github.com/stretchr/testify/require"
)

func TestPutOpenStat(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	id, err := st.Put(ctx, blob.NamespaceUploads, strings.NewReader("hello world"), blob.Metadata{
		TenantID:         "t1",
		UploaderID:       "u1",
		OriginalFilename: "greeting.txt",
		ContentType:      "text/plain",
		Kind:             "offline-upload",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	meta, err := st.Stat(ctx, blob.NamespaceUploads, id)
	require.NoError(t, err)
	require.Equal(t, "t1", meta.TenantID)
	require.Equal(t, "greeting.txt", meta.OriginalFilename)
	require.Equal(t, int64(len("hello world")), meta.Size, "size comes from the bytes written, not the caller")
	require.False(t, meta.CreatedAt.IsZero())

	rc, openMeta, err := st.Open(ctx, blob.NamespaceUploads, id)
	require.NoError(t, err)
	defer rc.Close()
	require.Equal(t, meta, openMeta)

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))
}

func TestNamespacesAreIsolated(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	id, err := st.Put(ctx, blob.NamespaceUploads, strings.NewReader("x"), blob.Metadata{TenantID: "t1"})
	require.NoError(t, err)

	_, err = st.Stat(ctx, blob.NamespaceBiometrics, id)
	require.ErrorIs(t, err, blob.ErrNotFound)

	_, _, err = st.Open(ctx, blob.NamespaceDocuments, id)
	require.ErrorIs(t, err, blob.ErrNotFound)
}

func TestCopyPromotesAcrossNamespaces(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	srcID, err := st.Put(ctx, blob.NamespaceUploads, strings.NewReader("face-capture"), blob.Metadata{
		TenantID:         "t1",
		OriginalFilename: "capture.jpg",
		ContentType:      "image/jpeg",
		Kind:             "offline-upload",
	})
	require.NoError(t, err)

	dstID, err := st.Copy(ctx, blob.NamespaceUploads, srcID, blob.NamespaceBiometrics, blob.Metadata{
		TenantID: "t1",
		Kind:     "biometric-photo",
	})
	require.NoError(t, err)
	require.NotEqual(t, srcID, dstID)

	meta, err := st.Stat(ctx, blob.NamespaceBiometrics, dstID)
	require.NoError(t, err)
	require.Equal(t, "biometric-photo", meta.Kind)
	require.Equal(t, "capture.jpg", meta.OriginalFilename, "filename carried over from the source")
	require.Equal(t, int64(len("face-capture")), meta.Size)

	rc, _, err := st.Open(ctx, blob.NamespaceBiometrics, dstID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "face-capture", string(data))

	// The source is untouched.
	_, err = st.Stat(ctx, blob.NamespaceUploads, srcID)
	require.NoError(t, err)
}

func TestCopyMissingSource(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = st.Copy(context.Background(), blob.NamespaceUploads, "no-such-id", blob.NamespaceBiometrics, blob.Metadata{})
	require.ErrorIs(t, err, blob.ErrNotFound)
}
