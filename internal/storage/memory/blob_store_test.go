package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")

	uri, err := store.PutObject(context.Background(), "reports/run/abc.xlsx", "application/xlsx", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://reports/run/abc.xlsx", uri)

	obj, ok := store.Get("reports/run/abc.xlsx")
	require.True(t, ok)
	require.Equal(t, "application/xlsx", obj.ContentType)
	obj.Data[0] = 'C'

	again, _ := store.Get("reports/run/abc.xlsx")
	require.Equal(t, "content", string(again.Data))
	require.Equal(t, 1, store.Len())
}

func TestBlobStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().PutObject(context.Background(), "", "", bytes.NewReader(nil))
	require.Error(t, err)
}
