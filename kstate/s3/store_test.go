package s3

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

// Requires a running MinIO instance; run locally with
// `docker run -p 9000:9000 minio/minio server /data`.
func TestS3Store(t *testing.T) {
	t.Skip("requires a live S3-compatible endpoint")

	backend := NewStoreBackend(Config{
		Endpoint:        "localhost:9000",
		Bucket:          "kstreams-test",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		Secure:          false,
	})

	store, err := backend("mystore", 0)
	assert.NoError(t, err)
	defer store.Close()

	assert.NoError(t, store.Set([]byte("a"), []byte("1")))
	assert.NoError(t, store.Set([]byte("b"), []byte("2")))
	assert.NoError(t, store.Set([]byte("c"), []byte("3")))

	v, err := store.Get([]byte("b"))
	assert.NoError(t, err)
	assert.Equal(t, []byte("2"), v)

	_, err = store.Get([]byte("missing"))
	assert.Error(t, err)

	var keys []string
	for k := range store.All() {
		keys = append(keys, string(k))
	}
	assert.Equal(t, 3, len(keys))

	assert.NoError(t, store.Delete([]byte("a")))
	_, err = store.Get([]byte("a"))
	assert.Error(t, err)
}
