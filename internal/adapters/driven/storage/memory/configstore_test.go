package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigStore_TypedGetters(t *testing.T) {
	store := NewConfigStore()
	require.NoError(t, store.Set("store.backend", "sqlite"))
	require.NoError(t, store.Set("store.batch_size", int64(500)))
	require.NoError(t, store.Set("retrieval.top_k", 3.0))
	require.NoError(t, store.Set("embedding.requests_per_second", 2.5))
	require.NoError(t, store.Set("feature", true))
	require.NoError(t, store.Set("tags", []any{"a", 1, "b"}))

	assert.Equal(t, "sqlite", store.GetString("store.backend"))
	assert.Equal(t, 500, store.GetInt("store.batch_size"))
	assert.Equal(t, 3, store.GetInt("retrieval.top_k"))
	assert.Equal(t, 2.5, store.GetFloat("embedding.requests_per_second"))
	assert.Equal(t, 500.0, store.GetFloat("store.batch_size"))
	assert.True(t, store.GetBool("feature"))
	assert.Equal(t, []string{"a", "b"}, store.GetStringSlice("tags"))
}

func TestConfigStore_MissingAndWrongType(t *testing.T) {
	store := NewConfigStore()
	require.NoError(t, store.Set("n", "not a number"))

	_, ok := store.Get("missing")
	assert.False(t, ok)
	assert.Empty(t, store.GetString("missing"))
	assert.Zero(t, store.GetInt("n"))
	assert.Zero(t, store.GetFloat("n"))
	assert.False(t, store.GetBool("n"))
	assert.Nil(t, store.GetStringSlice("n"))
}

func TestConfigStore_NoOpPersistence(t *testing.T) {
	store := NewConfigStore()
	require.NoError(t, store.Set("k", "v"))
	require.NoError(t, store.Save())
	require.NoError(t, store.Load())
	assert.Equal(t, "v", store.GetString("k"))
	assert.Equal(t, ":memory:", store.Path())
}

func TestConfigStore_Concurrency(t *testing.T) {
	store := NewConfigStore()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("key.%d", i)
			_ = store.Set(key, i)
			_ = store.GetInt(key)
		}()
	}
	wg.Wait()

	for i := range 50 {
		assert.Equal(t, i, store.GetInt(fmt.Sprintf("key.%d", i)))
	}
}
