package llm

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/spice-assign/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestAssignmentCache(t *testing.T) {
	t.Run("basic operations", func(t *testing.T) {
		cache := NewAssignmentCache(5 * time.Minute)
		defer cache.Close()

		_, found := cache.get("non-existent")
		assert.False(t, found)

		cache.set("key1", "Coffee & Tea")
		label, found := cache.get("key1")
		assert.True(t, found)
		assert.Equal(t, "Coffee & Tea", label)
		assert.Equal(t, 1, cache.Len())

		cache.Clear()
		assert.Equal(t, 0, cache.Len())
		_, found = cache.get("key1")
		assert.False(t, found)
	})

	t.Run("expiration", func(t *testing.T) {
		cache := NewAssignmentCache(50 * time.Millisecond)
		defer cache.Close()

		cache.set("key2", "Shopping")
		_, found := cache.get("key2")
		assert.True(t, found)

		time.Sleep(100 * time.Millisecond)
		_, found = cache.get("key2")
		assert.False(t, found, "entry should have expired")
	})

	t.Run("close is idempotent", func(t *testing.T) {
		cache := NewAssignmentCache(time.Minute)
		cache.Close()
		assert.NotPanics(t, cache.Close)
	})

	t.Run("concurrent access", func(t *testing.T) {
		cache := NewAssignmentCache(time.Minute)
		defer cache.Close()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				key := fmt.Sprintf("key-%d", id)
				cache.set(key, "Groceries")
				_, _ = cache.get(key)
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 20, cache.Len())
	})
}

func TestCacheKey(t *testing.T) {
	txn := model.TransactionDescriptor{Description: "Safeway", Amount: "10.00", Date: "2024-01-01"}
	opts := optionsKey([]string{"Groceries", "Dining"})

	assert.Equal(t, opts, optionsKey([]string{"Dining", "Groceries"}), "option order must not matter")
	assert.NotEqual(t, opts, optionsKey([]string{"Groceries"}))

	assert.NotEqual(t,
		cacheKey(model.KindCategory, txn, opts),
		cacheKey(model.KindBudget, txn, opts))

	other := txn
	other.Amount = "10.01"
	assert.NotEqual(t,
		cacheKey(model.KindCategory, txn, opts),
		cacheKey(model.KindCategory, other, opts))

	nullSource := txn
	nullSource.Source = model.NullAccount()
	assert.NotEqual(t,
		cacheKey(model.KindCategory, txn, opts),
		cacheKey(model.KindCategory, nullSource, opts))
}
