package safe_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/autom8ter/odm/internal/safe"
	"github.com/spf13/cast"
	"github.com/stretchr/testify/assert"
)

func Test(t *testing.T) {
	m := safe.NewMap[map[string]any](nil)
	assert.False(t, m.Exists("1"))
	for i := 0; i < 10; i++ {
		m.Set(fmt.Sprint(i), map[string]any{
			"value": i,
		})
	}
	assert.Equal(t, 10, m.Len())
	for i := 0; i < 10; i++ {
		assert.True(t, m.Exists(fmt.Sprint(i)))
		entry, ok := m.Get(fmt.Sprint(i))
		assert.True(t, ok)
		assert.Equal(t, entry["value"], i)
	}
	var keys []string
	m.Range(func(key string, entry map[string]any) bool {
		assert.Equal(t, entry["value"], cast.ToInt(key))
		keys = append(keys, key)
		return true
	})
	assert.Equal(t, []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}, keys)

	for i := 0; i < 10; i++ {
		m.Del(fmt.Sprint(i))
	}
	for i := 0; i < 10; i++ {
		assert.False(t, m.Exists(fmt.Sprint(i)))
	}
	t.Run("setnx", func(t *testing.T) {
		var (
			wg    sync.WaitGroup
			calls = 0
			mu    sync.Mutex
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.SetNX("once", func() map[string]any {
					mu.Lock()
					calls++
					mu.Unlock()
					return map[string]any{"message": "hello world"}
				})
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, calls)
		entry, _ := m.Get("once")
		assert.Equal(t, "hello world", entry["message"])
	})
}
