package abort

import (
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFlagTransitionsOnce(t *testing.T) {
	f := New()
	assert.False(t, f.IsSet())

	var wg sync.WaitGroup
	var transitions int32
	var mu sync.Mutex
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.Set() {
				mu.Lock()
				transitions++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.True(t, f.IsSet())
	assert.Equal(t, int32(1), transitions, "只允许一次 false->true 转换")
	assert.False(t, f.Set(), "再次置位不应报告转换")
}

func TestNilFlagReadsUnset(t *testing.T) {
	var f *Flag
	assert.False(t, f.IsSet())
}

func TestNotifySetsFlagOnSignal(t *testing.T) {
	f := New()
	stop := Notify(f, syscall.SIGUSR1)
	defer stop()

	assert.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))
	assert.Eventually(t, f.IsSet, 2*time.Second, 10*time.Millisecond)
}
