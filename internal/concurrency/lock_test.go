package concurrency

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.With("CA1", func() {
				v := counter
				time.Sleep(time.Microsecond)
				counter = v + 1
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
	assert.Equal(t, 0, m.Len())
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	m := NewKeyedMutex()
	m.Lock("CA1")
	defer m.Unlock("CA1")

	done := make(chan struct{})
	go func() {
		m.With("CA2", func() {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on CA2 blocked behind CA1")
	}
}

func TestKeyedMutex_UnlockUnknownKeyIsNoop(t *testing.T) {
	m := NewKeyedMutex()
	m.Unlock("missing")
	assert.Equal(t, 0, m.Len())
}

func TestSafeGo_RecoversPanic(t *testing.T) {
	got := make(chan any, 1)
	SafeGo("test", func() { panic("boom") }, func(r any) { got <- r })

	select {
	case r := <-got:
		assert.Equal(t, "boom", r)
	case <-time.After(time.Second):
		t.Fatal("panic handler not called")
	}
}
