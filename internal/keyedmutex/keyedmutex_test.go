package keyedmutex

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestForgetsKeys(t *testing.T) {
	k := New()

	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	assert.Equal(t, 2, k.Len())

	unlockA()
	unlockB()
	assert.Zero(t, k.Len())
}

func TestSerialisesSameKey(t *testing.T) {
	k := New()

	unlock := k.Lock("alice")

	acquired := make(chan struct{})

	go func() {
		defer k.Lock("alice")()

		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second holder got the lock while the first still held it")
	case <-time.After(50 * time.Millisecond):
	}

	// other keys are not blocked
	k.Lock("bob")()

	unlock()
	<-acquired
}

func TestConcurrentCounter(t *testing.T) {
	k := New()

	var (
		wg      sync.WaitGroup
		counter int
	)

	for range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()
			defer k.Lock("counter")()

			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}

	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Zero(t, k.Len())
}
