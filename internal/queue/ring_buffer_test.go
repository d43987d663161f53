package queue

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"seer/internal/schema"
)

var unitSeq uint64

func newTestUnit() *schema.FetchUnit {
	n := atomic.AddUint64(&unitSeq, 1)
	return &schema.FetchUnit{
		JobID:      "job-1",
		URL:        fmt.Sprintf("https://feed.example/post/%d", n),
		Depth:      0,
		EnqueuedAt: time.Now().UTC(),
	}
}

func TestNewRingBuffer(t *testing.T) {
	t.Run("with valid size", func(t *testing.T) {
		rb := NewRingBuffer(100)
		if rb.Cap() != 100 {
			t.Errorf("Cap() = %d, want 100", rb.Cap())
		}
		if rb.Len() != 0 {
			t.Errorf("Len() = %d, want 0", rb.Len())
		}
	})

	t.Run("with zero size uses default", func(t *testing.T) {
		rb := NewRingBuffer(0)
		if rb.Cap() != 10000 {
			t.Errorf("Cap() = %d, want 10000 (default)", rb.Cap())
		}
	})

	t.Run("with negative size uses default", func(t *testing.T) {
		rb := NewRingBuffer(-5)
		if rb.Cap() != 10000 {
			t.Errorf("Cap() = %d, want 10000 (default)", rb.Cap())
		}
	})
}

func TestRingBuffer_PushPop(t *testing.T) {
	rb := NewRingBuffer(10)

	t.Run("push single unit", func(t *testing.T) {
		if err := rb.Push(newTestUnit()); err != nil {
			t.Errorf("Push() error = %v", err)
		}
		if rb.Len() != 1 {
			t.Errorf("Len() = %d, want 1", rb.Len())
		}
	})

	t.Run("pop single unit", func(t *testing.T) {
		unit, err := rb.Pop()
		if err != nil {
			t.Errorf("Pop() error = %v", err)
		}
		if unit == nil {
			t.Error("Pop() returned nil unit")
		}
		if rb.Len() != 0 {
			t.Errorf("Len() = %d, want 0", rb.Len())
		}
	})

	t.Run("pop from empty queue", func(t *testing.T) {
		_, err := rb.Pop()
		if err != ErrQueueEmpty {
			t.Errorf("Pop() error = %v, want ErrQueueEmpty", err)
		}
	})
}

func TestRingBuffer_FIFO(t *testing.T) {
	rb := NewRingBuffer(10)

	urls := make([]string, 5)
	for i := 0; i < 5; i++ {
		unit := newTestUnit()
		urls[i] = unit.URL
		if err := rb.Push(unit); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}

	for i := 0; i < 5; i++ {
		unit, err := rb.Pop()
		if err != nil {
			t.Fatalf("Pop() error = %v", err)
		}
		if unit.URL != urls[i] {
			t.Errorf("Pop() returned unit %s, want %s", unit.URL, urls[i])
		}
	}
}

func TestRingBuffer_Full(t *testing.T) {
	rb := NewRingBuffer(3)

	for i := 0; i < 3; i++ {
		if err := rb.Push(newTestUnit()); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}

	if !rb.IsFull() {
		t.Error("IsFull() = false, want true")
	}

	if err := rb.Push(newTestUnit()); err != ErrQueueFull {
		t.Errorf("Push() error = %v, want ErrQueueFull", err)
	}

	metrics := rb.Metrics()
	if metrics.Dropped != 1 {
		t.Errorf("Metrics().Dropped = %d, want 1", metrics.Dropped)
	}
}

func TestRingBuffer_Wrap(t *testing.T) {
	rb := NewRingBuffer(3)

	// Push 3, pop 2
	for i := 0; i < 3; i++ {
		rb.Push(newTestUnit())
	}
	rb.Pop()
	rb.Pop()

	// Push 2 more (should wrap around)
	for i := 0; i < 2; i++ {
		if err := rb.Push(newTestUnit()); err != nil {
			t.Errorf("Push() error = %v after wrap", err)
		}
	}

	if rb.Len() != 3 {
		t.Errorf("Len() = %d, want 3", rb.Len())
	}
}

func TestRingBuffer_IsEmpty(t *testing.T) {
	rb := NewRingBuffer(10)

	if !rb.IsEmpty() {
		t.Error("IsEmpty() = false for new buffer")
	}

	rb.Push(newTestUnit())
	if rb.IsEmpty() {
		t.Error("IsEmpty() = true after Push")
	}

	rb.Pop()
	if !rb.IsEmpty() {
		t.Error("IsEmpty() = false after Pop")
	}
}

func TestRingBuffer_Metrics(t *testing.T) {
	rb := NewRingBuffer(5)

	m := rb.Metrics()
	if m.Pushed != 0 || m.Popped != 0 || m.Dropped != 0 {
		t.Errorf("Initial metrics = %+v, want all zeros", m)
	}

	for i := 0; i < 3; i++ {
		rb.Push(newTestUnit())
	}

	m = rb.Metrics()
	if m.Pushed != 3 {
		t.Errorf("Pushed = %d, want 3", m.Pushed)
	}
	if m.Depth != 3 {
		t.Errorf("Depth = %d, want 3", m.Depth)
	}

	rb.Pop()
	rb.Pop()

	m = rb.Metrics()
	if m.Popped != 2 {
		t.Errorf("Popped = %d, want 2", m.Popped)
	}
	if m.Depth != 1 {
		t.Errorf("Depth = %d, want 1", m.Depth)
	}
}

func TestRingBuffer_Close(t *testing.T) {
	rb := NewRingBuffer(10)
	rb.Push(newTestUnit())

	rb.Close()

	if err := rb.Push(newTestUnit()); err != ErrQueueClosed {
		t.Errorf("Push() error = %v, want ErrQueueClosed", err)
	}

	// Pop remaining units should still work
	unit, err := rb.Pop()
	if err != nil {
		t.Errorf("Pop() error = %v", err)
	}
	if unit == nil {
		t.Error("Pop() returned nil")
	}

	_, err = rb.PopBlocking()
	if err != ErrQueueClosed {
		t.Errorf("PopBlocking() error = %v, want ErrQueueClosed", err)
	}
}

func TestRingBuffer_PopBlocking(t *testing.T) {
	rb := NewRingBuffer(10)

	go func() {
		time.Sleep(50 * time.Millisecond)
		rb.Push(newTestUnit())
	}()

	start := time.Now()
	unit, err := rb.PopBlocking()
	elapsed := time.Since(start)

	if err != nil {
		t.Errorf("PopBlocking() error = %v", err)
	}
	if unit == nil {
		t.Error("PopBlocking() returned nil")
	}
	if elapsed < 40*time.Millisecond {
		t.Errorf("PopBlocking() returned too quickly: %v", elapsed)
	}
}

func TestRingBuffer_PopWithTimeout(t *testing.T) {
	rb := NewRingBuffer(10)

	t.Run("timeout on empty queue", func(t *testing.T) {
		start := time.Now()
		_, err := rb.PopWithTimeout(50 * time.Millisecond)
		elapsed := time.Since(start)

		if err != ErrQueueEmpty {
			t.Errorf("PopWithTimeout() error = %v, want ErrQueueEmpty", err)
		}
		if elapsed < 40*time.Millisecond {
			t.Errorf("PopWithTimeout() returned too quickly: %v", elapsed)
		}
	})

	t.Run("returns unit if available", func(t *testing.T) {
		rb.Push(newTestUnit())

		unit, err := rb.PopWithTimeout(100 * time.Millisecond)
		if err != nil {
			t.Errorf("PopWithTimeout() error = %v", err)
		}
		if unit == nil {
			t.Error("PopWithTimeout() returned nil")
		}
	})
}

func TestRingBuffer_Concurrent(t *testing.T) {
	rb := NewRingBuffer(100)

	const numProducers = 5
	const numConsumers = 3
	const unitsPerProducer = 100

	var wg sync.WaitGroup
	var produced, consumed uint64

	for i := 0; i < numProducers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < unitsPerProducer; j++ {
				// Push and count if successful - drops are expected when queue is full
				if err := rb.Push(newTestUnit()); err == nil {
					atomic.AddUint64(&produced, 1)
				}
			}
		}()
	}

	done := make(chan struct{})
	for i := 0; i < numConsumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					// Drain remaining
					for {
						if _, err := rb.Pop(); err != nil {
							return
						}
						atomic.AddUint64(&consumed, 1)
					}
				default:
					if _, err := rb.Pop(); err == nil {
						atomic.AddUint64(&consumed, 1)
					} else {
						time.Sleep(time.Microsecond)
					}
				}
			}
		}()
	}

	time.Sleep(200 * time.Millisecond)
	close(done)

	wg.Wait()

	metrics := rb.Metrics()
	totalExpected := uint64(numProducers * unitsPerProducer)

	if metrics.Pushed+metrics.Dropped != totalExpected {
		t.Errorf("Pushed(%d) + Dropped(%d) = %d, want %d",
			metrics.Pushed, metrics.Dropped, metrics.Pushed+metrics.Dropped, totalExpected)
	}
}
