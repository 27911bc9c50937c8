package storage

import (
	"sync"
	"testing"
)

func TestRingBufferBasic(t *testing.T) {
	rb := NewRingBuffer[int](3)

	if rb.Size() != 0 || rb.Capacity() != 3 {
		t.Fatalf("unexpected initial state: size %d capacity %d", rb.Size(), rb.Capacity())
	}

	for i := 1; i <= 3; i++ {
		if _, evicted := rb.Add(i); evicted {
			t.Fatalf("unexpected eviction adding %d", i)
		}
	}

	all := rb.GetAll()
	expected := []int{1, 2, 3}
	if len(all) != len(expected) {
		t.Fatalf("expected %d items, got %d", len(expected), len(all))
	}
	for i, val := range all {
		if val != expected[i] {
			t.Errorf("at index %d: expected %d, got %d", i, expected[i], val)
		}
	}
}

func TestRingBufferWrappingReportsEviction(t *testing.T) {
	rb := NewRingBuffer[int](3)
	rb.Add(1)
	rb.Add(2)
	rb.Add(3)

	old, evicted := rb.Add(4)
	if !evicted || old != 1 {
		t.Fatalf("expected 1 evicted, got %d (%v)", old, evicted)
	}
	old, _ = rb.Add(5)
	if old != 2 {
		t.Fatalf("expected 2 evicted, got %d", old)
	}

	expected := []int{3, 4, 5}
	for i, val := range rb.GetAll() {
		if val != expected[i] {
			t.Errorf("at index %d: expected %d, got %d", i, expected[i], val)
		}
	}
	if rb.Total() != 5 {
		t.Errorf("expected total 5, got %d", rb.Total())
	}
}

func TestRingBufferGetRecent(t *testing.T) {
	rb := NewRingBuffer[int](10)
	for i := 0; i < 5; i++ {
		rb.Add(i)
	}

	recent := rb.GetRecent(3)
	expected := []int{2, 3, 4}
	if len(recent) != 3 {
		t.Fatalf("expected 3 recent items, got %d", len(recent))
	}
	for i, val := range recent {
		if val != expected[i] {
			t.Errorf("at index %d: expected %d, got %d", i, expected[i], val)
		}
	}

	if recent = rb.GetRecent(10); len(recent) != 5 {
		t.Fatalf("expected 5 items when requesting more than available, got %d", len(recent))
	}
}

func TestRingBufferFilter(t *testing.T) {
	rb := NewRingBuffer[int](4)
	for i := 0; i < 6; i++ {
		rb.Add(i)
	}
	even := rb.Filter(func(v int) bool { return v%2 == 0 })
	if len(even) != 2 || even[0] != 2 || even[1] != 4 {
		t.Errorf("expected [2 4], got %v", even)
	}
}

func TestRingBufferClear(t *testing.T) {
	rb := NewRingBuffer[int](5)
	rb.Add(1)
	rb.Add(2)
	rb.Add(3)

	rb.Clear()

	if rb.Size() != 0 {
		t.Fatalf("expected size 0 after clear, got %d", rb.Size())
	}
	if all := rb.GetAll(); all != nil {
		t.Fatalf("expected nil after clear, got %v", all)
	}
	if rb.Total() != 3 {
		t.Errorf("clear must keep the total, got %d", rb.Total())
	}

	rb.Add(10)
	if rb.Size() != 1 {
		t.Fatalf("expected size 1 after adding post-clear, got %d", rb.Size())
	}
}

func TestRingBufferConcurrent(t *testing.T) {
	rb := NewRingBuffer[int](1000)

	var wg sync.WaitGroup
	writers, writesPerWriter := 10, 100
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(start int) {
			defer wg.Done()
			for j := 0; j < writesPerWriter; j++ {
				rb.Add(start*writesPerWriter + j)
			}
		}(i)
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = rb.GetAll()
				_ = rb.GetRecent(10)
				_ = rb.Size()
			}
		}()
	}
	wg.Wait()

	if rb.Size() != 1000 {
		t.Fatalf("expected 1000 items after concurrent writes, got %d", rb.Size())
	}
	if rb.Total() != 1000 {
		t.Fatalf("expected total 1000, got %d", rb.Total())
	}
}

func TestRingBufferEmpty(t *testing.T) {
	rb := NewRingBuffer[int](5)

	if all := rb.GetAll(); all != nil {
		t.Errorf("expected nil from GetAll() on empty buffer, got %v", all)
	}
	if recent := rb.GetRecent(3); recent != nil {
		t.Errorf("expected nil from GetRecent() on empty buffer, got %v", recent)
	}
}
