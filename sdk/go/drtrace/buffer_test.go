package drtrace

import (
	"fmt"
	"sync"
	"testing"
)

func TestBufferFIFO(t *testing.T) {
	b := newBuffer(0)
	for i := 0; i < 5; i++ {
		b.Add(Record{Message: fmt.Sprintf("msg %d", i)})
	}

	out := b.Drain()
	if len(out) != 5 {
		t.Fatalf("drained %d records, want 5", len(out))
	}
	for i, rec := range out {
		if want := fmt.Sprintf("msg %d", i); rec.Message != want {
			t.Errorf("out[%d].Message = %q, want %q", i, rec.Message, want)
		}
	}
	if b.Len() != 0 {
		t.Errorf("buffer should be empty after drain, has %d", b.Len())
	}
}

func TestBufferDropOldest(t *testing.T) {
	b := newBuffer(100)
	for i := 0; i < 1000; i++ {
		b.Add(Record{Message: fmt.Sprintf("msg %d", i)})
		if n := b.Len(); n > 100 {
			t.Fatalf("buffer size %d exceeded capacity", n)
		}
	}

	out := b.Drain()
	if len(out) != 100 {
		t.Fatalf("drained %d records, want 100", len(out))
	}
	// Exactly the most recent 100 survive, in order.
	for i, rec := range out {
		if want := fmt.Sprintf("msg %d", 900+i); rec.Message != want {
			t.Fatalf("out[%d].Message = %q, want %q", i, rec.Message, want)
		}
	}
	if got := b.Dropped(); got != 900 {
		t.Errorf("Dropped() = %d, want 900", got)
	}
}

func TestBufferConcurrentEnqueue(t *testing.T) {
	b := newBuffer(50)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				b.Add(Record{Message: "x"})
			}
		}()
	}
	wg.Wait()

	if n := b.Len(); n != 50 {
		t.Errorf("buffer length %d, want exactly capacity 50", n)
	}
	if drops := b.Dropped(); drops != 8*500-50 {
		t.Errorf("Dropped() = %d, want %d", drops, 8*500-50)
	}
}

func TestBufferDrainDuringEnqueue(t *testing.T) {
	b := newBuffer(0)
	b.Add(Record{Message: "before"})

	first := b.Drain()
	b.Add(Record{Message: "after"})
	second := b.Drain()

	if len(first) != 1 || first[0].Message != "before" {
		t.Errorf("first drain = %v", first)
	}
	if len(second) != 1 || second[0].Message != "after" {
		t.Errorf("second drain = %v", second)
	}
}
