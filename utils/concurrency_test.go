package utils

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeySetNoDuplicates(t *testing.T) {
	s := NewKeySet()

	added := s.Add("45678912")
	if !added {
		t.Error("first Add should return true")
	}

	added = s.Add("45678912")
	if added {
		t.Error("second Add of same key should return false")
	}

	if !s.Contains("45678912") {
		t.Error("Contains should report the added key")
	}

	if s.Contains("00000000") {
		t.Error("Contains should not report a key that was never added")
	}
}

func TestKeySetConcurrency(t *testing.T) {
	s := NewKeySet()
	var added int64

	pool := NewWorkerPool(10, 0)
	for i := 0; i < 100; i++ {
		pool.Submit(func() {
			if s.Add("same-lot") {
				atomic.AddInt64(&added, 1)
			}
		})
	}
	pool.Wait()

	if added != 1 {
		t.Errorf("expected exactly 1 successful add, got %d", added)
	}
}

func TestWorkerPoolRateLimit(t *testing.T) {
	rateLimitMs := 100
	pool := NewWorkerPool(1, rateLimitMs)

	var mu sync.Mutex
	var timestamps []time.Time

	for i := 0; i < 3; i++ {
		pool.Submit(func() {
			mu.Lock()
			timestamps = append(timestamps, time.Now())
			mu.Unlock()
		})
	}
	pool.Wait()

	// Allow a little scheduler jitter below the nominal spacing.
	min := time.Duration(rateLimitMs-10) * time.Millisecond
	for i := 1; i < len(timestamps); i++ {
		gap := timestamps[i].Sub(timestamps[i-1])
		if gap < min {
			t.Errorf("gap between job %d and %d: %v < minimum %v", i-1, i, gap, min)
		}
	}
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	var inside, maxInside int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("lot-1")
			defer unlock()

			n := atomic.AddInt64(&inside, 1)
			for {
				m := atomic.LoadInt64(&maxInside)
				if n <= m || atomic.CompareAndSwapInt64(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&inside, -1)
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("expected at most 1 holder at a time, saw %d", maxInside)
	}
	if len(km.locks) != 0 {
		t.Errorf("expected lock table to be empty, got %d entries", len(km.locks))
	}
}

func TestRetryConfigStopsOnSuccess(t *testing.T) {
	r := &RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, Logger: NewNopLogger()}

	calls := 0
	err := r.Do("flaky", func() error {
		calls++
		if calls < 2 {
			return errFlaky
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls: got %d, want 2", calls)
	}
}

func TestRetryConfigGivesUp(t *testing.T) {
	r := &RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, Logger: NewNopLogger()}

	calls := 0
	err := r.Do("broken", func() error {
		calls++
		return errFlaky
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 2 {
		t.Errorf("calls: got %d, want 2", calls)
	}
}

type flakyError struct{}

func (flakyError) Error() string { return "flaky" }

var errFlaky = flakyError{}
