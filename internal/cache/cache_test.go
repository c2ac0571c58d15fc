package cache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type payload struct {
	Value int `json:"value"`
}

func TestGetMissWhenAbsent(t *testing.T) {
	c, err := New(t.TempDir(), time.Hour, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	var out payload
	if err := c.Get("missing-key", &out); err == nil {
		t.Fatal("expected a miss for an absent key")
	}
}

func TestGetOrBuildCachesResult(t *testing.T) {
	c, err := New(t.TempDir(), time.Hour, 1<<20)
	if err != nil {
		t.Fatal(err)
	}

	var calls int32
	build := func() (any, error) {
		atomic.AddInt32(&calls, 1)
		return payload{Value: 42}, nil
	}

	v1, err := c.GetOrBuild("k1", build)
	if err != nil {
		t.Fatal(err)
	}
	if v1.(payload).Value != 42 {
		t.Fatalf("unexpected value: %+v", v1)
	}

	var out payload
	if err := c.Get("k1", &out); err != nil {
		t.Fatalf("expected a hit after build, got error: %v", err)
	}
	if out.Value != 42 {
		t.Fatalf("unexpected cached value: %+v", out)
	}
}

func TestGetOrBuildIsAtMostOncePerKeyConcurrently(t *testing.T) {
	c, err := New(t.TempDir(), time.Hour, 1<<20)
	if err != nil {
		t.Fatal(err)
	}

	var calls int32
	build := func() (any, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return payload{Value: 1}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetOrBuild("shared-key", build); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 builder execution, got %d", got)
	}
}

func TestExpiredEntryIsTreatedAsMiss(t *testing.T) {
	c, err := New(t.TempDir(), time.Millisecond, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetOrBuild("k", func() (any, error) { return payload{Value: 1}, nil }); err != nil {
		t.Fatal(err)
	}

	time.Sleep(5 * time.Millisecond)

	var out payload
	if err := c.Get("k", &out); err == nil {
		t.Fatal("expected expired entry to be treated as a miss")
	}
}

func TestFingerprintStableForEquivalentInputs(t *testing.T) {
	a := KeyInputs{Sources: []string{"cursor"}, DaysLookback: 7, Limit: 10, StoreStats: []StoreStatLike{{Path: "b", Size: 1}, {Path: "a", Size: 2}}}
	b := KeyInputs{Sources: []string{"cursor"}, DaysLookback: 7, Limit: 10, StoreStats: []StoreStatLike{{Path: "a", Size: 2}, {Path: "b", Size: 1}}}

	if Fingerprint(a) != Fingerprint(b) {
		t.Fatal("Fingerprint should be order-independent over StoreStats")
	}
}
