package cache

import (
	"errors"
	"testing"
	"time"
)

func TestTTLCache_Expiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache[int64, string](24 * time.Hour)
	c.SetClock(func() time.Time { return now })

	c.Set(1, "a")
	if v, ok := c.Get(1); !ok || v != "a" {
		t.Fatalf("Get = %q, %v", v, ok)
	}

	now = now.Add(23*time.Hour + 59*time.Minute)
	if _, ok := c.Get(1); !ok {
		t.Error("entry expired too early")
	}

	now = now.Add(time.Minute)
	if _, ok := c.Get(1); ok {
		t.Error("entry should expire at ttl")
	}
}

func TestTTLCache_GetOrCompute(t *testing.T) {
	c := NewTTLCache[string, int](time.Hour)
	calls := 0
	compute := func() (int, error) {
		calls++
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrCompute("k", compute)
		if err != nil || v != 42 {
			t.Fatalf("GetOrCompute = %d, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("compute called %d times, want 1", calls)
	}
}

func TestTTLCache_ErrorsNotCached(t *testing.T) {
	c := NewTTLCache[string, int](time.Hour)
	_, err := c.GetOrCompute("k", func() (int, error) { return 0, errors.New("down") })
	if err == nil {
		t.Fatal("expected error")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
}
