package cache

import (
	"testing"
	"time"
)

func TestSetGetDelete(t *testing.T) {
	c := New[int](100 * time.Millisecond)
	defer c.Close()

	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = (%d, %v), want (1, true)", v, ok)
	}
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected a to be deleted")
	}
}

func TestGetScansNewestToOldest(t *testing.T) {
	c := New[string](400 * time.Millisecond)
	defer c.Close()

	c.Set("k", "first")
	time.Sleep(120 * time.Millisecond) // rotate at least once (400/4 = 100ms)
	c.Set("k", "second")

	v, ok := c.Get("k")
	if !ok || v != "second" {
		t.Fatalf("Get(k) = (%q, %v), want (\"second\", true)", v, ok)
	}
}

// Property 5: no entry observable at time t was inserted earlier than
// t - forgetTimeout.
func TestAgeBound(t *testing.T) {
	forget := 200 * time.Millisecond
	c := New[int](forget)
	defer c.Close()

	c.Set("k", 1)
	time.Sleep(forget + 3*forget/numSectors) // well past the eviction window
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected entry to have aged out past forgetTimeout")
	}
}

func TestSectorOf(t *testing.T) {
	c := New[int](400 * time.Millisecond)
	defer c.Close()

	if _, ok := c.SectorOf("missing"); ok {
		t.Fatal("expected SectorOf to report absent for a missing key")
	}
	c.Set("k", 1)
	sector, ok := c.SectorOf("k")
	if !ok || sector != 0 {
		t.Fatalf("SectorOf(k) = (%d, %v), want (0, true) immediately after Set", sector, ok)
	}
}

func TestLen(t *testing.T) {
	c := New[int](time.Second)
	defer c.Close()
	c.Set("a", 1)
	c.Set("b", 2)
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
}
