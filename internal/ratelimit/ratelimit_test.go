package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinCapacity(t *testing.T) {
	l := New(5, time.Minute, 5)

	for i := 0; i < 5; i++ {
		d := l.Allow("user-1")
		if !d.Allowed {
			t.Fatalf("request %d: expected allow, got deny (retry after %v)", i+1, d.RetryAfter)
		}
	}
}

func TestDenyWhenExhausted(t *testing.T) {
	l := New(5, time.Minute, 5)

	for i := 0; i < 5; i++ {
		l.Allow("user-1")
	}

	d := l.Allow("user-1")
	if d.Allowed {
		t.Fatal("expected deny after capacity exhausted")
	}
	if d.RetryAfter <= 0 {
		t.Errorf("expected positive retry-after, got %v", d.RetryAfter)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(5, time.Minute, 5)

	for i := 0; i < 5; i++ {
		l.Allow("user-1")
	}

	if d := l.Allow("user-2"); !d.Allowed {
		t.Fatal("expected a fresh bucket for a different key")
	}
}
