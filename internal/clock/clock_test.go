package clock

import (
	"testing"
	"time"
)

func TestElapsedAcrossWrap(t *testing.T) {
	last := Millis(0xFFFFFF00)
	now := last + 0x200 // wraps past zero

	if now > last {
		t.Fatalf("test setup: expected counter to wrap, got now=%d last=%d", now, last)
	}
	if got := Elapsed(now, last); got != 0x200 {
		t.Errorf("Elapsed across wrap = %d, want %d", got, 0x200)
	}
	if !Reached(now, last, 0x200) {
		t.Errorf("Reached should be true at exactly the interval")
	}
	if Reached(now, last, 0x201) {
		t.Errorf("Reached should be false one ms before the interval")
	}
}

func TestFromDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want uint32
	}{
		{time.Second, 1000},
		{-time.Second, 0},
		{time.Hour, 3600000},
		{100 * 24 * time.Hour, ^uint32(0)},
	}
	for _, c := range cases {
		if got := FromDuration(c.in); got != c.want {
			t.Errorf("FromDuration(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestManualAdvance(t *testing.T) {
	m := &Manual{T: 10}
	m.Advance(90)
	if m.Now() != 100 {
		t.Errorf("Now = %d, want 100", m.Now())
	}
}
