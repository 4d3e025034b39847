package pagination

import (
	"errors"
	"testing"
	"time"
)

func TestDecode_Empty(t *testing.T) {
	c, err := Decode("")
	if err != nil || c != nil {
		t.Fatalf("empty cursor: got %v, %v", c, err)
	}
}

func TestDecode_Garbage(t *testing.T) {
	for _, s := range []string{"!!!", "bm90LWpzb24"} {
		if _, err := Decode(s); !errors.Is(err, ErrInvalidCursor) {
			t.Fatalf("Decode(%q): expected ErrInvalidCursor, got %v", s, err)
		}
	}
}

func TestNext(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := Next(3, 5, Cursor{At: at, ID: 1}); got != "" {
		t.Fatalf("partial page must not produce a cursor, got %q", got)
	}

	s := Next(5, 5, Cursor{At: at, ID: 42})
	c, err := Decode(s)
	if err != nil {
		t.Fatal(err)
	}
	if c.ID != 42 || !c.At.Equal(at) {
		t.Fatalf("cursor mismatch: %+v", c)
	}
}

func TestClampLimit(t *testing.T) {
	cases := map[int]int{0: DefaultLimit, -3: DefaultLimit, 10: 10, 1000: MaxLimit}
	for in, want := range cases {
		if got := ClampLimit(in); got != want {
			t.Fatalf("ClampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}
