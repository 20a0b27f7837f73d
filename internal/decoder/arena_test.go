package decoder

import (
	"testing"
)

func TestArenaLifecycle(t *testing.T) {
	t.Parallel()

	a := NewArena()
	h1 := a.New(1, DefaultConfig(), nil, nil)
	h2 := a.New(2, DefaultConfig(), nil, nil)
	h3 := a.New(3, DefaultConfig(), nil, nil)

	if a.Len() != 3 {
		t.Fatalf("Len = %d, want 3", a.Len())
	}
	if got := a.Get(h2); got == nil || got.Program != 2 {
		t.Fatalf("Get(%d) = %v, want program 2", h2, got)
	}
	if a.Get(h1).Prev != NoHandle || a.Get(h2).Prev != h1 || a.Get(h3).Prev != h2 {
		t.Fatal("Prev does not link sets in creation order")
	}

	a.Release(h2)
	if a.Get(h2) != nil {
		t.Fatal("released handle still resolves")
	}
	if a.Get(h3).Prev != h1 {
		t.Errorf("Prev after release = %d, want %d", a.Get(h3).Prev, h1)
	}
	if _, ok := a.Find(2); ok {
		t.Error("Find returned a released program")
	}

	h4 := a.New(4, DefaultConfig(), nil, nil)
	if h4 != h2 {
		t.Errorf("New reused handle %d, want %d", h4, h2)
	}
	if a.Get(h4).Prev != h3 {
		t.Errorf("Prev = %d, want %d", a.Get(h4).Prev, h3)
	}
	if h, ok := a.Find(4); !ok || h != h4 {
		t.Errorf("Find(4) = %d, %v", h, ok)
	}
}

func TestArenaAllInHandleOrder(t *testing.T) {
	t.Parallel()

	a := NewArena()
	for p := range 4 {
		a.New(p+10, DefaultConfig(), nil, nil)
	}
	a.Release(1)

	var programs []int
	for _, s := range a.All() {
		programs = append(programs, s.Program)
	}
	want := []int{10, 12, 13}
	if len(programs) != len(want) {
		t.Fatalf("All yielded %v, want %v", programs, want)
	}
	for i := range want {
		if programs[i] != want[i] {
			t.Fatalf("All yielded %v, want %v", programs, want)
		}
	}

	for h := range a.All() {
		if h != 0 {
			t.Fatalf("break did not stop iteration at handle %d", h)
		}
		break
	}
}

func TestArenaInvalidHandles(t *testing.T) {
	t.Parallel()

	a := NewArena()
	if a.Get(NoHandle) != nil || a.Get(5) != nil {
		t.Fatal("Get resolved an unknown handle")
	}
	a.Release(7)
	if a.Len() != 0 {
		t.Fatalf("Len = %d, want 0", a.Len())
	}
	a.Flush()
}
