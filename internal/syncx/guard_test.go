package syncx

import (
	"sync"
	"testing"
)

func TestGuardUpdateReturnsSnapshot(t *testing.T) {
	g := NewGuard([]int(nil))
	got := g.Update(func(v *[]int) { *v = append(*v, 42) })
	if len(got) != 1 || got[0] != 42 {
		t.Errorf("Update() = %v, want [42]", got)
	}
	if n := len(g.Get()); n != 1 {
		t.Errorf("len(Get()) = %d, want 1", n)
	}
}

func TestGuardConcurrentWrites(t *testing.T) {
	type status struct {
		ticks int
		last  float64
	}
	g := NewGuard(status{})
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			g.Update(func(s *status) { s.ticks++ })
		}()
		go func() {
			defer wg.Done()
			_ = g.Get()
		}()
	}
	wg.Wait()

	if got := g.Get().ticks; got != 100 {
		t.Errorf("ticks = %d, want 100", got)
	}
}

func TestSequencerReordersCompletions(t *testing.T) {
	var got []string
	s := NewSequencer(func(v string) { got = append(got, v) })

	a, b, c := s.Reserve(), s.Reserve(), s.Reserve()
	s.Complete(c, "c")
	s.Complete(b, "b")
	if len(got) != 0 {
		t.Fatalf("delivered %v before slot %d completed", got, a)
	}
	s.Complete(a, "a")

	if want := "abc"; join(got) != want {
		t.Errorf("delivery order = %v, want %s", got, want)
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", s.Pending())
	}
}

func TestSequencerReleaseUnblocks(t *testing.T) {
	var got []string
	s := NewSequencer(func(v string) { got = append(got, v) })

	a, b := s.Reserve(), s.Reserve()
	s.Complete(b, "b")
	s.Release(a)

	if join(got) != "b" {
		t.Errorf("delivered %v, want [b]", got)
	}
}

func TestSequencerFlush(t *testing.T) {
	var got []string
	s := NewSequencer(func(v string) { got = append(got, v) })

	a, b, c := s.Reserve(), s.Reserve(), s.Reserve()
	s.Complete(b, "b")
	s.Complete(c, "c")

	delivered, abandoned := s.Flush()
	if delivered != 2 || abandoned != 1 {
		t.Errorf("Flush() = %d, %d; want 2, 1", delivered, abandoned)
	}
	if join(got) != "bc" {
		t.Errorf("delivered %v, want [b c]", got)
	}
	if s.Complete(a, "late") {
		t.Error("completion after flush should be refused")
	}
	if join(got) != "bc" {
		t.Errorf("late value was delivered: %v", got)
	}
}

func TestSequencerConcurrent(t *testing.T) {
	var got []int
	s := NewSequencer(func(v int) { got = append(got, v) })

	ids := make([]uint64, 50)
	for i := range ids {
		ids[i] = s.Reserve()
	}
	var wg sync.WaitGroup
	for i := len(ids) - 1; i >= 0; i-- {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Complete(ids[i], i)
		}(i)
	}
	wg.Wait()

	if len(got) != 50 {
		t.Fatalf("delivered %d values, want 50", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d] = %d, out of order", i, v)
		}
	}
}

func join(vs []string) string {
	s := ""
	for _, v := range vs {
		s += v
	}
	return s
}
