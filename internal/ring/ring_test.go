package ring

import "testing"

func TestBufferEvictsOldest(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 5; i++ {
		b.Append(i)
	}
	if b.Len() != 3 {
		t.Fatalf("expected len 3, got %d", b.Len())
	}
	got := b.Last(10)
	want := []int{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Last = %v, want %v", got, want)
		}
	}
	if last := b.Last(1); len(last) != 1 || last[0] != 5 {
		t.Errorf("Last(1) = %v, want [5]", last)
	}
	if b.Last(0) != nil {
		t.Error("Last(0) should be nil")
	}
}

func TestBufferMinimumCapacity(t *testing.T) {
	b := New[string](0)
	b.Append("a")
	b.Append("b")
	if b.Cap() != 1 || b.Len() != 1 || b.Last(1)[0] != "b" {
		t.Errorf("unexpected state: cap=%d len=%d last=%v", b.Cap(), b.Len(), b.Last(1))
	}
}
