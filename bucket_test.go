package sgvmem

import "testing"

func newTestObject(order uint8, sgCount int) *SgObject {
	o := newSgObject(Bucketed(order), false)
	o.sgCount = sgCount
	return o
}

func TestBucketInsertSortedOrdersBySgCount(t *testing.T) {
	b := newBucket(2)
	b.insertSorted(newTestObject(2, 3))
	b.insertSorted(newTestObject(2, 1))
	b.insertSorted(newTestObject(2, 2))

	var got []int
	for _, o := range b.free {
		got = append(got, o.sgCount)
	}
	want := []int{1, 2, 3}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("free-list order = %v, want %v", got, want)
		}
	}
	if b.Entries() != 3 {
		t.Errorf("Entries() = %d, want 3", b.Entries())
	}
}

func TestBucketPopReturnsLowestSgCountFirst(t *testing.T) {
	b := newBucket(0)
	b.insertSorted(newTestObject(0, 2))
	b.insertSorted(newTestObject(0, 1))

	first := b.pop()
	if first.sgCount != 1 {
		t.Fatalf("pop() first sgCount = %d, want 1", first.sgCount)
	}
	second := b.pop()
	if second.sgCount != 2 {
		t.Fatalf("pop() second sgCount = %d, want 2", second.sgCount)
	}
	if b.pop() != nil {
		t.Fatal("pop() on empty bucket returned non-nil")
	}
	if b.Entries() != 0 || b.Pages() != 0 {
		t.Errorf("Entries()/Pages() after draining = %d/%d, want 0/0", b.Entries(), b.Pages())
	}
}

func TestBucketRemove(t *testing.T) {
	b := newBucket(1)
	o1 := newTestObject(1, 1)
	o2 := newTestObject(1, 1)
	b.insertSorted(o1)
	b.insertSorted(o2)

	if !b.remove(o1) {
		t.Fatal("remove() = false for a present object")
	}
	if b.remove(o1) {
		t.Fatal("remove() = true for an already-removed object")
	}
	if b.len() != 1 {
		t.Fatalf("len() = %d, want 1", b.len())
	}
}
