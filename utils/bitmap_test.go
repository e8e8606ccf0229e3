package utils

import "testing"

// TestBitmapSetGet 验证位图的设置、读取与计数
func TestBitmapSetGet(t *testing.T) {
	b := NewBitmap(130)
	for _, i := range []int{0, 63, 64, 129} {
		b.Set(i, true)
	}
	b.Set(200, true) // 越界忽略
	if got := b.FlagCount(true); got != 4 {
		t.Fatalf("FlagCount(true) = %d, expected 4", got)
	}
	if got := b.FlagCount(false); got != 126 {
		t.Errorf("FlagCount(false) = %d, expected 126", got)
	}
	b.Set(63, false)
	if b.Get(63) || !b.Get(64) {
		t.Errorf("unexpected bits after clear: 63=%v 64=%v", b.Get(63), b.Get(64))
	}
	var seen []int
	b.ForEach(func(bit int) { seen = append(seen, bit) })
	expected := []int{0, 64, 129}
	if len(seen) != len(expected) {
		t.Fatalf("ForEach visited %v, expected %v", seen, expected)
	}
	for i := range expected {
		if seen[i] != expected[i] {
			t.Errorf("ForEach[%d] = %d, expected %d", i, seen[i], expected[i])
		}
	}
}

// TestBitmapOps 验证交集、并集与差集
func TestBitmapOps(t *testing.T) {
	a, c := NewBitmap(70), NewBitmap(70)
	a.Set(1, true)
	a.Set(65, true)
	c.Set(65, true)
	c.Set(3, true)

	i := NewBitmap(0)
	i.CopyFrom(a)
	i.Intersection(c)
	if i.FlagCount(true) != 1 || !i.Get(65) {
		t.Errorf("intersection incorrect")
	}
	u := NewBitmap(0)
	u.CopyFrom(a)
	u.Union(c)
	if u.FlagCount(true) != 3 {
		t.Errorf("union count = %d, expected 3", u.FlagCount(true))
	}
	a.Difference(c)
	if a.FlagCount(true) != 1 || !a.Get(1) {
		t.Errorf("difference incorrect")
	}
	a.Resize(10)
	if a.FlagCount(true) != 0 || a.Size() != 10 {
		t.Errorf("resize should clear bits")
	}
}
