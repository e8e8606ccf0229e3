package utils

import "math/bits"

// Bitmap 位图标记实现
// @ 通过位图标记实现对变量状态的管理（可增/可减/相关/基变量等）
type Bitmap struct {
	bits   []uint64
	length int
}

// NewBitmap 创建新的位图实例
func NewBitmap(size int) *Bitmap {
	b := &Bitmap{}
	b.Resize(size)
	return b
}

// Resize 调整大小并清空所有标记
func (b *Bitmap) Resize(size int) {
	words := (size + 63) / 64 // 计算需要的uint64数量
	if cap(b.bits) >= words {
		b.bits = b.bits[:words]
		clear(b.bits)
	} else {
		b.bits = make([]uint64, words)
	}
	b.length = size
}

// Set 设置标记
func (b *Bitmap) Set(bit int, flag bool) {
	if bit < 0 || bit >= b.length {
		return
	}
	if flag {
		b.bits[bit>>6] |= 1 << uint(bit&63)
	} else {
		b.bits[bit>>6] &^= 1 << uint(bit&63)
	}
}

// Get 获取标记
func (b *Bitmap) Get(bit int) bool {
	if bit < 0 || bit >= b.length {
		return false
	}
	return b.bits[bit>>6]&(1<<uint(bit&63)) != 0
}

// Size 位图大小
func (b *Bitmap) Size() int { return b.length }

// ClearAll 清除全部标记
func (b *Bitmap) ClearAll() { clear(b.bits) }

// FlagCount 标记数量
func (b *Bitmap) FlagCount(flag bool) int {
	count := 0
	for _, w := range b.bits {
		count += bits.OnesCount64(w)
	}
	if flag {
		return count
	}
	return b.length - count
}

// CopyFrom 复制另一个位图（大小以other为准）
func (b *Bitmap) CopyFrom(other *Bitmap) {
	b.length = other.length
	b.bits = append(b.bits[:0], other.bits...)
}

// Intersection 与other按位与
func (b *Bitmap) Intersection(other *Bitmap) {
	for i := range b.bits {
		if i < len(other.bits) {
			b.bits[i] &= other.bits[i]
		} else {
			b.bits[i] = 0
		}
	}
}

// Union 与other按位或
func (b *Bitmap) Union(other *Bitmap) {
	for i := range b.bits {
		if i < len(other.bits) {
			b.bits[i] |= other.bits[i]
		}
	}
	b.trim()
}

// Difference 清除other中已标记的位
func (b *Bitmap) Difference(other *Bitmap) {
	for i := range b.bits {
		if i < len(other.bits) {
			b.bits[i] &^= other.bits[i]
		}
	}
}

// ForEach 按升序遍历所有已标记的位
func (b *Bitmap) ForEach(fn func(bit int)) {
	for i, w := range b.bits {
		for w != 0 {
			t := bits.TrailingZeros64(w)
			fn(i<<6 + t)
			w &= w - 1
		}
	}
}

// trim 清除超出length的多余位
func (b *Bitmap) trim() {
	if r := b.length & 63; r != 0 && len(b.bits) > 0 {
		b.bits[len(b.bits)-1] &= (1 << uint(r)) - 1
	}
}
