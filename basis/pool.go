package basis

import "simplex/sparse"

// columnPool 按键（列号或行号）缓存的列向量
// 存储为紧凑矩阵，slots[key] 为槽位号，-1 表示无效。
type columnPool struct {
	storage sparse.CompactMatrix
	slots   []int
	keys    []int // 当前有效的键
}

// Reset 设置键空间与向量维度，清空所有缓存
func (p *columnPool) Reset(numKeys, numRows int) {
	if len(p.slots) != numKeys {
		p.slots = make([]int, numKeys)
		for i := range p.slots {
			p.slots[i] = -1
		}
		p.keys = p.keys[:0]
	}
	p.Invalidate()
	p.storage.Reset(numRows)
}

// Invalidate 使所有缓存失效
func (p *columnPool) Invalidate() {
	for _, k := range p.keys {
		p.slots[k] = -1
	}
	p.keys = p.keys[:0]
	p.storage.Reset(p.storage.NumRows())
}

// Store 缓存x（覆盖同一键的旧值）
func (p *columnPool) Store(key int, x *sparse.ScatteredColumn) {
	if p.slots[key] < 0 {
		p.keys = append(p.keys, key)
	}
	p.slots[key] = p.storage.AddScatteredColumn(x)
}

// Lookup 取缓存列
func (p *columnPool) Lookup(key int) (sparse.ColumnView, bool) {
	if key < 0 || key >= len(p.slots) || p.slots[key] < 0 {
		return sparse.ColumnView{}, false
	}
	return p.storage.Column(p.slots[key]), true
}
