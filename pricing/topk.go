package pricing

import (
	"container/heap"
	"math"
	"math/rand/v2"
	"slices"

	"simplex/utils"
)

// topKSize 缓存容量：完全二叉最小堆
const topKSize = 31

type topEntry struct {
	index int
	value float64
}

// topHeap 最小堆，堆顶为缓存中的最小值
type topHeap []topEntry

func (h topHeap) Len() int           { return len(h) }
func (h topHeap) Less(i, j int) bool { return h[i].value < h[j].value }
func (h topHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *topHeap) Push(x any)        { *h = append(*h, x.(topEntry)) }
func (h *topHeap) Pop() any {
	old := *h
	e := old[len(old)-1]
	*h = old[:len(old)-1]
	return e
}

// DynamicMaximum 维护候选位置上的最大值
//
// 缓存保存最大的若干个值，阈值单调不减：严格大于阈值的候选一定在缓存中，
// 小于等于阈值的可能不在。缓存中找不到大于阈值的候选时做一次全扫描重建。
// 最大值有多个精确相等的位置时在所有并列位置中随机选择。
type DynamicMaximum struct {
	values     []float64
	candidates utils.Bitmap
	cache      topHeap
	threshold  float64
	rebuild    bool

	rng  *rand.Rand
	ties []int

	numFullScans int
}

// NewDynamicMaximum 并列选择使用给定种子
func NewDynamicMaximum(seed uint64) *DynamicMaximum {
	return &DynamicMaximum{
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		threshold: math.Inf(-1),
	}
}

// ClearAndResize 清空所有候选，位置范围为[0, n)
func (d *DynamicMaximum) ClearAndResize(n int) {
	if cap(d.values) >= n {
		d.values = d.values[:n]
	} else {
		d.values = make([]float64, n)
	}
	d.candidates.Resize(n)
	d.cache = d.cache[:0]
	d.threshold = math.Inf(-1)
	d.rebuild = false
}

// Size 位置范围
func (d *DynamicMaximum) Size() int { return len(d.values) }

// NumCandidates 当前候选数
func (d *DynamicMaximum) NumCandidates() int { return d.candidates.FlagCount(true) }

// NumFullScans 全扫描重建次数
func (d *DynamicMaximum) NumFullScans() int { return d.numFullScans }

// Threshold 当前阈值
func (d *DynamicMaximum) Threshold() float64 { return d.threshold }

// current 缓存项仍对应候选的当前值
func (d *DynamicMaximum) current(e topEntry) bool {
	return d.candidates.Get(e.index) && d.values[e.index] == e.value
}

func (d *DynamicMaximum) push(index int, value float64) {
	heap.Push(&d.cache, topEntry{index: index, value: value})
	if len(d.cache) > topKSize {
		e := heap.Pop(&d.cache).(topEntry)
		d.threshold = max(d.threshold, e.value)
	}
}

// AddOrUpdate 设置位置的值并标记为候选
func (d *DynamicMaximum) AddOrUpdate(index int, value float64) {
	d.values[index] = value
	d.candidates.Set(index, true)
	if !d.rebuild && value > d.threshold {
		d.push(index, value)
	}
}

// Remove 取消候选（缓存中的旧项在读取时过滤）
func (d *DynamicMaximum) Remove(index int) { d.candidates.Set(index, false) }

// StartDenseUpdates 之后的DenseAddOrUpdate不维护缓存，下次读取时全扫描
func (d *DynamicMaximum) StartDenseUpdates() {
	d.rebuild = true
	d.cache = d.cache[:0]
}

// DenseAddOrUpdate 只写入值与候选标记
func (d *DynamicMaximum) DenseAddOrUpdate(index int, value float64) {
	d.values[index] = value
	d.candidates.Set(index, true)
}

// GetMaximum 返回最大值的位置，没有候选时返回-1
func (d *DynamicMaximum) GetMaximum() int {
	if !d.rebuild {
		best := math.Inf(-1)
		d.ties = d.ties[:0]
		for _, e := range d.cache {
			if !d.current(e) {
				continue
			}
			switch {
			case e.value > best:
				best = e.value
				d.ties = append(d.ties[:0], e.index)
			case e.value == best && !slices.Contains(d.ties, e.index):
				d.ties = append(d.ties, e.index)
			}
		}
		if len(d.ties) > 0 && best > d.threshold {
			return d.pickTie()
		}
	}
	return d.fullScan()
}

// fullScan 重建缓存并在所有候选中求最大值
func (d *DynamicMaximum) fullScan() int {
	d.numFullScans++
	d.rebuild = false
	d.threshold = math.Inf(-1)
	d.cache = d.cache[:0]
	best := math.Inf(-1)
	d.ties = d.ties[:0]
	d.candidates.ForEach(func(i int) {
		v := d.values[i]
		d.push(i, v)
		switch {
		case v > best || len(d.ties) == 0:
			best = v
			d.ties = append(d.ties[:0], i)
		case v == best:
			d.ties = append(d.ties, i)
		}
	})
	if len(d.ties) == 0 {
		return -1
	}
	return d.pickTie()
}

func (d *DynamicMaximum) pickTie() int {
	if len(d.ties) == 1 {
		return d.ties[0]
	}
	return d.ties[d.rng.IntN(len(d.ties))]
}
