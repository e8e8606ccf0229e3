package sparse

import (
	"slices"

	"simplex/utils"
)

// RowKind 以行为下标的向量（即一列）
type RowKind struct{}

// ColKind 以列为下标的向量（即一行）
type ColKind struct{}

// Kind 下标种类约束
type Kind interface{ RowKind | ColKind }

// Scattered 分散向量：稠密值数组 + 非零位置列表
//
// NonZeros 是非零位置的超集：可能包含实际为零的位置，但不会遗漏真正的非零元。
// NonZeros 为空表示位置未知，按稠密方式处理。
type Scattered[K Kind] struct {
	Values            []float64
	NonZeros          []int
	NonZerosAreSorted bool

	mask utils.Bitmap // 非零标记（使用后必须全部清零）
}

// ScatteredColumn 按行下标的分散向量
type ScatteredColumn = Scattered[RowKind]

// ScatteredRow 按列下标的分散向量
type ScatteredRow = Scattered[ColKind]

// ColumnAsRow 将列向量按行向量解释（共享存储）
func ColumnAsRow(c *ScatteredColumn) *ScatteredRow { return (*ScatteredRow)(c) }

// RowAsColumn 将行向量按列向量解释（共享存储）
func RowAsColumn(r *ScatteredRow) *ScatteredColumn { return (*ScatteredColumn)(r) }

// Size 维度
func (v *Scattered[K]) Size() int { return len(v.Values) }

// ClearAndResize 清零并调整维度
// 稀疏时只清除记录的非零位置，否则整体清零。
func (v *Scattered[K]) ClearAndResize(n int) {
	if len(v.NonZeros) > 0 && len(v.NonZeros) < len(v.Values)/10 && len(v.Values) >= n {
		for _, i := range v.NonZeros {
			v.Values[i] = 0
		}
		if len(v.Values) > n {
			clear(v.Values[n:])
		}
		v.Values = v.Values[:n]
	} else {
		v.Values = resizeFloats(v.Values, n)
	}
	v.NonZeros = v.NonZeros[:0]
	v.NonZerosAreSorted = true
}

// Set 设置一个值并记录位置（调用方保证位置原先为零）
func (v *Scattered[K]) Set(i int, value float64) {
	v.Values[i] = value
	v.NonZeros = append(v.NonZeros, i)
	v.NonZerosAreSorted = false
}

// ShouldUseDenseIteration 非零位置未知或过多时按稠密遍历
func (v *Scattered[K]) ShouldUseDenseIteration(ratio float64) bool {
	if len(v.NonZeros) == 0 {
		return true
	}
	return float64(len(v.NonZeros)) > ratio*float64(len(v.Values))
}

// ClearNonZerosIfTooDense 过密时清空非零列表（转为稠密表示）
func (v *Scattered[K]) ClearNonZerosIfTooDense(ratio float64) {
	if v.ShouldUseDenseIteration(ratio) {
		v.NonZeros = v.NonZeros[:0]
	}
}

// SortNonZerosIfNeeded 排序非零位置
func (v *Scattered[K]) SortNonZerosIfNeeded() {
	if !v.NonZerosAreSorted {
		slices.Sort(v.NonZeros)
		v.NonZerosAreSorted = true
	}
}

// ForEachNonZero 遍历（可能为零的）非零元；稠密时遍历全部位置
func (v *Scattered[K]) ForEachNonZero(fn func(i int, value float64)) {
	if len(v.NonZeros) == 0 {
		for i, x := range v.Values {
			if x != 0 {
				fn(i, x)
			}
		}
		return
	}
	for _, i := range v.NonZeros {
		fn(i, v.Values[i])
	}
}

// SquaredNorm 平方范数
func (v *Scattered[K]) SquaredNorm() float64 {
	sum := 0.0
	v.ForEachNonZero(func(_ int, x float64) { sum += x * x })
	return sum
}

// RepopulateSparseMask 依据NonZeros设置非零标记
func (v *Scattered[K]) RepopulateSparseMask() {
	if v.mask.Size() != len(v.Values) {
		v.mask.Resize(len(v.Values))
	}
	for _, i := range v.NonZeros {
		v.mask.Set(i, true)
	}
}

// ClearSparseMask 清除非零标记（只清已记录位置）
func (v *Scattered[K]) ClearSparseMask() {
	for _, i := range v.NonZeros {
		v.mask.Set(i, false)
	}
}

// AddNonZeroIfNeeded 位置未标记时追加到NonZeros（需要先RepopulateSparseMask）
func (v *Scattered[K]) AddNonZeroIfNeeded(i int) {
	if !v.mask.Get(i) {
		v.mask.Set(i, true)
		v.NonZeros = append(v.NonZeros, i)
		v.NonZerosAreSorted = false
	}
}

// CopyFrom 拷贝另一个同类向量
func (v *Scattered[K]) CopyFrom(other *Scattered[K]) {
	v.Values = append(v.Values[:0], other.Values...)
	v.NonZeros = append(v.NonZeros[:0], other.NonZeros...)
	v.NonZerosAreSorted = other.NonZerosAreSorted
}
