package basis

import (
	"gonum.org/v1/gonum/blas/blas64"

	"simplex/sparse"
)

// EtaMatrix 单位矩阵替换第col列为d：E = I + (d − e_col)·e_colᵗ
//
// d = B⁻¹·a_q 为进基列的右求解结果，pivot = d[col]。
// 构建后不可变；按密度选择稠密或稀疏表示，两种表示都不含col处的元素。
type EtaMatrix struct {
	col   int
	pivot float64

	dense  []float64 // 稠密表示（dense[col] = 0）
	rows   []int     // 稀疏表示
	coeffs []float64
}

// NewEtaMatrix 由方向向量d构建
func NewEtaMatrix(col int, d *sparse.ScatteredColumn, sparsityThreshold float64) *EtaMatrix {
	e := &EtaMatrix{col: col, pivot: d.Values[col]}
	n := d.Size()
	if !d.ShouldUseDenseIteration(sparsityThreshold) {
		for _, r := range d.NonZeros {
			if v := d.Values[r]; r != col && v != 0 {
				e.rows = append(e.rows, r)
				e.coeffs = append(e.coeffs, v)
			}
		}
		return e
	}
	e.dense = make([]float64, n)
	copy(e.dense, d.Values)
	e.dense[col] = 0
	return e
}

func (e *EtaMatrix) IsDense() bool { return e.dense != nil }

// NumEntries 非对角元数（稠密表示按维度计）
func (e *EtaMatrix) NumEntries() int {
	if e.dense != nil {
		return len(e.dense)
	}
	return len(e.rows)
}

func (e *EtaMatrix) vector() blas64.Vector {
	return blas64.Vector{N: len(e.dense), Inc: 1, Data: e.dense}
}

// RightSolve x ← E⁻¹·x
func (e *EtaMatrix) RightSolve(x []float64) {
	if x[e.col] == 0 {
		return
	}
	x[e.col] /= e.pivot
	v := x[e.col]
	if e.dense != nil {
		blas64.Axpy(-v, e.vector(), blas64.Vector{N: len(x), Inc: 1, Data: x})
		return
	}
	for i, r := range e.rows {
		x[r] -= e.coeffs[i] * v
	}
}

// LeftSolve y ← y·E⁻¹（只改变第col个分量）
func (e *EtaMatrix) LeftSolve(y []float64) {
	var sum float64
	if e.dense != nil {
		sum = blas64.Dot(e.vector(), blas64.Vector{N: len(y), Inc: 1, Data: y})
	} else {
		for i, r := range e.rows {
			sum += e.coeffs[i] * y[r]
		}
	}
	y[e.col] = (y[e.col] - sum) / e.pivot
}

// SparseLeftSolve 与LeftSolve相同；第col个分量非零且未记录时加入y.NonZeros
// 调用方负责y的非零标记（RepopulateSparseMask / ClearSparseMask）。
func (e *EtaMatrix) SparseLeftSolve(y *sparse.ScatteredRow) {
	e.LeftSolve(y.Values)
	if y.Values[e.col] != 0 {
		y.AddNonZeroIfNeeded(e.col)
	}
}

// EtaFactorization eta矩阵链 E₁·E₂·…·Eₖ
type EtaFactorization struct {
	etas              []*EtaMatrix
	sparsityThreshold float64
	numFpOperations   int64
}

// Clear 丢弃整条链
func (f *EtaFactorization) Clear() {
	f.etas = f.etas[:0]
	f.numFpOperations = 0
}

func (f *EtaFactorization) Size() int { return len(f.etas) }

// Update 追加一个eta矩阵：leavingRow为被替换的基位置，d为进基列的右求解结果
func (f *EtaFactorization) Update(leavingRow int, d *sparse.ScatteredColumn) {
	f.etas = append(f.etas, NewEtaMatrix(leavingRow, d, f.sparsityThreshold))
}

// RightSolve x ← Eₖ⁻¹·…·E₁⁻¹·x
func (f *EtaFactorization) RightSolve(x []float64) {
	for _, e := range f.etas {
		e.RightSolve(x)
		f.numFpOperations += int64(e.NumEntries())
	}
}

// LeftSolve y ← y·Eₖ⁻¹·…·E₁⁻¹
func (f *EtaFactorization) LeftSolve(y []float64) {
	for i := len(f.etas) - 1; i >= 0; i-- {
		f.etas[i].LeftSolve(y)
		f.numFpOperations += int64(f.etas[i].NumEntries())
	}
}

// SparseLeftSolve 左求解并维护非零位置，NonZeros 中不会出现重复位置
// y.NonZeros 为空（稠密）时退化为LeftSolve。
func (f *EtaFactorization) SparseLeftSolve(y *sparse.ScatteredRow) {
	if len(y.NonZeros) == 0 {
		f.LeftSolve(y.Values)
		return
	}
	y.RepopulateSparseMask()
	for i := len(f.etas) - 1; i >= 0; i-- {
		f.etas[i].SparseLeftSolve(y)
		f.numFpOperations += int64(f.etas[i].NumEntries())
	}
	y.ClearSparseMask()
}

// NumFpOperations 自上次Clear以来链上的浮点运算数
func (f *EtaFactorization) NumFpOperations() int64 { return f.numFpOperations }
