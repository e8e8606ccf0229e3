package lu

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"simplex/config"
	"simplex/markowitz"
	"simplex/sparse"
)

var (
	// ErrSingular 基矩阵奇异
	ErrSingular = markowitz.ErrSingular
	// ErrNotSquare 基矩阵不是方阵
	ErrNotSquare = markowitz.ErrNotSquare
)

// Factorization 基矩阵的LU分解：P·B·Q⁻¹ = L·U
//
// 置换约定：rowPerm[原行] = 主元序号，colPerm[原列] = 主元序号。
// 未分解或分解失败时为单位分解，所有求解均为空操作。
type Factorization struct {
	params    *config.Parameters
	markowitz *markowitz.Markowitz

	isIdentity bool
	numRows    int
	numEntries int // 原矩阵非零元数

	rowPerm sparse.Permutation
	colPerm sparse.Permutation
	lower   sparse.TriangularMatrix
	upper   sparse.TriangularMatrix

	transposeUpper      sparse.TriangularMatrix // 分解时即构建
	transposeLower      sparse.TriangularMatrix // 首次需要时构建
	transposeLowerValid bool

	dense   []float64 // 临时向量（使用后清零）
	scratch sparse.ScatteredColumn
}

// New 创建单位分解
// 参数:
//
//	params - 主元阈值、超稀疏比例等参数（只读，调用方持有）
//
// 返回:
//
//	LU分解实例
func New(params *config.Parameters) *Factorization {
	return &Factorization{
		params:     params,
		markowitz:  markowitz.New(params),
		isIdentity: true,
	}
}

// Clear 重置为单位分解（维度保持不变）
func (f *Factorization) Clear() { f.setIdentity(f.numRows) }

// ClearAndResize 重置为n阶单位分解
func (f *Factorization) ClearAndResize(n int) { f.setIdentity(n) }

func (f *Factorization) setIdentity(n int) {
	f.isIdentity = true
	f.numRows = n
	f.numEntries = n
	f.rowPerm.PopulateFromIdentity(n)
	f.colPerm.PopulateFromIdentity(n)
	f.lower.Reset(sparse.Lower, 0)
	f.upper.Reset(sparse.Upper, 0)
	f.transposeUpper.Reset(sparse.Lower, 0)
	f.transposeLower.Reset(sparse.Upper, 0)
	f.transposeLowerValid = false
	f.resizeDense(n)
}

func (f *Factorization) resizeDense(n int) {
	if len(f.dense) != n {
		f.dense = make([]float64, n)
	}
}

// ComputeFactorization 分解view
// 单位矩阵走快速路径；奇异或非方阵时返回错误并重置为单位分解。
func (f *Factorization) ComputeFactorization(view sparse.ColumnMatrix) error {
	if sparse.IsIdentity(view) {
		f.setIdentity(view.NumCols())
		return nil
	}
	guard := f.params.HyperSparseGuardFactor
	f.lower.SetHyperSparseGuard(guard)
	f.upper.SetHyperSparseGuard(guard)
	f.transposeUpper.SetHyperSparseGuard(guard)
	f.transposeLower.SetHyperSparseGuard(guard)
	for _, tri := range []*sparse.TriangularMatrix{&f.lower, &f.upper, &f.transposeUpper, &f.transposeLower} {
		tri.SetLogGuardAborts(f.params.LogDrift)
	}

	f.markowitz.SetParameters(f.params)
	if err := f.markowitz.ComputeLU(view, &f.rowPerm, &f.colPerm, &f.lower, &f.upper); err != nil {
		f.setIdentity(view.NumRows())
		return errors.Wrap(err, "lu: compute factorization")
	}
	f.isIdentity = false
	f.numRows = view.NumRows()
	f.numEntries = 0
	for c := 0; c < view.NumCols(); c++ {
		f.numEntries += view.Column(c).NumEntries()
	}
	f.transposeUpper.PopulateFromTranspose(&f.upper)
	f.transposeLowerValid = false
	f.resizeDense(f.numRows)
	return nil
}

// IsIdentity 当前分解是单位矩阵的快速路径（未分解或分解失败后也是）
func (f *Factorization) IsIdentity() bool { return f.isIdentity }

// NumRows 上次分解的维度
func (f *Factorization) NumRows() int { return f.numRows }

// RowPermutation 行置换P
func (f *Factorization) RowPermutation() *sparse.Permutation { return &f.rowPerm }

// ColumnPermutation 列置换Q
func (f *Factorization) ColumnPermutation() *sparse.Permutation { return &f.colPerm }

// Markowitz 最近一次分解的统计
func (f *Factorization) Markowitz() markowitz.Stats { return f.markowitz.Stats() }

func (f *Factorization) ensureTransposeLower() {
	if !f.transposeLowerValid {
		f.transposeLower.PopulateFromTranspose(&f.lower)
		f.transposeLowerValid = true
	}
}

// permuteInPlace 原位置换：values[perm[i]] = 原values[i]，nonZeros同步映射
// nonZeros 中的重复位置只移动一次。
func (f *Factorization) permuteInPlace(perm []int, values []float64, nonZeros []int) {
	if len(nonZeros) == 0 {
		for i, v := range values {
			f.dense[perm[i]] = v
		}
		copy(values, f.dense)
		clear(f.dense)
		return
	}
	for _, i := range nonZeros {
		if v := values[i]; v != 0 {
			f.dense[perm[i]] = v
			values[i] = 0
		}
	}
	for k, i := range nonZeros {
		p := perm[i]
		if v := f.dense[p]; v != 0 {
			values[p] = v
			f.dense[p] = 0
		}
		nonZeros[k] = p
	}
}

// ------------------------------ 完整求解 ------------------------------

// RightSolve 原位求解 B·x = x
func (f *Factorization) RightSolve(x []float64) {
	if f.isIdentity {
		return
	}
	f.rowPerm.ApplyToDense(x, f.dense)
	f.lower.LowerSolve(f.dense)
	f.upper.UpperSolve(f.dense)
	f.colPerm.ApplyInverseToDense(f.dense, x)
	clear(f.dense)
}

// LeftSolve 原位求解 y·B = y
func (f *Factorization) LeftSolve(y []float64) {
	if f.isIdentity {
		return
	}
	f.colPerm.ApplyToDense(y, f.dense)
	f.upper.TransposeUpperSolve(f.dense)
	f.lower.TransposeLowerSolve(f.dense)
	f.rowPerm.ApplyInverseToDense(f.dense, y)
	clear(f.dense)
}

// ------------------------------ 部分求解 ------------------------------

// solveWithNonZeros 按非零比例选择稠密或超稀疏的三角求解
func (f *Factorization) solveWithNonZeros(m *sparse.TriangularMatrix, values []float64, nonZeros *[]int) {
	if len(*nonZeros) == 0 || float64(len(*nonZeros)) > f.params.HyperSparseRatio*float64(len(values)) {
		*nonZeros = (*nonZeros)[:0]
		m.Solve(values)
		return
	}
	m.HyperSparseSolve(values, nonZeros)
}

// RightSolveLWithNonZeros x ← L⁻¹·P·x，结果位于主元空间
func (f *Factorization) RightSolveLWithNonZeros(x *sparse.ScatteredColumn) {
	if f.isIdentity {
		return
	}
	f.permuteInPlace(f.rowPerm.Slice(), x.Values, x.NonZeros)
	f.solveWithNonZeros(&f.lower, x.Values, &x.NonZeros)
	x.NonZerosAreSorted = false
}

// RightSolveLWithPermutedInput x ← L⁻¹·x，x已按行置换（来自LeftSolveLWithNonZeros保留的中间结果）
func (f *Factorization) RightSolveLWithPermutedInput(x *sparse.ScatteredColumn) {
	if f.isIdentity {
		return
	}
	f.solveWithNonZeros(&f.lower, x.Values, &x.NonZeros)
	x.NonZerosAreSorted = false
}

// RightSolveLForColumnView x ← L⁻¹·P·col（x先被清空）
func (f *Factorization) RightSolveLForColumnView(col sparse.ColumnView, x *sparse.ScatteredColumn) {
	x.ClearAndResize(f.numRows)
	if f.isIdentity {
		for i, r := range col.Rows {
			x.Set(r, col.Coeffs[i])
		}
		return
	}
	for i, r := range col.Rows {
		x.Set(f.rowPerm.At(r), col.Coeffs[i])
	}
	f.solveWithNonZeros(&f.lower, x.Values, &x.NonZeros)
}

// RightSolveLForScatteredColumn x ← L⁻¹·P·b
func (f *Factorization) RightSolveLForScatteredColumn(b *sparse.ScatteredColumn, x *sparse.ScatteredColumn) {
	x.ClearAndResize(f.numRows)
	if f.isIdentity {
		b.ForEachNonZero(func(i int, v float64) {
			if v != 0 {
				x.Set(i, v)
			}
		})
		return
	}
	perm := f.rowPerm.Slice()
	b.ForEachNonZero(func(i int, v float64) {
		if v != 0 {
			x.Set(perm[i], v)
		}
	})
	f.solveWithNonZeros(&f.lower, x.Values, &x.NonZeros)
}

// RightSolveUWithNonZeros x ← Q⁻¹·U⁻¹·x，输入位于主元空间
func (f *Factorization) RightSolveUWithNonZeros(x *sparse.ScatteredColumn) {
	if f.isIdentity {
		return
	}
	f.solveWithNonZeros(&f.upper, x.Values, &x.NonZeros)
	f.permuteInPlace(f.colPerm.Inverse(), x.Values, x.NonZeros)
	x.NonZerosAreSorted = false
}

// LeftSolveUWithNonZeros y ← (y·Q⁻¹)·U⁻¹，结果位于主元空间
func (f *Factorization) LeftSolveUWithNonZeros(y *sparse.ScatteredRow) {
	if f.isIdentity {
		return
	}
	f.permuteInPlace(f.colPerm.Slice(), y.Values, y.NonZeros)
	f.solveWithNonZeros(&f.transposeUpper, y.Values, &y.NonZeros)
	y.NonZerosAreSorted = false
}

// LeftSolveUForUnitRow y ← e_col·Q⁻¹·U⁻¹（y先被清空）
func (f *Factorization) LeftSolveUForUnitRow(col int, y *sparse.ScatteredRow) {
	y.ClearAndResize(f.numRows)
	if f.isIdentity {
		y.Set(col, 1)
		return
	}
	y.Set(f.colPerm.At(col), 1)
	f.solveWithNonZeros(&f.transposeUpper, y.Values, &y.NonZeros)
}

// LeftSolveLWithNonZeros y ← y·L⁻¹·P（输入位于主元空间）
// resultBeforePermutation 非空时保存行置换前的结果 P·y，返回是否已保存。
func (f *Factorization) LeftSolveLWithNonZeros(y *sparse.ScatteredRow, resultBeforePermutation *sparse.ScatteredColumn) bool {
	if !f.isIdentity {
		f.ensureTransposeLower()
		f.solveWithNonZeros(&f.transposeLower, y.Values, &y.NonZeros)
	}
	stored := false
	if resultBeforePermutation != nil {
		resultBeforePermutation.CopyFrom(sparse.RowAsColumn(y))
		stored = true
	}
	if !f.isIdentity {
		f.permuteInPlace(f.rowPerm.Inverse(), y.Values, y.NonZeros)
		y.NonZerosAreSorted = false
	}
	return stored
}

// LeftSolveForUnitRow y ← e_col·B⁻¹，即B⁻¹的第col行
func (f *Factorization) LeftSolveForUnitRow(col int, y *sparse.ScatteredRow) {
	f.LeftSolveUForUnitRow(col, y)
	f.LeftSolveLWithNonZeros(y, nil)
}

// ------------------------------ 范数 ------------------------------

// RightSolveSquaredNorm ‖B⁻¹·a‖²（不还原列置换，置换不改变范数）
func (f *Factorization) RightSolveSquaredNorm(a sparse.ColumnView) float64 {
	if f.isIdentity {
		sum := 0.0
		for _, v := range a.Coeffs {
			sum += v * v
		}
		return sum
	}
	f.RightSolveLForColumnView(a, &f.scratch)
	f.solveWithNonZeros(&f.upper, f.scratch.Values, &f.scratch.NonZeros)
	sum := f.scratch.SquaredNorm()
	f.scratch.ClearAndResize(f.numRows)
	return sum
}

// DualEdgeSquaredNorm ‖e_row·B⁻¹‖²
func (f *Factorization) DualEdgeSquaredNorm(row int) float64 {
	if f.isIdentity {
		return 1
	}
	y := sparse.ColumnAsRow(&f.scratch)
	f.LeftSolveUForUnitRow(row, y)
	f.ensureTransposeLower()
	f.solveWithNonZeros(&f.transposeLower, y.Values, &y.NonZeros)
	sum := y.SquaredNorm()
	y.ClearAndResize(f.numRows)
	return sum
}

// ComputeInverseOneNorm ‖B⁻¹‖₁（每个单位列一次求解）
func (f *Factorization) ComputeInverseOneNorm() float64 {
	if f.isIdentity {
		return 1
	}
	x := make([]float64, f.numRows)
	norm := 0.0
	for j := 0; j < f.numRows; j++ {
		clear(x)
		x[j] = 1
		f.RightSolve(x)
		sum := 0.0
		for _, v := range x {
			sum += math.Abs(v)
		}
		norm = math.Max(norm, sum)
	}
	return norm
}

// ComputeInverseInfinityNorm ‖B⁻¹‖∞
func (f *Factorization) ComputeInverseInfinityNorm() float64 {
	if f.isIdentity {
		return 1
	}
	x := make([]float64, f.numRows)
	rowSums := make([]float64, f.numRows)
	for j := 0; j < f.numRows; j++ {
		clear(x)
		x[j] = 1
		f.RightSolve(x)
		for i, v := range x {
			rowSums[i] += math.Abs(v)
		}
	}
	norm := 0.0
	for _, s := range rowSums {
		norm = math.Max(norm, s)
	}
	return norm
}

// ------------------------------ 诊断 ------------------------------

// GetColumnOfU U在主元空间中的第col列：非对角元与对角元
func (f *Factorization) GetColumnOfU(col int) (sparse.ColumnView, float64) {
	if f.isIdentity {
		return sparse.ColumnView{}, 1
	}
	return f.upper.Column(col), f.upper.Diagonal(col)
}

// ComputeLowerTimesUpper 稠密的L·U（等于P·B·Q⁻¹）
func (f *Factorization) ComputeLowerTimesUpper() *mat.Dense {
	n := max(f.numRows, 1)
	if f.isIdentity {
		d := mat.NewDense(n, n, nil)
		for i := 0; i < f.numRows; i++ {
			d.Set(i, i, 1)
		}
		return d
	}
	var d mat.Dense
	d.Mul(f.lower.ToDense(), f.upper.ToDense())
	return &d
}

// NumberOfEntries L与U的存储元素数（含U的对角元）
func (f *Factorization) NumberOfEntries() int {
	if f.isIdentity {
		return 0
	}
	return f.lower.NumEntries() + f.upper.NumEntries() + f.numRows
}

// GetFillInPercentage 因子元素数相对原矩阵元素数的百分比
func (f *Factorization) GetFillInPercentage() float64 {
	if f.isIdentity || f.numEntries == 0 {
		return 100
	}
	return 100 * float64(f.NumberOfEntries()) / float64(f.numEntries)
}

// DeterministicTime 最近一次分解的确定性时间
func (f *Factorization) DeterministicTime() float64 {
	if f.isIdentity {
		return 0
	}
	return f.markowitz.DeterministicTime()
}
