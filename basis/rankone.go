package basis

import (
	"fmt"

	"simplex/sparse"
)

// RankOneUpdateElementaryMatrix T = I + u·vᵗ，u、v 存放在共享的紧凑矩阵中
// T⁻¹ = I − u·vᵗ/μ，μ = 1 + vᵗ·u；μ = 0 时T奇异。
type RankOneUpdateElementaryMatrix struct {
	storage *sparse.CompactMatrix
	uIndex  int
	vIndex  int
	mu      float64
}

// NewRankOneUpdateElementaryMatrix u、v 为storage中的列号
func NewRankOneUpdateElementaryMatrix(storage *sparse.CompactMatrix, uIndex, vIndex int, mu float64) RankOneUpdateElementaryMatrix {
	return RankOneUpdateElementaryMatrix{storage: storage, uIndex: uIndex, vIndex: vIndex, mu: mu}
}

func (m *RankOneUpdateElementaryMatrix) IsSingular() bool { return m.mu == 0 }
func (m *RankOneUpdateElementaryMatrix) Mu() float64      { return m.mu }

func (m *RankOneUpdateElementaryMatrix) checkSingular() {
	if m.mu == 0 {
		panic(fmt.Sprintf("rank one update: singular elementary matrix (u=%d, v=%d)", m.uIndex, m.vIndex))
	}
}

// RightSolve x ← T⁻¹·x
func (m *RankOneUpdateElementaryMatrix) RightSolve(x []float64) {
	m.checkSingular()
	multiplier := -m.storage.ColumnScalarProduct(m.vIndex, x) / m.mu
	m.storage.ColumnAddMultipleToDense(m.uIndex, multiplier, x)
}

// LeftSolve y ← y·T⁻¹
func (m *RankOneUpdateElementaryMatrix) LeftSolve(y []float64) {
	m.checkSingular()
	multiplier := -m.storage.ColumnScalarProduct(m.uIndex, y) / m.mu
	m.storage.ColumnAddMultipleToDense(m.vIndex, multiplier, y)
}

// RightSolveWithNonZeros 同RightSolve，新出现的非零位置追加到x.NonZeros（需要已填充掩码）
func (m *RankOneUpdateElementaryMatrix) RightSolveWithNonZeros(x *sparse.ScatteredColumn) {
	m.checkSingular()
	multiplier := -m.storage.ColumnScalarProduct(m.vIndex, x.Values) / m.mu
	m.storage.ColumnAddMultipleToScattered(m.uIndex, multiplier, x)
}

// LeftSolveWithNonZeros 同LeftSolve，维护y.NonZeros
func (m *RankOneUpdateElementaryMatrix) LeftSolveWithNonZeros(y *sparse.ScatteredRow) {
	m.checkSingular()
	multiplier := -m.storage.ColumnScalarProduct(m.uIndex, y.Values) / m.mu
	m.storage.ColumnAddMultipleToScattered(m.vIndex, multiplier, sparse.RowAsColumn(y))
}

// NumEntries u与v的非零元总数
func (m *RankOneUpdateElementaryMatrix) NumEntries() int {
	return m.storage.ColumnNumEntries(m.uIndex) + m.storage.ColumnNumEntries(m.vIndex)
}

// RankOneUpdateFactorization 初等矩阵链 R = T₁·T₂·…·Tₖ
type RankOneUpdateFactorization struct {
	elementary      []RankOneUpdateElementaryMatrix
	sparseRatio     float64 // 非零比例不超过此值时按超稀疏方式求解
	numFpOperations int64
}

// Clear 丢弃整条链
func (f *RankOneUpdateFactorization) Clear() {
	f.elementary = f.elementary[:0]
	f.numFpOperations = 0
}

func (f *RankOneUpdateFactorization) Size() int { return len(f.elementary) }

// Update 追加一个初等矩阵：R ← R·T
func (f *RankOneUpdateFactorization) Update(m RankOneUpdateElementaryMatrix) {
	f.elementary = append(f.elementary, m)
}

// RightSolve x ← R⁻¹·x（先应用T₁⁻¹）
func (f *RankOneUpdateFactorization) RightSolve(x []float64) {
	for i := range f.elementary {
		f.elementary[i].RightSolve(x)
		f.numFpOperations += int64(f.elementary[i].NumEntries())
	}
}

// LeftSolve y ← y·R⁻¹（先应用Tₖ⁻¹）
func (f *RankOneUpdateFactorization) LeftSolve(y []float64) {
	for i := len(f.elementary) - 1; i >= 0; i-- {
		f.elementary[i].LeftSolve(y)
		f.numFpOperations += int64(f.elementary[i].NumEntries())
	}
}

// RightSolveWithNonZeros 按非零比例在稠密与超稀疏之间切换
// 非零位置一旦过密即放弃跟踪，之后的初等矩阵按稠密方式处理；退出时掩码恢复为全零。
func (f *RankOneUpdateFactorization) RightSolveWithNonZeros(x *sparse.ScatteredColumn) {
	if len(f.elementary) == 0 {
		return
	}
	if x.ShouldUseDenseIteration(f.sparseRatio) {
		x.NonZeros = x.NonZeros[:0]
		f.RightSolve(x.Values)
		return
	}
	x.RepopulateSparseMask()
	for i := range f.elementary {
		if len(x.NonZeros) == 0 {
			f.elementary[i].RightSolve(x.Values)
		} else {
			f.elementary[i].RightSolveWithNonZeros(x)
			if x.ShouldUseDenseIteration(f.sparseRatio) {
				x.ClearSparseMask()
				x.NonZeros = x.NonZeros[:0]
			}
		}
		f.numFpOperations += int64(f.elementary[i].NumEntries())
	}
	x.ClearSparseMask()
}

// LeftSolveWithNonZeros 同RightSolveWithNonZeros，逆序应用
func (f *RankOneUpdateFactorization) LeftSolveWithNonZeros(y *sparse.ScatteredRow) {
	if len(f.elementary) == 0 {
		return
	}
	if y.ShouldUseDenseIteration(f.sparseRatio) {
		y.NonZeros = y.NonZeros[:0]
		f.LeftSolve(y.Values)
		return
	}
	y.RepopulateSparseMask()
	for i := len(f.elementary) - 1; i >= 0; i-- {
		if len(y.NonZeros) == 0 {
			f.elementary[i].LeftSolve(y.Values)
		} else {
			f.elementary[i].LeftSolveWithNonZeros(y)
			if y.ShouldUseDenseIteration(f.sparseRatio) {
				y.ClearSparseMask()
				y.NonZeros = y.NonZeros[:0]
			}
		}
		f.numFpOperations += int64(f.elementary[i].NumEntries())
	}
	y.ClearSparseMask()
}

// NumFpOperations 自上次Clear以来链上的浮点运算数
func (f *RankOneUpdateFactorization) NumFpOperations() int64 { return f.numFpOperations }
