package basis

import (
	"fmt"
	"log"
	"math"

	"github.com/pkg/errors"

	"simplex/config"
	"simplex/lu"
	"simplex/sparse"
	"simplex/stats"
)

// UpdateStrategy 基更新方式（构造时确定）
type UpdateStrategy int

const (
	EtaUpdate               UpdateStrategy = iota // B' = B·E
	MiddleProductFormUpdate                       // B = P⁻¹·L·R·U·Q
)

func (s UpdateStrategy) String() string {
	switch s {
	case EtaUpdate:
		return "eta"
	case MiddleProductFormUpdate:
		return "middle-product-form"
	}
	return fmt.Sprintf("UpdateStrategy(%d)", int(s))
}

// Factorization 基矩阵分解：LU分解加更新链
//
// 基矩阵B的第i列为matrix的第basis[i]列。basis由调用方持有，
// 调用Update前调用方需已把basis[leavingRow]改为进基列。
type Factorization struct {
	params   *config.Parameters
	matrix   *sparse.CompactMatrix
	basis    []int
	stats    *stats.Stats
	strategy UpdateStrategy

	lu      *lu.Factorization
	eta     EtaFactorization
	rankOne RankOneUpdateFactorization

	rankOneStorage sparse.CompactMatrix // u、v 向量
	rightPool      columnPool           // 键：进基列，值：R⁻¹·L⁻¹·P·a
	leftPool       columnPool           // 键：离基位置，值：e_c·U⁻¹

	numUpdates    int
	identityBasis bool

	// τ 的计算可复用最近一次单位行左求解的中间结果
	tau                          sparse.ScatteredColumn
	tauComputationCanBeOptimized bool
	tauIsComputed                bool

	scratch sparse.ScatteredColumn
	dense   []float64

	deterministicTime     float64 // 不含当前更新链
	lastFactorizationTime float64
	solveCount            int
}

// New 创建基分解
// 参数:
//
//	params - 参数（只读，调用方持有）
//	matrix - 约束矩阵（按列）
//	basis  - 基列号，长度等于行数
//	st     - 统计信息，可为nil
//
// 返回:
//
//	未分解的基分解，需调用Initialize
func New(params *config.Parameters, matrix *sparse.CompactMatrix, basis []int, st *stats.Stats) *Factorization {
	f := &Factorization{
		params:   params,
		matrix:   matrix,
		basis:    basis,
		stats:    st,
		strategy: EtaUpdate,
		lu:       lu.New(params),
	}
	if params.UseMiddleProductFormUpdate {
		f.strategy = MiddleProductFormUpdate
	}
	f.eta.sparsityThreshold = params.EtaSparsityThreshold
	f.rankOne.sparseRatio = params.RankOneSparseRatio
	f.Clear()
	return f
}

func (f *Factorization) numRows() int { return f.matrix.NumRows() }

func (f *Factorization) view() sparse.BasisView {
	return sparse.BasisView{Matrix: f.matrix, Basis: f.basis}
}

// Strategy 更新方式
func (f *Factorization) Strategy() UpdateStrategy { return f.strategy }

// LU 当前的LU分解（只读）
func (f *Factorization) LU() *lu.Factorization { return f.lu }

// chainTime 当前更新链的确定性时间
func (f *Factorization) chainTime() float64 {
	return sparse.DeterministicTimeForFpOperations(f.eta.NumFpOperations() + f.rankOne.NumFpOperations())
}

// clearUpdates 丢弃更新链，链上的时间计入总时间
func (f *Factorization) clearUpdates() {
	n := f.numRows()
	f.deterministicTime += f.chainTime()
	f.numUpdates = 0
	f.eta.Clear()
	f.rankOne.Clear()
	f.rankOneStorage.Reset(n)
	f.rightPool.Reset(f.matrix.NumCols(), n)
	f.leftPool.Reset(n, n)
	f.resetTau()
	f.scratch.ClearAndResize(n)
	if len(f.dense) != n {
		f.dense = make([]float64, n)
	}
}

func (f *Factorization) resetTau() {
	f.tauComputationCanBeOptimized = false
	f.tauIsComputed = false
}

// Clear 重置为单位分解（不读取基）
func (f *Factorization) Clear() {
	f.clearUpdates()
	f.lu.ClearAndResize(f.numRows())
	f.identityBasis = true
}

// Initialize 按当前基重新分解；基本身是单位矩阵时不做分解
func (f *Factorization) Initialize() error {
	f.Clear()
	if sparse.IsIdentity(f.view()) {
		return nil
	}
	return f.ForceRefactorization()
}

// IsRefactorized 更新链为空
func (f *Factorization) IsRefactorized() bool { return f.numUpdates == 0 }

// Refactorize 更新链非空时重新分解
func (f *Factorization) Refactorize() error {
	if f.IsRefactorized() {
		return nil
	}
	return f.ForceRefactorization()
}

// ForceRefactorization 丢弃更新链并重新分解当前基
func (f *Factorization) ForceRefactorization() error {
	f.clearUpdates()
	err := f.lu.ComputeFactorization(f.view())
	f.lastFactorizationTime = f.lu.DeterministicTime()
	f.deterministicTime += f.lastFactorizationTime
	if err != nil {
		f.identityBasis = false
		return errors.Wrap(err, "basis: refactorize")
	}
	f.identityBasis = f.lu.IsIdentity()
	if !f.identityBasis {
		f.stats.Add(stats.BFactorizationDensity, f.lu.GetFillInPercentage()/100)
		f.stats.Add(stats.FillIn, float64(f.lu.Markowitz().NumFillIn))
	}
	return nil
}

// shouldRefactorizeEarly 更新链的额外求解代价超过上次分解代价
func (f *Factorization) shouldRefactorizeEarly() bool {
	return f.params.DynamicallyAdjustRefactorizationPeriod &&
		f.lastFactorizationTime > 0 &&
		f.chainTime() > f.params.RefactorizationCostRatio*f.lastFactorizationTime
}

// Update 用进基列替换第leavingRow个基位置
// 参数:
//
//	enteringCol - 进基列（调用方已写入basis[leavingRow]）
//	leavingRow  - 离基位置
//	direction   - 进基列的右求解结果 B⁻¹·a（RightSolveForProblemColumn）
//
// 达到更新周期时改为重新分解。中积形式更新还需要之前对同一进基列调用
// RightSolveForProblemColumn、对同一位置调用LeftSolveForUnitRow，缺少时重新分解。
func (f *Factorization) Update(enteringCol, leavingRow int, direction *sparse.ScatteredColumn) error {
	if f.numUpdates >= f.params.BasisRefactorizationPeriod || f.shouldRefactorizeEarly() {
		return f.ForceRefactorization()
	}
	f.numUpdates++
	f.identityBasis = false
	f.resetTau()
	if f.strategy == MiddleProductFormUpdate {
		return f.middleProductFormUpdate(enteringCol, leavingRow)
	}
	if direction.Values[leavingRow] == 0 {
		log.Println("basis: zero pivot in eta update, refactorizing")
		return f.ForceRefactorization()
	}
	f.eta.Update(leavingRow, direction)
	return nil
}

// middleProductFormUpdate R ← R·(I + u·vᵗ)
// u = R⁻¹·L⁻¹·P·a − U·e_c，v = U⁻ᵗ·e_c，c为离基位置对应的主元列。
func (f *Factorization) middleProductFormUpdate(enteringCol, leavingRow int) error {
	right, okRight := f.rightPool.Lookup(enteringCol)
	left, okLeft := f.leftPool.Lookup(leavingRow)
	if !okRight || !okLeft {
		log.Printf("basis: missing update vectors (entering %d, leaving %d), refactorizing", enteringCol, leavingRow)
		return f.ForceRefactorization()
	}
	c := leavingRow
	if !f.lu.IsIdentity() {
		c = f.lu.ColumnPermutation().At(leavingRow)
	}
	for i, r := range right.Rows {
		f.dense[r] = right.Coeffs[i]
	}
	uCol, diag := f.lu.GetColumnOfU(c)
	for i, r := range uCol.Rows {
		f.dense[r] -= uCol.Coeffs[i]
	}
	f.dense[c] -= diag

	uIndex := f.rankOneStorage.AddDenseColumn(f.dense)
	vIndex := f.rankOneStorage.AddColumn(left.Rows, left.Coeffs)
	mu := 1 + f.rankOneStorage.ColumnScalarProduct(vIndex, f.dense)
	clear(f.dense)

	m := NewRankOneUpdateElementaryMatrix(&f.rankOneStorage, uIndex, vIndex, mu)
	if m.IsSingular() {
		log.Printf("basis: singular rank one update (entering %d, leaving %d), refactorizing", enteringCol, leavingRow)
		return f.ForceRefactorization()
	}
	f.rankOne.Update(m)
	f.rightPool.Invalidate()
	f.leftPool.Invalidate()
	return nil
}

// ------------------------------ 求解 ------------------------------

// recordSolve 求解计数、确定性时间与结果密度
func (f *Factorization) recordSolve(kind stats.Kind, values []float64, nonZeros []int) {
	f.solveCount++
	n := len(values)
	if n == 0 {
		return
	}
	count := len(nonZeros)
	if count == 0 {
		for _, v := range values {
			if v != 0 {
				count++
			}
		}
	}
	density := float64(count) / float64(n)
	f.deterministicTime += sparse.DeterministicTimeForFpOperations(int64(density * float64(f.lu.NumberOfEntries())))
	f.stats.Add(kind, density)
}

// RightSolve x ← B⁻¹·x
func (f *Factorization) RightSolve(x *sparse.ScatteredColumn) {
	switch f.strategy {
	case MiddleProductFormUpdate:
		f.lu.RightSolveLWithNonZeros(x)
		f.rankOne.RightSolveWithNonZeros(x)
		f.lu.RightSolveUWithNonZeros(x)
	default:
		x.NonZeros = x.NonZeros[:0]
		f.lu.RightSolve(x.Values)
		f.eta.RightSolve(x.Values)
	}
	f.recordSolve(stats.RightSolveDensity, x.Values, x.NonZeros)
}

// LeftSolve y ← y·B⁻¹
func (f *Factorization) LeftSolve(y *sparse.ScatteredRow) {
	switch f.strategy {
	case MiddleProductFormUpdate:
		f.lu.LeftSolveUWithNonZeros(y)
		f.rankOne.LeftSolveWithNonZeros(y)
		f.lu.LeftSolveLWithNonZeros(y, nil)
	default:
		y.NonZeros = y.NonZeros[:0]
		f.eta.LeftSolve(y.Values)
		f.lu.LeftSolve(y.Values)
	}
	f.recordSolve(stats.LeftSolveDensity, y.Values, y.NonZeros)
}

// leftSolveForUnitRow y ← e_row·B⁻¹；keep 为真时保存中积形式更新所需的v与τ的中间结果
func (f *Factorization) leftSolveForUnitRow(row int, y *sparse.ScatteredRow, keep bool) {
	var before *sparse.ScatteredColumn
	if keep {
		before = &f.tau
	}
	switch f.strategy {
	case MiddleProductFormUpdate:
		f.lu.LeftSolveUForUnitRow(row, y)
		if keep {
			f.leftPool.Store(row, sparse.RowAsColumn(y))
		}
		f.rankOne.LeftSolveWithNonZeros(y)
		stored := f.lu.LeftSolveLWithNonZeros(y, before)
		if keep {
			f.tauComputationCanBeOptimized = stored
			f.tauIsComputed = false
		}
	default:
		y.ClearAndResize(f.numRows())
		y.Set(row, 1)
		f.eta.SparseLeftSolve(y)
		f.lu.LeftSolveUWithNonZeros(y)
		stored := f.lu.LeftSolveLWithNonZeros(y, before)
		if keep {
			f.tauComputationCanBeOptimized = stored
			f.tauIsComputed = false
		}
	}
	f.recordSolve(stats.LeftSolveDensity, y.Values, y.NonZeros)
}

// LeftSolveForUnitRow y ← e_row·B⁻¹，即B⁻¹的第row行
// 同时保存下一次中积形式更新与RightSolveForTau所需的中间结果。
func (f *Factorization) LeftSolveForUnitRow(row int, y *sparse.ScatteredRow) {
	f.leftSolveForUnitRow(row, y, true)
}

// TemporaryLeftSolveForUnitRow 同LeftSolveForUnitRow，不保存任何中间结果
func (f *Factorization) TemporaryLeftSolveForUnitRow(row int, y *sparse.ScatteredRow) {
	f.leftSolveForUnitRow(row, y, false)
}

// RightSolveForProblemColumn d ← B⁻¹·a_col，并保存中积形式更新所需的右向量
func (f *Factorization) RightSolveForProblemColumn(col int, d *sparse.ScatteredColumn) {
	f.lu.RightSolveLForColumnView(f.matrix.Column(col), d)
	switch f.strategy {
	case MiddleProductFormUpdate:
		f.rankOne.RightSolveWithNonZeros(d)
		f.rightPool.Store(col, d)
		f.lu.RightSolveUWithNonZeros(d)
	default:
		f.lu.RightSolveUWithNonZeros(d)
		d.NonZeros = d.NonZeros[:0]
		f.eta.RightSolve(d.Values)
	}
	f.recordSolve(stats.RightSolveDensity, d.Values, d.NonZeros)
}

// RightSolveForTau τ = B⁻¹·a，a 为上一次LeftSolveForUnitRow的结果
//
// 两次调用之间没有更新且左求解保存了中间结果时，跳过L的行置换与散射，
// 直接从中间结果开始求解。返回的切片在下一次调用前有效。
func (f *Factorization) RightSolveForTau(a *sparse.ScatteredColumn) []float64 {
	if f.tauComputationCanBeOptimized && !f.tauIsComputed {
		f.lu.RightSolveLWithPermutedInput(&f.tau)
	} else {
		f.lu.RightSolveLForScatteredColumn(a, &f.tau)
	}
	switch f.strategy {
	case MiddleProductFormUpdate:
		f.rankOne.RightSolveWithNonZeros(&f.tau)
		f.lu.RightSolveUWithNonZeros(&f.tau)
	default:
		f.lu.RightSolveUWithNonZeros(&f.tau)
		f.tau.NonZeros = f.tau.NonZeros[:0]
		f.eta.RightSolve(f.tau.Values)
	}
	f.tauComputationCanBeOptimized = false
	f.tauIsComputed = true
	f.recordSolve(stats.RightSolveDensity, f.tau.Values, f.tau.NonZeros)
	return f.tau.Values
}

// ------------------------------ 范数 ------------------------------

// RightSolveSquaredNorm ‖B⁻¹·a‖²
func (f *Factorization) RightSolveSquaredNorm(a sparse.ColumnView) float64 {
	if f.numUpdates == 0 {
		f.solveCount++
		return f.lu.RightSolveSquaredNorm(a)
	}
	x := &f.scratch
	f.lu.RightSolveLForColumnView(a, x)
	switch f.strategy {
	case MiddleProductFormUpdate:
		f.rankOne.RightSolveWithNonZeros(x)
		f.lu.RightSolveUWithNonZeros(x)
	default:
		f.lu.RightSolveUWithNonZeros(x)
		x.NonZeros = x.NonZeros[:0]
		f.eta.RightSolve(x.Values)
	}
	f.recordSolve(stats.RightSolveDensity, x.Values, x.NonZeros)
	sum := x.SquaredNorm()
	x.ClearAndResize(f.numRows())
	return sum
}

// DualEdgeSquaredNorm ‖e_row·B⁻¹‖²
func (f *Factorization) DualEdgeSquaredNorm(row int) float64 {
	if f.numUpdates == 0 {
		f.solveCount++
		return f.lu.DualEdgeSquaredNorm(row)
	}
	y := sparse.ColumnAsRow(&f.scratch)
	f.TemporaryLeftSolveForUnitRow(row, y)
	sum := y.SquaredNorm()
	y.ClearAndResize(f.numRows())
	return sum
}

// ComputeOneNorm ‖B‖₁：列绝对值和的最大值
func (f *Factorization) ComputeOneNorm() float64 {
	if f.identityBasis {
		return 1
	}
	norm := 0.0
	for _, col := range f.basis {
		sum := 0.0
		for _, v := range f.matrix.Column(col).Coeffs {
			sum += math.Abs(v)
		}
		norm = max(norm, sum)
	}
	return norm
}

// ComputeInfinityNorm ‖B‖∞：行绝对值和的最大值
func (f *Factorization) ComputeInfinityNorm() float64 {
	if f.identityBasis {
		return 1
	}
	sums := make([]float64, f.numRows())
	for _, col := range f.basis {
		c := f.matrix.Column(col)
		for i, r := range c.Rows {
			sums[r] += math.Abs(c.Coeffs[i])
		}
	}
	norm := 0.0
	for _, s := range sums {
		norm = max(norm, s)
	}
	return norm
}

// inverseColumns 依次对每个单位列做右求解
func (f *Factorization) inverseColumns(fn func(j int, x []float64)) {
	n := f.numRows()
	var x sparse.ScatteredColumn
	for j := 0; j < n; j++ {
		x.ClearAndResize(n)
		x.Set(j, 1)
		f.RightSolve(&x)
		fn(j, x.Values)
		x.NonZeros = x.NonZeros[:0]
	}
}

// ComputeInverseOneNorm ‖B⁻¹‖₁（n次右求解）
func (f *Factorization) ComputeInverseOneNorm() float64 {
	if f.identityBasis {
		return 1
	}
	norm := 0.0
	f.inverseColumns(func(_ int, x []float64) {
		sum := 0.0
		for _, v := range x {
			sum += math.Abs(v)
		}
		norm = max(norm, sum)
	})
	return norm
}

// ComputeInverseInfinityNorm ‖B⁻¹‖∞（n次右求解）
func (f *Factorization) ComputeInverseInfinityNorm() float64 {
	if f.identityBasis {
		return 1
	}
	sums := make([]float64, f.numRows())
	f.inverseColumns(func(_ int, x []float64) {
		for i, v := range x {
			sums[i] += math.Abs(v)
		}
	})
	norm := 0.0
	for _, s := range sums {
		norm = max(norm, s)
	}
	return norm
}

// ComputeOneNormConditionNumber κ₁(B) = ‖B‖₁·‖B⁻¹‖₁
func (f *Factorization) ComputeOneNormConditionNumber() float64 {
	if f.identityBasis {
		return 1
	}
	return f.ComputeOneNorm() * f.ComputeInverseOneNorm()
}

// ComputeInfinityNormConditionNumber κ∞(B) = ‖B‖∞·‖B⁻¹‖∞
func (f *Factorization) ComputeInfinityNormConditionNumber() float64 {
	if f.identityBasis {
		return 1
	}
	return f.ComputeInfinityNorm() * f.ComputeInverseInfinityNorm()
}

// ------------------------------ 查询 ------------------------------

// IsIdentityBasis 当前分解为单位矩阵且没有更新
func (f *Factorization) IsIdentityBasis() bool { return f.identityBasis }

// NumUpdates 上次分解以来的更新次数
func (f *Factorization) NumUpdates() int { return f.numUpdates }

// SolveCount 累计求解次数
func (f *Factorization) SolveCount() int { return f.solveCount }

// DeterministicTime 累计确定性时间：分解、求解与更新链
func (f *Factorization) DeterministicTime() float64 {
	return f.deterministicTime + f.chainTime()
}
