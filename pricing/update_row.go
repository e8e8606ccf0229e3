package pricing

import (
	"math"
	"slices"

	"simplex/basis"
	"simplex/config"
	"simplex/sparse"
)

// positionSet 稀疏集合：插入、查询、清空均为O(1)，按插入顺序遍历
// sparse[v] 为v在dense中的下标，两者互相校验。
type positionSet struct {
	sparse []int
	dense  []int
}

// ClearAndResize 清空并保证可容纳[0, n)
func (s *positionSet) ClearAndResize(n int) {
	if len(s.sparse) < n {
		s.sparse = make([]int, n)
	}
	s.dense = s.dense[:0]
}

func (s *positionSet) Contains(v int) bool {
	i := s.sparse[v]
	return i < len(s.dense) && s.dense[i] == v
}

// Insert 插入v，已存在时返回false
func (s *positionSet) Insert(v int) bool {
	if s.Contains(v) {
		return false
	}
	s.sparse[v] = len(s.dense)
	s.dense = append(s.dense, v)
	return true
}

func (s *positionSet) Values() []int { return s.dense }
func (s *positionSet) Len() int      { return len(s.dense) }

// UpdateRow 离基行在非基相关列上的系数：ρ·A，ρ = e_r·B⁻¹
//
// 系数只在GetNonZeroPositions列出的位置上非零（绝对值大于DropTolerance）。
// 同一离基行在Invalidate之前重复计算是空操作。
type UpdateRow struct {
	params        *config.Parameters
	matrix        *sparse.CompactMatrix
	vars          *VariablesInfo
	factorization *basis.Factorization

	transposed      sparse.CompactMatrix // 按行存储，首次逐行计算时构建
	transposedValid bool

	unitRowLeftInverse sparse.ScatteredRow
	filteredNonZeros   []int // ρ中绝对值大于DropTolerance的位置
	leftInverseRow     int
	computedRow        int

	coefficients     []float64
	nonZeroPositions []int
	positions        positionSet
	workerPositions  [][]int

	lastAlgorithm   config.UpdateRowAlgorithm
	numFpOperations int64
}

// NewUpdateRow 创建更新行计算
func NewUpdateRow(params *config.Parameters, matrix *sparse.CompactMatrix, vars *VariablesInfo, factorization *basis.Factorization) *UpdateRow {
	return &UpdateRow{
		params:         params,
		matrix:         matrix,
		vars:           vars,
		factorization:  factorization,
		leftInverseRow: -1,
		computedRow:    -1,
		coefficients:   make([]float64, matrix.NumCols()),
	}
}

// Invalidate 换基后调用，之后的计算不再复用
func (u *UpdateRow) Invalidate() {
	u.leftInverseRow = -1
	u.computedRow = -1
}

func (u *UpdateRow) ensureTransposed() {
	if !u.transposedValid {
		u.transposed.PopulateFromTranspose(u.matrix)
		u.transposedValid = true
	}
}

// ComputeUnitRowLeftInverse ρ = e_leavingRow·B⁻¹
func (u *UpdateRow) ComputeUnitRowLeftInverse(leavingRow int) {
	if u.leftInverseRow == leavingRow {
		return
	}
	u.factorization.LeftSolveForUnitRow(leavingRow, &u.unitRowLeftInverse)
	u.leftInverseRow = leavingRow
}

// ComputeUpdateRow 按代价估计选择算法计算更新行
func (u *UpdateRow) ComputeUpdateRow(leavingRow int) {
	if u.computedRow == leavingRow {
		return
	}
	u.ComputeUnitRowLeftInverse(leavingRow)
	rowWise := u.filterNonZeros()
	algorithm := u.params.UpdateRowAlgorithm
	if algorithm == config.UpdateRowAuto {
		algorithm = config.UpdateRowColumnWise
		if rowWise < 0.5*float64(u.vars.NumEntriesInRelevantColumns()) {
			if rowWise < 1.1*float64(u.matrix.NumCols()) {
				algorithm = config.UpdateRowHyperSparseRows
			} else {
				algorithm = config.UpdateRowRowWise
			}
		}
	}
	u.compute(algorithm)
	u.computedRow = leavingRow
}

// ComputeUpdateRowForBenchmark 用指定算法重新计算（不复用之前的结果）
func (u *UpdateRow) ComputeUpdateRowForBenchmark(leavingRow int, algorithm config.UpdateRowAlgorithm) {
	u.ComputeUnitRowLeftInverse(leavingRow)
	u.filterNonZeros()
	if algorithm == config.UpdateRowAuto {
		algorithm = config.UpdateRowColumnWise
	}
	u.compute(algorithm)
	u.computedRow = leavingRow
}

// filterNonZeros 过滤ρ的小元素，返回逐行算法需要访问的矩阵元素数
func (u *UpdateRow) filterNonZeros() float64 {
	u.ensureTransposed()
	drop := u.params.DropTolerance
	u.filteredNonZeros = u.filteredNonZeros[:0]
	entries := 0
	u.unitRowLeftInverse.ForEachNonZero(func(i int, v float64) {
		if math.Abs(v) > drop {
			u.filteredNonZeros = append(u.filteredNonZeros, i)
			entries += u.transposed.ColumnNumEntries(i)
		}
	})
	return float64(entries)
}

func (u *UpdateRow) compute(algorithm config.UpdateRowAlgorithm) {
	for _, j := range u.nonZeroPositions {
		u.coefficients[j] = 0
	}
	u.nonZeroPositions = u.nonZeroPositions[:0]
	u.lastAlgorithm = algorithm
	switch algorithm {
	case config.UpdateRowRowWise:
		u.computeRowWise()
	case config.UpdateRowHyperSparseRows:
		u.computeRowWiseHyperSparse()
	default:
		u.computeColumnWise()
	}
}

// computeColumnWise 每个相关列一次内积，可多协程
func (u *UpdateRow) computeColumnWise() {
	rho := u.unitRowLeftInverse.Values
	drop := u.params.DropTolerance
	relevant := u.vars.IsRelevant()
	numThreads := max(u.params.NumThreads, 1)
	for len(u.workerPositions) < numThreads {
		u.workerPositions = append(u.workerPositions, nil)
	}
	ParallelFor(numThreads, u.matrix.NumCols(), func(worker, begin, end int) float64 {
		positions := u.workerPositions[worker][:0]
		for j := begin; j < end; j++ {
			if !relevant.Get(j) {
				continue
			}
			if v := u.matrix.ColumnScalarProduct(j, rho); math.Abs(v) > drop {
				u.coefficients[j] = v
				positions = append(positions, j)
			}
		}
		u.workerPositions[worker] = positions
		return 0
	})
	for w := 0; w < numThreads; w++ {
		u.nonZeroPositions = append(u.nonZeroPositions, u.workerPositions[w]...)
		u.workerPositions[w] = u.workerPositions[w][:0]
	}
	u.numFpOperations += int64(u.vars.NumEntriesInRelevantColumns())
}

// accumulateRows coefficients += ρ_i·(A的第i行)，visit 对每个被写入的位置调用
func (u *UpdateRow) accumulateRows(visit func(j int)) {
	rho := u.unitRowLeftInverse.Values
	for _, i := range u.filteredNonZeros {
		multiplier := rho[i]
		row := u.transposed.Column(i)
		for k, j := range row.Rows {
			u.coefficients[j] += multiplier * row.Coeffs[k]
			if visit != nil {
				visit(j)
			}
		}
		u.numFpOperations += int64(len(row.Rows))
	}
}

// keep 位置j保留（相关且超过舍弃阈值）或清零
func (u *UpdateRow) keep(j int) {
	if u.vars.IsRelevant().Get(j) && math.Abs(u.coefficients[j]) > u.params.DropTolerance {
		u.nonZeroPositions = append(u.nonZeroPositions, j)
		return
	}
	u.coefficients[j] = 0
}

// computeRowWise 稠密累加后整体扫描
func (u *UpdateRow) computeRowWise() {
	u.accumulateRows(nil)
	for j, v := range u.coefficients {
		if v != 0 {
			u.keep(j)
		}
	}
	u.numFpOperations += int64(len(u.coefficients))
}

// computeRowWiseHyperSparse 用位置集合记录被写入的列，避免整体扫描
func (u *UpdateRow) computeRowWiseHyperSparse() {
	u.positions.ClearAndResize(u.matrix.NumCols())
	u.accumulateRows(func(j int) { u.positions.Insert(j) })
	for _, j := range u.positions.Values() {
		u.keep(j)
	}
	slices.Sort(u.nonZeroPositions)
}

// ComputeFullUpdateRow out[j] = ρ·a_j 对所有列（包括基列）
func (u *UpdateRow) ComputeFullUpdateRow(leavingRow int, out []float64) {
	u.ComputeUnitRowLeftInverse(leavingRow)
	rho := u.unitRowLeftInverse.Values
	for j := range out {
		out[j] = u.matrix.ColumnScalarProduct(j, rho)
	}
}

// GetCoefficients 按列号索引的系数（只在非零位置上有效）
func (u *UpdateRow) GetCoefficients() []float64               { return u.coefficients }
func (u *UpdateRow) GetCoefficient(col int) float64           { return u.coefficients[col] }
func (u *UpdateRow) GetNonZeroPositions() []int               { return u.nonZeroPositions }
func (u *UpdateRow) LastAlgorithm() config.UpdateRowAlgorithm { return u.lastAlgorithm }

// GetUnitRowLeftInverse ρ = e_r·B⁻¹
func (u *UpdateRow) GetUnitRowLeftInverse() *sparse.ScatteredRow { return &u.unitRowLeftInverse }

// DeterministicTime 更新行计算累计的确定性时间
func (u *UpdateRow) DeterministicTime() float64 {
	return sparse.DeterministicTimeForFpOperations(u.numFpOperations)
}
