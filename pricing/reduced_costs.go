package pricing

import (
	"fmt"
	"log"
	"math"
	"math/rand/v2"

	"simplex/basis"
	"simplex/config"
	"simplex/sparse"
	"simplex/stats"
)

// ReducedCosts 维护 d_j = c_j + p_j − y·a_j，y = c_B·B⁻¹，p 为代价扰动与平移
//
// 换基时按更新行增量更新；进基列的精确值与增量值相差过大时下次读取整体重算。
// basis 由调用方持有，与基分解共享。
type ReducedCosts struct {
	params        *config.Parameters
	matrix        *sparse.CompactMatrix
	objective     []float64
	basis         []int
	vars          *VariablesInfo
	factorization *basis.Factorization
	stats         *stats.Stats
	rng           *rand.Rand

	costPerturbations []float64
	basicObjective    []float64 // 按基位置：c + p
	reducedCosts      []float64
	fullReducedCosts  []float64
	dualValues        sparse.ScatteredRow

	recompute          bool
	dualValuesAreValid bool
	arePrecise         bool
	hasCostShift       bool
	maxDualResidual    float64

	numRecomputations int
	numFpOperations   int64
}

// NewReducedCosts 创建，首次读取时计算
// 参数:
//
//	objective - 目标系数（按列，最小化）
//	basis     - 基列号，调用方在换基后原地修改
func NewReducedCosts(params *config.Parameters, matrix *sparse.CompactMatrix, objective []float64, basis []int, vars *VariablesInfo, factorization *basis.Factorization, st *stats.Stats) *ReducedCosts {
	if len(objective) != matrix.NumCols() {
		panic(fmt.Sprintf("reduced costs: %d objective coefficients for %d columns", len(objective), matrix.NumCols()))
	}
	seed := params.RandomSeed
	return &ReducedCosts{
		params:            params,
		matrix:            matrix,
		objective:         objective,
		basis:             basis,
		vars:              vars,
		factorization:     factorization,
		stats:             st,
		rng:               rand.New(rand.NewPCG(seed, seed+1)),
		costPerturbations: make([]float64, matrix.NumCols()),
		basicObjective:    make([]float64, len(basis)),
		reducedCosts:      make([]float64, matrix.NumCols()),
		fullReducedCosts:  make([]float64, matrix.NumCols()),
		recompute:         true,
	}
}

// cost c_j + p_j
func (r *ReducedCosts) cost(col int) float64 { return r.objective[col] + r.costPerturbations[col] }

func (r *ReducedCosts) computeBasicObjective() {
	for row, col := range r.basis {
		r.basicObjective[row] = r.cost(col)
	}
}

// computeDualValues y = c_B·B⁻¹
func (r *ReducedCosts) computeDualValues() {
	if r.dualValuesAreValid {
		return
	}
	r.computeBasicObjective()
	y := &r.dualValues
	y.ClearAndResize(len(r.basicObjective))
	copy(y.Values, r.basicObjective)
	r.factorization.LeftSolve(y)
	r.dualValuesAreValid = true
}

// computeReducedCosts 所有列（基列的值即对偶残差）
func (r *ReducedCosts) computeReducedCosts() {
	r.computeDualValues()
	y := r.dualValues.Values
	isBasic := r.vars.IsBasic()
	r.maxDualResidual = ParallelFor(r.params.NumThreads, r.matrix.NumCols(), func(_, begin, end int) float64 {
		residual := 0.0
		for col := begin; col < end; col++ {
			d := r.cost(col) - r.matrix.ColumnScalarProduct(col, y)
			r.reducedCosts[col] = d
			if isBasic.Get(col) {
				residual = max(residual, math.Abs(d))
			}
		}
		return residual
	})
	r.numFpOperations += int64(r.matrix.NumEntries())
	r.recompute = false
	r.arePrecise = true
	r.numRecomputations++
}

// GetReducedCosts 按列号索引，需要时先重算
// 非基相关列上的值有意义；基列上的值只在刚重算后是对偶残差。
func (r *ReducedCosts) GetReducedCosts() []float64 {
	if r.recompute {
		r.computeReducedCosts()
	}
	return r.reducedCosts
}

// GetFullReducedCosts 所有列的当前值，基列用最新的对偶值重新计算
func (r *ReducedCosts) GetFullReducedCosts() []float64 {
	copy(r.fullReducedCosts, r.GetReducedCosts())
	r.computeDualValues()
	y := r.dualValues.Values
	for _, col := range r.basis {
		r.fullReducedCosts[col] = r.cost(col) - r.matrix.ColumnScalarProduct(col, y)
	}
	return r.fullReducedCosts
}

// GetDualValues y = c_B·B⁻¹（按行索引）
func (r *ReducedCosts) GetDualValues() []float64 {
	r.computeDualValues()
	return r.dualValues.Values
}

// AreReducedCostsPrecise 上次整体重算后没有增量更新
func (r *ReducedCosts) AreReducedCostsPrecise() bool { return r.arePrecise && !r.recompute }

// MakeReducedCostsPrecise 有过增量更新时标记下次读取整体重算
func (r *ReducedCosts) MakeReducedCostsPrecise() {
	if !r.arePrecise {
		r.recompute = true
		r.dualValuesAreValid = false
	}
}

// HasCostShift 是否存在代价平移
func (r *ReducedCosts) HasCostShift() bool { return r.hasCostShift }

// IsValidPrimalEnteringCandidate 沿可行方向移动能严格降低目标
func (r *ReducedCosts) IsValidPrimalEnteringCandidate(col int) bool {
	d := r.GetReducedCosts()[col]
	tolerance := r.params.DualFeasibilityTolerance
	return (r.vars.CanDecrease().Get(col) && d > tolerance) ||
		(r.vars.CanIncrease().Get(col) && d < -tolerance)
}

// TestEnteringReducedCostPrecision 用 c_q + p_q − c_B·d 校验进基列的增量值
// 参数:
//
//	enteringCol - 进基列
//	direction   - d = B⁻¹·a_enteringCol
//
// 返回:
//
//	校验（必要时整体重算）后进基列是否仍是合法的候选
func (r *ReducedCosts) TestEnteringReducedCostPrecision(enteringCol int, direction *sparse.ScatteredColumn) bool {
	if r.recompute {
		return r.IsValidPrimalEnteringCandidate(enteringCol)
	}
	r.computeBasicObjective()
	precise := r.cost(enteringCol)
	direction.ForEachNonZero(func(row int, d float64) {
		precise -= r.basicObjective[row] * d
	})
	old := r.reducedCosts[enteringCol]
	r.reducedCosts[enteringCol] = precise

	scale := 1.0
	if math.Abs(precise) > 1 {
		scale = math.Abs(precise)
	}
	accuracy := math.Abs(old-precise) / scale
	r.stats.Add(stats.ReducedCostAccuracy, accuracy)
	if accuracy > r.params.RecomputeReducedCostsThreshold {
		if r.params.LogDrift {
			log.Printf("reduced costs: recomputing, column %d has %g instead of %g", enteringCol, old, precise)
		}
		r.MakeReducedCostsPrecise()
	}
	return r.IsValidPrimalEnteringCandidate(enteringCol)
}

// UpdateBeforeBasisPivot 换基前增量更新：d_j ← d_j − (d_q/α_rq)·α_rj
// basis[leavingRow] 仍为离基列。
func (r *ReducedCosts) UpdateBeforeBasisPivot(enteringCol, leavingRow int, direction *sparse.ScatteredColumn, updateRow *UpdateRow) {
	leavingCol := r.basis[leavingRow]
	r.dualValuesAreValid = false
	if r.recompute {
		return
	}
	pivot := direction.Values[leavingRow]
	newLeavingReducedCost := r.reducedCosts[enteringCol] / -pivot
	for _, col := range updateRow.GetNonZeroPositions() {
		r.reducedCosts[col] += newLeavingReducedCost * updateRow.GetCoefficient(col)
	}
	r.numFpOperations += int64(len(updateRow.GetNonZeroPositions()))
	r.reducedCosts[leavingCol] = newLeavingReducedCost
	r.reducedCosts[enteringCol] = 0
	r.basicObjective[leavingRow] = r.cost(enteringCol)
	r.arePrecise = false
}

// PerturbCosts 随机扰动非零代价，使对偶可行方向上的退化被打破
//
// 扰动量为 (1+U[0,1))·(RelativeCostPerturbation·|c_j| + RelativeMaxCostPerturbation·max|c|)，
// 符号使下界变量的代价增大、上界变量的代价减小；有界变量跟随c_j的符号，
// 自由变量与固定变量不扰动。
func (r *ReducedCosts) PerturbCosts() {
	maxCost := 0.0
	for _, c := range r.objective {
		maxCost = max(maxCost, math.Abs(c))
	}
	for col, c := range r.objective {
		magnitude := (1 + r.rng.Float64()) *
			(r.params.RelativeCostPerturbation*math.Abs(c) + r.params.RelativeMaxCostPerturbation*maxCost)
		switch r.vars.Type(col) {
		case LowerBounded:
			r.costPerturbations[col] = magnitude
		case UpperBounded:
			r.costPerturbations[col] = -magnitude
		case UpperAndLowerBounded:
			switch {
			case c > 0:
				r.costPerturbations[col] = magnitude
			case c < 0:
				r.costPerturbations[col] = -magnitude
			default:
				r.costPerturbations[col] = 0
			}
		default:
			r.costPerturbations[col] = 0
		}
	}
	r.invalidate()
}

// ShiftCost p_col += shift，d_col 同步平移
func (r *ReducedCosts) ShiftCost(col int, shift float64) {
	r.costPerturbations[col] += shift
	r.reducedCosts[col] += shift
	r.hasCostShift = true
	if r.vars.IsBasic().Get(col) {
		r.invalidate()
	}
}

// ShiftCostIfNeeded 平移代价使col在需要的方向上有一个最小的改进量
// increasingNeeded 为真时保证 d_col ≤ −δ，否则保证 d_col ≥ δ，
// δ = DegenerateMinistepFactor·DualFeasibilityTolerance。
func (r *ReducedCosts) ShiftCostIfNeeded(increasingNeeded bool, col int) {
	delta := r.params.DegenerateMinistepFactor * r.params.DualFeasibilityTolerance
	d := r.GetReducedCosts()[col]
	if increasingNeeded {
		if d <= -delta {
			return
		}
		r.ShiftCost(col, -delta-d)
		return
	}
	if d >= delta {
		return
	}
	r.ShiftCost(col, delta-d)
}

// ClearAndRemoveCostShifts 去掉所有扰动与平移
func (r *ReducedCosts) ClearAndRemoveCostShifts() {
	clear(r.costPerturbations)
	r.hasCostShift = false
	r.invalidate()
}

func (r *ReducedCosts) invalidate() {
	r.recompute = true
	r.dualValuesAreValid = false
	r.arePrecise = false
}

// ComputeMaximumDualResidual 基列上 |c_j + p_j − y·a_j| 的最大值
func (r *ReducedCosts) ComputeMaximumDualResidual() float64 {
	r.computeDualValues()
	y := r.dualValues.Values
	residual := 0.0
	for _, col := range r.basis {
		residual = max(residual, math.Abs(r.cost(col)-r.matrix.ColumnScalarProduct(col, y)))
	}
	return residual
}

// dualInfeasibility 相关非基列沿可行方向能改进目标的量
func (r *ReducedCosts) dualInfeasibility(col int, d float64) float64 {
	infeasibility := 0.0
	if r.vars.CanDecrease().Get(col) && d > 0 {
		infeasibility = d
	}
	if r.vars.CanIncrease().Get(col) && d < 0 {
		infeasibility = max(infeasibility, -d)
	}
	return infeasibility
}

// ComputeMaximumDualInfeasibility 相关列上对偶不可行量的最大值
func (r *ReducedCosts) ComputeMaximumDualInfeasibility() float64 {
	reducedCosts := r.GetReducedCosts()
	maximum := 0.0
	r.vars.IsRelevant().ForEach(func(col int) {
		maximum = max(maximum, r.dualInfeasibility(col, reducedCosts[col]))
	})
	return maximum
}

// ComputeSumOfDualInfeasibilities 相关列上对偶不可行量之和
func (r *ReducedCosts) ComputeSumOfDualInfeasibilities() float64 {
	reducedCosts := r.GetReducedCosts()
	sum := 0.0
	r.vars.IsRelevant().ForEach(func(col int) {
		sum += r.dualInfeasibility(col, reducedCosts[col])
	})
	return sum
}

// MaxDualResidualAtLastRecomputation 上次整体重算时基列的最大残差
func (r *ReducedCosts) MaxDualResidualAtLastRecomputation() float64 { return r.maxDualResidual }

// NumRecomputations 整体重算次数
func (r *ReducedCosts) NumRecomputations() int { return r.numRecomputations }

// DeterministicTime 重算与增量更新累计的确定性时间
func (r *ReducedCosts) DeterministicTime() float64 {
	return sparse.DeterministicTimeForFpOperations(r.numFpOperations)
}
