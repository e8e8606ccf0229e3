package simplex

import (
	"fmt"
	"log"
	"math"

	"github.com/pkg/errors"

	"simplex/basis"
	"simplex/config"
	"simplex/pricing"
	"simplex/sparse"
	"simplex/stats"
)

var (
	// ErrUnbounded 进基方向上没有限制步长的约束
	ErrUnbounded = errors.New("simplex: unbounded direction")
	// ErrSmallPivot 主元绝对值低于MinimumAcceptablePivot
	ErrSmallPivot = errors.New("simplex: pivot too small")
)

// Problem 标准形 min cᵗx，A·x = b，lower ≤ x ≤ upper
type Problem struct {
	Matrix        *sparse.CompactMatrix
	Objective     []float64
	Lower         []float64
	Upper         []float64
	RightHandSide []float64
}

// Engine 单纯形内核：一次换基所需的基分解与定价组件
type Engine struct {
	Params  config.Parameters
	Problem *Problem
	Basis   []int // 基列号，与基分解、检验数共享

	Vars          *pricing.VariablesInfo
	Factorization *basis.Factorization
	UpdateRow     *pricing.UpdateRow
	PrimalNorms   *pricing.PrimalEdgeNorms
	DualNorms     *pricing.DualEdgeNorms
	ReducedCosts  *pricing.ReducedCosts
	Record        stats.Record // 每次换基后的记录

	stats  *stats.Stats
	limit  *basis.TimeLimit
	values []float64 // 所有变量的当前值

	direction    sparse.ScatteredColumn
	directionCol int

	prices            *pricing.DynamicMaximum
	pricesStale       bool
	costRecomputation int
	costsPerturbed    bool // 代价扰动仍在生效

	iterations int
}

// NewEngine 创建并分解初始基
// 参数:
//
//	problem   - 问题数据（只读）
//	basis     - 初始基列号，长度等于行数
//	configure - 修改默认参数的回调
//
// 返回:
//
//	初始基奇异时返回分解错误
func NewEngine(problem *Problem, basisCols []int, configure ...func(p *config.Parameters)) (*Engine, error) {
	e := &Engine{
		Params:       config.New(configure...),
		Problem:      problem,
		Basis:        append([]int(nil), basisCols...),
		stats:        stats.New(),
		directionCol: -1,
		pricesStale:  true,
	}
	if err := e.Params.Validate(); err != nil {
		return nil, err
	}
	matrix := problem.Matrix
	numRows, numCols := matrix.NumRows(), matrix.NumCols()
	if len(e.Basis) != numRows {
		return nil, fmt.Errorf("simplex: basis has %d columns for %d rows", len(e.Basis), numRows)
	}
	if len(problem.RightHandSide) != numRows {
		return nil, fmt.Errorf("simplex: %d right hand side values for %d rows", len(problem.RightHandSide), numRows)
	}

	e.Vars = pricing.NewVariablesInfo(matrix, problem.Lower, problem.Upper)
	e.Vars.InitializeFromBasis(e.Basis)
	if err := e.Vars.CheckConsistency(e.Basis); err != nil {
		return nil, err
	}
	e.Factorization = basis.New(&e.Params, matrix, e.Basis, e.stats)
	if err := e.Factorization.Initialize(); err != nil {
		return nil, errors.Wrap(err, "simplex: initial basis")
	}
	e.UpdateRow = pricing.NewUpdateRow(&e.Params, matrix, e.Vars, e.Factorization)
	e.PrimalNorms = pricing.NewPrimalEdgeNorms(&e.Params, matrix, e.Vars, e.Factorization, e.stats)
	e.DualNorms = pricing.NewDualEdgeNorms(&e.Params, e.Factorization, e.stats)
	e.ReducedCosts = pricing.NewReducedCosts(&e.Params, matrix, problem.Objective, e.Basis, e.Vars, e.Factorization, e.stats)
	e.PrimalNorms.AddRecomputationWatcher(&e.pricesStale)
	if e.Params.UseDualPerturbation {
		e.ReducedCosts.PerturbCosts()
		e.costsPerturbed = true
	}
	if e.Params.MaxDeterministicTime > 0 {
		e.limit = basis.NewTimeLimit(e, e.Params.MaxDeterministicTime)
		e.PrimalNorms.SetTimeLimit(e.limit)
	}
	e.prices = pricing.NewDynamicMaximum(e.Params.RandomSeed)
	e.values = make([]float64, numCols)
	e.computeValues()
	e.Record.Init(e.Params, e.stats)
	return e, nil
}

// nonBasicValue 非基变量按状态取值
func (e *Engine) nonBasicValue(col int) float64 {
	switch e.Vars.Status(col) {
	case pricing.AtLowerBound, pricing.FixedValue:
		return e.Problem.Lower[col]
	case pricing.AtUpperBound:
		return e.Problem.Upper[col]
	}
	return 0
}

// computeValues 非基变量取界值，x_B = B⁻¹·(b − N·x_N)
func (e *Engine) computeValues() {
	matrix := e.Problem.Matrix
	var rhs sparse.ScatteredColumn
	rhs.ClearAndResize(matrix.NumRows())
	copy(rhs.Values, e.Problem.RightHandSide)
	e.Vars.NotBasic().ForEach(func(col int) {
		e.values[col] = e.nonBasicValue(col)
		if e.values[col] != 0 {
			matrix.ColumnAddMultipleToDense(col, -e.values[col], rhs.Values)
		}
	})
	e.Factorization.RightSolve(&rhs)
	for row, col := range e.Basis {
		e.values[col] = rhs.Values[row]
	}
}

// price 候选列的定价 d_j²/γ_j
func (e *Engine) price(col int, reducedCosts, norms []float64) {
	if !e.Vars.IsRelevant().Get(col) || !e.ReducedCosts.IsValidPrimalEnteringCandidate(col) {
		e.prices.Remove(col)
		return
	}
	d := reducedCosts[col]
	e.prices.AddOrUpdate(col, d*d/norms[col])
}

// rebuildPrices 所有相关列重新定价
func (e *Engine) rebuildPrices() {
	reducedCosts := e.ReducedCosts.GetReducedCosts()
	norms := e.PrimalNorms.GetSquaredNorms()
	e.prices.ClearAndResize(e.Problem.Matrix.NumCols())
	e.prices.StartDenseUpdates()
	tolerance := e.Params.DualFeasibilityTolerance
	canIncrease, canDecrease := e.Vars.CanIncrease(), e.Vars.CanDecrease()
	e.Vars.IsRelevant().ForEach(func(col int) {
		d := reducedCosts[col]
		if (canDecrease.Get(col) && d > tolerance) || (canIncrease.Get(col) && d < -tolerance) {
			e.prices.DenseAddOrUpdate(col, d*d/norms[col])
		}
	})
	e.pricesStale = false
	e.costRecomputation = e.ReducedCosts.NumRecomputations()
}

// ChooseEnteringColumn 最陡边（或Devex）定价选择进基列，没有候选时返回-1
func (e *Engine) ChooseEnteringColumn() int {
	reducedCosts := e.ReducedCosts.GetReducedCosts()
	e.PrimalNorms.GetSquaredNorms()
	if e.pricesStale || e.costRecomputation != e.ReducedCosts.NumRecomputations() {
		e.rebuildPrices()
	}
	for {
		col := e.prices.GetMaximum()
		if col < 0 || e.ReducedCosts.IsValidPrimalEnteringCandidate(col) {
			return col
		}
		e.price(col, reducedCosts, e.PrimalNorms.GetSquaredNorms())
	}
}

// ComputeDirection d = B⁻¹·a_entering，同一进基列只计算一次
func (e *Engine) ComputeDirection(entering int) *sparse.ScatteredColumn {
	if e.directionCol != entering {
		e.Factorization.RightSolveForProblemColumn(entering, &e.direction)
		e.directionCol = entering
	}
	return &e.direction
}

// enteringSign 进基变量的移动方向：+1 增大，−1 减小
func (e *Engine) enteringSign(entering int) float64 {
	if e.ReducedCosts.GetReducedCosts()[entering] > 0 {
		return -1
	}
	return 1
}

// boundSlack 基位置i上的变量到其阻挡界的距离与取值变化率的绝对值
// 变化方向上没有有限界时 ok 为假。
func (e *Engine) boundSlack(i int, di, sign float64) (slack, rate float64, ok bool) {
	col := e.Basis[i]
	change := -sign * di // x_B[i] 随步长t的变化率
	if change < 0 {
		if math.IsInf(e.Problem.Lower[col], -1) {
			return 0, 0, false
		}
		return e.values[col] - e.Problem.Lower[col], -change, true
	}
	if math.IsInf(e.Problem.Upper[col], 1) {
		return 0, 0, false
	}
	return e.Problem.Upper[col] - e.values[col], change, true
}

// ChooseLeavingRow 两遍Harris比值检验
//
// 第一遍把每个界放宽PrimalFeasibilityTolerance求最小比值h，已越界的变量不会再越过放宽后的界；
// 第二遍在比值不超过h的行中选|d_i|最大的行，步长取该行的（未放宽）比值，负值截为0。
// 返回:
//
//	row  - 离基位置；-1 表示进基变量直接移到另一个界（有界变量翻转）
//	step - 进基变量的步长
//	err  - 方向无界时返回ErrUnbounded
func (e *Engine) ChooseLeavingRow(entering int) (row int, step float64, err error) {
	d := e.ComputeDirection(entering)
	sign := e.enteringSign(entering)
	flip := math.Inf(1)
	if e.Vars.Type(entering) == pricing.UpperAndLowerBounded {
		flip = e.Problem.Upper[entering] - e.Problem.Lower[entering]
	}
	threshold := e.Params.SmallPivotThreshold
	tolerance := e.Params.PrimalFeasibilityTolerance

	harris := flip
	d.ForEachNonZero(func(i int, di float64) {
		if math.Abs(di) <= threshold {
			return
		}
		if slack, rate, ok := e.boundSlack(i, di, sign); ok {
			harris = min(harris, max(slack+tolerance, 0)/rate)
		}
	})
	if math.IsInf(harris, 1) {
		return -1, harris, errors.Wrapf(ErrUnbounded, "entering column %d", entering)
	}

	row, step = -1, math.Inf(1)
	best := 0.0
	d.ForEachNonZero(func(i int, di float64) {
		if math.Abs(di) <= threshold {
			return
		}
		slack, rate, ok := e.boundSlack(i, di, sign)
		if !ok {
			return
		}
		ratio := max(slack, 0) / rate
		if ratio <= harris && math.Abs(di) > best {
			row, step, best = i, ratio, math.Abs(di)
		}
	})
	if row < 0 || flip < step {
		return -1, flip, nil
	}
	return row, step, nil
}

// Pivot 进基列entering替换基位置leavingRow；leavingRow 为-1时把有界的进基变量移到另一个界
// 依次更新：更新行、边范数、检验数、基分解、变量状态与取值。
func (e *Engine) Pivot(entering, leavingRow int) error {
	if leavingRow < 0 {
		return e.flipBound(entering)
	}
	d := e.ComputeDirection(entering)
	pivot := d.Values[leavingRow]
	if math.Abs(pivot) < e.Params.MinimumAcceptablePivot {
		return errors.Wrapf(ErrSmallPivot, "entering %d leaving row %d pivot %g", entering, leavingRow, pivot)
	}
	leavingCol := e.Basis[leavingRow]
	leavingStatus := e.leavingStatus(leavingCol, -e.enteringSign(entering)*pivot)

	e.UpdateRow.ComputeUpdateRow(leavingRow)
	e.PrimalNorms.TestEnteringEdgeNormPrecision(entering, d)
	if !e.ReducedCosts.TestEnteringReducedCostPrecision(entering, d) && e.Params.LogDrift {
		log.Printf("simplex: column %d is no longer an entering candidate", entering)
	}
	e.PrimalNorms.UpdateBeforeBasisPivot(entering, leavingCol, leavingRow, d, e.UpdateRow)
	e.DualNorms.UpdateBeforeBasisPivot(entering, leavingRow, d, e.UpdateRow.GetUnitRowLeftInverse())
	e.ReducedCosts.UpdateBeforeBasisPivot(entering, leavingRow, d, e.UpdateRow)

	e.Basis[leavingRow] = entering
	if err := e.Factorization.Update(entering, leavingRow, d); err != nil {
		e.Basis[leavingRow] = leavingCol
		e.abandonPivot()
		return errors.Wrapf(err, "simplex: pivot %d", e.iterations)
	}
	e.Vars.UpdateToBasicStatus(entering)
	e.Vars.UpdateToNonBasicStatus(leavingCol, leavingStatus)

	if !e.pricesStale {
		reducedCosts := e.ReducedCosts.GetReducedCosts()
		norms := e.PrimalNorms.GetSquaredNorms()
		for _, col := range e.UpdateRow.GetNonZeroPositions() {
			e.price(col, reducedCosts, norms)
		}
		e.price(leavingCol, reducedCosts, norms)
		e.prices.Remove(entering)
	}
	e.UpdateRow.Invalidate()
	e.directionCol = -1
	e.finishIteration()
	return nil
}

// abandonPivot 基分解更新失败后回到换基前的基
// 边范数与检验数已按新基增量更新过，全部标记为重算。
func (e *Engine) abandonPivot() {
	if err := e.Factorization.ForceRefactorization(); err != nil {
		log.Printf("simplex: previous basis no longer factorizes: %v", err)
	}
	e.PrimalNorms.Clear()
	e.DualNorms.Clear()
	e.ReducedCosts.MakeReducedCostsPrecise()
	e.UpdateRow.Invalidate()
	e.directionCol = -1
	e.pricesStale = true
}

// leavingStatus 离基变量到达的界：change 为其取值随步长的变化率
func (e *Engine) leavingStatus(col int, change float64) pricing.VariableStatus {
	switch {
	case e.Vars.Type(col) == pricing.FixedVariable:
		return pricing.FixedValue
	case change < 0 && !math.IsInf(e.Problem.Lower[col], -1):
		return pricing.AtLowerBound
	case change > 0 && !math.IsInf(e.Problem.Upper[col], 1):
		return pricing.AtUpperBound
	}
	return e.Vars.DefaultNonBasicStatus(col)
}

// flipBound 有界非基变量在上下界之间切换，基不变
func (e *Engine) flipBound(col int) error {
	if e.Vars.Type(col) != pricing.UpperAndLowerBounded || e.Vars.IsBasic().Get(col) {
		return fmt.Errorf("simplex: column %d cannot flip bounds", col)
	}
	status := pricing.AtUpperBound
	if e.Vars.Status(col) == pricing.AtUpperBound {
		status = pricing.AtLowerBound
	}
	e.Vars.UpdateToNonBasicStatus(col, status)
	if !e.pricesStale {
		e.price(col, e.ReducedCosts.GetReducedCosts(), e.PrimalNorms.GetSquaredNorms())
	}
	e.finishIteration()
	return nil
}

func (e *Engine) finishIteration() {
	e.iterations++
	e.computeValues()
	e.Record.Update(e)
}

// Step 一次定价、比值检验与换基
//
// 没有进基候选但代价仍带扰动或平移时，先去掉扰动再继续；
// 退化步（步长为0）前平移进基列的代价，保证其检验数至少有一个最小改进量。
// 返回:
//
//	done - 没有进基候选（当前基在容差内对偶可行）
func (e *Engine) Step() (done bool, err error) {
	done, err = e.step()
	if err != nil {
		e.Record.Error(err)
	}
	return done, err
}

func (e *Engine) step() (bool, error) {
	if e.limit.LimitReached() {
		return false, fmt.Errorf("simplex: deterministic time limit %g reached", e.Params.MaxDeterministicTime)
	}
	entering := e.ChooseEnteringColumn()
	if entering < 0 {
		if e.costsPerturbed || e.ReducedCosts.HasCostShift() {
			e.ReducedCosts.ClearAndRemoveCostShifts()
			e.costsPerturbed = false
			e.pricesStale = true
			return false, nil
		}
		return true, nil
	}
	row, step, err := e.ChooseLeavingRow(entering)
	if err != nil {
		return false, err
	}
	if row >= 0 && step == 0 {
		e.ReducedCosts.ShiftCostIfNeeded(e.enteringSign(entering) > 0, entering)
	}
	return false, e.Pivot(entering, row)
}

// CostsArePerturbed 代价扰动或平移仍在生效
func (e *Engine) CostsArePerturbed() bool {
	return e.costsPerturbed || e.ReducedCosts.HasCostShift()
}

// Values 所有变量的当前取值
func (e *Engine) Values() []float64 { return e.values }

// ObjectiveValue cᵗx
func (e *Engine) ObjectiveValue() float64 {
	sum := 0.0
	for col, c := range e.Problem.Objective {
		sum += c * e.values[col]
	}
	return sum
}

// Stats 诊断统计
func (e *Engine) Stats() *stats.Stats { return e.stats }

// Iterations 换基次数（含有界变量翻转）
func (e *Engine) Iterations() int { return e.iterations }

// NumUpdates 上次分解以来的更新次数
func (e *Engine) NumUpdates() int { return e.Factorization.NumUpdates() }

// DeterministicTime 基分解、更新行、边范数与检验数的累计确定性时间
func (e *Engine) DeterministicTime() float64 {
	return e.Factorization.DeterministicTime() +
		e.UpdateRow.DeterministicTime() +
		e.PrimalNorms.DeterministicTime() +
		e.ReducedCosts.DeterministicTime()
}
