package pricing

import (
	"log"
	"math"

	"simplex/basis"
	"simplex/config"
	"simplex/sparse"
	"simplex/stats"
)

// PrimalEdgeNorms 非基列的原始单纯形边范数：γ_j = 1 + ‖B⁻¹·a_j‖²（最陡边），
// 或Devex权重（初始为1，周期性重置）
//
// 每次换基后按闭式公式增量更新；进基列的精确范数与增量值相差过大时，
// 标记下次读取时整体重算，并通知所有注册的观察者。
type PrimalEdgeNorms struct {
	params        *config.Parameters
	matrix        *sparse.CompactMatrix
	vars          *VariablesInfo
	factorization *basis.Factorization
	stats         *stats.Stats
	limit         *basis.TimeLimit

	edgeSquaredNorms          []float64
	recomputeEdgeSquaredNorms bool

	devexWeights              []float64
	resetDevexWeights         bool
	numDevexUpdatesSinceReset int

	directionLeftInverse sparse.ScatteredRow
	watchers             []*bool

	numRecomputations int
	numFpOperations   int64
}

// NewPrimalEdgeNorms 创建，首次读取时计算
func NewPrimalEdgeNorms(params *config.Parameters, matrix *sparse.CompactMatrix, vars *VariablesInfo, factorization *basis.Factorization, st *stats.Stats) *PrimalEdgeNorms {
	n := &PrimalEdgeNorms{
		params:        params,
		matrix:        matrix,
		vars:          vars,
		factorization: factorization,
		stats:         st,
	}
	n.Clear()
	return n
}

// SetTimeLimit 整体重算时检查的时间预算，nil表示不限制
func (n *PrimalEdgeNorms) SetTimeLimit(limit *basis.TimeLimit) { n.limit = limit }

// Clear 丢弃所有范数，下次读取时重算
func (n *PrimalEdgeNorms) Clear() {
	n.recomputeEdgeSquaredNorms = true
	n.resetDevexWeights = true
	n.numDevexUpdatesSinceReset = 0
}

// AddRecomputationWatcher 范数整体重算或Devex权重重置时把*watcher置为true
func (n *PrimalEdgeNorms) AddRecomputationWatcher(watcher *bool) {
	n.watchers = append(n.watchers, watcher)
}

// ForceRecomputation 标记整体重算并通知观察者
func (n *PrimalEdgeNorms) ForceRecomputation() {
	n.recomputeEdgeSquaredNorms = true
	n.notifyWatchers()
}

func (n *PrimalEdgeNorms) notifyWatchers() {
	for _, w := range n.watchers {
		*w = true
	}
}

// NeedsRecomputation 下次读取是否会整体重算
func (n *PrimalEdgeNorms) NeedsRecomputation() bool { return n.recomputeEdgeSquaredNorms }

// NumRecomputations 整体重算次数
func (n *PrimalEdgeNorms) NumRecomputations() int { return n.numRecomputations }

// GetEdgeSquaredNorms 最陡边范数的平方（按列号索引，基列无意义）
func (n *PrimalEdgeNorms) GetEdgeSquaredNorms() []float64 {
	if n.recomputeEdgeSquaredNorms {
		n.computeEdgeSquaredNorms()
	}
	return n.edgeSquaredNorms
}

// GetDevexWeights Devex权重（按列号索引）
func (n *PrimalEdgeNorms) GetDevexWeights() []float64 {
	if n.resetDevexWeights {
		n.resetDevex()
	}
	return n.devexWeights
}

// GetSquaredNorms 按UseSteepestEdge返回最陡边范数或Devex权重
func (n *PrimalEdgeNorms) GetSquaredNorms() []float64 {
	if n.params.UseSteepestEdge {
		return n.GetEdgeSquaredNorms()
	}
	return n.GetDevexWeights()
}

// computeEdgeSquaredNorms 对每个非基列做一次右求解
// 超出时间预算时提前结束，未计算的列保留为1，结果仍视为已重算。
func (n *PrimalEdgeNorms) computeEdgeSquaredNorms() {
	numCols := n.matrix.NumCols()
	if len(n.edgeSquaredNorms) != numCols {
		n.edgeSquaredNorms = make([]float64, numCols)
	}
	for col := range n.edgeSquaredNorms {
		n.edgeSquaredNorms[col] = 1
	}
	notBasic := n.vars.NotBasic()
	for col, solved := 0, 0; col < numCols; col++ {
		if !notBasic.Get(col) {
			continue
		}
		if solved%64 == 0 && n.limit.LimitReached() {
			log.Println("primal edge norms: time limit reached during recomputation")
			break
		}
		n.edgeSquaredNorms[col] = 1 + n.factorization.RightSolveSquaredNorm(n.matrix.Column(col))
		solved++
	}
	n.recomputeEdgeSquaredNorms = false
	n.numRecomputations++
}

func (n *PrimalEdgeNorms) resetDevex() {
	numCols := n.matrix.NumCols()
	if len(n.devexWeights) != numCols {
		n.devexWeights = make([]float64, numCols)
	}
	for col := range n.devexWeights {
		n.devexWeights[col] = 1
	}
	n.numDevexUpdatesSinceReset = 0
	n.resetDevexWeights = false
}

// TestEnteringEdgeNormPrecision 用方向 d = B⁻¹·a_q 的精确范数校验进基列的增量范数
// 相对误差超过RecomputeEdgesNormThreshold时标记整体重算，返回是否已标记。
func (n *PrimalEdgeNorms) TestEnteringEdgeNormPrecision(enteringCol int, direction *sparse.ScatteredColumn) bool {
	if !n.params.UseSteepestEdge || n.recomputeEdgeSquaredNorms {
		return n.recomputeEdgeSquaredNorms
	}
	old := n.edgeSquaredNorms[enteringCol]
	precise := 1 + direction.SquaredNorm()
	n.edgeSquaredNorms[enteringCol] = precise

	preciseNorm := math.Sqrt(precise)
	accuracy := (preciseNorm - math.Sqrt(old)) / preciseNorm
	n.stats.Add(stats.EdgeNormAccuracy, math.Abs(accuracy))
	if math.Abs(accuracy) > n.params.RecomputeEdgesNormThreshold {
		if n.params.LogDrift {
			log.Printf("primal edge norms: recomputing, entering norm %g vs %g", preciseNorm, math.Sqrt(old))
		}
		n.ForceRecomputation()
	}
	return n.recomputeEdgeSquaredNorms
}

// UpdateBeforeBasisPivot 换基前增量更新
// 参数:
//
//	enteringCol - 进基列
//	leavingCol  - 离基列
//	leavingRow  - 离基位置
//	direction   - d = B⁻¹·a_enteringCol（旧基）
//	updateRow   - 离基行的更新行（已计算）
func (n *PrimalEdgeNorms) UpdateBeforeBasisPivot(enteringCol, leavingCol, leavingRow int, direction *sparse.ScatteredColumn, updateRow *UpdateRow) {
	if n.params.UseSteepestEdge {
		if !n.recomputeEdgeSquaredNorms {
			n.computeDirectionLeftInverse(direction)
			n.updateEdgeSquaredNorms(enteringCol, leavingCol, leavingRow, direction, updateRow)
		}
		return
	}
	if n.resetDevexWeights {
		return
	}
	if n.numDevexUpdatesSinceReset >= n.params.DevexWeightsResetPeriod {
		n.resetDevexWeights = true
		n.notifyWatchers()
		return
	}
	n.updateDevexWeights(leavingCol, leavingRow, direction, updateRow)
	n.numDevexUpdatesSinceReset++
}

// computeDirectionLeftInverse w = dᵗ·B⁻¹
func (n *PrimalEdgeNorms) computeDirectionLeftInverse(direction *sparse.ScatteredColumn) {
	w := &n.directionLeftInverse
	w.CopyFrom(sparse.ColumnAsRow(direction))
	n.factorization.LeftSolve(w)
}

// updateEdgeSquaredNorms γ_j ← γ_j − 2·(α_j/α_q)·a_jᵗ·w + (α_j/α_q)²·γ_q，下界 1 + (α_j/α_q)²
func (n *PrimalEdgeNorms) updateEdgeSquaredNorms(enteringCol, leavingCol, leavingRow int, direction *sparse.ScatteredColumn, updateRow *UpdateRow) {
	pivot := direction.Values[leavingRow]
	enteringSquaredNorm := n.edgeSquaredNorms[enteringCol]
	ratio := enteringSquaredNorm / (pivot * pivot)
	factor := 2 / pivot
	w := n.directionLeftInverse.Values
	for _, col := range updateRow.GetNonZeroPositions() {
		coeff := updateRow.GetCoefficient(col)
		scalarProduct := n.matrix.ColumnScalarProduct(col, w)
		n.numFpOperations += int64(n.matrix.ColumnNumEntries(col))
		n.edgeSquaredNorms[col] += coeff * (coeff*ratio - factor*scalarProduct)
		if lowerBound := 1 + (coeff/pivot)*(coeff/pivot); n.edgeSquaredNorms[col] < lowerBound {
			n.edgeSquaredNorms[col] = lowerBound
		}
	}
	n.edgeSquaredNorms[leavingCol] = max(1, ratio)
}

// updateDevexWeights w_j ← max(w_j, (|α_rj|·‖d‖/|d_r|)²)
func (n *PrimalEdgeNorms) updateDevexWeights(leavingCol, leavingRow int, direction *sparse.ScatteredColumn, updateRow *UpdateRow) {
	enteringNorm := math.Sqrt(direction.SquaredNorm())
	leavingNorm := max(1, enteringNorm/math.Abs(direction.Values[leavingRow]))
	for _, col := range updateRow.GetNonZeroPositions() {
		v := math.Abs(updateRow.GetCoefficient(col)) * leavingNorm
		n.devexWeights[col] = max(n.devexWeights[col], v*v)
	}
	n.devexWeights[leavingCol] = leavingNorm * leavingNorm
}

// DeterministicTime 增量更新累计的确定性时间
func (n *PrimalEdgeNorms) DeterministicTime() float64 {
	return sparse.DeterministicTimeForFpOperations(n.numFpOperations)
}
