package pricing

import (
	"log"
	"math"

	"simplex/basis"
	"simplex/config"
	"simplex/sparse"
	"simplex/stats"
)

// dualNormLowerBound 增量更新后非离基位置的下界
const dualNormLowerBound = 1e-4

// DualEdgeNorms 对偶单纯形边范数 β_i = ‖e_i·B⁻¹‖²（按基位置索引）
type DualEdgeNorms struct {
	params        *config.Parameters
	factorization *basis.Factorization
	stats         *stats.Stats

	edgeSquaredNorms          []float64
	recomputeEdgeSquaredNorms bool
	numRecomputations         int
}

// NewDualEdgeNorms 创建，首次读取时计算
func NewDualEdgeNorms(params *config.Parameters, factorization *basis.Factorization, st *stats.Stats) *DualEdgeNorms {
	return &DualEdgeNorms{
		params:                    params,
		factorization:             factorization,
		stats:                     st,
		recomputeEdgeSquaredNorms: true,
	}
}

// Clear 丢弃范数，下次读取时重算
func (n *DualEdgeNorms) Clear() { n.recomputeEdgeSquaredNorms = true }

// NeedsRecomputation 下次读取是否会整体重算
func (n *DualEdgeNorms) NeedsRecomputation() bool { return n.recomputeEdgeSquaredNorms }

// NumRecomputations 整体重算次数
func (n *DualEdgeNorms) NumRecomputations() int { return n.numRecomputations }

// GetEdgeSquaredNorms β（按基位置索引），需要时先重算
func (n *DualEdgeNorms) GetEdgeSquaredNorms(numRows int) []float64 {
	if n.recomputeEdgeSquaredNorms || len(n.edgeSquaredNorms) != numRows {
		n.computeEdgeSquaredNorms(numRows)
	}
	return n.edgeSquaredNorms
}

func (n *DualEdgeNorms) computeEdgeSquaredNorms(numRows int) {
	if len(n.edgeSquaredNorms) != numRows {
		n.edgeSquaredNorms = make([]float64, numRows)
	}
	for row := range n.edgeSquaredNorms {
		n.edgeSquaredNorms[row] = n.factorization.DualEdgeSquaredNorm(row)
	}
	n.recomputeEdgeSquaredNorms = false
	n.numRecomputations++
}

// UpdateDataOnBasisPermutation 基位置重排：新位置perm[i]取旧位置i的范数
func (n *DualEdgeNorms) UpdateDataOnBasisPermutation(perm []int) {
	if n.recomputeEdgeSquaredNorms {
		return
	}
	old := append([]float64(nil), n.edgeSquaredNorms...)
	for i, p := range perm {
		n.edgeSquaredNorms[p] = old[i]
	}
}

// ResizeOnNewRows 新增的行（松弛变量为基）范数为1
func (n *DualEdgeNorms) ResizeOnNewRows(numRows int) {
	for len(n.edgeSquaredNorms) < numRows {
		n.edgeSquaredNorms = append(n.edgeSquaredNorms, 1)
	}
}

// UpdateBeforeBasisPivot 换基前增量更新
// 参数:
//
//	enteringCol - 进基列（只用于日志）
//	leavingRow  - 离基位置 r
//	direction   - d = B⁻¹·a_enteringCol
//	rho         - ρ = e_r·B⁻¹，必须是最近一次LeftSolveForUnitRow的结果
//
// 离基位置范数的精确值与增量值相差过大时只标记重算。
func (n *DualEdgeNorms) UpdateBeforeBasisPivot(enteringCol, leavingRow int, direction *sparse.ScatteredColumn, rho *sparse.ScatteredRow) {
	if n.recomputeEdgeSquaredNorms {
		return
	}
	pivot := direction.Values[leavingRow]
	tau := n.factorization.RightSolveForTau(sparse.RowAsColumn(rho))

	leavingSquaredNorm := rho.SquaredNorm()
	old := n.edgeSquaredNorms[leavingRow]
	preciseNorm := math.Sqrt(leavingSquaredNorm)
	accuracy := (preciseNorm - math.Sqrt(old)) / preciseNorm
	n.stats.Add(stats.EdgeNormAccuracy, math.Abs(accuracy))
	if math.Abs(accuracy) > n.params.RecomputeEdgesNormThreshold {
		if n.params.LogDrift {
			log.Printf("dual edge norms: recomputing, entering column %d, leaving norm %g vs %g", enteringCol, preciseNorm, math.Sqrt(old))
		}
		n.recomputeEdgeSquaredNorms = true
		return
	}

	newLeavingSquaredNorm := leavingSquaredNorm / (pivot * pivot)
	factor := 2 / pivot
	direction.ForEachNonZero(func(row int, d float64) {
		if row == leavingRow {
			return
		}
		n.edgeSquaredNorms[row] += d * (d*newLeavingSquaredNorm - factor*tau[row])
		n.edgeSquaredNorms[row] = max(n.edgeSquaredNorms[row], dualNormLowerBound)
	})
	n.edgeSquaredNorms[leavingRow] = newLeavingSquaredNorm
}
