package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simplex/basis"
	"simplex/config"
	"simplex/stats"
)

func TestPrimalEdgeNormsMatchRecomputation(t *testing.T) {
	for name, configure := range strategies() {
		t.Run(name, func(t *testing.T) {
			fx := newPivotFixture(t, 11, 15, 20, configure)
			for k := 0; k < 25; k++ {
				fx.randomPivot(t)
				fresh := NewPrimalEdgeNorms(&fx.params, fx.matrix, fx.vars, fx.factorization, nil)
				assertRelativeClose(t, fx, fresh.GetEdgeSquaredNorms(), fx.primal.GetEdgeSquaredNorms(), 1e-6, "edge norm")
			}
			assert.Equal(t, 1, fx.primal.NumRecomputations())
			assert.Positive(t, fx.stats.Get(stats.EdgeNormAccuracy).Count())
		})
	}
}

func TestPrimalEdgeNormsDriftTriggersRecomputation(t *testing.T) {
	fx := newPivotFixture(t, 5, 10, 12, func(p *config.Parameters) {
		p.RecomputeEdgesNormThreshold = 1e-3
	})
	watched := false
	fx.primal.AddRecomputationWatcher(&watched)
	for k := 0; k < 3; k++ {
		fx.randomPivot(t)
	}
	require.False(t, watched)

	entering, _, d := fx.randomEntering()
	fx.primal.GetEdgeSquaredNorms()[entering] *= 100
	assert.True(t, fx.primal.TestEnteringEdgeNormPrecision(entering, d))
	assert.True(t, watched)
	assert.True(t, fx.primal.NeedsRecomputation())

	fresh := NewPrimalEdgeNorms(&fx.params, fx.matrix, fx.vars, fx.factorization, nil)
	want := fresh.GetEdgeSquaredNorms()
	got := fx.primal.GetEdgeSquaredNorms()
	assert.Equal(t, 2, fx.primal.NumRecomputations())
	assert.False(t, fx.primal.NeedsRecomputation())
	assertRelativeClose(t, fx, want, got, 1e-12, "edge norm")
}

func TestPrimalEdgeNormsTimeLimit(t *testing.T) {
	fx := newPivotFixture(t, 3, 10, 200, nil)
	fx.primal.SetTimeLimit(basis.NewTimeLimit(fx.factorization, 1e-300))
	fx.randomPivot(t)
	fx.primal.ForceRecomputation()
	norms := fx.primal.GetEdgeSquaredNorms()
	assert.False(t, fx.primal.NeedsRecomputation())
	// 预算在第一次检查时就已用完，所有列保留初值
	for _, v := range norms {
		assert.Equal(t, 1.0, v)
	}
}

func TestDevexWeights(t *testing.T) {
	fx := newPivotFixture(t, 7, 12, 15, func(p *config.Parameters) {
		p.UseSteepestEdge = false
		p.DevexWeightsResetPeriod = 3
	})
	for k := 0; k < 3; k++ {
		entering, leavingRow, d := fx.randomEntering()
		leavingCol := fx.basis[leavingRow]
		fx.pivot(t, entering, leavingRow, d)
		weights := fx.primal.GetDevexWeights()
		for col, w := range weights {
			require.GreaterOrEqual(t, w, 1.0, "column %d", col)
		}
		assert.GreaterOrEqual(t, weights[leavingCol], 1.0)
	}
	fx.randomPivot(t)
	for _, w := range fx.primal.GetDevexWeights() {
		assert.Equal(t, 1.0, w)
	}
	assert.Equal(t, fx.primal.GetDevexWeights(), fx.primal.GetSquaredNorms())
}

func TestDualEdgeNormsMatchRecomputation(t *testing.T) {
	for name, configure := range strategies() {
		t.Run(name, func(t *testing.T) {
			fx := newPivotFixture(t, 13, 15, 20, configure)
			m := len(fx.basis)
			for k := 0; k < 25; k++ {
				fx.randomPivot(t)
				fresh := NewDualEdgeNorms(&fx.params, fx.factorization, nil)
				want := fresh.GetEdgeSquaredNorms(m)
				got := fx.dual.GetEdgeSquaredNorms(m)
				for row := range want {
					require.InDelta(t, 1, got[row]/want[row], 1e-6, "row %d after %d pivots", row, k+1)
				}
			}
			assert.Equal(t, 1, fx.dual.NumRecomputations())
		})
	}
}

func TestDualEdgeNormsDrift(t *testing.T) {
	fx := newPivotFixture(t, 17, 8, 10, func(p *config.Parameters) {
		p.RecomputeEdgesNormThreshold = 1e-3
	})
	entering, leavingRow, d := fx.randomEntering()
	fx.dual.GetEdgeSquaredNorms(len(fx.basis))[leavingRow] *= 100
	fx.pivot(t, entering, leavingRow, d)
	assert.True(t, fx.dual.NeedsRecomputation())

	fresh := NewDualEdgeNorms(&fx.params, fx.factorization, nil)
	assert.InDeltaSlice(t, fresh.GetEdgeSquaredNorms(len(fx.basis)), fx.dual.GetEdgeSquaredNorms(len(fx.basis)), 1e-12)
}

func TestDualEdgeNormsPermutationAndResize(t *testing.T) {
	fx := newPivotFixture(t, 19, 4, 4, nil)
	norms := fx.dual.GetEdgeSquaredNorms(4)
	before := append([]float64(nil), norms...)

	fx.dual.UpdateDataOnBasisPermutation([]int{2, 0, 3, 1})
	after := fx.dual.GetEdgeSquaredNorms(4)
	assert.Equal(t, []float64{before[1], before[3], before[0], before[2]}, after)

	fx.dual.ResizeOnNewRows(6)
	assert.Equal(t, []float64{before[1], before[3], before[0], before[2], 1, 1}, fx.dual.GetEdgeSquaredNorms(6))

	fx.dual.Clear()
	assert.True(t, fx.dual.NeedsRecomputation())
}
