package pricing

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"simplex/basis"
	"simplex/config"
	"simplex/sparse"
	"simplex/stats"
)

func TestReducedCostsMatchRecomputation(t *testing.T) {
	for _, threads := range []int{1, 4} {
		for name, configure := range strategies() {
			t.Run(name, func(t *testing.T) {
				fx := newPivotFixture(t, 37, 15, 25, configure, func(p *config.Parameters) { p.NumThreads = threads })
				for k := 0; k < 25; k++ {
					fx.randomPivot(t)
					assert.False(t, fx.costs.AreReducedCostsPrecise())
					fresh := NewReducedCosts(&fx.params, fx.matrix, fx.objective, fx.basis, fx.vars, fx.factorization, nil)
					assertRelativeClose(t, fx, fresh.GetReducedCosts(), fx.costs.GetReducedCosts(), 1e-9, "reduced cost")
				}
			})
		}
	}
}

func TestDualValuesAndResidual(t *testing.T) {
	fx := newPivotFixture(t, 41, 10, 15, nil)
	for k := 0; k < 5; k++ {
		fx.randomPivot(t)
	}
	y := fx.costs.GetDualValues()
	// yᵗ·B = c_B
	b := sparse.ToDense(sparse.BasisView{Matrix: fx.matrix, Basis: fx.basis})
	var yB mat.VecDense
	yB.MulVec(b.T(), mat.NewVecDense(len(y), y))
	for row, col := range fx.basis {
		assert.InDelta(t, fx.objective[col], yB.AtVec(row), 1e-10)
	}
	assert.Less(t, fx.costs.ComputeMaximumDualResidual(), 1e-10)

	full := fx.costs.GetFullReducedCosts()
	for _, col := range fx.basis {
		assert.InDelta(t, 0, full[col], 1e-10)
	}
	fx.costs.MakeReducedCostsPrecise()
	fx.costs.GetReducedCosts()
	assert.True(t, fx.costs.AreReducedCostsPrecise())
	assert.Less(t, fx.costs.MaxDualResidualAtLastRecomputation(), 1e-10)
}

func TestEnteringReducedCostPrecision(t *testing.T) {
	fx := newPivotFixture(t, 43, 10, 15, nil)
	fx.randomPivot(t)

	entering, _, d := fx.randomEntering()
	fresh := NewReducedCosts(&fx.params, fx.matrix, fx.objective, fx.basis, fx.vars, fx.factorization, nil)
	want := fresh.GetReducedCosts()
	fx.costs.GetReducedCosts()[entering] += 1

	valid := fx.costs.TestEnteringReducedCostPrecision(entering, d)
	assert.True(t, fx.costs.AreReducedCostsPrecise())
	assert.Equal(t, fresh.IsValidPrimalEnteringCandidate(entering), valid)
	assertRelativeClose(t, fx, want, fx.costs.GetReducedCosts(), 1e-10, "reduced cost")
	assert.Positive(t, fx.stats.Get(stats.ReducedCostAccuracy).Count())
}

// slackProblem 松弛基（y = 0，d = c），变量类型轮流出现
func slackProblem(t *testing.T, objective []float64, lower, upper []float64, configure ...func(*config.Parameters)) (*ReducedCosts, *VariablesInfo) {
	t.Helper()
	m := 3
	rng := rand.New(rand.NewSource(5))
	matrix := testProblem(rng, m, len(objective)-2*m, 0.5)
	params := config.New(configure...)
	basisCols := []int{len(objective) - 3, len(objective) - 2, len(objective) - 1}
	vars := NewVariablesInfo(matrix, lower, upper)
	vars.InitializeFromBasis(basisCols)
	f := basis.New(&params, matrix, basisCols, nil)
	require.NoError(t, f.Initialize())
	require.True(t, f.IsIdentityBasis())
	return NewReducedCosts(&params, matrix, objective, basisCols, vars, f, nil), vars
}

func TestDualInfeasibility(t *testing.T) {
	inf := math.Inf(1)
	objective := []float64{-1, 2, 3, -4, 0.5, 7, 0, 0, 0}
	lower := []float64{0, 0, -inf, -inf, -inf, 1, 0, 0, 0}
	upper := []float64{inf, inf, 5, 5, inf, 1, inf, inf, inf}
	costs, _ := slackProblem(t, objective, lower, upper)

	assert.InDeltaSlice(t, objective, costs.GetReducedCosts(), 1e-15)
	// 0: 下界且 d<0；2: 上界且 d>0；4: 自由变量；5: 固定变量不相关
	assert.True(t, costs.IsValidPrimalEnteringCandidate(0))
	assert.False(t, costs.IsValidPrimalEnteringCandidate(1))
	assert.True(t, costs.IsValidPrimalEnteringCandidate(2))
	assert.False(t, costs.IsValidPrimalEnteringCandidate(3))
	assert.True(t, costs.IsValidPrimalEnteringCandidate(4))
	assert.False(t, costs.IsValidPrimalEnteringCandidate(5))

	assert.InDelta(t, 3, costs.ComputeMaximumDualInfeasibility(), 1e-15)
	assert.InDelta(t, 1+3+0.5, costs.ComputeSumOfDualInfeasibilities(), 1e-15)
	assert.InDelta(t, 0, costs.ComputeMaximumDualResidual(), 1e-15)
}

func TestShiftCostIfNeeded(t *testing.T) {
	inf := math.Inf(1)
	objective := []float64{0.5, -0.5, 0, 1e-12, 0, 0, 0, 0}
	lower := []float64{0, 0, 0, 0, 0, 0, 0, 0}
	upper := []float64{inf, inf, inf, inf, inf, inf, inf, inf}
	costs, _ := slackProblem(t, objective, lower, upper)
	delta := costs.params.DegenerateMinistepFactor * costs.params.DualFeasibilityTolerance

	costs.ShiftCostIfNeeded(true, 1)
	assert.False(t, costs.HasCostShift())
	assert.Equal(t, -0.5, costs.GetReducedCosts()[1])

	costs.ShiftCostIfNeeded(true, 0)
	assert.True(t, costs.HasCostShift())
	assert.InDelta(t, -delta, costs.GetReducedCosts()[0], 1e-15)

	costs.ShiftCostIfNeeded(false, 3)
	assert.InDelta(t, delta, costs.GetReducedCosts()[3], 1e-15)

	costs.ClearAndRemoveCostShifts()
	assert.False(t, costs.HasCostShift())
	assert.InDeltaSlice(t, objective, costs.GetReducedCosts(), 1e-15)
}

func TestPerturbCosts(t *testing.T) {
	inf := math.Inf(1)
	objective := []float64{2, -3, 4, -1, 0, 5, 0, 0, 0}
	lower := []float64{0, -inf, -1, -1, -1, -inf, 2, 0, 0}
	upper := []float64{inf, 0, 1, 1, 1, inf, 2, inf, inf}
	costs, _ := slackProblem(t, objective, lower, upper, func(p *config.Parameters) {
		p.RelativeCostPerturbation = 1e-3
		p.RelativeMaxCostPerturbation = 1e-4
	})
	costs.GetReducedCosts()
	costs.PerturbCosts()
	p := costs.costPerturbations

	base := func(col int) float64 { return 1e-3*math.Abs(objective[col]) + 1e-4*5 }
	inRange := func(col int, v float64) {
		assert.GreaterOrEqual(t, math.Abs(v), base(col), "column %d", col)
		assert.Less(t, math.Abs(v), 2*base(col), "column %d", col)
	}
	inRange(0, p[0])
	assert.Positive(t, p[0]) // 下界
	inRange(1, p[1])
	assert.Negative(t, p[1]) // 上界
	inRange(2, p[2])
	assert.Positive(t, p[2]) // 有界，c > 0
	inRange(3, p[3])
	assert.Negative(t, p[3]) // 有界，c < 0
	assert.Zero(t, p[4])     // 有界，c = 0
	assert.Zero(t, p[5])     // 自由
	assert.Zero(t, p[6])     // 固定

	d := costs.GetReducedCosts()
	y := costs.GetDualValues()
	for col := range objective {
		assert.InDelta(t, objective[col]+p[col]-costs.matrix.ColumnScalarProduct(col, y), d[col], 1e-15)
	}
	costs.ClearAndRemoveCostShifts()
	assert.InDeltaSlice(t, objective, costs.GetReducedCosts(), 1e-15)
}
