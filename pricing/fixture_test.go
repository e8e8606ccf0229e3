package pricing

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"simplex/basis"
	"simplex/config"
	"simplex/sparse"
	"simplex/stats"
)

// testProblem m个下双对角结构列，n个随机稀疏列，之后是m个松弛列
func testProblem(rng *rand.Rand, m, n int, density float64) *sparse.CompactMatrix {
	a := sparse.NewMatrix(m)
	for j := 0; j < m; j++ {
		if j+1 < m {
			a.AppendColumn([]int{j, j + 1}, []float64{2, 1})
		} else {
			a.AppendUnitVector(j, 2)
		}
	}
	for j := 0; j < n; j++ {
		var rows []int
		var coeffs []float64
		for i := 0; i < m; i++ {
			if rng.Float64() < density {
				rows = append(rows, i)
				coeffs = append(coeffs, 2*rng.Float64()-1)
			}
		}
		a.AppendColumn(rows, coeffs)
	}
	for i := 0; i < m; i++ {
		a.AppendUnitVector(i, 1)
	}
	return sparse.NewCompactMatrix(a)
}

func fill(n int, v float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// pivotFixture 一个基分解与其上的全部定价组件，按单纯形一次换基的顺序更新
type pivotFixture struct {
	params        config.Parameters
	matrix        *sparse.CompactMatrix
	basis         []int
	objective     []float64
	vars          *VariablesInfo
	factorization *basis.Factorization
	stats         *stats.Stats
	updateRow     *UpdateRow
	primal        *PrimalEdgeNorms
	dual          *DualEdgeNorms
	costs         *ReducedCosts
	rng           *rand.Rand
}

// newPivotFixture 初始基为双对角结构列，所有变量非负
func newPivotFixture(t *testing.T, seed int64, m, n int, configure ...func(*config.Parameters)) *pivotFixture {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	fx := &pivotFixture{
		params: config.New(configure...),
		matrix: testProblem(rng, m, n, 0.3),
		stats:  stats.New(),
		rng:    rng,
	}
	numCols := fx.matrix.NumCols()
	fx.basis = make([]int, m)
	for i := range fx.basis {
		fx.basis[i] = i
	}
	fx.objective = make([]float64, numCols)
	for j := range fx.objective {
		fx.objective[j] = 2*rng.Float64() - 1
	}
	fx.vars = NewVariablesInfo(fx.matrix, fill(numCols, 0), fill(numCols, math.Inf(1)))
	fx.vars.InitializeFromBasis(fx.basis)
	fx.factorization = basis.New(&fx.params, fx.matrix, fx.basis, fx.stats)
	require.NoError(t, fx.factorization.Initialize())

	fx.updateRow = NewUpdateRow(&fx.params, fx.matrix, fx.vars, fx.factorization)
	fx.primal = NewPrimalEdgeNorms(&fx.params, fx.matrix, fx.vars, fx.factorization, fx.stats)
	fx.dual = NewDualEdgeNorms(&fx.params, fx.factorization, fx.stats)
	fx.costs = NewReducedCosts(&fx.params, fx.matrix, fx.objective, fx.basis, fx.vars, fx.factorization, fx.stats)
	fx.primal.GetSquaredNorms()
	fx.dual.GetEdgeSquaredNorms(m)
	fx.costs.GetReducedCosts()
	return fx
}

// randomEntering 随机非基列，其方向的最大分量作为主元
func (fx *pivotFixture) randomEntering() (int, int, *sparse.ScatteredColumn) {
	numCols := fx.matrix.NumCols()
	for {
		col := fx.rng.Intn(numCols)
		if fx.vars.IsBasic().Get(col) {
			continue
		}
		var d sparse.ScatteredColumn
		fx.factorization.RightSolveForProblemColumn(col, &d)
		row, best := -1, 0.1
		for i, v := range d.Values {
			if math.Abs(v) > best {
				row, best = i, math.Abs(v)
			}
		}
		if row >= 0 {
			return col, row, &d
		}
	}
}

// pivot 进基列entering替换基位置leavingRow
func (fx *pivotFixture) pivot(t *testing.T, entering, leavingRow int, d *sparse.ScatteredColumn) {
	t.Helper()
	leavingCol := fx.basis[leavingRow]
	fx.updateRow.ComputeUpdateRow(leavingRow)
	fx.primal.TestEnteringEdgeNormPrecision(entering, d)
	fx.primal.UpdateBeforeBasisPivot(entering, leavingCol, leavingRow, d, fx.updateRow)
	fx.dual.UpdateBeforeBasisPivot(entering, leavingRow, d, fx.updateRow.GetUnitRowLeftInverse())
	fx.costs.UpdateBeforeBasisPivot(entering, leavingRow, d, fx.updateRow)

	fx.basis[leavingRow] = entering
	require.NoError(t, fx.factorization.Update(entering, leavingRow, d))
	fx.vars.UpdateToBasicStatus(entering)
	fx.vars.UpdateToNonBasicStatus(leavingCol, fx.vars.DefaultNonBasicStatus(leavingCol))
	fx.updateRow.Invalidate()
}

// randomPivot 随机换基一次
func (fx *pivotFixture) randomPivot(t *testing.T) {
	t.Helper()
	entering, leavingRow, d := fx.randomEntering()
	fx.pivot(t, entering, leavingRow, d)
}

func strategies() map[string]func(p *config.Parameters) {
	return map[string]func(p *config.Parameters){
		"eta": func(p *config.Parameters) { p.UseMiddleProductFormUpdate = false },
		"mpf": func(p *config.Parameters) { p.UseMiddleProductFormUpdate = true },
	}
}

// assertRelativeClose 非基列上逐个比较，误差相对max(1,|want|)
func assertRelativeClose(t *testing.T, fx *pivotFixture, want, got []float64, tolerance float64, what string) {
	t.Helper()
	fx.vars.NotBasic().ForEach(func(col int) {
		scale := max(1, math.Abs(want[col]))
		require.InDelta(t, want[col]/scale, got[col]/scale, tolerance, "%s of column %d", what, col)
	})
}
