package pricing

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeFromBounds(t *testing.T) {
	inf := math.Inf(1)
	tests := []struct {
		lower, upper float64
		want         VariableType
	}{
		{-inf, inf, Unconstrained},
		{0, inf, LowerBounded},
		{-inf, 3, UpperBounded},
		{-1, 3, UpperAndLowerBounded},
		{2, 2, FixedVariable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TypeFromBounds(tt.lower, tt.upper), "[%g, %g]", tt.lower, tt.upper)
	}
	assert.Equal(t, "upper-and-lower-bounded", UpperAndLowerBounded.String())
	assert.Equal(t, "at-upper-bound", AtUpperBound.String())
}

// mixedBounds 五种类型轮流出现
func mixedBounds(n int) ([]float64, []float64) {
	inf := math.Inf(1)
	lower := make([]float64, n)
	upper := make([]float64, n)
	for j := 0; j < n; j++ {
		switch j % 5 {
		case 0:
			lower[j], upper[j] = 0, inf
		case 1:
			lower[j], upper[j] = -inf, 1
		case 2:
			lower[j], upper[j] = -5, 2
		case 3:
			lower[j], upper[j] = 1, 1
		default:
			lower[j], upper[j] = -inf, inf
		}
	}
	return lower, upper
}

func TestDefaultNonBasicStatus(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	matrix := testProblem(rng, 3, 7, 0.5)
	lower, upper := mixedBounds(matrix.NumCols())
	vars := NewVariablesInfo(matrix, lower, upper)
	want := []VariableStatus{AtLowerBound, AtUpperBound, AtUpperBound, FixedValue, Free}
	for col := 0; col < vars.NumVariables(); col++ {
		assert.Equal(t, want[col%5], vars.Status(col), "column %d", col)
	}
	assert.True(t, vars.CanIncrease().Get(4))
	assert.True(t, vars.CanDecrease().Get(4))
	assert.False(t, vars.IsRelevant().Get(3))
	assert.Panics(t, func() { vars.UpdateToNonBasicStatus(0, Basic) })
	assert.Panics(t, func() { NewVariablesInfo(matrix, lower[1:], upper) })
}

func TestVariablesInfoStaysConsistent(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	const m, n = 8, 20
	matrix := testProblem(rng, m, n, 0.4)
	numCols := matrix.NumCols()
	lower, upper := mixedBounds(numCols)
	vars := NewVariablesInfo(matrix, lower, upper)
	basis := make([]int, m)
	for i := range basis {
		basis[i] = m + n + i
	}
	vars.InitializeFromBasis(basis)
	require.NoError(t, vars.CheckConsistency(basis))

	statuses := []VariableStatus{AtLowerBound, AtUpperBound, FixedValue, Free}
	for step := 0; step < 300; step++ {
		switch rng.Intn(3) {
		case 0:
			row := rng.Intn(m)
			entering := rng.Intn(numCols)
			if vars.IsBasic().Get(entering) {
				continue
			}
			leaving := basis[row]
			basis[row] = entering
			vars.UpdateToBasicStatus(entering)
			vars.UpdateToNonBasicStatus(leaving, vars.DefaultNonBasicStatus(leaving))
		case 1:
			col := rng.Intn(numCols)
			if vars.IsBasic().Get(col) {
				continue
			}
			vars.UpdateToNonBasicStatus(col, statuses[rng.Intn(len(statuses))])
		default:
			vars.MakeBoxedVariableRelevant(rng.Intn(2) == 0)
		}
		require.NoError(t, vars.CheckConsistency(basis), "step %d", step)
	}

	vars.MakeBoxedVariableRelevant(false)
	vars.NonBasicBoxed().ForEach(func(col int) {
		assert.False(t, vars.IsRelevant().Get(col))
	})
	assert.False(t, vars.BoxedVariablesAreRelevant())
	require.NoError(t, vars.CheckConsistency(basis))
}

func TestCheckConsistencyDetectsBasisMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	matrix := testProblem(rng, 3, 2, 0.5)
	lower, upper := mixedBounds(matrix.NumCols())
	vars := NewVariablesInfo(matrix, lower, upper)
	vars.InitializeFromBasis([]int{5, 6, 7})
	assert.Error(t, vars.CheckConsistency([]int{5, 6, 0}))
	assert.Error(t, vars.CheckConsistency([]int{5, 5, 7}))
	assert.NoError(t, vars.CheckConsistency([]int{7, 5, 6}))
}
