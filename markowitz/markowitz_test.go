package markowitz

import (
	"errors"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/check.v1"

	"simplex/config"
	"simplex/sparse"
)

func Test(t *testing.T) { check.TestingT(t) }

type S struct {
	params config.Parameters
	rng    *rand.Rand
}

var _ = check.Suite(&S{})

func (s *S) SetUpTest(c *check.C) {
	s.params = config.Default()
	s.rng = rand.New(rand.NewSource(42))
}

// randomNonSingular 对角占优的随机稀疏矩阵，再随机置换行列
func randomNonSingular(rng *rand.Rand, n int, density float64) *sparse.Matrix {
	a := make([][]float64, n)
	for i := range a {
		a[i] = make([]float64, n)
		for j := range a[i] {
			switch {
			case i == j:
				a[i][j] = float64(n) + rng.Float64()
			case rng.Float64() < density:
				a[i][j] = rng.Float64()*2 - 1
			}
		}
	}
	pr, pc := rng.Perm(n), rng.Perm(n)
	cols := make([][]float64, n)
	for j := range cols {
		cols[j] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			cols[pc[j]][pr[i]] = a[i][j]
		}
	}
	m := sparse.NewMatrix(n)
	for j := 0; j < n; j++ {
		var rows []int
		var coeffs []float64
		for i, v := range cols[j] {
			if v != 0 {
				rows = append(rows, i)
				coeffs = append(coeffs, v)
			}
		}
		m.AppendColumn(rows, coeffs)
	}
	return m
}

// permuted P·A·Q⁻¹
func permuted(a sparse.ColumnMatrix, rowPerm, colPerm *sparse.Permutation) *mat.Dense {
	n := a.NumCols()
	d := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		col := a.Column(j)
		for k, i := range col.Rows {
			d.Set(rowPerm.At(i), colPerm.At(j), col.Coeffs[k])
		}
	}
	return d
}

func (s *S) TestRandomFactorization(c *check.C) {
	m := New(&s.params)
	var rowPerm, colPerm sparse.Permutation
	var lower, upper sparse.TriangularMatrix
	for trial := 0; trial < 60; trial++ {
		n := 5 + s.rng.Intn(46)
		density := 0.1 + 0.4*s.rng.Float64()
		a := randomNonSingular(s.rng, n, density)

		err := m.ComputeLU(a, &rowPerm, &colPerm, &lower, &upper)
		c.Assert(err, check.IsNil, check.Commentf("n=%d density=%.2f", n, density))
		c.Assert(rowPerm.Check(), check.Equals, true)
		c.Assert(colPerm.Check(), check.Equals, true)
		c.Assert(lower.IsTriangular(), check.Equals, true)
		c.Assert(upper.IsTriangular(), check.Equals, true)
		c.Check(lower.AllDiagonalOne(), check.Equals, true)

		var lu mat.Dense
		lu.Mul(lower.ToDense(), upper.ToDense())
		expected := permuted(a, &rowPerm, &colPerm)
		c.Check(mat.EqualApprox(&lu, expected, 1e-6), check.Equals, true,
			check.Commentf("trial %d: n=%d density=%.2f", trial, n, density))
		c.Check(m.Stats().NumPivots, check.Equals, n)
		c.Check(m.DeterministicTime() > 0, check.Equals, true)
	}
}

// randomSparse 一般的随机稀疏矩阵（不保证非奇异），同时返回稠密形式
func randomSparse(rng *rand.Rand, n int, density float64) (*sparse.Matrix, *mat.Dense) {
	d := mat.NewDense(n, n, nil)
	m := sparse.NewMatrix(n)
	for j := 0; j < n; j++ {
		var rows []int
		var coeffs []float64
		for i := 0; i < n; i++ {
			if rng.Float64() < density {
				v := rng.Float64()*2 - 1
				rows = append(rows, i)
				coeffs = append(coeffs, v)
				d.Set(i, j, v)
			}
		}
		m.AppendColumn(rows, coeffs)
	}
	return m, d
}

// TestGeneralRandomMatrices 没有对角占优时主元须经过阈值选择；奇异矩阵返回ErrSingular
func (s *S) TestGeneralRandomMatrices(c *check.C) {
	m := New(&s.params)
	var rowPerm, colPerm sparse.Permutation
	var lower, upper sparse.TriangularMatrix
	factored, singular := 0, 0
	for trial := 0; trial < 200; trial++ {
		n := 5 + s.rng.Intn(46)
		density := 0.1 + 0.4*s.rng.Float64()
		a, dense := randomSparse(s.rng, n, density)
		cond := mat.Cond(dense, 1)
		comment := check.Commentf("trial %d: n=%d density=%.2f cond=%g", trial, n, density, cond)

		err := m.ComputeLU(a, &rowPerm, &colPerm, &lower, &upper)
		if err != nil {
			c.Check(errors.Is(err, ErrSingular), check.Equals, true, comment)
			c.Check(cond > 1e8, check.Equals, true, comment)
			singular++
			continue
		}
		c.Check(cond < 1e14, check.Equals, true, comment)
		c.Assert(rowPerm.Check(), check.Equals, true, comment)
		c.Assert(colPerm.Check(), check.Equals, true, comment)
		var lu mat.Dense
		lu.Mul(lower.ToDense(), upper.ToDense())
		c.Check(mat.EqualApprox(&lu, permuted(a, &rowPerm, &colPerm), 1e-7), check.Equals, true, comment)
		c.Check(m.DeterministicTime() > 0, check.Equals, true, comment)
		factored++
	}
	c.Check(factored > 0, check.Equals, true)
	c.Check(singular > 0, check.Equals, true)
}

func (s *S) TestFillInMatchesEntries(c *check.C) {
	a := randomNonSingular(s.rng, 30, 0.3)
	m := New(&s.params)
	var rowPerm, colPerm sparse.Permutation
	var lower, upper sparse.TriangularMatrix
	c.Assert(m.ComputeLU(a, &rowPerm, &colPerm, &lower, &upper), check.IsNil)
	nnz := 0
	for j := 0; j < a.NumCols(); j++ {
		nnz += a.Column(j).NumEntries()
	}
	c.Check(m.Stats().NumFillIn, check.Equals, lower.NumEntries()+upper.NumEntries()+30-nnz)
	c.Check(m.Stats().NumFillIn >= 0, check.Equals, true)
}

func (s *S) TestSingletonColumns(c *check.C) {
	// 单位矩阵的行置换：全部为单元素列
	a := sparse.NewMatrix(4)
	for _, r := range []int{2, 0, 3, 1} {
		a.AppendUnitVector(r, 2)
	}
	m := New(&s.params)
	var rowPerm, colPerm sparse.Permutation
	var lower, upper sparse.TriangularMatrix
	c.Assert(m.ComputeLU(a, &rowPerm, &colPerm, &lower, &upper), check.IsNil)
	c.Check(m.Stats().NumSingletonColumns, check.Equals, 4)
	c.Check(lower.NumEntries(), check.Equals, 0)
	c.Check(upper.NumEntries(), check.Equals, 0)
	// 只有单元素列的分解也计入确定性时间
	c.Check(m.DeterministicTime() > 0, check.Equals, true)
}

func (s *S) TestResidualSingletonColumns(c *check.C) {
	// 上三角全1：第0列是单元素列，其余依次成为残余单元素列
	const n = 5
	a := sparse.NewMatrix(n)
	for j := 0; j < n; j++ {
		var rows []int
		var coeffs []float64
		for i := 0; i <= j; i++ {
			rows = append(rows, i)
			coeffs = append(coeffs, 1)
		}
		a.AppendColumn(rows, coeffs)
	}
	m := New(&s.params)
	var rowPerm, colPerm sparse.Permutation
	var lower, upper sparse.TriangularMatrix
	c.Assert(m.ComputeLU(a, &rowPerm, &colPerm, &lower, &upper), check.IsNil)
	c.Check(m.Stats().NumSingletonColumns, check.Equals, 1)
	c.Check(m.Stats().NumResidualSingletonColumns, check.Equals, n-1)
	c.Check(lower.NumEntries(), check.Equals, 0)

	var lu mat.Dense
	lu.Mul(lower.ToDense(), upper.ToDense())
	c.Check(mat.EqualApprox(&lu, permuted(a, &rowPerm, &colPerm), 1e-12), check.Equals, true)
}

func (s *S) TestNumericallySingular(c *check.C) {
	// 两列相同
	a := sparse.NewMatrix(3)
	a.AppendColumn([]int{0, 1}, []float64{2, 4})
	a.AppendColumn([]int{0, 1}, []float64{2, 4})
	a.AppendUnitVector(2, 1)
	m := New(&s.params)
	var rowPerm, colPerm sparse.Permutation
	var lower, upper sparse.TriangularMatrix
	err := m.ComputeLU(a, &rowPerm, &colPerm, &lower, &upper)
	c.Assert(err, check.NotNil)
	c.Check(errors.Is(err, ErrSingular), check.Equals, true)
	c.Check(m.Stats().NumPivots, check.Equals, 2)
	c.Check(m.UnassignedColumns(), check.HasLen, 1)
	unassigned := 0
	for i := 0; i < 3; i++ {
		if rowPerm.At(i) < 0 {
			unassigned++
		}
	}
	c.Check(unassigned, check.Equals, 1)
}

func (s *S) TestStructurallySingular(c *check.C) {
	// 零列，以及两个单元素列落在同一行
	for _, build := range []func() *sparse.Matrix{
		func() *sparse.Matrix {
			a := sparse.NewMatrix(2)
			a.AppendUnitVector(0, 1)
			a.AppendEmptyColumn()
			return a
		},
		func() *sparse.Matrix {
			a := sparse.NewMatrix(3)
			a.AppendUnitVector(1, 1)
			a.AppendUnitVector(1, 3)
			a.AppendColumn([]int{0, 2}, []float64{1, 1})
			return a
		},
	} {
		m := New(&s.params)
		var rowPerm, colPerm sparse.Permutation
		err := m.ComputeRowAndColumnPermutation(build(), &rowPerm, &colPerm)
		c.Check(errors.Is(err, ErrSingular), check.Equals, true)
	}
}

func (s *S) TestNotSquare(c *check.C) {
	a := sparse.NewMatrix(3)
	a.AppendUnitVector(0, 1)
	a.AppendUnitVector(1, 1)
	m := New(&s.params)
	var rowPerm, colPerm sparse.Permutation
	var lower, upper sparse.TriangularMatrix
	err := m.ComputeLU(a, &rowPerm, &colPerm, &lower, &upper)
	c.Check(errors.Is(err, ErrNotSquare), check.Equals, true)
}

func (s *S) TestColumnPriorityQueue(c *check.C) {
	var q columnPriorityQueue
	q.Reset(6)
	q.PushOrAdjust(0, 3)
	q.PushOrAdjust(1, 1)
	q.PushOrAdjust(2, 2)
	q.PushOrAdjust(3, 10) // 超过上限，截断
	c.Check(q.Size(), check.Equals, 4)
	c.Check(q.MinDegree(), check.Equals, 1)
	c.Check(q.Pop(), check.Equals, 1)
	q.PushOrAdjust(0, 1)
	c.Check(q.Pop(), check.Equals, 0)
	q.Remove(2)
	c.Check(q.Contains(2), check.Equals, false)
	c.Check(q.Pop(), check.Equals, 3)
	c.Check(q.Pop(), check.Equals, -1)
}
