package sparse

import (
	"bytes"
	"log"
	"math"
	"math/rand"
	"os"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// randomTriangular 生成随机三角矩阵（对角元远离零）
func randomTriangular(rng *rand.Rand, kind Triangle, n int, density float64, unit bool) *TriangularMatrix {
	m := NewTriangularMatrix(kind, n)
	for c := 0; c < n; c++ {
		var rows []int
		var coeffs []float64
		lo, hi := c+1, n
		if kind == Upper {
			lo, hi = 0, c
		}
		for r := lo; r < hi; r++ {
			if rng.Float64() < density {
				rows = append(rows, r)
				coeffs = append(coeffs, rng.Float64()*2-1)
			}
		}
		d := 1.0
		if !unit {
			d = 1 + rng.Float64()
		}
		m.AddTriangularColumn(rows, coeffs, d)
	}
	return m
}

func vectorsClose(a, b []float64, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

// TestTriangularDenseSolves 验证四种稠密求解与gonum三角求解一致
func TestTriangularDenseSolves(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, kind := range []Triangle{Lower, Upper} {
		for _, unit := range []bool{true, false} {
			m := randomTriangular(rng, kind, 30, 0.2, unit)
			if !m.IsTriangular() {
				t.Fatalf("matrix is not triangular")
			}
			if m.AllDiagonalOne() != unit {
				t.Errorf("AllDiagonalOne = %v, expected %v", m.AllDiagonalOne(), unit)
			}
			dense := m.ToDense()
			b := make([]float64, 30)
			for i := range b {
				b[i] = rng.Float64()
			}
			// M·x = b
			x := append([]float64(nil), b...)
			m.Solve(x)
			var got mat.VecDense
			got.MulVec(dense, mat.NewVecDense(30, x))
			if !vectorsClose(got.RawVector().Data, b, 1e-9) {
				t.Errorf("kind=%d unit=%v: M·x != b", kind, unit)
			}
			// Mᵗ·x = b
			x = append([]float64(nil), b...)
			if kind == Lower {
				m.TransposeLowerSolve(x)
			} else {
				m.TransposeUpperSolve(x)
			}
			got.MulVec(dense.T(), mat.NewVecDense(30, x))
			if !vectorsClose(got.RawVector().Data, b, 1e-9) {
				t.Errorf("kind=%d unit=%v: Mᵗ·x != b", kind, unit)
			}
		}
	}
}

// TestTriangularHyperSparse 超稀疏求解与稠密求解结果一致，且重复求解后剪枝不影响结果
func TestTriangularHyperSparse(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	const n = 60
	for _, kind := range []Triangle{Lower, Upper} {
		m := randomTriangular(rng, kind, n, 0.05, false)
		for round := 0; round < 5; round++ {
			rhs := make([]float64, n)
			nz := []int{rng.Intn(n), rng.Intn(n)}
			for _, r := range nz {
				rhs[r] = rng.Float64() + 0.5
			}
			expected := append([]float64(nil), rhs...)
			m.Solve(expected)

			got := append([]float64(nil), rhs...)
			nonZeros := append([]int(nil), nz...)
			m.HyperSparseSolve(got, &nonZeros)
			if !vectorsClose(got, expected, 1e-12) {
				t.Fatalf("kind=%d round=%d: hyper-sparse result differs", kind, round)
			}
			// 非零位置必须是超集
			inList := make([]bool, n)
			for _, r := range nonZeros {
				inList[r] = true
			}
			for i, v := range got {
				if v != 0 && len(nonZeros) > 0 && !inList[i] {
					t.Errorf("kind=%d: non-zero %d missing from list", kind, i)
				}
			}

			sorted := append([]float64(nil), rhs...)
			nonZeros = append(nonZeros[:0], nz...)
			m.HyperSparseSolveInSortedOrder(sorted, &nonZeros)
			if !vectorsClose(sorted, expected, 1e-12) {
				t.Errorf("kind=%d round=%d: sorted-order result differs", kind, round)
			}
		}
	}
}

// TestTriangularPruning 剪枝只移除冗余边：链 0→1→2 加上冗余边 0→2
func TestTriangularPruning(t *testing.T) {
	m := NewTriangularMatrix(Lower, 3)
	m.AddTriangularColumn([]int{1, 2}, []float64{1, 1}, 1)
	m.AddTriangularColumn([]int{2}, []float64{1}, 1)
	m.AddDiagonalOnlyColumn(1)

	rhs := []float64{1, 0, 0}
	nonZeros := []int{0}
	m.HyperSparseSolve(rhs, &nonZeros)
	// x0=1, x1=-1, x2=-1-(-1)=0
	if !vectorsClose(rhs, []float64{1, -1, 0}, 1e-15) {
		t.Errorf("unexpected solution %v", rhs)
	}
	if m.NumPrunedEntries() != 1 {
		t.Errorf("NumPrunedEntries = %d, expected 1", m.NumPrunedEntries())
	}
	if len(nonZeros) != 3 || nonZeros[0] != 0 || nonZeros[1] != 1 || nonZeros[2] != 2 {
		t.Errorf("topological order = %v, expected [0 1 2]", nonZeros)
	}
	// 剪枝后再次求解仍然正确
	rhs = []float64{2, 0, 0}
	nonZeros = []int{0}
	m.HyperSparseSolve(rhs, &nonZeros)
	if !vectorsClose(rhs, []float64{2, -2, 0}, 1e-15) {
		t.Errorf("unexpected solution after pruning %v", rhs)
	}
}

// TestTriangularGuard 可达行超过上限时退化为稠密求解
func TestTriangularGuard(t *testing.T) {
	m := NewTriangularMatrix(Lower, 4)
	m.SetHyperSparseGuard(0.5)
	m.AddTriangularColumn([]int{1, 2, 3}, []float64{1, 1, 1}, 2)
	m.AddDiagonalOnlyColumn(1)
	m.AddDiagonalOnlyColumn(1)
	m.AddDiagonalOnlyColumn(1)
	rhs := []float64{2, 0, 0, 0}
	nonZeros := []int{0}
	m.HyperSparseSolve(rhs, &nonZeros)
	if len(nonZeros) != 0 {
		t.Errorf("expected dense fallback, got non-zeros %v", nonZeros)
	}
	if !vectorsClose(rhs, []float64{1, -1, -1, -1}, 1e-15) {
		t.Errorf("unexpected solution %v", rhs)
	}
	if m.NumGuardAborts() != 1 {
		t.Errorf("expected one guard abort, got %d", m.NumGuardAborts())
	}

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)
	rhs = []float64{2, 0, 0, 0}
	nonZeros = []int{0}
	m.HyperSparseSolve(rhs, &nonZeros)
	if buf.Len() != 0 {
		t.Errorf("unexpected log output %q", buf.String())
	}
	m.SetLogGuardAborts(true)
	rhs = []float64{2, 0, 0, 0}
	nonZeros = []int{0}
	m.HyperSparseSolve(rhs, &nonZeros)
	if !strings.Contains(buf.String(), "solving densely") {
		t.Errorf("expected guard abort to be logged, got %q", buf.String())
	}
	if m.NumGuardAborts() != 3 {
		t.Errorf("expected three guard aborts, got %d", m.NumGuardAborts())
	}
}

// TestTriangularTranspose 转置与原矩阵的稠密形式一致
func TestTriangularTranspose(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	m := randomTriangular(rng, Lower, 12, 0.3, true)
	var tr TriangularMatrix
	tr.PopulateFromTranspose(m)
	if tr.Kind() != Upper || !tr.IsTriangular() {
		t.Fatalf("transpose is not upper triangular")
	}
	if !mat.Equal(tr.ToDense(), m.ToDense().T()) {
		t.Errorf("transpose differs from dense transpose")
	}
	// Lᵗ·x = b 用转置的 UpperSolve 与 TransposeLowerSolve 一致
	b := make([]float64, 12)
	for i := range b {
		b[i] = rng.Float64()
	}
	x1 := append([]float64(nil), b...)
	x2 := append([]float64(nil), b...)
	m.TransposeLowerSolve(x1)
	tr.UpperSolve(x2)
	if !vectorsClose(x1, x2, 1e-12) {
		t.Errorf("transpose solves differ")
	}
}

// TestTransposeLowerSolveFrom 返回最后一个非零位置
func TestTransposeLowerSolveFrom(t *testing.T) {
	m := NewTriangularMatrix(Lower, 3)
	m.AddTriangularColumn([]int{1}, []float64{2}, 1)
	m.AddDiagonalOnlyColumn(1)
	m.AddDiagonalOnlyColumn(1)
	rhs := []float64{1, 1, 0}
	last := m.TransposeLowerSolveFrom(rhs, 2)
	if last != 1 {
		t.Errorf("last = %d, expected 1", last)
	}
	if !vectorsClose(rhs, []float64{-1, 1, 0}, 1e-15) {
		t.Errorf("unexpected solution %v", rhs)
	}
}
