package sparse

import (
	"fmt"
	"log"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Triangle 三角形状
type Triangle int

const (
	Lower Triangle = iota // 非对角元位于对角线下方（行号大于列号）
	Upper                 // 非对角元位于对角线上方（行号小于列号）
)

// TriangularMatrix 三角矩阵（紧凑列存储，对角元单独存放）
//
// 每列的非对角元区间 [starts[c], starts[c+1]) 中，前 [starts[c], prunedEnds[c])
// 部分构成超稀疏求解的依赖图；剪枝只会把可由其它路径到达的边移到尾部。
type TriangularMatrix struct {
	kind     Triangle
	numRows  int
	starts   []int
	rows     []int
	coeffs   []float64
	diagonal []float64

	allDiagonalOne   bool
	firstNonIdentity int // 此前的列均为单位列

	prunedEnds []int
	isPruned   []bool

	// 超稀疏求解
	guardFactor    float64 // 可达行数超过 guardFactor·n 时放弃，改用稠密求解
	numGuardAborts int
	logGuardAborts bool
	marked         []bool
	pruneMark      []bool
	stack          []dfsFrame
	order          []int
}

type dfsFrame struct {
	node int
	pos  int
}

// NewTriangularMatrix 创建空三角矩阵
func NewTriangularMatrix(kind Triangle, numRows int) *TriangularMatrix {
	m := &TriangularMatrix{}
	m.Reset(kind, numRows)
	return m
}

// Reset 清空并设置形状和维度，随后按列依次添加
func (m *TriangularMatrix) Reset(kind Triangle, numRows int) {
	m.kind = kind
	m.numRows = numRows
	m.starts = append(m.starts[:0], 0)
	m.rows = m.rows[:0]
	m.coeffs = m.coeffs[:0]
	m.diagonal = m.diagonal[:0]
	m.prunedEnds = m.prunedEnds[:0]
	m.isPruned = m.isPruned[:0]
	m.allDiagonalOne = true
	m.firstNonIdentity = 0
	if m.guardFactor == 0 {
		m.guardFactor = 1
	}
	if len(m.marked) != numRows {
		m.marked = make([]bool, numRows)
		m.pruneMark = make([]bool, numRows)
	}
}

// SetHyperSparseGuard 设置DFS前沿规模上限（相对维度的比例）
func (m *TriangularMatrix) SetHyperSparseGuard(factor float64) { m.guardFactor = factor }

// SetLogGuardAborts 打开后每次DFS超出上限都打印一行日志
func (m *TriangularMatrix) SetLogGuardAborts(on bool) { m.logGuardAborts = on }

// NumGuardAborts DFS超出上限、改用稠密求解的次数
func (m *TriangularMatrix) NumGuardAborts() int { return m.numGuardAborts }

// Kind 下三角或上三角
func (m *TriangularMatrix) Kind() Triangle { return m.kind }

// NumRows 行数，即向量维度
func (m *TriangularMatrix) NumRows() int { return m.numRows }

// NumCols 已添加的列数，完整时等于NumRows
func (m *TriangularMatrix) NumCols() int { return len(m.diagonal) }

func (m *TriangularMatrix) NumEntries() int      { return len(m.rows) }
func (m *TriangularMatrix) AllDiagonalOne() bool { return m.allDiagonalOne }

func (m *TriangularMatrix) Diagonal(col int) float64 { return m.diagonal[col] }

// Column 非对角元视图
func (m *TriangularMatrix) Column(col int) ColumnView {
	s, e := m.starts[col], m.starts[col+1]
	return ColumnView{Rows: m.rows[s:e], Coeffs: m.coeffs[s:e]}
}

// AddTriangularColumn 追加一列：非对角元与对角元
// 非对角元必须位于对应三角区域，零值被丢弃。
func (m *TriangularMatrix) AddTriangularColumn(rows []int, coeffs []float64, diagonal float64) {
	col := len(m.diagonal)
	for i, r := range rows {
		if coeffs[i] == 0 {
			continue
		}
		if (m.kind == Lower && r <= col) || (m.kind == Upper && r >= col) {
			panic(fmt.Sprintf("triangular matrix: entry (%d, %d) outside the triangle", r, col))
		}
		m.rows = append(m.rows, r)
		m.coeffs = append(m.coeffs, coeffs[i])
	}
	m.closeColumn(diagonal)
}

// AddDiagonalOnlyColumn 追加只有对角元的列
func (m *TriangularMatrix) AddDiagonalOnlyColumn(diagonal float64) { m.closeColumn(diagonal) }

func (m *TriangularMatrix) closeColumn(diagonal float64) {
	if diagonal == 0 {
		panic("triangular matrix: zero diagonal coefficient")
	}
	col := len(m.diagonal)
	m.diagonal = append(m.diagonal, diagonal)
	m.starts = append(m.starts, len(m.rows))
	m.prunedEnds = append(m.prunedEnds, len(m.rows))
	m.isPruned = append(m.isPruned, false)
	if diagonal != 1 {
		m.allDiagonalOne = false
	}
	if col == m.firstNonIdentity && diagonal == 1 && m.starts[col] == m.starts[col+1] {
		m.firstNonIdentity++
	}
}

// PopulateFromTranspose 构建other的转置（形状翻转）
func (m *TriangularMatrix) PopulateFromTranspose(other *TriangularMatrix) {
	kind := Upper
	if other.kind == Upper {
		kind = Lower
	}
	n := other.NumCols()
	m.Reset(kind, n)
	counts := make([]int, n+1)
	for _, r := range other.rows {
		counts[r+1]++
	}
	for i := 1; i <= n; i++ {
		counts[i] += counts[i-1]
	}
	m.rows = resizeInts(m.rows, len(other.rows))
	m.coeffs = resizeFloats(m.coeffs, len(other.coeffs))
	next := append([]int(nil), counts[:n]...)
	for c := 0; c < n; c++ {
		for i := other.starts[c]; i < other.starts[c+1]; i++ {
			r := other.rows[i]
			m.rows[next[r]] = c
			m.coeffs[next[r]] = other.coeffs[i]
			next[r]++
		}
	}
	m.starts = append(m.starts[:0], counts...)
	m.prunedEnds = append(m.prunedEnds[:0], counts[1:]...)
	m.isPruned = resizeBools(m.isPruned, n)
	m.diagonal = append(m.diagonal[:0], other.diagonal...)
	m.allDiagonalOne = other.allDiagonalOne
	m.firstNonIdentity = 0
	for m.firstNonIdentity < n && m.diagonal[m.firstNonIdentity] == 1 &&
		m.starts[m.firstNonIdentity] == m.starts[m.firstNonIdentity+1] {
		m.firstNonIdentity++
	}
}

// IsTriangular 检查所有非对角元位于三角区域
func (m *TriangularMatrix) IsTriangular() bool {
	for c := 0; c < m.NumCols(); c++ {
		for i := m.starts[c]; i < m.starts[c+1]; i++ {
			if (m.kind == Lower && m.rows[i] <= c) || (m.kind == Upper && m.rows[i] >= c) {
				return false
			}
		}
	}
	return true
}

// ToDense 含对角元的稠密矩阵
func (m *TriangularMatrix) ToDense() *mat.Dense {
	n := max(m.NumCols(), 1)
	d := mat.NewDense(n, n, nil)
	for c := 0; c < m.NumCols(); c++ {
		d.Set(c, c, m.diagonal[c])
		for i := m.starts[c]; i < m.starts[c+1]; i++ {
			d.Set(m.rows[i], c, m.coeffs[i])
		}
	}
	return d
}

// ------------------------------ 稠密求解 ------------------------------

// eliminate 第col列的消元：x[col] /= d，然后 x[row] -= coeff·x[col]
func (m *TriangularMatrix) eliminate(col int, rhs []float64) {
	v := rhs[col]
	if v == 0 {
		return
	}
	if !m.allDiagonalOne {
		v /= m.diagonal[col]
		rhs[col] = v
	}
	for i := m.starts[col]; i < m.starts[col+1]; i++ {
		rhs[m.rows[i]] -= m.coeffs[i] * v
	}
}

// Solve 按自身形状求解 M·x = rhs（原位）
func (m *TriangularMatrix) Solve(rhs []float64) {
	if m.kind == Lower {
		m.LowerSolveStartingAt(0, rhs)
	} else {
		m.UpperSolve(rhs)
	}
}

// LowerSolve 前代求解 L·x = rhs
func (m *TriangularMatrix) LowerSolve(rhs []float64) { m.LowerSolveStartingAt(0, rhs) }

// LowerSolveStartingAt 已知rhs在start之前为零时的前代求解
func (m *TriangularMatrix) LowerSolveStartingAt(start int, rhs []float64) {
	m.checkSize(rhs)
	for c := max(start, m.firstNonIdentity); c < m.NumCols(); c++ {
		m.eliminate(c, rhs)
	}
}

// UpperSolve 回代求解 U·x = rhs
func (m *TriangularMatrix) UpperSolve(rhs []float64) {
	m.checkSize(rhs)
	for c := m.NumCols() - 1; c >= m.firstNonIdentity; c-- {
		m.eliminate(c, rhs)
	}
}

// TransposeLowerSolve 求解 Lᵗ·x = rhs
func (m *TriangularMatrix) TransposeLowerSolve(rhs []float64) {
	m.TransposeLowerSolveFrom(rhs, m.NumCols()-1)
}

// TransposeLowerSolveFrom 已知rhs在last之后为零时求解 Lᵗ·x = rhs
// 返回结果中最后一个非零位置（全零时返回-1）。
func (m *TriangularMatrix) TransposeLowerSolveFrom(rhs []float64, last int) int {
	m.checkSize(rhs)
	for last >= 0 && rhs[last] == 0 {
		last--
	}
	for c := last; c >= m.firstNonIdentity; c-- {
		sum := rhs[c]
		for i := m.starts[c]; i < m.starts[c+1]; i++ {
			sum -= m.coeffs[i] * rhs[m.rows[i]]
		}
		if !m.allDiagonalOne {
			sum /= m.diagonal[c]
		}
		rhs[c] = sum
	}
	return last
}

// TransposeUpperSolve 求解 Uᵗ·x = rhs
func (m *TriangularMatrix) TransposeUpperSolve(rhs []float64) {
	m.checkSize(rhs)
	for c := m.firstNonIdentity; c < m.NumCols(); c++ {
		sum := rhs[c]
		for i := m.starts[c]; i < m.starts[c+1]; i++ {
			sum -= m.coeffs[i] * rhs[m.rows[i]]
		}
		if !m.allDiagonalOne {
			sum /= m.diagonal[c]
		}
		rhs[c] = sum
	}
}

func (m *TriangularMatrix) checkSize(rhs []float64) {
	if len(rhs) != m.NumCols() {
		panic(fmt.Sprintf("triangular matrix: rhs size %d, expected %d", len(rhs), m.NumCols()))
	}
}

// ------------------------------ 超稀疏求解 ------------------------------

// HyperSparseSolve 只处理可达行的求解
// nonZeros 输入为rhs的非零位置，输出为结果非零位置的超集（拓扑序）；
// 可达行过多时退化为稠密求解，nonZeros 清空。
func (m *TriangularMatrix) HyperSparseSolve(rhs []float64, nonZeros *[]int) {
	m.checkSize(rhs)
	m.ComputeRowsToConsiderWithDfs(nonZeros)
	if len(*nonZeros) == 0 {
		m.Solve(rhs)
		return
	}
	for _, c := range *nonZeros {
		m.eliminate(c, rhs)
	}
}

// HyperSparseSolveInSortedOrder 与HyperSparseSolve相同，但按排序后的行号处理
// 适用于可达行较多、拓扑序代价不划算的情形。
func (m *TriangularMatrix) HyperSparseSolveInSortedOrder(rhs []float64, nonZeros *[]int) {
	m.checkSize(rhs)
	m.ComputeRowsToConsiderInSortedOrder(nonZeros)
	if len(*nonZeros) == 0 {
		m.Solve(rhs)
		return
	}
	for _, c := range *nonZeros {
		m.eliminate(c, rhs)
	}
}

func (m *TriangularMatrix) guard() int {
	return max(int(m.guardFactor*float64(m.numRows)), 1)
}

// ComputeRowsToConsiderWithDfs 深度优先计算可达行的拓扑序，并剪枝依赖图
//
// 列在后序访问时剪枝一次：若某子节点可由另一子节点到达，则该边是冗余的，
// 被移到该列DFS区间之外（数值求解仍使用全部元素）。
func (m *TriangularMatrix) ComputeRowsToConsiderWithDfs(nonZeros *[]int) {
	if len(*nonZeros) == 0 {
		return
	}
	limit := m.guard()
	order := m.order[:0]
	stack := m.stack[:0]
	aborted := false
	for _, root := range *nonZeros {
		if m.marked[root] {
			continue
		}
		m.marked[root] = true
		stack = append(stack, dfsFrame{node: root, pos: m.starts[root]})
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.pos < m.prunedEnds[top.node] {
				child := m.rows[top.pos]
				top.pos++
				if !m.marked[child] {
					m.marked[child] = true
					stack = append(stack, dfsFrame{node: child, pos: m.starts[child]})
					if len(order)+len(stack) > limit {
						aborted = true
						break
					}
				}
				continue
			}
			node := top.node
			stack = stack[:len(stack)-1]
			m.pruneColumn(node)
			order = append(order, node)
		}
		if aborted {
			break
		}
	}
	for _, n := range order {
		m.marked[n] = false
	}
	for _, f := range stack {
		m.marked[f.node] = false
	}
	m.stack = stack[:0]
	if aborted {
		m.numGuardAborts++
		if m.logGuardAborts {
			log.Printf("sparse: hyper-sparse dfs reached %d of %d rows, solving densely", limit, m.numRows)
		}
		m.order = order[:0]
		*nonZeros = (*nonZeros)[:0]
		return
	}
	slices.Reverse(order)
	*nonZeros = append((*nonZeros)[:0], order...)
	m.order = order[:0]
}

// ComputeRowsToConsiderInSortedOrder 计算可达行集合并按消元顺序排序（不剪枝）
func (m *TriangularMatrix) ComputeRowsToConsiderInSortedOrder(nonZeros *[]int) {
	if len(*nonZeros) == 0 {
		return
	}
	limit := m.guard()
	reached := m.order[:0]
	for _, r := range *nonZeros {
		if !m.marked[r] {
			m.marked[r] = true
			reached = append(reached, r)
		}
	}
	for i := 0; i < len(reached) && len(reached) <= limit; i++ {
		c := reached[i]
		for j := m.starts[c]; j < m.prunedEnds[c]; j++ {
			if r := m.rows[j]; !m.marked[r] {
				m.marked[r] = true
				reached = append(reached, r)
			}
		}
	}
	for _, r := range reached {
		m.marked[r] = false
	}
	if len(reached) > limit {
		m.order = reached[:0]
		*nonZeros = (*nonZeros)[:0]
		return
	}
	if m.kind == Lower {
		slices.Sort(reached)
	} else {
		slices.SortFunc(reached, func(a, b int) int { return b - a })
	}
	*nonZeros = append((*nonZeros)[:0], reached...)
	m.order = reached[:0]
}

// pruneColumn 剪除col中可经由其它子节点到达的边（每列只做一次）
func (m *TriangularMatrix) pruneColumn(col int) {
	if m.isPruned[col] {
		return
	}
	m.isPruned[col] = true
	s, e := m.starts[col], m.prunedEnds[col]
	if e-s < 2 {
		return
	}
	for i := s; i < e; i++ {
		m.pruneMark[m.rows[i]] = true
	}
	for i := s; i < e; i++ {
		child := m.rows[i]
		for j := m.starts[child]; j < m.prunedEnds[child]; j++ {
			m.pruneMark[m.rows[j]] = false
		}
	}
	k := s
	for i := s; i < e; i++ {
		if m.pruneMark[m.rows[i]] {
			m.rows[i], m.rows[k] = m.rows[k], m.rows[i]
			m.coeffs[i], m.coeffs[k] = m.coeffs[k], m.coeffs[i]
			k++
		}
	}
	for i := s; i < e; i++ {
		m.pruneMark[m.rows[i]] = false
	}
	m.prunedEnds[col] = k
}

// NumPrunedEntries 已从依赖图中剪除的边数
func (m *TriangularMatrix) NumPrunedEntries() int {
	n := 0
	for c := 0; c < m.NumCols(); c++ {
		n += m.starts[c+1] - m.prunedEnds[c]
	}
	return n
}

func resizeBools(s []bool, n int) []bool {
	if cap(s) >= n {
		s = s[:n]
		clear(s)
		return s
	}
	return make([]bool, n)
}
