package markowitz

import (
	"errors"
	"fmt"
	"math"

	"simplex/config"
	"simplex/sparse"
)

var (
	// ErrSingular 矩阵（数值或结构）奇异
	ErrSingular = errors.New("markowitz: matrix is singular")
	// ErrNotSquare 矩阵不是方阵
	ErrNotSquare = errors.New("markowitz: matrix is not square")
)

// Stats 最近一次分解的统计
type Stats struct {
	NumSingletonColumns         int
	NumResidualSingletonColumns int
	NumPivots                   int
	NumFillIn                   int // L与U的非零元数减去原矩阵非零元数
	MaxRowDegree                int
	MaxColumnDegree             int
}

// residualColumn 一列的数值状态：已分配行部分（进入U）与残余部分
type residualColumn struct {
	rows      []int // 残余（未分配）行，原始行号
	values    []float64
	upperRows []int // 已分配行的主元序号
	upperVals []float64
	maxAbs    float64
}

// Markowitz 稀疏LU分解器
//
// 计算行置换P、列置换Q与三角因子L、U，使 L·U = P·A·Q⁻¹。
// 置换约定：rowPerm[原行] = 主元序号，colPerm[原列] = 主元序号。
type Markowitz struct {
	pivotThreshold       float64
	zlatev               int
	singularityThreshold float64
	singletonStability   float64

	n         int
	rowPerm   []int
	colPerm   []int
	pivotRows []int // 主元序号 -> 原行
	pivotCols []int
	pivots    []float64

	lower sparse.CompactMatrix // 第k列：原始行号与 l_ik
	upper sparse.CompactMatrix // 第k列：主元序号行与 u_jk（不含对角元）

	// 残余非零模式（度数均为上界）
	rowCols   [][]int
	colRows   [][]int
	rowDegree []int
	colDegree []int
	queue     columnPriorityQueue

	columns     []residualColumn
	needsUpdate []bool
	dropped     []bool

	// 左视求解的工作区（始终保持清零）
	dense   []float64
	inList  []bool
	list    []int
	visited []bool
	stack   [][2]int
	order   []int
	colMark []int
	stamp   int

	stats           Stats
	numFpOperations int64
}

// New 创建分解器
func New(params *config.Parameters) *Markowitz {
	m := &Markowitz{}
	m.SetParameters(params)
	return m
}

// SetParameters 读取主元阈值等参数
func (m *Markowitz) SetParameters(params *config.Parameters) {
	m.pivotThreshold = params.LuFactorizationPivotThreshold
	m.zlatev = params.MarkowitzZlatevParameter
	m.singularityThreshold = params.MarkowitzSingularityThreshold
	m.singletonStability = params.SingletonColumnStabilityThreshold
}

func (m *Markowitz) Stats() Stats { return m.stats }

// DeterministicTime 最近一次分解的确定性时间
func (m *Markowitz) DeterministicTime() float64 {
	return sparse.DeterministicTimeForFpOperations(m.numFpOperations)
}

// UnassignedColumns 奇异时未能分配主元的列
func (m *Markowitz) UnassignedColumns() []int {
	var cols []int
	for c, p := range m.colPerm {
		if p < 0 {
			cols = append(cols, c)
		}
	}
	return cols
}

// ComputeLU 分解方阵view
// 奇异时返回ErrSingular，置换描述最大的非奇异部分（未分配项为-1），L、U不可用。
func (m *Markowitz) ComputeLU(view sparse.ColumnMatrix, rowPerm, colPerm *sparse.Permutation,
	lower, upper *sparse.TriangularMatrix) error {
	if err := m.ComputeRowAndColumnPermutation(view, rowPerm, colPerm); err != nil {
		return err
	}
	lower.Reset(sparse.Lower, m.n)
	upper.Reset(sparse.Upper, m.n)
	var rows []int
	for k := 0; k < m.n; k++ {
		col := m.lower.Column(k)
		rows = rows[:0]
		for _, r := range col.Rows {
			rows = append(rows, m.rowPerm[r])
		}
		lower.AddTriangularColumn(rows, col.Coeffs, 1)
		ucol := m.upper.Column(k)
		upper.AddTriangularColumn(ucol.Rows, ucol.Coeffs, m.pivots[k])
		m.numFpOperations += int64(col.NumEntries() + ucol.NumEntries() + 1)
	}
	m.stats.NumFillIn = lower.NumEntries() + upper.NumEntries() + m.n - m.numEntries(view)
	return nil
}

func (m *Markowitz) numEntries(view sparse.ColumnMatrix) int {
	n := 0
	for c := 0; c < view.NumCols(); c++ {
		n += view.Column(c).NumEntries()
	}
	return n
}

// ComputeRowAndColumnPermutation 只计算置换（同时在内部保留L、U的列）
func (m *Markowitz) ComputeRowAndColumnPermutation(view sparse.ColumnMatrix, rowPerm, colPerm *sparse.Permutation) error {
	if view.NumRows() != view.NumCols() {
		return fmt.Errorf("%w: %dx%d", ErrNotSquare, view.NumRows(), view.NumCols())
	}
	m.initialize(view)
	m.extractSingletonColumns(view)
	m.extractResidualSingletonColumns(view)
	m.eliminateResidual(view)

	m.stats.NumPivots = len(m.pivotRows)
	rowPerm.PopulateFromIdentity(m.n)
	colPerm.PopulateFromIdentity(m.n)
	for i := 0; i < m.n; i++ {
		rowPerm.Set(i, m.rowPerm[i])
		colPerm.Set(i, m.colPerm[i])
	}
	if len(m.pivotRows) < m.n {
		return fmt.Errorf("%w: rank %d of %d", ErrSingular, len(m.pivotRows), m.n)
	}
	return nil
}

func (m *Markowitz) initialize(view sparse.ColumnMatrix) {
	n := view.NumCols()
	m.n = n
	m.stats = Stats{}
	m.numFpOperations = 0
	m.rowPerm = fill(resize(m.rowPerm, n), -1)
	m.colPerm = fill(resize(m.colPerm, n), -1)
	m.pivotRows = m.pivotRows[:0]
	m.pivotCols = m.pivotCols[:0]
	m.pivots = m.pivots[:0]
	m.lower.Reset(n)
	m.upper.Reset(n)

	if len(m.rowCols) < n {
		m.rowCols = make([][]int, n)
		m.colRows = make([][]int, n)
		m.columns = make([]residualColumn, n)
	}
	m.rowDegree = fill(resize(m.rowDegree, n), 0)
	m.colDegree = fill(resize(m.colDegree, n), 0)
	m.needsUpdate = resizeBools(m.needsUpdate, n)
	m.dropped = resizeBools(m.dropped, n)
	m.inList = resizeBools(m.inList, n)
	m.visited = resizeBools(m.visited, n)
	m.colMark = fill(resize(m.colMark, n), 0)
	m.stamp = 0
	if len(m.dense) != n {
		m.dense = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		m.rowCols[i] = m.rowCols[i][:0]
		m.colRows[i] = m.colRows[i][:0]
		m.needsUpdate[i] = true
	}
	for c := 0; c < n; c++ {
		col := view.Column(c)
		for i, r := range col.Rows {
			if col.Coeffs[i] == 0 {
				continue
			}
			m.colRows[c] = append(m.colRows[c], r)
			m.rowCols[r] = append(m.rowCols[r], c)
			m.rowDegree[r]++
			m.colDegree[c]++
		}
		m.numFpOperations += int64(col.NumEntries())
		m.stats.MaxColumnDegree = max(m.stats.MaxColumnDegree, m.colDegree[c])
	}
	for r := 0; r < n; r++ {
		m.stats.MaxRowDegree = max(m.stats.MaxRowDegree, m.rowDegree[r])
	}
	m.queue.Reset(n)
}

// ------------------------------ 单元素列 ------------------------------

// extractSingletonColumns 只有一个非零元的列直接作为主元，无需搜索
func (m *Markowitz) extractSingletonColumns(view sparse.ColumnMatrix) {
	for c := 0; c < m.n; c++ {
		if len(m.colRows[c]) != 1 {
			continue
		}
		r := m.colRows[c][0]
		if m.rowPerm[r] >= 0 {
			continue
		}
		v := view.Column(c).LookUpCoefficient(r)
		if math.Abs(v) < m.singularityThreshold {
			continue
		}
		m.addPivot(r, c, v, nil, nil, nil, nil)
		m.removePivotRow(r, c)
		m.stats.NumSingletonColumns++
		m.numFpOperations += int64(1 + len(m.rowCols[r]))
	}
}

// extractResidualSingletonColumns 去掉已分配行后只剩一个元素的列
// 此阶段L仍为空，残余值即原始值；主元须通过稳定性检查。
func (m *Markowitz) extractResidualSingletonColumns(view sparse.ColumnMatrix) {
	for c := 0; c < m.n; c++ {
		if m.colPerm[c] < 0 {
			m.queue.PushOrAdjust(c, m.residualDegree(c))
		}
	}
	var skipped []int
	for {
		d := m.queue.MinDegree()
		if d == 0 {
			// 残余为空：结构奇异
			m.dropped[m.queue.Pop()] = true
			continue
		}
		if d != 1 {
			break
		}
		c := m.queue.Pop()
		col := view.Column(c)
		r, v, maxAbs := -1, 0.0, 0.0
		for i, row := range col.Rows {
			a := math.Abs(col.Coeffs[i])
			maxAbs = math.Max(maxAbs, a)
			if m.rowPerm[row] < 0 && col.Coeffs[i] != 0 {
				r, v = row, col.Coeffs[i]
			}
		}
		if r < 0 || math.Abs(v) < m.singularityThreshold || math.Abs(v) < m.singletonStability*maxAbs {
			skipped = append(skipped, c)
			continue
		}
		var urows []int
		var uvals []float64
		for i, row := range col.Rows {
			if p := m.rowPerm[row]; p >= 0 && col.Coeffs[i] != 0 {
				urows = append(urows, p)
				uvals = append(uvals, col.Coeffs[i])
			}
		}
		m.addPivot(r, c, v, nil, nil, urows, uvals)
		m.removePivotRow(r, c)
		m.stats.NumResidualSingletonColumns++
		m.numFpOperations += int64(col.NumEntries() + len(m.rowCols[r]))
	}
	for _, c := range skipped {
		m.queue.PushOrAdjust(c, max(m.colDegree[c], 0))
	}
}

// residualDegree 残余度数（同时清理已分配行）
func (m *Markowitz) residualDegree(c int) int {
	rows := m.colRows[c][:0]
	for _, r := range m.colRows[c] {
		if m.rowPerm[r] < 0 {
			rows = append(rows, r)
		}
	}
	m.colRows[c] = rows
	m.colDegree[c] = len(rows)
	return len(rows)
}

// removePivotRow 主元列无填充时的模式更新：移除主元行
func (m *Markowitz) removePivotRow(r, pivotCol int) {
	for _, c := range m.rowColumns(r) {
		if c == pivotCol {
			continue
		}
		m.colDegree[c]--
		m.needsUpdate[c] = true
		if m.queue.Contains(c) {
			m.queue.PushOrAdjust(c, max(m.colDegree[c], 0))
		}
	}
}

// rowColumns 第r行的未分配列（顺带清理）
func (m *Markowitz) rowColumns(r int) []int {
	cols := m.rowCols[r][:0]
	for _, c := range m.rowCols[r] {
		if m.colPerm[c] < 0 && !m.dropped[c] {
			cols = append(cols, c)
		}
	}
	m.rowCols[r] = cols
	return cols
}

func (m *Markowitz) addPivot(r, c int, pivot float64, lrows []int, lvals []float64, urows []int, uvals []float64) {
	k := len(m.pivotRows)
	m.rowPerm[r] = k
	m.colPerm[c] = k
	m.pivotRows = append(m.pivotRows, r)
	m.pivotCols = append(m.pivotCols, c)
	m.pivots = append(m.pivots, pivot)
	m.lower.AddColumn(lrows, lvals)
	m.upper.AddColumn(urows, uvals)
	m.queue.Remove(c)
}

// ------------------------------ 一般消元 ------------------------------

// eliminateResidual 对残余子矩阵做Markowitz主元选择
func (m *Markowitz) eliminateResidual(view sparse.ColumnMatrix) {
	candidates := make([]int, 0, m.zlatev)
	for m.queue.Size() > 0 {
		candidates = candidates[:0]
		for len(candidates) < m.zlatev && m.queue.Size() > 0 {
			candidates = append(candidates, m.queue.Pop())
		}
		bestCol, bestRow := -1, -1
		bestCount, bestMag := math.MaxInt, 0.0
		for _, c := range candidates {
			rc := m.residual(view, c)
			if len(rc.rows) == 0 || rc.maxAbs < m.singularityThreshold {
				m.dropped[c] = true
				continue
			}
			colDeg := len(rc.rows)
			for i, r := range rc.rows {
				mag := math.Abs(rc.values[i])
				if mag < m.pivotThreshold*rc.maxAbs {
					continue
				}
				count := (colDeg - 1) * (max(m.rowDegree[r], 1) - 1)
				if count < bestCount || (count == bestCount && mag > bestMag) {
					bestCol, bestRow, bestCount, bestMag = c, r, count, mag
				}
			}
		}
		for _, c := range candidates {
			if c != bestCol && !m.dropped[c] {
				m.queue.PushOrAdjust(c, m.colDegree[c])
			}
		}
		if bestCol < 0 {
			continue
		}
		m.pivotOn(bestRow, bestCol)
	}
}

// residual 需要时用左视三角求解重新计算第c列的数值
func (m *Markowitz) residual(view sparse.ColumnMatrix, c int) *residualColumn {
	rc := &m.columns[c]
	if !m.needsUpdate[c] {
		return rc
	}
	m.needsUpdate[c] = false
	m.leftLookingSolve(view.Column(c))
	rc.rows, rc.values = rc.rows[:0], rc.values[:0]
	rc.upperRows, rc.upperVals = rc.upperRows[:0], rc.upperVals[:0]
	rc.maxAbs = 0
	for _, r := range m.list {
		v := m.dense[r]
		m.dense[r] = 0
		m.inList[r] = false
		if v == 0 {
			continue
		}
		if p := m.rowPerm[r]; p >= 0 {
			rc.upperRows = append(rc.upperRows, p)
			rc.upperVals = append(rc.upperVals, v)
		} else {
			rc.rows = append(rc.rows, r)
			rc.values = append(rc.values, v)
			rc.maxAbs = math.Max(rc.maxAbs, math.Abs(v))
		}
	}
	m.list = m.list[:0]
	m.colDegree[c] = len(rc.rows)
	return rc
}

// leftLookingSolve 用已构建的L求解，结果在m.dense，非零位置在m.list（原始行号）
// 依赖图：L第j列中已分配的行p构成边 j -> rowPerm[p]，按DFS拓扑序处理。
func (m *Markowitz) leftLookingSolve(col sparse.ColumnView) {
	for i, r := range col.Rows {
		if col.Coeffs[i] == 0 {
			continue
		}
		m.dense[r] = col.Coeffs[i]
		if !m.inList[r] {
			m.inList[r] = true
			m.list = append(m.list, r)
		}
	}
	order := m.order[:0]
	for _, r := range m.list {
		root := m.rowPerm[r]
		if root < 0 || m.visited[root] {
			continue
		}
		m.visited[root] = true
		m.stack = append(m.stack[:0], [2]int{root, 0})
		for len(m.stack) > 0 {
			top := &m.stack[len(m.stack)-1]
			lcol := m.lower.Column(top[0])
			if top[1] < len(lcol.Rows) {
				p := m.rowPerm[lcol.Rows[top[1]]]
				top[1]++
				if p >= 0 && !m.visited[p] {
					m.visited[p] = true
					m.stack = append(m.stack, [2]int{p, 0})
				}
				continue
			}
			order = append(order, top[0])
			m.stack = m.stack[:len(m.stack)-1]
		}
	}
	for i := len(order) - 1; i >= 0; i-- {
		k := order[i]
		m.visited[k] = false
		v := m.dense[m.pivotRows[k]]
		if v == 0 {
			continue
		}
		lcol := m.lower.Column(k)
		m.numFpOperations += int64(len(lcol.Rows))
		for j, r := range lcol.Rows {
			if !m.inList[r] {
				m.inList[r] = true
				m.list = append(m.list, r)
			}
			m.dense[r] -= lcol.Coeffs[j] * v
		}
	}
	m.order = order[:0]
}

// pivotOn 以(r, c)为主元，写入L、U列并更新残余模式
func (m *Markowitz) pivotOn(r, c int) {
	rc := &m.columns[c]
	var pivot float64
	var lrows []int
	var lvals []float64
	for i, row := range rc.rows {
		if row == r {
			pivot = rc.values[i]
		}
	}
	for i, row := range rc.rows {
		if row != r {
			lrows = append(lrows, row)
			lvals = append(lvals, rc.values[i]/pivot)
		}
	}
	pivotRowCols := m.rowColumns(r)
	m.addPivot(r, c, pivot, lrows, lvals, rc.upperRows, rc.upperVals)
	m.numFpOperations += int64(len(lrows) * len(pivotRowCols))

	switch {
	case len(lrows) == 0:
		// 主元列只有一个残余元素：无填充
		m.removePivotRow(r, c)
	case m.rowDegree[r] <= 1:
		// 主元行只有主元本身：其它列不受影响
		for _, i := range lrows {
			m.rowDegree[i]--
		}
	default:
		m.rankOnePatternUpdate(r, c, lrows, pivotRowCols)
	}
}

// rankOnePatternUpdate 一般情形：主元行并入所有与主元列相交的行
func (m *Markowitz) rankOnePatternUpdate(r, pivotCol int, lrows []int, pivotRowCols []int) {
	for _, i := range lrows {
		m.stamp++
		for _, c := range m.rowColumns(i) {
			m.colMark[c] = m.stamp
		}
		for _, c := range pivotRowCols {
			if c == pivotCol || m.colMark[c] == m.stamp {
				continue
			}
			// 填充元
			m.rowCols[i] = append(m.rowCols[i], c)
			m.colRows[c] = append(m.colRows[c], i)
			m.rowDegree[i]++
			m.colDegree[c]++
		}
		m.rowDegree[i]--
	}
	for _, c := range pivotRowCols {
		if c == pivotCol {
			continue
		}
		m.colDegree[c]--
		m.needsUpdate[c] = true
		if m.queue.Contains(c) {
			m.queue.PushOrAdjust(c, max(m.colDegree[c], 0))
		}
	}
}

func fill(s []int, v int) []int {
	for i := range s {
		s[i] = v
	}
	return s
}

func resizeBools(s []bool, n int) []bool {
	if cap(s) >= n {
		s = s[:n]
		clear(s)
		return s
	}
	return make([]bool, n)
}
