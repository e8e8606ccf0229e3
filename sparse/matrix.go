package sparse

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ColumnMatrix 按列访问的只读矩阵
type ColumnMatrix interface {
	NumRows() int
	NumCols() int
	Column(col int) ColumnView
}

// ------------------------------ 可变稀疏矩阵 ------------------------------

// Matrix 列的序列加行数
type Matrix struct {
	numRows int
	columns []*Column
}

// NewMatrix 创建numRows行的空矩阵
func NewMatrix(numRows int) *Matrix { return &Matrix{numRows: numRows} }

func (m *Matrix) NumRows() int                  { return m.numRows }
func (m *Matrix) NumCols() int                  { return len(m.columns) }
func (m *Matrix) Column(col int) ColumnView     { return m.columns[col].View() }
func (m *Matrix) MutableColumn(col int) *Column { return m.columns[col] }

// AppendEmptyColumn 追加空列并返回
func (m *Matrix) AppendEmptyColumn() *Column {
	c := &Column{}
	m.columns = append(m.columns, c)
	return c
}

// AppendColumn 追加一列（拷贝）
func (m *Matrix) AppendColumn(rows []int, coeffs []float64) {
	for _, r := range rows {
		if r < 0 || r >= m.numRows {
			panic(fmt.Sprintf("sparse matrix: row %d out of range [0, %d)", r, m.numRows))
		}
	}
	m.columns = append(m.columns, NewColumn(rows, coeffs))
}

// AppendUnitVector 追加单位列 value·e_row
func (m *Matrix) AppendUnitVector(row int, value float64) {
	m.AppendColumn([]int{row}, []float64{value})
}

// PopulateFromIdentity n阶单位矩阵
func (m *Matrix) PopulateFromIdentity(n int) {
	m.numRows = n
	m.columns = m.columns[:0]
	for i := 0; i < n; i++ {
		m.AppendUnitVector(i, 1)
	}
}

// PopulateFromTranspose 转置
func (m *Matrix) PopulateFromTranspose(input ColumnMatrix) {
	m.numRows = input.NumCols()
	m.columns = make([]*Column, input.NumRows())
	for i := range m.columns {
		m.columns[i] = &Column{}
	}
	for c := 0; c < input.NumCols(); c++ {
		col := input.Column(c)
		for i, r := range col.Rows {
			m.columns[r].Add(c, col.Coeffs[i])
		}
	}
}

// CleanUp 清理所有列
func (m *Matrix) CleanUp() {
	for _, c := range m.columns {
		c.CleanUp()
	}
}

// ------------------------------ 紧凑列存储 ------------------------------

// CompactMatrix 所有列连续存储的只读稀疏矩阵
type CompactMatrix struct {
	numRows int
	starts  []int // 列起始位置，长度为列数+1
	rows    []int
	coeffs  []float64
}

// NewCompactMatrix 由任意按列矩阵构建
func NewCompactMatrix(input ColumnMatrix) *CompactMatrix {
	m := &CompactMatrix{}
	m.PopulateFromMatrix(input)
	return m
}

// Reset 清空并设置行数（用作列的增长存储）
func (m *CompactMatrix) Reset(numRows int) {
	m.numRows = numRows
	m.starts = append(m.starts[:0], 0)
	m.rows = m.rows[:0]
	m.coeffs = m.coeffs[:0]
}

// PopulateFromMatrix 拷贝任意按列矩阵（丢弃零值）
func (m *CompactMatrix) PopulateFromMatrix(input ColumnMatrix) {
	m.Reset(input.NumRows())
	for c := 0; c < input.NumCols(); c++ {
		col := input.Column(c)
		for i, r := range col.Rows {
			if col.Coeffs[i] != 0 {
				m.rows = append(m.rows, r)
				m.coeffs = append(m.coeffs, col.Coeffs[i])
			}
		}
		m.starts = append(m.starts, len(m.rows))
	}
}

// PopulateFromTranspose 转置（行索引在每列内递增）
func (m *CompactMatrix) PopulateFromTranspose(input *CompactMatrix) {
	numCols := input.numRows
	m.numRows = input.NumCols()
	m.starts = resizeInts(m.starts, numCols+1)
	clear(m.starts)
	for _, r := range input.rows {
		m.starts[r+1]++
	}
	for i := 1; i <= numCols; i++ {
		m.starts[i] += m.starts[i-1]
	}
	m.rows = resizeInts(m.rows, len(input.rows))
	m.coeffs = resizeFloats(m.coeffs, len(input.coeffs))
	next := append([]int(nil), m.starts[:numCols]...)
	for c := 0; c < input.NumCols(); c++ {
		for i := input.starts[c]; i < input.starts[c+1]; i++ {
			r := input.rows[i]
			m.rows[next[r]] = c
			m.coeffs[next[r]] = input.coeffs[i]
			next[r]++
		}
	}
}

// AddDenseColumn 追加稠密列中的非零元，返回列号
func (m *CompactMatrix) AddDenseColumn(dense []float64) int {
	m.ensureStarts()
	for r, v := range dense {
		if v != 0 {
			m.rows = append(m.rows, r)
			m.coeffs = append(m.coeffs, v)
		}
	}
	m.starts = append(m.starts, len(m.rows))
	return len(m.starts) - 2
}

// AddDenseColumnWithNonZeros 只追加nonZeros中列出的位置，返回列号
func (m *CompactMatrix) AddDenseColumnWithNonZeros(dense []float64, nonZeros []int) int {
	if len(nonZeros) == 0 {
		return m.AddDenseColumn(dense)
	}
	m.ensureStarts()
	for _, r := range nonZeros {
		if v := dense[r]; v != 0 {
			m.rows = append(m.rows, r)
			m.coeffs = append(m.coeffs, v)
		}
	}
	m.starts = append(m.starts, len(m.rows))
	return len(m.starts) - 2
}

func (m *CompactMatrix) ensureStarts() {
	if len(m.starts) == 0 {
		m.starts = append(m.starts, 0)
	}
}

// AddColumn 追加一列（行索引与系数），返回列号
func (m *CompactMatrix) AddColumn(rows []int, coeffs []float64) int {
	m.ensureStarts()
	m.rows = append(m.rows, rows...)
	m.coeffs = append(m.coeffs, coeffs...)
	m.starts = append(m.starts, len(m.rows))
	return len(m.starts) - 2
}

// AddScatteredColumn 追加分散向量，返回列号
func (m *CompactMatrix) AddScatteredColumn(v *ScatteredColumn) int {
	return m.AddDenseColumnWithNonZeros(v.Values, v.NonZeros)
}

func (m *CompactMatrix) NumRows() int    { return m.numRows }
func (m *CompactMatrix) NumCols() int    { return max(len(m.starts)-1, 0) }
func (m *CompactMatrix) NumEntries() int { return len(m.rows) }
func (m *CompactMatrix) IsEmpty() bool   { return len(m.starts) <= 1 }

func (m *CompactMatrix) ColumnNumEntries(col int) int { return m.starts[col+1] - m.starts[col] }

// Column 列视图（共享存储）
func (m *CompactMatrix) Column(col int) ColumnView {
	s, e := m.starts[col], m.starts[col+1]
	return ColumnView{Rows: m.rows[s:e], Coeffs: m.coeffs[s:e]}
}

// Get 随机访问（线性扫描列）
func (m *CompactMatrix) Get(row, col int) float64 { return m.Column(col).LookUpCoefficient(row) }

// ColumnScalarProduct 列与稠密向量内积
func (m *CompactMatrix) ColumnScalarProduct(col int, dense []float64) float64 {
	sum := 0.0
	for i := m.starts[col]; i < m.starts[col+1]; i++ {
		sum += m.coeffs[i] * dense[m.rows[i]]
	}
	return sum
}

// ColumnAddMultipleToDense dense += multiplier·column
func (m *CompactMatrix) ColumnAddMultipleToDense(col int, multiplier float64, dense []float64) {
	if multiplier == 0 {
		return
	}
	for i := m.starts[col]; i < m.starts[col+1]; i++ {
		dense[m.rows[i]] += multiplier * m.coeffs[i]
	}
}

// ColumnAddMultipleToScattered v += multiplier·column，新位置追加到NonZeros
// 调用方需保证v的非零标记已填充（RepopulateSparseMask）。
func (m *CompactMatrix) ColumnAddMultipleToScattered(col int, multiplier float64, v *ScatteredColumn) {
	if multiplier == 0 {
		return
	}
	for i := m.starts[col]; i < m.starts[col+1]; i++ {
		r := m.rows[i]
		v.Values[r] += multiplier * m.coeffs[i]
		v.AddNonZeroIfNeeded(r)
	}
}

// ColumnCopyToDense 将列写入稠密向量（调用方保证dense已清零）
func (m *CompactMatrix) ColumnCopyToDense(col int, dense []float64) {
	for i := m.starts[col]; i < m.starts[col+1]; i++ {
		dense[m.rows[i]] = m.coeffs[i]
	}
}

// ------------------------------ 基矩阵视图 ------------------------------

// BasisView 通过基映射看到的方阵：第i列为matrix的第basis[i]列
type BasisView struct {
	Matrix *CompactMatrix
	Basis  []int
}

func (v BasisView) NumRows() int              { return v.Matrix.NumRows() }
func (v BasisView) NumCols() int              { return len(v.Basis) }
func (v BasisView) Column(col int) ColumnView { return v.Matrix.Column(v.Basis[col]) }

// IsIdentity 每一列恰为对应位置的单位向量
func IsIdentity(m ColumnMatrix) bool {
	if m.NumRows() != m.NumCols() {
		return false
	}
	for c := 0; c < m.NumCols(); c++ {
		col := m.Column(c)
		if col.NumEntries() != 1 || col.Rows[0] != c || col.Coeffs[0] != 1 {
			return false
		}
	}
	return true
}

// ToDense 转为gonum稠密矩阵
func ToDense(m ColumnMatrix) *mat.Dense {
	d := mat.NewDense(max(m.NumRows(), 1), max(m.NumCols(), 1), nil)
	for c := 0; c < m.NumCols(); c++ {
		col := m.Column(c)
		for i, r := range col.Rows {
			d.Set(r, c, d.At(r, c)+col.Coeffs[i])
		}
	}
	return d
}
