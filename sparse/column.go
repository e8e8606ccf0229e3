package sparse

import (
	"fmt"
	"math"
	"sort"
)

// ColumnView 只读稀疏列视图（行索引与系数一一对应）
type ColumnView struct {
	Rows   []int
	Coeffs []float64
}

// NumEntries 非零元数量
func (c ColumnView) NumEntries() int { return len(c.Rows) }

// LookUpCoefficient 查找指定行的系数（线性扫描）
func (c ColumnView) LookUpCoefficient(row int) float64 {
	for i, r := range c.Rows {
		if r == row {
			return c.Coeffs[i]
		}
	}
	return 0
}

// ScalarProduct 与稠密向量的内积
func (c ColumnView) ScalarProduct(dense []float64) float64 {
	sum := 0.0
	for i, r := range c.Rows {
		sum += c.Coeffs[i] * dense[r]
	}
	return sum
}

// Column 可变稀疏列
// 清理（CleanUp）后行索引严格递增且无重复、无零值。
type Column struct {
	rows   []int
	coeffs []float64
}

// NewColumn 由行索引与系数创建稀疏列（拷贝输入）
func NewColumn(rows []int, coeffs []float64) *Column {
	if len(rows) != len(coeffs) {
		panic(fmt.Sprintf("sparse column: %d rows for %d coefficients", len(rows), len(coeffs)))
	}
	return &Column{
		rows:   append([]int(nil), rows...),
		coeffs: append([]float64(nil), coeffs...),
	}
}

func (c *Column) View() ColumnView { return ColumnView{Rows: c.rows, Coeffs: c.coeffs} }
func (c *Column) NumEntries() int  { return len(c.rows) }
func (c *Column) Row(i int) int    { return c.rows[i] }

func (c *Column) Coefficient(i int) float64 { return c.coeffs[i] }

// Clear 清空（保留内存）
func (c *Column) Clear() {
	c.rows = c.rows[:0]
	c.coeffs = c.coeffs[:0]
}

// Add 追加一个元素（不检查重复，需要时调用CleanUp）
func (c *Column) Add(row int, coeff float64) {
	c.rows = append(c.rows, row)
	c.coeffs = append(c.coeffs, coeff)
}

// SetCoefficient 设置指定行的系数，已存在则覆盖
func (c *Column) SetCoefficient(row int, coeff float64) {
	for i, r := range c.rows {
		if r == row {
			c.coeffs[i] = coeff
			return
		}
	}
	c.Add(row, coeff)
}

// LookUpCoefficient 查找指定行的系数
func (c *Column) LookUpCoefficient(row int) float64 { return c.View().LookUpCoefficient(row) }

// IsCleanedUp 行索引严格递增且无零值
func (c *Column) IsCleanedUp() bool {
	for i := range c.rows {
		if c.coeffs[i] == 0 || (i > 0 && c.rows[i-1] >= c.rows[i]) {
			return false
		}
	}
	return true
}

// CleanUp 按行排序、合并重复项、删除零值
func (c *Column) CleanUp() {
	sort.Sort(columnSorter{c})
	n := 0
	for i := 0; i < len(c.rows); i++ {
		if n > 0 && c.rows[n-1] == c.rows[i] {
			c.coeffs[n-1] += c.coeffs[i]
			continue
		}
		c.rows[n], c.coeffs[n] = c.rows[i], c.coeffs[i]
		n++
	}
	m := 0
	for i := 0; i < n; i++ {
		if c.coeffs[i] != 0 {
			c.rows[m], c.coeffs[m] = c.rows[i], c.coeffs[i]
			m++
		}
	}
	c.rows, c.coeffs = c.rows[:m], c.coeffs[:m]
}

// PermutedCopy 按置换perm复制（新行号 = perm[旧行号]）
func (c *Column) PermutedCopy(perm *Permutation) *Column {
	out := &Column{rows: make([]int, len(c.rows)), coeffs: append([]float64(nil), c.coeffs...)}
	for i, r := range c.rows {
		out.rows[i] = perm.At(r)
	}
	return out
}

// MaxAbs 最大绝对值
func (c *Column) MaxAbs() float64 {
	m := 0.0
	for _, v := range c.coeffs {
		m = math.Max(m, math.Abs(v))
	}
	return m
}

type columnSorter struct{ c *Column }

func (s columnSorter) Len() int           { return len(s.c.rows) }
func (s columnSorter) Less(i, j int) bool { return s.c.rows[i] < s.c.rows[j] }
func (s columnSorter) Swap(i, j int) {
	s.c.rows[i], s.c.rows[j] = s.c.rows[j], s.c.rows[i]
	s.c.coeffs[i], s.c.coeffs[j] = s.c.coeffs[j], s.c.coeffs[i]
}
