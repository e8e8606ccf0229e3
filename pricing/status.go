package pricing

import (
	"fmt"
	"math"

	"simplex/sparse"
	"simplex/utils"
)

// VariableType 变量类型（只由上下界决定）
type VariableType int

const (
	Unconstrained        VariableType = iota // 自由变量
	LowerBounded                             // 只有下界
	UpperBounded                             // 只有上界
	UpperAndLowerBounded                     // 有界（boxed）
	FixedVariable                            // 上下界相等
)

func (t VariableType) String() string {
	switch t {
	case Unconstrained:
		return "unconstrained"
	case LowerBounded:
		return "lower-bounded"
	case UpperBounded:
		return "upper-bounded"
	case UpperAndLowerBounded:
		return "upper-and-lower-bounded"
	case FixedVariable:
		return "fixed"
	}
	return fmt.Sprintf("VariableType(%d)", int(t))
}

// VariableStatus 变量状态
type VariableStatus int

const (
	Basic VariableStatus = iota
	AtLowerBound
	AtUpperBound
	FixedValue
	Free
)

func (s VariableStatus) String() string {
	switch s {
	case Basic:
		return "basic"
	case AtLowerBound:
		return "at-lower-bound"
	case AtUpperBound:
		return "at-upper-bound"
	case FixedValue:
		return "fixed-value"
	case Free:
		return "free"
	}
	return fmt.Sprintf("VariableStatus(%d)", int(s))
}

// TypeFromBounds 由上下界得到变量类型
func TypeFromBounds(lower, upper float64) VariableType {
	lowerFinite, upperFinite := !math.IsInf(lower, -1), !math.IsInf(upper, 1)
	switch {
	case lowerFinite && upperFinite && lower == upper:
		return FixedVariable
	case lowerFinite && upperFinite:
		return UpperAndLowerBounded
	case lowerFinite:
		return LowerBounded
	case upperFinite:
		return UpperBounded
	}
	return Unconstrained
}

// VariablesInfo 每列的类型、状态及由状态派生的位图缓存
//
// 位图在每次状态更新后保持与状态一致：
// canIncrease = 非基且处于下界或自由；canDecrease = 非基且处于上界或自由；
// isRelevant = 非基、非固定，且（有界变量相关或不是有界变量）。
type VariablesInfo struct {
	matrix *sparse.CompactMatrix
	lower  []float64
	upper  []float64

	types    []VariableType
	statuses []VariableStatus

	canIncrease   utils.Bitmap
	canDecrease   utils.Bitmap
	isRelevant    utils.Bitmap
	isBasic       utils.Bitmap
	notBasic      utils.Bitmap
	nonBasicBoxed utils.Bitmap

	boxedRelevant               bool
	numEntriesInRelevantColumns int
}

// NewVariablesInfo 由上下界创建，所有列初始为非基的默认状态
// 参数:
//
//	matrix - 约束矩阵，用于统计相关列的非零元数
//	lower  - 下界，-Inf 表示无下界
//	upper  - 上界，+Inf 表示无上界
func NewVariablesInfo(matrix *sparse.CompactMatrix, lower, upper []float64) *VariablesInfo {
	if len(lower) != len(upper) || len(lower) != matrix.NumCols() {
		panic(fmt.Sprintf("variables info: %d lower bounds, %d upper bounds, %d columns", len(lower), len(upper), matrix.NumCols()))
	}
	v := &VariablesInfo{
		matrix:        matrix,
		lower:         lower,
		upper:         upper,
		boxedRelevant: true,
	}
	n := len(lower)
	v.types = make([]VariableType, n)
	v.statuses = make([]VariableStatus, n)
	for _, b := range v.bitmaps() {
		b.Resize(n)
	}
	for col := 0; col < n; col++ {
		v.types[col] = TypeFromBounds(lower[col], upper[col])
		v.UpdateToNonBasicStatus(col, v.DefaultNonBasicStatus(col))
	}
	return v
}

func (v *VariablesInfo) bitmaps() []*utils.Bitmap {
	return []*utils.Bitmap{&v.canIncrease, &v.canDecrease, &v.isRelevant, &v.isBasic, &v.notBasic, &v.nonBasicBoxed}
}

// DefaultNonBasicStatus 非基列的默认状态：有界变量取绝对值较小的界
func (v *VariablesInfo) DefaultNonBasicStatus(col int) VariableStatus {
	switch v.types[col] {
	case LowerBounded:
		return AtLowerBound
	case UpperBounded:
		return AtUpperBound
	case UpperAndLowerBounded:
		if math.Abs(v.upper[col]) < math.Abs(v.lower[col]) {
			return AtUpperBound
		}
		return AtLowerBound
	case FixedVariable:
		return FixedValue
	}
	return Free
}

// InitializeFromBasis basis中的列为基，其余列取默认状态
func (v *VariablesInfo) InitializeFromBasis(basis []int) {
	for col := range v.statuses {
		if v.statuses[col] == Basic {
			v.UpdateToNonBasicStatus(col, v.DefaultNonBasicStatus(col))
		}
	}
	for _, col := range basis {
		v.UpdateToBasicStatus(col)
	}
}

// UpdateToBasicStatus 列进基
func (v *VariablesInfo) UpdateToBasicStatus(col int) {
	v.statuses[col] = Basic
	v.isBasic.Set(col, true)
	v.notBasic.Set(col, false)
	v.canIncrease.Set(col, false)
	v.canDecrease.Set(col, false)
	v.nonBasicBoxed.Set(col, false)
	v.setRelevance(col, false)
}

// UpdateToNonBasicStatus 列出基或改变非基状态
func (v *VariablesInfo) UpdateToNonBasicStatus(col int, status VariableStatus) {
	if status == Basic {
		panic(fmt.Sprintf("variables info: column %d cannot become basic through a non-basic update", col))
	}
	v.statuses[col] = status
	v.isBasic.Set(col, false)
	v.notBasic.Set(col, true)
	v.canIncrease.Set(col, status == AtLowerBound || status == Free)
	v.canDecrease.Set(col, status == AtUpperBound || status == Free)
	boxed := v.types[col] == UpperAndLowerBounded
	v.nonBasicBoxed.Set(col, boxed)
	v.setRelevance(col, v.types[col] != FixedVariable && (v.boxedRelevant || !boxed))
}

func (v *VariablesInfo) setRelevance(col int, relevant bool) {
	if v.isRelevant.Get(col) == relevant {
		return
	}
	v.isRelevant.Set(col, relevant)
	if relevant {
		v.numEntriesInRelevantColumns += v.matrix.ColumnNumEntries(col)
	} else {
		v.numEntriesInRelevantColumns -= v.matrix.ColumnNumEntries(col)
	}
}

// MakeBoxedVariableRelevant 设置有界变量是否参与定价
func (v *VariablesInfo) MakeBoxedVariableRelevant(value bool) {
	if v.boxedRelevant == value {
		return
	}
	v.boxedRelevant = value
	v.nonBasicBoxed.ForEach(func(col int) {
		v.setRelevance(col, value)
	})
}

func (v *VariablesInfo) NumVariables() int                { return len(v.types) }
func (v *VariablesInfo) Type(col int) VariableType        { return v.types[col] }
func (v *VariablesInfo) Status(col int) VariableStatus    { return v.statuses[col] }
func (v *VariablesInfo) LowerBound(col int) float64       { return v.lower[col] }
func (v *VariablesInfo) UpperBound(col int) float64       { return v.upper[col] }
func (v *VariablesInfo) CanIncrease() *utils.Bitmap       { return &v.canIncrease }
func (v *VariablesInfo) CanDecrease() *utils.Bitmap       { return &v.canDecrease }
func (v *VariablesInfo) IsRelevant() *utils.Bitmap        { return &v.isRelevant }
func (v *VariablesInfo) IsBasic() *utils.Bitmap           { return &v.isBasic }
func (v *VariablesInfo) NotBasic() *utils.Bitmap          { return &v.notBasic }
func (v *VariablesInfo) NonBasicBoxed() *utils.Bitmap     { return &v.nonBasicBoxed }
func (v *VariablesInfo) NumEntriesInRelevantColumns() int { return v.numEntriesInRelevantColumns }
func (v *VariablesInfo) BoxedVariablesAreRelevant() bool  { return v.boxedRelevant }

// CheckConsistency 检查位图与状态一致，且基列恰好是basis的像
func (v *VariablesInfo) CheckConsistency(basis []int) error {
	inBasis := make([]bool, len(v.statuses))
	for row, col := range basis {
		if inBasis[col] {
			return fmt.Errorf("variables info: column %d basic in two rows (second is %d)", col, row)
		}
		inBasis[col] = true
	}
	entries := 0
	for col, status := range v.statuses {
		basic := status == Basic
		if basic != inBasis[col] {
			return fmt.Errorf("variables info: column %d has status %v but basis membership %t", col, status, inBasis[col])
		}
		boxed := v.types[col] == UpperAndLowerBounded
		relevant := !basic && v.types[col] != FixedVariable && (v.boxedRelevant || !boxed)
		switch {
		case v.isBasic.Get(col) != basic, v.notBasic.Get(col) == basic:
			return fmt.Errorf("variables info: basic flags of column %d inconsistent with %v", col, status)
		case v.canIncrease.Get(col) != (!basic && (status == AtLowerBound || status == Free)):
			return fmt.Errorf("variables info: can-increase flag of column %d inconsistent with %v", col, status)
		case v.canDecrease.Get(col) != (!basic && (status == AtUpperBound || status == Free)):
			return fmt.Errorf("variables info: can-decrease flag of column %d inconsistent with %v", col, status)
		case v.nonBasicBoxed.Get(col) != (!basic && boxed):
			return fmt.Errorf("variables info: non-basic-boxed flag of column %d inconsistent with %v", col, status)
		case v.isRelevant.Get(col) != relevant:
			return fmt.Errorf("variables info: relevance of column %d inconsistent with %v", col, status)
		}
		if relevant {
			entries += v.matrix.ColumnNumEntries(col)
		}
	}
	if entries != v.numEntriesInRelevantColumns {
		return fmt.Errorf("variables info: %d entries in relevant columns, cached %d", entries, v.numEntriesInRelevantColumns)
	}
	return nil
}
