package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Kind 诊断分布种类
type Kind int

const (
	BFactorizationDensity Kind = iota // 分解后因子的填充率
	RightSolveDensity                 // 右求解结果密度
	LeftSolveDensity                  // 左求解结果密度
	EdgeNormAccuracy                  // 边范数相对误差
	ReducedCostAccuracy               // 检验数误差
	FillIn                            // Markowitz 填充元数
	numKinds
)

func (k Kind) String() string {
	switch k {
	case BFactorizationDensity:
		return "b_factorization_density"
	case RightSolveDensity:
		return "right_solve_density"
	case LeftSolveDensity:
		return "left_solve_density"
	case EdgeNormAccuracy:
		return "edge_norm_accuracy"
	case ReducedCostAccuracy:
		return "reduced_cost_accuracy"
	case FillIn:
		return "fill_in"
	}
	return "unknown"
}

// Distribution 样本分布
type Distribution struct {
	Name    string    `json:"name"`
	Samples []float64 `json:"samples"`
}

func (d *Distribution) Add(v float64) { d.Samples = append(d.Samples, v) }
func (d *Distribution) Count() int    { return len(d.Samples) }

// Mean 均值（无样本时为0）
func (d *Distribution) Mean() float64 {
	if len(d.Samples) == 0 {
		return 0
	}
	return stat.Mean(d.Samples, nil)
}

// StdDev 样本标准差（少于两个样本时为0）
func (d *Distribution) StdDev() float64 {
	if len(d.Samples) < 2 {
		return 0
	}
	return stat.StdDev(d.Samples, nil)
}

func (d *Distribution) Min() float64 {
	if len(d.Samples) == 0 {
		return 0
	}
	return floats.Min(d.Samples)
}

func (d *Distribution) Max() float64 {
	if len(d.Samples) == 0 {
		return 0
	}
	return floats.Max(d.Samples)
}

// Stats 数值内核的诊断统计
// 只用于记录和输出，从不参与控制流；nil 接收者上的方法都是空操作。
type Stats struct {
	distributions [numKinds]Distribution
}

// New 创建统计
func New() *Stats {
	s := &Stats{}
	for k := Kind(0); k < numKinds; k++ {
		s.distributions[k].Name = k.String()
	}
	return s
}

// Add 记录一个样本
func (s *Stats) Add(kind Kind, v float64) {
	if s == nil || math.IsNaN(v) {
		return
	}
	s.distributions[kind].Add(v)
}

// Get 某一种分布
func (s *Stats) Get(kind Kind) *Distribution {
	if s == nil {
		return &Distribution{Name: kind.String()}
	}
	return &s.distributions[kind]
}

// Distributions 全部分布（按种类顺序）
func (s *Stats) Distributions() []*Distribution {
	list := make([]*Distribution, 0, numKinds)
	for k := Kind(0); k < numKinds; k++ {
		list = append(list, s.Get(k))
	}
	return list
}

// ConditionNumber 稠密矩阵的2-范数条件数
func ConditionNumber(m mat.Matrix) float64 { return mat.Cond(m, 2) }
