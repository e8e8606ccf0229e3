package config

import "fmt"

// UpdateRowAlgorithm 更新行计算算法
type UpdateRowAlgorithm int

const (
	UpdateRowAuto            UpdateRowAlgorithm = iota // 按代价估计自动选择
	UpdateRowColumnWise                                // 逐列标量积
	UpdateRowRowWise                                   // 基于转置矩阵的逐行累加
	UpdateRowHyperSparseRows                           // 超稀疏逐行累加（位置集合）
)

func (a UpdateRowAlgorithm) String() string {
	switch a {
	case UpdateRowAuto:
		return "auto"
	case UpdateRowColumnWise:
		return "column-wise"
	case UpdateRowRowWise:
		return "row-wise"
	case UpdateRowHyperSparseRows:
		return "hyper-sparse-row-wise"
	}
	return fmt.Sprintf("UpdateRowAlgorithm(%d)", int(a))
}

// Parameters 数值内核参数
// 所有阈值均为可调字段，构造时通过回调修改默认值。
type Parameters struct {
	// Markowitz 分解
	LuFactorizationPivotThreshold     float64 `json:"lu_factorization_pivot_threshold"`     // 主元相对阈值（相对列最大值）
	MarkowitzZlatevParameter          int     `json:"markowitz_zlatev_parameter"`           // 每步考察的候选列数
	MarkowitzSingularityThreshold     float64 `json:"markowitz_singularity_threshold"`      // 主元绝对值低于此值视为奇异
	SingletonColumnStabilityThreshold float64 `json:"singleton_column_stability_threshold"` // 残余单元素列稳定性检查

	// 基分解与更新
	UseMiddleProductFormUpdate             bool    `json:"use_middle_product_form_update"`
	BasisRefactorizationPeriod             int     `json:"basis_refactorization_period"`
	DynamicallyAdjustRefactorizationPeriod bool    `json:"dynamically_adjust_refactorization_period"`
	EtaSparsityThreshold                   float64 `json:"eta_sparsity_threshold"`     // eta 列密度低于此值时用稀疏表示
	RankOneSparseRatio                     float64 `json:"rank_one_sparse_ratio"`      // 秩一链超稀疏求解的非零比例阈值
	HyperSparseRatio                       float64 `json:"hyper_sparse_ratio"`         // 三角求解改用超稀疏路径的比例阈值
	HyperSparseGuardFactor                 float64 `json:"hyper_sparse_guard_factor"`  // DFS 前沿规模上限（相对维度）
	RefactorizationCostRatio               float64 `json:"refactorization_cost_ratio"` // 更新链额外求解代价超过上次分解代价的倍数时重新分解

	// 容差
	DualFeasibilityTolerance   float64 `json:"dual_feasibility_tolerance"`
	PrimalFeasibilityTolerance float64 `json:"primal_feasibility_tolerance"`
	DropTolerance              float64 `json:"drop_tolerance"`
	SmallPivotThreshold        float64 `json:"small_pivot_threshold"`
	MinimumAcceptablePivot     float64 `json:"minimum_acceptable_pivot"`
	DegenerateMinistepFactor   float64 `json:"degenerate_ministep_factor"` // 成本平移的最小步长（相对对偶容差）

	// 定价
	RecomputeEdgesNormThreshold    float64            `json:"recompute_edges_norm_threshold"`
	RecomputeReducedCostsThreshold float64            `json:"recompute_reduced_costs_threshold"`
	UseDualPerturbation            bool               `json:"use_dual_perturbation"`
	RelativeCostPerturbation       float64            `json:"relative_cost_perturbation"`
	RelativeMaxCostPerturbation    float64            `json:"relative_max_cost_perturbation"`
	DevexWeightsResetPeriod        int                `json:"devex_weights_reset_period"`
	UseSteepestEdge                bool               `json:"use_steepest_edge"`
	UpdateRowAlgorithm             UpdateRowAlgorithm `json:"update_row_algorithm"`

	// 运行
	NumThreads           int     `json:"num_threads"`
	RandomSeed           uint64  `json:"random_seed"`
	MaxDeterministicTime float64 `json:"max_deterministic_time"` // <=0 表示不限制
	LogDrift             bool    `json:"log_drift"`
}

// Default 默认参数
func Default() Parameters {
	return Parameters{
		LuFactorizationPivotThreshold:     0.01,
		MarkowitzZlatevParameter:          3,
		MarkowitzSingularityThreshold:     1e-15,
		SingletonColumnStabilityThreshold: 0.01,

		UseMiddleProductFormUpdate:             true,
		BasisRefactorizationPeriod:             64,
		DynamicallyAdjustRefactorizationPeriod: true,
		EtaSparsityThreshold:                   0.1,
		RankOneSparseRatio:                     0.1,
		HyperSparseRatio:                       0.05,
		HyperSparseGuardFactor:                 0.1,
		RefactorizationCostRatio:               1,

		DualFeasibilityTolerance:   1e-7,
		PrimalFeasibilityTolerance: 1e-7,
		DropTolerance:              1e-14,
		SmallPivotThreshold:        1e-6,
		MinimumAcceptablePivot:     1e-6,
		DegenerateMinistepFactor:   0.01,

		RecomputeEdgesNormThreshold:    100,
		RecomputeReducedCostsThreshold: 1e-8,
		UseDualPerturbation:            true,
		RelativeCostPerturbation:       1e-5,
		RelativeMaxCostPerturbation:    1e-7,
		DevexWeightsResetPeriod:        150,
		UseSteepestEdge:                true,
		UpdateRowAlgorithm:             UpdateRowAuto,

		NumThreads: 1,
		RandomSeed: 1,
	}
}

// New 默认参数并应用回调
func New(configure ...func(p *Parameters)) Parameters {
	p := Default()
	for _, fn := range configure {
		if fn != nil {
			fn(&p)
		}
	}
	return p
}

// Validate 检查参数取值
func (p *Parameters) Validate() error {
	switch {
	case p.LuFactorizationPivotThreshold <= 0 || p.LuFactorizationPivotThreshold > 1:
		return fmt.Errorf("config: lu factorization pivot threshold %g not in (0, 1]", p.LuFactorizationPivotThreshold)
	case p.MarkowitzZlatevParameter < 1:
		return fmt.Errorf("config: markowitz zlatev parameter %d must be positive", p.MarkowitzZlatevParameter)
	case p.BasisRefactorizationPeriod < 1:
		return fmt.Errorf("config: basis refactorization period %d must be positive", p.BasisRefactorizationPeriod)
	case p.NumThreads < 1:
		return fmt.Errorf("config: num threads %d must be positive", p.NumThreads)
	case p.DevexWeightsResetPeriod < 1:
		return fmt.Errorf("config: devex reset period %d must be positive", p.DevexWeightsResetPeriod)
	case p.RecomputeEdgesNormThreshold <= 0:
		return fmt.Errorf("config: recompute edges norm threshold %g must be positive", p.RecomputeEdgesNormThreshold)
	}
	return nil
}
