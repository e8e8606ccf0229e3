package sparse

// DeterministicTimeForFpOperations 浮点运算次数折算为确定性时间（与机器无关的抽象单位）
func DeterministicTimeForFpOperations(n int64) float64 { return float64(n) * 2e-9 }
