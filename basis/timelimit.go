package basis

import (
	"math"
	"time"
)

// DeterministicClock 确定性时间来源
type DeterministicClock interface {
	DeterministicTime() float64
}

// TimeLimit 确定性时间预算，可附加墙钟截止时间
// 只在耗时的O(n)循环中粗粒度检查；nil 表示不限制。
type TimeLimit struct {
	clock    DeterministicClock
	start    float64
	budget   float64 // <=0 表示不限制
	deadline time.Time
}

// NewTimeLimit 从当前确定性时间开始计算预算
func NewTimeLimit(clock DeterministicClock, budget float64) *TimeLimit {
	return &TimeLimit{clock: clock, start: clock.DeterministicTime(), budget: budget}
}

// WithDeadline 附加墙钟截止时间
func (t *TimeLimit) WithDeadline(deadline time.Time) *TimeLimit {
	t.deadline = deadline
	return t
}

// Remaining 剩余的确定性时间
func (t *TimeLimit) Remaining() float64 {
	if t == nil || t.budget <= 0 {
		return math.Inf(1)
	}
	return t.budget - (t.clock.DeterministicTime() - t.start)
}

// LimitReached 预算或截止时间已到
func (t *TimeLimit) LimitReached() bool {
	if t == nil {
		return false
	}
	if !t.deadline.IsZero() && time.Now().After(t.deadline) {
		return true
	}
	return t.Remaining() <= 0
}
