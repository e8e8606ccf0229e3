package pricing

import (
	"math"
	"sync"
)

// ParallelFor 把[0, n)均分给numThreads个协程，返回各协程结果的最大值
// fn 只能写入自己负责区间对应的位置；numThreads<=1 或区间过小时在当前协程执行。
func ParallelFor(numThreads, n int, fn func(worker, begin, end int) float64) float64 {
	if numThreads <= 1 || n < 2*numThreads {
		return fn(0, 0, n)
	}
	var wg sync.WaitGroup
	results := make([]float64, numThreads)
	chunk := (n + numThreads - 1) / numThreads
	for w := 0; w < numThreads; w++ {
		begin, end := w*chunk, min((w+1)*chunk, n)
		if begin >= end {
			results[w] = math.Inf(-1)
			continue
		}
		wg.Add(1)
		go func(w, begin, end int) {
			defer wg.Done()
			results[w] = fn(w, begin, end)
		}(w, begin, end)
	}
	wg.Wait()
	best := math.Inf(-1)
	for _, r := range results {
		best = max(best, r)
	}
	return best
}
