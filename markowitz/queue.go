package markowitz

// columnPriorityQueue 按残余度数分桶的列优先队列
type columnPriorityQueue struct {
	degree    []int // 不在队列中时为-1
	pos       []int
	buckets   [][]int
	minDegree int
	size      int
}

// Reset 清空并设置列数
func (q *columnPriorityQueue) Reset(numCols int) {
	q.degree = resize(q.degree, numCols)
	q.pos = resize(q.pos, numCols)
	for i := range q.degree {
		q.degree[i] = -1
	}
	if len(q.buckets) < numCols+1 {
		q.buckets = make([][]int, numCols+1)
	}
	for i := range q.buckets {
		q.buckets[i] = q.buckets[i][:0]
	}
	q.minDegree = numCols + 1
	q.size = 0
}

func (q *columnPriorityQueue) Size() int { return q.size }

// Contains 列是否在队列中
func (q *columnPriorityQueue) Contains(col int) bool { return q.degree[col] >= 0 }

// PushOrAdjust 插入或修改度数
func (q *columnPriorityQueue) PushOrAdjust(col, degree int) {
	if degree >= len(q.buckets) {
		degree = len(q.buckets) - 1
	}
	if q.degree[col] == degree {
		return
	}
	if q.degree[col] >= 0 {
		q.Remove(col)
	}
	q.degree[col] = degree
	q.pos[col] = len(q.buckets[degree])
	q.buckets[degree] = append(q.buckets[degree], col)
	q.size++
	if degree < q.minDegree {
		q.minDegree = degree
	}
}

// Remove 移出队列（不在队列中时无操作）
func (q *columnPriorityQueue) Remove(col int) {
	d := q.degree[col]
	if d < 0 {
		return
	}
	b := q.buckets[d]
	last := b[len(b)-1]
	b[q.pos[col]] = last
	q.pos[last] = q.pos[col]
	q.buckets[d] = b[:len(b)-1]
	q.degree[col] = -1
	q.size--
}

// MinDegree 当前最小度数（队列为空时返回-1）
func (q *columnPriorityQueue) MinDegree() int {
	if q.size == 0 {
		return -1
	}
	for len(q.buckets[q.minDegree]) == 0 {
		q.minDegree++
	}
	return q.minDegree
}

// Pop 取出度数最小的一列（队列为空时返回-1）
func (q *columnPriorityQueue) Pop() int {
	d := q.MinDegree()
	if d < 0 {
		return -1
	}
	b := q.buckets[d]
	col := b[len(b)-1]
	q.Remove(col)
	return col
}

func resize(s []int, n int) []int {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]int, n)
}
