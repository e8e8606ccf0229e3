package sparse

import "fmt"

// Permutation 索引置换 perm[old] = new，逆置换惰性计算并缓存
type Permutation struct {
	perm         []int
	inverse      []int
	inverseValid bool
}

// NewPermutation 创建大小为n的单位置换
func NewPermutation(n int) *Permutation {
	p := &Permutation{}
	p.PopulateFromIdentity(n)
	return p
}

// PermutationFromSlice 由切片创建置换（拷贝输入）
func PermutationFromSlice(perm []int) *Permutation {
	return &Permutation{perm: append([]int(nil), perm...)}
}

// PopulateFromIdentity 重置为大小为n的单位置换
func (p *Permutation) PopulateFromIdentity(n int) {
	p.perm = resizeInts(p.perm, n)
	for i := range p.perm {
		p.perm[i] = i
	}
	p.inverseValid = false
}

// Clear 置为空置换
func (p *Permutation) Clear() {
	p.perm = p.perm[:0]
	p.inverseValid = false
}

func (p *Permutation) Size() int     { return len(p.perm) }
func (p *Permutation) At(i int) int  { return p.perm[i] }
func (p *Permutation) Slice() []int  { return p.perm }
func (p *Permutation) IsEmpty() bool { return len(p.perm) == 0 }

// Set 修改一个映射，逆置换失效
func (p *Permutation) Set(i, v int) {
	p.perm[i] = v
	p.inverseValid = false
}

// Inverse 逆置换 inverse[new] = old
func (p *Permutation) Inverse() []int {
	if !p.inverseValid {
		p.inverse = resizeInts(p.inverse, len(p.perm))
		for i, v := range p.perm {
			p.inverse[v] = i
		}
		p.inverseValid = true
	}
	return p.inverse
}

// Check 检查是否为双射，且与逆置换复合为恒等
func (p *Permutation) Check() bool {
	n := len(p.perm)
	seen := make([]bool, n)
	for _, v := range p.perm {
		if v < 0 || v >= n || seen[v] {
			return false
		}
		seen[v] = true
	}
	inv := p.Inverse()
	for i, v := range p.perm {
		if inv[v] != i {
			return false
		}
	}
	return true
}

// IsIdentity 是否为单位置换
func (p *Permutation) IsIdentity() bool {
	for i, v := range p.perm {
		if i != v {
			return false
		}
	}
	return true
}

// ApplyToDense dst[perm[i]] = src[i]
func (p *Permutation) ApplyToDense(src, dst []float64) {
	if len(src) != len(p.perm) || len(dst) != len(p.perm) {
		panic(fmt.Sprintf("permutation: size mismatch %d/%d vs %d", len(src), len(dst), len(p.perm)))
	}
	for i, v := range p.perm {
		dst[v] = src[i]
	}
}

// ApplyInverseToDense dst[i] = src[perm[i]]
func (p *Permutation) ApplyInverseToDense(src, dst []float64) {
	if len(src) != len(p.perm) || len(dst) != len(p.perm) {
		panic(fmt.Sprintf("permutation: size mismatch %d/%d vs %d", len(src), len(dst), len(p.perm)))
	}
	for i, v := range p.perm {
		dst[i] = src[v]
	}
}

func resizeInts(s []int, n int) []int {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]int, n)
}

func resizeFloats(s []float64, n int) []float64 {
	if cap(s) >= n {
		s = s[:n]
		clear(s)
		return s
	}
	return make([]float64, n)
}
