package stats

import (
	"encoding/json"
	"io"
	"log"

	"simplex/config"
)

// Source 被记录对象
type Source interface {
	DeterministicTime() float64
	NumUpdates() int
}

// Record 记录每次主元迭代后的状态
type Record struct {
	Parameters        config.Parameters `json:"parameters"`
	Iteration         []int             `json:"iteration"`          // 迭代序号
	DeterministicTime []float64         `json:"deterministic_time"` // 累计确定性时间
	NumUpdates        []int             `json:"num_updates"`        // 自上次分解以来的更新数
	Errors            []string          `json:"errors,omitempty"`   // 迭代失败的原因
	Stats             *Stats            `json:"-"`
	Distributions     []*Distribution   `json:"distributions"`
}

// Init 初始化
func (list *Record) Init(params config.Parameters, s *Stats) {
	list.Parameters = params
	list.Stats = s
	list.Iteration = list.Iteration[:0]
	list.DeterministicTime = list.DeterministicTime[:0]
	list.NumUpdates = list.NumUpdates[:0]
	list.Errors = list.Errors[:0]
}

// Update 记录数据
func (list *Record) Update(src Source) {
	list.Iteration = append(list.Iteration, len(list.Iteration))
	list.DeterministicTime = append(list.DeterministicTime, src.DeterministicTime())
	list.NumUpdates = append(list.NumUpdates, src.NumUpdates())
}

// Render 格式和输出内容
func (list *Record) Render(w io.Writer) error {
	list.Distributions = list.Stats.Distributions()
	return json.NewEncoder(w).Encode(list)
}

// Error 记录并打印迭代错误
func (list *Record) Error(err error) {
	log.Println(err)
	list.Errors = append(list.Errors, err.Error())
}
