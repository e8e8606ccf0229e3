package stats

import (
	"io"
	"log"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

// Charts 曲线绘制
type Charts struct {
	Record
}

func newLine(title, subtitle string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme: types.ThemeWesteros,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: subtitle,
		}),
		charts.WithLegendOpts(opts.Legend{
			Type:   "scroll",
			Orient: "vertical",
			Right:  "10",
			Top:    "20",
			Bottom: "20",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			SplitNumber: 20,
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale: opts.Bool(true),
		}),
		charts.WithDataZoomOpts(opts.DataZoom{
			Type:       "inside",
			Start:      0,
			End:        100,
			XAxisIndex: []int{0},
		}),
		charts.WithAnimation(true),
	)
	return line
}

// Render 格式化
func (c *Charts) Render(w io.Writer) error {
	// 迭代过程
	lineT := newLine("确定性时间", "累计确定性时间与更新次数随迭代变化曲线")
	lineT.SetXAxis(c.Iteration)
	itemsT := make([]opts.LineData, len(c.Iteration))
	itemsU := make([]opts.LineData, len(c.Iteration))
	for i := range c.Iteration {
		itemsT[i].Value = c.DeterministicTime[i]
		itemsU[i].Value = c.NumUpdates[i]
	}
	lineT.AddSeries("deterministic_time", itemsT)
	lineT.AddSeries("num_updates", itemsU)

	// 密度与精度
	lineD := newLine("求解密度", "左右求解结果密度与分解填充率")
	lineA := newLine("数值精度", "边范数与检验数的相对误差")
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme: types.ThemeWesteros,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "填充元",
			Subtitle: "每次分解的填充元数",
		}),
	)
	longest := 0
	for _, d := range c.Stats.Distributions() {
		longest = max(longest, d.Count())
	}
	xAxis := make([]int, longest)
	for i := range xAxis {
		xAxis[i] = i
	}
	lineD.SetXAxis(xAxis)
	lineA.SetXAxis(xAxis)
	bar.SetXAxis(xAxis)
	for _, kind := range []Kind{BFactorizationDensity, RightSolveDensity, LeftSolveDensity, EdgeNormAccuracy, ReducedCostAccuracy} {
		d := c.Stats.Get(kind)
		items := make([]opts.LineData, d.Count())
		for i, v := range d.Samples {
			items[i].Value = v
		}
		if kind == EdgeNormAccuracy || kind == ReducedCostAccuracy {
			lineA.AddSeries(d.Name, items)
		} else {
			lineD.AddSeries(d.Name, items)
		}
	}
	fill := c.Stats.Get(FillIn)
	barItems := make([]opts.BarData, fill.Count())
	for i, v := range fill.Samples {
		barItems[i].Value = v
	}
	bar.AddSeries(fill.Name, barItems)

	// 构建界面
	page := components.NewPage()
	page.AddCharts(
		lineT,
		lineD,
		lineA,
		bar,
	)
	return page.Render(w)
}

// Handler 发布到网页面
func (c *Charts) Handler(w http.ResponseWriter, _ *http.Request) {
	if err := c.Render(w); err != nil {
		c.Error(err)
	}
}

func (c *Charts) Error(err error) { log.Println(err) }
