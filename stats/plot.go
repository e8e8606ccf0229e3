package stats

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Histogram 将分布绘制为PNG直方图
// 参数:
//
//	w    - 输出
//	bins - 分箱数
func (d *Distribution) Histogram(w io.Writer, bins int) error {
	if d.Count() == 0 {
		return fmt.Errorf("stats: distribution %q has no samples", d.Name)
	}
	p := plot.New()
	p.Title.Text = d.Name
	p.X.Label.Text = "value"
	p.Y.Label.Text = "count"
	h, err := plotter.NewHist(plotter.Values(d.Samples), bins)
	if err != nil {
		return err
	}
	p.Add(h)
	wt, err := p.WriterTo(4*vg.Inch, 3*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
