package main

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"

	"simplex"
	"simplex/config"
	"simplex/sparse"
	"simplex/stats"
)

// randomProblem max ∑c_j·x_j，A ≥ 0，最后m列为松弛列
func randomProblem(rng *rand.Rand, m, n int) *simplex.Problem {
	a := sparse.NewMatrix(m)
	for j := 0; j < n; j++ {
		var rows []int
		var coeffs []float64
		for i := 0; i < m; i++ {
			if i == j%m || rng.Float64() < 0.1 {
				rows = append(rows, i)
				coeffs = append(coeffs, 0.1+rng.Float64())
			}
		}
		a.AppendColumn(rows, coeffs)
	}
	for i := 0; i < m; i++ {
		a.AppendUnitVector(i, 1)
	}
	p := &simplex.Problem{
		Matrix:        sparse.NewCompactMatrix(a),
		Objective:     make([]float64, n+m),
		Lower:         make([]float64, n+m),
		Upper:         make([]float64, n+m),
		RightHandSide: make([]float64, m),
	}
	for j := range p.Upper {
		p.Upper[j] = math.Inf(1)
		if j < n {
			p.Objective[j] = -rng.Float64()
		}
	}
	for i := range p.RightHandSide {
		p.RightHandSide[i] = 1 + rng.Float64()
	}
	return p
}

func writeFile(name string, render func(f *os.File) error) {
	f, err := os.Create(name)
	if err != nil {
		log.Println(err)
		return
	}
	defer f.Close()
	if err := render(f); err != nil {
		log.Println(err)
	}
}

func main() {
	const m, n = 200, 400
	basisCols := make([]int, m)
	for i := range basisCols {
		basisCols[i] = n + i
	}

	for name, configure := range map[string]func(p *config.Parameters){
		"eta": func(p *config.Parameters) { p.UseMiddleProductFormUpdate = false },
		"mpf": func(p *config.Parameters) { p.UseMiddleProductFormUpdate = true },
	} {
		problem := randomProblem(rand.New(rand.NewSource(1)), m, n)
		e, err := simplex.NewEngine(problem, basisCols, configure)
		if err != nil {
			log.Fatal(err)
		}
		for {
			// Step 的错误已写入 e.Record.Errors
			if done, err := e.Step(); done || err != nil {
				break
			}
		}
		fmt.Printf("%s: objective %.10g, %d iterations, deterministic time %.4g\n",
			name, e.ObjectiveValue(), e.Iterations(), e.DeterministicTime())

		writeFile(name+".json", func(f *os.File) error { return e.Record.Render(f) })
		writeFile(name+".html", func(f *os.File) error {
			c := stats.Charts{Record: e.Record}
			return c.Render(f)
		})
		writeFile(name+"_right_solve.png", func(f *os.File) error {
			return e.Stats().Get(stats.RightSolveDensity).Histogram(f, 20)
		})
	}
}
