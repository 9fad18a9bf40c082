package pairing

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// ErrFractional is returned when the relaxation of a program has a
// non integral optimum.
var ErrFractional = errors.New("pairing: relaxation optimum is not integral")

const (
	simplexTol  = 1e-10
	reduceTol   = 1e-9
	integralTol = 1e-6
)

// SimplexEngine solves the linear relaxation of a program with gonum's
// simplex method. Degree constrained assignment programs have integral
// vertices, so the relaxation optimum is also the binary optimum. Results
// that are not integral are rejected with ErrFractional.
type SimplexEngine struct{}

// Solve converts p to standard form (min c·x, Ax = b, x >= 0) with one slack
// per variable bounding it by 1.
func (SimplexEngine) Solve(ctx context.Context, p *Program) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	nv := len(p.Vars)
	if nv == 0 {
		return Result{Status: StatusOptimal, Values: map[string]float64{}}, nil
	}
	cols := 2 * nv

	rows := make([][]float64, 0, len(p.Constraints)+nv)
	for _, c := range p.Constraints {
		row := make([]float64, cols+1)
		for _, t := range c.Terms {
			row[t.Var] += t.Coef
		}
		row[cols] = c.RHS
		rows = append(rows, row)
	}
	for v := 0; v < nv; v++ {
		row := make([]float64, cols+1)
		row[v] = 1
		row[nv+v] = 1
		row[cols] = 1
		rows = append(rows, row)
	}

	rows, consistent := independentRows(rows, cols)
	if !consistent {
		return Result{Status: StatusInfeasible}, nil
	}

	a := mat.NewDense(len(rows), cols, nil)
	b := make([]float64, len(rows))
	for i, row := range rows {
		a.SetRow(i, row[:cols])
		b[i] = row[cols]
	}

	c := make([]float64, cols)
	for v, coef := range p.Objective {
		if p.Direction == Maximize {
			c[v] = -coef
		} else {
			c[v] = coef
		}
	}

	_, x, err := lp.Simplex(c, a, b, simplexTol, nil)
	if errors.Is(err, lp.ErrInfeasible) {
		return Result{Status: StatusInfeasible}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("simplex: %w", err)
	}

	values := make(map[string]float64, nv)
	for v, name := range p.Vars {
		r := math.Round(x[v])
		if math.Abs(x[v]-r) > integralTol {
			return Result{}, fmt.Errorf("%w: %s = %v", ErrFractional, name, x[v])
		}
		values[name] = r
	}
	return Result{Status: StatusOptimal, Values: values}, nil
}

// independentRows drops rows of the augmented system [A | b] that are linear
// combinations of earlier rows. It reports false when a dropped row
// contradicts the others.
func independentRows(rows [][]float64, cols int) ([][]float64, bool) {
	type pivotRow struct {
		col int
		row []float64
	}
	var basis []pivotRow
	kept := make([][]float64, 0, len(rows))

	for _, orig := range rows {
		r := append([]float64(nil), orig...)
		for _, pr := range basis {
			if f := r[pr.col]; f != 0 {
				scale := f / pr.row[pr.col]
				for j := range r {
					r[j] -= scale * pr.row[j]
				}
			}
		}
		pivot := -1
		for j := 0; j < cols; j++ {
			if math.Abs(r[j]) > reduceTol {
				pivot = j
				break
			}
		}
		if pivot < 0 {
			if math.Abs(r[cols]) > reduceTol {
				return nil, false
			}
			continue
		}
		basis = append(basis, pivotRow{col: pivot, row: r})
		kept = append(kept, orig)
	}
	return kept, true
}
