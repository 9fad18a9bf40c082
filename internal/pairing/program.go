// Package pairing assigns every participant exactly K others to review,
// maximizing the total pairing weight.
//
// The assignment is a 0/1 integer program. Formulate builds it and an
// Engine solves it; SimplexEngine is the bundled engine.
package pairing

import "fmt"

// Direction of the objective.
type Direction int

const (
	Maximize Direction = iota
	Minimize
)

// Term is one coefficient of a linear expression over program variables.
type Term struct {
	Var  int
	Coef float64
}

// Constraint is the equality Σ Terms = RHS.
type Constraint struct {
	Name  string
	Terms []Term
	RHS   float64
}

// Program is a linear program over binary variables with equality
// constraints.
type Program struct {
	Name        string
	Direction   Direction
	Vars        []string
	Objective   []float64
	Constraints []Constraint
	// N and K describe the assignment the program was built from.
	N, K int
}

// VarName is the name of the variable for pairing i with j.
func VarName(i, j int) string {
	return fmt.Sprintf("x_%d_%d", i, j)
}

// Var returns the index of the variable pairing i with j.
func (p *Program) Var(i, j int) int {
	return i*p.N + j
}

// Formulate builds the program: maximize Σ w[i][j]·x[i][j] subject to
// x[i][i] = 0, every row summing to k and every column summing to k.
// w must be square.
func Formulate(w [][]float64, k int) *Program {
	n := len(w)
	p := &Program{
		Name:      "BinaryMatrix",
		Direction: Maximize,
		Vars:      make([]string, 0, n*n),
		Objective: make([]float64, 0, n*n),
		N:         n,
		K:         k,
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			p.Vars = append(p.Vars, VarName(i, j))
			p.Objective = append(p.Objective, w[i][j])
		}
	}

	for i := 0; i < n; i++ {
		p.Constraints = append(p.Constraints, Constraint{
			Name:  fmt.Sprintf("diag_%d", i),
			Terms: []Term{{Var: p.Var(i, i), Coef: 1}},
			RHS:   0,
		})
	}
	for i := 0; i < n; i++ {
		row := Constraint{Name: fmt.Sprintf("row_%d", i), RHS: float64(k)}
		col := Constraint{Name: fmt.Sprintf("col_%d", i), RHS: float64(k)}
		for j := 0; j < n; j++ {
			row.Terms = append(row.Terms, Term{Var: p.Var(i, j), Coef: 1})
			col.Terms = append(col.Terms, Term{Var: p.Var(j, i), Coef: 1})
		}
		p.Constraints = append(p.Constraints, row, col)
	}
	return p
}
