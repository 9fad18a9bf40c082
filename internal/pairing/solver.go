package pairing

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"deltadebate/internal/errs"
)

// Status is the outcome reported by an Engine.
type Status int

const (
	StatusOptimal Status = iota
	StatusFeasible
	StatusInfeasible
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusFeasible:
		return "feasible"
	case StatusInfeasible:
		return "infeasible"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result holds variable values keyed by variable name.
type Result struct {
	Status Status
	Values map[string]float64
}

// Engine solves a binary program.
type Engine interface {
	Solve(ctx context.Context, p *Program) (Result, error)
}

// Solver validates weight matrices and turns engine results back into
// assignment matrices.
type Solver struct {
	engine Engine
	logger zerolog.Logger
}

// NewSolver creates a Solver backed by engine.
func NewSolver(engine Engine, logger zerolog.Logger) *Solver {
	return &Solver{engine: engine, logger: logger.With().Str("service", "pairing").Logger()}
}

// Solve returns an n×n 0/1 matrix where row i marks the k participants
// assigned to i. ok is false when no assignment satisfies the constraints.
func (s *Solver) Solve(ctx context.Context, w [][]float64, k int) (matrix [][]int, ok bool, err error) {
	if err := validate(w, k); err != nil {
		return nil, false, err
	}
	n := len(w)
	if n == 0 {
		return [][]int{}, true, nil
	}

	p := Formulate(w, k)
	res, err := s.engine.Solve(ctx, p)
	if err != nil {
		return nil, false, fmt.Errorf("failed to solve pairing program: %w", err)
	}
	switch res.Status {
	case StatusOptimal, StatusFeasible:
	default:
		s.logger.Info().Int("n", n).Int("k", k).Stringer("status", res.Status).Msg("no feasible pairing")
		return nil, false, nil
	}

	matrix = make([][]int, n)
	for i := range matrix {
		matrix[i] = make([]int, n)
		for j := range matrix[i] {
			if math.Round(res.Values[VarName(i, j)]) >= 1 {
				matrix[i][j] = 1
			}
		}
	}
	return matrix, true, nil
}

func validate(w [][]float64, k int) error {
	if k < 0 {
		return errs.InvalidInput("k must not be negative, got %d", k)
	}
	for i, row := range w {
		if len(row) != len(w) {
			return errs.InvalidInput("weight matrix must be square, row %d has %d entries", i, len(row))
		}
		for j, v := range row {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return errs.InvalidInput("weight [%d][%d] must be a non-negative number", i, j)
			}
		}
	}
	return nil
}
