package pairing

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"deltadebate/internal/errs"
)

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Solve(ctx context.Context, p *Program) (Result, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(Result), args.Error(1)
}

func uniform(n int, v float64) [][]float64 {
	w := make([][]float64, n)
	for i := range w {
		w[i] = make([]float64, n)
		for j := range w[i] {
			w[i][j] = v
		}
	}
	return w
}

func assertRegular(t *testing.T, m [][]int, k int) {
	t.Helper()
	n := len(m)
	for i := 0; i < n; i++ {
		assert.Zero(t, m[i][i], "diagonal %d", i)
		row, col := 0, 0
		for j := 0; j < n; j++ {
			row += m[i][j]
			col += m[j][i]
		}
		assert.Equal(t, k, row, "row %d", i)
		assert.Equal(t, k, col, "col %d", i)
	}
}

func TestFormulate(t *testing.T) {
	p := Formulate(uniform(3, 1), 2)

	assert.Equal(t, Maximize, p.Direction)
	require.Len(t, p.Vars, 9)
	assert.Equal(t, "x_1_2", p.Vars[p.Var(1, 2)])
	assert.Len(t, p.Constraints, 3+2*3)

	byName := map[string]Constraint{}
	for _, c := range p.Constraints {
		byName[c.Name] = c
	}
	assert.Equal(t, []Term{{Var: p.Var(2, 2), Coef: 1}}, byName["diag_2"].Terms)
	assert.Zero(t, byName["diag_2"].RHS)
	assert.Equal(t, 2.0, byName["row_0"].RHS)
	assert.Len(t, byName["col_1"].Terms, 3)
	for _, term := range byName["col_1"].Terms {
		assert.Equal(t, 1, term.Var%3)
	}
}

func TestVarNamesAreUnambiguous(t *testing.T) {
	assert.NotEqual(t, VarName(1, 11), VarName(11, 1))
}

func TestSolverReconstructsMatrix(t *testing.T) {
	engine := &mockEngine{}
	engine.On("Solve", mock.Anything, mock.MatchedBy(func(p *Program) bool { return p.N == 2 && p.K == 1 })).
		Return(Result{Status: StatusFeasible, Values: map[string]float64{
			"x_0_1": 1, "x_1_0": 0.9999999,
		}}, nil).Once()

	s := NewSolver(engine, zerolog.Nop())
	m, ok, err := s.Solve(context.Background(), uniform(2, 1), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, [][]int{{0, 1}, {1, 0}}, m)
	engine.AssertExpectations(t)
}

func TestSolverInfeasibleIsNotAnError(t *testing.T) {
	engine := &mockEngine{}
	engine.On("Solve", mock.Anything, mock.Anything).Return(Result{Status: StatusInfeasible}, nil)

	m, ok, err := NewSolver(engine, zerolog.Nop()).Solve(context.Background(), uniform(2, 1), 2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, m)
}

func TestSolverPropagatesEngineFailure(t *testing.T) {
	engine := &mockEngine{}
	boom := errors.New("boom")
	engine.On("Solve", mock.Anything, mock.Anything).Return(Result{}, boom)

	_, _, err := NewSolver(engine, zerolog.Nop()).Solve(context.Background(), uniform(3, 1), 1)
	assert.ErrorIs(t, err, boom)
}

func TestSolverValidatesInput(t *testing.T) {
	engine := &mockEngine{}
	s := NewSolver(engine, zerolog.Nop())
	ctx := context.Background()

	_, _, err := s.Solve(ctx, [][]float64{{0, 1}, {1}}, 1)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, _, err = s.Solve(ctx, [][]float64{{0, -1}, {1, 0}}, 1)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, _, err = s.Solve(ctx, uniform(2, 1), -1)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	m, ok, err := s.Solve(ctx, nil, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, m)

	engine.AssertNotCalled(t, "Solve", mock.Anything, mock.Anything)
}

func TestSimplexPicksHeaviestCycle(t *testing.T) {
	w := uniform(3, 1)
	w[0][1], w[1][2], w[2][0] = 10, 10, 10

	m, ok, err := NewSolver(SimplexEngine{}, zerolog.Nop()).Solve(context.Background(), w, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, [][]int{{0, 1, 0}, {0, 0, 1}, {1, 0, 0}}, m)
}

func TestSimplexRegularAssignment(t *testing.T) {
	w := [][]float64{
		{0, 5, 1, 3},
		{2, 0, 4, 1},
		{6, 1, 0, 2},
		{1, 3, 2, 0},
	}
	m, ok, err := NewSolver(SimplexEngine{}, zerolog.Nop()).Solve(context.Background(), w, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assertRegular(t, m, 2)
}

func TestSimplexFullDegree(t *testing.T) {
	m, ok, err := NewSolver(SimplexEngine{}, zerolog.Nop()).Solve(context.Background(), uniform(3, 0), 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, [][]int{{0, 1, 1}, {1, 0, 1}, {1, 1, 0}}, m)
}

func TestSimplexZeroDegree(t *testing.T) {
	m, ok, err := NewSolver(SimplexEngine{}, zerolog.Nop()).Solve(context.Background(), uniform(3, 4), 0)
	require.NoError(t, err)
	require.True(t, ok)
	assertRegular(t, m, 0)
}

func TestSimplexInfeasible(t *testing.T) {
	s := NewSolver(SimplexEngine{}, zerolog.Nop())

	m, ok, err := s.Solve(context.Background(), uniform(2, 1), 2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, m)

	_, ok, err = s.Solve(context.Background(), uniform(1, 1), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIndependentRows(t *testing.T) {
	rows := [][]float64{
		{1, 1, 2},
		{2, 2, 4},
		{1, 0, 1},
	}
	kept, ok := independentRows(rows, 2)
	require.True(t, ok)
	assert.Equal(t, [][]float64{{1, 1, 2}, {1, 0, 1}}, kept)

	_, ok = independentRows([][]float64{{1, 1, 2}, {2, 2, 5}}, 2)
	assert.False(t, ok)
}
