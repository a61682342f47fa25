package embedding

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqattn/pkg/tensor"
)

func newTestEmbedding(t *testing.T) *TokenAndPosition {
	t.Helper()
	e, err := New(20, 6, 4, 0, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	return e
}

func TestForward_SumOfTables(t *testing.T) {
	e := newTestEmbedding(t)
	ids := [][]int{
		{3, 5, 0},
		{7, 7, 7},
	}

	out, pad, err := e.Forward(ids)
	require.NoError(t, err)
	require.Equal(t, []int{2, 3, 4}, out.Shape)

	for b, row := range ids {
		for s, id := range row {
			for d := 0; d < 4; d++ {
				want := e.Token.Get([]int{id, d}) + e.Position.Get([]int{s, d})
				assert.Equal(t, want, out.Get([]int{b, s, d}))
			}
		}
	}

	assert.Equal(t, []float32{1, 1, 0}, pad.Vector(0))
	assert.Equal(t, []float32{1, 1, 1}, pad.Vector(1))
}

func TestForward_PositionIndependentOfBatchRow(t *testing.T) {
	e := newTestEmbedding(t)
	out, _, err := e.Forward([][]int{{4, 9}, {4, 9}})
	require.NoError(t, err)
	assert.Equal(t, out.Row(0, 1), out.Row(1, 1))
}

func TestForward_NoCrossPositionLeakage(t *testing.T) {
	e := newTestEmbedding(t)
	a, _, err := e.Forward([][]int{{1, 2, 3, 4}})
	require.NoError(t, err)
	b, _, err := e.Forward([][]int{{9, 2, 11, 12}})
	require.NoError(t, err)

	// Position 1 holds the same token in both sequences.
	assert.Equal(t, a.Row(0, 1), b.Row(0, 1))
	assert.NotEqual(t, a.Row(0, 0), b.Row(0, 0))
}

func TestForward_Errors(t *testing.T) {
	e := newTestEmbedding(t)

	_, _, err := e.Forward([][]int{{1, 2, 3, 4, 5, 6, 7}})
	assert.ErrorIs(t, err, ErrSequenceTooLong)

	_, _, err = e.Forward([][]int{{1, 20}})
	assert.ErrorIs(t, err, ErrTokenOutOfRange)

	_, _, err = e.Forward([][]int{{1, -1}})
	assert.ErrorIs(t, err, ErrTokenOutOfRange)

	_, _, err = e.Forward([][]int{{1, 2}, {1}})
	assert.ErrorIs(t, err, ErrRaggedBatch)
}

func TestForward_FullCapacity(t *testing.T) {
	e := newTestEmbedding(t)
	out, _, err := e.Forward([][]int{{1, 2, 3, 4, 5, 6}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 6, 4}, out.Shape)
}

func TestFromTables_DimMismatch(t *testing.T) {
	_, err := FromTables(tensor.NewTensor([]int{10, 8}), tensor.NewTensor([]int{5, 6}), 0)
	assert.ErrorIs(t, err, ErrDimMismatch)

	_, err = FromTables(tensor.NewTensor([]int{10}), tensor.NewTensor([]int{5, 6}), 0)
	assert.Error(t, err)

	_, err = New(0, 4, 4, 0, nil)
	assert.Error(t, err)
}

func TestSinusoidalTable(t *testing.T) {
	table, err := SinusoidalTable(10, 6)
	require.NoError(t, err)
	require.Equal(t, []int{10, 6}, table.Shape)

	// Position 0 is sin(0)=0 on even dims and cos(0)=1 on odd dims.
	assert.Equal(t, []float32{0, 1, 0, 1, 0, 1}, table.Row(0))
	assert.InDelta(t, math.Sin(3), table.Get([]int{3, 0}), 1e-6)
	assert.InDelta(t, math.Cos(3/math.Pow(10000, 2.0/6.0)), table.Get([]int{3, 3}), 1e-6)

	e, err := FromTables(tensor.NewTensor([]int{4, 6}), table, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, e.MaxLen())

	_, err = SinusoidalTable(0, 6)
	assert.Error(t, err)
}

func TestNewSinusoidal(t *testing.T) {
	e, err := NewSinusoidal(5, 8, 4, 0, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, 5, e.VocabSize())
	assert.Equal(t, 8, e.MaxLen())
	assert.Equal(t, 4, e.Dim())

	table, err := SinusoidalTable(8, 4)
	require.NoError(t, err)
	assert.True(t, table.Equals(e.Position, 0))

	_, _, err = e.Forward([][]int{make([]int, 9)})
	assert.ErrorIs(t, err, ErrSequenceTooLong)

	_, err = NewSinusoidal(0, 8, 4, 0, nil)
	assert.Error(t, err)
}
