package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqattn/pkg/tensor"
)

func TestNewLayerNorm(t *testing.T) {
	ln := NewLayerNorm(16, DefaultNormEps)

	assert.Equal(t, float32(DefaultNormEps), ln.Eps)
	require.Len(t, ln.Scale.Data, 16)
	require.Len(t, ln.Shift.Data, 16)
	for i := range ln.Scale.Data {
		assert.Equal(t, float32(1), ln.Scale.Data[i])
		assert.Equal(t, float32(0), ln.Shift.Data[i])
	}
}

func TestLayerNorm_Forward(t *testing.T) {
	ln := NewLayerNorm(4, 1e-5)

	// Position 0: [1, 2, 3, 4], position 1: [2, 4, 6, 8]
	input, err := tensor.FromSlice([]float32{1, 2, 3, 4, 2, 4, 6, 8}, []int{1, 2, 4})
	require.NoError(t, err)

	output, err := ln.Forward(input)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 4}, output.Shape)

	// mean = 2.5, var = 1.25, (1 - 2.5) / sqrt(1.25) ≈ -1.3416
	assert.InDelta(t, -1.3416407865, output.Get([]int{0, 0, 0}), 1e-5)
	// Scaling a row leaves its normalized value unchanged.
	for d := 0; d < 4; d++ {
		assert.InDelta(t, output.Get([]int{0, 0, d}), output.Get([]int{0, 1, d}), 1e-4)
	}
}

func TestLayerNorm_NormalizationProperty(t *testing.T) {
	const embDim = 8
	ln := NewLayerNorm(embDim, 1e-5)

	input := tensor.NewTensor([]int{1, 1, embDim})
	for d := 0; d < embDim; d++ {
		input.Set([]int{0, 0, d}, float32(d*10+100))
	}

	output, err := ln.Forward(input)
	require.NoError(t, err)

	var mean, variance float32
	for _, v := range output.Data {
		mean += v
	}
	mean /= embDim
	for _, v := range output.Data {
		variance += (v - mean) * (v - mean)
	}
	variance /= embDim

	assert.InDelta(t, 0, mean, 1e-5)
	assert.InDelta(t, 1, variance, 1e-4)
}

func TestLayerNorm_InvalidInput(t *testing.T) {
	ln := NewLayerNorm(8, 1e-5)

	_, err := ln.Forward(tensor.NewTensor([]int{}))
	assert.Error(t, err, "0D tensor")

	_, err = ln.Forward(tensor.NewTensor([]int{2, 3, 5}))
	assert.Error(t, err, "wrong embedding dimension")
}

func TestLayerNorm_LearnableParameters(t *testing.T) {
	ln := NewLayerNorm(4, 1e-5)
	base, err := ln.Forward(mustTensor(t, []float32{1, 2, 3, 4}, 1, 4))
	require.NoError(t, err)

	ln.Scale.Data[0] = 2
	ln.Shift.Data[0] = 1
	out, err := ln.Forward(mustTensor(t, []float32{1, 2, 3, 4}, 1, 4))
	require.NoError(t, err)

	assert.InDelta(t, 2*base.Data[0]+1, out.Data[0], 1e-6)
	assert.InDelta(t, base.Data[1], out.Data[1], 1e-6)
}

func TestFeedForward_Forward(t *testing.T) {
	config := testConfig()
	config.EmbeddingDim, config.HiddenDim = 2, 3
	ff := NewFeedForward(config)

	// FC1 copies x into the first two hidden units and -x[0] into the third.
	ff.FC1.Set([]int{0, 0}, 1)
	ff.FC1.Set([]int{1, 1}, 1)
	ff.FC1.Set([]int{0, 2}, -1)
	// FC2 sums the hidden units into the first output.
	for h := 0; h < 3; h++ {
		ff.FC2.Set([]int{h, 0}, 1)
	}
	ff.B2.Data[1] = 0.5

	out, err := ff.Forward(mustTensor(t, []float32{2, -3}, 1, 1, 2))
	require.NoError(t, err)

	// relu([2, -3, -2]) = [2, 0, 0]
	assert.Equal(t, []int{1, 1, 2}, out.Shape)
	assert.InDelta(t, 2, out.Data[0], 1e-6)
	assert.InDelta(t, 0.5, out.Data[1], 1e-6)

	_, err = ff.Forward(mustTensor(t, []float32{1, 2, 3}, 1, 3))
	assert.Error(t, err)
}

func mustTensor(t testing.TB, data []float32, shape ...int) *tensor.Tensor {
	t.Helper()
	x, err := tensor.FromSlice(data, shape)
	require.NoError(t, err)
	return x
}
