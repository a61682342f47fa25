package model

import (
	"fmt"
	"math"

	"seqattn/pkg/tensor"
)

// DefaultNormEps matches the epsilon of the reference layer normalization.
const DefaultNormEps = 1e-6

// LayerNorm implements layer normalization with learnable scale and shift.
//
// It normalizes the input across the last dimension (feature dimension) and
// applies a learned scale (gamma) and shift (beta).
//
// Formula:
//
//	mean = mean(x, dim=-1)
//	var = var(x, dim=-1)
//	x_norm = (x - mean) / sqrt(var + eps)
//	output = x_norm * scale + shift
//
// Every encoder and decoder block applies it after each residual sum.
type LayerNorm struct {
	Scale *tensor.Tensor // (emb_dim,) gamma
	Shift *tensor.Tensor // (emb_dim,) beta
	Eps   float32        // added to the variance
}

// NewLayerNorm creates a new LayerNorm layer.
//
// Parameters:
//   - embDim: embedding dimension
//   - eps: variance epsilon (DefaultNormEps for the translation model)
//
// Returns:
//   - Initialized LayerNorm with scale=1 and shift=0
func NewLayerNorm(embDim int, eps float32) *LayerNorm {
	scale := tensor.NewTensor([]int{embDim})
	for i := range scale.Data {
		scale.Data[i] = 1
	}
	return &LayerNorm{
		Scale: scale,
		Shift: tensor.NewTensor([]int{embDim}),
		Eps:   eps,
	}
}

// Forward applies layer normalization to the input.
//
// Input shape: (batch, seq, emb_dim) or any shape where last dim is emb_dim
// Output shape: same as input
//
// The normalization is applied independently to each position in the sequence.
func (ln *LayerNorm) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.NumDims() == 0 {
		return nil, fmt.Errorf("cannot apply LayerNorm to 0D tensor")
	}
	width := x.Shape[len(x.Shape)-1]
	if width != len(ln.Scale.Data) {
		return nil, fmt.Errorf("input last dimension %d doesn't match LayerNorm dimension %d",
			width, len(ln.Scale.Data))
	}

	result := tensor.NewTensor(x.Shape)
	if width == 0 {
		return result, nil
	}
	for off := 0; off < len(x.Data); off += width {
		src := x.Data[off : off+width]
		dst := result.Data[off : off+width]

		var mean float32
		for _, v := range src {
			mean += v
		}
		mean /= float32(width)

		var variance float32
		for _, v := range src {
			d := v - mean
			variance += d * d
		}
		variance /= float32(width)

		invStd := float32(1 / math.Sqrt(float64(variance+ln.Eps)))
		for i, v := range src {
			dst[i] = (v-mean)*invStd*ln.Scale.Data[i] + ln.Shift.Data[i]
		}
	}
	return result, nil
}
