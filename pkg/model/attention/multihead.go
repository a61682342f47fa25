// Package attention implements masked multi-head attention and the encoder
// and decoder transformer blocks built on it.
//
// The attention kernel takes a mask.Mask describing which keys each query
// may see. Masked keys receive exactly zero weight; a query that can see no
// key at all produces a zero output vector.
package attention

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/sourcegraph/conc/pool"

	"seqattn/pkg/mask"
	"seqattn/pkg/tensor"
)

// ErrShape is returned for inputs whose shape does not fit the layer.
var ErrShape = errors.New("attention input shape mismatch")

// MultiHeadAttentionConfig holds configuration for MultiHeadAttention.
type MultiHeadAttentionConfig struct {
	NumHeads int
	DIn      int
	DOut     int
	Dropout  float32 // applied to the attention weights during training
	QKVBias  bool
	Workers  int // batch rows processed concurrently; 0 means GOMAXPROCS
}

// MultiHeadAttention implements scaled dot-product attention split over heads.
//
// Architecture:
//   - Q from the query input, K and V from the key/value input
//   - each head attends within its HeadDim slice
//   - OutProj recombines the heads
type MultiHeadAttention struct {
	NumHeads int
	HeadDim  int
	DOut     int
	DIn      int
	Dropout  float32
	Workers  int

	WQuery  *tensor.Tensor // (d_in, d_out)
	WKey    *tensor.Tensor // (d_in, d_out)
	WValue  *tensor.Tensor // (d_in, d_out)
	OutProj *tensor.Tensor // (d_out, d_out)

	BQuery, BKey, BValue *tensor.Tensor // (d_out), nil without QKVBias
	BOut                 *tensor.Tensor // (d_out)
}

// NewMultiHeadAttention creates a new multi-head attention layer with zero weights.
func NewMultiHeadAttention(config MultiHeadAttentionConfig) (*MultiHeadAttention, error) {
	if config.NumHeads <= 0 || config.DOut%config.NumHeads != 0 {
		return nil, fmt.Errorf("d_out (%d) must be divisible by num_heads (%d)", config.DOut, config.NumHeads)
	}
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	m := &MultiHeadAttention{
		NumHeads: config.NumHeads,
		HeadDim:  config.DOut / config.NumHeads,
		DOut:     config.DOut,
		DIn:      config.DIn,
		Dropout:  config.Dropout,
		Workers:  workers,
		WQuery:   tensor.NewTensor([]int{config.DIn, config.DOut}),
		WKey:     tensor.NewTensor([]int{config.DIn, config.DOut}),
		WValue:   tensor.NewTensor([]int{config.DIn, config.DOut}),
		OutProj:  tensor.NewTensor([]int{config.DOut, config.DOut}),
		BOut:     tensor.NewTensor([]int{config.DOut}),
	}
	if config.QKVBias {
		m.BQuery = tensor.NewTensor([]int{config.DOut})
		m.BKey = tensor.NewTensor([]int{config.DOut})
		m.BValue = tensor.NewTensor([]int{config.DOut})
	}
	return m, nil
}

// Forward computes multi-head attention.
//
// Input shapes:
//   - query: (batch, lq, d_in)
//   - kv: (batch, lk, d_in); pass query again for self-attention
//   - msk: visibility policy, nil to attend everywhere
//
// Output shape: (batch, lq, d_out)
func (m *MultiHeadAttention) Forward(query, kv *tensor.Tensor, msk mask.Mask, training bool) (*tensor.Tensor, error) {
	out, _, err := m.forward(query, kv, msk, training, false)
	return out, err
}

// ForwardWithWeights is Forward that also returns the attention weights,
// shape (batch, num_heads, lq, lk).
func (m *MultiHeadAttention) ForwardWithWeights(query, kv *tensor.Tensor, msk mask.Mask) (*tensor.Tensor, *tensor.Tensor, error) {
	return m.forward(query, kv, msk, false, true)
}

func (m *MultiHeadAttention) forward(query, kv *tensor.Tensor, msk mask.Mask, training, keepWeights bool) (*tensor.Tensor, *tensor.Tensor, error) {
	if query.NumDims() != 3 || kv.NumDims() != 3 {
		return nil, nil, fmt.Errorf("%w: expected 3D query and key/value (batch, seq, d_in), got %v and %v",
			ErrShape, query.Shape, kv.Shape)
	}
	batchSize, lq, dIn := query.Shape[0], query.Shape[1], query.Shape[2]
	lk := kv.Shape[1]
	if dIn != m.DIn || kv.Shape[2] != m.DIn {
		return nil, nil, fmt.Errorf("%w: input dimension %d/%d doesn't match expected %d",
			ErrShape, dIn, kv.Shape[2], m.DIn)
	}
	if kv.Shape[0] != batchSize {
		return nil, nil, fmt.Errorf("%w: query batch %d, key/value batch %d", ErrShape, batchSize, kv.Shape[0])
	}
	if err := mask.Check(msk, lk); err != nil {
		return nil, nil, err
	}

	// Step 1: project and split heads -> (batch, num_heads, seq, head_dim)
	Q, err := m.project(query, m.WQuery, m.BQuery)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute Q: %w", err)
	}
	K, err := m.project(kv, m.WKey, m.BKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute K: %w", err)
	}
	V, err := m.project(kv, m.WValue, m.BValue)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute V: %w", err)
	}

	heads := tensor.NewTensor([]int{batchSize, m.NumHeads, lq, m.HeadDim})
	var weights *tensor.Tensor
	if keepWeights {
		weights = tensor.NewTensor([]int{batchSize, m.NumHeads, lq, lk})
	}
	scale := float32(1.0 / math.Sqrt(float64(m.HeadDim)))

	// Step 2: per batch row, scores -> masked softmax -> weighted values.
	// Rows share nothing but read-only weights.
	p := pool.New().WithMaxGoroutines(m.Workers).WithErrors()
	for b := 0; b < batchSize; b++ {
		p.Go(func() error {
			scores, err := tensor.MatmulTransB(Q.Index(b), K.Index(b))
			if err != nil {
				return fmt.Errorf("failed to compute attention scores for row %d: %w", b, err)
			}
			scores = scores.Scale(scale)

			probs := tensor.NewTensor(scores.Shape)
			allowed := make([]bool, lk)
			for i := 0; i < lq; i++ {
				mask.Row(msk, b, i, allowed)
				for h := 0; h < m.NumHeads; h++ {
					tensor.MaskedSoftmax(scores.Row(h, i), allowed, probs.Row(h, i))
				}
			}
			if training && m.Dropout > 0 {
				probs = probs.Dropout(m.Dropout, true)
			}
			if keepWeights {
				copy(weights.Index(b).Data, probs.Data)
			}

			attended, err := tensor.Matmul(probs, V.Index(b))
			if err != nil {
				return fmt.Errorf("failed to apply attention to V for row %d: %w", b, err)
			}
			copy(heads.Index(b).Data, attended.Data)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, nil, err
	}

	// Step 3: merge heads -> (batch, lq, d_out) and project.
	merged, err := heads.Transpose(1, 2)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to transpose attention output: %w", err)
	}
	merged = merged.Reshape([]int{batchSize, lq, m.DOut})

	output, err := tensor.Matmul(merged, m.OutProj)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to apply output projection: %w", err)
	}
	if m.BOut != nil {
		if output, err = tensor.Add(output, m.BOut); err != nil {
			return nil, nil, fmt.Errorf("failed to add output bias: %w", err)
		}
	}

	return output, weights, nil
}

// project computes x @ w (+ bias) and splits the result into heads.
func (m *MultiHeadAttention) project(x, w, bias *tensor.Tensor) (*tensor.Tensor, error) {
	batchSize, seqLen := x.Shape[0], x.Shape[1]

	y, err := tensor.Matmul(x, w)
	if err != nil {
		return nil, err
	}
	if bias != nil {
		if y, err = tensor.Add(y, bias); err != nil {
			return nil, err
		}
	}
	y = y.Reshape([]int{batchSize, seqLen, m.NumHeads, m.HeadDim})
	return y.Transpose(1, 2)
}

// Params lists the trainable tensors of the layer.
func (m *MultiHeadAttention) Params() []*tensor.Tensor {
	params := []*tensor.Tensor{m.WQuery, m.WKey, m.WValue, m.OutProj}
	for _, b := range []*tensor.Tensor{m.BQuery, m.BKey, m.BValue, m.BOut} {
		if b != nil {
			params = append(params, b)
		}
	}
	return params
}
