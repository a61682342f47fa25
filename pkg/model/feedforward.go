package model

import (
	"fmt"

	"seqattn/pkg/tensor"
)

// FeedForward is the dense projection inside each block:
//
//	Dense(hidden_dim, activation) -> Dense(emb_dim)
type FeedForward struct {
	FC1        *tensor.Tensor // (emb_dim, hidden_dim)
	B1         *tensor.Tensor // (hidden_dim,)
	FC2        *tensor.Tensor // (hidden_dim, emb_dim)
	B2         *tensor.Tensor // (emb_dim,)
	Activation string
}

// NewFeedForward allocates a zero-initialized feed-forward layer.
func NewFeedForward(config Config) *FeedForward {
	act := config.Activation
	if act == "" {
		act = tensor.ActivationReLU
	}
	return &FeedForward{
		FC1:        tensor.NewTensor([]int{config.EmbeddingDim, config.HiddenDim}),
		B1:         tensor.NewTensor([]int{config.HiddenDim}),
		FC2:        tensor.NewTensor([]int{config.HiddenDim, config.EmbeddingDim}),
		B2:         tensor.NewTensor([]int{config.EmbeddingDim}),
		Activation: act,
	}
}

// Forward maps (batch, seq, emb_dim) to (batch, seq, emb_dim).
func (ff *FeedForward) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.NumDims() < 2 {
		return nil, fmt.Errorf("expected at least 2D input, got %dD", x.NumDims())
	}
	if last := x.Shape[len(x.Shape)-1]; last != ff.FC1.Shape[0] {
		return nil, fmt.Errorf("input dimension %d doesn't match FC1 input dimension %d",
			last, ff.FC1.Shape[0])
	}

	hidden, err := dense(x, ff.FC1, ff.B1)
	if err != nil {
		return nil, fmt.Errorf("failed to compute FC1 projection: %w", err)
	}
	hidden = tensor.Activate(hidden, ff.Activation)

	output, err := dense(hidden, ff.FC2, ff.B2)
	if err != nil {
		return nil, fmt.Errorf("failed to compute FC2 projection: %w", err)
	}
	return output, nil
}

// Params lists the trainable tensors.
func (ff *FeedForward) Params() []*tensor.Tensor {
	return []*tensor.Tensor{ff.FC1, ff.B1, ff.FC2, ff.B2}
}

// dense computes x @ w + b.
func dense(x, w, b *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := tensor.Matmul(x, w)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return y, nil
	}
	return tensor.Add(y, b)
}
