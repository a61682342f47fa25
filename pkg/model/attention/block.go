package attention

import (
	"fmt"

	"seqattn/pkg/mask"
	"seqattn/pkg/tensor"
)

// FeedForward is an interface for feed-forward layers
type FeedForward interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
}

// LayerNorm is an interface for layer normalization
type LayerNorm interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
}

// EncoderBlock is a post-norm transformer encoder block:
//
//	x = Norm1(x + Dropout(Attn(x, x, mask)))
//	x = Norm2(x + Dropout(FF(x)))
//
// The mask is normally mask.Encoder(padding), so attention is bidirectional.
type EncoderBlock struct {
	Attn    *MultiHeadAttention
	FF      FeedForward
	Norm1   LayerNorm
	Norm2   LayerNorm
	Dropout float32
}

// NewEncoderBlock creates a new encoder block.
func NewEncoderBlock(attn *MultiHeadAttention, ff FeedForward, norm1, norm2 LayerNorm, dropout float32) *EncoderBlock {
	return &EncoderBlock{
		Attn:    attn,
		FF:      ff,
		Norm1:   norm1,
		Norm2:   norm2,
		Dropout: dropout,
	}
}

// Forward computes one encoder block.
//
// Input shape: (batch, seq, emb_dim)
// Output shape: (batch, seq, emb_dim)
func (b *EncoderBlock) Forward(x *tensor.Tensor, m mask.Mask, training bool) (*tensor.Tensor, error) {
	attnOut, err := b.Attn.Forward(x, x, m, training)
	if err != nil {
		return nil, fmt.Errorf("failed to compute attention: %w", err)
	}
	x, err = residualNorm(x, attnOut, b.Norm1, b.Dropout, training)
	if err != nil {
		return nil, fmt.Errorf("attention sublayer: %w", err)
	}

	ffOut, err := b.FF.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("failed to compute feed-forward: %w", err)
	}
	x, err = residualNorm(x, ffOut, b.Norm2, b.Dropout, training)
	if err != nil {
		return nil, fmt.Errorf("feed-forward sublayer: %w", err)
	}
	return x, nil
}

// DecoderBlock is a post-norm transformer decoder block:
//
//	x = Norm1(x + SelfAttn(x, x, causal ∧ target padding))
//	x = Norm2(x + CrossAttn(x, enc, source padding))
//	x = Norm3(x + FF(x))
type DecoderBlock struct {
	SelfAttn  *MultiHeadAttention
	CrossAttn *MultiHeadAttention
	FF        FeedForward
	Norm1     LayerNorm
	Norm2     LayerNorm
	Norm3     LayerNorm
	Dropout   float32
}

// NewDecoderBlock creates a new decoder block.
func NewDecoderBlock(selfAttn, crossAttn *MultiHeadAttention, ff FeedForward, norm1, norm2, norm3 LayerNorm, dropout float32) *DecoderBlock {
	return &DecoderBlock{
		SelfAttn:  selfAttn,
		CrossAttn: crossAttn,
		FF:        ff,
		Norm1:     norm1,
		Norm2:     norm2,
		Norm3:     norm3,
		Dropout:   dropout,
	}
}

// Forward computes one decoder block.
//
// Input shapes:
//   - x: (batch, tgt_len, emb_dim)
//   - enc: (batch, src_len, emb_dim), the encoder output
//   - selfMask: normally mask.Decoder(causal, target padding)
//   - crossMask: normally mask.Encoder(source padding)
//
// Output shape: (batch, tgt_len, emb_dim)
func (b *DecoderBlock) Forward(x, enc *tensor.Tensor, selfMask, crossMask mask.Mask, training bool) (*tensor.Tensor, error) {
	selfOut, err := b.SelfAttn.Forward(x, x, selfMask, training)
	if err != nil {
		return nil, fmt.Errorf("failed to compute self-attention: %w", err)
	}
	x, err = residualNorm(x, selfOut, b.Norm1, b.Dropout, training)
	if err != nil {
		return nil, fmt.Errorf("self-attention sublayer: %w", err)
	}

	crossOut, err := b.CrossAttn.Forward(x, enc, crossMask, training)
	if err != nil {
		return nil, fmt.Errorf("failed to compute cross-attention: %w", err)
	}
	x, err = residualNorm(x, crossOut, b.Norm2, b.Dropout, training)
	if err != nil {
		return nil, fmt.Errorf("cross-attention sublayer: %w", err)
	}

	ffOut, err := b.FF.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("failed to compute feed-forward: %w", err)
	}
	x, err = residualNorm(x, ffOut, b.Norm3, b.Dropout, training)
	if err != nil {
		return nil, fmt.Errorf("feed-forward sublayer: %w", err)
	}
	return x, nil
}

// residualNorm returns norm(shortcut + dropout(out)).
func residualNorm(shortcut, out *tensor.Tensor, norm LayerNorm, dropout float32, training bool) (*tensor.Tensor, error) {
	if dropout > 0 && training {
		out = out.Dropout(dropout, training)
	}
	sum, err := tensor.Add(shortcut, out)
	if err != nil {
		return nil, fmt.Errorf("failed to add residual: %w", err)
	}
	return norm.Forward(sum)
}
