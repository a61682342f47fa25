package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/rs/zerolog"

	"seqattn/pkg/embedding"
	"seqattn/pkg/mask"
	"seqattn/pkg/model/attention"
	"seqattn/pkg/tensor"
)

// ErrEmptyBatch is returned when a forward pass receives no rows.
var ErrEmptyBatch = errors.New("empty batch")

// Seq2Seq implements the encoder-decoder translation transformer.
//
// Architecture:
//  1. Source embedding: token + position (learned or sinusoidal), (vocab_size, emb_dim) and (seq_len, emb_dim)
//  2. Encoder: NumLayers post-norm blocks, padding-masked self-attention
//  3. Target embedding: token + position over the target vocabulary
//  4. Decoder: NumLayers post-norm blocks, causal ∧ padding self-attention
//     and source-padding cross-attention
//  5. Output projection: dense (emb_dim, target_vocab_size)
type Seq2Seq struct {
	Config   Config
	SrcEmb   *embedding.TokenAndPosition
	TgtEmb   *embedding.TokenAndPosition
	Encoder  []*attention.EncoderBlock
	Decoder  []*attention.DecoderBlock
	OutHead  *tensor.Tensor // (emb_dim, target_vocab_size)
	OutBias  *tensor.Tensor // (target_vocab_size,)
	Training bool           // If false, dropout is disabled

	// Logger receives debug events about fully masked query rows.
	Logger zerolog.Logger
}

// NewSeq2Seq creates a randomly initialized translation model. A nil rng
// falls back to the math/rand global source.
func NewSeq2Seq(config Config, rng *rand.Rand) (*Seq2Seq, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	srcEmb, err := config.newEmbedding(config.VocabSize, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create source embedding: %w", err)
	}
	tgtEmb, err := config.newEmbedding(config.TargetVocabSize, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create target embedding: %w", err)
	}

	m := &Seq2Seq{
		Config:  config,
		SrcEmb:  srcEmb,
		TgtEmb:  tgtEmb,
		Encoder: make([]*attention.EncoderBlock, config.NumLayers),
		Decoder: make([]*attention.DecoderBlock, config.NumLayers),
		OutHead: tensor.NewTensor([]int{config.EmbeddingDim, config.TargetVocabSize}),
		OutBias: tensor.NewTensor([]int{config.TargetVocabSize}),
		Logger:  zerolog.Nop(),
	}

	for i := 0; i < config.NumLayers; i++ {
		enc, err := newEncoderBlock(config, rng)
		if err != nil {
			return nil, fmt.Errorf("failed to create encoder block %d: %w", i, err)
		}
		m.Encoder[i] = enc

		selfAttn, err := newAttention(config, rng)
		if err != nil {
			return nil, fmt.Errorf("failed to create decoder block %d: %w", i, err)
		}
		crossAttn, err := newAttention(config, rng)
		if err != nil {
			return nil, fmt.Errorf("failed to create decoder block %d: %w", i, err)
		}
		m.Decoder[i] = attention.NewDecoderBlock(
			selfAttn, crossAttn,
			newFeedForward(config, rng),
			NewLayerNorm(config.EmbeddingDim, DefaultNormEps),
			NewLayerNorm(config.EmbeddingDim, DefaultNormEps),
			NewLayerNorm(config.EmbeddingDim, DefaultNormEps),
			config.Dropout,
		)
	}

	xavierUniformInit(m.OutHead, rng)
	return m, nil
}

// SetTraining sets the training mode for the model.
// When training=false, dropout is disabled.
func (m *Seq2Seq) SetTraining(training bool) {
	m.Training = training
}

// Forward runs the encoder over src and the decoder over tgt.
//
// Input: src (batch, src_len), tgt (batch, tgt_len) token ids
// Output: (batch, tgt_len, target_vocab_size) logits
func (m *Seq2Seq) Forward(src, tgt [][]int) (*tensor.Tensor, error) {
	if len(src) != len(tgt) {
		return nil, fmt.Errorf("source batch %d and target batch %d differ", len(src), len(tgt))
	}
	enc, srcPad, err := m.Encode(src)
	if err != nil {
		return nil, err
	}
	return m.Decode(tgt, enc, srcPad)
}

// Encode embeds src and runs it through the encoder stack. The returned
// padding mask is needed for cross-attention.
//
// Output shape: (batch, src_len, emb_dim)
func (m *Seq2Seq) Encode(src [][]int) (*tensor.Tensor, *mask.Padding, error) {
	if len(src) == 0 {
		return nil, nil, ErrEmptyBatch
	}
	x, pad, err := m.SrcEmb.Forward(src)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to embed source: %w", err)
	}
	if m.Config.Dropout > 0 {
		x = x.Dropout(m.Config.Dropout, m.Training)
	}

	selfMask := mask.Encoder(pad)
	logDegenerate(m.Logger, "encoder", selfMask, len(src), pad.L, pad.L)

	for i, block := range m.Encoder {
		x, err = block.Forward(x, selfMask, m.Training)
		if err != nil {
			return nil, nil, fmt.Errorf("failed in encoder block %d: %w", i, err)
		}
	}
	return x, pad, nil
}

// Decode runs the decoder stack over tgt against an encoded source and
// projects to target-vocabulary logits.
//
// Output shape: (batch, tgt_len, target_vocab_size)
func (m *Seq2Seq) Decode(tgt [][]int, enc *tensor.Tensor, srcPad *mask.Padding) (*tensor.Tensor, error) {
	if len(tgt) == 0 {
		return nil, ErrEmptyBatch
	}
	x, tgtPad, err := m.TgtEmb.Forward(tgt)
	if err != nil {
		return nil, fmt.Errorf("failed to embed target: %w", err)
	}
	if m.Config.Dropout > 0 {
		x = x.Dropout(m.Config.Dropout, m.Training)
	}

	// One causal matrix serves every row of the batch.
	selfMask := mask.Decoder(mask.NewCausal(tgtPad.L), tgtPad)
	crossMask := mask.Encoder(srcPad)
	logDegenerate(m.Logger, "decoder", selfMask, len(tgt), tgtPad.L, tgtPad.L)

	for i, block := range m.Decoder {
		x, err = block.Forward(x, enc, selfMask, crossMask, m.Training)
		if err != nil {
			return nil, fmt.Errorf("failed in decoder block %d: %w", i, err)
		}
	}

	if m.Config.Dropout > 0 {
		x = x.Dropout(m.Config.Dropout, m.Training)
	}
	logits, err := dense(x, m.OutHead, m.OutBias)
	if err != nil {
		return nil, fmt.Errorf("failed to compute output logits: %w", err)
	}
	return logits, nil
}

// logDegenerate reports query rows that see no key at all.
func logDegenerate(logger zerolog.Logger, stack string, msk mask.Mask, batch, lq, lk int) {
	e := logger.Debug()
	if !e.Enabled() {
		return
	}
	rows := mask.DegenerateRows(msk, batch, lq, lk)
	if len(rows) == 0 {
		e.Discard()
		return
	}
	e.Str("stack", stack).Int("rows", len(rows)).Msg("fully masked query rows produce zero attention output")
}

func newAttention(config Config, rng *rand.Rand) (*attention.MultiHeadAttention, error) {
	attn, err := attention.NewMultiHeadAttention(attention.MultiHeadAttentionConfig{
		NumHeads: config.NumHeads,
		DIn:      config.EmbeddingDim,
		DOut:     config.EmbeddingDim,
		QKVBias:  true,
		Workers:  config.Workers,
	})
	if err != nil {
		return nil, err
	}
	xavierUniformInit(attn.WQuery, rng)
	xavierUniformInit(attn.WKey, rng)
	xavierUniformInit(attn.WValue, rng)
	xavierUniformInit(attn.OutProj, rng)
	return attn, nil
}

func newFeedForward(config Config, rng *rand.Rand) *FeedForward {
	ff := NewFeedForward(config)
	xavierUniformInit(ff.FC1, rng)
	xavierUniformInit(ff.FC2, rng)
	return ff
}

func newEncoderBlock(config Config, rng *rand.Rand) (*attention.EncoderBlock, error) {
	attn, err := newAttention(config, rng)
	if err != nil {
		return nil, err
	}
	return attention.NewEncoderBlock(
		attn,
		newFeedForward(config, rng),
		NewLayerNorm(config.EmbeddingDim, DefaultNormEps),
		NewLayerNorm(config.EmbeddingDim, DefaultNormEps),
		config.Dropout,
	), nil
}

// xavierUniformInit fills a weight matrix from U[-limit, limit] where
// limit = sqrt(6 / (fan_in + fan_out)).
func xavierUniformInit(t *tensor.Tensor, rng *rand.Rand) {
	uniform := rand.Float64
	if rng != nil {
		uniform = rng.Float64
	}
	if len(t.Shape) < 2 {
		for i := range t.Data {
			t.Data[i] = float32(uniform()*2 - 1)
		}
		return
	}

	fanIn := t.Shape[len(t.Shape)-2]
	fanOut := t.Shape[len(t.Shape)-1]
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))

	for i := range t.Data {
		t.Data[i] = float32(uniform()*2*limit - limit)
	}
}
