package model

import (
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"

	"seqattn/pkg/embedding"
	"seqattn/pkg/mask"
	"seqattn/pkg/model/attention"
	"seqattn/pkg/tensor"
)

// Tagger is an encoder-only token classifier (named-entity tagging).
//
// Architecture:
//  1. Token + position embedding over the input vocabulary
//  2. NumLayers post-norm encoder blocks with padding-only attention
//  3. Head: dense(hidden_dim, relu) -> dense(num_tags)
//
// Config.TargetVocabSize is the number of tags.
type Tagger struct {
	Config   Config
	Emb      *embedding.TokenAndPosition
	Blocks   []*attention.EncoderBlock
	Head     *FeedForward // (emb_dim -> hidden_dim -> num_tags)
	Training bool

	Logger zerolog.Logger
}

// NewTagger creates a randomly initialized tagger.
func NewTagger(config Config, rng *rand.Rand) (*Tagger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	emb, err := config.newEmbedding(config.VocabSize, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	t := &Tagger{
		Config: config,
		Emb:    emb,
		Blocks: make([]*attention.EncoderBlock, config.NumLayers),
		Head: &FeedForward{
			FC1:        tensor.NewTensor([]int{config.EmbeddingDim, config.HiddenDim}),
			B1:         tensor.NewTensor([]int{config.HiddenDim}),
			FC2:        tensor.NewTensor([]int{config.HiddenDim, config.TargetVocabSize}),
			B2:         tensor.NewTensor([]int{config.TargetVocabSize}),
			Activation: tensor.ActivationReLU,
		},
		Logger: zerolog.Nop(),
	}
	for i := range t.Blocks {
		if t.Blocks[i], err = newEncoderBlock(config, rng); err != nil {
			return nil, fmt.Errorf("failed to create encoder block %d: %w", i, err)
		}
	}
	xavierUniformInit(t.Head.FC1, rng)
	xavierUniformInit(t.Head.FC2, rng)
	return t, nil
}

// NumTags returns the size of the tag set.
func (t *Tagger) NumTags() int {
	return t.Config.TargetVocabSize
}

// Forward computes per-token tag logits.
//
// Input: ids (batch, seq)
// Output: (batch, seq, num_tags) and the input padding mask
func (t *Tagger) Forward(ids [][]int) (*tensor.Tensor, *mask.Padding, error) {
	if len(ids) == 0 {
		return nil, nil, ErrEmptyBatch
	}
	x, pad, err := t.Emb.Forward(ids)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to embed input: %w", err)
	}

	m := mask.Encoder(pad)
	logDegenerate(t.Logger, "tagger", m, len(ids), pad.L, pad.L)

	for i, block := range t.Blocks {
		x, err = block.Forward(x, m, t.Training)
		if err != nil {
			return nil, nil, fmt.Errorf("failed in encoder block %d: %w", i, err)
		}
	}

	if t.Config.Dropout > 0 {
		x = x.Dropout(t.Config.Dropout, t.Training)
	}
	logits, err := t.Head.Forward(x)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute tag logits: %w", err)
	}
	return logits, pad, nil
}

// Predict returns the argmax tag per token. Padding positions get PadID.
func (t *Tagger) Predict(ids [][]int) ([][]int, error) {
	tags, _, err := t.PredictWithConfidence(ids)
	return tags, err
}

// PredictWithConfidence returns the argmax tag per token together with its
// softmax probability. Padding positions get PadID and confidence 0.
func (t *Tagger) PredictWithConfidence(ids [][]int) ([][]int, [][]float32, error) {
	logits, pad, err := t.Forward(ids)
	if err != nil {
		return nil, nil, err
	}
	probs := tensor.SoftmaxLast(logits)

	tags := make([][]int, len(ids))
	conf := make([][]float32, len(ids))
	for b, row := range ids {
		tags[b] = make([]int, len(row))
		conf[b] = make([]float32, len(row))
		for s := range row {
			if pad.IsPad(b, s) {
				tags[b][s] = t.Config.PadID
				continue
			}
			p := probs.Row(b, s)
			tags[b][s] = tensor.Argmax(p)
			conf[b][s] = p[tags[b][s]]
		}
	}
	return tags, conf, nil
}
